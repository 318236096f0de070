package remotetest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/storacha/mirror/pkg/types"
)

// NewServer serves the fake over the library web API. Requests must carry
// "Authorization: Token <token>". Close the returned server when done.
func NewServer(f *Fake, token string) *httptest.Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	api := e.Group("/api2", requireToken(token))
	api.GET("/ping/", func(c echo.Context) error {
		return c.String(http.StatusOK, `"pong"`)
	})
	api.GET("/repos/", func(c echo.Context) error {
		if err := f.record(MethodListRepositories); err != nil {
			return remoteErr(c, err)
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, f.Repos())
	})
	api.GET("/repos/:id/dir/", func(c echo.Context) error {
		if err := f.record(MethodListDirectory); err != nil {
			return remoteErr(c, err)
		}
		id, payload, err := f.Dir(c.Param("id"), c.QueryParam("p"))
		if err != nil {
			return remoteErr(c, err)
		}
		c.Response().Header().Set("oid", id)
		if hint := c.QueryParam("oid"); hint != "" && hint == id {
			return c.String(http.StatusOK, `"uptodate"`)
		}
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, payload)
	})
	api.GET("/repos/:id/file/", func(c echo.Context) error {
		if err := f.record(MethodDownloadFile); err != nil {
			return remoteErr(c, err)
		}
		repoID, p := c.Param("id"), c.QueryParam("p")
		id, _, err := f.File(repoID, p)
		if err != nil {
			return remoteErr(c, err)
		}
		c.Response().Header().Set("oid", id)
		link := fmt.Sprintf("%s/files/%s?p=%s", baseURL(c), url.PathEscape(repoID), url.QueryEscape(p))
		return c.String(http.StatusOK, `"`+link+`"`)
	})
	api.GET("/repos/:id/upload-link/", func(c echo.Context) error {
		return c.String(http.StatusOK, fmt.Sprintf(`"%s/upload/%s"`, baseURL(c), url.PathEscape(c.Param("id"))))
	})
	api.GET("/repos/:id/update-link/", func(c echo.Context) error {
		return c.String(http.StatusOK, fmt.Sprintf(`"%s/update/%s"`, baseURL(c), url.PathEscape(c.Param("id"))))
	})
	api.POST("/repos/:id/dir/", func(c echo.Context) error {
		return create(c, f, MethodCreateDirectory, "mkdir", true)
	})
	api.POST("/repos/:id/file/", func(c echo.Context) error {
		return create(c, f, MethodCreateFile, "create", false)
	})
	api.POST("/repos/:id/", func(c echo.Context) error {
		if err := f.record(MethodSetPassword); err != nil {
			return remoteErr(c, err)
		}
		if err := f.Unlock(c.Param("id"), c.FormValue("password")); err != nil {
			return remoteErr(c, err)
		}
		return c.String(http.StatusOK, `"success"`)
	})

	e.GET("/files/:id", func(c echo.Context) error {
		_, content, err := f.File(c.Param("id"), c.QueryParam("p"))
		if err != nil {
			return remoteErr(c, err)
		}
		f.countDownload()
		return c.Blob(http.StatusOK, echo.MIMEOctetStream, content)
	})
	e.POST("/upload/:id", func(c echo.Context) error {
		if err := f.record(MethodUploadFile); err != nil {
			return remoteErr(c, err)
		}
		return upload(c, f, c.FormValue("parent_dir"))
	})
	e.POST("/update/:id", func(c echo.Context) error {
		if err := f.record(MethodUpdateFile); err != nil {
			return remoteErr(c, err)
		}
		return upload(c, f, path.Dir(c.FormValue("target_file")))
	})

	return httptest.NewServer(e)
}

func requireToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token != "" && c.Request().Header.Get("Authorization") != "Token "+token {
				return c.String(http.StatusUnauthorized, `{"detail":"Invalid token"}`)
			}
			return next(c)
		}
	}
}

func baseURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}

func remoteErr(c echo.Context, err error) error {
	var remoteErr types.RemoteError
	if errors.As(err, &remoteErr) {
		return c.String(remoteErr.Code, remoteErr.Message)
	}
	return c.String(http.StatusInternalServerError, err.Error())
}

func create(c echo.Context, f *Fake, method, operation string, dir bool) error {
	if err := f.record(method); err != nil {
		return remoteErr(c, err)
	}
	if c.FormValue("operation") != operation {
		return c.String(http.StatusBadRequest, "unsupported operation")
	}
	p := c.QueryParam("p")
	id, listing, err := f.Create(c.Param("id"), path.Dir(p), path.Base(p), dir)
	if err != nil {
		return remoteErr(c, err)
	}
	c.Response().Header().Set("oid", id)
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, listing)
}

func upload(c echo.Context, f *Fake, dir string) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.String(http.StatusBadRequest, "missing file")
	}
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	id, err := f.Put(c.Param("id"), dir, strings.TrimSpace(fh.Filename), content)
	if err != nil {
		return remoteErr(c, err)
	}
	return c.String(http.StatusOK, id)
}
