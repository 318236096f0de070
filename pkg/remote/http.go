package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storacha/mirror/internal/ctxutil"
	"github.com/storacha/mirror/pkg/types"
)

var (
	log    = logging.Logger("mirror/remote")
	tracer = otel.Tracer("mirror/remote")
)

const (
	chunkSize = 64 * 1024

	headerOID = "oid"
	upToDate  = "uptodate"
)

var _ Service = (*HTTPClient)(nil)

// HTTPClient talks to a Seafile compatible web API.
type HTTPClient struct {
	server *url.URL
	token  string
	http   *http.Client
	fs     afero.Fs
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the traced default client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// WithTimeout bounds connecting and waiting for response headers. Bodies
// are not bounded so large transfers can finish.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) { h.http = &http.Client{Transport: newTransport(d)} }
}

// WithFs sets the filesystem downloads are written to and uploads read from.
func WithFs(fs afero.Fs) Option {
	return func(h *HTTPClient) { h.fs = fs }
}

func NewHTTPClient(server, token string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server URL %q must include scheme and host", server)
	}
	c := &HTTPClient{
		server: u,
		token:  token,
		http:   &http.Client{Transport: newTransport(0)},
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newTransport(timeout time.Duration) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if timeout > 0 {
		t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		t.ResponseHeaderTimeout = timeout
		t.TLSHandshakeTimeout = timeout
	}
	return otelhttp.NewTransport(t)
}

func (c *HTTPClient) apiURL(p string, query url.Values) string {
	u := *c.server
	u.Path = strings.TrimRight(u.Path, "/") + p
	u.RawQuery = query.Encode()
	return u.String()
}

func repoURL(repoID, suffix string) string {
	return "/api2/repos/" + url.PathEscape(repoID) + suffix
}

func (c *HTTPClient) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, types.NewRemoteError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// classify maps transport failures onto the error kinds callers handle.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, types.ErrCancelled) {
		return types.ErrCancelled
	}
	if ctx.Err() != nil {
		return ctxutil.Cancelled(ctx)
	}
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
		netErr net.Error
	)
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", types.ErrNetworkUnavailable, err)
	}
	return err
}

func (c *HTTPClient) getBody(ctx context.Context, rawURL string) ([]byte, http.Header, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, "")
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, classify(ctx, err)
	}
	return body, resp.Header, nil
}

func (c *HTTPClient) postForm(ctx context.Context, rawURL string, form url.Values) ([]byte, http.Header, error) {
	resp, err := c.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, classify(ctx, err)
	}
	return body, resp.Header, nil
}

// unquote strips the JSON string quoting the API puts around bare values.
func unquote(b []byte) string {
	return strings.Trim(strings.TrimSpace(string(b)), `"`)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Ping checks the server answers at all.
func (c *HTTPClient) Ping(ctx context.Context) error {
	_, _, err := c.getBody(ctx, c.apiURL("/api2/ping/", nil))
	return err
}

func (c *HTTPClient) ListRepositories(ctx context.Context) (_ []byte, err error) {
	ctx, span := tracer.Start(ctx, "list-repositories")
	defer func() { endSpan(span, err) }()

	body, _, err := c.getBody(ctx, c.apiURL("/api2/repos/", nil))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	return body, nil
}

func (c *HTTPClient) ListDirectory(ctx context.Context, repoID, dir, hintDirID string) (_ string, _ []byte, err error) {
	ctx, span := tracer.Start(ctx, "list-directory", trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("path", dir),
	))
	defer func() { endSpan(span, err) }()

	q := url.Values{"p": {dir}}
	if hintDirID != "" {
		q.Set("oid", hintDirID)
	}
	body, header, err := c.getBody(ctx, c.apiURL(repoURL(repoID, "/dir/"), q))
	if err != nil {
		return "", nil, err
	}
	if unquote(body) == upToDate {
		return hintDirID, nil, nil
	}
	dirID := header.Get(headerOID)
	if dirID == "" {
		return "", nil, types.NewParseError("directory listing", errors.New("missing oid header"))
	}
	if hintDirID != "" && dirID == hintDirID {
		return dirID, nil, nil
	}
	return dirID, body, nil
}

func (c *HTTPClient) DownloadFile(ctx context.Context, repoID, filePath, destPath, hintFileID string, sink ProgressSink) (_ string, _ string, err error) {
	ctx, span := tracer.Start(ctx, "download-file", trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("path", filePath),
	))
	defer func() { endSpan(span, err) }()

	body, header, err := c.getBody(ctx, c.apiURL(repoURL(repoID, "/file/"), url.Values{"p": {filePath}}))
	if err != nil {
		return "", "", err
	}
	fileID := header.Get(headerOID)
	if fileID == "" {
		return "", "", types.NewParseError("download link", errors.New("missing oid header"))
	}
	if hintFileID != "" && fileID == hintFileID {
		log.Debugw("File unchanged, skipping download", "repo", repoID, "path", filePath)
		return fileID, "", nil
	}
	link := unquote(body)
	if _, err := url.ParseRequestURI(link); err != nil {
		return "", "", types.NewParseError("download link", err)
	}

	resp, err := c.do(ctx, http.MethodGet, link, nil, "")
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	f, err := c.fs.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", "", types.NewStorageError("create download file", destPath, err)
	}
	n, err := copyWithProgress(f, resp.Body, sink)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = types.NewStorageError("close download file", destPath, cerr)
	}
	if err != nil {
		c.fs.Remove(destPath)
		return "", "", classify(ctx, err)
	}
	span.SetAttributes(attribute.Int64("bytes", n))
	return fileID, destPath, nil
}

func (c *HTTPClient) UploadFile(ctx context.Context, repoID, dir, sourcePath string, sink ProgressSink) (string, error) {
	return c.upload(ctx, repoID, dir, sourcePath, sink, false)
}

func (c *HTTPClient) UpdateFile(ctx context.Context, repoID, dir, sourcePath string, sink ProgressSink) (string, error) {
	return c.upload(ctx, repoID, dir, sourcePath, sink, true)
}

func (c *HTTPClient) upload(ctx context.Context, repoID, dir, sourcePath string, sink ProgressSink, update bool) (_ string, err error) {
	op, linkPath := "upload-file", "/upload-link/"
	if update {
		op, linkPath = "update-file", "/update-link/"
	}
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("dir", dir),
	))
	defer func() { endSpan(span, err) }()

	body, _, err := c.getBody(ctx, c.apiURL(repoURL(repoID, linkPath), url.Values{"p": {dir}}))
	if err != nil {
		return "", err
	}
	link := unquote(body)
	if _, err := url.ParseRequestURI(link); err != nil {
		return "", types.NewParseError("upload link", err)
	}

	src, err := c.fs.Open(sourcePath)
	if err != nil {
		return "", types.NewStorageError("open upload source", sourcePath, err)
	}
	defer src.Close()

	name := filepath.Base(sourcePath)
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadForm(mw, src, name, dir, update, sink)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := c.do(ctx, http.MethodPost, link, pr, mw.FormDataContentType())
	pr.Close()
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(ctx, err)
	}
	return unquote(respBody), nil
}

func writeUploadForm(mw *multipart.Writer, src io.Reader, name, dir string, update bool, sink ProgressSink) error {
	if update {
		if err := mw.WriteField("target_file", path.Join(dir, name)); err != nil {
			return err
		}
	} else {
		if err := mw.WriteField("parent_dir", dir); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	_, err = copyWithProgress(part, src, sink)
	return err
}

func (c *HTTPClient) CreateDirectory(ctx context.Context, repoID, parentDir, name string) (string, []byte, error) {
	return c.create(ctx, "create-directory", repoID, "/dir/", "mkdir", parentDir, name)
}

func (c *HTTPClient) CreateFile(ctx context.Context, repoID, parentDir, name string) (string, []byte, error) {
	return c.create(ctx, "create-file", repoID, "/file/", "create", parentDir, name)
}

func (c *HTTPClient) create(ctx context.Context, op, repoID, endpoint, operation, parentDir, name string) (_ string, _ []byte, err error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("parent", parentDir),
		attribute.String("name", name),
	))
	defer func() { endSpan(span, err) }()

	q := url.Values{"p": {path.Join(parentDir, name)}, "reloaddir": {"true"}}
	body, header, err := c.postForm(ctx, c.apiURL(repoURL(repoID, endpoint), q), url.Values{"operation": {operation}})
	if err != nil {
		return "", nil, err
	}
	dirID := header.Get(headerOID)
	if dirID == "" {
		return "", nil, types.NewParseError("create response", errors.New("missing oid header"))
	}
	return dirID, body, nil
}

func (c *HTTPClient) SetPassword(ctx context.Context, repoID, password string) (err error) {
	ctx, span := tracer.Start(ctx, "set-password", trace.WithAttributes(attribute.String("repo", repoID)))
	defer func() { endSpan(span, err) }()

	_, _, err = c.postForm(ctx, c.apiURL(repoURL(repoID, "/"), nil), url.Values{"password": {password}})
	return err
}

// copyWithProgress copies in chunks, reporting the running total after each
// chunk and stopping with types.ErrCancelled once the sink asks to.
func copyWithProgress(dst io.Writer, src io.Reader, sink ProgressSink) (int64, error) {
	if sink == nil {
		sink = NopSink
	}
	buf := make([]byte, chunkSize)
	var total int64
	for {
		if sink.IsCancelled() {
			return total, types.ErrCancelled
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, types.NewStorageError("write", "", werr)
			}
			total += int64(n)
			sink.OnProgress(total)
		}
		if errors.Is(rerr, io.EOF) {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
