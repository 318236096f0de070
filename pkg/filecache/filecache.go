// Package filecache keeps downloaded and uploaded files of an account on
// disk, one copy per repository path, bound to the file id it holds.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"

	"github.com/storacha/mirror/internal/keylock"
	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/pathalloc"
	"github.com/storacha/mirror/pkg/reconcile"
	"github.com/storacha/mirror/pkg/remote"
	"github.com/storacha/mirror/pkg/store"
	"github.com/storacha/mirror/pkg/types"
)

var log = logging.Logger("mirror/filecache")

type Cache struct {
	fs      afero.Fs
	acct    model.Account
	paths   *pathalloc.Allocator
	store   store.Files
	service remote.Service
	locks   *keylock.Map
}

func New(fs afero.Fs, acct model.Account, paths *pathalloc.Allocator, s store.Files, service remote.Service) *Cache {
	return &Cache{
		fs:      fs,
		acct:    acct,
		paths:   paths,
		store:   s,
		service: service,
		locks:   keylock.New(),
	}
}

func lockKey(repoID, p string) string {
	return repoID + "\x00" + p
}

// GetCachedMetadata returns the entry for a file, if any.
func (c *Cache) GetCachedMetadata(ctx context.Context, repoID, p string) (model.CachedFile, bool, error) {
	return c.store.GetCachedFile(ctx, c.acct.Signature(), repoID, p)
}

// IsLocalCopyValid reports whether the local copy holds serverFileID. A copy
// changed behind our back is not detected.
func (c *Cache) IsLocalCopyValid(ctx context.Context, repoName, repoID, p, serverFileID string) bool {
	_, ok := c.LocalCachedFile(ctx, repoName, repoID, p, serverFileID)
	return ok
}

// LocalCachedFile returns the local copy of a file when it holds fileID.
func (c *Cache) LocalCachedFile(ctx context.Context, repoName, repoID, p, fileID string) (string, bool) {
	if fileID == "" {
		return "", false
	}
	entry, found, err := c.GetCachedMetadata(ctx, repoID, p)
	if err != nil {
		log.Warnw("Reading file cache entry failed", "repo", repoID, "path", p, "err", err)
		return "", false
	}
	if !found || entry.FileID != fileID {
		return "", false
	}
	if ok, _ := afero.Exists(c.fs, entry.LocalPath); !ok {
		return "", false
	}
	return entry.LocalPath, true
}

// tempPath is a unique sibling of dest that is never mistaken for it.
func tempPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), fmt.Sprintf(".%s.%s.part", filepath.Base(dest), uuid.NewString()))
}

// Fetch returns a local copy of the file holding the server's current
// content. The server is asked with the cached id as a hint; when it is
// unchanged the existing copy is returned untouched. Otherwise the file is
// downloaded to a temporary path and moved into place before the entry is
// updated, so a failed or cancelled download changes nothing. downloaded
// reports whether content was transferred.
func (c *Cache) Fetch(ctx context.Context, repoName, repoID, p string, sink remote.ProgressSink) (local string, downloaded bool, err error) {
	if sink == nil {
		sink = remote.NopSink
	}
	defer c.locks.Lock(lockKey(repoID, p))()

	local, err = c.paths.ResolveLocalFilePath(ctx, c.acct, repoName, repoID, p)
	if err != nil {
		return "", false, err
	}

	var cached reconcile.Cached[string]
	entry, found, err := c.GetCachedMetadata(ctx, repoID, p)
	if err != nil {
		log.Warnw("Reading file cache entry failed", "repo", repoID, "path", p, "err", err)
	} else if found {
		if ok, _ := afero.Exists(c.fs, local); ok {
			cached = reconcile.Cached[string]{ID: entry.FileID, Value: local}
		}
	}

	tmp := tempPath(local)
	res, err := reconcile.Reconcile(ctx, cached,
		func(ctx context.Context, hint string) (string, string, error) {
			fileID, downloaded, err := c.service.DownloadFile(ctx, repoID, p, tmp, hint, sink)
			if err != nil {
				c.fs.Remove(tmp)
				return "", "", err
			}
			if hint != "" && fileID == hint {
				return fileID, "", nil
			}
			if fileID == "" {
				c.fs.Remove(tmp)
				return "", "", types.NewParseError("download", errors.New("server returned no file id"))
			}
			if sink.IsCancelled() {
				c.fs.Remove(downloaded)
				return "", "", types.ErrCancelled
			}
			return fileID, downloaded, nil
		},
		func(ctx context.Context, fileID, downloaded string) error {
			if err := c.fs.Rename(downloaded, local); err != nil {
				c.fs.Remove(downloaded)
				return types.NewStorageError("move download into place", local, err)
			}
			return c.store.SaveCachedFile(ctx, model.CachedFile{
				AccountSignature: c.acct.Signature(),
				RepoName:         repoName,
				RepoID:           repoID,
				Path:             p,
				FileID:           fileID,
				LocalPath:        local,
			})
		},
	)
	if err != nil {
		return "", false, err
	}
	if res.Fresh {
		log.Debugw("Downloaded file", "repo", repoID, "path", p, "file", res.ID)
	}
	return local, res.Fresh, nil
}

// RecordUpload updates the cache after sourcePath was uploaded into dir. An
// empty newFileID means nothing was committed and the cache is left alone.
// With copyLocally the uploaded bytes are copied into the cache so the file
// need not be downloaded again.
func (c *Cache) RecordUpload(ctx context.Context, repoName, repoID, dir, sourcePath, newFileID string, copyLocally bool) error {
	if newFileID == "" {
		log.Debugw("Upload produced no file id, cache unchanged", "repo", repoID, "source", sourcePath)
		return nil
	}
	p := path.Join(dir, filepath.Base(sourcePath))
	defer c.locks.Lock(lockKey(repoID, p))()

	local, err := c.paths.ResolveLocalFilePath(ctx, c.acct, repoName, repoID, p)
	if err != nil {
		return err
	}
	if copyLocally && filepath.Clean(sourcePath) != local {
		if err := c.copyInto(sourcePath, local); err != nil {
			return err
		}
	}
	return c.store.SaveCachedFile(ctx, model.CachedFile{
		AccountSignature: c.acct.Signature(),
		RepoName:         repoName,
		RepoID:           repoID,
		Path:             p,
		FileID:           newFileID,
		LocalPath:        local,
	})
}

func (c *Cache) copyInto(src, dest string) error {
	in, err := c.fs.Open(src)
	if err != nil {
		return types.NewStorageError("open upload source", src, err)
	}
	defer in.Close()

	tmp := tempPath(dest)
	out, err := c.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return types.NewStorageError("create cache copy", tmp, err)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		c.fs.Remove(tmp)
		return types.NewStorageError("copy into cache", dest, err)
	}
	if err := c.fs.Rename(tmp, dest); err != nil {
		c.fs.Remove(tmp)
		return types.NewStorageError("move copy into place", dest, err)
	}
	return nil
}

// Evict deletes the local copy and its entry. A missing file is fine.
func (c *Cache) Evict(ctx context.Context, entry model.CachedFile) error {
	defer c.locks.Lock(lockKey(entry.RepoID, entry.Path))()

	if entry.LocalPath != "" {
		if err := c.fs.Remove(entry.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return types.NewStorageError("remove cached file", entry.LocalPath, err)
		}
	}
	return c.store.DeleteCachedFile(ctx, entry.AccountSignature, entry.RepoID, entry.Path)
}

// List returns every cached file of the account.
func (c *Cache) List(ctx context.Context) ([]model.CachedFile, error) {
	return c.store.ListCachedFiles(ctx, c.acct.Signature())
}
