// Package direntcache caches directory listings per repository and path,
// revalidating them against the server with the last known directory id.
package direntcache

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/singleflight"

	"github.com/storacha/mirror/internal/ctxutil"
	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/reconcile"
	"github.com/storacha/mirror/pkg/remote"
	"github.com/storacha/mirror/pkg/store"
)

var log = logging.Logger("mirror/direntcache")

type Cache struct {
	store   store.Dirents
	service remote.Service
	group   singleflight.Group
}

func New(s store.Dirents, service remote.Service) *Cache {
	return &Cache{store: s, service: service}
}

type listing struct {
	payload []byte
	dirents []model.Dirent
}

// GetCached returns the stored listing and the directory id it belongs to.
// Missing or unreadable entries are a miss.
func (c *Cache) GetCached(ctx context.Context, repoID, path string) (string, []model.Dirent, bool) {
	cached, ok := c.load(ctx, repoID, path)
	if !ok {
		return "", nil, false
	}
	return cached.ID, cached.Value.dirents, true
}

func (c *Cache) load(ctx context.Context, repoID, path string) (reconcile.Cached[listing], bool) {
	entry, found, err := c.store.GetDirents(ctx, repoID, path)
	if err != nil {
		log.Warnw("Reading cached dirents failed", "repo", repoID, "path", path, "err", err)
		return reconcile.Cached[listing]{}, false
	}
	if !found || entry.DirID == "" {
		return reconcile.Cached[listing]{}, false
	}
	dirents, err := model.ParseDirents([]byte(entry.Payload))
	if err != nil {
		log.Warnw("Ignoring unreadable cached dirents", "repo", repoID, "path", path, "err", err)
		return reconcile.Cached[listing]{}, false
	}
	return reconcile.Cached[listing]{
		ID:    entry.DirID,
		Value: listing{payload: []byte(entry.Payload), dirents: dirents},
	}, true
}

// RefreshFromServer asks the server for the directory, offering the cached
// id. An unchanged directory is served from the cache without writing. A
// changed one is parsed and then stored. Concurrent refreshes of one
// directory share a request that outlives any one caller's cancellation.
func (c *Cache) RefreshFromServer(ctx context.Context, repoID, path string) ([]model.Dirent, error) {
	dirents, _, err := ctxutil.Shared(ctx, &c.group, repoID+"\x00"+path, func(ctx context.Context) ([]model.Dirent, error) {
		cached, _ := c.load(ctx, repoID, path)
		res, err := reconcile.Reconcile(ctx, cached,
			func(ctx context.Context, hint string) (string, listing, error) {
				dirID, payload, err := c.service.ListDirectory(ctx, repoID, path, hint)
				if err != nil {
					return "", listing{}, err
				}
				if hint != "" && dirID == hint {
					return dirID, listing{}, nil
				}
				dirents, err := model.ParseDirents(payload)
				if err != nil {
					return "", listing{}, err
				}
				return dirID, listing{payload: payload, dirents: dirents}, nil
			},
			func(ctx context.Context, dirID string, l listing) error {
				return c.store.SaveDirents(ctx, model.DirentsEntry{
					RepoID:  repoID,
					Path:    path,
					DirID:   dirID,
					Payload: string(l.payload),
				})
			},
		)
		if err != nil {
			return nil, err
		}
		log.Debugw("Refreshed dirents", "repo", repoID, "path", path, "dir", res.ID, "changed", res.Fresh)
		return res.Value.dirents, nil
	})
	if err != nil {
		return nil, err
	}
	return dirents, nil
}

// Save stores a listing the server returned alongside a mutation. The
// payload must parse, so a bad response never replaces a good entry.
func (c *Cache) Save(ctx context.Context, repoID, path, dirID string, payload []byte) ([]model.Dirent, error) {
	dirents, err := model.ParseDirents(payload)
	if err != nil {
		return nil, err
	}
	err = c.store.SaveDirents(ctx, model.DirentsEntry{
		RepoID:  repoID,
		Path:    path,
		DirID:   dirID,
		Payload: string(payload),
	})
	if err != nil {
		return nil, err
	}
	return dirents, nil
}

// Invalidate drops the entry for a directory, e.g. after the server reported
// it gone.
func (c *Cache) Invalidate(ctx context.Context, repoID, path string) error {
	return c.store.DeleteDirents(ctx, repoID, path)
}
