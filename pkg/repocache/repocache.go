// Package repocache keeps the repository list of one account in memory and
// in a snapshot file, refreshed from the server on demand.
package repocache

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync/atomic"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/storacha/mirror/internal/ctxutil"
	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/remote"
	"github.com/storacha/mirror/pkg/types"
)

var log = logging.Logger("mirror/repocache")

// Cache is owned by one account session. The list is replaced as a whole,
// so readers see either the old or the new list.
type Cache struct {
	fs       afero.Fs
	snapshot string
	service  remote.Service
	online   remote.Connectivity

	list  atomic.Pointer[[]model.Repository]
	group singleflight.Group
}

// New returns an empty cache whose snapshot lives in cacheDir.
func New(fs afero.Fs, cacheDir string, acct model.Account, service remote.Service, online remote.Connectivity) (*Cache, error) {
	key, err := acct.SnapshotKey()
	if err != nil {
		return nil, err
	}
	return &Cache{
		fs:       fs,
		snapshot: filepath.Join(cacheDir, fmt.Sprintf("repos-%s.dat", key)),
		service:  service,
		online:   online,
	}, nil
}

// SnapshotPath is the file the raw listing is persisted to.
func (c *Cache) SnapshotPath() string {
	return c.snapshot
}

// Cached returns the in-memory list without touching disk.
func (c *Cache) Cached() ([]model.Repository, bool) {
	p := c.list.Load()
	if p == nil {
		return nil, false
	}
	return slices.Clone(*p), true
}

// LoadFromDisk returns the in-memory list, falling back to the snapshot. A
// snapshot that cannot be read or parsed is a miss.
func (c *Cache) LoadFromDisk(ctx context.Context) ([]model.Repository, bool) {
	if repos, ok := c.Cached(); ok {
		return repos, true
	}
	raw, err := afero.ReadFile(c.fs, c.snapshot)
	if err != nil {
		return nil, false
	}
	repos, err := model.ParseRepositories(raw)
	if err != nil {
		log.Warnw("Ignoring unreadable repository snapshot", "path", c.snapshot, "err", err)
		return nil, false
	}
	c.list.CompareAndSwap(nil, &repos)
	return slices.Clone(repos), true
}

// CachedByID looks a repository up in the cached list.
func (c *Cache) CachedByID(ctx context.Context, id string) (model.Repository, bool) {
	repos, ok := c.LoadFromDisk(ctx)
	if !ok {
		return model.Repository{}, false
	}
	for _, r := range repos {
		if r.ID == id {
			return r, true
		}
	}
	return model.Repository{}, false
}

type fetchResult struct {
	repos []model.Repository
	ok    bool
}

// FetchFromServer lists repositories on the server. When the server gives no
// answer it returns ok=false and the cache is left as it was. Concurrent
// calls share one request, which a single caller cancelling does not abort.
func (c *Cache) FetchFromServer(ctx context.Context) ([]model.Repository, bool, error) {
	if !c.online.IsNetworkReachable(ctx) {
		return nil, false, types.ErrNetworkUnavailable
	}
	res, shared, err := ctxutil.Shared(ctx, &c.group, "repos", func(ctx context.Context) (fetchResult, error) {
		raw, err := c.service.ListRepositories(ctx)
		if err != nil {
			return fetchResult{}, err
		}
		if raw == nil {
			log.Debug("Server returned no repository listing, keeping cache")
			return fetchResult{}, nil
		}
		repos, err := model.ParseRepositories(raw)
		if err != nil {
			return fetchResult{}, err
		}
		c.list.Store(&repos)
		c.persist(raw)
		return fetchResult{repos: repos, ok: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if shared {
		log.Debug("Shared in-flight repository fetch")
	}
	return slices.Clone(res.repos), res.ok, nil
}

// persist writes the snapshot. Failures are logged and dropped since the
// in-memory list is still good for this session.
func (c *Cache) persist(raw []byte) {
	dir := filepath.Dir(c.snapshot)
	if err := c.fs.MkdirAll(dir, 0o755); err != nil {
		log.Warnw("Failed to create cache dir", "path", dir, "err", err)
		return
	}
	tmp := c.snapshot + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, raw, 0o644); err != nil {
		log.Warnw("Failed to write repository snapshot", "path", tmp, "err", err)
		return
	}
	if err := c.fs.Rename(tmp, c.snapshot); err != nil {
		log.Warnw("Failed to replace repository snapshot", "path", c.snapshot, "err", err)
		c.fs.Remove(tmp)
	}
}
