// Package coordinator answers the questions a client asks of one account
// (which repositories, what is in this directory, give me this file) from
// the local caches when possible and from the server when not, keeping the
// caches current along the way.
package coordinator

import (
	"context"
	"fmt"
	"image"
	"path"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storacha/mirror/pkg/bus"
	"github.com/storacha/mirror/pkg/direntcache"
	"github.com/storacha/mirror/pkg/filecache"
	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/pathalloc"
	"github.com/storacha/mirror/pkg/remote"
	"github.com/storacha/mirror/pkg/repocache"
	"github.com/storacha/mirror/pkg/store"
	"github.com/storacha/mirror/pkg/thumbnail"
	"github.com/storacha/mirror/pkg/types"
)

var (
	log    = logging.Logger("mirror/coordinator")
	tracer = otel.Tracer("mirror/coordinator")
)

// Dirs are the local directories a Coordinator keeps its data in.
type Dirs struct {
	// Files holds one directory per account with the cached files.
	Files string
	// Cache holds repository list snapshots.
	Cache string
	// Thumb holds generated thumbnails.
	Thumb string
}

// Coordinator is the session of one account. All its state lives in the
// instance, so several accounts can be served side by side.
type Coordinator struct {
	acct    model.Account
	service remote.Service
	paths   *pathalloc.Allocator
	repos   *repocache.Cache
	dirents *direntcache.Cache
	files   *filecache.Cache
	thumbs  *thumbnail.Maker
	bus     bus.Bus
}

func New(acct model.Account, service remote.Service, s store.Store, dirs Dirs, opts ...Option) (*Coordinator, error) {
	o := options{
		fs:     afero.NewOsFs(),
		online: remote.AlwaysOnline,
		bus:    bus.Discard,
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	repos, err := repocache.New(o.fs, dirs.Cache, acct, service, o.online)
	if err != nil {
		return nil, fmt.Errorf("creating repository cache: %w", err)
	}
	paths := pathalloc.New(o.fs, dirs.Files, s)
	thumbs := thumbnail.New(o.fs, dirs.Thumb)
	if o.maxGenerateBytes > 0 {
		thumbs.MaxGenerateBytes = o.maxGenerateBytes
	}
	if o.maxDirectBytes > 0 {
		thumbs.MaxDirectBytes = o.maxDirectBytes
	}

	return &Coordinator{
		acct:    acct,
		service: service,
		paths:   paths,
		repos:   repos,
		dirents: direntcache.New(s, service),
		files:   filecache.New(o.fs, acct, paths, s, service),
		thumbs:  thumbs,
		bus:     o.bus,
	}, nil
}

func (c *Coordinator) Account() model.Account {
	return c.acct
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// ListRepositories returns the cached list when preferCache is set and one
// exists, and otherwise asks the server. If the server gives no answer the
// previous list, if any, is returned.
func (c *Coordinator) ListRepositories(ctx context.Context, preferCache bool) (_ []model.Repository, err error) {
	ctx, span := tracer.Start(ctx, "list-repositories", trace.WithAttributes(
		attribute.Bool("prefer_cache", preferCache),
	))
	defer func() { endSpan(span, err) }()

	ev := bus.CacheEvent{Kind: bus.KindRepositories}
	if preferCache {
		if repos, ok := c.repos.LoadFromDisk(ctx); ok {
			bus.PublishCache(c.bus, true, ev)
			return repos, nil
		}
	}
	bus.PublishCache(c.bus, false, ev)

	repos, ok, err := c.repos.FetchFromServer(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		repos, _ = c.repos.LoadFromDisk(ctx)
	}
	return repos, nil
}

// RepositoryByID looks a repository up in the cached list only.
func (c *Coordinator) RepositoryByID(ctx context.Context, id string) (model.Repository, bool) {
	return c.repos.CachedByID(ctx, id)
}

// ListDirectory returns the cached listing when preferCache is set and one
// exists, and otherwise reconciles it with the server. A directory the
// server no longer has is dropped from the cache.
func (c *Coordinator) ListDirectory(ctx context.Context, repoID, p string, preferCache bool) (_ []model.Dirent, err error) {
	p = cleanPath(p)
	ctx, span := tracer.Start(ctx, "list-directory", trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("path", p),
		attribute.Bool("prefer_cache", preferCache),
	))
	defer func() { endSpan(span, err) }()

	ev := bus.CacheEvent{Kind: bus.KindDirectory, RepoID: repoID, Path: p}
	if preferCache {
		if _, dirents, ok := c.dirents.GetCached(ctx, repoID, p); ok {
			bus.PublishCache(c.bus, true, ev)
			return dirents, nil
		}
	}
	bus.PublishCache(c.bus, false, ev)

	dirents, err := c.dirents.RefreshFromServer(ctx, repoID, p)
	if types.IsNotFound(err) {
		if ierr := c.dirents.Invalidate(ctx, repoID, p); ierr != nil {
			log.Warnw("Dropping vanished directory from cache failed", "repo", repoID, "path", p, "err", ierr)
		}
	}
	return dirents, err
}

// OpenFile returns a local copy of the file matching the server's current
// revision, downloading it only when the cached copy is missing or stale.
func (c *Coordinator) OpenFile(ctx context.Context, repoName, repoID, p string, sink remote.ProgressSink) (_ string, err error) {
	p = cleanPath(p)
	ctx, span := tracer.Start(ctx, "open-file", trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("path", p),
	))
	defer func() { endSpan(span, err) }()

	local, downloaded, err := c.files.Fetch(ctx, repoName, repoID, p, c.progress(ctx, bus.Download, repoID, p, sink))
	if err != nil {
		return "", err
	}
	hit := !downloaded
	span.SetAttributes(attribute.Bool("cache_hit", hit))
	bus.PublishCache(c.bus, hit, bus.CacheEvent{Kind: bus.KindFile, RepoID: repoID, Path: p})
	return local, nil
}

// CreateDirectory creates name in parentDir. The listing the server returns
// with it replaces the cached listing of parentDir.
func (c *Coordinator) CreateDirectory(ctx context.Context, repoID, parentDir, name string) (err error) {
	return c.create(ctx, "create-directory", c.service.CreateDirectory, repoID, parentDir, name)
}

// CreateFile creates an empty file name in parentDir, updating the cached
// listing of parentDir like CreateDirectory.
func (c *Coordinator) CreateFile(ctx context.Context, repoID, parentDir, name string) (err error) {
	return c.create(ctx, "create-file", c.service.CreateFile, repoID, parentDir, name)
}

type createFunc func(ctx context.Context, repoID, parentDir, name string) (string, []byte, error)

func (c *Coordinator) create(ctx context.Context, op string, fn createFunc, repoID, parentDir, name string) (err error) {
	parentDir = cleanPath(parentDir)
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("path", path.Join(parentDir, name)),
	))
	defer func() { endSpan(span, err) }()

	dirID, listing, err := fn(ctx, repoID, parentDir, name)
	if err != nil {
		return err
	}
	if _, err := c.dirents.Save(ctx, repoID, parentDir, dirID, listing); err != nil {
		// The server state changed, so the old listing is wrong either way.
		if ierr := c.dirents.Invalidate(ctx, repoID, parentDir); ierr != nil {
			log.Warnw("Dropping stale listing failed", "repo", repoID, "path", parentDir, "err", ierr)
		}
		return fmt.Errorf("caching listing of %s: %w", parentDir, err)
	}
	return nil
}

// UploadFile uploads localSource into dir as a new file and copies it into
// the cache, so it need not be downloaded again.
func (c *Coordinator) UploadFile(ctx context.Context, repoName, repoID, dir, localSource string, sink remote.ProgressSink) error {
	return c.upload(ctx, "upload-file", c.service.UploadFile, true, repoName, repoID, dir, localSource, sink)
}

// UpdateFile replaces the file of the same name in dir. localSource is
// expected to be the cached copy itself, so nothing is copied.
func (c *Coordinator) UpdateFile(ctx context.Context, repoName, repoID, dir, localSource string, sink remote.ProgressSink) error {
	return c.upload(ctx, "update-file", c.service.UpdateFile, false, repoName, repoID, dir, localSource, sink)
}

type uploadFunc func(ctx context.Context, repoID, dir, sourcePath string, sink remote.ProgressSink) (string, error)

func (c *Coordinator) upload(ctx context.Context, op string, fn uploadFunc, copyLocally bool, repoName, repoID, dir, localSource string, sink remote.ProgressSink) (err error) {
	dir = cleanPath(dir)
	target := path.Join(dir, filepath.Base(localSource))
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("path", target),
	))
	defer func() { endSpan(span, err) }()

	fileID, err := fn(ctx, repoID, dir, localSource, c.progress(ctx, bus.Upload, repoID, target, sink))
	if err != nil {
		return err
	}
	return c.files.RecordUpload(ctx, repoName, repoID, dir, localSource, fileID, copyLocally)
}

// SetPassword unlocks an encrypted repository for this session on the
// server.
func (c *Coordinator) SetPassword(ctx context.Context, repoID, password string) (err error) {
	ctx, span := tracer.Start(ctx, "set-password", trace.WithAttributes(attribute.String("repo", repoID)))
	defer func() { endSpan(span, err) }()
	return c.service.SetPassword(ctx, repoID, password)
}

// CachedFiles lists every file cached for the account.
func (c *Coordinator) CachedFiles(ctx context.Context) (_ []model.CachedFile, err error) {
	ctx, span := tracer.Start(ctx, "cached-files")
	defer func() { endSpan(span, err) }()
	return c.files.List(ctx)
}

// CachedFile returns the cache entry of one file.
func (c *Coordinator) CachedFile(ctx context.Context, repoID, p string) (model.CachedFile, bool, error) {
	return c.files.GetCachedMetadata(ctx, repoID, cleanPath(p))
}

// EvictFile deletes a cached file and its entry.
func (c *Coordinator) EvictFile(ctx context.Context, entry model.CachedFile) (err error) {
	ctx, span := tracer.Start(ctx, "evict-file", trace.WithAttributes(
		attribute.String("repo", entry.RepoID),
		attribute.String("path", entry.Path),
	))
	defer func() { endSpan(span, err) }()
	return c.files.Evict(ctx, entry)
}

// Thumbnail returns the thumbnail of a cached file revision, generating it
// if needed. Files not cached at fileID have none.
func (c *Coordinator) Thumbnail(ctx context.Context, repoName, repoID, p, fileID string) (string, bool) {
	ctx, span := tracer.Start(ctx, "thumbnail", trace.WithAttributes(
		attribute.String("repo", repoID),
		attribute.String("path", p),
	))
	defer span.End()

	local, ok := c.files.LocalCachedFile(ctx, repoName, repoID, cleanPath(p), fileID)
	if !ok {
		return "", false
	}
	thumb, ok := c.thumbs.Generate(local, fileID)
	span.SetAttributes(attribute.Bool("generated", ok))
	return thumb, ok
}

// Preview decodes a small cached image for display as is.
func (c *Coordinator) Preview(ctx context.Context, repoName, repoID, p, fileID string) (image.Image, bool) {
	local, ok := c.files.LocalCachedFile(ctx, repoName, repoID, cleanPath(p), fileID)
	if !ok {
		return nil, false
	}
	return c.thumbs.Direct(local)
}

// progress wraps the caller's sink so transfers are published on the bus
// and stop once ctx is done.
func (c *Coordinator) progress(ctx context.Context, dir bus.TransferDirection, repoID, p string, sink remote.ProgressSink) remote.ProgressSink {
	if sink == nil {
		sink = remote.NopSink
	}
	return progressSink{
		ctx:   ctx,
		inner: sink,
		bus:   c.bus,
		event: bus.TransferProgress{Direction: dir, RepoID: repoID, Path: p},
	}
}

type progressSink struct {
	ctx   context.Context
	inner remote.ProgressSink
	bus   bus.Publisher
	event bus.TransferProgress
}

func (s progressSink) OnProgress(total int64) {
	s.inner.OnProgress(total)
	ev := s.event
	ev.Bytes = total
	s.bus.Publish(bus.TopicTransferProgress, ev)
}

func (s progressSink) IsCancelled() bool {
	return s.ctx.Err() != nil || s.inner.IsCancelled()
}
