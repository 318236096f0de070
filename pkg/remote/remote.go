// Package remote describes the remote library service the caches reconcile
// against, and provides an HTTP implementation of it.
package remote

import (
	"context"
	"sync"
	"time"
)

// Service is the remote library service. Methods fail with a
// types.RemoteError carrying the server's status code, or with
// types.ErrNetworkUnavailable when the server cannot be reached.
type Service interface {
	// ListRepositories returns the raw repository listing. A nil payload with
	// a nil error means the server gave no usable answer.
	ListRepositories(ctx context.Context) ([]byte, error)
	// ListDirectory returns the directory's current id. The payload is nil
	// when that id equals hintDirID.
	ListDirectory(ctx context.Context, repoID, path, hintDirID string) (dirID string, payload []byte, err error)
	// DownloadFile writes the file into destPath and returns its id. When the
	// server id equals hintFileID nothing is written and localPath is empty.
	DownloadFile(ctx context.Context, repoID, path, destPath, hintFileID string, sink ProgressSink) (fileID, localPath string, err error)
	// UploadFile adds sourcePath to dir as a new file and returns its id.
	UploadFile(ctx context.Context, repoID, dir, sourcePath string, sink ProgressSink) (string, error)
	// UpdateFile replaces the file of the same name in dir.
	UpdateFile(ctx context.Context, repoID, dir, sourcePath string, sink ProgressSink) (string, error)
	// CreateDirectory and CreateFile return the parent's new id and listing.
	CreateDirectory(ctx context.Context, repoID, parentDir, name string) (dirID string, listing []byte, err error)
	CreateFile(ctx context.Context, repoID, parentDir, name string) (dirID string, listing []byte, err error)
	SetPassword(ctx context.Context, repoID, password string) error
}

// ProgressSink receives transfer progress and is polled for cancellation
// between chunks.
type ProgressSink interface {
	OnProgress(totalBytes int64)
	IsCancelled() bool
}

type nopSink struct{}

func (nopSink) OnProgress(int64)  {}
func (nopSink) IsCancelled() bool { return false }

// NopSink ignores progress and never cancels.
var NopSink ProgressSink = nopSink{}

// FuncSink reports progress to OnProgressFn and cancels when CancelledFn
// returns true. Either may be nil.
type FuncSink struct {
	OnProgressFn  func(totalBytes int64)
	IsCancelledFn func() bool
}

func (s FuncSink) OnProgress(total int64) {
	if s.OnProgressFn != nil {
		s.OnProgressFn(total)
	}
}

func (s FuncSink) IsCancelled() bool {
	return s.IsCancelledFn != nil && s.IsCancelledFn()
}

// ContextSink cancels once ctx is done and forwards progress to fn, which
// may be nil.
func ContextSink(ctx context.Context, fn func(totalBytes int64)) ProgressSink {
	return FuncSink{
		OnProgressFn:  fn,
		IsCancelledFn: func() bool { return ctx.Err() != nil },
	}
}

// Connectivity reports whether the server is worth trying.
type Connectivity interface {
	IsNetworkReachable(ctx context.Context) bool
}

type alwaysOnline struct{}

func (alwaysOnline) IsNetworkReachable(context.Context) bool { return true }

var AlwaysOnline Connectivity = alwaysOnline{}

// PingFunc checks the server once.
type PingFunc func(ctx context.Context) error

// Prober remembers the outcome of a ping for Interval before pinging again.
type Prober struct {
	Ping     PingFunc
	Interval time.Duration

	mu      sync.Mutex
	checked time.Time
	online  bool
	now     func() time.Time
}

func NewProber(ping PingFunc, interval time.Duration) *Prober {
	return &Prober{Ping: ping, Interval: interval, now: time.Now}
}

func (p *Prober) IsNetworkReachable(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.now == nil {
		p.now = time.Now
	}
	if !p.checked.IsZero() && p.now().Sub(p.checked) < p.Interval {
		return p.online
	}
	err := p.Ping(ctx)
	if err != nil {
		log.Debugw("Server unreachable", "err", err)
	}
	p.online = err == nil
	p.checked = p.now()
	return p.online
}
