package coordinator

import (
	"github.com/spf13/afero"

	"github.com/storacha/mirror/pkg/bus"
	"github.com/storacha/mirror/pkg/remote"
)

// Option is an option configuring a Coordinator.
type Option func(o *options) error

type options struct {
	fs               afero.Fs
	online           remote.Connectivity
	bus              bus.Bus
	maxGenerateBytes int64
	maxDirectBytes   int64
}

// WithFs sets the filesystem holding cached files, snapshots and
// thumbnails. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) error {
		o.fs = fs
		return nil
	}
}

// WithConnectivity sets the check consulted before unconditional server
// requests. By default the server is assumed reachable.
func WithConnectivity(online remote.Connectivity) Option {
	return func(o *options) error {
		o.online = online
		return nil
	}
}

// WithBus sets where cache and transfer events are published.
func WithBus(b bus.Bus) Option {
	return func(o *options) error {
		o.bus = b
		return nil
	}
}

// WithThumbnailLimits overrides the file size limits for generating
// thumbnails and for showing images directly. Zero keeps the default.
func WithThumbnailLimits(maxGenerate, maxDirect int64) Option {
	return func(o *options) error {
		o.maxGenerateBytes = maxGenerate
		o.maxDirectBytes = maxDirect
		return nil
	}
}
