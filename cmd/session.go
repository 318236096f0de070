package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/storacha/mirror/pkg/bus"
	"github.com/storacha/mirror/pkg/config"
	"github.com/storacha/mirror/pkg/coordinator"
	"github.com/storacha/mirror/pkg/remote"
	"github.com/storacha/mirror/pkg/store"
	"github.com/storacha/mirror/pkg/store/badgerstore"
	"github.com/storacha/mirror/pkg/store/sqlstore"
)

// session is everything a command needs to talk to one account.
type session struct {
	cfg    config.Config
	coord  *coordinator.Coordinator
	events *bus.EventBus
	store  store.Store
	fs     afero.Fs
}

func (s *session) Close() error {
	return s.store.Close()
}

func openStore(ctx context.Context, repo config.RepoConfig) (store.Store, error) {
	if repo.Backend == config.BackendBadger {
		return badgerstore.Open(ctx, badgerstore.Config{Dir: repo.BadgerDir()})
	}
	return sqlstore.Open(ctx, repo.DatabasePath(), repo.DatabaseURL)
}

// openSession loads the config and wires the caches of the configured
// account. Close the session when done.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	cfg, err := config.Load[config.Config]()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.Repo.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	maxGenerate, err := cfg.Thumbnail.MaxGenerateBytes()
	if err != nil {
		return nil, err
	}
	maxDirect, err := cfg.Thumbnail.MaxDirectBytes()
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	client, err := remote.NewHTTPClient(cfg.Account.Server, cfg.Account.Token,
		remote.WithTimeout(cfg.Network.Timeout),
		remote.WithFs(fs),
	)
	if err != nil {
		return nil, err
	}

	s, err := openStore(ctx, cfg.Repo)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	events := bus.New()
	logCache := func(hit bool) func(bus.CacheEvent) {
		return func(ev bus.CacheEvent) { log.Debugw("Cache lookup", "hit", hit, "what", ev.String()) }
	}
	if err := errors.Join(
		events.Subscribe(bus.TopicCacheHit, logCache(true)),
		events.Subscribe(bus.TopicCacheMiss, logCache(false)),
	); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	coord, err := coordinator.New(
		cfg.Account.Account(),
		client,
		s,
		coordinator.Dirs{
			Files: cfg.Repo.FilesDir(),
			Cache: cfg.Repo.CacheDir(),
			Thumb: cfg.Repo.ThumbDir(),
		},
		coordinator.WithFs(fs),
		coordinator.WithConnectivity(remote.NewProber(client.Ping, cfg.Network.ProbeInterval)),
		coordinator.WithBus(events),
		coordinator.WithThumbnailLimits(maxGenerate, maxDirect),
	)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	log.Debugw("Session opened", "account", cfg.Account.Account(), "backend", cfg.Repo.Backend)

	return &session{cfg: cfg, coord: coord, events: events, store: s, fs: fs}, nil
}

// withSession runs fn with an open session and closes it afterwards.
func withSession(cmd *cobra.Command, fn func(s *session) error) (err error) {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.Close())
	}()
	return fn(s)
}
