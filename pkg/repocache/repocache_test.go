package repocache_test

import (
	"context"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/remote"
	"github.com/storacha/mirror/pkg/remote/remotetest"
	"github.com/storacha/mirror/pkg/repocache"
	"github.com/storacha/mirror/pkg/types"
)

var acct = model.NewAccount("https://cloud.example.com", "foo@example.com", "tok")

type offline struct{}

func (offline) IsNetworkReachable(context.Context) bool { return false }

func newCache(t *testing.T, fs afero.Fs, fake *remotetest.Fake, online remote.Connectivity) *repocache.Cache {
	c, err := repocache.New(fs, "/data/cache", acct, fake, online)
	require.NoError(t, err)
	return c
}

func TestFetchFromServer(t *testing.T) {
	t.Run("replaces the list and writes the snapshot", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		fake.SetRepoList(model.Repository{ID: "r1", Name: "Docs"}, model.Repository{ID: "r2", Name: "Docs"})
		c := newCache(t, fs, fake, remote.AlwaysOnline)

		repos, ok, err := c.FetchFromServer(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, repos, 2)

		cached, ok := c.Cached()
		require.True(t, ok)
		require.Equal(t, repos, cached)

		raw, err := afero.ReadFile(fs, c.SnapshotPath())
		require.NoError(t, err)
		require.Equal(t, fake.Repos(), raw)
	})

	t.Run("cancelled caller gets ErrCancelled and leaves the cache alone", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		fake.SetRepoList(model.Repository{ID: "r1", Name: "Docs"})
		c := newCache(t, fs, fake, remote.AlwaysOnline)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, _, err := c.FetchFromServer(ctx)
		require.ErrorIs(t, err, types.ErrCancelled)
		require.ErrorIs(t, err, context.Canceled)
		_, ok := c.Cached()
		require.False(t, ok)
	})

	t.Run("offline fails before any request", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		c := newCache(t, fs, fake, offline{})

		_, _, err := c.FetchFromServer(t.Context())
		require.ErrorIs(t, err, types.ErrNetworkUnavailable)
		require.Zero(t, fake.Calls(remotetest.MethodListRepositories))
	})

	t.Run("no answer keeps the previous list", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		fake.SetRepoList(model.Repository{ID: "r1", Name: "Docs"})
		c := newCache(t, fs, fake, remote.AlwaysOnline)
		_, _, err := c.FetchFromServer(t.Context())
		require.NoError(t, err)

		fake.SetRepos(nil)
		repos, ok, err := c.FetchFromServer(t.Context())
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, repos)

		cached, ok := c.Cached()
		require.True(t, ok)
		require.Len(t, cached, 1)
	})

	t.Run("empty listing is a valid empty list", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		fake.SetRepoList(model.Repository{ID: "r1", Name: "Docs"})
		c := newCache(t, fs, fake, remote.AlwaysOnline)
		_, _, err := c.FetchFromServer(t.Context())
		require.NoError(t, err)

		fake.SetRepos([]byte("[]"))
		repos, ok, err := c.FetchFromServer(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
		require.Empty(t, repos)

		cached, ok := c.Cached()
		require.True(t, ok)
		require.Empty(t, cached)
	})

	t.Run("malformed listing is a parse error and keeps state", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		fake.SetRepoList(model.Repository{ID: "r1", Name: "Docs"})
		c := newCache(t, fs, fake, remote.AlwaysOnline)
		_, _, err := c.FetchFromServer(t.Context())
		require.NoError(t, err)
		before, err := afero.ReadFile(fs, c.SnapshotPath())
		require.NoError(t, err)

		fake.SetRepos([]byte(`{"oops"`))
		_, _, err = c.FetchFromServer(t.Context())
		var parseErr types.ParseError
		require.ErrorAs(t, err, &parseErr)

		cached, ok := c.Cached()
		require.True(t, ok)
		require.Len(t, cached, 1)
		after, err := afero.ReadFile(fs, c.SnapshotPath())
		require.NoError(t, err)
		require.Equal(t, before, after)
	})

	t.Run("remote errors propagate", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		fake.Fail(remotetest.MethodListRepositories, types.NewRemoteError(500, "boom"))
		c := newCache(t, fs, fake, remote.AlwaysOnline)

		_, _, err := c.FetchFromServer(t.Context())
		var remoteErr types.RemoteError
		require.ErrorAs(t, err, &remoteErr)
		require.Equal(t, 500, remoteErr.Code)
	})

	t.Run("snapshot write failure does not fail the fetch", func(t *testing.T) {
		mem := afero.NewMemMapFs()
		fake := remotetest.NewFake(mem)
		fake.SetRepoList(model.Repository{ID: "r1", Name: "Docs"})
		c := newCache(t, afero.NewReadOnlyFs(mem), fake, remote.AlwaysOnline)

		repos, ok, err := c.FetchFromServer(t.Context())
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, repos, 1)
	})

	t.Run("concurrent readers never see a partial list", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		fake.SetRepoList(model.Repository{ID: "r1"}, model.Repository{ID: "r2"})
		c := newCache(t, fs, fake, remote.AlwaysOnline)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _, err := c.FetchFromServer(t.Context())
				require.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				if repos, ok := c.Cached(); ok {
					require.Len(t, repos, 2)
				}
			}()
		}
		wg.Wait()
	})
}

func TestLoadFromDisk(t *testing.T) {
	t.Run("a new session reads the previous snapshot", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		fake := remotetest.NewFake(fs)
		fake.SetRepoList(model.Repository{ID: "r1", Name: "Docs"})
		first := newCache(t, fs, fake, remote.AlwaysOnline)
		_, _, err := first.FetchFromServer(t.Context())
		require.NoError(t, err)

		second := newCache(t, fs, fake, remote.AlwaysOnline)
		_, ok := second.Cached()
		require.False(t, ok)

		repos, ok := second.LoadFromDisk(t.Context())
		require.True(t, ok)
		require.Len(t, repos, 1)

		repo, ok := second.CachedByID(t.Context(), "r1")
		require.True(t, ok)
		require.Equal(t, "Docs", repo.Name)
		_, ok = second.CachedByID(t.Context(), "r9")
		require.False(t, ok)
		require.Equal(t, 1, fake.Calls(remotetest.MethodListRepositories))
	})

	t.Run("corrupt snapshot is a miss", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		c := newCache(t, fs, remotetest.NewFake(fs), remote.AlwaysOnline)
		require.NoError(t, afero.WriteFile(fs, c.SnapshotPath(), []byte("not json"), 0o644))

		_, ok := c.LoadFromDisk(t.Context())
		require.False(t, ok)
	})

	t.Run("missing snapshot is a miss", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		c := newCache(t, fs, remotetest.NewFake(fs), remote.AlwaysOnline)
		_, ok := c.LoadFromDisk(t.Context())
		require.False(t, ok)
	})
}

func TestSnapshotPathPerAccount(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := remotetest.NewFake(fs)
	a, err := repocache.New(fs, "/c", acct, fake, remote.AlwaysOnline)
	require.NoError(t, err)
	b, err := repocache.New(fs, "/c", model.NewAccount("https://cloud.example.com", "bar@example.com", ""), fake, remote.AlwaysOnline)
	require.NoError(t, err)
	require.NotEqual(t, a.SnapshotPath(), b.SnapshotPath())
}
