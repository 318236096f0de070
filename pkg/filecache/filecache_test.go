package filecache_test

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/filecache"
	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/pathalloc"
	"github.com/storacha/mirror/pkg/remote"
	"github.com/storacha/mirror/pkg/remote/remotetest"
	"github.com/storacha/mirror/pkg/store/storetest"
	"github.com/storacha/mirror/pkg/types"
)

var acct = model.NewAccount("https://cloud.example.com", "foo@example.com", "tok")

type env struct {
	cache *filecache.Cache
	fake  *remotetest.Fake
	fs    afero.Fs
	paths *pathalloc.Allocator
}

func setup(t *testing.T) env {
	fs := afero.NewMemMapFs()
	s := storetest.NewSQLiteStore(t)
	paths := pathalloc.New(fs, "/data/files", s)
	fake := remotetest.NewFake(fs)
	return env{
		cache: filecache.New(fs, acct, paths, s, fake),
		fake:  fake,
		fs:    fs,
		paths: paths,
	}
}

func readFile(t *testing.T, fs afero.Fs, p string) string {
	b, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	return string(b)
}

// leftovers lists temporary download files in dir.
func leftovers(t *testing.T, fs afero.Fs, dir string) []string {
	infos, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	var out []string
	for _, info := range infos {
		if strings.HasSuffix(info.Name(), ".part") {
			out = append(out, info.Name())
		}
	}
	return out
}

func TestFetch(t *testing.T) {
	t.Run("second fetch without change does not download", func(t *testing.T) {
		e := setup(t)
		e.fake.SetFile("r1", "/docs/a.txt", "f1", []byte("hello"))

		first, downloaded, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/docs/a.txt", nil)
		require.NoError(t, err)
		require.True(t, downloaded)
		require.Equal(t, "hello", readFile(t, e.fs, first))

		second, downloaded, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/docs/a.txt", nil)
		require.NoError(t, err)
		require.False(t, downloaded)
		require.Equal(t, first, second)
		require.Equal(t, 1, e.fake.Downloads())

		entry, found, err := e.cache.GetCachedMetadata(t.Context(), "r1", "/docs/a.txt")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "f1", entry.FileID)
		require.Equal(t, first, entry.LocalPath)
	})

	t.Run("changed file is downloaded once and the entry updated", func(t *testing.T) {
		e := setup(t)
		e.fake.SetFile("r1", "/a.txt", "f1", []byte("v1"))
		local, _, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/a.txt", nil)
		require.NoError(t, err)

		e.fake.SetFile("r1", "/a.txt", "f2", []byte("version two"))
		again, _, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/a.txt", nil)
		require.NoError(t, err)
		require.Equal(t, local, again)
		require.Equal(t, "version two", readFile(t, e.fs, again))
		require.Equal(t, 2, e.fake.Downloads())

		entry, _, err := e.cache.GetCachedMetadata(t.Context(), "r1", "/a.txt")
		require.NoError(t, err)
		require.Equal(t, "f2", entry.FileID)
		require.True(t, e.cache.IsLocalCopyValid(t.Context(), "Docs", "r1", "/a.txt", "f2"))
		require.False(t, e.cache.IsLocalCopyValid(t.Context(), "Docs", "r1", "/a.txt", "f1"))
	})

	t.Run("locally deleted copy is downloaded again", func(t *testing.T) {
		e := setup(t)
		e.fake.SetFile("r1", "/a.txt", "f1", []byte("hello"))
		local, _, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/a.txt", nil)
		require.NoError(t, err)
		require.NoError(t, e.fs.Remove(local))
		require.False(t, e.cache.IsLocalCopyValid(t.Context(), "Docs", "r1", "/a.txt", "f1"))

		_, downloaded, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/a.txt", nil)
		require.NoError(t, err)
		require.True(t, downloaded)
		require.Equal(t, 2, e.fake.Downloads())
		require.Equal(t, "hello", readFile(t, e.fs, local))
	})

	t.Run("cancelled download leaves no entry and no file", func(t *testing.T) {
		e := setup(t)
		e.fake.SetFile("r1", "/big.bin", "f1", []byte(strings.Repeat("x", 64)))

		var progressed int64
		sink := remote.FuncSink{
			OnProgressFn:  func(n int64) { progressed = n },
			IsCancelledFn: func() bool { return progressed >= 8 },
		}
		_, _, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/big.bin", sink)
		require.ErrorIs(t, err, types.ErrCancelled)
		require.Positive(t, progressed)

		_, found, err := e.cache.GetCachedMetadata(t.Context(), "r1", "/big.bin")
		require.NoError(t, err)
		require.False(t, found)

		local, err := e.paths.ResolveLocalFilePath(t.Context(), acct, "Docs", "r1", "/big.bin")
		require.NoError(t, err)
		exists, err := afero.Exists(e.fs, local)
		require.NoError(t, err)
		require.False(t, exists)
		require.Empty(t, leftovers(t, e.fs, filepath.Dir(local)))
	})

	t.Run("cancelling a refresh keeps the previous copy", func(t *testing.T) {
		e := setup(t)
		e.fake.SetFile("r1", "/a.txt", "f1", []byte("old content"))
		local, _, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/a.txt", nil)
		require.NoError(t, err)

		e.fake.SetFile("r1", "/a.txt", "f2", []byte("new content that is longer"))
		cancelled := remote.FuncSink{IsCancelledFn: func() bool { return true }}
		_, _, err = e.cache.Fetch(t.Context(), "Docs", "r1", "/a.txt", cancelled)
		require.ErrorIs(t, err, types.ErrCancelled)

		require.Equal(t, "old content", readFile(t, e.fs, local))
		entry, _, err := e.cache.GetCachedMetadata(t.Context(), "r1", "/a.txt")
		require.NoError(t, err)
		require.Equal(t, "f1", entry.FileID)
	})

	t.Run("remote errors propagate", func(t *testing.T) {
		e := setup(t)
		_, _, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/missing.txt", nil)
		require.True(t, types.IsNotFound(err))

		e.fake.Fail(remotetest.MethodDownloadFile, types.ErrNetworkUnavailable)
		_, _, err = e.cache.Fetch(t.Context(), "Docs", "r1", "/missing.txt", nil)
		require.ErrorIs(t, err, types.ErrNetworkUnavailable)
	})

	t.Run("concurrent fetches of one file download once", func(t *testing.T) {
		e := setup(t)
		e.fake.SetFile("r1", "/a.txt", "f1", []byte("hello"))

		var wg sync.WaitGroup
		errs := make(chan error, 5)
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/a.txt", nil)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, 1, e.fake.Downloads())
	})
}

func TestRecordUpload(t *testing.T) {
	t.Run("new upload is copied into the cache", func(t *testing.T) {
		e := setup(t)
		require.NoError(t, afero.WriteFile(e.fs, "/home/me/report.pdf", []byte("pdf"), 0o644))

		require.NoError(t, e.cache.RecordUpload(t.Context(), "Docs", "r1", "/work", "/home/me/report.pdf", "f9", true))

		local, ok := e.cache.LocalCachedFile(t.Context(), "Docs", "r1", "/work/report.pdf", "f9")
		require.True(t, ok)
		require.Equal(t, "pdf", readFile(t, e.fs, local))
	})

	t.Run("update does not copy", func(t *testing.T) {
		e := setup(t)
		local, err := e.paths.ResolveLocalFilePath(t.Context(), acct, "Docs", "r1", "/report.pdf")
		require.NoError(t, err)
		require.NoError(t, afero.WriteFile(e.fs, local, []byte("edited"), 0o644))

		require.NoError(t, e.cache.RecordUpload(t.Context(), "Docs", "r1", "/", local, "f10", false))
		entry, found, err := e.cache.GetCachedMetadata(t.Context(), "r1", "/report.pdf")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "f10", entry.FileID)
		require.Equal(t, local, entry.LocalPath)
		require.Equal(t, "edited", readFile(t, e.fs, local))
	})

	t.Run("empty id leaves the cache untouched", func(t *testing.T) {
		e := setup(t)
		require.NoError(t, afero.WriteFile(e.fs, "/home/me/a.txt", []byte("a"), 0o644))

		require.NoError(t, e.cache.RecordUpload(t.Context(), "Docs", "r1", "/", "/home/me/a.txt", "", true))
		files, err := e.cache.List(t.Context())
		require.NoError(t, err)
		require.Empty(t, files)
	})

	t.Run("missing source is a storage error", func(t *testing.T) {
		e := setup(t)
		err := e.cache.RecordUpload(t.Context(), "Docs", "r1", "/", "/nope.txt", "f1", true)
		var storageErr types.StorageError
		require.ErrorAs(t, err, &storageErr)
		files, err := e.cache.List(t.Context())
		require.NoError(t, err)
		require.Empty(t, files)
	})
}

func TestEvict(t *testing.T) {
	e := setup(t)
	e.fake.SetFile("r1", "/a.txt", "f1", []byte("hello"))
	local, _, err := e.cache.Fetch(t.Context(), "Docs", "r1", "/a.txt", nil)
	require.NoError(t, err)

	files, err := e.cache.List(t.Context())
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, e.cache.Evict(t.Context(), files[0]))
	exists, err := afero.Exists(e.fs, local)
	require.NoError(t, err)
	require.False(t, exists)
	files, err = e.cache.List(t.Context())
	require.NoError(t, err)
	require.Empty(t, files)

	// Evicting again, with the file already gone, is fine.
	require.NoError(t, e.cache.Evict(t.Context(), model.CachedFile{
		AccountSignature: acct.Signature(), RepoID: "r1", Path: "/a.txt", LocalPath: local,
	}))
}
