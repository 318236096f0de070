// Package storetest holds the behaviour every store.Store must have, and
// helpers for tests in other packages that need a store.
package storetest

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/store"
	"github.com/storacha/mirror/pkg/store/badgerstore"
	"github.com/storacha/mirror/pkg/store/sqlstore"
)

// NewSQLiteStore opens a fresh SQLite backed store in a temporary directory.
func NewSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), fmt.Sprintf("index_%d.db", time.Now().UnixNano()))
	s, err := sqlstore.Open(t.Context(), dbPath, "")
	require.NoError(t, err, "failed to open SQLite store")
	t.Cleanup(func() { s.Close() })
	return s
}

// NewBadgerStore opens a fresh in-memory BadgerDB store.
func NewBadgerStore(t *testing.T) store.Store {
	t.Helper()
	s, err := badgerstore.Open(t.Context(), badgerstore.Config{InMemory: true})
	require.NoError(t, err, "failed to open badger store")
	t.Cleanup(func() { s.Close() })
	return s
}

// Run exercises a store implementation.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	const acct = "foo@example.com@cloud.example.com"

	t.Run("repo dirs", func(t *testing.T) {
		s := newStore(t)

		_, found, err := s.GetRepoDir(t.Context(), acct, "r1")
		require.NoError(t, err)
		require.False(t, found)

		dir := model.RepoDir{AccountSignature: acct, RepoName: "Docs", RepoID: "r1", Path: "/data/Docs"}
		require.NoError(t, s.SaveRepoDir(t.Context(), dir))

		got, found, err := s.GetRepoDir(t.Context(), acct, "r1")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, dir, got)

		claimed, err := s.RepoDirClaimed(t.Context(), acct, "/data/Docs")
		require.NoError(t, err)
		require.True(t, claimed)

		claimed, err = s.RepoDirClaimed(t.Context(), "someone@else", "/data/Docs")
		require.NoError(t, err)
		require.False(t, claimed)

		require.NoError(t, s.SaveRepoDir(t.Context(), model.RepoDir{AccountSignature: acct, RepoName: "Docs", RepoID: "r2", Path: "/data/Docs (1)"}))
		dirs, err := s.ListRepoDirs(t.Context(), acct)
		require.NoError(t, err)
		require.Len(t, dirs, 2)
		require.Equal(t, "/data/Docs", dirs[0].Path)
		require.Equal(t, "/data/Docs (1)", dirs[1].Path)
	})

	t.Run("dirents round trip", func(t *testing.T) {
		s := newStore(t)

		entry := model.DirentsEntry{RepoID: "r1", Path: "/", DirID: "d1", Payload: `[{"id":"f1","name":"a","type":"file"}]`}
		require.NoError(t, s.SaveDirents(t.Context(), entry))

		got, found, err := s.GetDirents(t.Context(), "r1", "/")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, entry, got)

		entry.DirID = "d2"
		entry.Payload = "[]"
		require.NoError(t, s.SaveDirents(t.Context(), entry))
		got, _, err = s.GetDirents(t.Context(), "r1", "/")
		require.NoError(t, err)
		require.Equal(t, "d2", got.DirID)
		require.Equal(t, "[]", got.Payload)

		require.NoError(t, s.DeleteDirents(t.Context(), "r1", "/"))
		_, found, err = s.GetDirents(t.Context(), "r1", "/")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("cached files", func(t *testing.T) {
		s := newStore(t)

		file := model.CachedFile{AccountSignature: acct, RepoName: "Docs", RepoID: "r1", Path: "/a.txt", FileID: "f1", LocalPath: "/data/Docs/a.txt"}
		require.NoError(t, s.SaveCachedFile(t.Context(), file))
		require.NoError(t, s.SaveCachedFile(t.Context(), model.CachedFile{AccountSignature: acct, RepoName: "Docs", RepoID: "r1", Path: "/b.txt", FileID: "f2", LocalPath: "/data/Docs/b.txt"}))
		require.NoError(t, s.SaveCachedFile(t.Context(), model.CachedFile{AccountSignature: "other", RepoName: "Docs", RepoID: "r1", Path: "/a.txt", FileID: "f9", LocalPath: "/x"}))

		got, found, err := s.GetCachedFile(t.Context(), acct, "r1", "/a.txt")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, file, got)

		files, err := s.ListCachedFiles(t.Context(), acct)
		require.NoError(t, err)
		require.Len(t, files, 2)
		require.Equal(t, "/a.txt", files[0].Path)

		require.NoError(t, s.DeleteCachedFile(t.Context(), acct, "r1", "/a.txt"))
		_, found, err = s.GetCachedFile(t.Context(), acct, "r1", "/a.txt")
		require.NoError(t, err)
		require.False(t, found)

		require.NoError(t, s.DeleteCachedFile(t.Context(), acct, "r1", "/missing"))
	})

	t.Run("concurrent writers to one key never mix fields", func(t *testing.T) {
		s := newStore(t)

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := fmt.Sprintf("d%d", i)
				err := s.SaveDirents(t.Context(), model.DirentsEntry{RepoID: "r1", Path: "/", DirID: id, Payload: "payload-" + id})
				require.NoError(t, err)
			}()
		}
		wg.Wait()

		got, found, err := s.GetDirents(t.Context(), "r1", "/")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "payload-"+got.DirID, got.Payload)
	})
}
