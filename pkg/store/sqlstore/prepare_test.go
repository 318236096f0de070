package sqlstore

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func TestPrepareConcurrentSameQuery(t *testing.T) {
	s, err := Open(t.Context(), filepath.Join(t.TempDir(), "index.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	const query = `SELECT dir_id FROM dirents_cache WHERE repo_id = ? AND path = ?`
	const callers = 8

	var wg sync.WaitGroup
	stmts := make([]*sqlx.Stmt, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stmts[i], errs[i] = s.prepare(t.Context(), query)
		}()
	}
	wg.Wait()

	cached, ok := s.preparedStmts.Peek(query)
	require.True(t, ok)
	require.Equal(t, 1, s.preparedStmts.Len())
	for i := range callers {
		require.NoError(t, errs[i])
		require.Same(t, cached, stmts[i])
	}

	var dirID string
	err = cached.GetContext(t.Context(), &dirID, "r1", "/")
	require.ErrorIs(t, err, sql.ErrNoRows)
}
