// Package sqlstore implements store.Store on SQLite, or PostgreSQL when
// given a postgres URL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/storacha/mirror/internal/keylock"
	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/store"
	"github.com/storacha/mirror/pkg/types"
)

var log = logging.Logger("mirror/store/sqlstore")

const (
	defaultJournalMode = "WAL"
	defaultSynchronous = "NORMAL"
	defaultBusyTimeout = 30 * time.Second

	DefaultPreparedStmtCacheSize = 64
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db            *sqlx.DB
	dialect       Dialect
	preparedStmts *lru.Cache[string, *sqlx.Stmt]
	keys          *keylock.Map
}

// Open opens the index at dbPath (SQLite) or databaseURL (PostgreSQL, when it
// is a postgres:// URL) and applies pending migrations.
func Open(ctx context.Context, dbPath, databaseURL string) (*Store, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	if isPostgres(databaseURL) {
		dialect = DialectPostgres
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres index: %w", err)
		}
	} else {
		dialect = DialectSQLite
		pragmas := []string{
			fmt.Sprintf("_pragma=journal_mode(%s)", defaultJournalMode),
			fmt.Sprintf("_pragma=busy_timeout(%d)", defaultBusyTimeout.Milliseconds()),
			fmt.Sprintf("_pragma=synchronous(%s)", defaultSynchronous),
		}
		db, err = sql.Open("sqlite", fmt.Sprintf("file:%s?%s", dbPath, strings.Join(pragmas, "&")))
		if err != nil {
			return nil, fmt.Errorf("opening SQLite index at %s: %w", dbPath, err)
		}
		// modernc sqlite deadlocks on its internal locks with more than one
		// connection under write load.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, dialect)
}

// New wraps an already migrated database.
func New(db *sql.DB, dialect Dialect) (*Store, error) {
	cache, err := lru.NewWithEvict(DefaultPreparedStmtCacheSize, func(_ string, stmt *sqlx.Stmt) {
		stmt.Close()
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		db:            sqlx.NewDb(db, string(dialect)),
		dialect:       dialect,
		preparedStmts: cache,
		keys:          keylock.New(),
	}, nil
}

func isPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

func (s *Store) prepare(ctx context.Context, query string) (*sqlx.Stmt, error) {
	if stmt, ok := s.preparedStmts.Get(query); ok {
		return stmt, nil
	}
	stmt, err := s.db.PreparexContext(ctx, s.db.Rebind(query))
	if err != nil {
		return nil, err
	}
	// Another caller may have prepared the same query meanwhile. Keep theirs.
	if existing, ok, _ := s.preparedStmts.PeekOrAdd(query, stmt); ok {
		stmt.Close()
		return existing, nil
	}
	return stmt, nil
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return false, err
	}
	err = stmt.GetContext(ctx, dest, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, args...)
	return err
}

func (s *Store) GetRepoDir(ctx context.Context, account, repoID string) (model.RepoDir, bool, error) {
	var dir model.RepoDir
	found, err := s.get(ctx, &dir,
		`SELECT account, repo_name, repo_id, path FROM repo_dirs WHERE account = ? AND repo_id = ?`,
		account, repoID,
	)
	if err != nil {
		return model.RepoDir{}, false, types.NewStorageError("get repo dir", repoID, err)
	}
	return dir, found, nil
}

func (s *Store) RepoDirClaimed(ctx context.Context, account, path string) (bool, error) {
	var n int
	_, err := s.get(ctx, &n, `SELECT COUNT(*) FROM repo_dirs WHERE account = ? AND path = ?`, account, path)
	if err != nil {
		return false, types.NewStorageError("check repo dir", path, err)
	}
	return n > 0, nil
}

func (s *Store) SaveRepoDir(ctx context.Context, dir model.RepoDir) error {
	defer s.keys.Lock("rd:" + dir.AccountSignature + ":" + dir.RepoID)()
	err := s.exec(ctx,
		`INSERT INTO repo_dirs (account, repo_name, repo_id, path) VALUES (?, ?, ?, ?)
		ON CONFLICT (account, repo_id) DO UPDATE SET repo_name = excluded.repo_name, path = excluded.path`,
		dir.AccountSignature, dir.RepoName, dir.RepoID, dir.Path,
	)
	if err != nil {
		return types.NewStorageError("save repo dir", dir.Path, err)
	}
	log.Debugf("Saved repo dir mapping %s -> %s", dir.RepoID, dir.Path)
	return nil
}

func (s *Store) ListRepoDirs(ctx context.Context, account string) ([]model.RepoDir, error) {
	var dirs []model.RepoDir
	err := s.db.SelectContext(ctx, &dirs, s.db.Rebind(
		`SELECT account, repo_name, repo_id, path FROM repo_dirs WHERE account = ? ORDER BY path`),
		account,
	)
	if err != nil {
		return nil, types.NewStorageError("list repo dirs", account, err)
	}
	return dirs, nil
}

func (s *Store) GetDirents(ctx context.Context, repoID, path string) (model.DirentsEntry, bool, error) {
	var entry model.DirentsEntry
	found, err := s.get(ctx, &entry,
		`SELECT repo_id, path, dir_id, payload FROM dirents_cache WHERE repo_id = ? AND path = ?`,
		repoID, path,
	)
	if err != nil {
		return model.DirentsEntry{}, false, types.NewStorageError("get dirents", path, err)
	}
	return entry, found, nil
}

func (s *Store) SaveDirents(ctx context.Context, entry model.DirentsEntry) error {
	defer s.keys.Lock("de:" + entry.RepoID + ":" + entry.Path)()
	err := s.exec(ctx,
		`INSERT INTO dirents_cache (repo_id, path, dir_id, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT (repo_id, path) DO UPDATE SET dir_id = excluded.dir_id, payload = excluded.payload`,
		entry.RepoID, entry.Path, entry.DirID, entry.Payload,
	)
	if err != nil {
		return types.NewStorageError("save dirents", entry.Path, err)
	}
	return nil
}

func (s *Store) DeleteDirents(ctx context.Context, repoID, path string) error {
	defer s.keys.Lock("de:" + repoID + ":" + path)()
	if err := s.exec(ctx, `DELETE FROM dirents_cache WHERE repo_id = ? AND path = ?`, repoID, path); err != nil {
		return types.NewStorageError("delete dirents", path, err)
	}
	return nil
}

func (s *Store) GetCachedFile(ctx context.Context, account, repoID, path string) (model.CachedFile, bool, error) {
	var file model.CachedFile
	found, err := s.get(ctx, &file,
		`SELECT account, repo_name, repo_id, path, file_id, local_path FROM file_cache
		WHERE account = ? AND repo_id = ? AND path = ?`,
		account, repoID, path,
	)
	if err != nil {
		return model.CachedFile{}, false, types.NewStorageError("get cached file", path, err)
	}
	return file, found, nil
}

func (s *Store) SaveCachedFile(ctx context.Context, file model.CachedFile) error {
	defer s.keys.Lock("fc:" + file.AccountSignature + ":" + file.RepoID + ":" + file.Path)()
	err := s.exec(ctx,
		`INSERT INTO file_cache (account, repo_id, path, repo_name, file_id, local_path) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account, repo_id, path) DO UPDATE SET
			repo_name = excluded.repo_name,
			file_id = excluded.file_id,
			local_path = excluded.local_path`,
		file.AccountSignature, file.RepoID, file.Path, file.RepoName, file.FileID, file.LocalPath,
	)
	if err != nil {
		return types.NewStorageError("save cached file", file.Path, err)
	}
	return nil
}

func (s *Store) DeleteCachedFile(ctx context.Context, account, repoID, path string) error {
	defer s.keys.Lock("fc:" + account + ":" + repoID + ":" + path)()
	err := s.exec(ctx,
		`DELETE FROM file_cache WHERE account = ? AND repo_id = ? AND path = ?`,
		account, repoID, path,
	)
	if err != nil {
		return types.NewStorageError("delete cached file", path, err)
	}
	return nil
}

func (s *Store) ListCachedFiles(ctx context.Context, account string) ([]model.CachedFile, error) {
	var files []model.CachedFile
	err := s.db.SelectContext(ctx, &files, s.db.Rebind(
		`SELECT account, repo_name, repo_id, path, file_id, local_path FROM file_cache
		WHERE account = ? ORDER BY repo_id, path`),
		account,
	)
	if err != nil {
		return nil, types.NewStorageError("list cached files", account, err)
	}
	return files, nil
}

func (s *Store) Close() error {
	s.preparedStmts.Purge()
	return s.db.Close()
}
