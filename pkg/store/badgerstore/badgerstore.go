// Package badgerstore implements store.Store on an embedded BadgerDB.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	logging "github.com/ipfs/go-log/v2"

	"github.com/storacha/mirror/internal/keylock"
	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/store"
	"github.com/storacha/mirror/pkg/types"
)

var log = logging.Logger("mirror/store/badgerstore")

var _ store.Store = (*Store)(nil)

type Store struct {
	db   *badger.DB
	keys *keylock.Map
}

type Config struct {
	// Dir is where BadgerDB keeps its files. Ignored when InMemory is set.
	Dir      string `mapstructure:"dir"`
	InMemory bool   `mapstructure:"in_memory"`
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := badger.DefaultOptions(cfg.Dir).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening BadgerDB at %s: %w", cfg.Dir, err)
	}
	return &Store{db: db, keys: keylock.New()}, nil
}

func getJSON[T any](txn *badger.Txn, key []byte) (T, bool, error) {
	var out T
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	})
	if err != nil {
		return out, false, err
	}
	return out, true, nil
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func scanJSON[T any](db *badger.DB, prefix []byte) ([]T, error) {
	var out []T
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var v T
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

func (s *Store) GetRepoDir(ctx context.Context, account, repoID string) (model.RepoDir, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.RepoDir{}, false, err
	}
	var (
		dir   model.RepoDir
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		dir, found, err = getJSON[model.RepoDir](txn, keyRepoDir(account, repoID))
		return err
	})
	if err != nil {
		return model.RepoDir{}, false, types.NewStorageError("get repo dir", repoID, err)
	}
	return dir, found, nil
}

func (s *Store) RepoDirClaimed(ctx context.Context, account, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	claimed := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyRepoClaim(account, path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, types.NewStorageError("check repo dir", path, err)
	}
	return claimed, nil
}

func (s *Store) SaveRepoDir(ctx context.Context, dir model.RepoDir) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.keys.Lock("rd:" + dir.AccountSignature + sep + dir.RepoID)()
	err := s.db.Update(func(txn *badger.Txn) error {
		prev, found, err := getJSON[model.RepoDir](txn, keyRepoDir(dir.AccountSignature, dir.RepoID))
		if err != nil {
			return err
		}
		if found && prev.Path != dir.Path {
			if err := txn.Delete(keyRepoClaim(prev.AccountSignature, prev.Path)); err != nil {
				return err
			}
		}
		if err := setJSON(txn, keyRepoDir(dir.AccountSignature, dir.RepoID), dir); err != nil {
			return err
		}
		return txn.Set(keyRepoClaim(dir.AccountSignature, dir.Path), []byte(dir.RepoID))
	})
	if err != nil {
		return types.NewStorageError("save repo dir", dir.Path, err)
	}
	log.Debugf("Saved repo dir mapping %s -> %s", dir.RepoID, dir.Path)
	return nil
}

func (s *Store) ListRepoDirs(ctx context.Context, account string) ([]model.RepoDir, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirs, err := scanJSON[model.RepoDir](s.db, keyRepoDirPrefix(account))
	if err != nil {
		return nil, types.NewStorageError("list repo dirs", account, err)
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Path < dirs[j].Path })
	return dirs, nil
}

func (s *Store) GetDirents(ctx context.Context, repoID, path string) (model.DirentsEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.DirentsEntry{}, false, err
	}
	var (
		entry model.DirentsEntry
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		entry, found, err = getJSON[model.DirentsEntry](txn, keyDirents(repoID, path))
		return err
	})
	if err != nil {
		return model.DirentsEntry{}, false, types.NewStorageError("get dirents", path, err)
	}
	return entry, found, nil
}

func (s *Store) SaveDirents(ctx context.Context, entry model.DirentsEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.keys.Lock("de:" + entry.RepoID + sep + entry.Path)()
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, keyDirents(entry.RepoID, entry.Path), entry)
	})
	if err != nil {
		return types.NewStorageError("save dirents", entry.Path, err)
	}
	return nil
}

func (s *Store) DeleteDirents(ctx context.Context, repoID, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.keys.Lock("de:" + repoID + sep + path)()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyDirents(repoID, path))
	})
	if err != nil {
		return types.NewStorageError("delete dirents", path, err)
	}
	return nil
}

func (s *Store) GetCachedFile(ctx context.Context, account, repoID, path string) (model.CachedFile, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.CachedFile{}, false, err
	}
	var (
		file  model.CachedFile
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		file, found, err = getJSON[model.CachedFile](txn, keyCachedFile(account, repoID, path))
		return err
	})
	if err != nil {
		return model.CachedFile{}, false, types.NewStorageError("get cached file", path, err)
	}
	return file, found, nil
}

func (s *Store) SaveCachedFile(ctx context.Context, file model.CachedFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.keys.Lock("fc:" + file.AccountSignature + sep + file.RepoID + sep + file.Path)()
	err := s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, keyCachedFile(file.AccountSignature, file.RepoID, file.Path), file)
	})
	if err != nil {
		return types.NewStorageError("save cached file", file.Path, err)
	}
	return nil
}

func (s *Store) DeleteCachedFile(ctx context.Context, account, repoID, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.keys.Lock("fc:" + account + sep + repoID + sep + path)()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyCachedFile(account, repoID, path))
	})
	if err != nil {
		return types.NewStorageError("delete cached file", path, err)
	}
	return nil
}

func (s *Store) ListCachedFiles(ctx context.Context, account string) ([]model.CachedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := scanJSON[model.CachedFile](s.db, keyCachedFilePrefix(account))
	if err != nil {
		return nil, types.NewStorageError("list cached files", account, err)
	}
	return files, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
