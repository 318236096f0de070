// Package store defines the persisted index behind the caches: repository
// directory mappings, directory listings and cached files.
package store

import (
	"context"

	"github.com/storacha/mirror/pkg/model"
)

// RepoDirs persists the mapping from a repository to its local directory.
type RepoDirs interface {
	GetRepoDir(ctx context.Context, account, repoID string) (model.RepoDir, bool, error)
	// RepoDirClaimed reports whether any mapping of the account already uses
	// path.
	RepoDirClaimed(ctx context.Context, account, path string) (bool, error)
	SaveRepoDir(ctx context.Context, dir model.RepoDir) error
	ListRepoDirs(ctx context.Context, account string) ([]model.RepoDir, error)
}

// Dirents persists the last fetched listing of each directory.
type Dirents interface {
	GetDirents(ctx context.Context, repoID, path string) (model.DirentsEntry, bool, error)
	// SaveDirents replaces any previous entry for the same repository and
	// path. The id and payload are written together.
	SaveDirents(ctx context.Context, entry model.DirentsEntry) error
	DeleteDirents(ctx context.Context, repoID, path string) error
}

// Files persists cached file records.
type Files interface {
	GetCachedFile(ctx context.Context, account, repoID, path string) (model.CachedFile, bool, error)
	// SaveCachedFile replaces any previous record for the same account,
	// repository and path. The id and local path are written together.
	SaveCachedFile(ctx context.Context, file model.CachedFile) error
	DeleteCachedFile(ctx context.Context, account, repoID, path string) error
	ListCachedFiles(ctx context.Context, account string) ([]model.CachedFile, error)
}

type Store interface {
	RepoDirs
	Dirents
	Files
	Close() error
}
