package config

import (
	"errors"
	"path/filepath"
	"strings"
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

type RepoConfig struct {
	Dir string `mapstructure:"data_dir"`
	// Backend selects the index store. DatabaseURL, when set, takes
	// precedence over a local sqlite file.
	Backend     string `mapstructure:"backend" validate:"omitempty,oneof=sqlite badger"`
	DatabaseURL string `mapstructure:"database_url"`
}

func (r RepoConfig) Validate() error {
	if r.Dir == "" {
		return errors.New("repo data dir required")
	}
	if r.Backend == BackendBadger && r.DatabaseURL != "" {
		return errors.New("repo.database_url cannot be used with the badger backend")
	}
	return nil
}

func (r RepoConfig) DatabasePath() string {
	return filepath.Join(r.Dir, "index.db")
}

func (r RepoConfig) BadgerDir() string {
	return filepath.Join(r.Dir, "index")
}

// FilesDir holds one directory per account with the cached files.
func (r RepoConfig) FilesDir() string {
	return filepath.Join(r.Dir, "files")
}

// CacheDir holds the repository list snapshots.
func (r RepoConfig) CacheDir() string {
	return filepath.Join(r.Dir, "cache")
}

func (r RepoConfig) ThumbDir() string {
	return filepath.Join(r.Dir, "thumb")
}

// IsPostgres returns true if the configured database URL points to a PostgreSQL server.
func (r RepoConfig) IsPostgres() bool {
	return strings.HasPrefix(r.DatabaseURL, "postgres://") ||
		strings.HasPrefix(r.DatabaseURL, "postgresql://")
}
