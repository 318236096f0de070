// Package pathalloc maps repositories to local directories. Each repository of
// an account gets a directory named after it; repositories sharing a name get
// "Name (1)", "Name (2)", and so on. A mapping never changes once made.
package pathalloc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"

	"github.com/storacha/mirror/internal/keylock"
	"github.com/storacha/mirror/pkg/model"
	"github.com/storacha/mirror/pkg/store"
	"github.com/storacha/mirror/pkg/types"
)

var log = logging.Logger("mirror/pathalloc")

const dirPerm os.FileMode = 0o755

type Allocator struct {
	fs       afero.Fs
	root     string
	dirs     store.RepoDirs
	accounts *keylock.Map
}

// New returns an allocator placing account directories under root.
func New(fs afero.Fs, root string, dirs store.RepoDirs) *Allocator {
	return &Allocator{
		fs:       fs,
		root:     root,
		dirs:     dirs,
		accounts: keylock.New(),
	}
}

// AccountDir is the directory holding all repositories of acct.
func (a *Allocator) AccountDir(acct model.Account) string {
	return filepath.Join(a.root, acct.Dir())
}

// ResolveRepoDir returns the local directory of a repository, allocating and
// persisting one on first use.
func (a *Allocator) ResolveRepoDir(ctx context.Context, acct model.Account, repoName, repoID string) (string, error) {
	sig := acct.Signature()

	// Lookup, scan and claim happen under one lock per account so two first
	// time allocations never pick the same candidate.
	defer a.accounts.Lock(sig)()

	existing, found, err := a.dirs.GetRepoDir(ctx, sig, repoID)
	if err != nil {
		return "", err
	}
	if found {
		if err := a.fs.MkdirAll(existing.Path, dirPerm); err != nil {
			return "", types.NewStorageError("recreate repo dir", existing.Path, err)
		}
		return existing.Path, nil
	}

	accountDir := a.AccountDir(acct)
	base := sanitizeName(repoName)
	var path string
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)", base, i)
		}
		path = filepath.Join(accountDir, candidate)

		exists, err := afero.Exists(a.fs, path)
		if err != nil {
			return "", types.NewStorageError("probe repo dir", path, err)
		}
		if exists {
			continue
		}
		claimed, err := a.dirs.RepoDirClaimed(ctx, sig, path)
		if err != nil {
			return "", err
		}
		if !claimed {
			break
		}
	}

	if err := a.fs.MkdirAll(path, dirPerm); err != nil {
		return "", types.NewStorageError("create repo dir", path, err)
	}
	err = a.dirs.SaveRepoDir(ctx, model.RepoDir{
		AccountSignature: sig,
		RepoName:         repoName,
		RepoID:           repoID,
		Path:             path,
	})
	if err != nil {
		return "", err
	}
	log.Debugw("Allocated repo dir", "account", sig, "repo", repoID, "path", path)
	return path, nil
}

// ResolveLocalFilePath returns where the file at path inside a repository is
// kept locally, creating its parent directories.
func (a *Allocator) ResolveLocalFilePath(ctx context.Context, acct model.Account, repoName, repoID, path string) (string, error) {
	repoDir, err := a.ResolveRepoDir(ctx, acct, repoName, repoID)
	if err != nil {
		return "", err
	}
	local := JoinRepoPath(repoDir, path)
	parent := filepath.Dir(local)
	if err := a.fs.MkdirAll(parent, dirPerm); err != nil {
		return "", types.NewStorageError("create parent dir", parent, err)
	}
	return local, nil
}

// JoinRepoPath joins a repository relative path onto its local directory.
// The result never escapes repoDir.
func JoinRepoPath(repoDir, path string) string {
	return filepath.Join(repoDir, filepath.FromSlash(cleanRepoPath(path)))
}

func cleanRepoPath(path string) string {
	return filepath.ToSlash(filepath.Clean("/" + path))
}

// Repository names are free text on the server.
func sanitizeName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	switch name {
	case "", ".", "..":
		return "_" + name
	}
	return name
}
