package model

import (
	"encoding/json"
	"fmt"

	"github.com/storacha/mirror/pkg/types"
)

// Repository is a library on the remote service. Names are not unique; the
// ID is.
type Repository struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Root        string `json:"root"`
	Group       string `json:"type,omitempty"`
	Description string `json:"desc,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Permission  string `json:"permission,omitempty"`
	Encrypted   bool   `json:"encrypted,omitempty"`
	Size        int64  `json:"size,omitempty"`
	MTime       int64  `json:"mtime,omitempty"`
}

// Dirent is one child of a directory listing. ID is the revision id of the
// entry: a subtree hash for directories, a content hash for files.
type Dirent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Size       int64  `json:"size,omitempty"`
	MTime      int64  `json:"mtime,omitempty"`
	Permission string `json:"permission,omitempty"`
}

const DirentTypeDir = "dir"

func (d Dirent) IsDir() bool {
	return d.Type == DirentTypeDir
}

// RepoDir maps a repository of an account to its local directory.
type RepoDir struct {
	AccountSignature string `db:"account"`
	RepoName         string `db:"repo_name"`
	RepoID           string `db:"repo_id"`
	Path             string `db:"path"`
}

// DirentsEntry is what was last fetched for a directory: the server's id for
// it at fetch time and the exact listing payload for that id.
type DirentsEntry struct {
	RepoID  string `db:"repo_id"`
	Path    string `db:"path"`
	DirID   string `db:"dir_id"`
	Payload string `db:"payload"`
}

// CachedFile records a downloaded or uploaded file. When FileID equals the
// server's current id for Path, LocalPath holds exactly that content, unless
// it was modified or removed behind our back.
type CachedFile struct {
	AccountSignature string `db:"account"`
	RepoName         string `db:"repo_name"`
	RepoID           string `db:"repo_id"`
	Path             string `db:"path"`
	FileID           string `db:"file_id"`
	LocalPath        string `db:"local_path"`
}

// ParseRepositories decodes a repository listing. An empty array is a valid,
// empty result; entries without an id are skipped.
func ParseRepositories(raw []byte) ([]Repository, error) {
	var all []Repository
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, types.NewParseError("repositories", err)
	}
	repos := make([]Repository, 0, len(all))
	for _, r := range all {
		if r.ID == "" {
			continue
		}
		repos = append(repos, r)
	}
	return repos, nil
}

// ParseDirents decodes a directory listing. Entries without a name or id are
// skipped.
func ParseDirents(raw []byte) ([]Dirent, error) {
	if raw == nil {
		return nil, types.NewParseError("dirents", fmt.Errorf("empty payload"))
	}
	var all []Dirent
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, types.NewParseError("dirents", err)
	}
	dirents := make([]Dirent, 0, len(all))
	for _, d := range all {
		if d.ID == "" || d.Name == "" {
			continue
		}
		dirents = append(dirents, d)
	}
	return dirents, nil
}
