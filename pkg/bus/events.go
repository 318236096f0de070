package bus

import "fmt"

const (
	TopicTransferProgress = "transfer.progress"
	TopicCacheHit         = "cache.hit"
	TopicCacheMiss        = "cache.miss"
)

// Kind names what a cache event is about.
type Kind string

const (
	KindRepositories Kind = "repositories"
	KindDirectory    Kind = "directory"
	KindFile         Kind = "file"
)

// TransferDirection tells downloads from uploads.
type TransferDirection string

const (
	Download TransferDirection = "download"
	Upload   TransferDirection = "upload"
)

// TransferProgress is published on TopicTransferProgress after each chunk.
type TransferProgress struct {
	Direction TransferDirection
	RepoID    string
	Path      string
	Bytes     int64
}

// CacheEvent is published on TopicCacheHit and TopicCacheMiss.
type CacheEvent struct {
	Kind   Kind
	RepoID string
	Path   string
}

func (e CacheEvent) String() string {
	if e.RepoID == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s %s:%s", e.Kind, e.RepoID, e.Path)
}
