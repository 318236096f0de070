// Package build holds version information stamped in with -ldflags.
package build

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
