package port

import (
	"io"
	"time"
)

// ZoneStore defines the local storage operations used for zone files
type ZoneStore interface {
	// OutputDir returns the configured output directory
	OutputDir() string

	// BeginBatch resets per-batch directory state and removes temp files
	// older than maxAge left behind by interrupted downloads.
	// Returns the number of temp files removed
	BeginBatch(maxAge time.Duration) (int, error)

	// EnsureDir creates the output directory if missing.
	// Safe for concurrent callers; creation happens at most once per batch
	EnsureDir() error

	// WriteZoneFile atomically replaces {OutputDir}/{name} with the content of r
	// Returns: absolute path, bytes written, error
	WriteZoneFile(name string, r io.Reader) (string, int64, error)

	// CheckSpace returns an error if size bytes would not fit on the
	// output directory's filesystem. Unknown sizes (<= 0) always pass
	CheckSpace(size int64) error
}

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}
