package domain

import (
	"context"
	"errors"
	"time"
)

// ZoneLink is a fully-qualified download URL for one zone file
type ZoneLink string

// RequestSource tells how a requested zone entered the batch
type RequestSource int

const (
	// SourceDiscovered entries are ready download URLs from the links endpoint
	SourceDiscovered RequestSource = iota
	// SourceExplicit entries are bare TLD names supplied by the caller
	SourceExplicit
)

// String returns the source name
func (s RequestSource) String() string {
	if s == SourceExplicit {
		return "explicit"
	}
	return "discovered"
}

// RequestedZone is one entry of a batch's requested set
type RequestedZone struct {
	// ID is the TLD name for explicit entries and the URL for discovered ones
	ID     string
	Source RequestSource
}

// DownloadedFile is the result of one successful zone fetch
type DownloadedFile struct {
	// Zone is the requested identifier (TLD or URL)
	Zone string

	// Path is the absolute path of the saved file
	Path string

	// Name is the filename taken verbatim from the Content-Disposition header
	Name string

	// Size is the number of bytes written
	Size int64

	// Elapsed is the time from request start to the file being in place
	Elapsed time.Duration
}

// ItemOutcome is the tagged per-zone result of a batch.
// Exactly one of File and Err is set.
type ItemOutcome struct {
	Zone   string
	Source RequestSource
	File   *DownloadedFile
	Err    error
}

// OK returns true if the zone was downloaded
func (o ItemOutcome) OK() bool {
	return o.Err == nil && o.File != nil
}

// Kind returns the error kind of the outcome, KindNone on success
func (o ItemOutcome) Kind() ErrorKind {
	return KindOf(o.Err)
}

// BatchResult is the collected outcome list of one batch run
type BatchResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []ItemOutcome
}

// Succeeded returns the number of downloaded zones
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of zones that failed
func (r *BatchResult) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// TotalBytes returns the number of bytes downloaded across the batch
func (r *BatchResult) TotalBytes() int64 {
	var total int64
	for _, o := range r.Outcomes {
		if o.File != nil {
			total += o.File.Size
		}
	}
	return total
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
