package domain

import "time"

// BatchRun is the persisted summary of one batch invocation
type BatchRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Requested  int
	Succeeded  int
	Failed     int

	// Error is set when the batch failed before any zone was attempted
	Error string
}

// Finish fills in the summary counters from a collected result.
// Requested is kept when already set, so an interrupted run still shows
// how many zones it meant to fetch.
func (r *BatchRun) Finish(result *BatchResult, batchErr error) {
	now := time.Now()
	r.FinishedAt = &now
	if result != nil {
		if r.Requested == 0 {
			r.Requested = len(result.Outcomes)
		}
		r.Succeeded = result.Succeeded()
		r.Failed = result.Failed()
	}
	if batchErr != nil {
		r.Error = batchErr.Error()
	}
}

// OutcomeRecord is the persisted form of one ItemOutcome
type OutcomeRecord struct {
	ID           int64
	RunID        string
	Zone         string
	Source       string
	FileName     string
	Path         string
	Size         int64
	ElapsedMs    int64
	ErrorKind    ErrorKind
	ErrorMessage string
	CreatedAt    time.Time
}

// NewOutcomeRecord converts an outcome for storage
func NewOutcomeRecord(runID string, o ItemOutcome) *OutcomeRecord {
	rec := &OutcomeRecord{
		RunID:  runID,
		Zone:   o.Zone,
		Source: o.Source.String(),
	}
	if o.File != nil {
		rec.FileName = o.File.Name
		rec.Path = o.File.Path
		rec.Size = o.File.Size
		rec.ElapsedMs = o.File.Elapsed.Milliseconds()
	}
	if o.Err != nil {
		rec.ErrorKind = o.Kind()
		rec.ErrorMessage = o.Err.Error()
	}
	return rec
}

// OK returns true if the recorded zone was downloaded
func (r *OutcomeRecord) OK() bool {
	return r.ErrorKind == KindNone
}
