package repository

import (
	"github.com/vertextoedge/czds-fetch/internal/domain"
)

// HistoryRepository defines the interface for download history persistence
type HistoryRepository interface {
	// CreateRun inserts a new batch run row
	CreateRun(run *domain.BatchRun) error

	// FinishRun stores the final counters and error of a run
	FinishRun(run *domain.BatchRun) error

	// RecordOutcome appends the outcome of one zone to a run
	RecordOutcome(rec *domain.OutcomeRecord) error

	// ListRuns returns the most recent runs, newest first
	ListRuns(limit int) ([]*domain.BatchRun, error)

	// ListOutcomes returns the outcomes of a run in the order they were recorded
	ListOutcomes(runID string) ([]*domain.OutcomeRecord, error)

	// LastSuccess returns the most recent successful outcome for a zone
	// Returns nil if the zone was never downloaded
	LastSuccess(zone string) (*domain.OutcomeRecord, error)
}
