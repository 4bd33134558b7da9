package event

import (
	"errors"
	"time"

	"github.com/vertextoedge/czds-fetch/internal/domain"
)

// Event names
const (
	NameZoneDownloaded = "zone.downloaded"
	NameZoneFailed     = "zone.failed"
	NameBatchFinished  = "batch.finished"
	NameBatchFailed    = "batch.failed"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
	RunID     string
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// ZoneDownloaded is raised when a zone file is in place under its final name
type ZoneDownloaded struct {
	BaseEvent
	Zone   string
	Source domain.RequestSource
	File   domain.DownloadedFile
}

// EventName returns the event name
func (e ZoneDownloaded) EventName() string {
	return NameZoneDownloaded
}

// ZoneFailed is raised when fetching one zone failed
type ZoneFailed struct {
	BaseEvent
	Zone   string
	Source domain.RequestSource
	Kind   domain.ErrorKind
	Err    error
}

// EventName returns the event name
func (e ZoneFailed) EventName() string {
	return NameZoneFailed
}

// NewZoneEvent converts a batch outcome into its event
func NewZoneEvent(runID string, o domain.ItemOutcome) DomainEvent {
	base := BaseEvent{Timestamp: time.Now(), RunID: runID}
	if o.OK() {
		return ZoneDownloaded{BaseEvent: base, Zone: o.Zone, Source: o.Source, File: *o.File}
	}
	return ZoneFailed{BaseEvent: base, Zone: o.Zone, Source: o.Source, Kind: o.Kind(), Err: o.Err}
}

// BatchFinished is raised after the last outcome of a batch
type BatchFinished struct {
	BaseEvent
	Requested   int
	Succeeded   int
	Failed      int
	Bytes       int64
	Duration    time.Duration
	Interrupted bool
}

// EventName returns the event name
func (e BatchFinished) EventName() string {
	return NameBatchFinished
}

// NewBatchFinished summarizes a collected result
func NewBatchFinished(runID string, requested int, result *domain.BatchResult, interrupted bool) BatchFinished {
	return BatchFinished{
		BaseEvent:   BaseEvent{Timestamp: time.Now(), RunID: runID},
		Requested:   requested,
		Succeeded:   result.Succeeded(),
		Failed:      result.Failed(),
		Bytes:       result.TotalBytes(),
		Duration:    result.FinishedAt.Sub(result.StartedAt),
		Interrupted: interrupted,
	}
}

// BatchFailed is raised when a batch could not start: authentication or
// enumeration failed
type BatchFailed struct {
	BaseEvent
	Stage domain.BatchStage
	Kind  domain.ErrorKind
	Err   error
}

// EventName returns the event name
func (e BatchFailed) EventName() string {
	return NameBatchFailed
}

// NewBatchFailed creates a new BatchFailed event
func NewBatchFailed(runID string, err error) BatchFailed {
	e := BatchFailed{
		BaseEvent: BaseEvent{Timestamp: time.Now(), RunID: runID},
		Kind:      domain.KindOf(err),
		Err:       err,
	}
	var be *domain.BatchError
	if errors.As(err, &be) {
		e.Stage = be.Stage
	}
	return e
}
