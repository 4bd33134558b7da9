package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vertextoedge/czds-fetch/internal/domain"
)

type recordingHandler struct {
	mu     sync.Mutex
	names  []string
	events []string
	err    error
}

func (h *recordingHandler) Handle(e DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e.EventName())
	return h.err
}

func (h *recordingHandler) HandledEvents() []string {
	return h.names
}

func TestNewZoneEvent(t *testing.T) {
	ok := domain.ItemOutcome{
		Zone:   "com",
		Source: domain.SourceExplicit,
		File:   &domain.DownloadedFile{Zone: "com", Name: "com.txt.gz", Size: 42},
	}
	e, isDownloaded := NewZoneEvent("run-1", ok).(ZoneDownloaded)
	if !isDownloaded {
		t.Fatalf("expected ZoneDownloaded")
	}
	if e.RunID != "run-1" || e.File.Name != "com.txt.gz" || e.File.Size != 42 {
		t.Errorf("unexpected event %+v", e)
	}

	failed := domain.ItemOutcome{Zone: "xyz", Source: domain.SourceExplicit, Err: domain.ErrAuthorizationDenied}
	f, isFailed := NewZoneEvent("run-1", failed).(ZoneFailed)
	if !isFailed {
		t.Fatalf("expected ZoneFailed")
	}
	if f.Kind != domain.KindAuthorizationDenied {
		t.Errorf("Kind = %s, want %s", f.Kind, domain.KindAuthorizationDenied)
	}
}

func TestNewBatchFailed(t *testing.T) {
	err := domain.NewBatchError(domain.StageEnumerate, fmt.Errorf("%w: bad json", domain.ErrProtocol))
	e := NewBatchFailed("run-2", fmt.Errorf("cycle: %w", err))

	if e.Stage != domain.StageEnumerate {
		t.Errorf("Stage = %s, want %s", e.Stage, domain.StageEnumerate)
	}
	if e.Kind != domain.KindProtocol {
		t.Errorf("Kind = %s, want %s", e.Kind, domain.KindProtocol)
	}
}

func TestNewBatchFinished(t *testing.T) {
	start := time.Now()
	result := &domain.BatchResult{
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Outcomes: []domain.ItemOutcome{
			{Zone: "a", File: &domain.DownloadedFile{Size: 10}},
			{Zone: "b", Err: domain.ErrNetwork},
		},
	}

	e := NewBatchFinished("run-3", 5, result, true)
	if e.Requested != 5 || e.Succeeded != 1 || e.Failed != 1 || e.Bytes != 10 {
		t.Errorf("unexpected counters %+v", e)
	}
	if e.Duration != 3*time.Second || !e.Interrupted {
		t.Errorf("unexpected duration or flag %+v", e)
	}
}

func TestInMemoryDispatcher_Routing(t *testing.T) {
	d := NewInMemoryDispatcher()
	zones := &recordingHandler{names: []string{NameZoneDownloaded, NameZoneFailed}}
	all := &recordingHandler{names: []string{"*"}}
	d.Subscribe(zones)
	d.Subscribe(all)

	d.Dispatch(ZoneDownloaded{})
	d.Dispatch(ZoneFailed{})
	d.Dispatch(BatchFinished{})

	if got := len(zones.events); got != 2 {
		t.Errorf("zone handler got %d events, want 2", got)
	}
	if got := len(all.events); got != 3 {
		t.Errorf("wildcard handler got %d events, want 3", got)
	}
}

func TestInMemoryDispatcher_OnError(t *testing.T) {
	d := NewInMemoryDispatcher()
	d.Subscribe(&recordingHandler{names: []string{"*"}, err: errors.New("disk full")})

	var failures []string
	d.OnError(func(e DomainEvent, err error) {
		failures = append(failures, e.EventName()+": "+err.Error())
	})

	d.Dispatch(ZoneFailed{})
	if len(failures) != 1 || failures[0] != "zone.failed: disk full" {
		t.Errorf("unexpected failures %v", failures)
	}
}

func TestInMemoryDispatcher_SubscriptionOrder(t *testing.T) {
	d := NewInMemoryDispatcher()

	var order []string
	d.Subscribe(handlerFunc(func(e DomainEvent) error {
		order = append(order, "first")
		return nil
	}))
	d.Subscribe(handlerFunc(func(e DomainEvent) error {
		order = append(order, "second")
		return nil
	}))

	d.Dispatch(ZoneDownloaded{})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("unexpected order %v", order)
	}
}

type handlerFunc func(DomainEvent) error

func (f handlerFunc) Handle(e DomainEvent) error { return f(e) }

func (f handlerFunc) HandledEvents() []string { return []string{"*"} }

func TestLoggingHandler(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewLoggingHandler(zap.New(core))

	h.Handle(NewZoneEvent("run", domain.ItemOutcome{Zone: "com", File: &domain.DownloadedFile{Name: "com.txt.gz"}}))
	h.Handle(NewZoneEvent("run", domain.ItemOutcome{Zone: "xyz", Err: domain.ErrAuthorizationDenied}))
	h.Handle(NewZoneEvent("run", domain.ItemOutcome{Zone: "net", Err: fmt.Errorf("request failed: %w", context.Canceled)}))

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "zone downloaded" {
		t.Errorf("unexpected entry %v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("failure should log at error level, got %s", entries[1].Level)
	}
	if entries[1].ContextMap()["error_kind"] != string(domain.KindAuthorizationDenied) {
		t.Errorf("missing error_kind in %v", entries[1].ContextMap())
	}
	if entries[2].Level != zapcore.WarnLevel {
		t.Errorf("cancellation should log at warn level, got %s", entries[2].Level)
	}
}
