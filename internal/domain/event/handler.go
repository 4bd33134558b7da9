package event

import (
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/vertextoedge/czds-fetch/internal/domain"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case ZoneDownloaded:
		h.logger.Info("zone downloaded",
			zap.String("run_id", e.RunID),
			zap.String("zone", e.Zone),
			zap.String("file", e.File.Name),
			zap.String("path", e.File.Path),
			zap.String("size", humanize.Bytes(uint64(e.File.Size))),
			zap.Duration("elapsed", e.File.Elapsed),
		)
	case ZoneFailed:
		fields := []zap.Field{
			zap.String("run_id", e.RunID),
			zap.String("zone", e.Zone),
			zap.String("source", e.Source.String()),
			zap.String("error_kind", string(e.Kind)),
			zap.Error(e.Err),
		}
		if e.Kind == domain.KindCanceled {
			h.logger.Warn("zone download canceled", fields...)
		} else {
			h.logger.Error("zone download failed", fields...)
		}
	case BatchFinished:
		h.logger.Info("download cycle finished",
			zap.String("run_id", e.RunID),
			zap.Int("requested", e.Requested),
			zap.Int("succeeded", e.Succeeded),
			zap.Int("failed", e.Failed),
			zap.String("downloaded", humanize.Bytes(uint64(e.Bytes))),
			zap.Duration("duration", e.Duration),
			zap.Bool("interrupted", e.Interrupted),
		)
	case BatchFailed:
		h.logger.Error("download cycle failed",
			zap.String("run_id", e.RunID),
			zap.String("stage", string(e.Stage)),
			zap.String("error_kind", string(e.Kind)),
			zap.Error(e.Err),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{"*"} // Handle all events
}
