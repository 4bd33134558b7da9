package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertextoedge/czds-fetch/internal/adapter/sqlite"
	"github.com/vertextoedge/czds-fetch/internal/domain"
	"github.com/vertextoedge/czds-fetch/internal/domain/event"
	"github.com/vertextoedge/czds-fetch/internal/port"
	"github.com/vertextoedge/czds-fetch/internal/service/batch"
)

// NewRunCmd creates the run command
func NewRunCmd(configPath *string) *cobra.Command {
	var (
		tlds        string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download zone files once",
		Long: `Run one download cycle. Without --tlds every zone the account is
entitled to is downloaded. Failures of single zones are reported and do not
stop the cycle; the command only fails when authentication or the zone
listing fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var override *string
			if cmd.Flags().Changed("tlds") {
				override = &tlds
			}
			return runBatch(cmd.Context(), *configPath, override, concurrency)
		},
	}

	cmd.Flags().StringVar(&tlds, "tlds", "", "comma-separated TLDs to download (overrides czds.tlds)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent downloads (overrides download.concurrency)")

	return cmd
}

func runBatch(ctx context.Context, configPath string, tlds *string, concurrency int) error {
	if concurrency < 0 || concurrency > batch.MaxWorkers {
		return fmt.Errorf("--concurrency must be between 1 and %d", batch.MaxWorkers)
	}

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	dbPath := a.cfg.GetDatabasePath()
	history, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database %s: %w", dbPath, err)
	}
	defer history.Close()

	req := batch.Request{TLDs: a.cfg.CZDS.TLDs, Workers: concurrency}
	if tlds != nil {
		req.TLDs = *tlds
	}

	runner := batch.New(&batch.Config{
		Workers:        a.cfg.Download.Concurrency,
		TempFileMaxAge: a.cfg.Download.GetTempFileMaxAge(),
	}, a.client, a.files, a.logger.Named("batch"))

	return executeRun(ctx, runner, history, req, a.logger)
}

// executeRun runs one batch, dispatching an event for every outcome as it
// arrives. Returns the batch-level error, if any.
func executeRun(ctx context.Context, runner *batch.Runner, history port.HistoryRepository, req batch.Request, log *zap.Logger) error {
	run := &domain.BatchRun{}
	if err := history.CreateRun(run); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	dispatcher := event.NewInMemoryDispatcher()
	dispatcher.OnError(func(e event.DomainEvent, err error) {
		log.Warn("event handler failed", zap.String("event", e.EventName()), zap.Error(err))
	})
	dispatcher.Subscribe(event.NewLoggingHandler(log))
	dispatcher.Subscribe(&historyRecorder{history: history})

	log.Info("starting download cycle",
		zap.String("run_id", run.ID),
		zap.Bool("explicit", domain.HasExplicitTLDs(req.TLDs)))

	b, err := runner.Prepare(ctx, req)
	if err != nil {
		dispatcher.Dispatch(event.NewBatchFailed(run.ID, err))
		run.Finish(nil, err)
		if ferr := history.FinishRun(run); ferr != nil {
			log.Warn("failed to record run result", zap.Error(ferr))
		}
		return err
	}

	run.Requested = len(b.Requested())
	log.Info("downloading zones",
		zap.String("run_id", run.ID),
		zap.Int("zones", run.Requested),
		zap.Int("workers", b.Workers()))

	result := &domain.BatchResult{StartedAt: run.StartedAt}
	for outcome := range b.Outcomes(ctx) {
		result.Outcomes = append(result.Outcomes, outcome)
		dispatcher.Dispatch(event.NewZoneEvent(run.ID, outcome))
	}
	result.FinishedAt = time.Now()

	run.Finish(result, ctx.Err())
	if err := history.FinishRun(run); err != nil {
		log.Warn("failed to record run result", zap.Error(err))
	}
	dispatcher.Dispatch(event.NewBatchFinished(run.ID, run.Requested, result, ctx.Err() != nil))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("download cycle interrupted after %d of %d zones: %w", len(result.Outcomes), run.Requested, err)
	}
	return nil
}

// historyRecorder stores every zone outcome in the history database
type historyRecorder struct {
	history port.HistoryRepository
}

func (h *historyRecorder) Handle(e event.DomainEvent) error {
	var outcome domain.ItemOutcome
	var runID string

	switch e := e.(type) {
	case event.ZoneDownloaded:
		file := e.File
		runID = e.RunID
		outcome = domain.ItemOutcome{Zone: e.Zone, Source: e.Source, File: &file}
	case event.ZoneFailed:
		runID = e.RunID
		outcome = domain.ItemOutcome{Zone: e.Zone, Source: e.Source, Err: e.Err}
	default:
		return nil
	}

	rec := domain.NewOutcomeRecord(runID, outcome)
	rec.CreatedAt = e.OccurredAt()
	return h.history.RecordOutcome(rec)
}

func (h *historyRecorder) HandledEvents() []string {
	return []string{event.NameZoneDownloaded, event.NameZoneFailed}
}
