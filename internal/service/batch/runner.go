package batch

import (
	"context"
	"iter"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/czds-fetch/internal/domain"
	"github.com/vertextoedge/czds-fetch/internal/port"
)

// MaxWorkers caps concurrent fetches within one batch
const MaxWorkers = 10

// Config contains batch runner configuration
type Config struct {
	// Workers is the number of zones fetched concurrently
	Workers int

	// TempFileMaxAge is the age after which leftover temp files are removed
	// when a batch starts (0 = never)
	TempFileMaxAge time.Duration
}

// DefaultConfig returns default batch configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:        1,
		TempFileMaxAge: 24 * time.Hour,
	}
}

// Request describes one batch cycle
type Request struct {
	// TLDs is an optional comma-separated list of zones to fetch.
	// When empty, every zone the account is entitled to is fetched.
	TLDs string

	// Workers overrides Config.Workers when positive
	Workers int
}

// Runner drives authenticate, enumerate and fetch cycles
type Runner struct {
	config *Config
	client port.ZoneClient
	store  port.ZoneStore
	logger *zap.Logger
}

// New creates a new Runner
func New(cfg *Config, client port.ZoneClient, store port.ZoneStore, logger *zap.Logger) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		config: cfg,
		client: client,
		store:  store,
		logger: logger,
	}
}

// Prepare runs the batch preconditions and returns the batch ready to iterate.
// Authentication and enumeration failures are returned as *domain.BatchError.
func (r *Runner) Prepare(ctx context.Context, req Request) (*Batch, error) {
	if err := r.client.EnsureAuthenticated(ctx); err != nil {
		return nil, domain.NewBatchError(domain.StageAuthenticate, err)
	}

	var discovered []domain.ZoneLink
	if !domain.HasExplicitTLDs(req.TLDs) {
		links, err := r.client.ListAvailableLinks(ctx)
		if err != nil {
			return nil, domain.NewBatchError(domain.StageEnumerate, err)
		}
		discovered = links
	}

	zones := domain.ResolveRequestedSet(req.TLDs, discovered)

	swept, err := r.store.BeginBatch(r.config.TempFileMaxAge)
	if err != nil {
		r.logger.Warn("failed to sweep stale temp files", zap.Error(err))
	} else if swept > 0 {
		r.logger.Debug("removed stale temp files", zap.Int("count", swept))
	}

	workers := r.config.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}
	workers = min(workers, MaxWorkers)

	r.logger.Debug("batch prepared",
		zap.Int("zones", len(zones)),
		zap.Bool("explicit", domain.HasExplicitTLDs(req.TLDs)),
		zap.Int("workers", workers))

	return &Batch{
		zones:   zones,
		workers: workers,
		client:  r.client,
		logger:  r.logger,
	}, nil
}

// Run prepares a batch and collects every outcome. When ctx is canceled the
// partial result is returned together with the context error.
func (r *Runner) Run(ctx context.Context, req Request) (*domain.BatchResult, error) {
	batch, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	result := batch.Collect(ctx)
	return result, ctx.Err()
}

// Batch is a prepared set of zones. Its outcomes can be consumed once.
type Batch struct {
	zones   []domain.RequestedZone
	workers int
	client  port.ZoneClient
	logger  *zap.Logger

	consumed atomic.Bool
}

// Requested returns the zones the batch will fetch, in order
func (b *Batch) Requested() []domain.RequestedZone {
	return slices.Clone(b.zones)
}

// Workers returns the number of concurrent fetches
func (b *Batch) Workers() int {
	return b.workers
}

// Outcomes returns a lazy sequence with one outcome per requested zone, in
// requested order. Fetching starts when the sequence is ranged over; only the
// first range yields anything. Item failures are yielded, never returned.
// Canceling ctx stops the sequence before the next zone is started.
func (b *Batch) Outcomes(ctx context.Context) iter.Seq[domain.ItemOutcome] {
	return func(yield func(domain.ItemOutcome) bool) {
		if !b.consumed.CompareAndSwap(false, true) {
			return
		}
		if b.workers <= 1 || len(b.zones) <= 1 {
			b.sequential(ctx, yield)
			return
		}
		b.concurrent(ctx, yield)
	}
}

// Collect consumes the outcomes into a BatchResult
func (b *Batch) Collect(ctx context.Context) *domain.BatchResult {
	result := &domain.BatchResult{
		StartedAt: time.Now(),
		Outcomes:  make([]domain.ItemOutcome, 0, len(b.zones)),
	}
	for outcome := range b.Outcomes(ctx) {
		result.Outcomes = append(result.Outcomes, outcome)
	}
	result.FinishedAt = time.Now()
	return result
}

func (b *Batch) sequential(ctx context.Context, yield func(domain.ItemOutcome) bool) {
	for _, zone := range b.zones {
		if ctx.Err() != nil {
			return
		}
		if !yield(b.fetch(ctx, zone)) {
			return
		}
	}
}

// concurrent fetches up to b.workers zones at a time. Each zone has its own
// buffered slot so workers never block on a slow consumer.
func (b *Batch) concurrent(ctx context.Context, yield func(domain.ItemOutcome) bool) {
	ctx, cancel := context.WithCancel(ctx)

	slots := make([]chan domain.ItemOutcome, len(b.zones))
	for i := range slots {
		slots[i] = make(chan domain.ItemOutcome, 1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		var g errgroup.Group
		g.SetLimit(b.workers)
		for i, zone := range b.zones {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				slots[i] <- b.fetch(ctx, zone)
				return nil
			})
		}
		g.Wait()
	}()

	defer func() {
		cancel()
		<-done
	}()

	for i := range b.zones {
		select {
		case outcome := <-slots[i]:
			if !yield(outcome) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Batch) fetch(ctx context.Context, zone domain.RequestedZone) domain.ItemOutcome {
	var (
		file *domain.DownloadedFile
		err  error
	)
	switch zone.Source {
	case domain.SourceExplicit:
		file, err = b.client.FetchZone(ctx, zone.ID)
	default:
		file, err = b.client.FetchURL(ctx, zone.ID)
	}

	if err != nil {
		b.logger.Debug("zone fetch failed",
			zap.String("zone", zone.ID),
			zap.String("error_kind", string(domain.KindOf(err))),
			zap.Error(err))
		return domain.ItemOutcome{Zone: zone.ID, Source: zone.Source, Err: err}
	}

	return domain.ItemOutcome{Zone: zone.ID, Source: zone.Source, File: file}
}
