package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/chartmed-ai/karte/internal/storage"
	"github.com/chartmed-ai/karte/internal/telemetry"
)

// claimTimeout bounds one claim pass over both queues.
const claimTimeout = 10 * time.Second

// Config sizes the executor.
type Config struct {
	PollInterval  time.Duration
	MaxConcurrent int
}

// Executor polls the job queues and fans claimed work out to the
// processors. At most MaxConcurrent jobs and cases run at once, counted
// together.
type Executor struct {
	db       *storage.DB
	analysis *AnalysisProcessor
	board    *BoardProcessor
	logger   *slog.Logger

	pollInterval time.Duration
	slots        *semaphore.Weighted

	started    atomic.Bool
	cancelLoop context.CancelFunc
	cancelRuns context.CancelFunc
	runCtx     context.Context
	done       chan struct{}
	inflight   sync.WaitGroup
}

// NewExecutor creates an executor over both queues.
func NewExecutor(db *storage.DB, analysis *AnalysisProcessor, board *BoardProcessor, cfg Config, logger *slog.Logger) *Executor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		db:           db,
		analysis:     analysis,
		board:        board,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		slots:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		done:         make(chan struct{}),
	}
}

// Start begins the claim loop. It is safe to call only once; subsequent
// calls are no-ops and log a warning.
func (e *Executor) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) {
		e.logger.Warn("jobs: Start called more than once, ignoring")
		return
	}
	e.registerMetrics()
	loopCtx, cancelLoop := context.WithCancel(ctx)
	e.cancelLoop = cancelLoop
	// Claimed work runs on its own context so stopping the claim loop
	// does not abort runs already in flight. Values (trace context)
	// still flow through.
	e.runCtx, e.cancelRuns = context.WithCancel(context.WithoutCancel(ctx))
	go e.pollLoop(loopCtx)
}

// Running reports whether the claim loop is active. Used by the health
// endpoint.
func (e *Executor) Running() bool {
	if !e.started.Load() {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Drain stops claiming and waits for in-flight work. When ctx expires
// first, running jobs are hard-cancelled and given a short grace period
// to record their terminal status.
func (e *Executor) Drain(ctx context.Context) {
	if !e.started.Load() {
		return
	}
	e.cancelLoop()
	<-e.done
	defer e.cancelRuns()

	finished := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		e.logger.Warn("jobs: drain deadline reached, cancelling in-flight work")
		e.cancelRuns()
		select {
		case <-finished:
		case <-time.After(terminalWriteTimeout):
			e.logger.Warn("jobs: drain timed out with work still in flight")
		}
	}
}

func (e *Executor) pollLoop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			claimCtx, cancel := context.WithTimeout(ctx, claimTimeout)
			e.dispatch(claimCtx)
			cancel()
		}
	}
}

// dispatch claims queued work until both queues miss or every slot is
// taken, alternating kinds so a burst of one cannot starve the other.
func (e *Executor) dispatch(ctx context.Context) {
	for {
		claimed := false
		if e.claimAnalysisJob(ctx) {
			claimed = true
		}
		if e.claimBoardCase(ctx) {
			claimed = true
		}
		if !claimed {
			return
		}
	}
}

func (e *Executor) claimAnalysisJob(ctx context.Context) bool {
	if !e.slots.TryAcquire(1) {
		return false
	}
	job, err := e.db.ClaimQueuedJob(ctx)
	if err != nil {
		e.slots.Release(1)
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Error("jobs: claim analysis job", "error", err)
		}
		return false
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer e.slots.Release(1)
		e.analysis.Process(e.runCtx, job)
	}()
	return true
}

func (e *Executor) claimBoardCase(ctx context.Context) bool {
	if !e.slots.TryAcquire(1) {
		return false
	}
	c, err := e.db.ClaimQueuedCase(ctx)
	if err != nil {
		e.slots.Release(1)
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Error("jobs: claim board case", "error", err)
		}
		return false
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer e.slots.Release(1)
		e.board.Process(e.runCtx, c)
	}()
	return true
}

// registerMetrics publishes observable queue-depth gauges.
func (e *Executor) registerMetrics() {
	meter := telemetry.Meter("karte/jobs")

	_, _ = meter.Int64ObservableGauge("karte.jobs.analysis.queued",
		metric.WithDescription("Number of queued document analysis jobs"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			var count int64
			err := e.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM ai_reports WHERE status = 'queued'`).Scan(&count)
			if err != nil {
				return nil // Non-fatal: just skip this observation.
			}
			o.Observe(count)
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("karte.jobs.board.queued",
		metric.WithDescription("Number of queued tumor board cases"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			var count int64
			err := e.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM tumor_board_cases WHERE status = 'queued'`).Scan(&count)
			if err != nil {
				return nil // Non-fatal: just skip this observation.
			}
			o.Observe(count)
			return nil
		}),
	)
}
