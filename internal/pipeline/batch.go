package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/snl-sec/snlscan/internal/model"
)

// BatchResult is the outcome of one target within a batch.
type BatchResult struct {
	// Target is the URL that was scanned.
	Target string

	// Result is the scan result, nil when the scan failed.
	Result *model.ScanResult

	// Err is the fatal scan error, nil on success.
	Err error
}

// BatchProcessor handles concurrent scanning of multiple targets.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding
// batch functionality to Orchestrator because:
// 1. It keeps the Orchestrator focused on single-scan execution
// 2. It allows different batch strategies (e.g., rate limiting, retries)
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// orchestrator executes each individual scan.
	orchestrator *Orchestrator

	// concurrency is the maximum number of concurrent scans. External
	// tool processes dominate the cost, so this bounds forked processes,
	// not goroutines.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed scan outcomes.
	// Access is synchronized via mutex.
	results []BatchResult
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent scans.
// Default is 3 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor over the given
// orchestrator.
func NewBatchProcessor(orchestrator *Orchestrator, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		orchestrator: orchestrator,
		concurrency:  3,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch scans multiple targets concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Each target gets its own goroutine, but only 'concurrency' goroutines
// run simultaneously.
//
// Returns one BatchResult per target in input order, including failed
// scans. The error return indicates the batch was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string, mode model.ScanMode) ([]BatchResult, error) {
	bp.logger.Info("starting batch processing",
		"total_targets", len(targets),
		"concurrency", bp.concurrency,
		"mode", mode,
	)

	startTime := time.Now()

	// Pre-allocated so each goroutine writes its own slot in input order.
	bp.results = make([]BatchResult, len(targets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("scanning target",
				"target", target,
				"index", i+1,
				"total", len(targets),
			)

			result, err := bp.orchestrator.Execute(ctx, uuid.NewString(), target, mode)

			bp.mu.Lock()
			bp.results[i] = BatchResult{Target: target, Result: result, Err: err}
			bp.mu.Unlock()

			if err != nil {
				bp.logger.Warn("scan failed",
					"target", target,
					"error", err,
				)
				// One broken target must not stop the rest of the batch;
				// the error is recorded in its slot.
				return nil
			}

			bp.logger.Info("scan completed", "target", target)
			return nil
		})
	}

	err := g.Wait()

	elapsed := time.Since(startTime)
	bp.logger.Info("batch processing complete",
		"total_targets", len(targets),
		"elapsed", elapsed,
	)

	return bp.results, err
}

// ProcessBatchWithCallback scans multiple targets and calls a callback
// for each completed scan. This is useful for streaming results.
//
// The callback receives the outcome and the index of the target in the
// original slice. The callback is called from the goroutine that
// completed the scan, so it should be thread-safe if it accesses shared
// state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	targets []string,
	mode model.ScanMode,
	callback func(result BatchResult, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_targets", len(targets),
		"concurrency", bp.concurrency,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			result, err := bp.orchestrator.Execute(ctx, uuid.NewString(), target, mode)
			callback(BatchResult{Target: target, Result: result, Err: err}, i)

			return nil
		})
	}

	return g.Wait()
}
