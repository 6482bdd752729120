package workers

import (
	"context"
	"time"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
)

// RetryWorker periodically sweeps failed executions back into the pending
// queue. The engine itself holds no background threads; this worker owns
// the timer.
type RetryWorker struct {
	sweeper       *engine.RetrySweeper
	logger        *logger.Logger
	metrics       *metrics.Metrics
	checkInterval time.Duration
	batchSize     int
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// NewRetryWorker creates a new retry worker
func NewRetryWorker(
	sweeper *engine.RetrySweeper,
	m *metrics.Metrics,
	log *logger.Logger,
	checkInterval time.Duration,
	batchSize int,
) *RetryWorker {
	if checkInterval == 0 {
		checkInterval = 1 * time.Minute
	}
	if batchSize == 0 {
		batchSize = 100
	}

	return &RetryWorker{
		sweeper:       sweeper,
		logger:        log,
		metrics:       m,
		checkInterval: checkInterval,
		batchSize:     batchSize,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start starts the worker in the background
func (w *RetryWorker) Start(ctx context.Context) {
	w.logger.Info("Starting retry worker",
		logger.String("interval", w.checkInterval.String()),
		logger.Int("batch_size", w.batchSize),
	)

	go w.run(ctx)
}

// Stop stops the worker gracefully
func (w *RetryWorker) Stop() {
	w.logger.Info("Stopping retry worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info("Retry worker stopped")
}

func (w *RetryWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *RetryWorker) sweep(ctx context.Context) {
	start := time.Now()

	result, err := w.sweeper.Sweep(ctx, w.batchSize)
	if err != nil {
		w.logger.Errorf("Retry sweep failed: %v", err)
		if w.metrics != nil {
			w.metrics.WorkerErrors.WithLabelValues("retry").Inc()
		}
		return
	}

	if w.metrics != nil {
		w.metrics.WorkerJobsProcessed.WithLabelValues("retry", "ok").Inc()
		w.metrics.WorkerJobDuration.WithLabelValues("retry").Observe(time.Since(start).Seconds())
	}

	if result.Requeued > 0 || result.Waiting > 0 {
		w.logger.Info("Retry sweep finished",
			logger.Int("requeued", result.Requeued),
			logger.Int("waiting", result.Waiting),
		)
	}
}
