package workers

import (
	"context"
	"time"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
)

// DispatchWorker periodically claims and runs pending executions. Multiple
// instances may run against the same database; the claim semantics make
// that safe.
type DispatchWorker struct {
	dispatcher    *engine.Dispatcher
	logger        *logger.Logger
	metrics       *metrics.Metrics
	checkInterval time.Duration
	batchSize     int
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// NewDispatchWorker creates a new dispatch worker
func NewDispatchWorker(
	dispatcher *engine.Dispatcher,
	m *metrics.Metrics,
	log *logger.Logger,
	checkInterval time.Duration,
	batchSize int,
) *DispatchWorker {
	if checkInterval == 0 {
		checkInterval = 15 * time.Second
	}
	if batchSize == 0 {
		batchSize = 50
	}

	return &DispatchWorker{
		dispatcher:    dispatcher,
		logger:        log,
		metrics:       m,
		checkInterval: checkInterval,
		batchSize:     batchSize,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start starts the worker in the background
func (w *DispatchWorker) Start(ctx context.Context) {
	w.logger.Info("Starting dispatch worker",
		logger.String("interval", w.checkInterval.String()),
		logger.Int("batch_size", w.batchSize),
	)

	go w.run(ctx)
}

// Stop stops the worker gracefully
func (w *DispatchWorker) Stop() {
	w.logger.Info("Stopping dispatch worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info("Dispatch worker stopped")
}

func (w *DispatchWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	w.dispatch(ctx)

	for {
		select {
		case <-ticker.C:
			w.dispatch(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *DispatchWorker) dispatch(ctx context.Context) {
	start := time.Now()

	dispatched, err := w.dispatcher.DispatchPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Errorf("Pending dispatch failed: %v", err)
		if w.metrics != nil {
			w.metrics.WorkerErrors.WithLabelValues("dispatch").Inc()
		}
		return
	}

	if w.metrics != nil {
		w.metrics.WorkerJobsProcessed.WithLabelValues("dispatch", "ok").Inc()
		w.metrics.WorkerJobDuration.WithLabelValues("dispatch").Observe(time.Since(start).Seconds())
	}

	if dispatched > 0 {
		w.logger.Info("Dispatched pending executions", logger.Int("count", dispatched))
	}
}
