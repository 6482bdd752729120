package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
)

// RetryPolicy bounds the retry behavior for failed executions.
type RetryPolicy struct {
	// MaxRetries bounds how many times a failed execution may be
	// requeued. The first run is free; attempts counts requeues.
	MaxRetries int

	// CoolDown is the minimum age of a failure before it may be requeued.
	CoolDown time.Duration

	// BaseDelay and Multiplier define the exponential backoff schedule
	// layered on top of the cool-down.
	BaseDelay  time.Duration
	Multiplier float64
}

// DefaultRetryPolicy returns the stock policy: 3 retries, 5 minute
// cool-down, 5s base delay doubling per retry.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		CoolDown:   5 * time.Minute,
		BaseDelay:  5 * time.Second,
		Multiplier: 2,
	}
}

// Backoff returns the extra delay required before requeueing a row that has
// already been retried the given number of times. A fresh failure waits the
// base delay.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		return p.BaseDelay
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempts)))
}

// RetrySweeper requeues failed executions whose cool-down and backoff have
// both elapsed. Requeueing flips failed back to pending via a conditional
// update, so a concurrent sweep cannot double-requeue a row.
type RetrySweeper struct {
	executionRepo ExecutionRepository
	policy        RetryPolicy
	metrics       *metrics.Metrics
	logger        *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRetrySweeper creates a new retry sweeper
func NewRetrySweeper(executionRepo ExecutionRepository, policy RetryPolicy, m *metrics.Metrics, log *logger.Logger) *RetrySweeper {
	return &RetrySweeper{
		executionRepo: executionRepo,
		policy:        policy,
		metrics:       m,
		logger:        log,
		now:           time.Now,
	}
}

// SweepResult summarizes one pass of the sweeper.
type SweepResult struct {
	Requeued int `json:"requeued"`
	Waiting  int `json:"waiting"`
}

// Sweep requeues eligible failed executions. Rows still inside their backoff
// window are counted as waiting and picked up by a later pass.
func (s *RetrySweeper) Sweep(ctx context.Context, limit int) (*SweepResult, error) {
	cutoff := s.now().Add(-s.policy.CoolDown)

	candidates, err := s.executionRepo.ListRetryable(ctx, cutoff, s.policy.MaxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable executions: %w", err)
	}

	result := &SweepResult{}

	for i := range candidates {
		execution := &candidates[i]

		if !s.eligible(execution) {
			result.Waiting++
			continue
		}

		requeued, err := s.executionRepo.RequeueFailed(ctx, execution.ID)
		if err != nil {
			return result, fmt.Errorf("failed to requeue execution %s: %w", execution.ID, err)
		}
		if !requeued {
			// Lost the race to another sweeper or the row moved on.
			continue
		}

		result.Requeued++

		if s.metrics != nil {
			s.metrics.RetriesRequeued.WithLabelValues(execution.WorkflowID.String()).Inc()
		}

		s.logger.Info("Execution requeued for retry",
			logger.String("execution_id", execution.ID.String()),
			logger.String("workflow_id", execution.WorkflowID.String()),
			logger.Int("attempts", execution.Attempts),
		)
	}

	return result, nil
}

// eligible checks the backoff window on top of the repository's cool-down
// filter. A row with no recorded failure time is treated as eligible.
func (s *RetrySweeper) eligible(execution *models.ExecutionLog) bool {
	if execution.CompletedAt == nil {
		return true
	}
	elapsed := s.now().Sub(*execution.CompletedAt)
	return elapsed >= s.policy.Backoff(execution.Attempts)
}

// ListExhausted returns failed executions that have spent their full retry
// budget and will never be requeued automatically.
func (s *RetrySweeper) ListExhausted(ctx context.Context, limit int) ([]models.ExecutionLog, error) {
	return s.executionRepo.ListExhausted(ctx, s.policy.MaxRetries, limit)
}
