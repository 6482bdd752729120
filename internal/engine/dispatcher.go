package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
	"github.com/google/uuid"
)

var (
	// ErrExecutionNotFound is returned when no execution log has the id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrNotClaimable is returned when the execution exists but is not in
	// the pending state, so the caller lost the claim race or the row was
	// already processed.
	ErrNotClaimable = errors.New("execution is not claimable")
)

// Dispatcher claims pending executions and runs their workflow pipelines.
// The claim is a conditional update on status=pending, so two dispatchers
// racing on the same row resolve at the database: one wins, one gets
// ErrNotClaimable.
type Dispatcher struct {
	workflowRepo  WorkflowRepository
	executionRepo ExecutionRepository
	runner        *StepRunner
	metrics       *metrics.Metrics
	logger        *logger.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	workflowRepo WorkflowRepository,
	executionRepo ExecutionRepository,
	runner *StepRunner,
	m *metrics.Metrics,
	log *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		workflowRepo:  workflowRepo,
		executionRepo: executionRepo,
		runner:        runner,
		metrics:       m,
		logger:        log,
	}
}

// Dispatch claims and runs a single pending execution. The returned log
// reflects the terminal state of this attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, executionID uuid.UUID) (*models.ExecutionLog, error) {
	execution, err := d.executionRepo.ClaimPending(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return d.run(ctx, execution)
}

// DispatchPending claims and runs up to limit pending executions. Claim
// losses are skipped silently; they just mean another dispatcher got there
// first.
func (d *Dispatcher) DispatchPending(ctx context.Context, limit int) (int, error) {
	pending, err := d.executionRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending executions: %w", err)
	}

	dispatched := 0
	for i := range pending {
		execution, err := d.executionRepo.ClaimPending(ctx, pending[i].ID)
		if errors.Is(err, ErrNotClaimable) || errors.Is(err, ErrExecutionNotFound) {
			continue
		}
		if err != nil {
			return dispatched, err
		}

		if _, err := d.run(ctx, execution); err != nil {
			d.logger.Error("Execution run failed",
				logger.String("execution_id", execution.ID.String()),
				logger.Err(err),
			)
		}
		dispatched++
	}

	return dispatched, nil
}

// run executes a claimed execution to a terminal state. The execution is
// already in running; every exit path lands it in completed or failed.
func (d *Dispatcher) run(ctx context.Context, execution *models.ExecutionLog) (*models.ExecutionLog, error) {
	start := time.Now()

	workflow, err := d.workflowRepo.GetWorkflowByID(ctx, execution.WorkflowID)
	if err != nil {
		return d.fail(ctx, execution, fmt.Errorf("failed to load workflow: %w", err))
	}

	if d.metrics != nil {
		d.metrics.ActiveExecutions.WithLabelValues(workflow.ID.String()).Inc()
		defer d.metrics.ActiveExecutions.WithLabelValues(workflow.ID.String()).Dec()
	}

	execContext := map[string]interface{}(execution.TriggerData)

	results, err := d.runner.RunSteps(ctx, workflow.ID.String(), workflow.Definition.Steps, execContext)
	if err != nil {
		execution.StepResults = results
		return d.fail(ctx, execution, err)
	}

	if err := d.executionRepo.MarkCompleted(ctx, execution.ID, results); err != nil {
		return nil, fmt.Errorf("failed to mark execution completed: %w", err)
	}

	execution.Status = models.ExecutionStatusCompleted
	execution.StepResults = results

	if d.metrics != nil {
		d.metrics.ExecutionsTotal.WithLabelValues(workflow.ID.String(), "completed").Inc()
		d.metrics.ExecutionDuration.WithLabelValues(workflow.ID.String()).Observe(time.Since(start).Seconds())
	}

	d.logger.Info("Execution completed",
		logger.String("execution_id", execution.ID.String()),
		logger.String("workflow_id", workflow.ID.String()),
		logger.Int("steps", len(results)),
	)

	return execution, nil
}

// fail records the failure and its error history, then reports the original
// error to the caller.
func (d *Dispatcher) fail(ctx context.Context, execution *models.ExecutionLog, runErr error) (*models.ExecutionLog, error) {
	execution.AppendError(runErr.Error(), time.Now())

	if err := d.executionRepo.MarkFailed(ctx, execution.ID, runErr.Error(), execution.Details, execution.StepResults); err != nil {
		d.logger.Error("Failed to mark execution failed",
			logger.String("execution_id", execution.ID.String()),
			logger.Err(err),
		)
		return nil, fmt.Errorf("failed to record failure: %w", err)
	}

	execution.Status = models.ExecutionStatusFailed

	if d.metrics != nil {
		d.metrics.ExecutionsTotal.WithLabelValues(execution.WorkflowID.String(), "failed").Inc()
		d.metrics.ExecutionErrors.WithLabelValues(execution.WorkflowID.String()).Inc()
	}

	d.logger.Warn("Execution failed",
		logger.String("execution_id", execution.ID.String()),
		logger.String("workflow_id", execution.WorkflowID.String()),
		logger.Err(runErr),
	)

	return execution, runErr
}
