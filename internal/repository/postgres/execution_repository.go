package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/google/uuid"
)

// ExecutionRepository handles execution log database operations. Every state
// change is a conditional update keyed on the current status, so concurrent
// workers resolve claims and requeues at the database.
type ExecutionRepository struct {
	db *sql.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

const executionColumns = `
	id, workflow_id, event_id, trigger_data, status, attempts,
	error_message, details, step_results, created_at, started_at, completed_at`

// CreateExecution inserts a pending execution. The unique constraint on
// (event_id, workflow_id) makes the insert idempotent; a replayed event
// reports created=false.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.ExecutionLog) (bool, error) {
	query := `
		INSERT INTO execution_logs (id, workflow_id, event_id, trigger_data, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, workflow_id) DO NOTHING`

	result, err := r.db.ExecContext(
		ctx, query,
		execution.ID, execution.WorkflowID, execution.EventID,
		execution.TriggerData, execution.Status,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// GetExecutionByID retrieves an execution by ID
func (r *ExecutionRepository) GetExecutionByID(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error) {
	query := `SELECT ` + executionColumns + ` FROM execution_logs WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, engine.ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return execution, nil
}

// ClaimPending atomically claims a pending execution: the row moves to
// running only if it is still pending. Exactly one of any number of racing
// claimers gets the row back. Attempts advance on requeue, not on claim, so
// a first run leaves the counter at zero.
func (r *ExecutionRepository) ClaimPending(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error) {
	query := `
		UPDATE execution_logs
		SET status = 'running',
		    started_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + executionColumns

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		// Distinguish a lost race from a missing row.
		if _, getErr := r.GetExecutionByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, engine.ErrNotClaimable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim execution: %w", err)
	}

	return execution, nil
}

// ListPending returns up to limit pending executions, oldest first
func (r *ExecutionRepository) ListPending(ctx context.Context, limit int) ([]models.ExecutionLog, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution_logs
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// MarkCompleted moves a running execution to completed
func (r *ExecutionRepository) MarkCompleted(ctx context.Context, id uuid.UUID, results models.StepResults) error {
	query := `
		UPDATE execution_logs
		SET status = 'completed',
		    step_results = $2,
		    error_message = NULL,
		    completed_at = NOW()
		WHERE id = $1 AND status = 'running'`

	return r.execTransition(ctx, query, id, results)
}

// MarkFailed moves a running execution to failed, recording the error and
// its accumulated history.
func (r *ExecutionRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, details models.JSONB, results models.StepResults) error {
	query := `
		UPDATE execution_logs
		SET status = 'failed',
		    error_message = $2,
		    details = $3,
		    step_results = $4,
		    completed_at = NOW()
		WHERE id = $1 AND status = 'running'`

	return r.execTransition(ctx, query, id, errMsg, details, results)
}

// ListRetryable returns failed executions below the retry ceiling whose
// failure is older than the cutoff.
func (r *ExecutionRepository) ListRetryable(ctx context.Context, failedBefore time.Time, maxRetries int, limit int) ([]models.ExecutionLog, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution_logs
		WHERE status = 'failed'
		  AND attempts < $1
		  AND completed_at <= $2
		ORDER BY completed_at
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, maxRetries, failedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// ListExhausted returns failed executions that spent their retry budget
func (r *ExecutionRepository) ListExhausted(ctx context.Context, maxRetries int, limit int) ([]models.ExecutionLog, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM execution_logs
		WHERE status = 'failed' AND attempts >= $1
		ORDER BY completed_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list exhausted executions: %w", err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// RequeueFailed conditionally flips a failed execution back to pending,
// consuming one unit of the retry budget and clearing the surface error.
// The failure history stays in details. Returns false without error when the
// row is no longer failed, which means another sweeper got there first.
func (r *ExecutionRepository) RequeueFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE execution_logs
		SET status = 'pending',
		    attempts = attempts + 1,
		    error_message = NULL,
		    started_at = NULL,
		    completed_at = NULL
		WHERE id = $1 AND status = 'failed'`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to requeue execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// ListExecutions returns executions with optional workflow and status
// filters, newest first.
func (r *ExecutionRepository) ListExecutions(ctx context.Context, workflowID *uuid.UUID, status *models.ExecutionStatus, limit, offset int) ([]models.ExecutionLog, int64, error) {
	countQuery := `
		SELECT COUNT(*)
		FROM execution_logs
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)`

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, workflowID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	query := `
		SELECT ` + executionColumns + `
		FROM execution_logs
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, workflowID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	executions, err := scanExecutions(rows)
	if err != nil {
		return nil, 0, err
	}

	return executions, total, nil
}

func (r *ExecutionRepository) execTransition(ctx context.Context, query string, id uuid.UUID, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("execution %s is not in a state that allows this transition", id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*models.ExecutionLog, error) {
	execution := &models.ExecutionLog{}
	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.EventID,
		&execution.TriggerData, &execution.Status, &execution.Attempts,
		&execution.ErrorMessage, &execution.Details, &execution.StepResults,
		&execution.CreatedAt, &execution.StartedAt, &execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return execution, nil
}

func scanExecutions(rows *sql.Rows) ([]models.ExecutionLog, error) {
	var executions []models.ExecutionLog
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, *execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate executions: %w", err)
	}

	return executions, nil
}
