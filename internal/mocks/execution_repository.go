package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/google/uuid"
)

// ExecutionRepository is an in-memory execution log store for tests. Claim
// and requeue honor the same conditional-update semantics as the SQL
// implementation, so race tests against it are meaningful.
type ExecutionRepository struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*models.ExecutionLog
	byEventKey map[string]uuid.UUID
}

// NewExecutionRepository creates a new in-memory execution repository
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{
		executions: make(map[uuid.UUID]*models.ExecutionLog),
		byEventKey: make(map[string]uuid.UUID),
	}
}

func eventKey(eventID string, workflowID uuid.UUID) string {
	return eventID + "/" + workflowID.String()
}

// CreateExecution inserts a pending execution, idempotent on
// (event_id, workflow_id).
func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.ExecutionLog) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := eventKey(execution.EventID, execution.WorkflowID)
	if _, exists := r.byEventKey[key]; exists {
		return false, nil
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now()
	}

	copied := *execution
	r.executions[execution.ID] = &copied
	r.byEventKey[key] = execution.ID
	return true, nil
}

// GetExecutionByID retrieves an execution by ID
func (r *ExecutionRepository) GetExecutionByID(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return nil, engine.ErrExecutionNotFound
	}

	copied := *execution
	return &copied, nil
}

// ClaimPending atomically moves a pending execution to running. Exactly one
// caller wins per pending state. Attempts advance on requeue, not on claim.
func (r *ExecutionRepository) ClaimPending(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return nil, engine.ErrExecutionNotFound
	}

	if execution.Status != models.ExecutionStatusPending {
		return nil, engine.ErrNotClaimable
	}

	now := time.Now()
	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &now

	copied := *execution
	return &copied, nil
}

// ListPending returns up to limit pending executions, oldest first
func (r *ExecutionRepository) ListPending(ctx context.Context, limit int) ([]models.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []models.ExecutionLog
	for _, execution := range r.executions {
		if execution.Status == models.ExecutionStatusPending {
			pending = append(pending, *execution)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkCompleted moves a running execution to completed
func (r *ExecutionRepository) MarkCompleted(ctx context.Context, id uuid.UUID, results models.StepResults) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return engine.ErrExecutionNotFound
	}

	if err := execution.Transition(models.ExecutionStatusCompleted); err != nil {
		return err
	}

	now := time.Now()
	execution.CompletedAt = &now
	execution.StepResults = results
	execution.ErrorMessage = nil
	return nil
}

// MarkFailed moves a running execution to failed
func (r *ExecutionRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, details models.JSONB, results models.StepResults) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return engine.ErrExecutionNotFound
	}

	if err := execution.Transition(models.ExecutionStatusFailed); err != nil {
		return err
	}

	now := time.Now()
	execution.CompletedAt = &now
	execution.ErrorMessage = &errMsg
	execution.Details = details
	execution.StepResults = results
	return nil
}

// ListRetryable returns failed executions below the retry ceiling whose
// failure is older than the cutoff.
func (r *ExecutionRepository) ListRetryable(ctx context.Context, failedBefore time.Time, maxRetries int, limit int) ([]models.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var retryable []models.ExecutionLog
	for _, execution := range r.executions {
		if execution.Status != models.ExecutionStatusFailed {
			continue
		}
		if execution.Attempts >= maxRetries {
			continue
		}
		if execution.CompletedAt != nil && execution.CompletedAt.After(failedBefore) {
			continue
		}
		retryable = append(retryable, *execution)
	}

	sort.Slice(retryable, func(i, j int) bool {
		return retryable[i].CreatedAt.Before(retryable[j].CreatedAt)
	})

	if limit > 0 && len(retryable) > limit {
		retryable = retryable[:limit]
	}
	return retryable, nil
}

// ListExhausted returns failed executions at or above the retry ceiling
func (r *ExecutionRepository) ListExhausted(ctx context.Context, maxRetries int, limit int) ([]models.ExecutionLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var exhausted []models.ExecutionLog
	for _, execution := range r.executions {
		if execution.Status == models.ExecutionStatusFailed && execution.Attempts >= maxRetries {
			exhausted = append(exhausted, *execution)
		}
	}

	sort.Slice(exhausted, func(i, j int) bool {
		return exhausted[i].CreatedAt.Before(exhausted[j].CreatedAt)
	})

	if limit > 0 && len(exhausted) > limit {
		exhausted = exhausted[:limit]
	}
	return exhausted, nil
}

// SetCompletedAt overrides a row's failure timestamp. Test hook for aging
// failures past cool-down windows.
func (r *ExecutionRepository) SetCompletedAt(id uuid.UUID, at *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return engine.ErrExecutionNotFound
	}
	execution.CompletedAt = at
	return nil
}

// RequeueFailed conditionally flips a failed execution back to pending,
// consuming one unit of the retry budget and clearing the surface error
func (r *ExecutionRepository) RequeueFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[id]
	if !ok {
		return false, engine.ErrExecutionNotFound
	}

	if execution.Status != models.ExecutionStatusFailed {
		return false, nil
	}

	execution.Status = models.ExecutionStatusPending
	execution.Attempts++
	execution.ErrorMessage = nil
	execution.CompletedAt = nil
	execution.StartedAt = nil
	return true, nil
}
