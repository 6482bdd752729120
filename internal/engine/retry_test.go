package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/mocks"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyBackoff(t *testing.T) {
	policy := engine.DefaultRetryPolicy()

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: -1, want: 5 * time.Second},
		{attempts: 0, want: 5 * time.Second},
		{attempts: 1, want: 10 * time.Second},
		{attempts: 2, want: 20 * time.Second},
		{attempts: 3, want: 40 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Backoff(tt.attempts), "attempts=%d", tt.attempts)
	}

	// Strictly increasing once retries accumulate.
	for i := 0; i < 8; i++ {
		assert.Less(t, policy.Backoff(i), policy.Backoff(i+1))
	}
}

type retryFixture struct {
	executionRepo *mocks.ExecutionRepository
	sweeper       *engine.RetrySweeper
	policy        engine.RetryPolicy
}

func newRetryFixture(t *testing.T) *retryFixture {
	executionRepo := mocks.NewExecutionRepository()
	policy := engine.DefaultRetryPolicy()
	sweeper := engine.NewRetrySweeper(executionRepo, policy, nil, logger.NewForTesting())
	return &retryFixture{executionRepo: executionRepo, sweeper: sweeper, policy: policy}
}

// failExecution drives a fresh execution into the failed state through the
// repository so the transition guards hold, consuming the given number of
// retries along the way, then backdates the final failure.
func (f *retryFixture) failExecution(t *testing.T, retries int, failedAgo time.Duration) *models.ExecutionLog {
	t.Helper()
	ctx := context.Background()

	execution := &models.ExecutionLog{
		ID:         uuid.New(),
		WorkflowID: uuid.New(),
		EventID:    uuid.New().String(),
		Status:     models.ExecutionStatusPending,
	}
	created, err := f.executionRepo.CreateExecution(ctx, execution)
	require.NoError(t, err)
	require.True(t, created)

	_, err = f.executionRepo.ClaimPending(ctx, execution.ID)
	require.NoError(t, err)
	require.NoError(t, f.executionRepo.MarkFailed(ctx, execution.ID, "boom", nil, nil))

	for i := 0; i < retries; i++ {
		requeued, err := f.executionRepo.RequeueFailed(ctx, execution.ID)
		require.NoError(t, err)
		require.True(t, requeued)

		_, err = f.executionRepo.ClaimPending(ctx, execution.ID)
		require.NoError(t, err)
		require.NoError(t, f.executionRepo.MarkFailed(ctx, execution.ID, "boom", nil, nil))
	}

	f.backdate(t, execution.ID, failedAgo)
	return execution
}

func (f *retryFixture) backdate(t *testing.T, id uuid.UUID, ago time.Duration) {
	t.Helper()
	past := time.Now().Add(-ago)
	require.NoError(t, f.executionRepo.SetCompletedAt(id, &past))
}

func TestSweepRequeuesAfterCoolDown(t *testing.T) {
	f := newRetryFixture(t)
	execution := f.failExecution(t, 0, 6*time.Minute)

	// The first failure leaves the budget untouched.
	stored, err := f.executionRepo.GetExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Attempts)

	result, err := f.sweeper.Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Requeued)

	stored, err = f.executionRepo.GetExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, stored.Status)
	// The requeue consumes one retry and clears the surface error; the
	// history stays in details.
	assert.Equal(t, 1, stored.Attempts)
	assert.Nil(t, stored.ErrorMessage)
}

func TestSweepHonorsCoolDown(t *testing.T) {
	f := newRetryFixture(t)
	f.failExecution(t, 0, time.Minute)

	result, err := f.sweeper.Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Requeued)
}

func TestSweepSkipsExhaustedExecutions(t *testing.T) {
	f := newRetryFixture(t)
	execution := f.failExecution(t, 3, time.Hour)

	result, err := f.sweeper.Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Requeued)

	stored, err := f.executionRepo.GetExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)

	exhausted, err := f.sweeper.ListExhausted(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, exhausted, 1)
	assert.Equal(t, execution.ID, exhausted[0].ID)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newRetryFixture(t)
	f.failExecution(t, 1, time.Hour)

	first, err := f.sweeper.Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Requeued)

	// The row is pending now; a second sweep finds nothing.
	second, err := f.sweeper.Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Requeued)
}

func TestRetryCeilingEndToEnd(t *testing.T) {
	workflowRepo := mocks.NewWorkflowRepository()
	executionRepo := mocks.NewExecutionRepository()
	log := logger.NewForTesting()

	sender := &fakeSender{err: errors.New("always down")}
	runner := engine.NewStepRunner(sender, sender, nil, log)
	dispatcher := engine.NewDispatcher(workflowRepo, executionRepo, runner, nil, log)
	policy := engine.DefaultRetryPolicy()
	sweeper := engine.NewRetrySweeper(executionRepo, policy, nil, log)

	wf := newWorkflow(models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"})
	workflowRepo.AddWorkflow(wf)

	execution := &models.ExecutionLog{
		ID:         uuid.New(),
		WorkflowID: wf.ID,
		EventID:    "evt-ceiling",
		Status:     models.ExecutionStatusPending,
	}
	created, err := executionRepo.CreateExecution(context.Background(), execution)
	require.NoError(t, err)
	require.True(t, created)

	ctx := context.Background()

	// The first run is free; each requeue after it consumes one retry.
	runs := policy.MaxRetries + 1
	for run := 1; run <= runs; run++ {
		_, err := dispatcher.Dispatch(ctx, execution.ID)
		require.Error(t, err)

		// Age the failure past cool-down and backoff.
		past := time.Now().Add(-time.Hour)
		require.NoError(t, executionRepo.SetCompletedAt(execution.ID, &past))

		result, err := sweeper.Sweep(ctx, 10)
		require.NoError(t, err)

		if run <= policy.MaxRetries {
			assert.Equal(t, 1, result.Requeued, "run %d should requeue", run)
		} else {
			assert.Equal(t, 0, result.Requeued, "run %d exhausted the budget", run)
		}
	}

	stored, err := executionRepo.GetExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	assert.Equal(t, policy.MaxRetries, stored.Attempts)

	// One history entry per failed run.
	history := stored.PreviousErrors()
	assert.Len(t, history, runs)
}
