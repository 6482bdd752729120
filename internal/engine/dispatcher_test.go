package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/mocks"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	workflowRepo  *mocks.WorkflowRepository
	executionRepo *mocks.ExecutionRepository
	sender        *fakeSender
	dispatcher    *engine.Dispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	workflowRepo := mocks.NewWorkflowRepository()
	executionRepo := mocks.NewExecutionRepository()
	sender := &fakeSender{}
	log := logger.NewForTesting()

	runner := engine.NewStepRunner(sender, sender, nil, log)
	dispatcher := engine.NewDispatcher(workflowRepo, executionRepo, runner, nil, log)

	return &dispatcherFixture{
		workflowRepo:  workflowRepo,
		executionRepo: executionRepo,
		sender:        sender,
		dispatcher:    dispatcher,
	}
}

func (f *dispatcherFixture) enqueue(t *testing.T, wf *models.Workflow, eventID string, triggerData models.JSONB) *models.ExecutionLog {
	t.Helper()
	f.workflowRepo.AddWorkflow(wf)

	execution := &models.ExecutionLog{
		ID:          uuid.New(),
		WorkflowID:  wf.ID,
		EventID:     eventID,
		TriggerData: triggerData,
		Status:      models.ExecutionStatusPending,
	}
	created, err := f.executionRepo.CreateExecution(context.Background(), execution)
	require.NoError(t, err)
	require.True(t, created)
	return execution
}

func TestDispatchSuccess(t *testing.T) {
	f := newDispatcherFixture()

	wf := newWorkflow(models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"})
	execution := f.enqueue(t, wf, "evt-1", models.JSONB{
		"jobs": map[string]interface{}{"phone": "+15550100"},
	})

	result, err := f.dispatcher.Dispatch(context.Background(), execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, result.Status)
	require.Len(t, f.sender.sms, 1)
	assert.Equal(t, "+15550100", f.sender.sms[0].To)

	stored, err := f.executionRepo.GetExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	// Attempts counts retries; a first-run success consumes none.
	assert.Equal(t, 0, stored.Attempts)
	assert.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.StepResults, 1)
	assert.Equal(t, models.StepResultSuccess, stored.StepResults[0].Status)
}

func TestDispatchFailureRecordsHistory(t *testing.T) {
	f := newDispatcherFixture()
	f.sender.err = errors.New("provider down")

	wf := newWorkflow(models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"})
	execution := f.enqueue(t, wf, "evt-1", models.JSONB{})

	_, err := f.dispatcher.Dispatch(context.Background(), execution.ID)
	require.Error(t, err)

	stored, err := f.executionRepo.GetExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "provider down")

	// A first-run failure leaves the retry budget untouched.
	assert.Equal(t, 0, stored.Attempts)

	history := stored.PreviousErrors()
	require.Len(t, history, 1)
	assert.Equal(t, 0, history[0].Attempt)
}

func TestDispatchNotClaimable(t *testing.T) {
	f := newDispatcherFixture()

	wf := newWorkflow(models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"})
	execution := f.enqueue(t, wf, "evt-1", models.JSONB{
		"jobs": map[string]interface{}{"phone": "+15550100"},
	})

	_, err := f.dispatcher.Dispatch(context.Background(), execution.ID)
	require.NoError(t, err)

	// Completed rows cannot be claimed again.
	_, err = f.dispatcher.Dispatch(context.Background(), execution.ID)
	assert.ErrorIs(t, err, engine.ErrNotClaimable)
}

func TestDispatchUnknownExecution(t *testing.T) {
	f := newDispatcherFixture()
	_, err := f.dispatcher.Dispatch(context.Background(), uuid.New())
	assert.ErrorIs(t, err, engine.ErrExecutionNotFound)
}

// TestDispatchConcurrentClaim races many dispatchers on one pending row:
// exactly one wins, the rest lose the claim.
func TestDispatchConcurrentClaim(t *testing.T) {
	f := newDispatcherFixture()

	wf := newWorkflow(models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"})
	execution := f.enqueue(t, wf, "evt-1", models.JSONB{
		"jobs": map[string]interface{}{"phone": "+15550100"},
	})

	const racers = 16

	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.dispatcher.Dispatch(context.Background(), execution.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, engine.ErrNotClaimable)
		}
	}
	assert.Equal(t, 1, winners)

	// Exactly one delivery happened.
	assert.Len(t, f.sender.sms, 1)

	stored, err := f.executionRepo.GetExecutionByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Equal(t, 0, stored.Attempts)
}

func TestDispatchPendingBatch(t *testing.T) {
	f := newDispatcherFixture()

	wf := newWorkflow(models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"})
	f.workflowRepo.AddWorkflow(wf)

	for i := 0; i < 3; i++ {
		execution := &models.ExecutionLog{
			ID:         uuid.New(),
			WorkflowID: wf.ID,
			EventID:    uuid.New().String(),
			TriggerData: models.JSONB{
				"jobs": map[string]interface{}{"phone": "+15550100"},
			},
			Status: models.ExecutionStatusPending,
		}
		created, err := f.executionRepo.CreateExecution(context.Background(), execution)
		require.NoError(t, err)
		require.True(t, created)
	}

	dispatched, err := f.dispatcher.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, dispatched)

	pending, err := f.executionRepo.ListPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
