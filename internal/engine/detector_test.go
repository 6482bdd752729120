package engine_test

import (
	"context"
	"testing"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/mocks"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflow(trigger models.TriggerDefinition) *models.Workflow {
	return &models.Workflow{
		ID:     uuid.New(),
		Name:   "test workflow",
		Active: true,
		Definition: models.WorkflowDefinition{
			Trigger: trigger,
			Steps: []models.ActionStep{
				{ID: "s1", Type: models.StepSendSMS, To: "{{jobs.phone}}", Message: "hello"},
			},
		},
	}
}

func updateEvent(eventID string, before, after models.JSONB) *models.MutationEvent {
	return &models.MutationEvent{
		EventID: eventID,
		Type:    models.MutationUpdate,
		Table:   "jobs",
		Before:  before,
		After:   after,
	}
}

func TestDetectTriggerClassification(t *testing.T) {
	tests := []struct {
		name    string
		trigger models.TriggerDefinition
		event   *models.MutationEvent
		match   bool
	}{
		{
			name:    "entity-created matches insert",
			trigger: models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"},
			event: &models.MutationEvent{
				EventID: "evt-1", Type: models.MutationInsert, Table: "jobs",
				After: models.JSONB{"status": "new"},
			},
			match: true,
		},
		{
			name:    "entity-created ignores update",
			trigger: models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"},
			event:   updateEvent("evt-2", models.JSONB{"status": "new"}, models.JSONB{"status": "new"}),
			match:   false,
		},
		{
			name:    "entity-updated matches update",
			trigger: models.TriggerDefinition{Type: models.TriggerEntityUpdated, Table: "jobs"},
			event:   updateEvent("evt-3", models.JSONB{"status": "new"}, models.JSONB{"status": "new"}),
			match:   true,
		},
		{
			name:    "entity-updated ignores status transitions",
			trigger: models.TriggerDefinition{Type: models.TriggerEntityUpdated, Table: "jobs"},
			event: updateEvent("evt-3b",
				models.JSONB{"status": "scheduled"},
				models.JSONB{"status": "completed"},
			),
			match: false,
		},
		{
			name:    "table mismatch never matches",
			trigger: models.TriggerDefinition{Type: models.TriggerEntityUpdated, Table: "invoices"},
			event:   updateEvent("evt-4", nil, models.JSONB{"status": "new"}),
			match:   false,
		},
		{
			name:    "delete matches nothing",
			trigger: models.TriggerDefinition{Type: models.TriggerEntityUpdated, Table: "jobs"},
			event: &models.MutationEvent{
				EventID: "evt-5", Type: models.MutationDelete, Table: "jobs",
				Before: models.JSONB{"status": "new"},
			},
			match: false,
		},
		{
			name: "status-changed-to fires on arrival",
			trigger: models.TriggerDefinition{
				Type: models.TriggerStatusChangedTo, Table: "jobs", Status: "completed",
			},
			event: updateEvent("evt-6",
				models.JSONB{"status": "in_progress"},
				models.JSONB{"status": "completed"},
			),
			match: true,
		},
		{
			name: "status-changed-to ignores unchanged status",
			trigger: models.TriggerDefinition{
				Type: models.TriggerStatusChangedTo, Table: "jobs", Status: "completed",
			},
			event: updateEvent("evt-7",
				models.JSONB{"status": "completed", "notes": "a"},
				models.JSONB{"status": "completed", "notes": "b"},
			),
			match: false,
		},
		{
			name: "status-changed-from fires on departure",
			trigger: models.TriggerDefinition{
				Type: models.TriggerStatusChangedFrom, Table: "jobs", Status: "scheduled",
			},
			event: updateEvent("evt-8",
				models.JSONB{"status": "scheduled"},
				models.JSONB{"status": "in_progress"},
			),
			match: true,
		},
		{
			name: "status-transition needs both endpoints",
			trigger: models.TriggerDefinition{
				Type: models.TriggerStatusTransition, Table: "jobs",
				FromStatus: "scheduled", ToStatus: "canceled",
			},
			event: updateEvent("evt-9",
				models.JSONB{"status": "scheduled"},
				models.JSONB{"status": "canceled"},
			),
			match: true,
		},
		{
			name: "status-transition wrong origin",
			trigger: models.TriggerDefinition{
				Type: models.TriggerStatusTransition, Table: "jobs",
				FromStatus: "scheduled", ToStatus: "canceled",
			},
			event: updateEvent("evt-10",
				models.JSONB{"status": "in_progress"},
				models.JSONB{"status": "canceled"},
			),
			match: false,
		},
		{
			name: "conditions gate the match",
			trigger: models.TriggerDefinition{
				Type: models.TriggerEntityUpdated, Table: "jobs",
				Conditions: []models.TriggerCondition{
					{Field: "priority", Operator: "gte", Value: 5},
				},
			},
			event: updateEvent("evt-11",
				models.JSONB{"status": "new", "priority": float64(2)},
				models.JSONB{"status": "new", "priority": float64(2)},
			),
			match: false,
		},
		{
			name: "conditions hold",
			trigger: models.TriggerDefinition{
				Type: models.TriggerEntityUpdated, Table: "jobs",
				Conditions: []models.TriggerCondition{
					{Field: "priority", Operator: "gte", Value: 5},
				},
			},
			event: updateEvent("evt-12",
				models.JSONB{"status": "new", "priority": float64(2)},
				models.JSONB{"status": "new", "priority": float64(7)},
			),
			match: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflowRepo := mocks.NewWorkflowRepository()
			executionRepo := mocks.NewExecutionRepository()
			wf := newWorkflow(tt.trigger)
			workflowRepo.AddWorkflow(wf)

			detector := engine.NewTriggerDetector(workflowRepo, executionRepo, nil, logger.NewForTesting())

			result, err := detector.Detect(context.Background(), tt.event)
			require.NoError(t, err)

			if tt.match {
				assert.Len(t, result.Enqueued, 1)
			} else {
				assert.Empty(t, result.Enqueued)
			}
		})
	}
}

func TestDetectIdempotentOnReplay(t *testing.T) {
	workflowRepo := mocks.NewWorkflowRepository()
	executionRepo := mocks.NewExecutionRepository()
	wf := newWorkflow(models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"})
	workflowRepo.AddWorkflow(wf)

	detector := engine.NewTriggerDetector(workflowRepo, executionRepo, nil, logger.NewForTesting())

	event := &models.MutationEvent{
		EventID: "evt-replay",
		Type:    models.MutationInsert,
		Table:   "jobs",
		After:   models.JSONB{"status": "new"},
	}

	first, err := detector.Detect(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, first.Enqueued, 1)

	// The provider replays the exact same event.
	second, err := detector.Detect(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, second.Enqueued)
	assert.Equal(t, 1, second.Skipped)

	pending, err := executionRepo.ListPending(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDetectMultipleMatchingWorkflowsFireIndependently(t *testing.T) {
	workflowRepo := mocks.NewWorkflowRepository()
	executionRepo := mocks.NewExecutionRepository()

	wfTo := newWorkflow(models.TriggerDefinition{
		Type: models.TriggerStatusChangedTo, Table: "jobs", Status: "completed",
	})
	wfFrom := newWorkflow(models.TriggerDefinition{
		Type: models.TriggerStatusChangedFrom, Table: "jobs", Status: "in_progress",
	})
	wfTransition := newWorkflow(models.TriggerDefinition{
		Type: models.TriggerStatusTransition, Table: "jobs",
		FromStatus: "in_progress", ToStatus: "completed",
	})
	workflowRepo.AddWorkflow(wfTo)
	workflowRepo.AddWorkflow(wfFrom)
	workflowRepo.AddWorkflow(wfTransition)

	detector := engine.NewTriggerDetector(workflowRepo, executionRepo, nil, logger.NewForTesting())

	event := updateEvent("evt-multi",
		models.JSONB{"status": "in_progress"},
		models.JSONB{"status": "completed"},
	)

	result, err := detector.Detect(context.Background(), event)
	require.NoError(t, err)
	assert.Len(t, result.Enqueued, 3)
}

func TestDetectStatusChangeSkipsGenericUpdateWorkflows(t *testing.T) {
	workflowRepo := mocks.NewWorkflowRepository()
	executionRepo := mocks.NewExecutionRepository()

	wfUpdated := newWorkflow(models.TriggerDefinition{
		Type: models.TriggerEntityUpdated, Table: "jobs",
	})
	wfTo := newWorkflow(models.TriggerDefinition{
		Type: models.TriggerStatusChangedTo, Table: "jobs", Status: "completed",
	})
	workflowRepo.AddWorkflow(wfUpdated)
	workflowRepo.AddWorkflow(wfTo)

	detector := engine.NewTriggerDetector(workflowRepo, executionRepo, nil, logger.NewForTesting())

	result, err := detector.Detect(context.Background(), updateEvent("evt-status-only",
		models.JSONB{"status": "in_progress"},
		models.JSONB{"status": "completed"},
	))
	require.NoError(t, err)
	require.Len(t, result.Enqueued, 1)

	pending, err := executionRepo.ListPending(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, wfTo.ID, pending[0].WorkflowID)
}

func TestDetectInactiveWorkflowIgnored(t *testing.T) {
	workflowRepo := mocks.NewWorkflowRepository()
	executionRepo := mocks.NewExecutionRepository()

	wf := newWorkflow(models.TriggerDefinition{Type: models.TriggerEntityCreated, Table: "jobs"})
	wf.Active = false
	workflowRepo.AddWorkflow(wf)

	detector := engine.NewTriggerDetector(workflowRepo, executionRepo, nil, logger.NewForTesting())

	result, err := detector.Detect(context.Background(), &models.MutationEvent{
		EventID: "evt-inactive",
		Type:    models.MutationInsert,
		Table:   "jobs",
		After:   models.JSONB{"status": "new"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Enqueued)
}

func TestDetectRequiresEventID(t *testing.T) {
	detector := engine.NewTriggerDetector(
		mocks.NewWorkflowRepository(),
		mocks.NewExecutionRepository(),
		nil,
		logger.NewForTesting(),
	)

	_, err := detector.Detect(context.Background(), &models.MutationEvent{
		Type:  models.MutationInsert,
		Table: "jobs",
	})
	assert.Error(t, err)
}
