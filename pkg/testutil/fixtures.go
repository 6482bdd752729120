package testutil

import (
	"fmt"
	"time"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/google/uuid"
)

// FixtureBuilder provides methods to create test fixtures
type FixtureBuilder struct{}

// NewFixtureBuilder creates a new fixture builder
func NewFixtureBuilder() *FixtureBuilder {
	return &FixtureBuilder{}
}

// Workflow creates a test workflow that fires when a job completes.
func (fb *FixtureBuilder) Workflow(overrides ...func(*models.Workflow)) *models.Workflow {
	id := uuid.New()
	now := time.Now()

	workflow := &models.Workflow{
		ID:          id,
		Name:        "Test Workflow " + id.String()[:8],
		Description: StringPtr("Test workflow description"),
		Definition: models.WorkflowDefinition{
			Trigger: models.TriggerDefinition{
				Type:   models.TriggerStatusChangedTo,
				Table:  "jobs",
				Status: "completed",
			},
			Steps: []models.ActionStep{
				{
					ID:      "notify",
					Type:    models.StepSendSMS,
					To:      "{{jobs.customer_phone}}",
					Message: "Your job {{jobs.id}} is complete",
				},
			},
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// Execution creates a pending execution log for the given workflow.
func (fb *FixtureBuilder) Execution(workflowID uuid.UUID, overrides ...func(*models.ExecutionLog)) *models.ExecutionLog {
	id := uuid.New()

	execution := &models.ExecutionLog{
		ID:         id,
		WorkflowID: workflowID,
		EventID:    "evt-" + id.String()[:8],
		TriggerData: models.JSONB{
			"table": "jobs",
			"after": map[string]interface{}{
				"id":             "job-123",
				"status":         "completed",
				"customer_phone": "+15550001111",
			},
		},
		Status:    models.ExecutionStatusPending,
		Attempts:  0,
		CreatedAt: time.Now(),
	}

	for _, override := range overrides {
		override(execution)
	}

	return execution
}

// MutationEvent creates a status-change mutation on the jobs table.
func (fb *FixtureBuilder) MutationEvent(overrides ...func(*models.MutationEvent)) *models.MutationEvent {
	event := &models.MutationEvent{
		EventID: "evt-" + uuid.New().String()[:8],
		Type:    models.MutationUpdate,
		Table:   "jobs",
		Before: models.JSONB{
			"id":     "job-123",
			"status": "scheduled",
		},
		After: models.JSONB{
			"id":             "job-123",
			"status":         "completed",
			"customer_phone": "+15550001111",
		},
		OccurredAt: time.Now(),
	}

	for _, override := range overrides {
		override(event)
	}

	return event
}

// MessageEvent creates an inbound message with a unique external id.
func (fb *FixtureBuilder) MessageEvent(overrides ...func(*models.MessageEvent)) *models.MessageEvent {
	id := uuid.New()

	message := &models.MessageEvent{
		ID:          id,
		ExternalID:  fmt.Sprintf("SM%s", id.String()[:12]),
		Direction:   models.DirectionInbound,
		FromAddress: "+15550001111",
		ToAddress:   "+15559998888",
		Body:        "Sounds good, see you then",
		Status:      "received",
		ReceivedAt:  time.Now(),
	}

	for _, override := range overrides {
		override(message)
	}

	return message
}

// Helper functions

// StringPtr returns a pointer to a string
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to a time
func TimePtr(t time.Time) *time.Time {
	return &t
}

// UUIDPtr returns a pointer to a UUID
func UUIDPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
