package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
	"github.com/google/uuid"
)

// WorkflowRepository defines the interface for workflow data access
type WorkflowRepository interface {
	GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	ListActiveWorkflows(ctx context.Context) ([]models.Workflow, error)
}

// ExecutionRepository defines the interface for execution log persistence.
// CreateExecution must be idempotent on (event_id, workflow_id): a second
// insert for the same pair reports created=false and leaves the row alone.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, execution *models.ExecutionLog) (created bool, err error)
	GetExecutionByID(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error)
	ClaimPending(ctx context.Context, id uuid.UUID) (*models.ExecutionLog, error)
	ListPending(ctx context.Context, limit int) ([]models.ExecutionLog, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, results models.StepResults) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, details models.JSONB, results models.StepResults) error
	ListRetryable(ctx context.Context, failedBefore time.Time, maxRetries int, limit int) ([]models.ExecutionLog, error)
	ListExhausted(ctx context.Context, maxRetries int, limit int) ([]models.ExecutionLog, error)
	RequeueFailed(ctx context.Context, id uuid.UUID) (bool, error)
}

// TriggerDetector classifies entity mutations and enqueues pending
// executions for every matching active workflow.
type TriggerDetector struct {
	workflowRepo  WorkflowRepository
	executionRepo ExecutionRepository
	evaluator     *ConditionEvaluator
	metrics       *metrics.Metrics
	logger        *logger.Logger
}

// NewTriggerDetector creates a new trigger detector
func NewTriggerDetector(
	workflowRepo WorkflowRepository,
	executionRepo ExecutionRepository,
	m *metrics.Metrics,
	log *logger.Logger,
) *TriggerDetector {
	return &TriggerDetector{
		workflowRepo:  workflowRepo,
		executionRepo: executionRepo,
		evaluator:     NewConditionEvaluator(),
		metrics:       m,
		logger:        log,
	}
}

// DetectResult summarizes one mutation's pass through the detector.
type DetectResult struct {
	EventID  string      `json:"event_id"`
	Enqueued []uuid.UUID `json:"enqueued"`
	Skipped  int         `json:"skipped"`
}

// Detect matches a mutation event against all active workflows and enqueues
// one pending execution per match. Enqueueing is idempotent on
// (event_id, workflow_id); replays count as skipped.
func (d *TriggerDetector) Detect(ctx context.Context, event *models.MutationEvent) (*DetectResult, error) {
	if event.EventID == "" {
		return nil, fmt.Errorf("mutation event requires an event_id")
	}

	workflows, err := d.workflowRepo.ListActiveWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}

	result := &DetectResult{EventID: event.EventID}

	for i := range workflows {
		wf := &workflows[i]
		if !d.Matches(wf, event) {
			continue
		}

		if d.metrics != nil {
			d.metrics.WorkflowsMatched.WithLabelValues(wf.ID.String()).Inc()
		}

		execution := &models.ExecutionLog{
			ID:          uuid.New(),
			WorkflowID:  wf.ID,
			EventID:     event.EventID,
			TriggerData: buildTriggerData(event),
			Status:      models.ExecutionStatusPending,
		}

		created, err := d.executionRepo.CreateExecution(ctx, execution)
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue execution for workflow %s: %w", wf.ID, err)
		}

		if !created {
			result.Skipped++
			d.logger.Debug("Execution already enqueued for event",
				logger.String("event_id", event.EventID),
				logger.String("workflow_id", wf.ID.String()),
			)
			continue
		}

		result.Enqueued = append(result.Enqueued, execution.ID)
	}

	if d.metrics != nil {
		d.metrics.MutationsReceived.WithLabelValues(event.Table, string(event.Type)).Inc()
	}

	d.logger.Info("Mutation event processed",
		logger.String("event_id", event.EventID),
		logger.String("table", event.Table),
		logger.Int("enqueued", len(result.Enqueued)),
		logger.Int("skipped", result.Skipped),
	)

	return result, nil
}

// Matches reports whether a workflow's trigger fires for the mutation.
// Delete mutations never fire; no trigger type watches them.
func (d *TriggerDetector) Matches(wf *models.Workflow, event *models.MutationEvent) bool {
	trigger := wf.Definition.Trigger

	if trigger.Table != event.Table {
		return false
	}

	switch trigger.Type {
	case models.TriggerEntityCreated:
		if event.Type != models.MutationInsert {
			return false
		}
	case models.TriggerEntityUpdated:
		// Status moves belong to the status trigger family, never to the
		// generic update trigger.
		if event.Type != models.MutationUpdate || event.StatusChanged() {
			return false
		}
	case models.TriggerStatusChangedTo:
		after, ok := event.StatusAfter()
		if event.Type != models.MutationUpdate || !event.StatusChanged() || !ok || after != trigger.Status {
			return false
		}
	case models.TriggerStatusChangedFrom:
		before, ok := event.StatusBefore()
		if event.Type != models.MutationUpdate || !event.StatusChanged() || !ok || before != trigger.Status {
			return false
		}
	case models.TriggerStatusTransition:
		before, bok := event.StatusBefore()
		after, aok := event.StatusAfter()
		if event.Type != models.MutationUpdate || !bok || !aok {
			return false
		}
		if before != trigger.FromStatus || after != trigger.ToStatus {
			return false
		}
	default:
		return false
	}

	snapshot := map[string]interface{}(event.After)
	return d.evaluator.EvaluateAll(trigger.Conditions, snapshot)
}

// buildTriggerData snapshots the mutation into the execution's trigger data.
// The after image also lives under the table name so templates can address
// fields as {{<table>.<field>}}.
func buildTriggerData(event *models.MutationEvent) models.JSONB {
	data := models.JSONB{
		"event_id": event.EventID,
		"type":     string(event.Type),
		"table":    event.Table,
	}
	if event.Before != nil {
		data["before"] = map[string]interface{}(event.Before)
	}
	if event.After != nil {
		data["after"] = map[string]interface{}(event.After)
		data[event.Table] = map[string]interface{}(event.After)
	}
	return data
}
