package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TriggerType classifies the entity mutation a workflow reacts to.
type TriggerType string

const (
	TriggerEntityCreated     TriggerType = "entity-created"
	TriggerEntityUpdated     TriggerType = "entity-updated"
	TriggerStatusChangedTo   TriggerType = "status-changed-to"
	TriggerStatusChangedFrom TriggerType = "status-changed-from"
	TriggerStatusTransition  TriggerType = "status-transition"
)

// StepType enumerates the closed set of action step kinds.
type StepType string

const (
	StepSendSMS   StepType = "send-sms"
	StepSendEmail StepType = "send-email"
	StepWait      StepType = "wait"
	StepBranch    StepType = "branch"
)

// Workflow is a user-defined automation: a trigger plus an ordered action
// pipeline. Definitions are read-only to the engine; only configuration
// surfaces mutate them.
type Workflow struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	Name        string             `json:"name" db:"name"`
	Description *string            `json:"description,omitempty" db:"description"`
	Definition  WorkflowDefinition `json:"definition" db:"definition"`
	Active      bool               `json:"active" db:"active"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// WorkflowDefinition is the trigger and step pipeline, stored as JSONB.
type WorkflowDefinition struct {
	Trigger TriggerDefinition `json:"trigger"`
	Steps   []ActionStep      `json:"steps"`
}

// TriggerDefinition defines what fires the workflow.
type TriggerDefinition struct {
	Type  TriggerType `json:"type"`
	Table string      `json:"table"`

	// Status matchers, used by the status-changed-* and status-transition
	// trigger types.
	Status     string `json:"status,omitempty"`
	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`

	// Conditions is a conjunctive list: every condition must hold against
	// the mutation's after snapshot for the workflow to match.
	Conditions []TriggerCondition `json:"conditions,omitempty"`
}

// TriggerCondition is one field predicate in a trigger's conjunctive list.
type TriggerCondition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"` // eq, neq, gt, gte, lt, lte, in, contains
	Value    interface{} `json:"value"`
}

// ActionStep is one unit of work in the pipeline. Config fields are
// type-specific; templates use {{path}} placeholders resolved against the
// execution context.
type ActionStep struct {
	ID   string   `json:"id"`
	Type StepType `json:"type"`

	// send-sms / send-email
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message,omitempty"`

	// wait
	Delay string `json:"delay,omitempty"` // duration string, e.g. "30s", "5m"

	// branch
	If      *TriggerCondition `json:"if,omitempty"`
	OnTrue  []ActionStep      `json:"on_true,omitempty"`
	OnFalse []ActionStep      `json:"on_false,omitempty"`

	// ContinueOnError marks the step non-critical: a failure is recorded
	// but does not abort the pipeline.
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}

// CreateWorkflowRequest is the payload for creating a workflow.
type CreateWorkflowRequest struct {
	Name        string             `json:"name" validate:"required"`
	Description *string            `json:"description,omitempty"`
	Definition  WorkflowDefinition `json:"definition" validate:"required"`
	Active      bool               `json:"active"`
}

// Validate checks the structural invariants of a definition: an active
// workflow needs at least one step, a known trigger type and the status
// matchers its trigger type requires.
func (w *Workflow) Validate() error {
	if w.Active && len(w.Definition.Steps) == 0 {
		return fmt.Errorf("active workflow %q has no steps", w.Name)
	}

	switch w.Definition.Trigger.Type {
	case TriggerEntityCreated, TriggerEntityUpdated:
	case TriggerStatusChangedTo, TriggerStatusChangedFrom:
		if w.Definition.Trigger.Status == "" {
			return fmt.Errorf("trigger type %s requires a status", w.Definition.Trigger.Type)
		}
	case TriggerStatusTransition:
		if w.Definition.Trigger.FromStatus == "" || w.Definition.Trigger.ToStatus == "" {
			return fmt.Errorf("trigger type %s requires from_status and to_status", w.Definition.Trigger.Type)
		}
	default:
		return fmt.Errorf("unknown trigger type: %s", w.Definition.Trigger.Type)
	}

	if w.Definition.Trigger.Table == "" {
		return fmt.Errorf("trigger requires a table")
	}

	return validateSteps(w.Definition.Steps)
}

func validateSteps(steps []ActionStep) error {
	for _, step := range steps {
		switch step.Type {
		case StepSendSMS:
			if step.To == "" || step.Message == "" {
				return fmt.Errorf("step %s: send-sms requires to and message", step.ID)
			}
		case StepSendEmail:
			if step.To == "" || step.Subject == "" {
				return fmt.Errorf("step %s: send-email requires to and subject", step.ID)
			}
		case StepWait:
			if _, err := time.ParseDuration(step.Delay); err != nil {
				return fmt.Errorf("step %s: invalid wait delay %q: %w", step.ID, step.Delay, err)
			}
		case StepBranch:
			if step.If == nil {
				return fmt.Errorf("step %s: branch requires a predicate", step.ID)
			}
			if err := validateSteps(step.OnTrue); err != nil {
				return err
			}
			if err := validateSteps(step.OnFalse); err != nil {
				return err
			}
		default:
			return fmt.Errorf("step %s: unknown step type %q", step.ID, step.Type)
		}
	}
	return nil
}

// JSONB scanning for WorkflowDefinition
func (w *WorkflowDefinition) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, w)
}

func (w WorkflowDefinition) Value() (driver.Value, error) {
	return json.Marshal(w)
}
