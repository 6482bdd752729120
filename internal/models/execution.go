package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the state of one execution log row.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// StepResultStatus is the per-step outcome recorded on completion.
type StepResultStatus string

const (
	StepResultSuccess StepResultStatus = "success"
	StepResultFailed  StepResultStatus = "failed"
)

// ExecutionLog is the durable record of one (workflow, trigger event) pair.
// Exactly one row exists per pair; it is the unit of the at-most-one-
// processing guarantee and the only mutable shared state in the engine.
type ExecutionLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	WorkflowID   uuid.UUID       `json:"workflow_id" db:"workflow_id"`
	EventID      string          `json:"event_id" db:"event_id"`
	TriggerData  JSONB           `json:"trigger_data" db:"trigger_data"`
	Status       ExecutionStatus `json:"status" db:"status"`
	Attempts     int             `json:"attempts" db:"attempts"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	Details      JSONB           `json:"details,omitempty" db:"details"`
	StepResults  StepResults     `json:"step_results,omitempty" db:"step_results"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// StepResult is the audit record of one executed step.
type StepResult struct {
	StepID string           `json:"step_id"`
	Type   StepType         `json:"type"`
	Status StepResultStatus `json:"status"`
	Detail string           `json:"detail,omitempty"`
}

// StepResults is a JSONB-backed list of per-step outcomes.
type StepResults []StepResult

// PreviousError is one entry of the retry error history kept in Details.
type PreviousError struct {
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
	Attempt  int       `json:"attempt"`
}

// legalTransitions is the closed transition graph: pending->running,
// running->completed|failed, failed->pending (retry requeue only).
var legalTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending: {ExecutionStatusRunning},
	ExecutionStatusRunning: {ExecutionStatusCompleted, ExecutionStatusFailed},
	ExecutionStatusFailed:  {ExecutionStatusPending},
}

// CanTransition reports whether moving from the current status to the given
// one is legal. The database enforces the same rule via conditional updates;
// this is the in-process guard.
func (e *ExecutionLog) CanTransition(to ExecutionStatus) bool {
	for _, allowed := range legalTransitions[e.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the row to the given status or rejects the move.
func (e *ExecutionLog) Transition(to ExecutionStatus) error {
	if !e.CanTransition(to) {
		return fmt.Errorf("illegal execution transition: %s -> %s", e.Status, to)
	}
	e.Status = to
	return nil
}

// PreviousErrors decodes the retry error history from Details.
func (e *ExecutionLog) PreviousErrors() []PreviousError {
	raw, ok := e.Details["previous_errors"]
	if !ok {
		return nil
	}

	// Details round-trips through JSONB, so entries may be generic maps.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}

	var history []PreviousError
	if err := json.Unmarshal(data, &history); err != nil {
		return nil
	}
	return history
}

// AppendError records the current failure into the retry history. Attempts
// counts requeues, so a first-run failure is recorded as attempt zero.
func (e *ExecutionLog) AppendError(errMsg string, failedAt time.Time) {
	if e.Details == nil {
		e.Details = make(JSONB)
	}

	history := e.PreviousErrors()
	history = append(history, PreviousError{
		Error:    errMsg,
		FailedAt: failedAt,
		Attempt:  e.Attempts,
	})
	e.Details["previous_errors"] = history
	e.Details["retry_count"] = e.Attempts
}

// JSONB is a custom type for handling JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		*j = make(map[string]interface{})
		return nil
	}

	result := make(map[string]interface{})
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*j = result
	return nil
}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for StepResults
func (s *StepResults) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		*s = nil
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface for StepResults
func (s StepResults) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]StepResult{})
	}
	return json.Marshal(s)
}

// ExecutionListResponse is a paginated list of execution logs.
type ExecutionListResponse struct {
	Executions []ExecutionLog `json:"executions"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
