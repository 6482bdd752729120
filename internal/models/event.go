package models

import "time"

// MutationType is the kind of entity mutation reported to the engine.
type MutationType string

const (
	MutationInsert MutationType = "insert"
	MutationUpdate MutationType = "update"
	MutationDelete MutationType = "delete"
)

// MutationEvent is one reported change to a watched entity table. EventID is
// caller-supplied and is the idempotency key for trigger detection: replaying
// the same event id never enqueues a second execution for a workflow.
type MutationEvent struct {
	EventID    string       `json:"event_id" validate:"required"`
	Type       MutationType `json:"type" validate:"required,oneof=insert update delete"`
	Table      string       `json:"table" validate:"required"`
	Before     JSONB        `json:"before,omitempty"`
	After      JSONB        `json:"after,omitempty"`
	OccurredAt time.Time    `json:"occurred_at,omitempty"`
}

// StatusBefore returns the status field of the before snapshot, if any.
func (m *MutationEvent) StatusBefore() (string, bool) {
	return statusOf(m.Before)
}

// StatusAfter returns the status field of the after snapshot, if any.
func (m *MutationEvent) StatusAfter() (string, bool) {
	return statusOf(m.After)
}

// StatusChanged reports whether the mutation moved the entity's status.
func (m *MutationEvent) StatusChanged() bool {
	before, bok := m.StatusBefore()
	after, aok := m.StatusAfter()
	if !aok {
		return false
	}
	return !bok || before != after
}

func statusOf(snapshot JSONB) (string, bool) {
	if snapshot == nil {
		return "", false
	}
	raw, ok := snapshot["status"]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}
