package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageDirection marks a message as provider-pushed or engine-sent.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageEvent is one provider-delivered message, keyed by the provider's
// external id. The external id is the dedup key: a redelivery of the same id
// must be a no-op.
type MessageEvent struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	ExternalID     string           `json:"external_id" db:"external_id"`
	Direction      MessageDirection `json:"direction" db:"direction"`
	FromAddress    string           `json:"from_address" db:"from_address"`
	ToAddress      string           `json:"to_address" db:"to_address"`
	Body           string           `json:"body" db:"body"`
	Status         string           `json:"status" db:"status"`
	ConversationID *uuid.UUID       `json:"conversation_id,omitempty" db:"conversation_id"`
	ReceivedAt     time.Time        `json:"received_at" db:"received_at"`
}

// Conversation is the aggregate a genuinely new inbound message advances.
// unread_count and last_message_at never move on a duplicate delivery.
type Conversation struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	CounterpartyAddress string     `json:"counterparty_address" db:"counterparty_address"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	LastMessagePreview  string     `json:"last_message_preview" db:"last_message_preview"`
	UnreadCount         int        `json:"unread_count" db:"unread_count"`
	Stopped             bool       `json:"stopped" db:"stopped"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
}

// OptOut records a counterparty opting out of messaging via keyword.
type OptOut struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Address        string     `json:"address" db:"address"`
	Keyword        string     `json:"keyword" db:"keyword"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty" db:"conversation_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
