package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldline/automation-engine/internal/messaging"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/google/uuid"
)

// MessageRepository handles message event database operations
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// InsertMessageEvent inserts a message event. The unique constraint on
// external_id is the durable dedup guard: a duplicate delivery reports
// created=false.
func (r *MessageRepository) InsertMessageEvent(ctx context.Context, event *models.MessageEvent) (bool, error) {
	query := `
		INSERT INTO message_events (
			id, external_id, direction, from_address, to_address,
			body, status, conversation_id, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_id) DO NOTHING`

	result, err := r.db.ExecContext(
		ctx, query,
		event.ID, event.ExternalID, event.Direction,
		event.FromAddress, event.ToAddress, event.Body,
		event.Status, event.ConversationID, event.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert message event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// UpdateDeliveryStatus updates the status of the message with the given
// external id. Returns false when no such message exists.
func (r *MessageRepository) UpdateDeliveryStatus(ctx context.Context, externalID, status string) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE message_events SET status = $2 WHERE external_id = $1`,
		externalID, status,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update delivery status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// ListMessagesByConversation returns a conversation's messages, oldest first
func (r *MessageRepository) ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.MessageEvent, error) {
	query := `
		SELECT id, external_id, direction, from_address, to_address,
		       body, status, conversation_id, received_at
		FROM message_events
		WHERE conversation_id = $1
		ORDER BY received_at
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.MessageEvent
	for rows.Next() {
		var event models.MessageEvent
		if err := rows.Scan(
			&event.ID, &event.ExternalID, &event.Direction,
			&event.FromAddress, &event.ToAddress, &event.Body,
			&event.Status, &event.ConversationID, &event.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// ConversationRepository handles conversation database operations
type ConversationRepository struct {
	db *sql.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByAddress finds the conversation for a counterparty address. Inbound
// processing never creates conversations; an unknown address reports
// messaging.ErrConversationNotFound and the caller stores the event with
// its linkage unresolved.
func (r *ConversationRepository) GetByAddress(ctx context.Context, address string) (*models.Conversation, error) {
	query := `
		SELECT id, counterparty_address, last_message_at, last_message_preview,
		       unread_count, stopped, created_at
		FROM conversations
		WHERE counterparty_address = $1`

	conversation := &models.Conversation{}
	err := r.db.QueryRowContext(ctx, query, address).Scan(
		&conversation.ID, &conversation.CounterpartyAddress,
		&conversation.LastMessageAt, &conversation.LastMessagePreview,
		&conversation.UnreadCount, &conversation.Stopped, &conversation.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, messaging.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conversation, nil
}

// RecordInbound advances a conversation for a genuinely new inbound message
func (r *ConversationRepository) RecordInbound(ctx context.Context, conversationID uuid.UUID, preview string, at time.Time) error {
	query := `
		UPDATE conversations
		SET last_message_at = $2,
		    last_message_preview = $3,
		    unread_count = unread_count + 1
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, conversationID, at, preview)
	if err != nil {
		return fmt.Errorf("failed to record inbound message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation not found")
	}

	return nil
}

// SetStopped flips a conversation's stopped flag
func (r *ConversationRepository) SetStopped(ctx context.Context, conversationID uuid.UUID, stopped bool) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE conversations SET stopped = $2 WHERE id = $1`,
		conversationID, stopped,
	)
	if err != nil {
		return fmt.Errorf("failed to set stopped flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conversation not found")
	}

	return nil
}

// ListConversations returns conversations ordered by most recent activity
func (r *ConversationRepository) ListConversations(ctx context.Context, limit, offset int) ([]models.Conversation, error) {
	query := `
		SELECT id, counterparty_address, last_message_at, last_message_preview,
		       unread_count, stopped, created_at
		FROM conversations
		ORDER BY last_message_at DESC NULLS LAST
		LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var conversation models.Conversation
		if err := rows.Scan(
			&conversation.ID, &conversation.CounterpartyAddress,
			&conversation.LastMessageAt, &conversation.LastMessagePreview,
			&conversation.UnreadCount, &conversation.Stopped, &conversation.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conversation)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, nil
}

// OptOutRepository handles opt-out database operations
type OptOutRepository struct {
	db *sql.DB
}

// NewOptOutRepository creates a new opt-out repository
func NewOptOutRepository(db *sql.DB) *OptOutRepository {
	return &OptOutRepository{db: db}
}

// CreateOptOut records an opt-out. Repeat opt-outs from the same address
// are absorbed by the unique constraint.
func (r *OptOutRepository) CreateOptOut(ctx context.Context, optOut *models.OptOut) error {
	query := `
		INSERT INTO opt_outs (id, address, keyword, conversation_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET keyword = EXCLUDED.keyword`

	_, err := r.db.ExecContext(
		ctx, query,
		optOut.ID, optOut.Address, optOut.Keyword,
		optOut.ConversationID, optOut.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create opt-out: %w", err)
	}

	return nil
}

// IsOptedOut reports whether an address has opted out
func (r *OptOutRepository) IsOptedOut(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (SELECT 1 FROM opt_outs WHERE address = $1)`,
		address,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check opt-out: %w", err)
	}

	return exists, nil
}
