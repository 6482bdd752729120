package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
	"github.com/google/uuid"
)

// previewLength caps the conversation preview stored per inbound message.
const previewLength = 160

// dedupTTL bounds how long an external id is held in the fast dedup layer.
// The database unique constraint remains the durable guard after expiry.
const dedupTTL = 24 * time.Hour

// optOutKeywords are the case-insensitive message bodies that opt a
// counterparty out of further messaging.
var optOutKeywords = map[string]struct{}{
	"STOP":        {},
	"STOPALL":     {},
	"UNSUBSCRIBE": {},
	"CANCEL":      {},
	"END":         {},
	"QUIT":        {},
}

// WebhookPayload is the provider's delivery: an inbound message or a
// delivery receipt for an outbound one, both keyed by the provider's
// external id.
type WebhookPayload struct {
	ExternalID string `json:"external_id" validate:"required"`
	Kind       string `json:"kind" validate:"omitempty,oneof=message receipt"`
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
	Status     string `json:"status"`
}

// IsReceipt reports whether the payload is a delivery receipt rather than an
// inbound message.
func (p *WebhookPayload) IsReceipt() bool {
	return p.Kind == "receipt" || (p.Kind == "" && p.Body == "" && p.Status != "")
}

// MessageRepository persists message events. InsertMessageEvent must be
// idempotent on external_id: a second insert for the same id reports
// created=false and changes nothing.
type MessageRepository interface {
	InsertMessageEvent(ctx context.Context, event *models.MessageEvent) (created bool, err error)
	UpdateDeliveryStatus(ctx context.Context, externalID, status string) (bool, error)
}

// ErrConversationNotFound is returned when no conversation exists for a
// counterparty address.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository maintains the conversation aggregates advanced by
// genuinely new inbound messages. GetByAddress reports
// ErrConversationNotFound for an unknown address; inbound processing never
// creates conversations.
type ConversationRepository interface {
	GetByAddress(ctx context.Context, address string) (*models.Conversation, error)
	RecordInbound(ctx context.Context, conversationID uuid.UUID, preview string, at time.Time) error
	SetStopped(ctx context.Context, conversationID uuid.UUID, stopped bool) error
}

// OptOutRepository records opt-out keywords.
type OptOutRepository interface {
	CreateOptOut(ctx context.Context, optOut *models.OptOut) error
}

// DedupStore is the fast-path duplicate filter. A SetNX miss means the id
// was already seen. Implementations may lose state; the database constraint
// backs them up.
type DedupStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

// Deduplicator processes provider webhook deliveries exactly once per
// external id. Duplicates are acknowledged and dropped; new inbound messages
// advance their conversation and may record an opt-out.
type Deduplicator struct {
	messageRepo      MessageRepository
	conversationRepo ConversationRepository
	optOutRepo       OptOutRepository
	dedupStore       DedupStore
	metrics          *metrics.Metrics
	logger           *logger.Logger
}

// NewDeduplicator creates a new webhook deduplicator. dedupStore may be nil,
// in which case only the durable database layer filters duplicates.
func NewDeduplicator(
	messageRepo MessageRepository,
	conversationRepo ConversationRepository,
	optOutRepo OptOutRepository,
	dedupStore DedupStore,
	m *metrics.Metrics,
	log *logger.Logger,
) *Deduplicator {
	return &Deduplicator{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		optOutRepo:       optOutRepo,
		dedupStore:       dedupStore,
		metrics:          m,
		logger:           log,
	}
}

// ProcessResult summarizes one webhook delivery's processing.
type ProcessResult struct {
	ExternalID string `json:"external_id"`
	Duplicate  bool   `json:"duplicate"`
	Receipt    bool   `json:"receipt"`
	OptOut     bool   `json:"opt_out"`
}

// Process handles one webhook delivery. Safe to call any number of times
// with the same external id; only the first call has effects.
func (d *Deduplicator) Process(ctx context.Context, payload *WebhookPayload) (*ProcessResult, error) {
	if payload.ExternalID == "" {
		return nil, fmt.Errorf("webhook payload requires an external_id")
	}

	result := &ProcessResult{ExternalID: payload.ExternalID, Receipt: payload.IsReceipt()}

	if d.metrics != nil {
		kind := "message"
		if result.Receipt {
			kind = "receipt"
		}
		d.metrics.WebhooksReceived.WithLabelValues(kind).Inc()
	}

	// Fast path. A redis failure degrades to the durable layer, it never
	// blocks the delivery.
	if d.dedupStore != nil {
		fresh, err := d.dedupStore.SetNX(ctx, dedupKey(payload), payload.ExternalID, dedupTTL)
		if err != nil {
			d.logger.Warn("Dedup store unavailable, relying on database constraint",
				logger.String("external_id", payload.ExternalID),
				logger.Err(err),
			)
		} else if !fresh {
			result.Duplicate = true
			if d.metrics != nil {
				d.metrics.WebhookDuplicates.WithLabelValues("cache").Inc()
			}
			return result, nil
		}
	}

	if result.Receipt {
		return d.processReceipt(ctx, payload, result)
	}
	return d.processInbound(ctx, payload, result)
}

// processReceipt updates the delivery status of an already-sent outbound
// message. A receipt for an unknown message is accepted and dropped; the
// provider may deliver receipts out of order with our own sends.
func (d *Deduplicator) processReceipt(ctx context.Context, payload *WebhookPayload, result *ProcessResult) (*ProcessResult, error) {
	updated, err := d.messageRepo.UpdateDeliveryStatus(ctx, payload.ExternalID, payload.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to update delivery status: %w", err)
	}

	if !updated {
		d.logger.Debug("Receipt for unknown outbound message",
			logger.String("external_id", payload.ExternalID),
			logger.String("status", payload.Status),
		)
	}

	return result, nil
}

func (d *Deduplicator) processInbound(ctx context.Context, payload *WebhookPayload, result *ProcessResult) (*ProcessResult, error) {
	// An unknown sender has no conversation; the event is still stored,
	// with its linkage left unresolved.
	conversation, err := d.conversationRepo.GetByAddress(ctx, payload.From)
	if err != nil && !errors.Is(err, ErrConversationNotFound) {
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	now := time.Now()
	event := &models.MessageEvent{
		ID:          uuid.New(),
		ExternalID:  payload.ExternalID,
		Direction:   models.DirectionInbound,
		FromAddress: payload.From,
		ToAddress:   payload.To,
		Body:        payload.Body,
		Status:      "received",
		ReceivedAt:  now,
	}
	if conversation != nil {
		event.ConversationID = &conversation.ID
	}

	created, err := d.messageRepo.InsertMessageEvent(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("failed to persist message event: %w", err)
	}

	if !created {
		// The durable layer caught a duplicate the fast path missed.
		result.Duplicate = true
		if d.metrics != nil {
			d.metrics.WebhookDuplicates.WithLabelValues("database").Inc()
		}
		return result, nil
	}

	// Opt-out keywords stop the conversation instead of advancing it; they
	// never bump the unread counter.
	if keyword, ok := optOutKeyword(payload.Body); ok {
		if err := d.recordOptOut(ctx, payload, conversation, keyword); err != nil {
			return nil, err
		}
		result.OptOut = true
	} else if conversation != nil {
		if err := d.conversationRepo.RecordInbound(ctx, conversation.ID, preview(payload.Body), now); err != nil {
			return nil, fmt.Errorf("failed to advance conversation: %w", err)
		}
	}

	conversationID := "unlinked"
	if conversation != nil {
		conversationID = conversation.ID.String()
	}
	d.logger.Info("Inbound message processed",
		logger.String("external_id", payload.ExternalID),
		logger.String("conversation_id", conversationID),
		logger.Bool("opt_out", result.OptOut),
	)

	return result, nil
}

// recordOptOut stores the opt-out and stops the conversation when one
// exists. An opt-out from an unknown sender is still recorded against the
// address.
func (d *Deduplicator) recordOptOut(ctx context.Context, payload *WebhookPayload, conversation *models.Conversation, keyword string) error {
	optOut := &models.OptOut{
		ID:        uuid.New(),
		Address:   payload.From,
		Keyword:   keyword,
		CreatedAt: time.Now(),
	}
	if conversation != nil {
		optOut.ConversationID = &conversation.ID
	}

	if err := d.optOutRepo.CreateOptOut(ctx, optOut); err != nil {
		return fmt.Errorf("failed to record opt-out: %w", err)
	}

	if conversation != nil {
		if err := d.conversationRepo.SetStopped(ctx, conversation.ID, true); err != nil {
			return fmt.Errorf("failed to stop conversation: %w", err)
		}
	}

	if d.metrics != nil {
		d.metrics.OptOutsRecorded.Inc()
	}

	return nil
}

func dedupKey(payload *WebhookPayload) string {
	return "webhook:dedup:" + payload.ExternalID
}

// optOutKeyword reports whether the message body is exactly an opt-out
// keyword, ignoring case and surrounding whitespace.
func optOutKeyword(body string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(body))
	_, ok := optOutKeywords[normalized]
	return normalized, ok
}

// preview truncates a message body for the conversation list.
func preview(body string) string {
	runes := []rune(body)
	if len(runes) <= previewLength {
		return body
	}
	return string(runes[:previewLength])
}
