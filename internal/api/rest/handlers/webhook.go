package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fieldline/automation-engine/internal/messaging"
	"github.com/fieldline/automation-engine/internal/repository/postgres"
	"github.com/fieldline/automation-engine/pkg/logger"
)

// processTimeout bounds background webhook processing once the provider has
// already been acknowledged.
const processTimeout = 30 * time.Second

// WebhookHandler receives provider webhook deliveries. The provider is
// acknowledged with 200 before processing starts; providers treat anything
// else as a failed delivery and redeliver, and redeliveries are exactly what
// the deduplicator absorbs.
type WebhookHandler struct {
	logger           *logger.Logger
	deduplicator     *messaging.Deduplicator
	conversationRepo *postgres.ConversationRepository

	// process is swappable for tests.
	process func(ctx context.Context, payload *messaging.WebhookPayload)
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(log *logger.Logger, deduplicator *messaging.Deduplicator, conversationRepo *postgres.ConversationRepository) *WebhookHandler {
	h := &WebhookHandler{
		logger:           log,
		deduplicator:     deduplicator,
		conversationRepo: conversationRepo,
	}
	h.process = h.processAsync
	return h
}

// Receive accepts one provider delivery. Malformed payloads are rejected
// up front; everything else is acknowledged immediately and processed in
// the background.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload messaging.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if payload.ExternalID == "" {
		respondError(w, http.StatusBadRequest, "external_id is required")
		return
	}

	// Ack first. From here on the delivery is ours.
	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})

	h.process(r.Context(), &payload)
}

func (h *WebhookHandler) processAsync(_ context.Context, payload *messaging.WebhookPayload) {
	go func() {
		// The request context dies with the response; processing gets its
		// own deadline.
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()

		if _, err := h.deduplicator.Process(ctx, payload); err != nil {
			h.logger.Error("Webhook processing failed",
				logger.String("external_id", payload.ExternalID),
				logger.Err(err),
			)
		}
	}()
}

// ListConversations returns conversations ordered by recent activity
func (h *WebhookHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)

	conversations, err := h.conversationRepo.ListConversations(r.Context(), pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Error("Failed to list conversations", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": conversations,
		"page":          page,
		"page_size":     pageSize,
	})
}
