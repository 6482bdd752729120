package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/validator"
)

// MutationHandler accepts entity mutation events and feeds them to the
// trigger detector.
type MutationHandler struct {
	logger   *logger.Logger
	detector *engine.TriggerDetector
}

// NewMutationHandler creates a new mutation handler
func NewMutationHandler(log *logger.Logger, detector *engine.TriggerDetector) *MutationHandler {
	return &MutationHandler{
		logger:   log,
		detector: detector,
	}
}

// Ingest processes one mutation event. Replaying the same event id is safe
// and reports zero enqueued executions.
func (h *MutationHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var event models.MutationEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validator.Validate(&event); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.detector.Detect(r.Context(), &event)
	if err != nil {
		h.logger.Error("Failed to process mutation event",
			logger.String("event_id", event.EventID),
			logger.Err(err),
		)
		respondError(w, http.StatusInternalServerError, "Failed to process mutation event")
		return
	}

	respondJSON(w, http.StatusAccepted, result)
}
