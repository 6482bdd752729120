package handlers

import (
	"net/http"
	"strconv"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/pkg/logger"
)

// RetryHandler exposes the retry sweeper over HTTP
type RetryHandler struct {
	logger  *logger.Logger
	sweeper *engine.RetrySweeper
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(log *logger.Logger, sweeper *engine.RetrySweeper) *RetryHandler {
	return &RetryHandler{
		logger:  log,
		sweeper: sweeper,
	}
}

// Sweep runs one retry sweep on demand. The background worker runs the same
// sweep on a timer; this endpoint exists for operators and tests.
func (h *RetryHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}

	result, err := h.sweeper.Sweep(r.Context(), limit)
	if err != nil {
		h.logger.Error("Retry sweep failed", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Retry sweep failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Exhausted lists failed executions that spent their retry budget
func (h *RetryHandler) Exhausted(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}

	executions, err := h.sweeper.ListExhausted(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list exhausted executions", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to list exhausted executions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"executions": executions,
		"count":      len(executions),
	})
}
