package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/internal/repository/postgres"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ExecutionHandler handles execution log HTTP requests
type ExecutionHandler struct {
	logger     *logger.Logger
	repo       *postgres.ExecutionRepository
	dispatcher *engine.Dispatcher
}

// NewExecutionHandler creates a new execution handler
func NewExecutionHandler(log *logger.Logger, repo *postgres.ExecutionRepository, dispatcher *engine.Dispatcher) *ExecutionHandler {
	return &ExecutionHandler{
		logger:     log,
		repo:       repo,
		dispatcher: dispatcher,
	}
}

// Get retrieves an execution by ID
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid execution ID")
		return
	}

	execution, err := h.repo.GetExecutionByID(r.Context(), id)
	if errors.Is(err, engine.ErrExecutionNotFound) {
		respondError(w, http.StatusNotFound, "Execution not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get execution", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to get execution")
		return
	}

	respondJSON(w, http.StatusOK, execution)
}

// List retrieves executions with optional workflow and status filters
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)

	var workflowID *uuid.UUID
	if raw := r.URL.Query().Get("workflow_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid workflow_id filter")
			return
		}
		workflowID = &id
	}

	var status *models.ExecutionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.ExecutionStatus(raw)
		switch s {
		case models.ExecutionStatusPending, models.ExecutionStatusRunning,
			models.ExecutionStatusCompleted, models.ExecutionStatusFailed:
			status = &s
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	executions, total, err := h.repo.ListExecutions(r.Context(), workflowID, status, pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Error("Failed to list executions", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to list executions")
		return
	}

	respondJSON(w, http.StatusOK, models.ExecutionListResponse{
		Executions: executions,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Dispatch claims and runs a single pending execution
func (h *ExecutionHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid execution ID")
		return
	}

	execution, err := h.dispatcher.Dispatch(r.Context(), id)
	switch {
	case errors.Is(err, engine.ErrExecutionNotFound):
		respondError(w, http.StatusNotFound, "Execution not found")
		return
	case errors.Is(err, engine.ErrNotClaimable):
		respondError(w, http.StatusConflict, "Execution is not pending")
		return
	case err != nil:
		// The run failed but the failure is recorded on the execution.
		if execution != nil {
			respondJSON(w, http.StatusOK, execution)
			return
		}
		h.logger.Error("Dispatch failed", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Dispatch failed")
		return
	}

	respondJSON(w, http.StatusOK, execution)
}

// DispatchPending claims and runs a batch of pending executions
func (h *ExecutionHandler) DispatchPending(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}

	dispatched, err := h.dispatcher.DispatchPending(r.Context(), limit)
	if err != nil {
		h.logger.Error("Batch dispatch failed", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Batch dispatch failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"dispatched": dispatched})
}
