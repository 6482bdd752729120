package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/fieldline/automation-engine/internal/repository/postgres"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/validator"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WorkflowHandler handles workflow-related HTTP requests
type WorkflowHandler struct {
	logger *logger.Logger
	repo   *postgres.WorkflowRepository
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(log *logger.Logger, repo *postgres.WorkflowRepository) *WorkflowHandler {
	return &WorkflowHandler{
		logger: log,
		repo:   repo,
	}
}

// Create creates a new workflow
func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflow := &models.Workflow{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Definition:  req.Definition,
		Active:      req.Active,
	}

	if err := workflow.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.CreateWorkflow(r.Context(), workflow); err != nil {
		h.logger.Error("Failed to create workflow", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to create workflow")
		return
	}

	respondJSON(w, http.StatusCreated, workflow)
}

// Get retrieves a workflow by ID
func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid workflow ID")
		return
	}

	workflow, err := h.repo.GetWorkflowByID(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	respondJSON(w, http.StatusOK, workflow)
}

// List retrieves workflows with pagination
func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)

	var active *bool
	switch r.URL.Query().Get("active") {
	case "true":
		v := true
		active = &v
	case "false":
		v := false
		active = &v
	}

	workflows, total, err := h.repo.ListWorkflows(r.Context(), active, pageSize, (page-1)*pageSize)
	if err != nil {
		h.logger.Error("Failed to list workflows", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "Failed to list workflows")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": workflows,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Update updates a workflow
func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid workflow ID")
		return
	}

	var req models.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflow := &models.Workflow{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Definition:  req.Definition,
		Active:      req.Active,
	}

	if err := workflow.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.repo.UpdateWorkflow(r.Context(), workflow); err != nil {
		h.logger.Error("Failed to update workflow", logger.Err(err))
		respondError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	respondJSON(w, http.StatusOK, workflow)
}

// Delete deletes a workflow
func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid workflow ID")
		return
	}

	if err := h.repo.DeleteWorkflow(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
