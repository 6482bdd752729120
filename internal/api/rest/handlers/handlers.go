package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fieldline/automation-engine/internal/engine"
	"github.com/fieldline/automation-engine/internal/messaging"
	"github.com/fieldline/automation-engine/internal/repository/postgres"
	"github.com/fieldline/automation-engine/pkg/logger"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	Health    *HealthHandler
	Workflow  *WorkflowHandler
	Mutation  *MutationHandler
	Execution *ExecutionHandler
	Retry     *RetryHandler
	Webhook   *WebhookHandler
}

// HealthCheckers holds all health check dependencies
type HealthCheckers struct {
	DB    HealthChecker
	Redis HealthChecker
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	log *logger.Logger,
	workflowRepo *postgres.WorkflowRepository,
	executionRepo *postgres.ExecutionRepository,
	conversationRepo *postgres.ConversationRepository,
	detector *engine.TriggerDetector,
	dispatcher *engine.Dispatcher,
	sweeper *engine.RetrySweeper,
	deduplicator *messaging.Deduplicator,
	healthCheckers *HealthCheckers,
	version string,
) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(log, healthCheckers.DB, healthCheckers.Redis, version),
		Workflow:  NewWorkflowHandler(log, workflowRepo),
		Mutation:  NewMutationHandler(log, detector),
		Execution: NewExecutionHandler(log, executionRepo, dispatcher),
		Retry:     NewRetryHandler(log, sweeper),
		Webhook:   NewWebhookHandler(log, deduplicator, conversationRepo),
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// parsePagination reads page/page_size query parameters with sane bounds
func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	pageSize = 20

	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 && v <= 100 {
		pageSize = v
	}

	return page, pageSize
}
