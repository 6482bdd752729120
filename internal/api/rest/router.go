package rest

import (
	"net/http"
	"os"
	"strings"

	"github.com/fieldline/automation-engine/internal/api/rest/handlers"
	customMiddleware "github.com/fieldline/automation-engine/internal/api/rest/middleware"
	"github.com/fieldline/automation-engine/pkg/logger"
	"github.com/fieldline/automation-engine/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds the HTTP router and dependencies
type Router struct {
	router   *chi.Mux
	logger   *logger.Logger
	handlers *handlers.Handlers
	metrics  *metrics.Metrics
}

// NewRouter creates a new HTTP router
func NewRouter(log *logger.Logger, h *handlers.Handlers, m *metrics.Metrics) *Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(customMiddleware.Metrics(m))

	allowedOrigins := []string{"http://localhost:3000"}
	if originsEnv := os.Getenv("ALLOWED_ORIGINS"); originsEnv != "" {
		allowedOrigins = strings.Split(originsEnv, ",")
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	return &Router{
		router:   r,
		logger:   log,
		handlers: h,
		metrics:  m,
	}
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes() {
	// Prometheus metrics endpoint
	r.router.Handle("/metrics", promhttp.Handler())

	// Health endpoints
	r.router.Get("/health", r.handlers.Health.Health)
	r.router.Get("/ready", r.handlers.Health.Ready)

	// Provider webhooks, rate limited per client
	webhookLimiter := customMiddleware.NewRateLimiter(50, 100, r.logger)
	r.router.Route("/webhooks", func(router chi.Router) {
		router.Use(customMiddleware.RateLimit(webhookLimiter))
		router.Post("/messages", r.handlers.Webhook.Receive)
	})

	// API v1
	r.router.Route("/api/v1", func(router chi.Router) {
		router.Route("/workflows", func(router chi.Router) {
			router.Post("/", r.handlers.Workflow.Create)
			router.Get("/", r.handlers.Workflow.List)
			router.Get("/{id}", r.handlers.Workflow.Get)
			router.Put("/{id}", r.handlers.Workflow.Update)
			router.Delete("/{id}", r.handlers.Workflow.Delete)
		})

		router.Post("/mutations", r.handlers.Mutation.Ingest)

		router.Route("/executions", func(router chi.Router) {
			router.Get("/", r.handlers.Execution.List)
			router.Get("/{id}", r.handlers.Execution.Get)
			router.Post("/{id}/dispatch", r.handlers.Execution.Dispatch)
		})
		router.Post("/dispatch", r.handlers.Execution.DispatchPending)

		router.Route("/retries", func(router chi.Router) {
			router.Post("/sweep", r.handlers.Retry.Sweep)
			router.Get("/exhausted", r.handlers.Retry.Exhausted)
		})

		router.Get("/conversations", r.handlers.Webhook.ListConversations)
	})
}

// Handler returns the underlying HTTP handler
func (r *Router) Handler() http.Handler {
	return r.router
}
