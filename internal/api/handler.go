// Package api provides the HTTP handlers and router for the ledger API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"accessledger/internal/domain"
	"accessledger/internal/middleware"
	"accessledger/internal/service/drift"
	"accessledger/internal/service/reconcile"
)

// Handler serves the ledger API.
type Handler struct {
	controller *reconcile.Controller
	drift      *drift.Service
	runs       domain.RunRepository
	matrix     domain.MatrixRepository
	principals domain.PrincipalRepository
	logger     *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(
	controller *reconcile.Controller,
	driftSvc *drift.Service,
	runs domain.RunRepository,
	matrix domain.MatrixRepository,
	principals domain.PrincipalRepository,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		controller: controller,
		drift:      driftSvc,
		runs:       runs,
		matrix:     matrix,
		principals: principals,
		logger:     logger,
	}
}

// RouterConfig holds the cross-cutting options for the API router.
type RouterConfig struct {
	JWTSecret          string
	APIKeys            domain.APIKeyRepository
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewRouter assembles the chi router with the full middleware stack.
// /healthz stays outside the auth boundary.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
	}))
	r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))

	r.Get("/healthz", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth([]byte(cfg.JWTSecret), cfg.APIKeys))

		r.Route("/v1", func(r chi.Router) {
			r.Post("/runs", h.TriggerRun)
			r.Get("/runs", h.ListRuns)
			r.Get("/runs/{runID}", h.GetRun)
			r.Post("/runs/{runID}/cancel", h.CancelRun)
			r.Get("/runs/{runID}/entries", h.ListRunEntries)

			r.Get("/drift", h.Drift)

			r.Get("/principals", h.ListPrincipals)
			r.Get("/principals/{principalID}", h.GetPrincipal)
			r.Put("/principals/{principalID}/ticket", h.SetPrincipalTicket)
		})
	})

	return r
}

// Health implements the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to its HTTP shape.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := httpStatusFromDomainError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{"code": status, "message": err.Error()})
}

// pageFromQuery builds a PageRequest from max_results / page_token params.
func pageFromQuery(r *http.Request) domain.PageRequest {
	page := domain.PageRequest{PageToken: r.URL.Query().Get("page_token")}
	if v := r.URL.Query().Get("max_results"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page.MaxResults = n
		}
	}
	return page
}
