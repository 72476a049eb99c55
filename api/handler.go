// Package api provides the HTTP surface of the relay: event ingestion and
// inspection under /api/v1, and the operator admin API under /api/v1/admin.
package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/hookline/hookline"
)

// maxBodyBytes caps how much of a request envelope is read before decoding.
const maxBodyBytes = 10 << 20 // 10 MiB

// Config configures the HTTP handler.
type Config struct {
	// DevMode includes internal error details in INTERNAL_ERROR responses.
	DevMode bool
}

// Handler is the root HTTP handler for the relay.
type Handler struct {
	svc     *hookline.Service
	logger  *slog.Logger
	mux     *http.ServeMux
	devMode bool
	started time.Time
}

// NewHandler creates the HTTP handler for a relay service.
func NewHandler(svc *hookline.Service, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		svc:     svc,
		logger:  logger,
		mux:     http.NewServeMux(),
		devMode: cfg.DevMode,
		started: time.Now(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.health)

	// Events
	h.mux.HandleFunc("POST /api/v1/events", h.createEvent)
	h.mux.HandleFunc("GET /api/v1/events", h.listEvents)
	h.mux.HandleFunc("GET /api/v1/events/{id}", h.getEvent)

	// Subscriptions
	h.mux.HandleFunc("POST /api/v1/admin/subscriptions", h.createSubscription)
	h.mux.HandleFunc("GET /api/v1/admin/subscriptions", h.listSubscriptions)
	h.mux.HandleFunc("GET /api/v1/admin/subscriptions/{id}", h.getSubscription)
	h.mux.HandleFunc("PUT /api/v1/admin/subscriptions/{id}", h.updateSubscription)
	h.mux.HandleFunc("DELETE /api/v1/admin/subscriptions/{id}", h.deleteSubscription)

	// Delivery logs
	h.mux.HandleFunc("GET /api/v1/admin/delivery-logs", h.listLogs)
	h.mux.HandleFunc("GET /api/v1/admin/delivery-logs/{id}", h.getLog)
	h.mux.HandleFunc("POST /api/v1/admin/delivery-logs/{id}/retry", h.retryLog)

	// Schemas
	h.mux.HandleFunc("PUT /api/v1/admin/schemas/{eventType}", h.putSchema)
	h.mux.HandleFunc("GET /api/v1/admin/schemas", h.listSchemas)
	h.mux.HandleFunc("GET /api/v1/admin/schemas/{eventType}", h.getSchema)
	h.mux.HandleFunc("DELETE /api/v1/admin/schemas/{eventType}", h.deleteSchema)

	// Stats
	h.mux.HandleFunc("GET /api/v1/admin/stats", h.getStats)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(next))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
