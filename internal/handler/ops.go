// Package handler provides the thin HTTP ops surface (health, metrics,
// GC control) that fronts this core (spec §1/§6: no S3 protocol parser
// or SigV4-enforced object write path lives here — those are out of
// scope). Grounded on the teacher's handler package shape (chi router,
// JSON responses, a HealthChecker) trimmed to the operations this
// library actually exposes to a collaborator process.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/sfsgw/internal/gc"
	"github.com/prn-tf/sfsgw/internal/store"
)

// OpsHandler exposes health, metrics, and garbage-collector control
// over HTTP for an operator or a collaborator control plane (spec §1's
// "ops surface", never the object read/write path).
type OpsHandler struct {
	db     store.Health
	gc     *gc.Collector
	logger zerolog.Logger
}

// NewOpsHandler creates an OpsHandler. gc may be nil if this process
// runs no collector (e.g. a read replica).
func NewOpsHandler(db store.Health, collector *gc.Collector, logger zerolog.Logger) *OpsHandler {
	return &OpsHandler{db: db, gc: collector, logger: logger.With().Str("component", "handler.ops").Logger()}
}

// RouterConfig wires the ops surface together (spec §1/§6).
type RouterConfig struct {
	Ops            *OpsHandler
	AuthMiddleware func(http.Handler) http.Handler
	Logger         zerolog.Logger
}

// NewRouter builds the chi router for the ops surface. Health is never
// behind auth (it must answer before credentials can even be verified
// against the database it's reporting on); GC control is.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", cfg.Ops.handleHealthz)
	r.Get("/readyz", cfg.Ops.handleHealthz)

	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}
		r.Route("/gc", func(r chi.Router) {
			r.Get("/status", cfg.Ops.handleGCStatus)
			r.Post("/suspend", cfg.Ops.handleGCSuspend)
			r.Post("/resume", cfg.Ops.handleGCResume)
			r.Post("/process", cfg.Ops.handleGCProcess)
		})
	})

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("ops request")
		})
	}
}

func (h *OpsHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *OpsHandler) handleGCStatus(w http.ResponseWriter, r *http.Request) {
	if h.gc == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gc not enabled on this process"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suspended": h.gc.Suspended()})
}

func (h *OpsHandler) handleGCSuspend(w http.ResponseWriter, r *http.Request) {
	if h.gc == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gc not enabled on this process"})
		return
	}
	h.gc.Suspend()
	writeJSON(w, http.StatusOK, map[string]any{"suspended": true})
}

func (h *OpsHandler) handleGCResume(w http.ResponseWriter, r *http.Request) {
	if h.gc == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gc not enabled on this process"})
		return
	}
	h.gc.Resume()
	writeJSON(w, http.StatusOK, map[string]any{"suspended": false})
}

// handleGCProcess steps one reclamation iteration manually, regardless
// of suspend state (spec §4.6, scenario S7) — useful for tests and
// operators who want a deterministic collection point rather than
// waiting on the ticker.
func (h *OpsHandler) handleGCProcess(w http.ResponseWriter, r *http.Request) {
	if h.gc == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "gc not enabled on this process"})
		return
	}
	result, err := h.gc.Process(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
