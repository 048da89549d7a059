package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/scrypster/xmem/internal/sources"
	"github.com/scrypster/xmem/internal/storage"
)

// HealthHandler serves GET /api/health (liveness) and
// GET /api/sources/{id}/health (backend probe).
type HealthHandler struct {
	sources *sources.Manager
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(mgr *sources.Manager) *HealthHandler {
	return &HealthHandler{sources: mgr}
}

// Liveness answers GET /api/health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// SourceHealth answers GET /api/sources/{id}/health.
func (h *HealthHandler) SourceHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sources/")
	id := strings.TrimSuffix(rest, "/health")
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusBadRequest, "source ID is required", nil)
		return
	}

	adapter, err := h.sources.Adapter(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			respondError(w, http.StatusNotFound, "source not found", nil)
		case errors.Is(err, storage.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, "source unavailable", err)
		default:
			respondError(w, http.StatusInternalServerError, "failed to resolve source", err)
		}
		return
	}

	// A degraded or disconnected backend is a result, not an error.
	respondJSON(w, http.StatusOK, adapter.HealthCheck(r.Context()))
}
