package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/scrypster/xmem/internal/engine"
	"github.com/scrypster/xmem/internal/storage"
)

// SyncHandler serves POST /api/memories/{id}/sync and
// DELETE /api/memories/{id}.
type SyncHandler struct {
	coordinator *engine.Coordinator
}

// NewSyncHandler creates the sync handler.
func NewSyncHandler(coordinator *engine.Coordinator) *SyncHandler {
	return &SyncHandler{coordinator: coordinator}
}

// memoryID extracts the memory ID from /api/memories/{id}[/sync].
func memoryID(path string) string {
	rest := strings.TrimPrefix(path, "/api/memories/")
	return strings.TrimSuffix(rest, "/sync")
}

func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := memoryID(r.URL.Path)
	if id == "" || strings.Contains(id, "/") {
		respondError(w, http.StatusBadRequest, "memory ID is required", nil)
		return
	}

	switch r.Method {
	case http.MethodPost, http.MethodPut:
		h.sync(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	}
}

func (h *SyncHandler) sync(w http.ResponseWriter, r *http.Request, id string) {
	result, err := h.coordinator.Sync(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			respondError(w, http.StatusNotFound, "memory not found", nil)
		case errors.Is(err, storage.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, "cannot sync memory", err)
		default:
			respondError(w, http.StatusInternalServerError, "sync failed", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *SyncHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.coordinator.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "memory not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
