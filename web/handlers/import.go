package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/scrypster/xmem/internal/engine"
)

// ImportHandler serves POST /api/import. It accepts a JSON body of raw
// rows or a text/csv body with an X-Owner-ID header, and always returns a
// complete per-row outcome list, even under partial failure.
type ImportHandler struct {
	importer *engine.Importer
}

// NewImportHandler creates the import handler.
func NewImportHandler(importer *engine.Importer) *ImportHandler {
	return &ImportHandler{importer: importer}
}

func (h *ImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var rows []map[string]interface{}
	var ownerID string

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "text/csv"):
		ownerID = r.Header.Get("X-Owner-ID")
		parsed, err := engine.ParseCSV(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid csv", err)
			return
		}
		rows = parsed
	default:
		var req ImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		rows = req.Rows
		ownerID = req.OwnerID
	}

	if ownerID == "" {
		respondError(w, http.StatusBadRequest, "ownerId is required", nil)
		return
	}

	result, err := h.importer.ImportBatch(r.Context(), rows, ownerID)
	if err != nil {
		// Cancellation mid-batch still reports what completed.
		log.Printf("import: batch interrupted after %d rows: %v", result.Processed, err)
	}

	respondJSON(w, http.StatusOK, ImportResponse{
		Created: result.Created,
		Errors:  result.Errors,
	})
}
