// Package handlers provides the HTTP handlers and middleware for the xmem
// API: bulk import, per-memory sync, stats, backend health, and the
// sync-event websocket.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/scrypster/xmem/internal/engine"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ImportRequest is the request format for POST /api/import.
type ImportRequest struct {
	// Rows are the raw records to import. Each must carry a content
	// field; type and project_id are recognized, everything else becomes
	// metadata.
	Rows []map[string]interface{} `json:"rows"`

	// OwnerID is the pre-authenticated owning user.
	OwnerID string `json:"ownerId"`
}

// ImportResponse is the response format for POST /api/import.
type ImportResponse struct {
	Created []string          `json:"created"`
	Errors  []engine.RowError `json:"errors"`
}

// HealthResponse is the response format for GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; log and move on.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}
