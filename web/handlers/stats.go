package handlers

import (
	"net/http"

	"github.com/scrypster/xmem/internal/engine"
)

// StatsHandler serves GET /api/stats: a point-in-time snapshot clients
// poll at their own cadence.
type StatsHandler struct {
	aggregator *engine.StatsAggregator
}

// NewStatsHandler creates the stats handler.
func NewStatsHandler(aggregator *engine.StatsAggregator) *StatsHandler {
	return &StatsHandler{aggregator: aggregator}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	snapshot, err := h.aggregator.Snapshot(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute stats", err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}
