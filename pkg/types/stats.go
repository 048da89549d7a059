package types

import "time"

// BackendStatus describes reachability of a vector backend.
type BackendStatus string

// Backend status constants
const (
	// BackendConnected means the backend answered its health check
	BackendConnected BackendStatus = "connected"

	// BackendDegraded means the backend is reachable but reported problems
	// (e.g. a non-ok optimizer status)
	BackendDegraded BackendStatus = "degraded"

	// BackendDisconnected means the backend could not be reached
	BackendDisconnected BackendStatus = "disconnected"
)

// BackendCounts carries whatever counters a backend exposes from its health
// check. Nil fields mean the backend does not report that counter; absent
// is never reported as zero.
type BackendCounts struct {
	Points          *int64 `json:"points,omitempty"`           // Total stored vectors/points
	IndexedVectors  *int64 `json:"indexed_vectors,omitempty"`  // Vectors visible to the index
	Segments        *int64 `json:"segments,omitempty"`         // Storage segments
	OptimizerStatus string `json:"optimizer_status,omitempty"` // Backend-specific optimizer state
}

// StatsSnapshot is a point-in-time projection of engine state for polling
// clients. It is recomputed on every request and carries no caching beyond
// the stores' own read consistency.
type StatsSnapshot struct {
	ActiveMemories     int           `json:"active_memories"`     // Non-tombstoned memory count
	ContextSize        int64         `json:"context_size"`        // Aggregate content bytes of active memories
	PendingSuggestions int           `json:"pending_suggestions"` // Suggestions awaiting review
	LastSync           *time.Time    `json:"last_sync,omitempty"` // Most recent successful vector upsert
	Backend            BackendStatus `json:"backend"`             // connected, degraded, disconnected
	BackendCounts      BackendCounts `json:"backend_counts"`      // Counters from the backend health check
}
