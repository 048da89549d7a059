// Package vector provides adapters for external vector backends. Each
// adapter speaks one backend's wire protocol and normalizes results into a
// common shape; the sync coordinator treats them interchangeably.
package vector

import (
	"context"

	"github.com/scrypster/xmem/pkg/types"
)

// Match is a single similarity search result.
type Match struct {
	// ID is the memory ID stored with the vector.
	ID string `json:"id"`

	// Score is backend-reported similarity, higher is closer.
	Score float64 `json:"score"`
}

// Health is the result of a backend health check. Counters a backend does
// not expose stay nil; absent is never reported as zero.
type Health struct {
	Status types.BackendStatus `json:"status"`
	Counts types.BackendCounts `json:"counts"`

	// Error describes the failure when Status is not connected.
	Error string `json:"error,omitempty"`
}

// Adapter is the operations the sync coordinator needs from any vector
// backend. Implementations must be safe for concurrent use.
type Adapter interface {
	// Upsert writes or replaces the vector and metadata for a memory ID.
	Upsert(ctx context.Context, id string, vec []float32, metadata map[string]interface{}) error

	// Delete removes the vector for a memory ID. Deleting a missing ID is
	// not an error.
	Delete(ctx context.Context, id string) error

	// Query returns the k nearest matches to vec.
	Query(ctx context.Context, vec []float32, k int) ([]Match, error)

	// HealthCheck probes the backend and reports status plus whatever
	// counters it exposes.
	HealthCheck(ctx context.Context) Health
}
