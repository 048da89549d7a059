package types

import "time"

// MemorySource is a configured external vector backend. Its Type selects
// which adapter services syncs for memories routed to this source.
type MemorySource struct {
	ID         string     `json:"id"`          // Unique identifier (format: src:uuid)
	Name       string     `json:"name"`        // Human-readable name, unique per deployment
	Type       SourceType `json:"type"`        // Backend kind (qdrant, pinecone, mongodb, chromadb, pgvector, chromem)
	URL        string     `json:"url"`         // Connection URL / DSN
	APIKey     string     `json:"api_key,omitempty"` // Credentials, backend-specific
	Collection string     `json:"collection,omitempty"` // Collection / index / table name
	Enabled    bool       `json:"enabled"`     // Disabled sources are never selected for sync
	SyncInterval time.Duration `json:"sync_interval,omitempty"` // Reconciliation cadence for this source
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
