package types

import "time"

// Memory represents a single memory unit in the system.
// Memories are the atomic units of information storage, containing content,
// metadata, an optional embedding, and sync tracking for the vector backend.
type Memory struct {
	// Core identification fields
	ID        string    `json:"id"`         // Unique identifier (format: mem:uuid)
	Content   string    `json:"content"`    // Raw memory content
	Type      MemoryType `json:"type"`      // Content type (text, code, image, link)
	UserID    string    `json:"user_id"`    // Owning user (pre-authenticated by the caller)
	ProjectID string    `json:"project_id,omitempty"` // Optional owning project
	CreatedAt time.Time `json:"created_at"` // When the memory was created
	UpdatedAt time.Time `json:"updated_at"` // Last update timestamp

	// Arbitrary metadata; unknown import fields are retained here, never dropped
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Embedding fields
	Embedding          []float32 `json:"embedding,omitempty"`           // Vector embedding for semantic search (nil until generated)
	EmbeddingModel     string    `json:"embedding_model,omitempty"`     // Model tag that produced the embedding
	EmbeddingDimension int       `json:"embedding_dimension,omitempty"` // Dimension mandated by the model tag

	// Vector backend sync tracking. Only the sync coordinator writes these.
	SyncStatus   SyncStatus `json:"sync_status"`              // pending, synced, failed
	SyncError    string     `json:"sync_error,omitempty"`     // Last error when SyncStatus is failed
	SyncAttempts int        `json:"sync_attempts"`            // Attempts recorded for the most recent sync
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"` // When the vector upsert last succeeded

	// Content hash (SHA-256 hex) used to short-circuit re-syncs of unchanged content
	ContentHash string `json:"content_hash,omitempty"`

	// Soft delete tombstone; deletion is propagated to the vector backend
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the memory carries a tombstone.
func (m *Memory) IsDeleted() bool {
	return m.DeletedAt != nil
}

// HasEmbedding reports whether an embedding has been generated and is
// consistent with the recorded dimension.
func (m *Memory) HasEmbedding() bool {
	return len(m.Embedding) > 0 && len(m.Embedding) == m.EmbeddingDimension
}
