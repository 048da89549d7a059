// Package storage provides composable storage interfaces for the xmem engine.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The relational store is
// the authoritative record; the vector backend is a derived index.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/xmem/pkg/types"
)

// SyncUpdate carries the fields the sync coordinator writes after a sync
// attempt. Only the coordinator issues these updates.
type SyncUpdate struct {
	// Status is the resulting sync status.
	Status types.SyncStatus

	// Error is the last error message; empty unless Status is failed.
	Error string

	// Attempts is the number of attempts recorded for this sync.
	Attempts int

	// Embedding, Model and Dimension are set when an embedding was produced.
	Embedding []float32
	Model     string
	Dimension int

	// ContentHash records the hash the embedding was computed from.
	ContentHash string

	// SyncedAt is the completion time of a successful vector upsert.
	SyncedAt *time.Time
}

// MemoryStore provides CRUD operations and pagination for memories.
type MemoryStore interface {
	// Store creates or updates a memory (upsert semantics).
	Store(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID.
	// Returns ErrNotFound if the memory doesn't exist.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// List retrieves memories with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// Delete tombstones a memory and prunes all relationship edges that
	// reference it, in a single transaction.
	// Returns ErrNotFound if the memory doesn't exist.
	Delete(ctx context.Context, id string) error

	// UpdateSync applies a sync status transition for a memory.
	// Returns ErrNotFound if the memory doesn't exist.
	UpdateSync(ctx context.Context, id string, update SyncUpdate) error

	// CountActive returns the number of non-tombstoned memories.
	CountActive(ctx context.Context) (int, error)

	// CountSynced returns the number of non-tombstoned memories in the
	// synced state. Used by the reconciler to detect drift.
	CountSynced(ctx context.Context) (int, error)

	// ContextSize returns the aggregate content size in bytes across all
	// non-tombstoned memories.
	ContextSize(ctx context.Context) (int64, error)

	// ListBySyncStatus returns up to limit memory IDs in the given sync
	// state, oldest first. Used by the reconciler to re-queue failures.
	ListBySyncStatus(ctx context.Context, status types.SyncStatus, limit int) ([]string, error)

	// LastSyncedAt returns the most recent successful sync timestamp, or
	// nil when no memory has ever synced.
	LastSyncedAt(ctx context.Context) (*time.Time, error)

	// Close releases any resources held by the store.
	Close() error
}

// ProjectStore manages project records and their denormalized counters.
type ProjectStore interface {
	// StoreProject creates or updates a project.
	StoreProject(ctx context.Context, project *types.Project) error

	// GetProject retrieves a project by ID.
	// Returns ErrNotFound if the project doesn't exist.
	GetProject(ctx context.Context, id string) (*types.Project, error)

	// DeleteProject removes a project and detaches its memories. Memories
	// are never deleted with their project.
	DeleteProject(ctx context.Context, id string) error
}

// RelationshipStore manages typed edges between memories and projects.
type RelationshipStore interface {
	// CreateRelationship creates a new edge. Both endpoints must exist and
	// be non-tombstoned; otherwise ErrInvalidInput is returned.
	CreateRelationship(ctx context.Context, rel *types.Relationship) error

	// GetRelationships retrieves edges touching the given ID. Symmetric
	// kinds are returned regardless of which endpoint matched.
	GetRelationships(ctx context.Context, id string) ([]types.Relationship, error)

	// DeleteRelationship removes an edge by ID.
	DeleteRelationship(ctx context.Context, id string) error
}

// SourceStore manages vector backend configuration records.
type SourceStore interface {
	// StoreSource creates or updates a memory source.
	StoreSource(ctx context.Context, source *types.MemorySource) error

	// GetSource retrieves a source by ID.
	// Returns ErrNotFound if the source doesn't exist.
	GetSource(ctx context.Context, id string) (*types.MemorySource, error)

	// ListSources returns all configured sources.
	ListSources(ctx context.Context) ([]types.MemorySource, error)

	// DeleteSource removes a source configuration.
	DeleteSource(ctx context.Context, id string) error
}

// SuggestionStore manages derived suggestions and their review state.
type SuggestionStore interface {
	// StoreSuggestion creates or updates a suggestion.
	StoreSuggestion(ctx context.Context, s *types.Suggestion) error

	// GetSuggestion retrieves a suggestion by ID.
	// Returns ErrNotFound if the suggestion doesn't exist.
	GetSuggestion(ctx context.Context, id string) (*types.Suggestion, error)

	// CountPendingSuggestions returns the number of suggestions awaiting review.
	CountPendingSuggestions(ctx context.Context) (int, error)

	// UpdateSuggestionStatus moves a suggestion to accepted or rejected.
	// Returns ErrNotFound if the suggestion doesn't exist.
	UpdateSuggestionStatus(ctx context.Context, id string, status types.SuggestionStatus) error
}

// Store is the full relational capability the engine consumes. The SQLite
// implementation satisfies all of it; callers may depend on the narrower
// interfaces above.
type Store interface {
	MemoryStore
	ProjectStore
	RelationshipStore
	SourceStore
	SuggestionStore
}
