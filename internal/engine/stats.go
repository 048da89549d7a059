package engine

import (
	"context"
	"log"

	"github.com/scrypster/xmem/internal/sources"
	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// statsStore is the read capability the aggregator needs.
type statsStore interface {
	storage.MemoryStore
	storage.SuggestionStore
}

// StatsAggregator computes point-in-time snapshots for polling clients.
// Read-only, safe for concurrent use, recomputed on every call.
type StatsAggregator struct {
	store   statsStore
	sources *sources.Manager
}

// NewStatsAggregator wires the aggregator.
func NewStatsAggregator(store statsStore, mgr *sources.Manager) *StatsAggregator {
	return &StatsAggregator{store: store, sources: mgr}
}

// Snapshot builds the current stats. A disconnected vector backend leaves
// the backend-derived fields disconnected/unknown; relational fields are
// always accurate and the call never fails on backend trouble.
func (a *StatsAggregator) Snapshot(ctx context.Context) (*types.StatsSnapshot, error) {
	active, err := a.store.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	contextSize, err := a.store.ContextSize(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := a.store.CountPendingSuggestions(ctx)
	if err != nil {
		return nil, err
	}
	lastSync, err := a.store.LastSyncedAt(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &types.StatsSnapshot{
		ActiveMemories:     active,
		ContextSize:        contextSize,
		PendingSuggestions: pending,
		LastSync:           lastSync,
		Backend:            types.BackendDisconnected,
	}

	adapter, err := a.sources.Default(ctx)
	if err != nil {
		log.Printf("stats: backend unavailable: %v", err)
		return snapshot, nil
	}
	health := adapter.HealthCheck(ctx)
	snapshot.Backend = health.Status
	snapshot.BackendCounts = health.Counts
	return snapshot, nil
}
