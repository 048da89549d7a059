package sources

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/internal/vector"
	"github.com/scrypster/xmem/pkg/types"
)

// Manager resolves vector adapters for configured sources. Adapters are
// built lazily, cached per source ID, and dropped when the source record
// changes. Only enabled sources resolve.
type Manager struct {
	store     storage.SourceStore
	dimension int

	mu        sync.RWMutex
	adapters  map[string]vector.Adapter
	defaultID string
}

// NewManager creates a manager backed by the given source store. dimension
// is the embedding dimension passed to adapters that create schemas.
func NewManager(store storage.SourceStore, dimension int) *Manager {
	return &Manager{
		store:     store,
		dimension: dimension,
		adapters:  make(map[string]vector.Adapter),
	}
}

// LoadFromFile loads sources.yaml into the store and resets adapter caches
// for every loaded source. Sources present in the store but absent from the
// file are left alone.
func (m *Manager) LoadFromFile(ctx context.Context, path string) error {
	sources, defaultID, err := LoadFile(path)
	if err != nil {
		return err
	}

	for i := range sources {
		if err := m.store.StoreSource(ctx, &sources[i]); err != nil {
			return fmt.Errorf("sources: failed to store %q: %w", sources[i].ID, err)
		}
		m.Invalidate(sources[i].ID)
	}

	m.mu.Lock()
	if defaultID != "" {
		m.defaultID = defaultID
	} else if m.defaultID == "" && len(sources) > 0 {
		m.defaultID = sources[0].ID
	}
	m.mu.Unlock()

	log.Printf("sources: loaded %d sources from %s (default %q)", len(sources), path, m.DefaultID())
	return nil
}

// DefaultID returns the configured default source ID, empty if none.
func (m *Manager) DefaultID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultID
}

// SetDefault changes the default source.
func (m *Manager) SetDefault(id string) {
	m.mu.Lock()
	m.defaultID = id
	m.mu.Unlock()
}

// Adapter resolves the adapter for a source ID, building and caching it on
// first use. Disabled sources return ErrInvalidInput.
func (m *Manager) Adapter(ctx context.Context, id string) (vector.Adapter, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: source ID is required", storage.ErrInvalidInput)
	}

	m.mu.RLock()
	adapter, ok := m.adapters[id]
	m.mu.RUnlock()
	if ok {
		return adapter, nil
	}

	source, err := m.store.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if !source.Enabled {
		return nil, fmt.Errorf("%w: source %q is disabled", storage.ErrInvalidInput, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another goroutine may have built it while we read the store.
	if adapter, ok := m.adapters[id]; ok {
		return adapter, nil
	}

	adapter, err = vector.NewAdapter(source, m.dimension)
	if err != nil {
		return nil, err
	}
	m.adapters[id] = adapter
	log.Printf("sources: resolved %s adapter for source %q", source.Type, id)
	return adapter, nil
}

// Default resolves the default source's adapter.
func (m *Manager) Default(ctx context.Context) (vector.Adapter, error) {
	id := m.DefaultID()
	if id == "" {
		return nil, fmt.Errorf("%w: no default source configured", storage.ErrInvalidInput)
	}
	return m.Adapter(ctx, id)
}

// GetSource returns the stored record for a source ID.
func (m *Manager) GetSource(ctx context.Context, id string) (*types.MemorySource, error) {
	return m.store.GetSource(ctx, id)
}

// ListEnabled returns all enabled sources.
func (m *Manager) ListEnabled(ctx context.Context) ([]types.MemorySource, error) {
	all, err := m.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, s := range all {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled, nil
}

// Invalidate drops the cached adapter for a source, closing it if it holds
// resources. The next resolution rebuilds from the stored record.
func (m *Manager) Invalidate(id string) {
	m.mu.Lock()
	adapter, ok := m.adapters[id]
	delete(m.adapters, id)
	m.mu.Unlock()

	if ok {
		if closer, isCloser := adapter.(io.Closer); isCloser {
			if err := closer.Close(); err != nil {
				log.Printf("sources: failed to close adapter for %q: %v", id, err)
			}
		}
	}
}

// Close drops and closes every cached adapter.
func (m *Manager) Close() {
	m.mu.Lock()
	adapters := m.adapters
	m.adapters = make(map[string]vector.Adapter)
	m.mu.Unlock()

	for id, adapter := range adapters {
		if closer, ok := adapter.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Printf("sources: failed to close adapter for %q: %v", id, err)
			}
		}
	}
}
