package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/xmem/internal/embedding"
	"github.com/scrypster/xmem/internal/sources"
	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/internal/vector"
	"github.com/scrypster/xmem/pkg/types"
)

// CoordinatorConfig tunes the sync coordinator.
type CoordinatorConfig struct {
	// MaxAttempts bounds upsert retries per sync. Default: 5.
	MaxAttempts int

	// BaseBackoff is the initial retry delay, doubled per attempt.
	// Default: 200ms.
	BaseBackoff time.Duration

	// Workers is the size of the background sync pool. Default: 4.
	Workers int

	// QueueSize bounds the background sync queue. Default: 256.
	QueueSize int

	// RateLimit caps vector-backend calls per second, per backend.
	// Default: 20.
	RateLimit float64

	// Burst is the rate limiter burst. Default: 10.
	Burst int
}

func (c *CoordinatorConfig) normalize() {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.QueueSize < 1 {
		c.QueueSize = 256
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.Burst < 1 {
		c.Burst = 10
	}
}

// SyncResult reports the outcome of one sync operation.
type SyncResult struct {
	Status   types.SyncStatus `json:"status"`
	Attempts int              `json:"attempts"`
	Error    string           `json:"error,omitempty"`
}

// Coordinator drives the sync state machine. It is the only writer of sync
// status: pending on entry, then synced or failed. Per-memory operations
// are serialized through a keyed mutex; different memories sync
// independently. Backend calls are rate limited per source.
type Coordinator struct {
	store    storage.MemoryStore
	embedder *embedding.Cache
	sources  *sources.Manager
	config   CoordinatorConfig

	// notify, when set, receives sync completions for the websocket hub.
	notify func(memoryID string, status types.SyncStatus)

	locks keyedMutex

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	queue    chan string
	stopMu   sync.Mutex
	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCoordinator wires the coordinator. Call Start to run the background
// workers; Sync works without them.
func NewCoordinator(store storage.MemoryStore, embedder *embedding.Cache, mgr *sources.Manager, config CoordinatorConfig) *Coordinator {
	config.normalize()
	return &Coordinator{
		store:    store,
		embedder: embedder,
		sources:  mgr,
		config:   config,
		limiters: make(map[string]*rate.Limiter),
		queue:    make(chan string, config.QueueSize),
	}
}

// OnSyncComplete registers a callback invoked after every terminal sync
// transition. Must be set before Start.
func (c *Coordinator) OnSyncComplete(fn func(memoryID string, status types.SyncStatus)) {
	c.notify = fn
}

// Start launches the background sync workers.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.config.Workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-c.queue:
					if !ok {
						return
					}
					if _, err := c.Sync(ctx, id); err != nil && ctx.Err() == nil {
						log.Printf("sync: background sync of %s failed: %v", id, err)
					}
				}
			}
		}()
	}
	log.Printf("sync: started %d workers (queue %d)", c.config.Workers, c.config.QueueSize)
}

// Stop closes the queue and waits for workers to drain. Enqueue calls
// after Stop are rejected.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.stopMu.Lock()
		c.stopped = true
		c.stopMu.Unlock()
		close(c.queue)
	})
	c.wg.Wait()
}

// Enqueue schedules a background sync. Returns false when the queue is
// full or the coordinator is stopped; callers treat that as backpressure,
// not an error.
func (c *Coordinator) Enqueue(id string) bool {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.stopped {
		return false
	}
	select {
	case c.queue <- id:
		return true
	default:
		return false
	}
}

// CreateAndSync stores the memory relationally, then syncs it. The
// relational write establishes durable identity before any external call;
// a sync failure never rolls it back.
func (c *Coordinator) CreateAndSync(ctx context.Context, memory *types.Memory) (*SyncResult, error) {
	memory.SyncStatus = types.SyncPending
	if err := c.store.Store(ctx, memory); err != nil {
		return nil, err
	}
	return c.Sync(ctx, memory.ID)
}

// Sync runs the state machine for one memory: pending, then embedding,
// then vector upsert, then synced or failed. An already-synced memory with
// unchanged content keeps its embedding and returns immediately.
func (c *Coordinator) Sync(ctx context.Context, id string) (*SyncResult, error) {
	unlock := c.locks.lock(id)
	defer unlock()

	memory, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if memory.IsDeleted() {
		return nil, fmt.Errorf("%w: memory %s is deleted", storage.ErrInvalidInput, id)
	}

	// Unchanged content on a synced memory keeps its vector.
	hash := embedding.Hash(memory.Content)
	if memory.SyncStatus == types.SyncSynced && memory.ContentHash == hash && memory.HasEmbedding() {
		return &SyncResult{Status: types.SyncSynced, Attempts: memory.SyncAttempts}, nil
	}

	// Any entry into the machine (including re-sync from failed) passes
	// through pending.
	if err := c.store.UpdateSync(ctx, id, storage.SyncUpdate{Status: types.SyncPending}); err != nil {
		return nil, err
	}

	result, err := c.embedder.Embed(ctx, memory.Content)
	if err != nil {
		return c.fail(ctx, id, 0, fmt.Errorf("embedding failed: %w", err))
	}

	adapter, sourceID, err := c.resolveAdapter(ctx)
	if err != nil {
		return c.fail(ctx, id, 0, err)
	}

	metadata := map[string]interface{}{
		"content":    memory.Content,
		"type":       string(memory.Type),
		"user_id":    memory.UserID,
		"project_id": memory.ProjectID,
	}

	attempts, err := c.upsertWithRetry(ctx, adapter, sourceID, memory.ID, result.Vector, metadata)
	if err != nil {
		return c.fail(ctx, id, attempts, err)
	}

	now := time.Now().UTC()
	update := storage.SyncUpdate{
		Status:    types.SyncSynced,
		Attempts:  attempts,
		Embedding: result.Vector,
		Model:     result.Model,
		Dimension: result.Dimension,
		// The hash travels with the synced state so the short-circuit
		// above stays valid after content updates.
		ContentHash: hash,
		SyncedAt:    &now,
	}
	if err := c.store.UpdateSync(ctx, id, update); err != nil {
		return nil, err
	}

	c.emit(id, types.SyncSynced)
	return &SyncResult{Status: types.SyncSynced, Attempts: attempts}, nil
}

// Delete tombstones the memory relationally (pruning its edges in the same
// transaction), then issues a best-effort vector delete. A failed vector
// delete is logged and left for reconciliation; it never blocks the
// relational deletion.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	unlock := c.locks.lock(id)
	defer unlock()

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}

	adapter, sourceID, err := c.resolveAdapter(ctx)
	if err != nil {
		log.Printf("sync: no backend for vector delete of %s: %v", id, err)
		return nil
	}
	if err := c.waitLimiter(ctx, sourceID); err != nil {
		return nil
	}
	if err := adapter.Delete(ctx, id); err != nil {
		log.Printf("sync: vector delete of %s failed, deferring to reconciliation: %v", id, err)
	}
	return nil
}

// upsertWithRetry attempts the vector upsert with bounded exponential
// backoff on transient errors. It returns the number of attempts made.
func (c *Coordinator) upsertWithRetry(ctx context.Context, adapter vector.Adapter, sourceID, id string, vec []float32, metadata map[string]interface{}) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.waitLimiter(ctx, sourceID); err != nil {
			return attempt, err
		}

		lastErr = adapter.Upsert(ctx, id, vec, metadata)
		if lastErr == nil {
			return attempt, nil
		}
		if !vector.IsTransient(lastErr) {
			return attempt, lastErr
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		backoff := c.config.BaseBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return c.config.MaxAttempts, lastErr
}

// fail records the failed state with the last error and attempt count.
func (c *Coordinator) fail(ctx context.Context, id string, attempts int, cause error) (*SyncResult, error) {
	update := storage.SyncUpdate{
		Status:   types.SyncFailed,
		Error:    cause.Error(),
		Attempts: attempts,
	}
	if err := c.store.UpdateSync(ctx, id, update); err != nil {
		return nil, fmt.Errorf("failed to record sync failure: %w (original: %v)", err, cause)
	}
	c.emit(id, types.SyncFailed)
	return &SyncResult{Status: types.SyncFailed, Attempts: attempts, Error: cause.Error()}, nil
}

func (c *Coordinator) resolveAdapter(ctx context.Context) (vector.Adapter, string, error) {
	sourceID := c.sources.DefaultID()
	adapter, err := c.sources.Default(ctx)
	if err != nil {
		return nil, "", err
	}
	return adapter, sourceID, nil
}

// waitLimiter blocks until the per-backend rate limiter admits the call.
func (c *Coordinator) waitLimiter(ctx context.Context, sourceID string) error {
	c.limitersMu.Lock()
	limiter, ok := c.limiters[sourceID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(c.config.RateLimit), c.config.Burst)
		c.limiters[sourceID] = limiter
	}
	c.limitersMu.Unlock()
	return limiter.Wait(ctx)
}

func (c *Coordinator) emit(id string, status types.SyncStatus) {
	if c.notify != nil {
		c.notify(id, status)
	}
}

// keyedMutex serializes operations per memory ID. Entries are reference
// counted and removed when the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
