package engine

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scrypster/xmem/internal/sources"
	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// DriftReport is the outcome of one reconciliation pass.
type DriftReport struct {
	// SyncedCount is the relational count of synced memories.
	SyncedCount int `json:"synced_count"`

	// BackendCount is the backend-reported point count; nil when the
	// backend does not expose one or was unreachable.
	BackendCount *int64 `json:"backend_count"`

	// Drift is true when both counts are known and disagree.
	Drift bool `json:"drift"`

	// Requeued is the number of failed memories re-queued for sync.
	Requeued int `json:"requeued"`

	// BackendStatus is the health status observed during the pass.
	BackendStatus types.BackendStatus `json:"backend_status"`
}

// Reconciler periodically compares relational synced counts against
// backend-reported counts and re-queues failed memories. It flags drift
// but does not auto-repair beyond the re-queue.
type Reconciler struct {
	store       storage.MemoryStore
	sources     *sources.Manager
	coordinator *Coordinator
	batchSize   int
	cron        *cron.Cron
}

// NewReconciler wires the reconciler. batchSize caps how many failed
// memories one pass re-queues.
func NewReconciler(store storage.MemoryStore, mgr *sources.Manager, coordinator *Coordinator, batchSize int) *Reconciler {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Reconciler{
		store:       store,
		sources:     mgr,
		coordinator: coordinator,
		batchSize:   batchSize,
	}
}

// Start schedules periodic passes at the given interval.
func (r *Reconciler) Start(interval time.Duration) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc("@every "+interval.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		if _, err := r.Run(ctx); err != nil {
			log.Printf("reconcile: pass failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	log.Printf("reconcile: scheduled every %s", interval)
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Run executes one on-demand reconciliation pass.
func (r *Reconciler) Run(ctx context.Context) (*DriftReport, error) {
	report := &DriftReport{BackendStatus: types.BackendDisconnected}

	synced, err := r.store.CountSynced(ctx)
	if err != nil {
		return nil, err
	}
	report.SyncedCount = synced

	if adapter, aerr := r.sources.Default(ctx); aerr == nil {
		health := adapter.HealthCheck(ctx)
		report.BackendStatus = health.Status
		report.BackendCount = health.Counts.Points
		if health.Counts.Points != nil && *health.Counts.Points != int64(synced) {
			report.Drift = true
			log.Printf("reconcile: drift detected: %d synced relationally, %d points in backend",
				synced, *health.Counts.Points)
		}
	} else {
		log.Printf("reconcile: backend unavailable, skipping drift check: %v", aerr)
	}

	// Failed memories get another trip through the state machine.
	failed, err := r.store.ListBySyncStatus(ctx, types.SyncFailed, r.batchSize)
	if err != nil {
		return nil, err
	}
	for _, id := range failed {
		if r.coordinator.Enqueue(id) {
			report.Requeued++
		}
	}
	if report.Requeued > 0 {
		log.Printf("reconcile: re-queued %d failed memories", report.Requeued)
	}

	return report, nil
}
