package engine

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/scrypster/xmem/internal/storage"
)

// RowError reports why one import row was rejected.
type RowError struct {
	// Row is the zero-based index of the offending row.
	Row int `json:"row"`

	// Reason is the human-readable rejection reason.
	Reason string `json:"reason"`
}

// ImportResult is the complete per-row accounting of a batch import. Every
// processed row appears exactly once, either as a created ID or a row
// error, in row order.
type ImportResult struct {
	// Created lists the IDs of created memories in row order.
	Created []string `json:"created"`

	// Errors lists rejected rows in row order.
	Errors []RowError `json:"errors"`

	// Processed is the number of rows handled before return. Less than
	// the row count only when the context was cancelled.
	Processed int `json:"processed"`
}

// Importer drives the normalizer and sync coordinator over a batch of raw
// rows with a bounded worker pool.
type Importer struct {
	coordinator *Coordinator
	workers     int
}

// NewImporter creates an importer running up to workers rows in parallel.
func NewImporter(coordinator *Coordinator, workers int) *Importer {
	if workers < 1 {
		workers = 4
	}
	return &Importer{coordinator: coordinator, workers: workers}
}

// rowOutcome is one row's result, indexed for reassembly in row order.
type rowOutcome struct {
	row      int
	memoryID string
	err      error
}

// ImportBatch imports rows for ownerID. A row failure never aborts the
// batch; the result carries a full per-row accounting. Cancellation is
// cooperative at row boundaries: in-flight rows finish, unstarted rows are
// not picked up, and Processed reports how far the batch got. The returned
// error is non-nil only for cancellation.
func (i *Importer) ImportBatch(ctx context.Context, rows []map[string]interface{}, ownerID string) (*ImportResult, error) {
	result := &ImportResult{Created: []string{}, Errors: []RowError{}}
	if len(rows) == 0 {
		return result, nil
	}

	jobs := make(chan int)
	outcomes := make(chan rowOutcome, len(rows))

	var wg sync.WaitGroup
	for w := 0; w < i.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range jobs {
				outcomes <- i.importRow(ctx, rows[row], ownerID, row)
			}
		}()
	}

	// Feed rows until done or cancelled; cancellation stops at the next
	// row boundary, never mid-row.
	dispatched := 0
feed:
	for row := range rows {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- row:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()
	close(outcomes)

	collected := make([]rowOutcome, 0, dispatched)
	for outcome := range outcomes {
		collected = append(collected, outcome)
	}
	// Workers complete out of order; the caller sees row order.
	byRow := make(map[int]rowOutcome, len(collected))
	for _, o := range collected {
		byRow[o.row] = o
	}
	for row := 0; row < len(rows); row++ {
		o, ok := byRow[row]
		if !ok {
			continue
		}
		result.Processed++
		if o.err != nil {
			reason := o.err.Error()
			var ve *storage.ValidationError
			if errors.As(o.err, &ve) {
				reason = ve.Reason
			}
			result.Errors = append(result.Errors, RowError{Row: o.row, Reason: reason})
		} else {
			result.Created = append(result.Created, o.memoryID)
		}
	}

	if ctx.Err() != nil && result.Processed < len(rows) {
		return result, ctx.Err()
	}
	return result, nil
}

// importRow normalizes and stores one row, then syncs it. Validation
// failures reject the row; a sync failure does not, since the relational
// write succeeded and the reconciler will retry the vector side.
func (i *Importer) importRow(ctx context.Context, record map[string]interface{}, ownerID string, row int) rowOutcome {
	memory, err := Normalize(record, ownerID)
	if err != nil {
		return rowOutcome{row: row, err: err}
	}

	syncResult, err := i.coordinator.CreateAndSync(ctx, memory)
	if err != nil {
		// The relational write itself failed; the row produced nothing.
		return rowOutcome{row: row, err: err}
	}
	if syncResult.Error != "" {
		log.Printf("import: row %d created %s but sync failed: %s", row, memory.ID, syncResult.Error)
	}
	return rowOutcome{row: row, memoryID: memory.ID}
}
