// Package sqlite implements the storage interfaces on SQLite via
// modernc.org/sqlite (pure Go, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies the schema.
// A plain file path works; modernc.org/sqlite accepts file: URIs too.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open %q: %w", dsn, err)
	}

	// SQLite handles one writer at a time; serialize through a single
	// connection to avoid SQLITE_BUSY under concurrent sync workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set pragmas: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB exposes the underlying connection for callers that need direct
// queries (e.g. the stats aggregator in tests).
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store creates or updates a memory (upsert semantics). Project memory
// counts are maintained in the same transaction.
func (s *Store) Store(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" {
		return fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}
	if memory.UserID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	metaJSON, err := marshalMetadata(memory.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prevProject sql.NullString
	exists := true
	err = tx.QueryRowContext(ctx, `SELECT project_id FROM memories WHERE id = ?`, memory.ID).Scan(&prevProject)
	if err == sql.ErrNoRows {
		exists = false
	} else if err != nil {
		return fmt.Errorf("sqlite: failed to check memory: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (
			id, content, type, user_id, project_id, metadata,
			embedding, embedding_model, embedding_dimension,
			sync_status, sync_error, sync_attempts, last_synced_at,
			content_hash, created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			type = excluded.type,
			project_id = excluded.project_id,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			embedding_model = excluded.embedding_model,
			embedding_dimension = excluded.embedding_dimension,
			sync_status = excluded.sync_status,
			sync_error = excluded.sync_error,
			sync_attempts = excluded.sync_attempts,
			last_synced_at = excluded.last_synced_at,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`,
		memory.ID, memory.Content, string(memory.Type), memory.UserID,
		nullString(memory.ProjectID), metaJSON,
		serializeVector(memory.Embedding), nullString(memory.EmbeddingModel),
		memory.EmbeddingDimension,
		string(memory.SyncStatus), memory.SyncError, memory.SyncAttempts,
		nullTime(memory.LastSyncedAt),
		memory.ContentHash, memory.CreatedAt, memory.UpdatedAt,
		nullTime(memory.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store memory: %w", err)
	}

	// Keep denormalized project counters in step.
	prev := ""
	if prevProject.Valid {
		prev = prevProject.String
	}
	if !exists || prev != memory.ProjectID {
		if exists && prev != "" {
			if err := adjustProjectCount(ctx, tx, prev, -1); err != nil {
				return err
			}
		}
		if memory.ProjectID != "" {
			if err := adjustProjectCount(ctx, tx, memory.ProjectID, +1); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// Get retrieves a memory by ID, tombstoned or not.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, type, user_id, project_id, metadata,
		       embedding, embedding_model, embedding_dimension,
		       sync_status, sync_error, sync_attempts, last_synced_at,
		       content_hash, created_at, updated_at, deleted_at
		FROM memories WHERE id = ?
	`, id)

	memory, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory: %w", err)
	}
	return memory, nil
}

// List retrieves memories with pagination and filtering.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	where := []string{"1=1"}
	args := []interface{}{}

	if !opts.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if opts.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, opts.ProjectID)
	}
	if opts.SyncStatus != "" {
		where = append(where, "sync_status = ?")
		args = append(args, opts.SyncStatus)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM memories WHERE " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: failed to count memories: %w", err)
	}

	// SortBy/SortOrder are whitelist-validated in Normalize.
	query := fmt.Sprintf(`
		SELECT id, content, type, user_id, project_id, metadata,
		       embedding, embedding_model, embedding_dimension,
		       sync_status, sync_error, sync_attempts, last_synced_at,
		       content_hash, created_at, updated_at, deleted_at
		FROM memories WHERE %s
		ORDER BY %s %s
		LIMIT ? OFFSET ?
	`, whereClause, opts.SortBy, opts.SortOrder)

	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memories: %w", err)
	}
	defer rows.Close()

	items := []types.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: row iteration failed: %w", err)
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

// Delete tombstones a memory and prunes every relationship edge referencing
// it, in a single transaction. The vector-backend delete is the sync
// coordinator's responsibility and happens after this commit.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var projectID sql.NullString
	var deletedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `SELECT project_id, deleted_at FROM memories WHERE id = ?`, id).
		Scan(&projectID, &deletedAt)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to load memory for delete: %w", err)
	}
	if deletedAt.Valid {
		// Already tombstoned; nothing more to do.
		return nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, id); err != nil {
		return fmt.Errorf("sqlite: failed to tombstone memory: %w", err)
	}

	// Prune dangling edges from both endpoints.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM relationships WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("sqlite: failed to prune relationships: %w", err)
	}

	if projectID.Valid && projectID.String != "" {
		if err := adjustProjectCount(ctx, tx, projectID.String, -1); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpdateSync applies a sync status transition for a memory.
func (s *Store) UpdateSync(ctx context.Context, id string, update storage.SyncUpdate) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	set := []string{"sync_status = ?", "sync_error = ?", "sync_attempts = ?", "updated_at = ?"}
	args := []interface{}{string(update.Status), update.Error, update.Attempts, time.Now().UTC()}

	if update.Embedding != nil {
		set = append(set, "embedding = ?", "embedding_model = ?", "embedding_dimension = ?")
		args = append(args, serializeVector(update.Embedding), update.Model, update.Dimension)
	}
	if update.ContentHash != "" {
		set = append(set, "content_hash = ?")
		args = append(args, update.ContentHash)
	}
	if update.SyncedAt != nil {
		set = append(set, "last_synced_at = ?")
		args = append(args, *update.SyncedAt)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE memories SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update sync status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CountActive returns the number of non-tombstoned memories.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count active memories: %w", err)
	}
	return count, nil
}

// CountSynced returns the number of non-tombstoned synced memories.
func (s *Store) CountSynced(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL AND sync_status = ?`,
		string(types.SyncSynced)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count synced memories: %w", err)
	}
	return count, nil
}

// ContextSize returns the aggregate content size in bytes across all
// non-tombstoned memories.
func (s *Store) ContextSize(ctx context.Context) (int64, error) {
	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(LENGTH(CAST(content AS BLOB))) FROM memories WHERE deleted_at IS NULL`).Scan(&size)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to sum context size: %w", err)
	}
	return size.Int64, nil
}

// ListBySyncStatus returns up to limit memory IDs in the given sync state,
// oldest first.
func (s *Store) ListBySyncStatus(ctx context.Context, status types.SyncStatus, limit int) ([]string, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM memories
		WHERE deleted_at IS NULL AND sync_status = ?
		ORDER BY updated_at ASC
		LIMIT ?
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list by sync status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LastSyncedAt returns the most recent successful sync timestamp.
func (s *Store) LastSyncedAt(ctx context.Context) (*time.Time, error) {
	// Select the column directly rather than MAX(): aggregates strip the
	// column's declared type, so the driver would return a raw string
	// instead of a time.Time.
	var t sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT last_synced_at FROM memories WHERE deleted_at IS NULL
		 ORDER BY last_synced_at DESC LIMIT 1`).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query last sync: %w", err)
	}
	if !t.Valid {
		return nil, nil
	}
	ts := t.Time
	return &ts, nil
}

// --- helpers ---

// rowScanner abstracts *sql.Row and *sql.Rows for scanMemory.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var memType, syncStatus string
	var projectID, embeddingModel, metaJSON sql.NullString
	var embedding []byte
	var lastSyncedAt, deletedAt sql.NullTime

	err := row.Scan(
		&m.ID, &m.Content, &memType, &m.UserID, &projectID, &metaJSON,
		&embedding, &embeddingModel, &m.EmbeddingDimension,
		&syncStatus, &m.SyncError, &m.SyncAttempts, &lastSyncedAt,
		&m.ContentHash, &m.CreatedAt, &m.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Type = types.MemoryType(memType)
	m.SyncStatus = types.SyncStatus(syncStatus)
	m.ProjectID = projectID.String
	m.EmbeddingModel = embeddingModel.String
	m.Embedding = deserializeVector(embedding)
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		m.LastSyncedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata JSON: %w", err)
		}
	}
	return &m, nil
}

func adjustProjectCount(ctx context.Context, tx *sql.Tx, projectID string, delta int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE projects SET memory_count = MAX(0, memory_count + ?), updated_at = ? WHERE id = ?`,
		delta, time.Now().UTC(), projectID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to adjust project count: %w", err)
	}
	return nil
}

func marshalMetadata(meta map[string]interface{}) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// serializeVector converts a float32 slice to little-endian bytes.
func serializeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector converts little-endian bytes back to a float32 slice.
func deserializeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time assertion that Store satisfies the full storage capability.
var _ storage.Store = (*Store)(nil)
