package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// StoreSource creates or updates a memory source configuration.
func (s *Store) StoreSource(ctx context.Context, source *types.MemorySource) error {
	if source == nil || source.ID == "" {
		return fmt.Errorf("%w: source ID is required", storage.ErrInvalidInput)
	}
	if source.Name == "" {
		return fmt.Errorf("%w: source name is required", storage.ErrInvalidInput)
	}
	if !types.IsValidSourceType(source.Type) {
		return fmt.Errorf("%w: unknown source type %q", storage.ErrInvalidInput, source.Type)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, type, url, api_key, collection, enabled, sync_interval, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			url = excluded.url,
			api_key = excluded.api_key,
			collection = excluded.collection,
			enabled = excluded.enabled,
			sync_interval = excluded.sync_interval,
			updated_at = excluded.updated_at
	`, source.ID, source.Name, string(source.Type), source.URL, source.APIKey,
		source.Collection, boolToInt(source.Enabled), int64(source.SyncInterval/time.Second),
		source.CreatedAt, source.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store source: %w", err)
	}
	return nil
}

// GetSource retrieves a source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (*types.MemorySource, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: source ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, url, api_key, collection, enabled, sync_interval, created_at, updated_at
		FROM sources WHERE id = ?
	`, id)

	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get source: %w", err)
	}
	return source, nil
}

// ListSources returns all configured sources.
func (s *Store) ListSources(ctx context.Context) ([]types.MemorySource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, url, api_key, collection, enabled, sync_interval, created_at, updated_at
		FROM sources ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []types.MemorySource
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan source: %w", err)
		}
		sources = append(sources, *source)
	}
	return sources, rows.Err()
}

// DeleteSource removes a source configuration.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: source ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete source: %w", err)
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

func scanSource(row rowScanner) (*types.MemorySource, error) {
	var src types.MemorySource
	var srcType string
	var enabled int
	var intervalSecs int64

	err := row.Scan(&src.ID, &src.Name, &srcType, &src.URL, &src.APIKey,
		&src.Collection, &enabled, &intervalSecs, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, err
	}

	src.Type = types.SourceType(srcType)
	src.Enabled = enabled != 0
	src.SyncInterval = time.Duration(intervalSecs) * time.Second
	return &src, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
