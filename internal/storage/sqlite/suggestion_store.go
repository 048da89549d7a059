package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// StoreSuggestion creates or updates a suggestion.
func (s *Store) StoreSuggestion(ctx context.Context, sug *types.Suggestion) error {
	if sug == nil || sug.ID == "" {
		return fmt.Errorf("%w: suggestion ID is required", storage.ErrInvalidInput)
	}
	if sug.Content == "" {
		return fmt.Errorf("%w: suggestion content is required", storage.ErrInvalidInput)
	}

	memoryIDs, err := json.Marshal(sug.MemoryIDs)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal memory IDs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO suggestions (id, type, content, relevance, memory_ids, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			content = excluded.content,
			relevance = excluded.relevance,
			memory_ids = excluded.memory_ids,
			status = excluded.status
	`, sug.ID, string(sug.Type), sug.Content, sug.Relevance,
		string(memoryIDs), string(sug.Status), sug.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store suggestion: %w", err)
	}
	return nil
}

// GetSuggestion retrieves a suggestion by ID.
func (s *Store) GetSuggestion(ctx context.Context, id string) (*types.Suggestion, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: suggestion ID is required", storage.ErrInvalidInput)
	}

	var sug types.Suggestion
	var sugType, status, memoryIDs string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, content, relevance, memory_ids, status, created_at
		FROM suggestions WHERE id = ?
	`, id).Scan(&sug.ID, &sugType, &sug.Content, &sug.Relevance,
		&memoryIDs, &status, &sug.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get suggestion: %w", err)
	}

	sug.Type = types.SuggestionType(sugType)
	sug.Status = types.SuggestionStatus(status)
	if err := json.Unmarshal([]byte(memoryIDs), &sug.MemoryIDs); err != nil {
		return nil, fmt.Errorf("sqlite: failed to unmarshal memory IDs: %w", err)
	}
	return &sug, nil
}

// CountPendingSuggestions returns the number of suggestions awaiting review.
func (s *Store) CountPendingSuggestions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suggestions WHERE status = ?`,
		string(types.SuggestionPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count pending suggestions: %w", err)
	}
	return count, nil
}

// UpdateSuggestionStatus moves a suggestion to accepted or rejected.
func (s *Store) UpdateSuggestionStatus(ctx context.Context, id string, status types.SuggestionStatus) error {
	if id == "" {
		return fmt.Errorf("%w: suggestion ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update suggestion status: %w", err)
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
