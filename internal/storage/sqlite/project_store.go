package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// StoreProject creates or updates a project.
func (s *Store) StoreProject(ctx context.Context, project *types.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("%w: project ID is required", storage.ErrInvalidInput)
	}
	if project.Name == "" {
		return fmt.Errorf("%w: project name is required", storage.ErrInvalidInput)
	}
	if project.UserID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, user_id, memory_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			updated_at = excluded.updated_at
	`, project.ID, project.Name, project.Description, project.UserID,
		project.MemoryCount, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*types.Project, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: project ID is required", storage.ErrInvalidInput)
	}

	var p types.Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, user_id, memory_count, created_at, updated_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.UserID, &p.MemoryCount, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get project: %w", err)
	}
	return &p, nil
}

// DeleteProject removes a project and detaches its memories. The memories
// themselves survive; only the foreign-key relation is cleared. Edges
// targeting the project are pruned with it.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: project ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET project_id = NULL, updated_at = ? WHERE project_id = ?`, now, id); err != nil {
		return fmt.Errorf("sqlite: failed to detach memories: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM relationships WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("sqlite: failed to prune project edges: %w", err)
	}

	return tx.Commit()
}
