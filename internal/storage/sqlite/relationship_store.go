package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/xmem/internal/storage"
	"github.com/scrypster/xmem/pkg/types"
)

// CreateRelationship creates a new edge. The source must be an existing,
// non-tombstoned memory; a memory target is checked the same way. Project
// and context targets are accepted as-is.
func (s *Store) CreateRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil || rel.ID == "" {
		return fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}
	if rel.SourceID == "" || rel.TargetID == "" {
		return fmt.Errorf("%w: source and target IDs are required", storage.ErrInvalidInput)
	}
	if !types.IsValidRelationshipKind(rel.Kind) {
		return fmt.Errorf("%w: unknown relationship kind %q", storage.ErrInvalidInput, rel.Kind)
	}

	if err := s.checkEndpoint(ctx, rel.SourceID); err != nil {
		return err
	}
	if err := s.checkEndpoint(ctx, rel.TargetID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, source_id, target_id, kind, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rel.ID, rel.SourceID, rel.TargetID, string(rel.Kind), rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create relationship: %w", err)
	}
	return nil
}

// checkEndpoint rejects edges that reference a missing or tombstoned memory.
// IDs that are not memories (projects, context ids) pass through.
func (s *Store) checkEndpoint(ctx context.Context, id string) error {
	var deleted sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT deleted_at FROM memories WHERE id = ?`, id).Scan(&deleted)
	if err == sql.ErrNoRows {
		// Not a memory; may be a project or opaque context id.
		return nil
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to check endpoint: %w", err)
	}
	if deleted.Valid {
		return fmt.Errorf("%w: endpoint %s is tombstoned", storage.ErrInvalidInput, id)
	}
	return nil
}

// GetRelationships retrieves edges touching the given ID. Symmetric kinds
// (connection) match from either endpoint; directed kinds only from the
// source side.
func (s *Store) GetRelationships(ctx context.Context, id string) ([]types.Relationship, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, kind, created_at
		FROM relationships
		WHERE source_id = ? OR (target_id = ? AND kind = ?)
		ORDER BY created_at ASC
	`, id, id, string(types.RelationConnection))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query relationships: %w", err)
	}
	defer rows.Close()

	var rels []types.Relationship
	for rows.Next() {
		var r types.Relationship
		var kind string
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &kind, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan relationship: %w", err)
		}
		r.Kind = types.RelationshipKind(kind)
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// DeleteRelationship removes an edge by ID.
func (s *Store) DeleteRelationship(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete relationship: %w", err)
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
