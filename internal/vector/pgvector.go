package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/scrypster/xmem/pkg/types"
)

const pgvectorBackend = "pgvector"

// PgvectorAdapter stores vectors in a Postgres table with the pgvector
// extension. The table is created on first use; the source collection is
// the table name.
type PgvectorAdapter struct {
	db    *sql.DB
	table string
}

// NewPgvectorAdapter connects to Postgres and prepares the vector table.
func NewPgvectorAdapter(source *types.MemorySource, dimension int) (*PgvectorAdapter, error) {
	db, err := sql.Open("postgres", source.URL)
	if err != nil {
		return nil, permanentErr(pgvectorBackend, "connect", err)
	}

	table := pq.QuoteIdentifier(source.Collection)
	schema := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d),
			metadata JSONB
		);
	`, table, dimension)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, transientErr(pgvectorBackend, "connect", err)
	}

	return &PgvectorAdapter{db: db, table: table}, nil
}

// Upsert writes or replaces the vector row.
func (a *PgvectorAdapter) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]interface{}) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return permanentErr(pgvectorBackend, "upsert", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, metadata) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata
	`, a.table)
	if _, err := a.db.ExecContext(ctx, query, id, pgvector.NewVector(vec), metaJSON); err != nil {
		return a.classify("upsert", err)
	}
	return nil
}

// Delete removes the vector row. Missing rows are fine.
func (a *PgvectorAdapter) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, a.table)
	if _, err := a.db.ExecContext(ctx, query, id); err != nil {
		return a.classify("delete", err)
	}
	return nil
}

// Query returns the k nearest rows by cosine distance.
func (a *PgvectorAdapter) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	query := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score
		FROM %s ORDER BY embedding <=> $1 LIMIT $2
	`, a.table)

	rows, err := a.db.QueryContext(ctx, query, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, a.classify("query", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			return nil, permanentErr(pgvectorBackend, "query", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// HealthCheck pings the database and counts rows.
func (a *PgvectorAdapter) HealthCheck(ctx context.Context) Health {
	if err := a.db.PingContext(ctx); err != nil {
		return Health{Status: types.BackendDisconnected, Error: err.Error()}
	}

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, a.table)
	if err := a.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return Health{Status: types.BackendDegraded, Error: err.Error()}
	}

	return Health{
		Status: types.BackendConnected,
		Counts: types.BackendCounts{Points: int64Ptr(count)},
	}
}

// Close releases the connection pool.
func (a *PgvectorAdapter) Close() error {
	return a.db.Close()
}

// classify maps Postgres errors: syntax and constraint violations (class
// 42/23) are permanent, everything else is worth retrying.
func (a *PgvectorAdapter) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		if class == "42" || class == "23" || class == "22" {
			return permanentErr(pgvectorBackend, op, err)
		}
	}
	return transientErr(pgvectorBackend, op, err)
}

var _ Adapter = (*PgvectorAdapter)(nil)
