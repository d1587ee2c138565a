package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// applyCapabilityMigrations runs the small set of DDL statements that
// depend on what the connected Postgres instance actually supports:
// the pgvector extension and, within it, the HNSW access method.
// Each statement is tracked by name in capability_migrations and
// applied at most once, per spec §4.9's migration discipline — this is
// deliberately separate from golang-migrate's own schema_migrations
// bookkeeping in client.go, since whether a migration applies at all
// depends on runtime capability detection rather than a fixed version
// sequence.
func applyCapabilityMigrations(ctx context.Context, pool *pgxpool.Pool, caps Capabilities) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS capability_migrations (
			name       text PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create capability_migrations table: %w", err)
	}

	if caps.PgvectorEnabled {
		if err := applyOnce(ctx, pool, "enable_pgvector_extension", `
			CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return err
		}
		if err := applyOnce(ctx, pool, "embeddings_add_native_vector_column", `
			ALTER TABLE embeddings ADD COLUMN IF NOT EXISTS vector_native vector(1536)`); err != nil {
			return err
		}

		indexName := "embeddings_add_ivfflat_index"
		indexDDL := `CREATE INDEX IF NOT EXISTS idx_embeddings_vector_ivfflat
			ON embeddings USING ivfflat (vector_native vector_cosine_ops) WITH (lists = 100)`
		if caps.HNSWEnabled {
			indexName = "embeddings_add_hnsw_index"
			indexDDL = `CREATE INDEX IF NOT EXISTS idx_embeddings_vector_hnsw
				ON embeddings USING hnsw (vector_native vector_cosine_ops) WITH (m = 16, ef_construction = 64)`
		}
		if err := applyOnce(ctx, pool, indexName, indexDDL); err != nil {
			return err
		}
	}

	return nil
}

func applyOnce(ctx context.Context, pool *pgxpool.Pool, name, ddl string) error {
	var alreadyApplied bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM capability_migrations WHERE name = $1)`, name,
	).Scan(&alreadyApplied); err != nil {
		return fmt.Errorf("check capability migration %s: %w", name, err)
	}
	if alreadyApplied {
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin capability migration %s: %w", name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("apply capability migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO capability_migrations (name) VALUES ($1)`, name,
	); err != nil {
		return fmt.Errorf("record capability migration %s: %w", name, err)
	}
	return tx.Commit(ctx)
}
