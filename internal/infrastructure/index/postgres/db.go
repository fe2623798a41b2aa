package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

var textSearchConfigPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkTextSearchConfig(cfg string) error {
	if !textSearchConfigPattern.MatchString(cfg) {
		return fmt.Errorf("invalid text search config %q", cfg)
	}
	return nil
}

// EnsureSchema creates the passages table that ingestion fills. Retrieval only reads it.
// The tsv column is generated with textSearchConfig so stored and query lexemes agree.
func EnsureSchema(ctx context.Context, db *sql.DB, dimensions int, textSearchConfig string) error {
	if err := checkTextSearchConfig(textSearchConfig); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS passages (
	index_label TEXT NOT NULL,
	node_id TEXT NOT NULL,
	text TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d),
	tsv tsvector GENERATED ALWAYS AS (to_tsvector('%s', text)) STORED,
	PRIMARY KEY (index_label, node_id)
);

CREATE INDEX IF NOT EXISTS idx_passages_tsv ON passages USING GIN (tsv);
CREATE INDEX IF NOT EXISTS idx_passages_embedding ON passages USING hnsw (embedding vector_cosine_ops);
`, dimensions, textSearchConfig)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
