package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore mirrors snapshots into PostgreSQL so sessions can roam
// between machines.
type PostgresStore struct {
	pool *sql.DB
}

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool.SetMaxOpenConns(5)
	pool.SetMaxIdleConns(2)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.ExecContext(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const migrationSQL = `
CREATE TABLE IF NOT EXISTS chat_documents (
    key        TEXT PRIMARY KEY,
    payload    JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Close closes the connection pool.
func (s *PostgresStore) Close() error { return s.pool.Close() }

func (s *PostgresStore) Save(ctx context.Context, snap *Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.ExecContext(ctx, `
		INSERT INTO chat_documents (key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET payload = $2, updated_at = NOW()`,
		Key, payload)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (*Snapshot, error) {
	var payload []byte
	err := s.pool.QueryRowContext(ctx,
		`SELECT payload FROM chat_documents WHERE key = $1`, Key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return &Snapshot{Documents: []DocumentRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Documents == nil {
		snap.Documents = []DocumentRecord{}
	}
	return &snap, nil
}
