package processor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createNoncesTable = `
	CREATE TABLE IF NOT EXISTS processed_nonces (
		nonce        TEXT PRIMARY KEY,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// PostgresNonceStore records processed nonces in the processed_nonces table
type PostgresNonceStore struct {
	pool *pgxpool.Pool
}

// NewPostgresNonceStore opens a pool on databaseURL and creates the table if needed
func NewPostgresNonceStore(ctx context.Context, databaseURL string) (*PostgresNonceStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createNoncesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create processed_nonces table: %w", err)
	}

	return &PostgresNonceStore{pool: pool}, nil
}

func (s *PostgresNonceStore) MarkIfAbsent(ctx context.Context, nonce string) (bool, error) {
	query := `
		INSERT INTO processed_nonces (nonce) VALUES ($1)
		ON CONFLICT (nonce) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query, nonce)
	if err != nil {
		return false, fmt.Errorf("failed to record nonce %s: %w", nonce, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresNonceStore) Close() error {
	s.pool.Close()
	return nil
}
