package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const artifactsDDL = `
	CREATE TABLE IF NOT EXISTS churn_artifacts (
		name       TEXT PRIMARY KEY,
		body       BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// PostgresStore keeps artifacts in the churn_artifacts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, checks the connection and creates the artifacts
// table when needed.
func OpenPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the artifacts table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, artifactsDDL); err != nil {
		return fmt.Errorf("create churn_artifacts: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM churn_artifacts WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return body, nil
}

func (s *PostgresStore) Save(ctx context.Context, name string, body []byte) error {
	if err := validName(name); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO churn_artifacts (name, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`, name, body)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}
