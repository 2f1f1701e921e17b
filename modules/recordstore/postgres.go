package recordstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	record_key TEXT NOT NULL,
	body JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, record_key)
)`

// PostgresBackend stores records in a PostgreSQL table with JSONB bodies.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgresBackend connects to dsn and ensures the records table exists.
func OpenPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createRecordsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// Create inserts a row unless the key is taken.
func (b *PostgresBackend) Create(ctx context.Context, collection, key string, data []byte) error {
	tag, err := b.pool.Exec(ctx,
		`INSERT INTO records (collection, record_key, body) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, record_key) DO NOTHING`,
		collection, key, string(data))
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyExists
	}
	return nil
}

// Get returns the body of a row.
func (b *PostgresBackend) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var body string
	err := b.pool.QueryRow(ctx,
		`SELECT body::text FROM records WHERE collection = $1 AND record_key = $2`,
		collection, key).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return []byte(body), nil
}

// List returns the rows of collection in creation order.
func (b *PostgresBackend) List(ctx context.Context, collection string) ([]Entry, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT record_key, body::text FROM records WHERE collection = $1
		 ORDER BY created_at, record_key`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		entries = append(entries, Entry{Key: key, Data: []byte(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return entries, nil
}

// Update overwrites the body of an existing row.
func (b *PostgresBackend) Update(ctx context.Context, collection, key string, data []byte) error {
	tag, err := b.pool.Exec(ctx,
		`UPDATE records SET body = $3, updated_at = now()
		 WHERE collection = $1 AND record_key = $2`,
		collection, key, string(data))
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a row. Missing rows are fine.
func (b *PostgresBackend) Delete(ctx context.Context, collection, key string) error {
	if _, err := b.pool.Exec(ctx,
		`DELETE FROM records WHERE collection = $1 AND record_key = $2`,
		collection, key); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Ping checks the pool.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Close closes the pool.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
