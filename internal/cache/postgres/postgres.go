package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/sift/internal/cache"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements cache.Backend
var _ cache.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS query_cache (
	query TEXT PRIMARY KEY,
	results JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS query_cache_created_at ON query_cache (created_at);
`

// New creates a new Postgres-backed cache.Backend.
func New(ctx context.Context, dsn string) (cache.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Get(ctx context.Context, query string) (*cache.Entry, error) {
	row := b.pool.QueryRow(ctx,
		`SELECT query, results, created_at FROM query_cache WHERE query = $1`, query)

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (b *postgresBackend) Put(ctx context.Context, entry *cache.Entry) error {
	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	_, err = b.pool.Exec(ctx, `
	INSERT INTO query_cache (query, results, created_at) VALUES ($1, $2, $3)
	ON CONFLICT (query) DO UPDATE SET results = EXCLUDED.results, created_at = EXCLUDED.created_at
	`, entry.Query, resultsJSON, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}

	return nil
}

func (b *postgresBackend) List(ctx context.Context, filter cache.Filter) ([]*cache.Entry, error) {
	query := `SELECT query, results, created_at FROM query_cache WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, paramCount)
		args = append(args, filter.Query)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY created_at DESC, query ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*cache.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	return entries, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func scanEntry(row pgx.Row) (*cache.Entry, error) {
	var e cache.Entry
	var resultsJSON []byte
	if err := row.Scan(&e.Query, &resultsJSON, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &e.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &e, nil
}
