package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FranksOps/sift/internal/cache"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements cache.Backend
var _ cache.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS query_cache (
	query TEXT PRIMARY KEY,
	results TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS query_cache_created_at ON query_cache (created_at);
`

// New creates a new SQLite-backed cache.Backend.
func New(dsn string) (cache.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Get(ctx context.Context, query string) (*cache.Entry, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT query, results, created_at FROM query_cache WHERE query = ?`, query)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (b *sqliteBackend) Put(ctx context.Context, entry *cache.Entry) error {
	resultsJSON, err := json.Marshal(entry.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
	INSERT INTO query_cache (query, results, created_at) VALUES (?, ?, ?)
	ON CONFLICT (query) DO UPDATE SET results = excluded.results, created_at = excluded.created_at
	`, entry.Query, string(resultsJSON), entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}

	return nil
}

func (b *sqliteBackend) List(ctx context.Context, filter cache.Filter) ([]*cache.Entry, error) {
	query := `SELECT query, results, created_at FROM query_cache WHERE 1=1`
	args := []any{}

	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY created_at DESC, query ASC`

	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := -1
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, max(filter.Offset, 0))
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*cache.Entry, error) {
	var e cache.Entry
	var resultsJSON string
	if err := s.Scan(&e.Query, &resultsJSON, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &e.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &e, nil
}
