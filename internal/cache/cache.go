// Package cache stores finished query results so a repeated query can skip
// the pipeline.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/points"
)

// Cache is the capability the pipeline needs.
type Cache interface {
	// Lookup returns the stored results for query. ok is false on a miss.
	Lookup(ctx context.Context, query string) (results []points.ResultPoint, ok bool, err error)
	Store(ctx context.Context, query string, results []points.ResultPoint) error
}

// Entry is one cached query.
type Entry struct {
	Query     string               `json:"query"`
	Results   []points.ResultPoint `json:"results"`
	CreatedAt time.Time            `json:"created_at"`
}

// Filter allows listing specific entries.
type Filter struct {
	Query  string
	Since  *time.Time
	Limit  int
	Offset int
}

// Backend defines the interface for persisting cache entries. Storing an
// entry for a query that already exists replaces it.
type Backend interface {
	// Get returns the entry for query, or nil if there is none.
	Get(ctx context.Context, query string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	// List returns entries newest first.
	List(ctx context.Context, filter Filter) ([]*Entry, error)
	Close() error
}

// QueryCache adapts a Backend to Cache and applies an optional max age.
type QueryCache struct {
	backend Backend
	maxAge  time.Duration
	now     func() time.Time
}

var _ Cache = (*QueryCache)(nil)

// New wraps backend. Entries older than maxAge are misses; maxAge <= 0 keeps
// entries forever.
func New(backend Backend, maxAge time.Duration) *QueryCache {
	return &QueryCache{backend: backend, maxAge: maxAge, now: time.Now}
}

// Lookup implements Cache. An empty stored list is a miss.
func (c *QueryCache) Lookup(ctx context.Context, query string) ([]points.ResultPoint, bool, error) {
	entry, err := c.backend.Get(ctx, query)
	if err != nil {
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if entry == nil || len(entry.Results) == 0 || c.expired(entry) {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry.Results, true, nil
}

// Store implements Cache. Empty result lists are not stored.
func (c *QueryCache) Store(ctx context.Context, query string, results []points.ResultPoint) error {
	if len(results) == 0 {
		return nil
	}
	err := c.backend.Put(ctx, &Entry{
		Query:     query,
		Results:   results,
		CreatedAt: c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// List returns stored entries, including expired ones.
func (c *QueryCache) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	return c.backend.List(ctx, filter)
}

// Close closes the backend.
func (c *QueryCache) Close() error {
	return c.backend.Close()
}

func (c *QueryCache) expired(e *Entry) bool {
	return c.maxAge > 0 && c.now().Sub(e.CreatedAt) > c.maxAge
}
