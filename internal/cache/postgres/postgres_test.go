package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/points"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if SIFT_TEST_PG_DSN is set
	dsn := os.Getenv("SIFT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: SIFT_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()
	// Unique per run so repeated runs against one database do not collide.
	query := fmt.Sprintf("pg test %d", now.UnixNano())

	entry := &cache.Entry{
		Query: query,
		Results: []points.ResultPoint{
			points.NewResultPoint(points.Paragraph{Text: "a stored fact", Source: "https://www.pg.example/x"}),
		},
		CreatedAt: now,
	}
	if err := b.Put(ctx, entry); err != nil {
		t.Fatalf("Failed to put entry: %v", err)
	}

	got, err := b.Get(ctx, query)
	if err != nil {
		t.Fatalf("Failed to get entry: %v", err)
	}
	if got == nil || len(got.Results) != 1 {
		t.Fatalf("Expected 1 result, got %+v", got)
	}
	if got.Results[0].SourceName != "pg.example" {
		t.Errorf("Expected SourceName pg.example, got %s", got.Results[0].SourceName)
	}

	// Postgres timestamps might differ slightly in sub-millisecond precision
	// compared to Go time.Now(), checking Unix seconds is usually safe enough
	if got.CreatedAt.Unix() != now.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", now, got.CreatedAt)
	}

	entry.Results = append(entry.Results, entry.Results[0])
	if err := b.Put(ctx, entry); err != nil {
		t.Fatalf("Failed to overwrite entry: %v", err)
	}

	past := now.Add(-1 * time.Hour)
	listed, err := b.List(ctx, cache.Filter{Query: query, Since: &past})
	if err != nil {
		t.Fatalf("Failed to list entries: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Results) != 2 {
		t.Fatalf("Expected 1 overwritten entry, got %+v", listed)
	}

	missing, err := b.Get(ctx, query+" missing")
	if err != nil || missing != nil {
		t.Fatalf("Expected clean miss, got %+v, %v", missing, err)
	}
}
