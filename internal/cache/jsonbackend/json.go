package jsonbackend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/sift/internal/cache"
)

// ensure jsonBackend implements cache.Backend
var _ cache.Backend = (*jsonBackend)(nil)

// jsonBackend is an NDJSON append log. The last line written for a query
// is its current entry.
type jsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a new NDJSON-backed cache.Backend.
func New(filePath string) (cache.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}

	return &jsonBackend{
		file: f,
	}, nil
}

func (b *jsonBackend) Get(ctx context.Context, query string) (*cache.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	latest, err := b.readAll()
	if err != nil {
		return nil, err
	}
	return latest[query], nil
}

func (b *jsonBackend) Put(ctx context.Context, entry *cache.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	_, err = b.file.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	return nil
}

func (b *jsonBackend) List(ctx context.Context, filter cache.Filter) ([]*cache.Entry, error) {
	b.mu.Lock()
	latest, err := b.readAll()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// For NDJSON, we read everything, filter in memory, and then sort/slice.
	var filtered []*cache.Entry
	for _, e := range latest {
		if cache.Match(e, filter) {
			filtered = append(filtered, e)
		}
	}

	return cache.Page(cache.SortNewestFirst(filtered), filter), nil
}

func (b *jsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

// readAll returns the current entry per query. Callers hold b.mu.
func (b *jsonBackend) readAll() (map[string]*cache.Entry, error) {
	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek cache file: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)
	// Result lists for a broad query can make long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	latest := make(map[string]*cache.Entry)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e cache.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode cache line: %w", err)
		}
		latest[e.Query] = &e
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	return latest, nil
}
