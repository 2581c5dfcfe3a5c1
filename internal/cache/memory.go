package cache

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Backend. It is used by tests and when persistence
// is not wanted for a single process.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Entry)}
}

func (m *Memory) Get(ctx context.Context, query string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[query]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) Put(ctx context.Context, entry *Entry) error {
	cp := *entry
	m.mu.Lock()
	m.entries[entry.Query] = &cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	m.mu.RLock()
	var out []*Entry
	for _, e := range m.entries {
		if Match(e, filter) {
			cp := *e
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	return Page(SortNewestFirst(out), filter), nil
}

func (m *Memory) Close() error {
	return nil
}

// Match reports whether e passes the Query and Since parts of filter.
func Match(e *Entry, filter Filter) bool {
	if filter.Query != "" && e.Query != filter.Query {
		return false
	}
	if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
		return false
	}
	return true
}

// SortNewestFirst orders entries by CreatedAt descending, then by query.
func SortNewestFirst(entries []*Entry) []*Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Query < entries[j].Query
	})
	return entries
}

// Page applies filter.Offset and filter.Limit.
func Page(entries []*Entry, filter Filter) []*Entry {
	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return []*Entry{}
		}
		entries = entries[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(entries) {
		entries = entries[:filter.Limit]
	}
	return entries
}
