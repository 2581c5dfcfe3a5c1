// Package render owns the rendering sessions used to turn a URL into HTML.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Page is the rendered document for one URL.
type Page struct {
	URL        string
	StatusCode int // 0 when the backend could not observe it
	Headers    map[string][]string
	HTML       string
	Blocked    bool
	BlockedBy  string
}

// Session renders one page at a time. A Session is owned by a single task
// while Render runs.
type Session interface {
	Render(ctx context.Context, url string) (*Page, error)
	Close() error
}

// Factory builds the session at position index of a pool.
type Factory func(ctx context.Context, index int) (Session, error)

// Pool is a fixed set of sessions created for one extraction run.
type Pool struct {
	sessions  []Session
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewPool starts size sessions. If any session fails to start, the sessions
// already started are closed and the error is returned.
func NewPool(ctx context.Context, size int, newSession Factory, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if newSession == nil {
		return nil, errors.New("no session factory configured")
	}

	p := &Pool{logger: logger}
	for i := 0; i < size; i++ {
		s, err := newSession(ctx, i)
		if err != nil {
			if cerr := p.Close(); cerr != nil {
				logger.Warn("failed to close partially started pool", "err", cerr)
			}
			return nil, fmt.Errorf("start session %d: %w", i, err)
		}
		p.sessions = append(p.sessions, s)
	}
	return p, nil
}

// Size returns the number of sessions in the pool.
func (p *Pool) Size() int {
	return len(p.sessions)
}

// Session returns the session bound to task index i (i mod Size).
func (p *Pool) Session(i int) Session {
	n := len(p.sessions)
	return p.sessions[((i%n)+n)%n]
}

// Close releases every session exactly once. Later calls return the result
// of the first.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		for i, s := range p.sessions {
			if err := s.Close(); err != nil {
				p.logger.Warn("failed to close render session", "session", i, "err", err)
				errs = append(errs, fmt.Errorf("session %d: %w", i, err))
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
