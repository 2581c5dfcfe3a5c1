package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/FranksOps/sift/internal/scraper"
)

// HTTPSession renders pages with a plain GET. Scripts are not executed, so
// content added client-side is missed.
type HTTPSession struct {
	fetcher *scraper.Fetcher
}

// NewHTTPSession returns a session backed by fetcher.
func NewHTTPSession(fetcher *scraper.Fetcher) *HTTPSession {
	return &HTTPSession{fetcher: fetcher}
}

// HTTPFactory returns a Factory whose sessions share fetcher.
func HTTPFactory(fetcher *scraper.Fetcher) Factory {
	return func(ctx context.Context, index int) (Session, error) {
		if fetcher == nil {
			return nil, errors.New("no fetcher configured")
		}
		return NewHTTPSession(fetcher), nil
	}
}

// Render implements Session.
func (s *HTTPSession) Render(ctx context.Context, url string) (*Page, error) {
	res, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, errors.New(res.Error)
	}
	if res.StatusCode >= 400 && !res.Blocked {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return &Page{
		URL:        url,
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		HTML:       string(res.Body),
		Blocked:    res.Blocked,
		BlockedBy:  res.BlockedBy,
	}, nil
}

// Close implements Session. The fetcher is shared and stays open.
func (s *HTTPSession) Close() error {
	return nil
}
