package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsTxtAuditor fetches and caches robots.txt per host. Lookups fail open:
// a missing or unreadable robots.txt allows everything.
type RobotsTxtAuditor struct {
	fetcher *Fetcher
	logger  *slog.Logger
	group   singleflight.Group

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsTxtAuditor creates a new instance.
func NewRobotsTxtAuditor(fetcher *Fetcher, logger *slog.Logger) *RobotsTxtAuditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsTxtAuditor{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// IsAllowed determines if the given URL is allowed by the host's robots.txt for the provided User-Agent.
func (r *RobotsTxtAuditor) IsAllowed(ctx context.Context, targetURL string, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	host := u.Scheme + "://" + u.Host

	data, err := r.getOrFetch(ctx, host)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, userAgent), nil
}

func (r *RobotsTxtAuditor) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, exists := r.cache[host]
	r.mu.RUnlock()
	if exists {
		return data, nil
	}

	v, err, _ := r.group.Do(host, func() (any, error) {
		r.mu.RLock()
		data, exists := r.cache[host]
		r.mu.RUnlock()
		if exists {
			return data, nil
		}

		data, err := r.fetch(ctx, host)
		// Failures are cached as nil so a broken host is only tried once.
		r.mu.Lock()
		r.cache[host] = data
		r.mu.Unlock()
		return data, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.RobotsData), nil
}

func (r *RobotsTxtAuditor) fetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	result, err := r.fetcher.Fetch(ctx, host+"/robots.txt")
	if err != nil {
		return nil, fmt.Errorf("fetch error: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("fetch error: %s", result.Error)
	}
	if result.StatusCode >= 400 {
		return nil, nil
	}

	parsed, err := robotstxt.FromBytes(result.Body)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return parsed, nil
}
