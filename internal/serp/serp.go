package serp

import (
	"context"
	"log/slog"
	"net/url"
)

// Result is a single hit returned by a search backend.
type Result struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// SERPProvider abstracts a search engine that returns result URLs for a
// query, most relevant first. The limit parameter caps the number of results.
type SERPProvider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Discover asks the provider for candidate URLs. Results without an http or
// https scheme are dropped and the remainder is truncated to limit, keeping
// provider order. A failing backend is logged and yields no URLs.
func Discover(ctx context.Context, provider SERPProvider, query string, limit int, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil || limit <= 0 {
		return nil
	}

	results, err := provider.Search(ctx, query, limit)
	if err != nil {
		logger.Error("search failed", "query", query, "err", err)
		return nil
	}

	urls := make([]string, 0, min(len(results), limit))
	for _, r := range results {
		if len(urls) == limit {
			break
		}
		if !isHTTP(r.URL) {
			logger.Debug("dropping non-http search result", "url", r.URL)
			continue
		}
		urls = append(urls, r.URL)
	}
	return urls
}

func isHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
