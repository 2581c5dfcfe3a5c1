package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FranksOps/sift/internal/bypass"
	"github.com/FranksOps/sift/pkg/httpclient"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/useragent"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	MaxBodyBytes int64
	UAPool       *useragent.Pool
	Limiter      *ratelimit.Limiter
	// Transport overrides the default HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Response is the outcome of a single fetch.
type Response struct {
	URL        string
	StatusCode int
	Headers    map[string][]string
	Body       []byte
	Duration   time.Duration
	Blocked    bool
	BlockedBy  string // e.g. "Cloudflare", "Akamai", "PerimeterX", "DataDome"
	CreatedAt  time.Time
	Error      string // non-empty if the fetch failed before a full response was read
}

// Fetcher performs plain HTTP GETs for the search backend, robots.txt and the
// static renderer.
type Fetcher struct {
	config FetchConfig
	client *http.Client
}

// NewFetcher initializes a new Fetcher with the given configuration.
// A single client is held across requests so connections and cookies are reused.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Fetcher{
		config: cfg,
		client: client,
	}, nil
}

// Fetch executes a GET request to the target URL. Transport failures are
// recorded on Response.Error rather than returned; the error return is only
// used when ctx is done before the request starts.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Response, error) {
	if err := f.config.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	result := &Response{
		URL:       targetURL,
		CreatedAt: start.UTC(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("failed to create request: %v", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		result.Error = fmt.Sprintf("failed to read body: %v", err)
	}

	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body
	result.Duration = time.Since(start)

	result.Blocked, result.BlockedBy = bypass.Analyze(&bypass.Response{
		StatusCode: result.StatusCode,
		Headers:    result.Headers,
		Body:       result.Body,
	}, bypass.DefaultDetectors())

	return result, nil
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *http.Client {
	return f.client
}
