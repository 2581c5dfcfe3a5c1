// Package httpclient builds the *http.Client shared by the search fetcher and
// the embedding backend.
package httpclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultMaxRedirects is used when Config.MaxRedirects is zero.
const DefaultMaxRedirects = 10

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects caps followed redirects. Zero selects DefaultMaxRedirects,
	// a negative value disables redirect following.
	MaxRedirects int
	UseCookieJar bool
	// UserAgent is set on requests that do not carry one already.
	UserAgent string
	Transport http.RoundTripper
}

// New creates an HTTP client based on the provided configuration.
func New(cfg Config) (*http.Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects > 0 {
		max := cfg.MaxRedirects
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= max {
				return fmt.Errorf("stopped after %d redirects", max)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.Jar = jar
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	if cfg.UserAgent != "" {
		base = &userAgentTransport{base: base, userAgent: cfg.UserAgent}
	}
	c.Transport = base

	return c, nil
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
