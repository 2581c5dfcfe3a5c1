package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/sift/pkg/useragent"
)

func TestFetcher_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "TestBrowser/1.0" {
			t.Errorf("expected pooled User-Agent, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("X-Test", "true")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	fetcher, err := NewFetcher(FetchConfig{
		Timeout: 5 * time.Second,
		UAPool:  useragent.NewPool([]string{"TestBrowser/1.0"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Error != "" {
		t.Fatalf("expected no fetch error, got %s", res.Error)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", res.StatusCode)
	}
	if string(res.Body) != "ok" {
		t.Errorf("expected body 'ok', got %s", string(res.Body))
	}
	if len(res.Headers["X-Test"]) == 0 || res.Headers["X-Test"][0] != "true" {
		t.Errorf("expected X-Test header 'true', got %v", res.Headers["X-Test"])
	}
	if res.Duration == 0 {
		t.Errorf("expected non-zero duration")
	}
	if res.Blocked {
		t.Errorf("expected ordinary page not to be flagged")
	}
}

func TestFetcher_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{Timeout: 10 * time.Millisecond})

	res, err := fetcher.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Error == "" || !strings.Contains(res.Error, "request failed") {
		t.Errorf("expected timeout error, got %v", res.Error)
	}
}

func TestFetcher_DetectsChallenge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<html><body>cf-browser-verification</body></html>`))
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{Timeout: 5 * time.Second})
	res, _ := fetcher.Fetch(context.Background(), ts.URL)

	if !res.Blocked || res.BlockedBy != "Cloudflare" {
		t.Errorf("expected Cloudflare block, got %v %q", res.Blocked, res.BlockedBy)
	}
}

func TestFetcher_BodyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer ts.Close()

	fetcher, _ := NewFetcher(FetchConfig{Timeout: 5 * time.Second, MaxBodyBytes: 10})
	res, _ := fetcher.Fetch(context.Background(), ts.URL)

	if len(res.Body) != 10 {
		t.Errorf("expected body truncated to 10 bytes, got %d", len(res.Body))
	}
}

func TestFetcher_InvalidURL(t *testing.T) {
	fetcher, _ := NewFetcher(FetchConfig{})
	res, err := fetcher.Fetch(context.Background(), "://bad")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Error, "failed to create request") {
		t.Errorf("expected request creation error, got %q", res.Error)
	}
}
