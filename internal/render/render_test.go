package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FranksOps/sift/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id     int
	closed atomic.Int32
	err    error
}

func (f *fakeSession) Render(ctx context.Context, url string) (*Page, error) {
	return &Page{URL: url}, nil
}

func (f *fakeSession) Close() error {
	f.closed.Add(1)
	return f.err
}

func TestPool_RoundRobinAndCloseOnce(t *testing.T) {
	var made []*fakeSession
	factory := func(ctx context.Context, index int) (Session, error) {
		s := &fakeSession{id: index}
		made = append(made, s)
		return s, nil
	}

	p, err := NewPool(context.Background(), 3, factory, nil)
	require.NoError(t, err)
	require.Equal(t, 3, p.Size())

	for i := 0; i < 7; i++ {
		assert.Equal(t, i%3, p.Session(i).(*fakeSession).id, "task %d", i)
	}

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	for _, s := range made {
		assert.Equal(t, int32(1), s.closed.Load(), "session %d closed once", s.id)
	}
}

func TestPool_StartFailureClosesStarted(t *testing.T) {
	var made []*fakeSession
	factory := func(ctx context.Context, index int) (Session, error) {
		if index == 2 {
			return nil, errors.New("no browser")
		}
		s := &fakeSession{id: index}
		made = append(made, s)
		return s, nil
	}

	p, err := NewPool(context.Background(), 4, factory, nil)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "no browser")
	require.Len(t, made, 2)
	for _, s := range made {
		assert.Equal(t, int32(1), s.closed.Load())
	}
}

func TestPool_CloseJoinsErrors(t *testing.T) {
	factory := func(ctx context.Context, index int) (Session, error) {
		return &fakeSession{id: index, err: errors.New("stuck")}, nil
	}
	p, err := NewPool(context.Background(), 2, factory, nil)
	require.NoError(t, err)

	err = p.Close()
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "stuck"))
}

func TestPool_InvalidArguments(t *testing.T) {
	_, err := NewPool(context.Background(), 0, HTTPFactory(nil), nil)
	assert.Error(t, err)

	_, err = NewPool(context.Background(), 1, nil, nil)
	assert.Error(t, err)

	_, err = NewPool(context.Background(), 1, HTTPFactory(nil), nil)
	assert.Error(t, err)
}

func TestHTTPSession_Render(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/challenge", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Attention Required! | Cloudflare"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)
	s := NewHTTPSession(fetcher)
	ctx := context.Background()

	page, err := s.Render(ctx, ts.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.HTML, "<p>hello</p>")
	assert.False(t, page.Blocked)

	_, err = s.Render(ctx, ts.URL+"/missing")
	assert.Error(t, err)

	page, err = s.Render(ctx, ts.URL+"/challenge")
	require.NoError(t, err)
	assert.True(t, page.Blocked)
	assert.Equal(t, "Cloudflare", page.BlockedBy)

	assert.NoError(t, s.Close())
}

// Requires a local Chrome; set SIFT_TEST_CHROME=1 to run.
func TestChromeSession_Render(t *testing.T) {
	if os.Getenv("SIFT_TEST_CHROME") == "" {
		t.Skip("Skipping Chrome session test: SIFT_TEST_CHROME not set")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="root"></div>
<script>document.getElementById("root").innerHTML = "<p>rendered by script</p>";</script>
</body></html>`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s, err := NewChromeSession(ctx, ChromeConfig{
		Headless:  true,
		NoSandbox: true,
		UserAgent: "sift-test/1.0",
		Settle:    100 * time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close()

	page, err := s.Render(ctx, ts.URL)
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "rendered by script")
	assert.Equal(t, http.StatusOK, page.StatusCode)
}
