package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/FranksOps/sift/internal/bypass"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromeConfig configures a headless Chrome session.
type ChromeConfig struct {
	UserAgent string
	Headless  bool
	NoSandbox bool
	// ExecPath overrides Chrome discovery on $PATH.
	ExecPath string
	// ReadyTimeout bounds the poll for document.readyState == "complete".
	ReadyTimeout time.Duration
	// Settle is a fixed wait after readiness for scripts that keep adding
	// content. It is a heuristic, not a completion signal.
	Settle       time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// ChromeSession renders pages in one headless Chrome tab.
type ChromeSession struct {
	cfg         ChromeConfig
	logger      *slog.Logger
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu sync.Mutex // one Render at a time

	docMu sync.Mutex
	doc   *network.Response
}

// NewChromeSession launches a browser bound to ctx and opens a tab.
func NewChromeSession(ctx context.Context, cfg ChromeConfig) (*ChromeSession, error) {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &ChromeSession{
		cfg:         cfg,
		logger:      logger,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	// Running with no actions starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	chromedp.ListenTarget(tabCtx, s.onEvent)
	return s, nil
}

// ChromeFactory returns a Factory creating Chrome sessions. userAgent picks
// the user-agent for session index.
func ChromeFactory(cfg ChromeConfig, userAgent func(index int) string) Factory {
	return func(ctx context.Context, index int) (Session, error) {
		c := cfg
		if userAgent != nil {
			c.UserAgent = userAgent(index)
		}
		return NewChromeSession(ctx, c)
	}
}

// onEvent keeps the first document response seen since the last navigation;
// later document responses belong to frames.
func (s *ChromeSession) onEvent(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	s.docMu.Lock()
	if s.doc == nil {
		s.doc = e.Response
	}
	s.docMu.Unlock()
}

// Render loads url, waits for the document to be ready plus the settle delay,
// and returns the rendered HTML.
func (s *ChromeSession) Render(ctx context.Context, url string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docMu.Lock()
	s.doc = nil
	s.docMu.Unlock()

	// chromedp needs the tab context as parent; the caller's ctx only
	// contributes cancellation.
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	var ready bool
	err := chromedp.Run(runCtx, chromedp.Poll(`document.readyState === "complete"`, &ready,
		chromedp.WithPollingTimeout(s.cfg.ReadyTimeout),
		chromedp.WithPollingInterval(s.cfg.PollInterval),
	))
	if err != nil {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("wait for ready: %w", err)
		}
		// Readiness is best effort; read whatever has rendered so far.
		s.logger.Debug("document not ready before timeout, reading anyway", "url", url, "err", err)
	}

	var html string
	if err := chromedp.Run(runCtx,
		chromedp.Sleep(s.cfg.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}

	page := &Page{URL: url, HTML: html}
	s.docMu.Lock()
	if s.doc != nil {
		page.StatusCode = int(s.doc.Status)
		page.Headers = bypass.HeaderMap(s.doc.Headers)
	}
	s.docMu.Unlock()

	page.Blocked, page.BlockedBy = bypass.Analyze(&bypass.Response{
		StatusCode: page.StatusCode,
		Headers:    page.Headers,
		Body:       []byte(page.HTML),
	}, bypass.DefaultDetectors())

	return page, nil
}

// Close shuts the browser down.
func (s *ChromeSession) Close() error {
	err := chromedp.Cancel(s.tabCtx)
	s.tabCancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	return nil
}
