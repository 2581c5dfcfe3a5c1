// Package extract renders candidate pages and pulls substantive paragraphs
// out of them.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/points"
	"github.com/FranksOps/sift/internal/render"
	"github.com/FranksOps/sift/internal/scraper"
	"golang.org/x/sync/errgroup"
)

var (
	ErrBlocked    = errors.New("page served by bot protection")
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// Assignment policies.
const (
	// AssignRoundRobin binds task i to session i mod size when the run starts.
	AssignRoundRobin = "round_robin"
	// AssignAvailable lets idle sessions take the next pending task.
	AssignAvailable = "available"
)

const (
	DefaultConcurrency = 8
	DefaultPageTimeout = 30 * time.Second
)

// Config provides parameters for the Extractor.
type Config struct {
	// Concurrency is the number of render sessions; capped at the URL count.
	Concurrency int
	MinLength   int
	Assignment  string
	PageTimeout time.Duration
	// RespectRobots checks robots.txt before rendering. It needs a
	// RobotsTxtAuditor.
	RespectRobots bool
	// UserAgent is matched against robots.txt groups.
	UserAgent string
}

// Extractor turns URLs into paragraphs using a fresh render pool per call.
type Extractor struct {
	cfg     Config
	factory render.Factory
	robots  *scraper.RobotsTxtAuditor
	logger  *slog.Logger
}

// New creates an Extractor. robots may be nil.
func New(cfg Config, factory render.Factory, robots *scraper.RobotsTxtAuditor, logger *slog.Logger) *Extractor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = points.MinParagraphLength
	}
	if cfg.Assignment == "" {
		cfg.Assignment = AssignRoundRobin
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, factory: factory, robots: robots, logger: logger}
}

// ExtractAll renders every URL and returns the extractions that produced at
// least one paragraph, in completion order. Failures for one URL are logged
// and never affect the others. If no render session can be started the
// result is empty.
func (e *Extractor) ExtractAll(ctx context.Context, urls []string) []points.Extraction {
	if len(urls) == 0 {
		return nil
	}

	size := min(e.cfg.Concurrency, len(urls))
	pool, err := render.NewPool(ctx, size, e.factory, e.logger)
	if err != nil {
		e.logger.Error("render pool unavailable", "err", err)
		return nil
	}
	defer func() {
		if err := pool.Close(); err != nil {
			e.logger.Warn("render pool close failed", "err", err)
		}
	}()

	results := make(chan points.Extraction, len(urls))
	var g errgroup.Group

	switch e.cfg.Assignment {
	case AssignAvailable:
		tasks := make(chan int, len(urls))
		for i := range urls {
			tasks <- i
		}
		close(tasks)
		for w := 0; w < size; w++ {
			session := pool.Session(w)
			g.Go(func() error {
				for i := range tasks {
					if ctx.Err() != nil {
						return nil
					}
					results <- e.extract(ctx, session, i, urls[i])
				}
				return nil
			})
		}
	default:
		for w := 0; w < size; w++ {
			session := pool.Session(w)
			g.Go(func() error {
				for i := w; i < len(urls); i += size {
					if ctx.Err() != nil {
						return nil
					}
					results <- e.extract(ctx, session, i, urls[i])
				}
				return nil
			})
		}
	}

	_ = g.Wait()
	close(results)

	var out []points.Extraction
	for ex := range results {
		if len(ex.Paragraphs) > 0 {
			out = append(out, ex)
		}
	}
	return out
}

func (e *Extractor) extract(ctx context.Context, session render.Session, index int, rawURL string) points.Extraction {
	ex := points.Extraction{Index: index, URL: rawURL}
	domain := ""
	if u, err := url.Parse(rawURL); err == nil {
		domain = u.Hostname()
	}

	start := time.Now()
	paragraphs, err := e.extractOne(ctx, session, rawURL)
	elapsed := time.Since(start)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrDisallowed):
		outcome = "disallowed"
		e.logger.Debug("url blocked by robots.txt", "url", rawURL)
	case errors.Is(err, ErrBlocked):
		outcome = "blocked"
		e.logger.Warn("skipping bot-protection page", "url", rawURL, "err", err)
	case errors.Is(err, ErrNoBody):
		outcome = "no_body"
		e.logger.Warn("document has no body", "url", rawURL)
	case err != nil:
		outcome = "error"
		e.logger.Warn("extraction failed", "url", rawURL, "err", err)
	case len(paragraphs) == 0:
		outcome = "empty"
	}
	metrics.RecordExtraction(domain, outcome, elapsed)
	metrics.ParagraphsTotal.WithLabelValues("extracted").Add(float64(len(paragraphs)))

	e.logger.Debug("extracted", "url", rawURL, "paragraphs", len(paragraphs), "duration", elapsed)
	ex.Paragraphs = paragraphs
	return ex
}

func (e *Extractor) extractOne(ctx context.Context, session render.Session, rawURL string) (paragraphs []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			paragraphs, err = nil, fmt.Errorf("render panic: %v", r)
		}
	}()

	if e.cfg.RespectRobots && e.robots != nil {
		allowed, err := e.robots.IsAllowed(ctx, rawURL, e.cfg.UserAgent)
		if err != nil {
			return nil, fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return nil, ErrDisallowed
		}
	}

	tctx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
	defer cancel()

	page, err := session.Render(tctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if page.Blocked {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, page.BlockedBy)
	}
	return ParseParagraphs(page.HTML, e.cfg.MinLength)
}
