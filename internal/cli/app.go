package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/cache/jsonbackend"
	"github.com/FranksOps/sift/internal/cache/postgres"
	"github.com/FranksOps/sift/internal/cache/redisbackend"
	"github.com/FranksOps/sift/internal/cache/sqlite"
	"github.com/FranksOps/sift/internal/config"
	"github.com/FranksOps/sift/internal/embed"
	"github.com/FranksOps/sift/internal/extract"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/pipeline"
	"github.com/FranksOps/sift/internal/render"
	"github.com/FranksOps/sift/internal/scraper"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/FranksOps/sift/pkg/ratelimit"
	"github.com/FranksOps/sift/pkg/useragent"
)

// App holds the long-lived components built from configuration.
type App struct {
	Pipeline *pipeline.Pipeline
	Cache    *cache.QueryCache // nil when caching is off
	Health   *embed.Health

	logger  *slog.Logger
	metrics *metrics.Server
}

// Build wires every component. With embed.require set, an unreachable
// embedding backend is an error; otherwise the app starts degraded.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, useCache bool) (*App, error) {
	uas := useragent.NewPool(cfg.Render.UserAgents)

	searchFetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:      cfg.Search.Timeout,
		UseCookieJar: true,
		UAPool:       uas,
		Limiter:      ratelimit.NewLimiter(cfg.Search.RequestsPerSecond, cfg.Search.Jitter),
	})
	if err != nil {
		return nil, fmt.Errorf("search fetcher: %w", err)
	}
	ddg := serp.NewDuckDuckGo(searchFetcher)
	ddg.Endpoint = cfg.Search.Endpoint

	pageFetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout: cfg.Render.PageTimeout,
		UAPool:  uas,
	})
	if err != nil {
		return nil, fmt.Errorf("page fetcher: %w", err)
	}

	var factory render.Factory
	switch cfg.Render.Backend {
	case "http":
		factory = render.HTTPFactory(pageFetcher)
	default:
		factory = render.ChromeFactory(render.ChromeConfig{
			Headless:     cfg.Render.Headless,
			NoSandbox:    cfg.Render.NoSandbox,
			ExecPath:     cfg.Render.ExecPath,
			ReadyTimeout: cfg.Render.ReadyTimeout,
			Settle:       cfg.Render.Settle,
			Logger:       logger,
		}, uas.At)
	}

	var robots *scraper.RobotsTxtAuditor
	if cfg.Extract.RespectRobots {
		robots = scraper.NewRobotsTxtAuditor(pageFetcher, logger)
	}
	extractor := extract.New(extract.Config{
		Concurrency:   cfg.Extract.Concurrency,
		MinLength:     cfg.Extract.MinLength,
		Assignment:    cfg.Extract.Assignment,
		PageTimeout:   cfg.Render.PageTimeout,
		RespectRobots: cfg.Extract.RespectRobots,
		UserAgent:     uas.At(0),
	}, factory, robots, logger)

	embedder, err := embed.NewOllama(embed.OllamaConfig{
		Host:      cfg.Embed.Host,
		Model:     cfg.Embed.Model,
		BatchSize: cfg.Embed.BatchSize,
		Timeout:   cfg.Embed.Timeout,
	})
	if err != nil {
		return nil, err
	}
	health := embed.NewHealth(logger)
	if err := embedder.Ping(ctx); err != nil {
		if cfg.Embed.Require {
			return nil, fmt.Errorf("embedding backend: %w", err)
		}
		health.Degraded(err)
	} else {
		health.Up()
	}

	app := &App{Health: health, logger: logger}

	if useCache {
		qc, err := OpenCache(ctx, cfg.Cache)
		if err != nil {
			return nil, err
		}
		app.Cache = qc
	}

	app.Pipeline = &pipeline.Pipeline{
		Searcher:       ddg,
		Extractor:      extractor,
		Embedder:       embedder,
		Health:         health,
		MaxResults:     cfg.Search.MaxResults,
		Threshold:      cfg.Dedup.Threshold,
		BatchSize:      cfg.Embed.BatchSize,
		OnEmbedFailure: cfg.Dedup.OnEmbedFailure,
		Logger:         logger,
	}
	if app.Cache != nil {
		app.Pipeline.Cache = app.Cache
	}

	if cfg.Metrics.Enabled {
		app.metrics = metrics.Start(cfg.Metrics.Port, logger)
	}
	return app, nil
}

// OpenCache opens the configured cache backend, or returns nil for "none".
func OpenCache(ctx context.Context, cfg config.CacheConfig) (*cache.QueryCache, error) {
	var (
		b   cache.Backend
		err error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		b = cache.NewMemory()
	case "sqlite":
		b, err = sqlite.New(cfg.DSN)
	case "postgres":
		b, err = postgres.New(ctx, cfg.DSN)
	case "json":
		b, err = jsonbackend.New(cfg.DSN)
	case "redis":
		b, err = redisbackend.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}
	return cache.New(b, cfg.TTL), nil
}

// Close releases the cache and stops the metrics server.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.metrics != nil {
		errs = append(errs, a.metrics.Stop(ctx))
	}
	return errors.Join(errs...)
}
