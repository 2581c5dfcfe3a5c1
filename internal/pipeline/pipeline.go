// Package pipeline runs a query through discovery, extraction, aggregation
// and deduplication.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/sift/internal/cache"
	"github.com/FranksOps/sift/internal/dedup"
	"github.com/FranksOps/sift/internal/embed"
	"github.com/FranksOps/sift/internal/metrics"
	"github.com/FranksOps/sift/internal/points"
	"github.com/FranksOps/sift/internal/report"
	"github.com/FranksOps/sift/internal/serp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// What to return when the embedding backend fails during dedup.
const (
	// OnEmbedFailureEmpty returns no results.
	OnEmbedFailureEmpty = "empty"
	// OnEmbedFailurePassthrough returns the aggregated paragraphs without
	// deduplication.
	OnEmbedFailurePassthrough = "passthrough"
)

const DefaultMaxResults = 12

// Extractor turns URLs into per-URL paragraph lists.
type Extractor interface {
	ExtractAll(ctx context.Context, urls []string) []points.Extraction
}

// Pipeline orchestrates one query end to end. The zero values of the
// optional fields pick defaults; Cache and Health may be nil.
type Pipeline struct {
	Searcher  serp.SERPProvider
	Extractor Extractor
	// Embedder is owned by the caller.
	Embedder embed.Embedder
	Cache    cache.Cache
	Health   *embed.Health

	MaxResults     int
	Threshold      float64
	BatchSize      int
	OnEmbedFailure string

	Logger *slog.Logger
}

var tracer = otel.Tracer("github.com/FranksOps/sift/internal/pipeline")

// Run returns the deduplicated points for query. It never fails: any stage
// that cannot produce output yields an empty list.
func (p *Pipeline) Run(ctx context.Context, query string) []points.ResultPoint {
	return p.RunReport(ctx, query).Points
}

// RunReport is Run with the run's statistics.
func (p *Pipeline) RunReport(ctx context.Context, query string) (sum *report.Summary) {
	runID := uuid.NewString()
	logger := p.logger().With("run_id", runID)

	ctx, span := tracer.Start(ctx, "sift.run", trace.WithAttributes(
		attribute.String("sift.run_id", runID),
		attribute.String("sift.query", query),
	))
	defer span.End()

	start := time.Now()
	sum = &report.Summary{
		RunID:     runID,
		Query:     query,
		StartTime: start.UTC(),
		Points:    []points.ResultPoint{},
	}

	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline stage panicked", "panic", r)
			span.SetStatus(codes.Error, fmt.Sprint(r))
			sum.Points = []points.ResultPoint{}
			outcome = "panic"
		}
		sum.EndTime = time.Now().UTC()
		sum.Duration = time.Since(start)
		sum.Kept = len(sum.Points)
		sum.CountSources()
		metrics.RunsTotal.WithLabelValues(outcome).Inc()
		logger.Info("run finished", "query", query, "outcome", outcome, "points", sum.Kept, "duration", sum.Duration)
	}()

	if cached, ok := p.lookup(ctx, logger, query); ok {
		sum.Cached = true
		sum.Points = cached
		outcome = "cached"
		return sum
	}

	urls := p.discover(ctx, logger, query)
	sum.URLs = len(urls)
	if len(urls) == 0 {
		outcome = "empty"
		return sum
	}

	extractions := p.extract(ctx, urls)
	sum.Pages = len(extractions)

	paragraphs := points.Flatten(extractions)
	sum.Paragraphs = len(paragraphs)
	metrics.ParagraphsTotal.WithLabelValues("aggregated").Add(float64(len(paragraphs)))
	if len(paragraphs) == 0 {
		logger.Info("no paragraphs extracted", "urls", len(urls))
		outcome = "empty"
		return sum
	}

	kept, err := p.dedupe(ctx, logger, paragraphs, sum)
	if err != nil {
		sum.Degraded = true
		sum.DegradedReason = err.Error()
		outcome = "degraded"
		if p.OnEmbedFailure == OnEmbedFailurePassthrough {
			logger.Error("deduplication unavailable, returning paragraphs unfiltered", "err", err)
			sum.Points = points.Results(paragraphs)
		} else {
			logger.Error("deduplication unavailable, returning no results", "err", err)
		}
		return sum
	}

	sum.Points = points.Results(kept)
	metrics.ParagraphsTotal.WithLabelValues("kept").Add(float64(len(sum.Points)))
	p.store(ctx, logger, query, sum.Points)
	return sum
}

func (p *Pipeline) lookup(ctx context.Context, logger *slog.Logger, query string) ([]points.ResultPoint, bool) {
	if p.Cache == nil {
		return nil, false
	}
	results, ok, err := p.Cache.Lookup(ctx, query)
	if err != nil {
		logger.Warn("cache lookup failed, running pipeline", "err", err)
		return nil, false
	}
	if !ok || len(results) == 0 {
		return nil, false
	}
	logger.Info("cache hit", "points", len(results))
	return results, true
}

func (p *Pipeline) store(ctx context.Context, logger *slog.Logger, query string, results []points.ResultPoint) {
	if p.Cache == nil || len(results) == 0 {
		return
	}
	if err := p.Cache.Store(ctx, query, results); err != nil {
		logger.Warn("cache store failed", "err", err)
	}
}

func (p *Pipeline) discover(ctx context.Context, logger *slog.Logger, query string) []string {
	ctx, span := tracer.Start(ctx, "sift.discover")
	defer span.End()

	limit := p.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	urls := serp.Discover(ctx, p.Searcher, query, limit, logger)
	span.SetAttributes(attribute.Int("sift.urls", len(urls)))
	logger.Info("discovered urls", "count", len(urls))
	return urls
}

func (p *Pipeline) extract(ctx context.Context, urls []string) []points.Extraction {
	ctx, span := tracer.Start(ctx, "sift.extract", trace.WithAttributes(attribute.Int("sift.urls", len(urls))))
	defer span.End()

	if p.Extractor == nil {
		return nil
	}
	extractions := p.Extractor.ExtractAll(ctx, urls)
	span.SetAttributes(attribute.Int("sift.pages", len(extractions)))
	return extractions
}

func (p *Pipeline) dedupe(ctx context.Context, logger *slog.Logger, paragraphs []points.Paragraph, sum *report.Summary) ([]points.Paragraph, error) {
	ctx, span := tracer.Start(ctx, "sift.dedup", trace.WithAttributes(attribute.Int("sift.paragraphs", len(paragraphs))))
	defer span.End()

	res, err := dedup.Dedupe(ctx, paragraphs, p.Embedder, dedup.Options{
		Threshold: p.Threshold,
		BatchSize: p.BatchSize,
		Logger:    logger,
	})
	sum.Discarded = res.Discarded
	sum.Failed = res.Failed
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		if p.Health != nil {
			p.Health.Degraded(err)
		}
		return nil, err
	}
	if p.Health != nil && len(paragraphs) >= 2 {
		p.Health.Up()
	}
	metrics.RecordDedup(len(res.Kept), res.Discarded, res.Failed)
	return res.Kept, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
