// Package metrics exposes the pipeline's Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"}, // cached, ok, empty, degraded, panic
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_cache_lookups_total",
			Help: "Cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_extractions_total",
			Help: "Per-URL extraction attempts by outcome",
		},
		[]string{"domain", "outcome"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sift_render_duration_seconds",
			Help:    "Duration of page renders in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	ParagraphsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_paragraphs_total",
			Help: "Paragraphs seen at each pipeline stage",
		},
		[]string{"stage"}, // extracted, aggregated, kept
	)

	DedupItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_dedup_items_total",
			Help: "Deduplicator decisions",
		},
		[]string{"decision"}, // kept, discarded, failed
	)

	EmbedderUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sift_embedder_up",
			Help: "1 when the embedding backend last answered successfully",
		},
	)
)

// RecordExtraction counts one URL's extraction and its render time.
func RecordExtraction(domain, outcome string, d time.Duration) {
	ExtractionsTotal.WithLabelValues(domain, outcome).Inc()
	if d > 0 {
		RenderDuration.WithLabelValues(domain).Observe(d.Seconds())
	}
}

// RecordDedup adds the deduplicator's decision counts.
func RecordDedup(kept, discarded, failed int) {
	DedupItemsTotal.WithLabelValues("kept").Add(float64(kept))
	DedupItemsTotal.WithLabelValues("discarded").Add(float64(discarded))
	DedupItemsTotal.WithLabelValues("failed").Add(float64(failed))
}

// SetEmbedderUp reflects embedding backend availability.
func SetEmbedderUp(up bool) {
	if up {
		EmbedderUp.Set(1)
		return
	}
	EmbedderUp.Set(0)
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
