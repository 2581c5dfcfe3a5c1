// Package dedup removes near-duplicate paragraphs with a greedy single pass
// over their embeddings.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/sift/internal/embed"
	"github.com/FranksOps/sift/internal/points"
)

// DefaultThreshold is the similarity at or above which a candidate counts as
// a duplicate of something already kept.
const DefaultThreshold = 0.7

// ErrEmbedderUnavailable is returned when the backend fails a whole batch.
var ErrEmbedderUnavailable = errors.New("embedding backend unavailable")

// Options configures Dedupe.
type Options struct {
	Threshold float64
	// BatchSize is how many paragraphs are embedded per backend call.
	BatchSize int
	Logger    *slog.Logger
}

// Result is the outcome of a dedup pass.
type Result struct {
	// Kept is an order-preserving subsequence of the input.
	Kept      []points.Paragraph
	Discarded int
	// Failed counts items dropped because their vector was unusable.
	Failed int
}

// Dedupe keeps each paragraph whose embedding has cosine similarity below
// Threshold with every paragraph kept before it. The first usable paragraph is
// always kept. Inputs of fewer than two paragraphs are returned unchanged
// without calling the embedder.
//
// If a batch cannot be embedded, the items decided so far are returned with
// an error wrapping ErrEmbedderUnavailable.
func Dedupe(ctx context.Context, paragraphs []points.Paragraph, embedder embed.Embedder, opts Options) (Result, error) {
	if len(paragraphs) < 2 {
		return Result{Kept: paragraphs}, nil
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = embed.DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		return Result{}, fmt.Errorf("%w: no embedder configured", ErrEmbedderUnavailable)
	}

	var (
		res  Result
		kept [][]float32
	)
	for start := 0; start < len(paragraphs); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(paragraphs))
		batch := paragraphs[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Text
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrEmbedderUnavailable, err)
		}

		for i, p := range batch {
			var vec []float32
			if i < len(vecs) {
				vec = vecs[i]
			}
			if reason := unusable(vec, kept); reason != "" {
				logger.Warn("dropping paragraph with unusable embedding", "source", p.Source, "index", start+i, "reason", reason)
				res.Failed++
				continue
			}
			if isDuplicate(vec, kept, opts.Threshold) {
				res.Discarded++
				continue
			}
			kept = append(kept, vec)
			res.Kept = append(res.Kept, p)
		}
	}
	return res, nil
}

func unusable(vec []float32, kept [][]float32) string {
	switch {
	case len(vec) == 0:
		return "missing vector"
	case embed.IsZero(vec):
		return "zero vector"
	case len(kept) > 0 && len(kept[0]) != len(vec):
		return fmt.Sprintf("dimension %d, expected %d", len(vec), len(kept[0]))
	}
	return ""
}

func isDuplicate(vec []float32, kept [][]float32, threshold float64) bool {
	for _, k := range kept {
		if embed.CosineSimilarity(vec, k) >= threshold {
			return true
		}
	}
	return false
}
