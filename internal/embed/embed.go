// Package embed turns paragraphs into vectors for similarity comparison.
package embed

import (
	"context"
	"fmt"
	"math"
)

// DefaultBatchSize is how many texts are sent to the backend per request.
const DefaultBatchSize = 64

// Embedder maps texts to vectors. The result has one vector per input, in
// input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embed implements Embedder.
func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// Batched splits every call into requests of at most size texts.
func Batched(e Embedder, size int) Embedder {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return EmbedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return inBatches(ctx, texts, size, e.Embed)
	})
}

func inBatches(ctx context.Context, texts []string, size int, embed func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("batch %d-%d: backend returned %d vectors for %d texts", start, end, len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// CosineSimilarity returns the cosine of the angle between a and b. It is 0
// when the lengths differ or either vector is empty or zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZero reports whether v has no non-zero component.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
