package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/FranksOps/sift/internal/embed"
	"github.com/FranksOps/sift/internal/points"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorsByText returns an embedder that looks vectors up by paragraph text.
func vectorsByText(m map[string][]float32, calls *int) embed.Embedder {
	return embed.EmbedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls != nil {
			*calls++
		}
		out := make([][]float32, len(texts))
		for i, s := range texts {
			out[i] = m[s]
		}
		return out, nil
	})
}

func paras(texts ...string) []points.Paragraph {
	out := make([]points.Paragraph, len(texts))
	for i, s := range texts {
		out[i] = points.Paragraph{Text: s, Source: "https://src.example/" + s}
	}
	return out
}

func TestDedupe_FewerThanTwo(t *testing.T) {
	calls := 0
	e := vectorsByText(nil, &calls)

	res, err := Dedupe(context.Background(), nil, e, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Kept)

	one := paras("a")
	res, err = Dedupe(context.Background(), one, e, Options{})
	require.NoError(t, err)
	assert.Equal(t, one, res.Kept)
	assert.Equal(t, 0, calls)
}

func TestDedupe_AllSimilarKeepsFirst(t *testing.T) {
	e := vectorsByText(map[string][]float32{
		"a": {1, 0.1},
		"b": {1, 0.05},
		"c": {1, 0},
	}, nil)

	res, err := Dedupe(context.Background(), paras("a", "b", "c"), e, Options{Threshold: 0.7})
	require.NoError(t, err)
	require.Len(t, res.Kept, 1)
	assert.Equal(t, "a", res.Kept[0].Text)
	assert.Equal(t, 2, res.Discarded)
}

func TestDedupe_AllDistinctKeepsAllInOrder(t *testing.T) {
	e := vectorsByText(map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0, 0, 1},
	}, nil)

	in := paras("a", "b", "c")
	res, err := Dedupe(context.Background(), in, e, Options{})
	require.NoError(t, err)
	assert.Equal(t, in, res.Kept)
	assert.Equal(t, 0, res.Discarded)
}

func TestDedupe_ComparesAgainstEveryKept(t *testing.T) {
	// c is far from a but close to b, so it is dropped even though a was
	// kept first.
	e := vectorsByText(map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
		"c": {0.1, 1},
	}, nil)

	res, err := Dedupe(context.Background(), paras("a", "b", "c"), e, Options{})
	require.NoError(t, err)
	assert.Equal(t, paras("a", "b"), res.Kept)
}

func TestDedupe_ThresholdIsInclusive(t *testing.T) {
	e := vectorsByText(map[string][]float32{
		"a": {1, 0},
		"b": {1, 0},
	}, nil)
	res, err := Dedupe(context.Background(), paras("a", "b"), e, Options{Threshold: 1})
	require.NoError(t, err)
	assert.Len(t, res.Kept, 1)
}

func TestDedupe_UnusableVectorsAreDropped(t *testing.T) {
	e := vectorsByText(map[string][]float32{
		"zero": {0, 0},
		"a":    {1, 0},
		"dim":  {0, 1, 0},
		"b":    {0, 1},
	}, nil)

	res, err := Dedupe(context.Background(), paras("zero", "missing", "a", "dim", "b"), e, Options{})
	require.NoError(t, err)
	assert.Equal(t, paras("a", "b"), res.Kept)
	assert.Equal(t, 3, res.Failed)
}

func TestDedupe_BatchesAndCarriesKeptSet(t *testing.T) {
	calls := 0
	e := vectorsByText(map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
		"c": {1, 0.01}, // duplicate of a, in a later batch
		"d": {-1, 0},
	}, &calls)

	res, err := Dedupe(context.Background(), paras("a", "b", "c", "d"), e, Options{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, paras("a", "b", "d"), res.Kept)
}

func TestDedupe_BackendFailure(t *testing.T) {
	calls := 0
	e := embed.EmbedderFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("connection refused")
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i + 1), float32(-i)}
		}
		return out, nil
	})

	res, err := Dedupe(context.Background(), paras("a", "b", "c"), e, Options{BatchSize: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedderUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotEmpty(t, res.Kept)
}

func TestDedupe_Deterministic(t *testing.T) {
	e := vectorsByText(map[string][]float32{
		"a": {1, 0.2},
		"b": {0.9, 0.3},
		"c": {0, 1},
		"d": {0.2, 1},
	}, nil)
	in := paras("a", "b", "c", "d")

	first, err := Dedupe(context.Background(), in, e, Options{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Dedupe(context.Background(), in, e, Options{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDedupe_NoEmbedder(t *testing.T) {
	_, err := Dedupe(context.Background(), paras("a", "b"), nil, Options{})
	assert.ErrorIs(t, err, ErrEmbedderUnavailable)
}
