package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterminism(t *testing.T) {
	e := NewStaticEmbedder(0)
	defer e.Close()

	a, err := e.Embed(context.Background(), "neural networks learn representations")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "neural networks learn representations")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimensions)
}

func TestStaticEmbedderUnitLength(t *testing.T) {
	e := NewStaticEmbedder(128)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "gradient descent converges")
	require.NoError(t, err)
	require.Len(t, vec, 128)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticEmbedderEmptyText(t *testing.T) {
	e := NewStaticEmbedder(0)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "   \n  ")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedderSimilarTextsCloser(t *testing.T) {
	e := NewStaticEmbedder(0)
	defer e.Close()

	ctx := context.Background()
	a, err := e.Embed(ctx, "machine learning models require training data")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "training data is required by machine learning models")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "the recipe calls for two cups of flour")
	require.NoError(t, err)

	assert.Greater(t, Cosine(a, b), Cosine(a, c))
}

func TestStaticEmbedderClosed(t *testing.T) {
	e := NewStaticEmbedder(0)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestEmbedBatch(t *testing.T) {
	e := NewStaticEmbedder(0)
	defer e.Close()

	out, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEqual(t, out[0], out[1])

	empty, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}
