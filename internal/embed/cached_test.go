package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts inner calls.
type countingEmbedder struct {
	*StaticEmbedder
	embedCalls int
	batchCalls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embedCalls++
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedderHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(0)}
	c := NewCachedEmbedder(inner, 16)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, "repeated query")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "repeated query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(0)}
	c := NewCachedEmbedder(inner, 16)
	defer c.Close()

	ctx := context.Background()
	_, err := c.Embed(ctx, "alpha")
	require.NoError(t, err)

	out, err := c.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, vec := range out {
		assert.Len(t, vec, DefaultDimensions)
	}

	// Only beta and gamma hit the inner embedder.
	assert.Equal(t, 1, inner.batchCalls)
}

func TestCachedEmbedderPassthrough(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(64), 0)
	assert.Equal(t, 64, c.Dimensions())
	assert.Equal(t, "static", c.ModelName())
}
