package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of embeddings to keep in memory.
const DefaultCacheSize = 4096

// CachedEmbedder wraps an Embedder with LRU caching so repeated texts
// (re-ingested chunks, repeated queries) skip recomputation.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder creates a cached embedder wrapping the given embedder.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, cache: cache}
}

// cacheKey hashes text plus model name so caches never cross models.
func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// Embed returns a cached embedding when available, otherwise computes and
// caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch embeds multiple texts, consulting the cache per text so partial
// hits still save work.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missIndices := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			missIndices = append(missIndices, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIndices {
		results[idx] = fresh[j]
		c.cache.Add(c.cacheKey(texts[idx]), fresh[j])
	}
	return results, nil
}

// Dimensions returns the embedding dimension of the inner embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName returns the inner embedder's model identifier.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error { return c.inner.Close() }
