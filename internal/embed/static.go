package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates embeddings with a hash-based approach.
// Works without external dependencies (no network, no model download) and is
// fully deterministic, at reduced semantic quality.
type StaticEmbedder struct {
	dimensions int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// stopWords are common English words excluded from token hashing.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "in": true, "is": true, "it": true, "its": true,
	"of": true, "on": true, "or": true, "that": true, "the": true,
	"to": true, "was": true, "were": true, "will": true, "with": true,
}

// Weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches alphanumeric sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a static embedder with the given dimensions.
// Non-positive dimensions fall back to DefaultDimensions.
func NewStaticEmbedder(dimensions int) *StaticEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &StaticEmbedder{dimensions: dimensions}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// generateVector creates a hash-based vector from text.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, e.dimensions)

	tokens := filterStopWords(tokenize(text))
	for _, token := range tokens {
		vector[hashToIndex(token, e.dimensions)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, e.dimensions)] += ngramWeight
	}

	return vector
}

// tokenize splits text into lowercase word tokens.
func tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		tokens = append(tokens, strings.ToLower(word))
	}
	return tokens
}

// filterStopWords removes common English stop words.
func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !stopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// normalizeForNgrams prepares text for n-gram extraction.
func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams extracts n-character sliding windows.
func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

// hashToIndex uses FNV-64 to map a string to a vector index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static"
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
