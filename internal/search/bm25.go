package search

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Standard BM25 parameters.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// snippetLength bounds the text excerpt attached to each result.
const snippetLength = 260

var tokenRegex = regexp.MustCompile(`\w+`)

func tokenize(text string) []string {
	return tokenRegex.FindAllString(strings.ToLower(text), -1)
}

// bm25 scores documents against a query using the candidate set itself as
// the corpus: N and IDF are computed over the candidates only, not the whole
// index.
type bm25 struct {
	docs  []map[string]int
	dl    []int
	df    map[string]int
	avgdl float64
}

func newBM25(texts []string) *bm25 {
	b := &bm25{
		docs: make([]map[string]int, len(texts)),
		dl:   make([]int, len(texts)),
		df:   map[string]int{},
	}

	total := 0
	for i, text := range texts {
		tf := map[string]int{}
		tokens := tokenize(text)
		for _, tok := range tokens {
			tf[tok]++
		}
		b.docs[i] = tf
		b.dl[i] = len(tokens)
		total += len(tokens)
		for tok := range tf {
			b.df[tok]++
		}
	}
	if len(texts) > 0 {
		b.avgdl = float64(total) / float64(len(texts))
	}
	return b
}

// score computes the BM25 score of document i against the query tokens.
// Scores are finite and non-negative.
func (b *bm25) score(i int, queryTokens []string) float64 {
	if i < 0 || i >= len(b.docs) || b.avgdl == 0 {
		return 0
	}

	n := float64(len(b.docs))
	var score float64
	for _, tok := range queryTokens {
		tf := float64(b.docs[i][tok])
		if tf == 0 {
			continue
		}
		df := float64(b.df[tok])
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(b.dl[i])/b.avgdl))
		score += idf * norm
	}
	return score
}

// Snippet returns the first 260 characters of text, with an ellipsis suffix
// if truncated.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetLength]) + "..."
}
