// Package synthesis produces extractive, deterministic outputs from ranked
// chunk lists. No generative model is involved.
package synthesis

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/notegraph/notegraph/internal/link"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
)

// Defaults.
const (
	DefaultAnswerK         = 5
	DefaultSummaryMaxWords = 200

	// AnswerSourceCount is how many top results feed the extracted bullets
	// and the citation list.
	AnswerSourceCount = 3
	// minSentenceLength filters out fragments during sentence extraction.
	minSentenceLength = 20
)

// Source identifies a chunk that contributed to an output.
type Source struct {
	ChunkID string  `json:"chunk_id"`
	Path    string  `json:"path"`
	Heading string  `json:"heading,omitempty"`
	Score   float64 `json:"score"`
}

// Ref formats the source as a path#heading citation.
func (s Source) Ref() string {
	if s.Heading == "" {
		return s.Path
	}
	return s.Path + "#" + s.Heading
}

// Output is the uniform synthesis record.
type Output struct {
	Content    string         `json:"content"`
	Sources    []Source       `json:"sources"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata"`
}

// Assembler composes answers, summaries, explanations, and comparisons over
// retrieval output.
type Assembler struct {
	store    *store.Store
	searcher *search.Searcher
	linker   *link.Engine
}

// NewAssembler creates a synthesis assembler. The linker may be nil; related
// concepts are then omitted from explanations.
func NewAssembler(st *store.Store, s *search.Searcher, l *link.Engine) *Assembler {
	return &Assembler{store: st, searcher: s, linker: l}
}

var sentenceRegex = regexp.MustCompile(`[^.!?]+[.!?]?`)

// firstSentences extracts up to n leading sentences, skipping fragments.
func firstSentences(text string, n int) []string {
	var out []string
	for _, raw := range sentenceRegex.FindAllString(text, -1) {
		s := strings.TrimSpace(raw)
		if len(s) < minSentenceLength {
			continue
		}
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}

// lengthFactor discounts very short answers.
func lengthFactor(content string) float64 {
	words := len(strings.Fields(content))
	switch {
	case words < 10:
		return 0.5
	case words < 50:
		return 0.8
	default:
		return 1.0
	}
}

// confidence is mean source score times the length factor, clamped to [0,1].
func confidence(sources []Source, content string) float64 {
	if len(sources) == 0 || content == "" {
		return 0
	}
	var sum float64
	for _, s := range sources {
		sum += s.Score
	}
	mean := sum / float64(len(sources))
	return math.Min(math.Max(mean*lengthFactor(content), 0), 1)
}

// AnswerQuestion retrieves top-k chunks and extracts a bulleted answer from
// the leading sentences of the best three.
func (a *Assembler) AnswerQuestion(ctx context.Context, question string, k int) (*Output, error) {
	if k <= 0 {
		k = DefaultAnswerK
	}

	resp, err := a.searcher.Search(ctx, search.Request{Query: question, K: k})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return &Output{
			Content:  "No relevant information found to answer the question.",
			Sources:  []Source{},
			Metadata: map[string]any{"question": question, "reason": "no_results"},
		}, nil
	}

	sources := make([]Source, 0, len(resp.Results))
	for _, r := range resp.Results {
		sources = append(sources, Source{
			ChunkID: r.ID, Path: r.Path, Heading: r.Heading, Score: r.Score,
		})
	}

	var points []string
	for i, r := range resp.Results {
		if i == AnswerSourceCount {
			break
		}
		text := r.Snippet
		if chunk, err := a.store.GetChunk(ctx, r.ID); err == nil {
			text = chunk.Text
		}
		points = append(points, firstSentences(text, 2)...)
	}

	content := "No clear answer could be extracted from the relevant chunks."
	if len(points) > 0 {
		content = "- " + strings.Join(points, "\n- ")
	}

	return &Output{
		Content:    content,
		Sources:    sources,
		Confidence: confidence(sources, content),
		Metadata: map[string]any{
			"question":   question,
			"strategy":   string(resp.Strategy),
			"query_type": string(resp.Class),
			"bullets":    len(points),
		},
	}, nil
}

// GenerateSummary emits chunks in importance order until the word budget is
// exhausted, truncating the final chunk to fit.
func (a *Assembler) GenerateSummary(ctx context.Context, chunkIDs []string, maxWords int) (*Output, error) {
	if maxWords <= 0 {
		maxWords = DefaultSummaryMaxWords
	}

	chunks, err := a.store.GetChunks(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return &Output{
			Content:  "No content available for summarization.",
			Sources:  []Source{},
			Metadata: map[string]any{"reason": "no_chunks"},
		}, nil
	}

	type scored struct {
		chunk *store.ChunkRecord
		score float64
	}
	ranked := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		score := 0.0
		if c.Heading != "" {
			score += 2
		}
		score += math.Min(float64(len(strings.Fields(c.Text)))/50, 3)
		ranked = append(ranked, scored{chunk: c, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var parts []string
	var sources []Source
	wordCount := 0
	for _, sc := range ranked {
		if wordCount >= maxWords {
			break
		}
		c := sc.chunk
		part := c.Text
		if c.Heading != "" {
			part = fmt.Sprintf("**%s**: %s", c.Heading, c.Text)
		}

		words := strings.Fields(part)
		if wordCount+len(words) <= maxWords {
			parts = append(parts, part)
			wordCount += len(words)
		} else {
			remaining := maxWords - wordCount
			if remaining > 0 {
				parts = append(parts, strings.Join(words[:remaining], " ")+"...")
				wordCount = maxWords
			}
		}
		sources = append(sources, Source{ChunkID: c.ID, Path: c.Path, Heading: c.Heading, Score: sc.score})
		if wordCount >= maxWords {
			break
		}
	}

	return &Output{
		Content:    strings.Join(parts, "\n\n"),
		Sources:    sources,
		Confidence: 0.8,
		Metadata: map[string]any{
			"max_words":  maxWords,
			"word_count": wordCount,
			"chunks":     len(chunks),
		},
	}, nil
}

// GenerateExplanation builds a layered explanation of a topic. Depth 1 is an
// overview; depth 2 adds related concepts from the link graph; depth 3 adds
// supplementary excerpts.
func (a *Assembler) GenerateExplanation(ctx context.Context, topic string, depth int) (*Output, error) {
	if depth < 1 {
		depth = 1
	}
	if depth > 3 {
		depth = 3
	}

	resp, err := a.searcher.Search(ctx, search.Request{Query: topic})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return &Output{
			Content:  fmt.Sprintf("No information found about %q.", topic),
			Sources:  []Source{},
			Metadata: map[string]any{"topic": topic, "reason": "no_results"},
		}, nil
	}

	top := resp.Results[0]
	var b strings.Builder
	fmt.Fprintf(&b, "# Explanation: %s\n\n", topic)
	fmt.Fprintf(&b, "## Overview\n%s\n", top.Snippet)

	sources := []Source{{ChunkID: top.ID, Path: top.Path, Heading: top.Heading, Score: top.Score}}

	if depth >= 2 && a.linker != nil {
		visits, err := a.linker.Traverse(ctx, []string{top.ID})
		if err == nil && len(visits) > 1 {
			b.WriteString("\n## Related Concepts\n")
			for _, v := range visits[1:] {
				chunk, err := a.store.GetChunk(ctx, v.ID)
				if err != nil {
					continue
				}
				label := chunk.Heading
				if label == "" {
					label = chunk.Path
				}
				fmt.Fprintf(&b, "- %s (%s, %.2f)\n", label, strings.ToLower(v.EdgeUsed), v.Strength)
			}
		}
	}

	if depth >= 3 && len(resp.Results) > 1 {
		b.WriteString("\n## Details\n")
		for _, r := range resp.Results[1:] {
			if len(sources) == AnswerSourceCount {
				break
			}
			fmt.Fprintf(&b, "- %s\n", r.Snippet)
			sources = append(sources, Source{ChunkID: r.ID, Path: r.Path, Heading: r.Heading, Score: r.Score})
		}
	}

	content := b.String()
	return &Output{
		Content:    content,
		Sources:    sources,
		Confidence: confidence(sources, content),
		Metadata:   map[string]any{"topic": topic, "depth": depth},
	}, nil
}

// CompareTopics runs a search per topic and emits a fixed-template
// comparison.
func (a *Assembler) CompareTopics(ctx context.Context, topicA, topicB string) (*Output, error) {
	respA, err := a.searcher.Search(ctx, search.Request{Query: topicA})
	if err != nil {
		return nil, err
	}
	respB, err := a.searcher.Search(ctx, search.Request{Query: topicB})
	if err != nil {
		return nil, err
	}

	if len(respA.Results) == 0 && len(respB.Results) == 0 {
		return &Output{
			Content:  "No information found about either topic.",
			Sources:  []Source{},
			Metadata: map[string]any{"topic_a": topicA, "topic_b": topicB, "reason": "no_results"},
		}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Comparison: %s vs %s\n", topicA, topicB)

	var sources []Source
	writeOverview := func(topic string, results []search.Result) {
		fmt.Fprintf(&b, "\n## %s\n", topic)
		if len(results) == 0 {
			b.WriteString("No information found.\n")
			return
		}
		fmt.Fprintf(&b, "%s\n", results[0].Snippet)
		sources = append(sources, Source{
			ChunkID: results[0].ID, Path: results[0].Path,
			Heading: results[0].Heading, Score: results[0].Score,
		})
	}
	writeOverview(topicA, respA.Results)
	writeOverview(topicB, respB.Results)

	b.WriteString("\n## Similarities and Differences\n")
	shared := sharedPaths(respA.Results, respB.Results)
	if len(shared) > 0 {
		fmt.Fprintf(&b, "Both topics appear in: %s\n", strings.Join(shared, ", "))
	} else {
		b.WriteString("The topics are covered in separate documents.\n")
	}

	content := b.String()
	return &Output{
		Content:    content,
		Sources:    sources,
		Confidence: 0.6,
		Metadata: map[string]any{
			"topic_a":      topicA,
			"topic_b":      topicB,
			"results_a":    len(respA.Results),
			"results_b":    len(respB.Results),
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// sharedPaths lists paths present in both result sets, in first-set order.
func sharedPaths(a, b []search.Result) []string {
	inB := map[string]bool{}
	for _, r := range b {
		inB[r.Path] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range a {
		if inB[r.Path] && !seen[r.Path] {
			seen[r.Path] = true
			out = append(out, r.Path)
		}
	}
	return out
}
