package synthesis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notegraph/notegraph/internal/embed"
	"github.com/notegraph/notegraph/internal/link"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/vector"
)

type fixture struct {
	assembler *Assembler
	store     *store.Store
	index     *vector.Index
	embedder  *embed.StaticEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	em := embed.NewStaticEmbedder(32)
	t.Cleanup(func() { _ = em.Close() })

	ix := vector.New(32)
	searcher := search.NewSearcher(st, ix, em, search.Config{})
	linker := link.NewEngine(st, ix, link.Config{})
	return &fixture{
		assembler: NewAssembler(st, searcher, linker),
		store:     st,
		index:     ix,
		embedder:  em,
	}
}

func (f *fixture) seed(t *testing.T, id, path, heading, text string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, f.store.UpsertFile(ctx, &store.FileRecord{Path: path, Hash: path}))
	require.NoError(t, f.store.UpsertChunk(ctx, &store.ChunkRecord{
		ID: id, Path: path, Heading: heading, Level: 1, StartLine: 1,
		Text: text, CreatedAt: &now,
	}))

	vec, err := f.embedder.Embed(ctx, text)
	require.NoError(t, err)
	require.NoError(t, f.index.Add(ctx, id, vec, vector.Metadata{Path: path, Heading: heading}))
}

func TestAnswerQuestion(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", "gc.md", "Garbage Collection",
		"The collector runs concurrently with the mutator threads. Pause times stay under a millisecond in most workloads.")

	out, err := f.assembler.AnswerQuestion(context.Background(), "collector pause times", 5)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.Content, "- "))
	assert.Contains(t, out.Content, "collector runs concurrently")
	require.Len(t, out.Sources, 1)
	assert.Equal(t, "gc.md", out.Sources[0].Path)
	assert.Equal(t, "gc.md#Garbage Collection", out.Sources[0].Ref())
	assert.Positive(t, out.Confidence)
	assert.LessOrEqual(t, out.Confidence, 1.0)
}

func TestAnswerQuestionNoResults(t *testing.T) {
	f := newFixture(t)
	out, err := f.assembler.AnswerQuestion(context.Background(), "anything at all", 0)
	require.NoError(t, err)
	assert.Zero(t, out.Confidence)
	assert.Empty(t, out.Sources)
	assert.Equal(t, "no_results", out.Metadata["reason"])
}

func TestAnswerConfidenceLengthFactor(t *testing.T) {
	assert.Equal(t, 0.5, lengthFactor("short answer"))
	assert.Equal(t, 0.8, lengthFactor(strings.Repeat("word ", 20)))
	assert.Equal(t, 1.0, lengthFactor(strings.Repeat("word ", 60)))

	sources := []Source{{Score: 0.9}, {Score: 0.7}}
	got := confidence(sources, strings.Repeat("word ", 60))
	assert.InDelta(t, 0.8, got, 0.001)
}

func TestGenerateSummaryRespectsBudget(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", "a.md", "Design", strings.Repeat("alpha ", 120))
	f.seed(t, "c2", "a.md", "", strings.Repeat("beta ", 120))

	out, err := f.assembler.GenerateSummary(context.Background(), []string{"c1", "c2"}, 100)
	require.NoError(t, err)

	words := len(strings.Fields(out.Content))
	assert.LessOrEqual(t, words, 101) // budget plus the ellipsis token
	// The heading-bearing chunk scores higher and leads.
	assert.True(t, strings.HasPrefix(out.Content, "**Design**:"))
	assert.True(t, strings.HasSuffix(out.Content, "..."))
	assert.Equal(t, 0.8, out.Confidence)
}

func TestGenerateSummaryOrdersByScore(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "short", "a.md", "", "few words here")
	f.seed(t, "headed", "a.md", "Key Section", "a chunk with a heading wins the tie")

	out, err := f.assembler.GenerateSummary(context.Background(), []string{"short", "headed"}, 200)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Content, "**Key Section**:"))
	assert.Contains(t, out.Content, "few words here")
}

func TestGenerateSummaryEmpty(t *testing.T) {
	f := newFixture(t)
	out, err := f.assembler.GenerateSummary(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Zero(t, out.Confidence)
	assert.Equal(t, "no_chunks", out.Metadata["reason"])
}

func TestGenerateExplanationDepths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seed(t, "c1", "raft.md", "Raft", "Raft is a consensus algorithm for replicated logs in distributed systems.")
	f.seed(t, "c2", "paxos.md", "Paxos", "Paxos is an older consensus algorithm with the same goals.")
	_, _, err := f.store.UpsertEdge(ctx, &store.EdgeRecord{
		SourceID: "c1", TargetID: "c2", Relationship: "RELATED",
		Strength: 0.85, Rationale: "r", Provenance: store.ProvenanceAuto,
	})
	require.NoError(t, err)

	shallow, err := f.assembler.GenerateExplanation(ctx, "raft consensus algorithm", 1)
	require.NoError(t, err)
	assert.Contains(t, shallow.Content, "## Overview")
	assert.NotContains(t, shallow.Content, "## Related Concepts")

	deep, err := f.assembler.GenerateExplanation(ctx, "raft consensus algorithm", 3)
	require.NoError(t, err)
	assert.Contains(t, deep.Content, "## Related Concepts")
	assert.Contains(t, deep.Content, "Paxos")
	assert.Equal(t, 3, deep.Metadata["depth"])
}

func TestCompareTopics(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "c1", "raft.md", "Raft", "Raft elects a leader for the replicated log.")
	f.seed(t, "c2", "paxos.md", "Paxos", "Paxos reaches agreement without a stable leader.")

	out, err := f.assembler.CompareTopics(context.Background(), "raft leader", "paxos agreement")
	require.NoError(t, err)

	assert.Contains(t, out.Content, "# Comparison: raft leader vs paxos agreement")
	assert.Contains(t, out.Content, "## raft leader")
	assert.Contains(t, out.Content, "## paxos agreement")
	assert.Contains(t, out.Content, "## Similarities and Differences")
	assert.Equal(t, 0.6, out.Confidence)
	assert.Len(t, out.Sources, 2)
}

func TestFirstSentences(t *testing.T) {
	text := "The first sentence is long enough. Tiny. The third sentence also qualifies here. A fourth one follows."
	got := firstSentences(text, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "The first sentence is long enough.", got[0])
	assert.Equal(t, "The third sentence also qualifies here.", got[1])
}
