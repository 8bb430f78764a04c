package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notegraph/notegraph/internal/bus"
	"github.com/notegraph/notegraph/internal/embed"
	"github.com/notegraph/notegraph/internal/entity"
	"github.com/notegraph/notegraph/internal/ingest"
	"github.com/notegraph/notegraph/internal/link"
	"github.com/notegraph/notegraph/internal/objstore"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/synthesis"
	"github.com/notegraph/notegraph/internal/vector"
	"github.com/notegraph/notegraph/internal/workflow"
)

const requestTimeout = 2 * time.Second

type fixture struct {
	bus *bus.Bus
	dir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := bus.New()
	b.Start(ctx)
	t.Cleanup(b.Stop)

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	em := embed.NewStaticEmbedder(32)
	t.Cleanup(func() { _ = em.Close() })
	ix := vector.New(32)

	dir := t.TempDir()
	src := objstore.NewFSStore(dir)
	pipeline := ingest.NewPipeline(st, ix, em, b, ingest.Options{})
	searcher := search.NewSearcher(st, ix, em, search.Config{})
	linker := link.NewEngine(st, ix, link.Config{})
	assembler := synthesis.NewAssembler(st, searcher, linker)

	reg := NewRegistry(b, Options{
		Store:     st,
		Source:    src,
		Pipeline:  pipeline,
		Extractor: entity.NewExtractor(),
		Linker:    linker,
		Assembler: assembler,
		Searcher:  searcher,
	})
	reg.Start()
	t.Cleanup(reg.Stop)

	return &fixture{bus: b, dir: dir}
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644))
}

func (f *fixture) request(t *testing.T, topic string, payload map[string]any) map[string]any {
	t.Helper()
	resp, err := f.bus.Request(context.Background(), topic, payload, requestTimeout)
	require.NoError(t, err)
	require.NotNil(t, resp, "no response on topic %s", topic)
	return resp.Payload
}

func subContext(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	ctx, ok := payload["context"].(map[string]any)
	require.True(t, ok, "response has no context: %v", payload)
	return ctx
}

func TestIngestAgentRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.write(t, "note.md", "# Raft\n\nRaft is a consensus algorithm for replicated logs.\n")

	payload := f.request(t, workflow.TopicIngestDocument, map[string]any{
		"document_path": "note.md",
	})
	require.Equal(t, true, payload["success"])
	ctx := subContext(t, payload)
	assert.Equal(t, "note.md", ctx["document_path"])
	assert.Equal(t, false, ctx["skipped"])
	assert.Positive(t, ctx["chunks"])

	// Same content again short-circuits.
	payload = f.request(t, workflow.TopicIngestDocument, map[string]any{
		"document_path": "note.md",
	})
	require.Equal(t, true, payload["success"])
	assert.Equal(t, true, subContext(t, payload)["skipped"])
}

func TestIngestAgentMissingDocument(t *testing.T) {
	f := newFixture(t)
	payload := f.request(t, workflow.TopicIngestDocument, map[string]any{
		"document_path": "ghost.md",
	})
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "ghost.md")
}

func TestExtractAgentFromContent(t *testing.T) {
	f := newFixture(t)
	payload := f.request(t, workflow.TopicExtractEntities, map[string]any{
		"content": "Ada Lovelace joined Acme Corp on 2024-01-15.",
	})
	require.Equal(t, true, payload["success"])
	ctx := subContext(t, payload)

	entities, ok := ctx["entities"].([]map[string]any)
	require.True(t, ok)
	labels := map[string]bool{}
	for _, e := range entities {
		labels[e["label"].(string)] = true
	}
	assert.True(t, labels["person"])
	assert.True(t, labels["organization"])
	assert.True(t, labels["date"])
}

func TestExtractAgentFromStoredDocument(t *testing.T) {
	f := newFixture(t)
	f.write(t, "people.md", "# People\n\nGrace Hopper wrote the first compiler.\n")
	f.request(t, workflow.TopicIngestDocument, map[string]any{"document_path": "people.md"})

	payload := f.request(t, workflow.TopicExtractEntities, map[string]any{
		"document_path": "people.md",
	})
	require.Equal(t, true, payload["success"])
	ctx := subContext(t, payload)
	assert.Positive(t, ctx["count"])
}

func TestExtractAgentRequiresInput(t *testing.T) {
	f := newFixture(t)
	payload := f.request(t, workflow.TopicExtractEntities, map[string]any{})
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "content or document_path")
}

func TestLinkAgentByDocument(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# Raft\n\nRaft is a consensus algorithm used by Acme Corp.\n")
	f.request(t, workflow.TopicIngestDocument, map[string]any{"document_path": "a.md"})

	payload := f.request(t, workflow.TopicCreateLinks, map[string]any{
		"document_id": "a.md",
	})
	require.Equal(t, true, payload["success"])
	ctx := subContext(t, payload)
	assert.Equal(t, "a.md", ctx["document_id"])
	assert.Positive(t, ctx["chunks"])
}

func TestLinkAgentRequiresTarget(t *testing.T) {
	f := newFixture(t)
	payload := f.request(t, workflow.TopicCreateLinks, map[string]any{})
	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "chunk_id or document_id")
}

func TestSummaryAgent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "design.md", "# Design\n\nThe engine splits documents by heading and stores each section separately.\n")
	f.request(t, workflow.TopicIngestDocument, map[string]any{"document_path": "design.md"})

	payload := f.request(t, workflow.TopicGenerateSummary, map[string]any{
		"document_id": "design.md",
		"max_length":  100,
	})
	require.Equal(t, true, payload["success"])
	ctx := subContext(t, payload)
	assert.NotEmpty(t, ctx["summary"])
	assert.Equal(t, 0.8, ctx["confidence"])
}

func TestAnswerAgent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "gc.md", "# GC\n\nThe collector runs concurrently with mutator threads and keeps pauses short.\n")
	f.request(t, workflow.TopicIngestDocument, map[string]any{"document_path": "gc.md"})

	payload := f.request(t, workflow.TopicAnswerQuestion, map[string]any{
		"question": "collector pauses",
	})
	require.Equal(t, true, payload["success"])
	ctx := subContext(t, payload)
	assert.NotEmpty(t, ctx["answer"])
	citations, ok := ctx["citations"].([]string)
	require.True(t, ok)
	assert.NotEmpty(t, citations)
}

func TestSearchAgent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "kv.md", "# Storage\n\nThe key value store keeps an append only log on disk.\n")
	f.request(t, workflow.TopicIngestDocument, map[string]any{"document_path": "kv.md"})

	payload := f.request(t, workflow.TopicSearchKnowledge, map[string]any{
		"query": "find append only log",
		"limit": 5,
	})
	require.Equal(t, true, payload["success"])
	ctx := subContext(t, payload)
	assert.Equal(t, "lookup", ctx["query_type"])

	results, ok := ctx["results"].([]map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, results)
	assert.Equal(t, "kv.md", results[0]["path"])
}

func TestWorkflowDrivesAgents(t *testing.T) {
	f := newFixture(t)
	f.write(t, "doc.md", "# Topic\n\nSome content worth indexing for later retrieval.\n")

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	engine := workflow.NewEngine(st, f.bus)
	t.Cleanup(engine.Shutdown)

	ctx := context.Background()
	id, err := engine.Create(ctx, "ingest-and-link", "", []workflow.StepSpec{
		{Name: "ingest", Action: "ingest_document",
			Params: map[string]any{"document_path": "doc.md"}},
		{Name: "link", Action: "create_links",
			Params: map[string]any{"document_id": "doc.md"},
			Deps:   []string{"ingest"}},
	}, "test")
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, id))
	require.NoError(t, engine.Wait(ctx, id))

	status, err := engine.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, status.Status)
	assert.Equal(t, 100.0, status.Progress)
}
