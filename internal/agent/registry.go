// Package agent exposes the engine components as bus subscribers. Each
// registered agent listens on one topic, handles requests, and replies with a
// success/context envelope.
package agent

import (
	"context"
	"log/slog"

	"github.com/notegraph/notegraph/internal/bus"
	"github.com/notegraph/notegraph/internal/entity"
	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/ingest"
	"github.com/notegraph/notegraph/internal/link"
	"github.com/notegraph/notegraph/internal/objstore"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/synthesis"
	"github.com/notegraph/notegraph/internal/workflow"
)

// Registry subscribes the engine components to their bus topics and routes
// requests to them.
type Registry struct {
	bus       *bus.Bus
	store     *store.Store
	source    objstore.Store
	pipeline  *ingest.Pipeline
	extractor *entity.Extractor
	linker    *link.Engine
	assembler *synthesis.Assembler
	searcher  *search.Searcher

	subs []string
}

// Options carries the component wiring for a registry. Nil components
// disable their topics.
type Options struct {
	Store     *store.Store
	Source    objstore.Store
	Pipeline  *ingest.Pipeline
	Extractor *entity.Extractor
	Linker    *link.Engine
	Assembler *synthesis.Assembler
	Searcher  *search.Searcher
}

// NewRegistry creates an agent registry over the given bus.
func NewRegistry(b *bus.Bus, opts Options) *Registry {
	return &Registry{
		bus:       b,
		store:     opts.Store,
		source:    opts.Source,
		pipeline:  opts.Pipeline,
		extractor: opts.Extractor,
		linker:    opts.Linker,
		assembler: opts.Assembler,
		searcher:  opts.Searcher,
	}
}

// Start subscribes every agent whose component is wired.
func (r *Registry) Start() {
	sub := func(id, topic string, h bus.Handler) {
		r.subs = append(r.subs, r.bus.Subscribe(id, topic, h))
	}
	if r.pipeline != nil {
		sub("ingestion_agent", workflow.TopicIngestDocument, r.handleIngest)
	}
	if r.extractor != nil {
		sub("entity_agent", workflow.TopicExtractEntities, r.handleExtract)
	}
	if r.linker != nil {
		sub("linking_agent", workflow.TopicCreateLinks, r.handleLink)
	}
	if r.assembler != nil {
		sub("synthesis_agent", workflow.TopicGenerateSummary, r.handleSummary)
		sub("synthesis_agent", workflow.TopicAnswerQuestion, r.handleAnswer)
	}
	if r.searcher != nil {
		sub("orchestrator_agent", workflow.TopicSearchKnowledge, r.handleSearch)
	}
	slog.Info("agents registered", slog.Int("subscriptions", len(r.subs)))
}

// Stop removes all agent subscriptions.
func (r *Registry) Stop() {
	for _, id := range r.subs {
		r.bus.Unsubscribe(id)
	}
	r.subs = nil
}

// respond replies with a success envelope.
func (r *Registry) respond(msg *bus.Message, source string, context map[string]any) {
	r.bus.Respond(msg, map[string]any{
		"success": true,
		"context": context,
	}, bus.WithSource(source))
}

// respondErr replies with a failure envelope. The request is considered
// handled; errors surface to the caller through the payload.
func (r *Registry) respondErr(msg *bus.Message, source string, err error) {
	slog.Warn("agent request failed",
		slog.String("agent", source),
		slog.String("topic", msg.Topic),
		slog.String("error", err.Error()))
	r.bus.Respond(msg, map[string]any{
		"success": false,
		"error":   err.Error(),
	}, bus.WithSource(source))
}

func (r *Registry) handleIngest(ctx context.Context, msg *bus.Message) error {
	const src = "ingestion_agent"

	path, _ := msg.Payload["document_path"].(string)
	if path == "" {
		r.respondErr(msg, src, ngerrors.InvalidInput("document_path is required"))
		return nil
	}
	if r.source == nil {
		r.respondErr(msg, src, ngerrors.Dependency("no document source configured", nil))
		return nil
	}

	raw, etag, err := r.source.Get(ctx, path)
	if err != nil {
		r.respondErr(msg, src, err)
		return nil
	}

	force, _ := msg.Payload["force_update"].(bool)
	result, err := r.pipeline.Ingest(ctx, ingest.Input{
		Path:  path,
		Raw:   raw,
		ETag:  etag,
		Force: force,
	})
	if err != nil {
		r.respondErr(msg, src, err)
		return nil
	}

	r.respond(msg, src, map[string]any{
		"document_path": path,
		"skipped":       result.Skipped,
		"chunks":        result.Chunks,
		"entities":      result.Entities,
		"embedded":      result.Embedded,
		"tags":          result.Tags,
	})
	return nil
}

func (r *Registry) handleExtract(ctx context.Context, msg *bus.Message) error {
	const src = "entity_agent"

	content, _ := msg.Payload["content"].(string)
	if content == "" {
		// Fall back to the stored chunks of the named document.
		path, _ := msg.Payload["document_path"].(string)
		if path == "" {
			r.respondErr(msg, src, ngerrors.InvalidInput("content or document_path is required"))
			return nil
		}
		text, err := r.documentText(ctx, path)
		if err != nil {
			r.respondErr(msg, src, err)
			return nil
		}
		content = text
	}

	entities := r.extractor.Extract(content)
	views := make([]map[string]any, 0, len(entities))
	for _, ent := range entities {
		views = append(views, map[string]any{
			"text":       ent.Text,
			"label":      ent.Label,
			"confidence": ent.Confidence,
		})
	}

	r.respond(msg, src, map[string]any{
		"entities": views,
		"count":    len(views),
	})
	return nil
}

// documentText joins the stored chunk bodies of a document.
func (r *Registry) documentText(ctx context.Context, path string) (string, error) {
	if r.store == nil {
		return "", ngerrors.Dependency("no store configured", nil)
	}
	ids, err := r.store.ChunkIDsForPath(ctx, path)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ngerrors.NotFound("document", path)
	}
	chunks, err := r.store.GetChunks(ctx, ids)
	if err != nil {
		return "", err
	}
	text := ""
	for _, c := range chunks {
		if text != "" {
			text += "\n\n"
		}
		text += c.Text
	}
	return text, nil
}

func (r *Registry) handleLink(ctx context.Context, msg *bus.Message) error {
	const src = "linking_agent"

	// A chunk_id links one chunk; a document_id links every chunk of the
	// document.
	if chunkID, _ := msg.Payload["chunk_id"].(string); chunkID != "" {
		result, err := r.linker.LinkChunk(ctx, chunkID)
		if err != nil {
			r.respondErr(msg, src, err)
			return nil
		}
		r.respond(msg, src, map[string]any{
			"chunk_id": chunkID,
			"created":  result.Created,
			"updated":  result.Updated,
			"pending":  result.Pending,
			"failed":   result.Failed,
		})
		return nil
	}

	docID, _ := msg.Payload["document_id"].(string)
	if docID == "" {
		r.respondErr(msg, src, ngerrors.InvalidInput("chunk_id or document_id is required"))
		return nil
	}
	if r.store == nil {
		r.respondErr(msg, src, ngerrors.Dependency("no store configured", nil))
		return nil
	}
	ids, err := r.store.ChunkIDsForPath(ctx, docID)
	if err != nil {
		r.respondErr(msg, src, err)
		return nil
	}

	batch := r.linker.LinkBatch(ctx, ids)
	r.respond(msg, src, map[string]any{
		"document_id": docID,
		"chunks":      len(ids),
		"created":     batch.Created,
		"updated":     batch.Updated,
		"pending":     batch.Pending,
		"failed":      batch.Failed,
	})
	return nil
}

func (r *Registry) handleSummary(ctx context.Context, msg *bus.Message) error {
	const src = "synthesis_agent"

	docID, _ := msg.Payload["document_id"].(string)
	if docID == "" {
		r.respondErr(msg, src, ngerrors.InvalidInput("document_id is required"))
		return nil
	}
	if r.store == nil {
		r.respondErr(msg, src, ngerrors.Dependency("no store configured", nil))
		return nil
	}
	ids, err := r.store.ChunkIDsForPath(ctx, docID)
	if err != nil {
		r.respondErr(msg, src, err)
		return nil
	}

	maxWords := intParam(msg.Payload, "max_length", synthesis.DefaultSummaryMaxWords)
	out, err := r.assembler.GenerateSummary(ctx, ids, maxWords)
	if err != nil {
		r.respondErr(msg, src, err)
		return nil
	}

	r.respond(msg, src, map[string]any{
		"document_id": docID,
		"summary":     out.Content,
		"confidence":  out.Confidence,
		"sources":     len(out.Sources),
	})
	return nil
}

func (r *Registry) handleAnswer(ctx context.Context, msg *bus.Message) error {
	const src = "synthesis_agent"

	question, _ := msg.Payload["question"].(string)
	if question == "" {
		r.respondErr(msg, src, ngerrors.InvalidInput("question is required"))
		return nil
	}

	k := intParam(msg.Payload, "context_limit", synthesis.DefaultAnswerK)
	out, err := r.assembler.AnswerQuestion(ctx, question, k)
	if err != nil {
		r.respondErr(msg, src, err)
		return nil
	}

	citations := make([]string, 0, len(out.Sources))
	for _, s := range out.Sources {
		citations = append(citations, s.Ref())
	}

	r.respond(msg, src, map[string]any{
		"question":   question,
		"answer":     out.Content,
		"confidence": out.Confidence,
		"citations":  citations,
	})
	return nil
}

func (r *Registry) handleSearch(ctx context.Context, msg *bus.Message) error {
	const src = "orchestrator_agent"

	query, _ := msg.Payload["query"].(string)
	if query == "" {
		r.respondErr(msg, src, ngerrors.InvalidInput("query is required"))
		return nil
	}

	resp, err := r.searcher.Search(ctx, search.Request{
		Query: query,
		K:     intParam(msg.Payload, "limit", 0),
	})
	if err != nil {
		r.respondErr(msg, src, err)
		return nil
	}

	results := make([]map[string]any, 0, len(resp.Results))
	for _, res := range resp.Results {
		results = append(results, map[string]any{
			"chunk_id": res.ID,
			"path":     res.Path,
			"heading":  res.Heading,
			"score":    res.Score,
			"snippet":  res.Snippet,
		})
	}

	r.respond(msg, src, map[string]any{
		"query":      query,
		"query_type": string(resp.Class),
		"strategy":   string(resp.Strategy),
		"total":      resp.TotalCandidates,
		"results":    results,
	})
	return nil
}

// intParam reads a numeric payload value, tolerating float64 from JSON
// decoding.
func intParam(p map[string]any, key string, fallback int) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
