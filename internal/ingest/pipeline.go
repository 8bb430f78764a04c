// Package ingest turns markdown blobs into persisted chunks, tags, entities
// and embeddings.
package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/notegraph/notegraph/internal/bus"
	"github.com/notegraph/notegraph/internal/chunk"
	"github.com/notegraph/notegraph/internal/embed"
	"github.com/notegraph/notegraph/internal/entity"
	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/markdown"
	"github.com/notegraph/notegraph/internal/objstore"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/vector"
)

// TopicCompleted is published after every document ingestion.
const TopicCompleted = "ingestion.completed"

// DefaultMaxConcurrent bounds batch ingestion fan-out.
const DefaultMaxConcurrent = 5

// Input is one document to ingest.
type Input struct {
	Path       string
	Raw        []byte
	ETag       string
	ModifiedAt time.Time
	Force      bool
}

// Result summarizes one document ingestion.
type Result struct {
	Path          string   `json:"path"`
	Skipped       bool     `json:"skipped"`
	Reason        string   `json:"reason,omitempty"`
	Chunks        int      `json:"chunks"`
	ChunksDeleted int      `json:"chunks_deleted"`
	Tags          []string `json:"tags"`
	Embedded      int      `json:"embedded"`
	EmbedFailures int      `json:"embed_failures"`
	Entities      int      `json:"entities"`
	ChunkIDs      []string `json:"-"`
}

// BatchResult aggregates per-document outcomes.
type BatchResult struct {
	Successful int      `json:"successful"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// Pipeline wires the parsing, chunking, extraction and persistence stages.
type Pipeline struct {
	store     *store.Store
	index     *vector.Index
	embedder  embed.Embedder
	extractor *entity.Extractor
	chunker   *chunk.Chunker
	bus       *bus.Bus

	maxConcurrent int64
}

// Options configures a Pipeline.
type Options struct {
	// MaxConcurrent bounds documents in flight during batch ingestion
	// (default 5).
	MaxConcurrent int
	// MaxChunkChars overrides the paragraph-split threshold.
	MaxChunkChars int
}

// NewPipeline creates an ingestion pipeline. The bus is optional; without it
// no completion events are published.
func NewPipeline(st *store.Store, ix *vector.Index, em embed.Embedder, b *bus.Bus, opts Options) *Pipeline {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Pipeline{
		store:         st,
		index:         ix,
		embedder:      em,
		extractor:     entity.NewExtractor(),
		chunker:       chunk.NewChunkerWithOptions(chunk.ChunkerOptions{MaxChunkChars: opts.MaxChunkChars}),
		bus:           b,
		maxConcurrent: int64(opts.MaxConcurrent),
	}
}

// Ingest processes one document end to end. Per-chunk failures are logged
// and skipped; the document itself fails only on parse or file-level
// persistence errors.
func (p *Pipeline) Ingest(ctx context.Context, in Input) (*Result, error) {
	result := &Result{Path: in.Path, Tags: []string{}}

	hash := contentHash(in.Raw)

	// Unchanged content short-circuits before any write.
	if !in.Force {
		if existing, err := p.store.GetFile(ctx, in.Path); err == nil && existing.Hash == hash {
			result.Skipped = true
			result.Reason = "unchanged"
			p.publishCompleted(result)
			return result, nil
		}
	}

	doc, err := markdown.Parse(in.Raw)
	if err != nil {
		return nil, err
	}

	modifiedAt := in.ModifiedAt.UTC()
	file := &store.FileRecord{
		Path:        in.Path,
		Title:       doc.Title,
		FrontMatter: doc.FrontMatter,
		Hash:        hash,
		ETag:        in.ETag,
		Size:        int64(len(in.Raw)),
		CreatedAt:   doc.CreatedAt,
		ModifiedAt:  &modifiedAt,
	}
	if err := p.store.UpsertFile(ctx, file); err != nil {
		return nil, err
	}

	tags := TagsFromFrontMatter(doc.FrontMatter)
	result.Tags = tags

	chunks := p.chunker.Split(in.Path, doc.Body)
	keep := make([]string, 0, len(chunks))

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, ngerrors.Wrap(ngerrors.KindCancelled, "ingest "+in.Path, err)
		}

		record := &store.ChunkRecord{
			ID:         c.ID,
			Path:       c.Path,
			Heading:    c.Heading,
			Level:      c.Level,
			StartLine:  c.StartLine,
			Text:       c.Text,
			Hash:       hash,
			CreatedAt:  doc.CreatedAt,
			ModifiedAt: &modifiedAt,
		}
		if err := p.store.UpsertChunk(ctx, record); err != nil {
			slog.Error("chunk upsert failed, skipping",
				slog.String("path", in.Path),
				slog.Int("start_line", c.StartLine),
				slog.String("error", err.Error()))
			continue
		}
		keep = append(keep, c.ID)
		result.Chunks++

		if err := p.store.ReplaceChunkTags(ctx, c.ID, tags); err != nil {
			slog.Error("tag replace failed",
				slog.String("chunk", c.ID), slog.String("error", err.Error()))
		}

		result.Entities += p.extractEntities(ctx, c)

		if p.embedChunk(ctx, c, doc, tags) {
			result.Embedded++
		} else {
			result.EmbedFailures++
		}
	}
	result.ChunkIDs = keep

	deleted, err := p.store.DeleteChunksExcept(ctx, in.Path, keep)
	if err != nil {
		slog.Error("stale chunk cleanup failed",
			slog.String("path", in.Path), slog.String("error", err.Error()))
	} else if len(deleted) > 0 {
		result.ChunksDeleted = len(deleted)
		// The cascade removed the embedding rows with the chunks; the
		// in-memory index needs its own eviction.
		p.index.Delete(deleted...)
	}

	p.publishCompleted(result)
	return result, nil
}

// extractEntities persists the entity mentions of one chunk.
func (p *Pipeline) extractEntities(ctx context.Context, c chunk.Chunk) int {
	entities := p.extractor.Extract(c.Text)
	if len(entities) == 0 {
		if err := p.store.ReplaceMentions(ctx, c.ID, nil); err != nil {
			slog.Error("mention clear failed", slog.String("chunk", c.ID), slog.String("error", err.Error()))
		}
		return 0
	}

	mentions := make([]store.MentionRecord, 0, len(entities))
	for _, e := range entities {
		id, err := p.store.UpsertEntity(ctx, e.Text, e.Label, e.Confidence)
		if err != nil {
			slog.Error("entity upsert failed",
				slog.String("text", e.Text), slog.String("error", err.Error()))
			continue
		}
		mentions = append(mentions, store.MentionRecord{
			ChunkID:    c.ID,
			EntityID:   id,
			StartPos:   e.Start,
			EndPos:     e.End,
			Confidence: e.Confidence,
		})
	}
	if err := p.store.ReplaceMentions(ctx, c.ID, mentions); err != nil {
		slog.Error("mention replace failed", slog.String("chunk", c.ID), slog.String("error", err.Error()))
		return 0
	}
	return len(mentions)
}

// embedChunk computes and persists one chunk embedding. A single embedding
// failure never aborts the document.
func (p *Pipeline) embedChunk(ctx context.Context, c chunk.Chunk, doc *markdown.Document, tags []string) bool {
	vec, err := p.embedder.Embed(ctx, c.Text)
	if err != nil {
		slog.Warn("embedding failed, skipping chunk",
			slog.String("chunk", c.ID), slog.String("error", err.Error()))
		return false
	}

	md := vector.Metadata{
		Path:        c.Path,
		Title:       doc.Title,
		Heading:     c.Heading,
		Level:       c.Level,
		Tags:        tags,
		FrontMatter: doc.FrontMatter,
	}
	if err := p.index.Add(ctx, c.ID, vec, md); err != nil {
		slog.Warn("vector index add failed",
			slog.String("chunk", c.ID), slog.String("error", err.Error()))
		return false
	}

	err = p.store.SaveEmbedding(ctx, &store.EmbeddingRecord{
		ChunkID: c.ID,
		Vector:  vec,
		Metadata: map[string]any{
			"path":    c.Path,
			"title":   doc.Title,
			"heading": c.Heading,
			"level":   c.Level,
			"tags":    tags,
		},
	})
	if err != nil {
		slog.Warn("embedding persist failed",
			slog.String("chunk", c.ID), slog.String("error", err.Error()))
		return false
	}
	return true
}

// IngestBatch fans out over documents with bounded concurrency. Per-document
// failures are aggregated, never propagated.
func (p *Pipeline) IngestBatch(ctx context.Context, inputs []Input) (*BatchResult, []*Result) {
	sem := semaphore.NewWeighted(p.maxConcurrent)
	batch := &BatchResult{}
	results := make([]*Result, len(inputs))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, in := range inputs {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			batch.Failed++
			batch.Errors = append(batch.Errors, in.Path+": "+err.Error())
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(i int, in Input) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := p.Ingest(ctx, in)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				batch.Failed++
				batch.Errors = append(batch.Errors, in.Path+": "+err.Error())
			case res.Skipped:
				batch.Skipped++
				results[i] = res
			default:
				batch.Successful++
				results[i] = res
			}
		}(i, in)
	}
	wg.Wait()

	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return batch, out
}

// Sync ingests every object under prefix from the object store.
func (p *Pipeline) Sync(ctx context.Context, src objstore.Store, prefix string, force bool) (*BatchResult, []*Result, error) {
	objects, err := src.List(ctx, prefix)
	if err != nil {
		return nil, nil, err
	}

	inputs := make([]Input, 0, len(objects))
	for _, obj := range objects {
		raw, etag, err := src.Get(ctx, obj.Name)
		if err != nil {
			slog.Error("object fetch failed",
				slog.String("name", obj.Name), slog.String("error", err.Error()))
			continue
		}
		inputs = append(inputs, Input{
			Path:       obj.Name,
			Raw:        raw,
			ETag:       etag,
			ModifiedAt: obj.Updated,
			Force:      force,
		})
	}

	batch, results := p.IngestBatch(ctx, inputs)
	return batch, results, nil
}

func (p *Pipeline) publishCompleted(result *Result) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(TopicCompleted, map[string]any{
		"path":    result.Path,
		"skipped": result.Skipped,
		"chunks":  result.Chunks,
		"tags":    result.Tags,
	}, bus.WithSource("ingestion"))
}

// contentHash fingerprints raw document bytes.
func contentHash(raw []byte) string {
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}
