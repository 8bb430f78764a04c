package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/notegraph/notegraph/internal/agent"
	"github.com/notegraph/notegraph/internal/bus"
	"github.com/notegraph/notegraph/internal/config"
	"github.com/notegraph/notegraph/internal/embed"
	"github.com/notegraph/notegraph/internal/entity"
	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/ingest"
	"github.com/notegraph/notegraph/internal/link"
	"github.com/notegraph/notegraph/internal/objstore"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/synthesis"
	"github.com/notegraph/notegraph/internal/vector"
	"github.com/notegraph/notegraph/internal/workflow"
)

// app wires the engine components for one CLI invocation.
type app struct {
	cfg       *config.Config
	store     *store.Store
	index     *vector.Index
	embedder  embed.Embedder
	source    objstore.Store
	bus       *bus.Bus
	busCancel context.CancelFunc
	pipeline  *ingest.Pipeline
	searcher  *search.Searcher
	linker    *link.Engine
	assembler *synthesis.Assembler
	workflows *workflow.Engine
	agents    *agent.Registry
}

// openApp loads configuration and opens the persistent backends. With
// withBus set, the message bus, agents, and workflow engine come up too.
func openApp(ctx context.Context, withBus bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg)

	if err := os.MkdirAll(cfg.Paths.Data, 0o755); err != nil {
		return nil, ngerrors.Wrap(ngerrors.KindDependency, "create data dir", err)
	}

	st, err := store.Open(cfg.IndexPath())
	if err != nil {
		return nil, err
	}

	em := embed.Embedder(embed.NewStaticEmbedder(cfg.Embed.Dimensions))
	if cfg.Embed.CacheSize > 0 {
		em = embed.NewCachedEmbedder(em, cfg.Embed.CacheSize)
	}

	ix, err := vector.Load(cfg.VectorPath(), cfg.Embed.Dimensions)
	if err != nil {
		ix = vector.New(cfg.Embed.Dimensions)
		if err := hydrateIndex(ctx, st, ix); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	a := &app{
		cfg:      cfg,
		store:    st,
		index:    ix,
		embedder: em,
		source:   objstore.NewFSStore(cfg.Paths.Corpus),
	}

	if withBus {
		a.bus = bus.New()
		busCtx, cancel := context.WithCancel(context.Background())
		a.busCancel = cancel
		a.bus.Start(busCtx)
	}

	a.pipeline = ingest.NewPipeline(st, ix, em, a.bus, ingest.Options{
		MaxConcurrent: cfg.Ingest.MaxConcurrent,
		MaxChunkChars: cfg.Ingest.ChunkSize,
	})
	a.searcher = search.NewSearcher(st, ix, em, search.Config{
		TopK:         cfg.Search.TopK,
		RerankTopK:   cfg.Search.RerankTopK,
		CandidateCap: cfg.Search.CandidateCap,
		MaxHops:      cfg.Search.MaxHops,
	})
	a.linker = link.NewEngine(st, ix, link.Config{
		MaxLinks:        cfg.Linking.MaxLinks,
		Threshold:       cfg.Linking.Threshold,
		SuggestionFloor: cfg.Linking.SuggestionFloor,
		MaxHops:         cfg.Search.MaxHops,
		MaxNodes:        cfg.Linking.MaxNodes,
	})
	a.assembler = synthesis.NewAssembler(st, a.searcher, a.linker)

	if withBus {
		a.workflows = workflow.NewEngine(st, a.bus)
		a.agents = agent.NewRegistry(a.bus, agent.Options{
			Store:     st,
			Source:    a.source,
			Pipeline:  a.pipeline,
			Extractor: entity.NewExtractor(),
			Linker:    a.linker,
			Assembler: a.assembler,
			Searcher:  a.searcher,
		})
		a.agents.Start()
	}
	return a, nil
}

// hydrateIndex rebuilds the in-memory vector index from stored embeddings.
func hydrateIndex(ctx context.Context, st *store.Store, ix *vector.Index) error {
	count := 0
	err := st.AllEmbeddings(ctx, func(e *store.EmbeddingRecord) error {
		md := vector.Metadata{}
		if v, ok := e.Metadata["path"].(string); ok {
			md.Path = v
		}
		if v, ok := e.Metadata["title"].(string); ok {
			md.Title = v
		}
		if v, ok := e.Metadata["heading"].(string); ok {
			md.Heading = v
		}
		if v, ok := e.Metadata["level"].(float64); ok {
			md.Level = int(v)
		}
		if raw, ok := e.Metadata["tags"].([]any); ok {
			for _, t := range raw {
				if s, ok := t.(string); ok {
					md.Tags = append(md.Tags, s)
				}
			}
		}
		if err := ix.Add(ctx, e.ChunkID, e.Vector, md); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	if count > 0 {
		slog.Debug("vector index rebuilt", slog.Int("vectors", count))
	}
	return nil
}

// close flushes the vector snapshot and releases every backend.
func (a *app) close() {
	if a.agents != nil {
		a.agents.Stop()
	}
	if a.workflows != nil {
		a.workflows.Shutdown()
	}
	if a.bus != nil {
		a.busCancel()
		a.bus.Stop()
	}
	if err := a.index.Save(a.cfg.VectorPath()); err != nil {
		slog.Warn("vector snapshot save failed", slog.String("error", err.Error()))
	}
	if err := a.embedder.Close(); err != nil {
		slog.Warn("embedder close failed", slog.String("error", err.Error()))
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("store close failed", slog.String("error", err.Error()))
	}
}
