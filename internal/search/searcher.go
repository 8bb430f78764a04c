package search

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/notegraph/notegraph/internal/embed"
	"github.com/notegraph/notegraph/internal/entity"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/vector"
)

// Defaults for the retriever.
const (
	DefaultTopK         = 20
	DefaultRerankTopK   = 10
	DefaultCandidateCap = 1000
	DefaultMaxHops      = 3
	DefaultMaxStarts    = 5

	// recencyHorizonDays is the linear decay horizon for recency scoring.
	recencyHorizonDays = 365

	// graphDepthDecay discounts graph-walk scores per hop.
	graphDepthDecay = 0.85
)

// Config tunes the searcher.
type Config struct {
	TopK         int
	RerankTopK   int
	CandidateCap int
	MaxHops      int
	MaxStarts    int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = DefaultRerankTopK
	}
	if c.CandidateCap <= 0 {
		c.CandidateCap = DefaultCandidateCap
	}
	if c.MaxHops <= 0 {
		c.MaxHops = DefaultMaxHops
	}
	if c.MaxStarts <= 0 {
		c.MaxStarts = DefaultMaxStarts
	}
	return c
}

// Searcher plans and executes retrieval over the chunk store, vector index,
// and link graph.
type Searcher struct {
	store     *store.Store
	index     *vector.Index
	embedder  embed.Embedder
	extractor *entity.Extractor
	config    Config
}

// NewSearcher creates a searcher over the given backends.
func NewSearcher(st *store.Store, ix *vector.Index, em embed.Embedder, cfg Config) *Searcher {
	return &Searcher{
		store:     st,
		index:     ix,
		embedder:  em,
		extractor: entity.NewExtractor(),
		config:    cfg.withDefaults(),
	}
}

// Sort orders for results.
const (
	SortScore    = "score"
	SortDateDesc = "date_desc"
	SortDateAsc  = "date_asc"
)

// Request is one retrieval call.
type Request struct {
	Query          string
	K              int
	Tags           []string
	RequireAllTags bool
	Since          string
	Until          string
	DateField      store.DateField
	PathPrefix     string
	Sort           string

	// Preference flags upgrade single-mode strategies to hybrid.
	PreferSemantic bool
	PreferGraph    bool
}

// Result is one ranked chunk.
type Result struct {
	ID        string             `json:"id"`
	Path      string             `json:"path"`
	Heading   string             `json:"heading,omitempty"`
	StartLine int                `json:"start_line"`
	Score     float64            `json:"score"`
	Signals   map[string]float64 `json:"signals"`
	Snippet   string             `json:"snippet"`
	Date      *time.Time         `json:"date,omitempty"`
}

// Response is the retrieval output contract.
type Response struct {
	Query           string         `json:"query"`
	Class           QueryClass     `json:"query_type"`
	Strategy        Strategy       `json:"strategy"`
	AppliedFilters  map[string]any `json:"applied_filters"`
	TotalCandidates int            `json:"total_candidates"`
	Results         []Result       `json:"results"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// Search classifies the query, selects a strategy, and returns at most
// rerank-K ranked chunks.
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	class := Classify(req.Query)
	strategy := StrategyFor(class, req.PreferSemantic, req.PreferGraph)

	filter, applied, err := s.buildFilter(req)
	if err != nil {
		return nil, err
	}

	dateField := req.DateField
	if dateField == "" {
		dateField = store.DateFieldAuto
	}

	candidates, err := s.store.FetchCandidates(ctx, filter, dateField, s.config.CandidateCap)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Query:           req.Query,
		Class:           class,
		Strategy:        strategy,
		AppliedFilters:  applied,
		TotalCandidates: len(candidates),
		GeneratedAt:     time.Now().UTC(),
	}
	if len(candidates) == 0 {
		resp.Results = []Result{}
		return resp, nil
	}

	byID := make(map[string]*store.ChunkRecord, len(candidates))
	texts := make([]string, len(candidates))
	docIndex := make(map[string]int, len(candidates))
	for i, c := range candidates {
		byID[c.ID] = c
		texts[i] = c.Text
		docIndex[c.ID] = i
	}
	ranker := newBM25(texts)
	queryTokens := tokenize(req.Query)

	var vectorScores, graphScores map[string]float64
	switch strategy {
	case StrategyVector:
		vectorScores = s.vectorScores(ctx, req.Query, byID)
	case StrategyGraph:
		graphScores = s.graphScores(ctx, req.Query, byID)
	case StrategyHybrid:
		vectorScores = s.vectorScores(ctx, req.Query, byID)
		graphScores = s.graphScores(ctx, req.Query, byID)
	}

	now := time.Now().UTC()
	maxHub, err := s.store.MaxHub(ctx)
	if err != nil {
		maxHub = 0
	}

	var headingRanker *bm25
	var bestHeading float64
	if strategy == StrategyHierarchical {
		headings := make([]string, len(candidates))
		for i, c := range candidates {
			headings[i] = c.Heading
		}
		headingRanker = newBM25(headings)
		for i := range headings {
			if sc := headingRanker.score(i, queryTokens); sc > bestHeading {
				bestHeading = sc
			}
		}
	}

	var results []Result
	for _, c := range candidates {
		lexical := ranker.score(docIndex[c.ID], queryTokens)
		signals := map[string]float64{"bm25": lexical}

		var score float64
		switch strategy {
		case StrategyVector:
			score = vectorScores[c.ID]
			signals["vector"] = score
			if score == 0 && lexical == 0 {
				continue
			}
		case StrategyGraph:
			score = graphScores[c.ID]
			signals["graph"] = score
			if score == 0 {
				continue
			}
		case StrategyHybrid:
			v := vectorScores[c.ID]
			g := graphScores[c.ID]
			// Candidates with graph evidence survive without lexical
			// overlap; pure vector noise does not.
			if g == 0 && lexical == 0 {
				continue
			}
			recency := recencyScore(c.Date(), now)
			hub := normalizedHub(c.Hub, maxHub)
			score = 0.4*v + 0.3*g + 0.2*recency + 0.1*hub
			signals["vector"] = v
			signals["graph"] = g
			signals["recency"] = recency
			signals["hub"] = hub
		case StrategyTemporal:
			if c.Date() == nil {
				continue
			}
			score = recencyScore(c.Date(), now)
			signals["recency"] = score
		case StrategyHierarchical:
			if lexical == 0 {
				continue
			}
			headingRel := 0.0
			if bestHeading > 0 {
				headingRel = headingRanker.score(docIndex[c.ID], queryTokens) / bestHeading
			}
			score = 0.7*levelPrior(c.Level) + 0.3*headingRel
			signals["hierarchy"] = levelPrior(c.Level)
			signals["heading"] = headingRel
		}

		results = append(results, Result{
			ID:        c.ID,
			Path:      c.Path,
			Heading:   c.Heading,
			StartLine: c.StartLine,
			Score:     score,
			Signals:   signals,
			Snippet:   Snippet(c.Text),
			Date:      c.Date(),
		})
	}

	orderResults(results, strategy, req.Sort)

	k := req.K
	if k <= 0 || k > s.config.RerankTopK {
		k = s.config.RerankTopK
	}
	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []Result{}
	}
	resp.Results = results
	return resp, nil
}

// buildFilter converts request filters into a store FilterSpec plus the
// echo map for the response.
func (s *Searcher) buildFilter(req Request) (store.FilterSpec, map[string]any, error) {
	filter := store.FilterSpec{
		Tags:       req.Tags,
		RequireAll: req.RequireAllTags,
		PathPrefix: req.PathPrefix,
	}
	applied := map[string]any{}
	if len(req.Tags) > 0 {
		applied["tags"] = req.Tags
		applied["require_all_tags"] = req.RequireAllTags
	}
	if req.PathPrefix != "" {
		applied["path_prefix"] = req.PathPrefix
	}

	now := time.Now().UTC()
	if req.Since != "" {
		t, err := ParseTimeSpec(req.Since, now)
		if err != nil {
			return filter, nil, err
		}
		filter.Since = &t
		applied["since"] = t.Format(time.RFC3339)
	}
	if req.Until != "" {
		t, err := ParseTimeSpec(req.Until, now)
		if err != nil {
			return filter, nil, err
		}
		filter.Until = &t
		applied["until"] = t.Format(time.RFC3339)
	}
	return filter, applied, nil
}

// vectorScores embeds the query and collects cosine scores for candidates.
func (s *Searcher) vectorScores(ctx context.Context, query string, allowed map[string]*store.ChunkRecord) map[string]float64 {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("query embedding failed", slog.String("error", err.Error()))
		return nil
	}

	hits, err := s.index.Search(ctx, vec, s.config.TopK, func(id string, _ vector.Metadata) bool {
		_, ok := allowed[id]
		return ok
	})
	if err != nil {
		slog.Warn("vector search failed", slog.String("error", err.Error()))
		return nil
	}

	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		scores[hit.ID] = hit.Score
	}
	return scores
}

// graphScores extracts entities from the query, resolves them to starting
// chunks, and walks the link graph. Each visited chunk scores
// confidence product of the path times a per-hop decay; duplicates keep the
// max.
func (s *Searcher) graphScores(ctx context.Context, query string, allowed map[string]*store.ChunkRecord) map[string]float64 {
	var starts []string
	seen := map[string]bool{}
	for _, ent := range s.extractor.Extract(query) {
		mentions, err := s.store.ChunksMentioning(ctx, ent.Text, "")
		if err != nil {
			continue
		}
		for _, m := range mentions {
			if seen[m.ChunkID] {
				continue
			}
			seen[m.ChunkID] = true
			starts = append(starts, m.ChunkID)
			if len(starts) == s.config.MaxStarts {
				break
			}
		}
		if len(starts) == s.config.MaxStarts {
			break
		}
	}
	if len(starts) == 0 {
		return nil
	}

	scores := map[string]float64{}
	type node struct {
		id      string
		depth   int
		product float64
	}
	frontier := make([]node, 0, len(starts))
	for _, id := range starts {
		scores[id] = 1
		frontier = append(frontier, node{id: id, depth: 0, product: 1})
	}

	for len(frontier) > 0 {
		var next []node
		for _, n := range frontier {
			if n.depth == s.config.MaxHops {
				continue
			}
			edges, err := s.store.EdgesFrom(ctx, n.id)
			if err != nil {
				continue
			}
			for _, edge := range edges {
				product := n.product * edge.Strength
				score := product * math.Pow(graphDepthDecay, float64(n.depth+1))
				if score <= scores[edge.TargetID] {
					continue
				}
				scores[edge.TargetID] = score
				next = append(next, node{id: edge.TargetID, depth: n.depth + 1, product: product})
			}
		}
		frontier = next
	}

	for id := range scores {
		if _, ok := allowed[id]; !ok {
			delete(scores, id)
		}
	}
	return scores
}

// recencyScore decays linearly from 1 to 0 over a year since the chunk date.
func recencyScore(date *time.Time, now time.Time) float64 {
	if date == nil {
		return 0
	}
	days := now.Sub(*date).Hours() / 24
	return math.Max(0, 1-days/recencyHorizonDays)
}

// levelPrior favors higher-level sections; level 0 (no heading) counts as
// top-level.
func levelPrior(level int) float64 {
	if level > 5 {
		return 0
	}
	return float64(5-level) / 5
}

func normalizedHub(hub, maxHub int) float64 {
	if maxHub <= 0 {
		return 0
	}
	return float64(hub) / float64(maxHub)
}

// orderResults applies the strategy's native ordering, then any explicit
// sort override.
func orderResults(results []Result, strategy Strategy, sortOrder string) {
	byScore := func(i, j int) bool { return results[i].Score > results[j].Score }
	byDateAsc := func(i, j int) bool {
		di, dj := results[i].Date, results[j].Date
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.Before(*dj)
		}
	}
	byDateDesc := func(i, j int) bool {
		di, dj := results[i].Date, results[j].Date
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return dj.Before(*di)
		}
	}

	switch sortOrder {
	case SortDateAsc:
		sort.SliceStable(results, byDateAsc)
	case SortDateDesc:
		sort.SliceStable(results, byDateDesc)
	default:
		// Timelines read oldest to newest.
		if strategy == StrategyTemporal {
			sort.SliceStable(results, byDateAsc)
		} else {
			sort.SliceStable(results, byScore)
		}
	}
}
