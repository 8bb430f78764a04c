// Package link discovers, scores, and persists semantic relationships
// between chunks, and walks the resulting graph.
package link

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/vector"
)

// Relationship types, derived from combined strength.
const (
	RelSimilar    = "SIMILAR"
	RelRelated    = "RELATED"
	RelReferences = "REFERENCES"
)

// Score combination weights.
const (
	vectorWeight = 0.6
	entityWeight = 0.4
)

// Config tunes the linking engine.
type Config struct {
	// MaxLinks bounds links per chunk; the similarity query fetches
	// 2*MaxLinks candidates (default 10).
	MaxLinks int
	// Threshold is the minimum combined score for an auto edge
	// (default 0.7).
	Threshold float64
	// SuggestionFloor is the minimum combined score for a pending link
	// proposal (default 0.5).
	SuggestionFloor float64
	// MaxHops bounds graph traversal depth (default 3).
	MaxHops int
	// MaxNodes bounds graph traversal size (default 50).
	MaxNodes int
}

func (c Config) withDefaults() Config {
	if c.MaxLinks <= 0 {
		c.MaxLinks = 10
	}
	if c.Threshold == 0 {
		c.Threshold = 0.7
	}
	if c.SuggestionFloor == 0 {
		c.SuggestionFloor = 0.5
	}
	if c.MaxHops <= 0 {
		c.MaxHops = 3
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = 50
	}
	return c
}

// Engine scores candidate pairs from vector and shared-entity evidence.
type Engine struct {
	store  *store.Store
	index  *vector.Index
	config Config
}

// NewEngine creates a linking engine.
func NewEngine(st *store.Store, ix *vector.Index, cfg Config) *Engine {
	return &Engine{store: st, index: ix, config: cfg.withDefaults()}
}

// Result summarizes linking one chunk.
type Result struct {
	ChunkID string `json:"chunk_id"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Pending int    `json:"pending"`
	Failed  int    `json:"failed"`
}

// BatchResult aggregates linking across chunks.
type BatchResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// evidence accumulates per-target scoring inputs.
type evidence struct {
	vectorScore  float64
	entityScores map[string][]float64 // entity text -> mention confidences
}

// LinkChunk discovers and persists semantic links for one chunk.
func (e *Engine) LinkChunk(ctx context.Context, chunkID string) (*Result, error) {
	result := &Result{ChunkID: chunkID}
	targets := map[string]*evidence{}

	// Vector evidence: cosine neighbors at or above the auto threshold.
	sims, err := e.index.SimilarTo(ctx, chunkID, 2*e.config.MaxLinks, e.config.Threshold)
	if err != nil && !ngerrors.IsKind(err, ngerrors.KindNotFound) {
		return nil, err
	}
	for _, hit := range sims {
		ev := targets[hit.ID]
		if ev == nil {
			ev = &evidence{entityScores: map[string][]float64{}}
			targets[hit.ID] = ev
		}
		if hit.Score > ev.vectorScore {
			ev.vectorScore = hit.Score
		}
	}

	// Shared-entity evidence: other chunks mentioning the same entities.
	mentions, err := e.store.MentionsForChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	for _, m := range mentions {
		others, err := e.store.ChunksMentioning(ctx, m.Text, chunkID)
		if err != nil {
			slog.Warn("entity lookup failed",
				slog.String("entity", m.Text), slog.String("error", err.Error()))
			continue
		}
		for _, other := range others {
			ev := targets[other.ChunkID]
			if ev == nil {
				ev = &evidence{entityScores: map[string][]float64{}}
				targets[other.ChunkID] = ev
			}
			ev.entityScores[m.Text] = append(ev.entityScores[m.Text], other.Confidence)
		}
	}

	for targetID, ev := range targets {
		combined, rationale := combine(ev)
		switch {
		case combined >= e.config.Threshold:
			created, updated, err := e.persistPair(ctx, chunkID, targetID, combined, rationale)
			if err != nil {
				slog.Warn("link persist failed",
					slog.String("source", chunkID), slog.String("target", targetID),
					slog.String("error", err.Error()))
				result.Failed++
				continue
			}
			if created {
				result.Created++
			}
			if updated {
				result.Updated++
			}
		case combined >= e.config.SuggestionFloor:
			err := e.store.CreatePendingLink(ctx, &store.PendingLinkRecord{
				ID:           uuid.NewString(),
				SourceID:     chunkID,
				TargetID:     targetID,
				Relationship: RelationshipFor(combined),
				Strength:     combined,
				Rationale:    rationale,
			})
			if err != nil {
				result.Failed++
				continue
			}
			result.Pending++
		}
	}
	return result, nil
}

// LinkBatch links many chunks; single-link errors never abort the batch.
func (e *Engine) LinkBatch(ctx context.Context, chunkIDs []string) *BatchResult {
	batch := &BatchResult{}
	for _, id := range chunkIDs {
		res, err := e.LinkChunk(ctx, id)
		if err != nil {
			slog.Warn("chunk linking failed",
				slog.String("chunk", id), slog.String("error", err.Error()))
			batch.Failed++
			continue
		}
		batch.Created += res.Created
		batch.Updated += res.Updated
		batch.Pending += res.Pending
		batch.Failed += res.Failed
	}
	return batch
}

// persistPair writes the edge and its symmetric twin, then refreshes hub and
// authority metrics for both endpoints.
func (e *Engine) persistPair(ctx context.Context, sourceID, targetID string, strength float64, rationale string) (bool, bool, error) {
	rel := RelationshipFor(strength)

	created, updated, err := e.store.UpsertEdge(ctx, &store.EdgeRecord{
		SourceID:     sourceID,
		TargetID:     targetID,
		Relationship: rel,
		Strength:     strength,
		Rationale:    rationale,
		Provenance:   store.ProvenanceAuto,
	})
	if err != nil {
		return false, false, err
	}

	_, _, err = e.store.UpsertEdge(ctx, &store.EdgeRecord{
		SourceID:     targetID,
		TargetID:     sourceID,
		Relationship: rel,
		Strength:     strength,
		Rationale:    "Reverse of: " + rationale,
		Provenance:   store.ProvenanceAuto,
	})
	if err != nil {
		return created, updated, err
	}

	if err := e.store.RefreshMetrics(ctx, sourceID, targetID); err != nil {
		slog.Warn("metric refresh failed", slog.String("error", err.Error()))
	}
	return created, updated, nil
}

// ApprovePending materializes a pending link as a MANUAL edge pair.
func (e *Engine) ApprovePending(ctx context.Context, id string) error {
	p, err := e.store.GetPendingLink(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != store.PendingStatusPending {
		return ngerrors.Conflict(fmt.Sprintf("pending link %s is already %s", id, p.Status))
	}

	for _, pair := range [][2]string{{p.SourceID, p.TargetID}, {p.TargetID, p.SourceID}} {
		rationale := p.Rationale
		if pair[0] == p.TargetID {
			rationale = "Reverse of: " + p.Rationale
		}
		_, _, err := e.store.UpsertEdge(ctx, &store.EdgeRecord{
			SourceID:     pair[0],
			TargetID:     pair[1],
			Relationship: p.Relationship,
			Strength:     p.Strength,
			Rationale:    rationale,
			Provenance:   store.ProvenanceManual,
		})
		if err != nil {
			return err
		}
	}
	if err := e.store.RefreshMetrics(ctx, p.SourceID, p.TargetID); err != nil {
		slog.Warn("metric refresh failed", slog.String("error", err.Error()))
	}
	return e.store.SetPendingLinkStatus(ctx, id, store.PendingStatusApproved)
}

// RejectPending records a rejection; the row is retained for audit.
func (e *Engine) RejectPending(ctx context.Context, id string) error {
	p, err := e.store.GetPendingLink(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != store.PendingStatusPending {
		return ngerrors.Conflict(fmt.Sprintf("pending link %s is already %s", id, p.Status))
	}
	return e.store.SetPendingLinkStatus(ctx, id, store.PendingStatusRejected)
}

// RelationshipFor derives the link type from combined strength.
func RelationshipFor(strength float64) string {
	switch {
	case strength >= 0.9:
		return RelSimilar
	case strength >= 0.8:
		return RelRelated
	case strength >= 0.6:
		return RelReferences
	default:
		return RelRelated
	}
}

// combine folds the evidence into the combined score and its rationale.
func combine(ev *evidence) (float64, string) {
	var parts []string
	if ev.vectorScore > 0 {
		parts = append(parts, fmt.Sprintf("Vector similarity: %.2f", ev.vectorScore))
	}

	entityScore := 0.0
	if len(ev.entityScores) > 0 {
		names := make([]string, 0, len(ev.entityScores))
		for name := range ev.entityScores {
			names = append(names, name)
		}
		sort.Strings(names)

		var sum float64
		var n int
		for _, name := range names {
			confs := ev.entityScores[name]
			var mean float64
			for _, c := range confs {
				mean += c
			}
			mean /= float64(len(confs))
			parts = append(parts, fmt.Sprintf("Shared entity '%s': %.2f", name, mean))
			sum += mean
			n++
		}
		entityScore = sum / float64(n)
	}

	combined := vectorWeight*ev.vectorScore + entityWeight*entityScore
	return combined, strings.Join(parts, "; ")
}
