// Package vector maintains the in-memory cosine similarity index over chunk
// embeddings, backed by coder/hnsw.
package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
)

// Metadata is the sidecar record carried with every chunk vector, used for
// post-hoc filter predicates.
type Metadata struct {
	Path        string
	Title       string
	Heading     string
	Level       int
	Tags        []string
	FrontMatter map[string]any
}

// Result is one similarity hit.
type Result struct {
	ID    string
	Score float64
}

// Filter is a metadata predicate applied to search results.
type Filter func(id string, md Metadata) bool

// Index is an HNSW-backed cosine top-k index with string ids.
type Index struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	vectors map[string][]float32
	meta    map[string]Metadata
	nextKey uint64
}

// New creates an empty index for vectors of the given dimension.
func New(dimensions int) *Index {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &Index{
		graph:      graph,
		dimensions: dimensions,
		idMap:      map[string]uint64{},
		keyMap:     map[uint64]string{},
		vectors:    map[string][]float32{},
		meta:       map[string]Metadata{},
	}
}

// Dimensions returns the configured vector dimension.
func (ix *Index) Dimensions() int { return ix.dimensions }

// Add inserts or replaces the vector for a chunk id.
func (ix *Index) Add(ctx context.Context, id string, vec []float32, md Metadata) error {
	if len(vec) != ix.dimensions {
		return ngerrors.Newf(ngerrors.KindInvalidInput,
			"dimension mismatch: expected %d, got %d", ix.dimensions, len(vec))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Lazy replacement: orphan the old graph node instead of deleting it,
	// deleting the last node breaks coder/hnsw.
	if oldKey, exists := ix.idMap[id]; exists {
		delete(ix.keyMap, oldKey)
		delete(ix.idMap, id)
	}

	key := ix.nextKey
	ix.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	ix.graph.Add(hnsw.MakeNode(key, normalized))
	ix.idMap[id] = key
	ix.keyMap[key] = id
	ix.vectors[id] = normalized
	ix.meta[id] = md

	return nil
}

// Delete removes chunk ids from the index. Graph nodes are orphaned lazily.
func (ix *Index) Delete(ids ...string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, id := range ids {
		if key, exists := ix.idMap[id]; exists {
			delete(ix.keyMap, key)
			delete(ix.idMap, id)
			delete(ix.vectors, id)
			delete(ix.meta, id)
		}
	}
}

// Count returns the number of live vectors.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.idMap)
}

// Contains reports whether a chunk id is indexed.
func (ix *Index) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.idMap[id]
	return ok
}

// Vector returns the stored (normalized) vector for a chunk id.
func (ix *Index) Vector(id string) ([]float32, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	v, ok := ix.vectors[id]
	return v, ok
}

// MetadataFor returns the metadata sidecar of a chunk id.
func (ix *Index) MetadataFor(id string) (Metadata, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	md, ok := ix.meta[id]
	return md, ok
}

// Search returns the top-k results by cosine similarity, optionally filtered
// by a metadata predicate. Scores are in [0,1], best first.
func (ix *Index) Search(ctx context.Context, query []float32, k int, filter Filter) ([]Result, error) {
	if len(query) != ix.dimensions {
		return nil, ngerrors.Newf(ngerrors.KindInvalidInput,
			"dimension mismatch: expected %d, got %d", ix.dimensions, len(query))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Result{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph.Len() == 0 {
		return []Result{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to survive orphaned nodes and filter misses.
	fetch := k * 4
	if fetch < 16 {
		fetch = 16
	}
	nodes := ix.graph.Search(normalized, fetch)

	results := make([]Result, 0, k)
	for _, node := range nodes {
		id, live := ix.keyMap[node.Key]
		if !live {
			continue
		}
		if filter != nil && !filter(id, ix.meta[id]) {
			continue
		}
		score := 1 - float64(ix.graph.Distance(normalized, node.Value))
		results = append(results, Result{ID: id, Score: score})
		if len(results) == k {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// SimilarTo returns up to k chunks similar to an indexed chunk, excluding the
// chunk itself, keeping only scores at or above threshold.
func (ix *Index) SimilarTo(ctx context.Context, id string, k int, threshold float64) ([]Result, error) {
	vec, ok := ix.Vector(id)
	if !ok {
		return nil, ngerrors.New(ngerrors.KindNotFound, fmt.Sprintf("vector for chunk %s", id))
	}

	hits, err := ix.Search(ctx, vec, k+1, nil)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, k)
	for _, hit := range hits {
		if hit.ID == id || hit.Score < threshold {
			continue
		}
		results = append(results, hit)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// snapshot is the on-disk representation.
type snapshot struct {
	Dimensions int
	Entries    []snapshotEntry
}

type snapshotEntry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Save persists the index atomically (temp file + rename).
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	snap := snapshot{Dimensions: ix.dimensions}
	for id, vec := range ix.vectors {
		snap.Entries = append(snap.Entries, snapshotEntry{ID: id, Vector: vec, Metadata: ix.meta[id]})
	}
	ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ngerrors.Wrap(ngerrors.KindDependency, "create index directory", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return ngerrors.Wrap(ngerrors.KindDependency, "create index file", err)
	}

	w := bufio.NewWriter(file)
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return ngerrors.Wrap(ngerrors.KindDependency, "encode index", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmp)
		return ngerrors.Wrap(ngerrors.KindDependency, "flush index", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return ngerrors.Wrap(ngerrors.KindDependency, "close index file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ngerrors.Wrap(ngerrors.KindDependency, "rename index file", err)
	}
	return nil
}

// Load restores an index saved with Save. A missing file yields an empty
// index.
func Load(path string, dimensions int) (*Index, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(dimensions), nil
	}
	if err != nil {
		return nil, ngerrors.Wrap(ngerrors.KindDependency, "open index file", err)
	}
	defer file.Close()

	var snap snapshot
	if err := gob.NewDecoder(bufio.NewReader(file)).Decode(&snap); err != nil {
		return nil, ngerrors.Wrap(ngerrors.KindDependency, "decode index", err)
	}
	if snap.Dimensions != dimensions {
		// Dimension change means the model changed; start fresh.
		return New(dimensions), nil
	}

	ix := New(dimensions)
	for _, e := range snap.Entries {
		if err := ix.Add(context.Background(), e.ID, e.Vector, e.Metadata); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	mag := math.Sqrt(sum)
	if mag == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / mag)
	}
}
