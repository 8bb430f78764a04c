package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func add(t *testing.T, ix *Index, id string, vec []float32, md Metadata) {
	t.Helper()
	require.NoError(t, ix.Add(context.Background(), id, vec, md))
}

func TestSearchRanksByCosine(t *testing.T) {
	ix := New(3)
	add(t, ix, "a", []float32{1, 0, 0}, Metadata{Path: "a.md"})
	add(t, ix, "b", []float32{0.9, 0.1, 0}, Metadata{Path: "b.md"})
	add(t, ix, "c", []float32{0, 0, 1}, Metadata{Path: "c.md"})

	got, err := ix.Search(context.Background(), []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Greater(t, got[0].Score, got[1].Score)
	assert.InDelta(t, 1.0, got[0].Score, 1e-5)
}

func TestSearchFilter(t *testing.T) {
	ix := New(2)
	add(t, ix, "work", []float32{1, 0}, Metadata{Path: "work/a.md", Tags: []string{"ai"}})
	add(t, ix, "personal", []float32{1, 0.01}, Metadata{Path: "personal/b.md"})

	got, err := ix.Search(context.Background(), []float32{1, 0}, 5, func(id string, md Metadata) bool {
		return len(md.Tags) > 0
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "work", got[0].ID)
}

func TestSearchDimensionMismatch(t *testing.T) {
	ix := New(3)
	_, err := ix.Search(context.Background(), []float32{1, 0}, 5, nil)
	assert.Error(t, err)

	assert.Error(t, ix.Add(context.Background(), "x", []float32{1}, Metadata{}))
}

func TestSearchEmptyIndex(t *testing.T) {
	ix := New(2)
	got, err := ix.Search(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAddReplacesExisting(t *testing.T) {
	ix := New(2)
	add(t, ix, "a", []float32{1, 0}, Metadata{})
	add(t, ix, "a", []float32{0, 1}, Metadata{})

	assert.Equal(t, 1, ix.Count())

	got, err := ix.Search(context.Background(), []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-5)
}

func TestDeleteExcludesFromResults(t *testing.T) {
	ix := New(2)
	add(t, ix, "a", []float32{1, 0}, Metadata{})
	add(t, ix, "b", []float32{0.9, 0.1}, Metadata{})

	ix.Delete("a")
	assert.False(t, ix.Contains("a"))
	assert.Equal(t, 1, ix.Count())

	got, err := ix.Search(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestSimilarToExcludesSelfAndThreshold(t *testing.T) {
	ix := New(2)
	add(t, ix, "a", []float32{1, 0}, Metadata{})
	add(t, ix, "close", []float32{0.95, 0.05}, Metadata{})
	add(t, ix, "far", []float32{0, 1}, Metadata{})

	got, err := ix.SimilarTo(context.Background(), "a", 5, 0.7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "close", got[0].ID)

	_, err = ix.SimilarTo(context.Background(), "missing", 5, 0.7)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	ix := New(2)
	add(t, ix, "a", []float32{1, 0}, Metadata{Path: "a.md", Heading: "Intro"})
	add(t, ix, "b", []float32{0, 1}, Metadata{Path: "b.md"})
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())

	md, ok := loaded.MetadataFor("a")
	require.True(t, ok)
	assert.Equal(t, "Intro", md.Heading)

	got, err := loaded.Search(context.Background(), []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestSaveReturnsNilInterfaceOnSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	ix := New(2)
	add(t, ix, "a", []float32{1, 0}, Metadata{Path: "a.md"})

	err := ix.Save(path)
	// A clean save must yield a nil interface, not a typed nil that
	// callers would log or dereference.
	assert.True(t, err == nil)
}

func TestLoadMissingFileYieldsEmpty(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "none.hnsw"), 4)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Count())
	assert.Equal(t, 4, loaded.Dimensions())
}
