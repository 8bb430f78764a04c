package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUpsertFile(t *testing.T, s *Store, path string, created *time.Time) {
	t.Helper()
	require.NoError(t, s.UpsertFile(context.Background(), &FileRecord{
		Path:      path,
		Title:     path,
		Hash:      "hash-" + path,
		CreatedAt: created,
	}))
}

func mustUpsertChunk(t *testing.T, s *Store, id, path, text string, created *time.Time) {
	t.Helper()
	require.NoError(t, s.UpsertChunk(context.Background(), &ChunkRecord{
		ID:        id,
		Path:      path,
		StartLine: 1,
		Text:      text,
		CreatedAt: created,
	}))
}

func tp(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestFileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := tp(2024, 3, 15)
	require.NoError(t, s.UpsertFile(ctx, &FileRecord{
		Path:        "notes/a.md",
		Title:       "Note A",
		FrontMatter: map[string]any{"title": "Note A"},
		Hash:        "abc",
		ETag:        "e1",
		Size:        42,
		CreatedAt:   created,
	}))

	f, err := s.GetFile(ctx, "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "Note A", f.Title)
	assert.Equal(t, "abc", f.Hash)
	require.NotNil(t, f.CreatedAt)
	assert.Equal(t, *created, *f.CreatedAt)

	// Upsert replaces by path.
	require.NoError(t, s.UpsertFile(ctx, &FileRecord{Path: "notes/a.md", Hash: "def"}))
	f, err = s.GetFile(ctx, "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "def", f.Hash)

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"notes/a.md": "def"}, files)
}

func TestGetFileNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFile(context.Background(), "missing.md")
	assert.Error(t, err)
}

func TestTagFilterAndVsOr(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUpsertFile(t, s, "n.md", nil)
	mustUpsertChunk(t, s, "c1", "n.md", "one", nil)
	mustUpsertChunk(t, s, "c2", "n.md", "two", nil)
	mustUpsertChunk(t, s, "c3", "n.md", "three", nil)
	require.NoError(t, s.ReplaceChunkTags(ctx, "c1", []string{"ai"}))
	require.NoError(t, s.ReplaceChunkTags(ctx, "c2", []string{"ai", "ml"}))
	require.NoError(t, s.ReplaceChunkTags(ctx, "c3", []string{"ml"}))

	all, err := s.FetchCandidates(ctx, FilterSpec{Tags: []string{"ai", "ml"}, RequireAll: true}, DateFieldAuto, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "c2", all[0].ID)

	any, err := s.FetchCandidates(ctx, FilterSpec{Tags: []string{"ai", "ml"}}, DateFieldAuto, 0)
	require.NoError(t, err)
	assert.Len(t, any, 3)
}

func TestReplaceChunkTagsIsAtomicSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUpsertFile(t, s, "n.md", nil)
	mustUpsertChunk(t, s, "c1", "n.md", "text", nil)

	require.NoError(t, s.ReplaceChunkTags(ctx, "c1", []string{"old", "stale"}))
	require.NoError(t, s.ReplaceChunkTags(ctx, "c1", []string{"fresh"}))

	tags, err := s.TagsForChunk(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, tags)
}

func TestCandidateDateWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUpsertFile(t, s, "n.md", nil)
	mustUpsertChunk(t, s, "old", "n.md", "old", tp(2023, 1, 10))
	mustUpsertChunk(t, s, "mid", "n.md", "mid", tp(2024, 6, 10))
	mustUpsertChunk(t, s, "new", "n.md", "new", tp(2025, 2, 10))

	got, err := s.FetchCandidates(ctx, FilterSpec{
		Since: tp(2024, 1, 1),
		Until: tp(2025, 1, 1),
	}, DateFieldCreated, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mid", got[0].ID)
}

func TestCandidatePathPrefixAndCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUpsertFile(t, s, "work/a.md", nil)
	mustUpsertFile(t, s, "personal/b.md", nil)
	mustUpsertChunk(t, s, "c1", "work/a.md", "one", nil)
	mustUpsertChunk(t, s, "c2", "work/a.md", "two", nil)
	mustUpsertChunk(t, s, "c3", "personal/b.md", "three", nil)

	got, err := s.FetchCandidates(ctx, FilterSpec{PathPrefix: "work/"}, DateFieldAuto, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	capped, err := s.FetchCandidates(ctx, FilterSpec{}, DateFieldAuto, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestFetchFacets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUpsertFile(t, s, "n.md", nil)
	mustUpsertChunk(t, s, "c1", "n.md", "one", tp(2024, 6, 1))
	mustUpsertChunk(t, s, "c2", "n.md", "two", tp(2024, 6, 20))
	mustUpsertChunk(t, s, "c3", "n.md", "three", tp(2024, 7, 3))
	require.NoError(t, s.ReplaceChunkTags(ctx, "c1", []string{"ai"}))
	require.NoError(t, s.ReplaceChunkTags(ctx, "c2", []string{"ai", "ml"}))
	require.NoError(t, s.ReplaceChunkTags(ctx, "c3", []string{"ml"}))

	facets, err := s.FetchFacets(ctx, nil, nil, "")
	require.NoError(t, err)

	require.NotEmpty(t, facets.TopTags)
	assert.Equal(t, TagCount{Tag: "ai", Count: 2}, facets.TopTags[0])

	require.Len(t, facets.TimeHistogram, 2)
	// Most recent bucket first.
	assert.Equal(t, TimeBucket{Bucket: "2024-07", Count: 1}, facets.TimeHistogram[0])
	assert.Equal(t, TimeBucket{Bucket: "2024-06", Count: 2}, facets.TimeHistogram[1])
}

func TestDeleteChunksExcept(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUpsertFile(t, s, "n.md", nil)
	mustUpsertChunk(t, s, "keep", "n.md", "keep", nil)
	mustUpsertChunk(t, s, "drop", "n.md", "drop", nil)

	deleted, err := s.DeleteChunksExcept(ctx, "n.md", []string{"keep"})
	require.NoError(t, err)
	assert.Equal(t, []string{"drop"}, deleted)

	ids, err := s.ChunkIDsForPath(ctx, "n.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)
}

func TestDeleteFileCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustUpsertFile(t, s, "n.md", nil)
	mustUpsertChunk(t, s, "c1", "n.md", "text", nil)
	require.NoError(t, s.ReplaceChunkTags(ctx, "c1", []string{"ai"}))
	require.NoError(t, s.SaveEmbedding(ctx, &EmbeddingRecord{ChunkID: "c1", Vector: []float32{1, 0}}))

	require.NoError(t, s.DeleteFile(ctx, "n.md"))

	_, err := s.GetChunk(ctx, "c1")
	assert.Error(t, err)
	_, err = s.GetEmbedding(ctx, "c1")
	assert.Error(t, err)
}
