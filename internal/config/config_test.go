package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Ingest.MaxConcurrent)
	assert.Equal(t, 1200, cfg.Ingest.ChunkSize)
	assert.Equal(t, 0.7, cfg.Linking.Threshold)
	assert.Equal(t, 20, cfg.Search.TopK)
	assert.Equal(t, 10, cfg.Search.RerankTopK)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, ngerrors.IsKind(err, ngerrors.KindNotFound))
}

func TestLoadYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notegraph.yaml")
	yaml := `
search:
  top_k: 40
  rerank_top_k: 15
linking:
  threshold: 0.8
  suggestion_floor: 0.6
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Search.TopK)
	assert.Equal(t, 15, cfg.Search.RerankTopK)
	assert.Equal(t, 0.8, cfg.Linking.Threshold)
	// Untouched fields keep defaults.
	assert.Equal(t, 5, cfg.Ingest.MaxConcurrent)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: ["), 0o644))

	_, err := Load(path)
	assert.True(t, ngerrors.IsKind(err, ngerrors.KindInvalidInput))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NOTEGRAPH_MAX_CONCURRENT", "9")
	t.Setenv("NOTEGRAPH_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Ingest.MaxConcurrent)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.RerankTopK = cfg.Search.TopK + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Linking.SuggestionFloor = 0.9 // above threshold
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Ingest.MaxConcurrent = 0
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg", "notegraph.yaml")

	cfg := DefaultConfig()
	cfg.Search.TopK = 33
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 33, loaded.Search.TopK)
}
