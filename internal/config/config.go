// Package config loads and validates notegraph configuration.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file (notegraph.yaml in the data directory or the path given via
// --config), and NOTEGRAPH_* environment variables with highest priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
)

// Config represents the complete notegraph configuration.
type Config struct {
	Version int           `yaml:"version"`
	Paths   PathsConfig   `yaml:"paths"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Search  SearchConfig  `yaml:"search"`
	Linking LinkingConfig `yaml:"linking"`
	Embed   EmbedConfig   `yaml:"embeddings"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// Data is the directory holding the index database and vector store.
	Data string `yaml:"data"`
	// Corpus is the root of the markdown corpus for the filesystem object store.
	Corpus string `yaml:"corpus"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// MaxConcurrent bounds parallel document ingestion in a batch.
	MaxConcurrent int `yaml:"max_concurrent"`
	// ChunkSize is the character threshold above which a section is split
	// by paragraphs.
	ChunkSize int `yaml:"chunk_size"`
	// Watch re-ingests files when the corpus directory changes.
	Watch bool `yaml:"watch"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	// TopK is the vector search fan-out before reranking.
	TopK int `yaml:"top_k"`
	// RerankTopK is the number of results returned after reranking.
	RerankTopK int `yaml:"rerank_top_k"`
	// MaxHops bounds graph traversal depth.
	MaxHops int `yaml:"max_hops"`
	// CandidateCap bounds the filtered candidate set handed to rankers.
	CandidateCap int `yaml:"candidate_cap"`
}

// LinkingConfig configures the linking engine.
type LinkingConfig struct {
	// Threshold is the minimum combined score for an automatic link.
	Threshold float64 `yaml:"threshold"`
	// SuggestionFloor is the minimum combined score for a pending link
	// proposal below the automatic threshold.
	SuggestionFloor float64 `yaml:"suggestion_floor"`
	// MaxLinks bounds automatic links per chunk.
	MaxLinks int `yaml:"max_links"`
	// MaxNodes bounds graph traversal breadth.
	MaxNodes int `yaml:"max_nodes"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	// Provider selects the embedder: "static" is the only built-in.
	Provider string `yaml:"provider"`
	// Dimensions is the embedding dimension, fixed per deployment.
	Dimensions int `yaml:"dimensions"`
	// CacheSize is the LRU cache size for repeated texts.
	CacheSize int `yaml:"cache_size"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Data:   defaultDataDir(),
			Corpus: ".",
		},
		Ingest: IngestConfig{
			MaxConcurrent: 5,
			ChunkSize:     1200,
		},
		Search: SearchConfig{
			TopK:         20,
			RerankTopK:   10,
			MaxHops:      3,
			CandidateCap: 2000,
		},
		Linking: LinkingConfig{
			Threshold:       0.7,
			SuggestionFloor: 0.5,
			MaxLinks:        10,
			MaxNodes:        50,
		},
		Embed: EmbedConfig{
			Provider:   "static",
			Dimensions: 256,
			CacheSize:  4096,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8377,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path (optional), applies env overrides, and
// validates the result. An empty path loads defaults plus env only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ngerrors.NotFound("config file", path)
			}
			return nil, ngerrors.Wrap(ngerrors.KindDependency, "read config", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, ngerrors.Wrap(ngerrors.KindInvalidInput, "parse config YAML", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Ingest.MaxConcurrent < 1 {
		return ngerrors.InvalidInput("ingest.max_concurrent must be >= 1")
	}
	if c.Ingest.ChunkSize < 1 {
		return ngerrors.InvalidInput("ingest.chunk_size must be >= 1")
	}
	if c.Search.TopK < 1 || c.Search.RerankTopK < 1 {
		return ngerrors.InvalidInput("search.top_k and search.rerank_top_k must be >= 1")
	}
	if c.Search.RerankTopK > c.Search.TopK {
		return ngerrors.InvalidInput("search.rerank_top_k must not exceed search.top_k")
	}
	if c.Linking.Threshold < 0 || c.Linking.Threshold > 1 {
		return ngerrors.InvalidInput("linking.threshold must be in [0,1]")
	}
	if c.Linking.SuggestionFloor < 0 || c.Linking.SuggestionFloor > c.Linking.Threshold {
		return ngerrors.InvalidInput("linking.suggestion_floor must be in [0, threshold]")
	}
	if c.Embed.Dimensions < 1 {
		return ngerrors.InvalidInput("embeddings.dimensions must be >= 1")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return ngerrors.InvalidInput("server.port must be a valid port")
	}
	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return ngerrors.Wrap(ngerrors.KindInternal, "marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ngerrors.Wrap(ngerrors.KindDependency, "create config dir", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnv overrides config fields from NOTEGRAPH_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NOTEGRAPH_DATA_DIR"); v != "" {
		cfg.Paths.Data = v
	}
	if v := os.Getenv("NOTEGRAPH_CORPUS_DIR"); v != "" {
		cfg.Paths.Corpus = v
	}
	if v := os.Getenv("NOTEGRAPH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NOTEGRAPH_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.MaxConcurrent = n
		}
	}
	if v := os.Getenv("NOTEGRAPH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
}

// defaultDataDir returns ~/.notegraph, falling back to a relative directory
// when the home directory cannot be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notegraph"
	}
	return filepath.Join(home, ".notegraph")
}

// IndexPath returns the SQLite database path inside the data directory.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Paths.Data, "index.db")
}

// VectorPath returns the vector store snapshot path inside the data directory.
func (c *Config) VectorPath() string {
	return filepath.Join(c.Paths.Data, "vectors.hnsw")
}

// Addr returns the host:port server address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
