// Package config loads and validates the ragload configuration.
//
// Configuration is resolved in order: built-in defaults, then a YAML
// file (ragload.yaml), then RAGLOAD_* environment variables. Validation
// is strict and happens before any store is opened: invalid chunking
// parameters are a hard rejection, never silently clamped.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// DefaultConfigFile is the config filename looked up in the working directory.
const DefaultConfigFile = "ragload.yaml"

// Config is the complete ragload configuration.
type Config struct {
	Version    int              `yaml:"version"`
	DataDir    string           `yaml:"data_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Converter  ConverterConfig  `yaml:"converter"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Load       LoadConfig       `yaml:"load"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConverterConfig configures the document conversion step.
type ConverterConfig struct {
	// Endpoint is the conversion service URL. Empty means the source
	// files are already markdown and are read directly.
	Endpoint string `yaml:"endpoint"`
	// TimeoutSeconds bounds a single conversion request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ChunkingConfig holds the hierarchical chunker parameters.
// Sizes are in runes so multibyte text splits at character boundaries.
type ChunkingConfig struct {
	// ParentMaxSize is the upper bound on a parent span length.
	ParentMaxSize int `yaml:"parent_max_size"`
	// ChildMaxSize is the upper bound on a child span length.
	ChildMaxSize int `yaml:"child_max_size"`
	// ChildOverlap is the number of runes shared between consecutive
	// children within a parent. Must be smaller than ChildMaxSize.
	ChildOverlap int `yaml:"child_overlap"`
	// MinChunkLength drops spans whose trimmed text is shorter than this.
	MinChunkLength int `yaml:"min_chunk_length"`
}

// EmbeddingsConfig configures the embedding collaborator.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "http" or "static".
	Provider string `yaml:"provider"`
	// Endpoint is the embedding service base URL (http provider).
	Endpoint string `yaml:"endpoint"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the fixed embedding dimension (0 = auto-detect).
	Dimensions int `yaml:"dimensions"`
	// BatchSize is how many child chunks are embedded per request.
	BatchSize int `yaml:"batch_size"`
	// CacheSize is the LRU embedding cache capacity (entries).
	CacheSize int `yaml:"cache_size"`
}

// LoadConfig configures the load coordinator.
type LoadConfig struct {
	// Workers is how many documents load in parallel.
	Workers int `yaml:"workers"`
	// StoreRetries bounds retry attempts on store write failures.
	StoreRetries int `yaml:"store_retries"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

// Default returns the built-in configuration.
// Chunk sizes follow the parent/child retrieval strategy defaults:
// parents keep surrounding context, children stay precise.
func Default() *Config {
	return &Config{
		Version: 1,
		DataDir: ".ragload",
		Chunking: ChunkingConfig{
			ParentMaxSize:  2000,
			ChildMaxSize:   400,
			ChildOverlap:   50,
			MinChunkLength: 8,
		},
		Converter: ConverterConfig{
			TimeoutSeconds: 300,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "http",
			Endpoint:  "http://localhost:11434",
			Model:     "bge-m3",
			BatchSize: 32,
			CacheSize: 1000,
		},
		Load: LoadConfig{
			Workers:      4,
			StoreRetries: 3,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// Load reads the configuration from path (empty = DefaultConfigFile if
// present), applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ragerr.New(ragerr.ErrCodeConfigNotFound,
				fmt.Sprintf("read config %s: %v", path, err), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, ragerr.ConfigError(fmt.Sprintf("parse config %s: %v", path, err), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies RAGLOAD_* environment variables on top of
// file values. Only the knobs that change between environments are
// exposed this way.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAGLOAD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("RAGLOAD_CONVERT_ENDPOINT"); v != "" {
		cfg.Converter.Endpoint = v
	}
	if v := os.Getenv("RAGLOAD_EMBED_ENDPOINT"); v != "" {
		cfg.Embeddings.Endpoint = v
	}
	if v := os.Getenv("RAGLOAD_EMBED_MODEL"); v != "" {
		cfg.Embeddings.Model = v
	}
	if v := os.Getenv("RAGLOAD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RAGLOAD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Load.Workers = n
		}
	}
}

// Validate checks the configuration, failing fast on invalid chunking
// parameters before any store is touched.
func (c *Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if c.DataDir == "" {
		return ragerr.ConfigError("data_dir must not be empty", nil)
	}
	switch c.Embeddings.Provider {
	case "http", "static":
	default:
		return ragerr.ConfigError(
			fmt.Sprintf("unknown embeddings provider %q (want http or static)", c.Embeddings.Provider), nil)
	}
	if c.Embeddings.BatchSize <= 0 {
		return ragerr.ConfigError("embeddings batch_size must be positive", nil)
	}
	if c.Load.Workers <= 0 {
		return ragerr.ConfigError("load workers must be positive", nil)
	}
	if c.Load.StoreRetries < 0 {
		return ragerr.ConfigError("store_retries must not be negative", nil)
	}
	return nil
}

// Validate rejects impossible chunking geometry.
func (c *ChunkingConfig) Validate() error {
	if c.ParentMaxSize <= 0 {
		return ragerr.ChunkingParamsError("parent_max_size must be positive")
	}
	if c.ChildMaxSize <= 0 {
		return ragerr.ChunkingParamsError("child_max_size must be positive")
	}
	if c.ChildMaxSize > c.ParentMaxSize {
		return ragerr.ChunkingParamsError(
			fmt.Sprintf("child_max_size %d exceeds parent_max_size %d", c.ChildMaxSize, c.ParentMaxSize))
	}
	if c.ChildOverlap < 0 {
		return ragerr.ChunkingParamsError("child_overlap must not be negative")
	}
	if c.ChildOverlap >= c.ChildMaxSize {
		return ragerr.ChunkingParamsError(
			fmt.Sprintf("child_overlap %d must be smaller than child_max_size %d", c.ChildOverlap, c.ChildMaxSize))
	}
	if c.MinChunkLength < 0 {
		return ragerr.ChunkingParamsError("min_chunk_length must not be negative")
	}
	return nil
}

// Paths derived from DataDir. Each store owns one location.

// LexicalIndexPath is the bleve index directory.
func (c *Config) LexicalIndexPath() string {
	return filepath.Join(c.DataDir, "lexical.bleve")
}

// VectorStorePath is the HNSW snapshot file.
func (c *Config) VectorStorePath() string {
	return filepath.Join(c.DataDir, "vectors.hnsw")
}

// DocumentStorePath is the SQLite parent store.
func (c *Config) DocumentStorePath() string {
	return filepath.Join(c.DataDir, "documents.db")
}

// LogFilePath is the rotated log file location (empty if file logging
// is disabled in config).
func (c *Config) LogFilePath() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.DataDir, "log", "ragload.log")
}
