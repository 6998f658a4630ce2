package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/chunkrank-mcp/internal/embedder"
	"github.com/dshills/chunkrank-mcp/internal/ranking"
	"github.com/dshills/chunkrank-mcp/internal/retriever"
	"github.com/dshills/chunkrank-mcp/internal/storage"
)

// Environment variables read by Load
const (
	EnvConfigPath        = "CHUNKRANK_CONFIG"
	EnvDBPath            = "CHUNKRANK_DB_PATH"
	EnvStorage           = "CHUNKRANK_STORAGE"
	EnvEmbeddingProvider = "CHUNKRANK_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "CHUNKRANK_EMBEDDING_MODEL"
	EnvSemanticWeight    = "CHUNKRANK_SEMANTIC_WEIGHT"
	EnvKeywordWeight     = "CHUNKRANK_KEYWORD_WEIGHT"
	EnvTopK              = "CHUNKRANK_TOP_K"
	EnvLogLevel          = "CHUNKRANK_LOG_LEVEL"
)

// DefaultDataDir is where stores live when no path is configured
const DefaultDataDir = "~/.chunkrank"

// StorageConfig selects the chunk store
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// EmbeddingConfig selects the embedding provider used for queries and ingest
type EmbeddingConfig struct {
	Provider     string `yaml:"provider"`
	Model        string `yaml:"model"`
	Dimension    int    `yaml:"dimension"`
	Host         string `yaml:"host"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	JinaAPIKey   string `yaml:"jina_api_key"`
	CacheSize    int    `yaml:"cache_size"`
}

// RAGConfig holds ranking defaults
type RAGConfig struct {
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
	TopK           int     `yaml:"top_k"`
	Method         string  `yaml:"method"`
}

// LoggingConfig controls the slog handler
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the root application configuration structure.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	RAG       RAGConfig       `yaml:"rag"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the built-in configuration
func Default() *Config {
	w := ranking.DefaultWeights()
	return &Config{
		Storage: StorageConfig{Backend: storage.BackendSQLite},
		Embedding: EmbeddingConfig{
			CacheSize: embedder.DefaultCacheSize,
		},
		RAG: RAGConfig{
			SemanticWeight: w.Semantic,
			KeywordWeight:  w.Keyword,
			TopK:           retriever.DefaultTopK,
			Method:         string(retriever.MethodHybrid),
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $CHUNKRANK_CONFIG when path is empty), then a .env file in the working
// directory, then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Storage.Path, EnvDBPath)
	setString(&c.Storage.Backend, EnvStorage)
	setString(&c.Embedding.Provider, EnvEmbeddingProvider)
	setString(&c.Embedding.Model, EnvEmbeddingModel)
	setString(&c.Embedding.Host, embedder.EnvEmbeddingHost)
	setString(&c.Embedding.OpenAIAPIKey, embedder.EnvOpenAIAPIKey)
	setString(&c.Embedding.JinaAPIKey, embedder.EnvJinaAPIKey)
	setString(&c.Logging.Level, EnvLogLevel)

	if err := setFloat(&c.RAG.SemanticWeight, EnvSemanticWeight); err != nil {
		return err
	}
	if err := setFloat(&c.RAG.KeywordWeight, EnvKeywordWeight); err != nil {
		return err
	}
	return setInt(&c.RAG.TopK, EnvTopK)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

// Validate checks the configuration for values the components would reject
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "", storage.BackendSQLite, storage.BackendBadger, storage.BackendMemory:
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownBackend, c.Storage.Backend)
	}

	switch c.Embedding.Provider {
	case "", embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderOllama, embedder.ProviderLocal:
	default:
		return fmt.Errorf("%w: provider %q", embedder.ErrUnsupportedModel, c.Embedding.Provider)
	}

	if c.RAG.SemanticWeight < 0 || c.RAG.KeywordWeight < 0 {
		return retriever.ErrInvalidWeights
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.RAG.TopK)
	}
	if _, err := retriever.ParseMethod(c.RAG.Method); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// Weights returns the configured hybrid weights
func (c *Config) Weights() ranking.Weights {
	return ranking.Weights{Semantic: c.RAG.SemanticWeight, Keyword: c.RAG.KeywordWeight}
}

// EmbedderConfig converts the embedding section for embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:     c.Embedding.Provider,
		Model:        c.Embedding.Model,
		Dimension:    c.Embedding.Dimension,
		Host:         c.Embedding.Host,
		JinaAPIKey:   c.Embedding.JinaAPIKey,
		OpenAIAPIKey: c.Embedding.OpenAIAPIKey,
		CacheSize:    c.Embedding.CacheSize,
	}
}

// LogLevel parses the configured level name
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(c.Logging.Level) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Logging.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return level, nil
}

// StoragePath resolves where the configured backend keeps its data.
// The memory backend has no path.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Backend == storage.BackendMemory {
		return "", nil
	}

	path := c.Storage.Path
	if path == "" {
		name := "chunks.db"
		if c.Storage.Backend == storage.BackendBadger {
			name = "badger"
		}
		path = filepath.Join(DefaultDataDir, name)
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	if c.Storage.Backend != storage.BackendBadger && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return path, nil
}
