package embedder

import (
	"fmt"
	"strings"
)

// Provider names
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"
)

// Environment variables read by the config layer
const (
	EnvJinaAPIKey    = "JINA_API_KEY"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvEmbeddingHost = "CHUNKRANK_EMBEDDING_HOST"
)

// Provider configuration
const (
	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "local-hash-v1"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	MaxBatchSize = 100

	DefaultCacheSize = 10000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Config holds embedder configuration
type Config struct {
	Provider  string // Empty means auto-detect from the keys below
	Model     string // Optional: ollama model name
	Dimension int    // Optional: ollama vector size
	Host      string // OpenAI-compatible host for the ollama provider

	JinaAPIKey   string
	OpenAIAPIKey string

	CacheSize int
}

// DetectProvider returns the provider New would build for cfg, or "" when
// nothing is configured. An explicit provider always wins; otherwise the
// first credential found (Jina, OpenAI, then an embedding host) decides.
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}

	switch {
	case cfg.JinaAPIKey != "":
		return ProviderJina
	case cfg.OpenAIAPIKey != "":
		return ProviderOpenAI
	case cfg.Host != "":
		return ProviderOllama
	}
	return ""
}

// New creates an embedder from cfg. It returns ErrNoProviderEnabled when no
// provider is configured so callers can run without semantic search.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	provider := DetectProvider(cfg)
	switch provider {
	case "":
		return nil, ErrNoProviderEnabled
	case ProviderJina:
		return NewJinaProvider(cfg.JinaAPIKey, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cache)
	case ProviderOllama:
		return NewCompatibleProvider(cfg.Host, cfg.Model, cfg.Dimension, cache)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}
