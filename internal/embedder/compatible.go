package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// CompatibleProvider implements Embedder against any OpenAI-compatible
// embeddings host, such as a local Ollama server.
type CompatibleProvider struct {
	embedder  embeddings.Embedder
	host      string
	model     string
	dimension int
	cache     *Cache
	retry     RetryConfig
	logger    *slog.Logger
}

// NewCompatibleProvider creates an embedder for an OpenAI-compatible host.
// dimension may be zero when the model's size is not known up front.
func NewCompatibleProvider(host, model string, dimension int, cache *Cache) (*CompatibleProvider, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvEmbeddingHost)
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	// Local hosts don't check the token, but the client requires one
	client, err := lcopenai.New(
		lcopenai.WithBaseURL(host),
		lcopenai.WithToken("none"),
		lcopenai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &CompatibleProvider{
		embedder:  embedder,
		host:      host,
		model:     model,
		dimension: dimension,
		cache:     cache,
		retry:     DefaultRetryConfig(),
		logger:    slog.Default().With("component", "ollama-embedder", "host", host),
	}, nil
}

func (c *CompatibleProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateSingle(ctx, c, req)
}

// GenerateBatch embeds texts with the configured model. The langchaingo client
// is bound to one model, so a per-request model override is rejected.
func (c *CompatibleProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}
	if req.Model != "" && req.Model != c.model {
		return nil, fmt.Errorf("%w: %s (provider is bound to %s)", ErrUnsupportedModel, req.Model, c.model)
	}

	c.logger.Debug("generating embeddings", "count", len(req.Texts))

	embeddings, err := cachedBatch(ctx, c.cache, c.retry, ProviderOllama, c.model, req.Texts,
		func(ctx context.Context, texts []string, _ string) ([][]float32, error) {
			return c.embedder.EmbedDocuments(ctx, texts)
		})
	if err != nil {
		c.logger.Error("failed to generate embeddings", "count", len(req.Texts), "err", err)
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOllama,
		Model:      c.model,
	}, nil
}

func (c *CompatibleProvider) Dimension() int {
	return c.dimension
}

func (c *CompatibleProvider) Provider() string {
	return ProviderOllama
}

func (c *CompatibleProvider) Model() string {
	return c.model
}

func (c *CompatibleProvider) Close() error {
	return nil
}
