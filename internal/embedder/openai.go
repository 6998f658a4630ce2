package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Embedder using the official OpenAI SDK
type OpenAIProvider struct {
	client openai.Client
	model  string
	cache  *Cache
	retry  RetryConfig
	logger *slog.Logger
}

// NewOpenAIProvider creates a new OpenAI embedder. Extra request options
// (base URL, HTTP client) are passed through to the SDK client.
func NewOpenAIProvider(apiKey string, cache *Cache, opts ...option.RequestOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	// Retries are handled by retryWithBackoff so the SDK's own loop is disabled
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &OpenAIProvider{
		client: openai.NewClient(clientOpts...),
		model:  DefaultOpenAIModel,
		cache:  cache,
		retry:  DefaultRetryConfig(),
		logger: slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateSingle(ctx, o, req)
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	embeddings, err := cachedBatch(ctx, o.cache, o.retry, ProviderOpenAI, model, req.Texts, o.callAPI)
	if err != nil {
		o.logger.Error("embedding batch failed", "count", len(req.Texts), "err", err)
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && isPermanentStatus(apiErr.StatusCode) {
			return nil, permanent(err)
		}
		return nil, err
	}

	data := resp.Data
	sort.SliceStable(data, func(a, b int) bool {
		return data[a].Index < data[b].Index
	})

	vectors := make([][]float32, len(data))
	for i, item := range data {
		vector := make([]float32, len(item.Embedding))
		for k, v := range item.Embedding {
			vector[k] = float32(v)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (o *OpenAIProvider) Dimension() int {
	return OpenAIDimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
