package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultJinaBaseURL is the Jina AI embeddings endpoint root
const DefaultJinaBaseURL = "https://api.jina.ai/v1"

// JinaProvider implements Embedder using the Jina AI API
type JinaProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
	logger     *slog.Logger
}

// JinaOption customizes a JinaProvider
type JinaOption func(*JinaProvider)

// WithJinaBaseURL points the provider at a different endpoint root
func WithJinaBaseURL(baseURL string) JinaOption {
	return func(j *JinaProvider) {
		j.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithJinaHTTPClient replaces the default HTTP client
func WithJinaHTTPClient(client *http.Client) JinaOption {
	return func(j *JinaProvider) {
		j.httpClient = client
	}
}

// WithJinaRetry overrides the retry policy
func WithJinaRetry(cfg RetryConfig) JinaOption {
	return func(j *JinaProvider) {
		j.retry = cfg
	}
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(apiKey string, cache *Cache, opts ...JinaOption) (*JinaProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}

	j := &JinaProvider{
		apiKey:  apiKey,
		model:   DefaultJinaModel,
		baseURL: DefaultJinaBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache:  cache,
		retry:  DefaultRetryConfig(),
		logger: slog.Default().With("component", "jina-embedder"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateSingle(ctx, j, req)
}

func (j *JinaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = j.model
	}

	embeddings, err := cachedBatch(ctx, j.cache, j.retry, ProviderJina, model, req.Texts, j.callAPI)
	if err != nil {
		j.logger.Error("embedding batch failed", "count", len(req.Texts), "err", err)
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderJina,
		Model:      model,
	}, nil
}

type jinaRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	body, err := json.Marshal(jinaRequest{Input: texts, Model: model})
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if isPermanentStatus(resp.StatusCode) {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp jinaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// The API reports an index per item; order by it rather than trusting response order
	sort.SliceStable(apiResp.Data, func(a, b int) bool {
		return apiResp.Data[a].Index < apiResp.Data[b].Index
	})

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

// isPermanentStatus reports whether an HTTP status will not change on retry
func isPermanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}

func (j *JinaProvider) Dimension() int {
	return JinaDimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}
