package embedder

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/go-crypt/x/blake2b"

	"github.com/dshills/chunkrank-mcp/internal/ranking"
)

// LocalProvider produces deterministic feature-hashed vectors without any network calls.
// Each token of the text is hashed into one of LocalDimension buckets with a sign bit,
// so texts sharing vocabulary end up with a positive cosine similarity.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates a new offline embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: DefaultLocalModel,
		cache: cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateSingle(ctx, l, req)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	// Hashing cannot fail transiently, so a single attempt is enough
	embeddings, err := cachedBatch(ctx, l.cache, RetryConfig{MaxRetries: 1}, ProviderLocal, l.model, req.Texts,
		func(ctx context.Context, texts []string, _ string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i, text := range texts {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				vectors[i] = hashVector(text, LocalDimension)
			}
			return vectors, nil
		})
	if err != nil {
		return nil, err
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      l.model,
	}, nil
}

// hashVector builds a unit-length bag-of-tokens vector using the hashing trick
func hashVector(text string, dim int) []float32 {
	vector := make([]float32, dim)
	for token := range ranking.Tokenize(text) {
		h, _ := blake2b.New(8, nil)
		h.Write([]byte(token))
		sum := binary.LittleEndian.Uint64(h.Sum(nil))

		bucket := int(sum % uint64(dim))
		if sum&(1<<63) != 0 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}
	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
