package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chunkrank-mcp/internal/storage"
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

func TestVerify_EmptyQuery(t *testing.T) {
	r, err := New(setupStore(t))
	require.NoError(t, err)

	result := r.Verify(context.Background(), VerifyRequest{DocumentID: "report"})
	assert.Equal(t, "query is required", result.Error)
	assert.Equal(t, SourceNone, result.Source)
	assert.NotNil(t, result.Chunks)
	assert.Empty(t, result.Chunks)
}

func TestVerify_UsesStore(t *testing.T) {
	r, err := New(setupStore(t))
	require.NoError(t, err)

	result := r.Verify(context.Background(), VerifyRequest{
		Query:      "revenue growth",
		DocumentID: "report",
		TopK:       1,
		Chunks:     []types.Chunk{{ChunkID: "inline", DocumentID: "report", Content: "revenue growth"}},
	})
	assert.Empty(t, result.Error)
	assert.Equal(t, SourceStore, result.Source)
	assert.Equal(t, MethodKeyword, result.Method, "no embedder configured")
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "c3", result.Chunks[0].ChunkID)
}

func TestVerify_FallsBackToInline(t *testing.T) {
	r, err := New(storage.NewMemoryStorage(), WithEmbedder(fixedEmbedder([]float32{1, 0, 0})))
	require.NoError(t, err)

	inline := []types.Chunk{
		{ChunkID: "a", DocumentID: "draft", Content: "Costs were flat"},
		{ChunkID: "b", DocumentID: "draft", Content: "Revenue climbed sharply"},
	}
	result := r.Verify(context.Background(), VerifyRequest{Query: "revenue", DocumentID: "draft", Chunks: inline})
	assert.Empty(t, result.Error)
	assert.Equal(t, SourceInline, result.Source)
	assert.Equal(t, MethodKeyword, result.Method)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "b", result.Chunks[0].ChunkID)
	assert.InDelta(t, 1.0, result.Chunks[0].Score, 1e-9)
}

func TestVerify_NoChunks(t *testing.T) {
	r, err := New(storage.NewMemoryStorage())
	require.NoError(t, err)

	result := r.Verify(context.Background(), VerifyRequest{Query: "revenue", DocumentID: "missing"})
	assert.Equal(t, "no chunks available", result.Error)
	assert.Equal(t, SourceNone, result.Source)
	assert.Empty(t, result.Chunks)
}

func TestVerify_InvalidMethod(t *testing.T) {
	r, err := New(setupStore(t))
	require.NoError(t, err)

	result := r.Verify(context.Background(), VerifyRequest{Query: "revenue", Method: Method("bm25")})
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, SourceNone, result.Source)
}

func TestVerify_StoreErrorUsesInline(t *testing.T) {
	store := &failingStore{err: errors.New("disk gone")}
	r, err := New(store)
	require.NoError(t, err)

	result := r.Verify(context.Background(), VerifyRequest{
		Query:  "revenue",
		Chunks: []types.Chunk{{ChunkID: "x", DocumentID: "d", Content: "revenue"}},
	})
	assert.Equal(t, SourceInline, result.Source)
	require.Len(t, result.Chunks, 1)
}

func TestVerify_InlineChunksWithoutDocument(t *testing.T) {
	store := storage.NewMemoryStorageFrom([]types.Chunk{
		{ChunkID: "x", DocumentID: "other", Content: "weather report sunny"},
	})
	r, err := New(store)
	require.NoError(t, err)

	result := r.Verify(context.Background(), VerifyRequest{
		Query:  "revenue growth",
		Chunks: []types.Chunk{{ChunkID: "claim", Content: "Revenue growth was strong"}},
	})
	assert.Empty(t, result.Error)
	assert.Equal(t, SourceInline, result.Source)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "claim", result.Chunks[0].ChunkID)
	assert.InDelta(t, 1.0, result.Chunks[0].Score, 1e-9)
}

func TestVerify_InvalidMethodWithInlineChunks(t *testing.T) {
	r, err := New(storage.NewMemoryStorage())
	require.NoError(t, err)

	result := r.Verify(context.Background(), VerifyRequest{
		Query:  "revenue",
		Method: Method("bm25"),
		Chunks: []types.Chunk{{ChunkID: "x", Content: "revenue"}},
	})
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, SourceNone, result.Source)
}
