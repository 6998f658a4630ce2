package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chunkrank-mcp/internal/embedder"
	"github.com/dshills/chunkrank-mcp/internal/storage"
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// batchEmbedder records batch sizes and returns a vector per text
type batchEmbedder struct {
	mu      sync.Mutex
	batches []int
	fail    func(texts []string) error
}

func (b *batchEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	resp, err := b.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (b *batchEmbedder) GenerateBatch(_ context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	b.mu.Lock()
	b.batches = append(b.batches, len(req.Texts))
	b.mu.Unlock()

	if b.fail != nil {
		if err := b.fail(req.Texts); err != nil {
			return nil, err
		}
	}

	resp := &embedder.BatchEmbeddingResponse{Provider: "mock", Model: "mock-model"}
	for _, text := range req.Texts {
		resp.Embeddings = append(resp.Embeddings, &embedder.Embedding{
			Vector:    []float32{float32(len(text)), 1},
			Dimension: 2,
		})
	}
	return resp, nil
}

func (b *batchEmbedder) Dimension() int   { return 2 }
func (b *batchEmbedder) Provider() string { return "mock" }
func (b *batchEmbedder) Model() string    { return "mock-model" }
func (b *batchEmbedder) Close() error     { return nil }

func (b *batchEmbedder) batchSizes() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.batches...)
}

func newIngester(t *testing.T, store storage.ChunkStore, opts ...Option) *Ingester {
	t.Helper()
	i, err := New(store, opts...)
	require.NoError(t, err)
	t.Cleanup(i.Release)
	return i
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(storage.NewMemoryStorage(), WithEmbedBatchSize(0))
	assert.Error(t, err)

	_, err = New(storage.NewMemoryStorage(), WithEmbedBatchSize(embedder.MaxBatchSize+1))
	assert.Error(t, err)

	_, err = New(storage.NewMemoryStorage(), WithStoreBatchSize(-1))
	assert.Error(t, err)

	i := newIngester(t, storage.NewMemoryStorage(), WithLogger(nil), WithPoolSize(0))
	assert.NotNil(t, i.logger)
	assert.Equal(t, 1, i.pool.Cap())
}

func TestIngest_RequiresDocumentID(t *testing.T) {
	i := newIngester(t, storage.NewMemoryStorage())
	_, err := i.Ingest(context.Background(), Request{Records: []Record{{Content: "x"}}})
	assert.ErrorIs(t, err, ErrDocumentIDRequired)
}

func TestIngest_BuildsAndStoresChunks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	i := newIngester(t, store, WithIDGenerator(sequentialIDs()))

	stats, err := i.Ingest(ctx, Request{
		DocumentID: "report",
		Records: []Record{
			{ChunkID: "keep", PageNumber: 2, Content: "first", Embedding: []float32{1, 0}},
			{Page: 3, Text: "second"},
			{Page: -4, Content: "third"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunksLoaded)
	assert.Equal(t, 3, stats.ChunksStored)
	assert.Equal(t, 2, stats.IDsAssigned)
	assert.Zero(t, stats.EmbeddingsGenerated)

	chunks, err := store.ListByDocument(ctx, "report")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "keep", chunks[0].ChunkID)
	assert.Equal(t, 2, chunks[0].PageNumber)
	assert.Equal(t, []float32{1, 0}, chunks[0].Embedding)

	assert.Equal(t, "gen-1", chunks[1].ChunkID)
	assert.Equal(t, 3, chunks[1].PageNumber)
	assert.Equal(t, "second", chunks[1].Content)

	assert.Equal(t, "gen-2", chunks[2].ChunkID)
	assert.Equal(t, 0, chunks[2].PageNumber, "negative pages are clamped")

	for _, c := range chunks {
		assert.False(t, c.CreatedAt.IsZero())
		assert.Equal(t, "report", c.DocumentID)
	}
}

func TestIngest_DryRun(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	i := newIngester(t, store)

	stats, err := i.Ingest(ctx, Request{DocumentID: "report", DryRun: true, Records: []Record{{Content: "x"}}})
	require.NoError(t, err)
	assert.Zero(t, stats.ChunksStored)
	require.Len(t, stats.Chunks, 1)
	assert.NotEmpty(t, stats.Chunks[0].ChunkID)

	all, err := store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestIngest_BackfillsEmbeddings(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	emb := &batchEmbedder{}
	i := newIngester(t, store, WithEmbedder(emb), WithEmbedBatchSize(2), WithPoolSize(2))

	records := []Record{
		{ChunkID: "a", Content: "one"},
		{ChunkID: "b", Content: "three", Embedding: []float32{9, 9}},
		{ChunkID: "c", Content: "fives"},
		{ChunkID: "d", Content: ""},
		{ChunkID: "e", Content: "seven!!"},
	}
	stats, err := i.Ingest(ctx, Request{DocumentID: "doc", Records: records, Embed: true})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EmbeddingsGenerated)
	assert.Zero(t, stats.EmbeddingsFailed)
	assert.ElementsMatch(t, []int{2, 1}, emb.batchSizes())

	chunks, err := store.ListByDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 5)
	assert.Equal(t, []float32{3, 1}, chunks[0].Embedding)
	assert.Equal(t, []float32{9, 9}, chunks[1].Embedding, "existing vectors are kept")
	assert.Equal(t, []float32{5, 1}, chunks[2].Embedding)
	assert.Empty(t, chunks[3].Embedding, "empty content is not embedded")
	assert.Equal(t, []float32{7, 1}, chunks[4].Embedding)
}

func TestIngest_EmbeddingFailureStillStores(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	emb := &batchEmbedder{fail: func(texts []string) error {
		for _, text := range texts {
			if text == "bad" {
				return errors.New("provider unavailable")
			}
		}
		return nil
	}}
	i := newIngester(t, store, WithEmbedder(emb), WithEmbedBatchSize(1))

	stats, err := i.Ingest(ctx, Request{
		DocumentID: "doc",
		Embed:      true,
		Records:    []Record{{ChunkID: "ok", Content: "good"}, {ChunkID: "ko", Content: "bad"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddingsGenerated)
	assert.Equal(t, 1, stats.EmbeddingsFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "provider unavailable")
	assert.Equal(t, 2, stats.ChunksStored)

	chunks, err := store.ListByDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[0].HasEmbedding())
	assert.False(t, chunks[1].HasEmbedding())
}

func TestIngest_EmbedWithoutProvider(t *testing.T) {
	i := newIngester(t, storage.NewMemoryStorage())
	stats, err := i.Ingest(context.Background(), Request{DocumentID: "doc", Embed: true, Records: []Record{{Content: "x"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ChunksStored)
	assert.Len(t, stats.ErrorMessages, 1)
}

func TestIngest_StoreBatches(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStorage: storage.NewMemoryStorage()}
	i := newIngester(t, store, WithStoreBatchSize(2))

	records := make([]Record, 5)
	for n := range records {
		records[n] = Record{ChunkID: fmt.Sprintf("c%d", n), Content: "x"}
	}
	stats, err := i.Ingest(ctx, Request{DocumentID: "doc", Records: records})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ChunksStored)
	assert.Equal(t, 3, store.upserts)
}

func TestIngest_Reingest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	i := newIngester(t, store)

	req := Request{DocumentID: "doc", Records: []Record{{ChunkID: "c1", Content: "v1"}}}
	_, err := i.Ingest(ctx, req)
	require.NoError(t, err)

	req.Records[0].Content = "v2"
	_, err = i.Ingest(ctx, req)
	require.NoError(t, err)

	chunks, err := store.ListByDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "v2", chunks[0].Content)
}

func TestIngest_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	i := newIngester(t, storage.NewMemoryStorage(), WithEmbedder(&batchEmbedder{}))
	_, err := i.Ingest(ctx, Request{DocumentID: "doc", Embed: true, Records: []Record{{Content: "x"}}})
	assert.ErrorIs(t, err, context.Canceled)
}

// countingStore counts Upsert calls
type countingStore struct {
	*storage.MemoryStorage
	upserts int
}

func (c *countingStore) Upsert(ctx context.Context, chunks ...types.Chunk) (int, error) {
	c.upserts++
	return c.MemoryStorage.Upsert(ctx, chunks...)
}

func TestIngest_SplitsLargeRecords(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	i := newIngester(t, store, WithIDGenerator(sequentialIDs()))

	long := "first paragraph here\n\nsecond paragraph here"
	stats, err := i.Ingest(ctx, Request{
		DocumentID: "doc",
		MaxTokens:  6, // 24 runes
		Records: []Record{
			{ChunkID: "p1", Page: 1, Content: long, Embedding: []float32{1}},
			{Page: 2, Content: long},
			{ChunkID: "p3", Page: 3, Content: "fits", Embedding: []float32{1}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ChunksLoaded)
	assert.Equal(t, 2, stats.RecordsSplit)
	assert.Equal(t, 5, stats.ChunksStored)
	assert.Equal(t, 2, stats.IDsAssigned)

	chunks, err := store.ListByDocument(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, chunks, 5)

	assert.Equal(t, "p1#1", chunks[0].ChunkID)
	assert.Equal(t, "first paragraph here", chunks[0].Content)
	assert.Empty(t, chunks[0].Embedding, "record vector is not reused for pieces")
	assert.Equal(t, "p1#2", chunks[1].ChunkID)
	assert.Equal(t, 1, chunks[1].PageNumber)

	assert.Equal(t, "gen-1", chunks[2].ChunkID)
	assert.Equal(t, "gen-2", chunks[3].ChunkID)
	assert.Equal(t, 2, chunks[3].PageNumber)

	assert.Equal(t, "p3", chunks[4].ChunkID)
	assert.Equal(t, []float32{1}, chunks[4].Embedding)
}
