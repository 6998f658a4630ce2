package retriever

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/chunkrank-mcp/internal/embedder"
	"github.com/dshills/chunkrank-mcp/internal/ranking"
	"github.com/dshills/chunkrank-mcp/internal/storage"
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// mockEmbedder returns vectors from a function so tests control the query embedding
type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int
	mu        sync.Mutex
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	vector, err := m.embedFunc(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	return &embedder.Embedding{Vector: vector, Dimension: len(vector), Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	resp := &embedder.BatchEmbeddingResponse{Provider: "mock", Model: "mock-model"}
	for _, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		resp.Embeddings = append(resp.Embeddings, emb)
	}
	return resp, nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fixedEmbedder(vector []float32) *mockEmbedder {
	return &mockEmbedder{embedFunc: func(context.Context, string) ([]float32, error) {
		return vector, nil
	}}
}

// failingStore errors on every read
type failingStore struct {
	storage.MemoryStorage
	err error
}

func (f *failingStore) ReadAll(context.Context) ([]types.Chunk, error) { return nil, f.err }
func (f *failingStore) ListByDocument(context.Context, string) ([]types.Chunk, error) {
	return nil, f.err
}

// recordingStore remembers which read was used
type recordingStore struct {
	*storage.MemoryStorage
	mu    sync.Mutex
	reads []string
}

func (r *recordingStore) ReadAll(ctx context.Context) ([]types.Chunk, error) {
	r.mu.Lock()
	r.reads = append(r.reads, "all")
	r.mu.Unlock()
	return r.MemoryStorage.ReadAll(ctx)
}

func (r *recordingStore) ListByDocument(ctx context.Context, documentID string) ([]types.Chunk, error) {
	r.mu.Lock()
	r.reads = append(r.reads, "doc:"+documentID)
	r.mu.Unlock()
	return r.MemoryStorage.ListByDocument(ctx, documentID)
}

func setupStore(t *testing.T) *storage.MemoryStorage {
	t.Helper()
	store := storage.NewMemoryStorage()
	_, err := store.Upsert(context.Background(),
		types.Chunk{ChunkID: "c1", DocumentID: "report", Content: "Our revenue grew by 25% this quarter", Embedding: []float32{0.9, 0.1, 0}},
		types.Chunk{ChunkID: "c2", DocumentID: "report", Content: "User engagement increased", Embedding: []float32{0, 1, 0}},
		types.Chunk{ChunkID: "c3", DocumentID: "report", Content: "Revenue growth was strong this year", Embedding: []float32{1, 0, 0}},
		types.Chunk{ChunkID: "c4", DocumentID: "memo", Content: "Revenue growth targets for next year"},
	)
	require.NoError(t, err)
	return store
}

func contents(results []types.ScoredChunk) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Content
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(storage.NewMemoryStorage(), WithWeights(ranking.Weights{Semantic: -1, Keyword: 1}))
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = New(storage.NewMemoryStorage(), WithDefaultTopK(0))
	assert.Error(t, err)

	r, err := New(storage.NewMemoryStorage(), WithLogger(nil), WithMonitor(nil))
	require.NoError(t, err)
	assert.NotNil(t, r.logger)
	assert.NotNil(t, r.monitor)
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in      string
		want    Method
		wantErr bool
	}{
		{"", MethodHybrid, false},
		{"keyword", MethodKeyword, false},
		{" Semantic ", MethodSemantic, false},
		{"HYBRID", MethodHybrid, false},
		{"bm25", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMethod(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMethod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetrieve_Keyword(t *testing.T) {
	ctx := context.Background()
	emb := fixedEmbedder([]float32{1, 0, 0})
	r, err := New(setupStore(t), WithEmbedder(emb))
	require.NoError(t, err)

	results, err := r.Retrieve(ctx, Request{Query: "revenue growth", DocumentID: "report", TopK: 2, Method: MethodKeyword})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"Revenue growth was strong this year", "Our revenue grew by 25% this quarter"}, contents(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.5, results[1].Score, 1e-9)
	assert.Nil(t, results[0].SemanticScore)

	assert.Equal(t, 0, emb.callCount(), "keyword ranking never embeds the query")
}

func TestRetrieve_Semantic(t *testing.T) {
	ctx := context.Background()
	r, err := New(setupStore(t), WithEmbedder(fixedEmbedder([]float32{1, 0, 0})))
	require.NoError(t, err)

	resp, err := r.Search(ctx, Request{Query: "anything", DocumentID: "report", Method: MethodSemantic})
	require.NoError(t, err)
	assert.Equal(t, MethodSemantic, resp.Used)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "c3", resp.Results[0].ChunkID)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	require.NotNil(t, resp.Results[0].SemanticScore)
	assert.Nil(t, resp.Results[0].KeywordScore)
}

func TestRetrieve_Hybrid(t *testing.T) {
	ctx := context.Background()
	r, err := New(setupStore(t), WithEmbedder(fixedEmbedder([]float32{0, 1, 0})))
	require.NoError(t, err)

	results, err := r.Retrieve(ctx, Request{Query: "revenue growth", DocumentID: "report"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		require.NotNil(t, res.SemanticScore)
		require.NotNil(t, res.KeywordScore)
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
	}

	// Semantic weight 0.7 lets the engagement chunk win on embedding alone
	assert.Equal(t, "c2", results[0].ChunkID)
	assert.InDelta(t, 0.7, results[0].Score, 1e-6)
}

func TestRetrieve_HybridWeights(t *testing.T) {
	ctx := context.Background()
	r, err := New(setupStore(t),
		WithEmbedder(fixedEmbedder([]float32{0, 1, 0})),
		WithWeights(ranking.Weights{Semantic: 0, Keyword: 2}))
	require.NoError(t, err)

	results, err := r.Retrieve(ctx, Request{Query: "revenue growth", DocumentID: "report", Method: MethodHybrid})
	require.NoError(t, err)
	assert.Equal(t, "c3", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestRetrieve_FallsBackWithoutEmbedder(t *testing.T) {
	ctx := context.Background()
	r, err := New(setupStore(t))
	require.NoError(t, err)

	for _, method := range []Method{MethodSemantic, MethodHybrid, ""} {
		t.Run(string(method), func(t *testing.T) {
			resp, err := r.Search(ctx, Request{Query: "revenue growth", DocumentID: "report", TopK: 2, Method: method})
			require.NoError(t, err)
			assert.Equal(t, MethodKeyword, resp.Used)

			keyword, err := r.Retrieve(ctx, Request{Query: "revenue growth", DocumentID: "report", TopK: 2, Method: MethodKeyword})
			require.NoError(t, err)
			assert.Equal(t, contents(keyword), contents(resp.Results))
		})
	}
}

func TestRetrieve_FallsBackOnEmbeddingError(t *testing.T) {
	ctx := context.Background()
	emb := &mockEmbedder{embedFunc: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("provider down")
	}}
	monitor := &recordingMonitor{}
	r, err := New(setupStore(t), WithEmbedder(emb), WithMonitor(monitor))
	require.NoError(t, err)

	resp, err := r.Search(ctx, Request{Query: "revenue growth", Method: MethodSemantic})
	require.NoError(t, err)
	assert.Equal(t, MethodKeyword, resp.Used)
	assert.Equal(t, MethodSemantic, resp.Requested)
	assert.NotEmpty(t, resp.Results)
	assert.Equal(t, []string{"semantic->keyword"}, monitor.fallbacks)
	assert.Equal(t, []bool{false}, monitor.embeddings)
}

func TestRetrieve_FallsBackOnEmptyEmbedding(t *testing.T) {
	r, err := New(setupStore(t), WithEmbedder(fixedEmbedder(nil)))
	require.NoError(t, err)

	resp, err := r.Search(context.Background(), Request{Query: "revenue", Method: MethodHybrid})
	require.NoError(t, err)
	assert.Equal(t, MethodKeyword, resp.Used)
}

func TestRetrieve_EmbedTimeout(t *testing.T) {
	emb := &mockEmbedder{embedFunc: func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r, err := New(setupStore(t), WithEmbedder(emb), WithEmbedTimeout(20*time.Millisecond))
	require.NoError(t, err)

	resp, err := r.Search(context.Background(), Request{Query: "revenue growth", Method: MethodHybrid})
	require.NoError(t, err)
	assert.Equal(t, MethodKeyword, resp.Used)
	assert.NotEmpty(t, resp.Results)
}

func TestRetrieve_StoreErrorYieldsEmpty(t *testing.T) {
	store := &failingStore{err: errors.New("connection refused")}
	r, err := New(store, WithEmbedder(fixedEmbedder([]float32{1, 0, 0})))
	require.NoError(t, err)

	for _, method := range []Method{MethodKeyword, MethodSemantic, MethodHybrid} {
		for _, doc := range []string{"", "report"} {
			results, err := r.Retrieve(context.Background(), Request{Query: "revenue", DocumentID: doc, Method: method})
			require.NoError(t, err)
			assert.NotNil(t, results)
			assert.Empty(t, results)
		}
	}
}

func TestRetrieve_InvalidMethod(t *testing.T) {
	store := &recordingStore{MemoryStorage: setupStore(t)}
	r, err := New(store)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), Request{Query: "revenue", Method: "fuzzy"})
	assert.ErrorIs(t, err, ErrInvalidMethod)
	assert.Nil(t, results)
	assert.Empty(t, store.reads, "invalid requests fail before touching the store")
}

func TestRetrieve_DocumentScoping(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{MemoryStorage: setupStore(t)}
	r, err := New(store)
	require.NoError(t, err)

	scoped, err := r.Retrieve(ctx, Request{Query: "revenue growth", DocumentID: "memo", Method: MethodKeyword})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "memo", scoped[0].DocumentID)

	all, err := r.Retrieve(ctx, Request{Query: "revenue growth", TopK: 10, Method: MethodKeyword})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	assert.Equal(t, []string{"doc:memo", "all"}, store.reads)
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	store := storage.NewMemoryStorage()
	for i := 0; i < 8; i++ {
		_, err := store.Upsert(context.Background(), types.Chunk{DocumentID: "d", Content: "chunk " + string(rune('a'+i))})
		require.NoError(t, err)
	}

	r, err := New(store)
	require.NoError(t, err)
	results, err := r.Retrieve(context.Background(), Request{Query: "chunk", Method: MethodKeyword})
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)

	r, err = New(store, WithDefaultTopK(3))
	require.NoError(t, err)
	results, err = r.Retrieve(context.Background(), Request{Query: "chunk", TopK: -1, Method: MethodKeyword})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	emb := fixedEmbedder([]float32{1, 0, 0})
	r, err := New(setupStore(t), WithEmbedder(emb))
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), Request{Query: "", DocumentID: "report", TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, 0.0, res.Score)
	}
	assert.Equal(t, 0, emb.callCount(), "empty queries are not embedded")
}

func TestRetrieve_Idempotent(t *testing.T) {
	r, err := New(setupStore(t), WithEmbedder(fixedEmbedder([]float32{0.5, 0.5, 0})))
	require.NoError(t, err)

	req := Request{Query: "revenue growth this year", TopK: 4}
	first, err := r.Retrieve(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRetrieve_Concurrent(t *testing.T) {
	r, err := New(setupStore(t), WithEmbedder(fixedEmbedder([]float32{1, 0, 0})))
	require.NoError(t, err)

	want, err := r.Retrieve(context.Background(), Request{Query: "revenue growth"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Retrieve(context.Background(), Request{Query: "revenue growth"})
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestCapabilities(t *testing.T) {
	r, err := New(storage.NewMemoryStorage())
	require.NoError(t, err)
	caps := r.Capabilities()
	assert.False(t, caps.Semantic)
	assert.Equal(t, []Method{MethodKeyword}, caps.Methods)
	assert.Equal(t, ranking.DefaultWeights(), caps.Weights)
	assert.Equal(t, DefaultTopK, caps.TopK)

	r, err = New(storage.NewMemoryStorage(), WithEmbedder(fixedEmbedder([]float32{1})))
	require.NoError(t, err)
	caps = r.Capabilities()
	assert.True(t, caps.Semantic)
	assert.Equal(t, "mock", caps.Provider)
	assert.Equal(t, 3, caps.Dimension)
	assert.ElementsMatch(t, []Method{MethodKeyword, MethodSemantic, MethodHybrid}, caps.Methods)
}

// recordingMonitor collects hook calls
type recordingMonitor struct {
	mu         sync.Mutex
	started    int
	fetched    []int
	embeddings []bool
	fallbacks  []string
	finished   [][]types.ScoredChunk
}

func (m *recordingMonitor) Start(Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMonitor) AfterFetch(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, n)
}

func (m *recordingMonitor) AfterEmbedding(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings = append(m.embeddings, ok)
}

func (m *recordingMonitor) Fallback(from, to Method) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks = append(m.fallbacks, string(from)+"->"+string(to))
}

func (m *recordingMonitor) Finish(results []types.ScoredChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, results)
}

func TestMonitor(t *testing.T) {
	monitor := &recordingMonitor{}
	r, err := New(setupStore(t), WithEmbedder(fixedEmbedder([]float32{1, 0, 0})), WithMonitor(monitor))
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), Request{Query: "revenue", DocumentID: "report", Method: MethodHybrid})
	require.NoError(t, err)

	assert.Equal(t, 1, monitor.started)
	assert.Equal(t, []int{3}, monitor.fetched)
	assert.Equal(t, []bool{true}, monitor.embeddings)
	assert.Empty(t, monitor.fallbacks)
	require.Len(t, monitor.finished, 1)
	assert.Equal(t, results, monitor.finished[0])
}

func TestRetrieve_PrecomputedEmbedding(t *testing.T) {
	ctx := context.Background()
	emb := fixedEmbedder([]float32{0, 1, 0})
	r, err := New(setupStore(t), WithEmbedder(emb))
	require.NoError(t, err)

	resp, err := r.Search(ctx, Request{
		Query:      "anything",
		DocumentID: "report",
		Method:     MethodSemantic,
		Embedding:  []float32{1, 0, 0},
	})
	require.NoError(t, err)
	assert.Equal(t, MethodSemantic, resp.Used)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "c3", resp.Results[0].ChunkID)
	assert.Equal(t, 0, emb.callCount(), "precomputed vector skips the provider")

	// Works without any embedder configured
	r, err = New(setupStore(t))
	require.NoError(t, err)
	resp, err = r.Search(ctx, Request{Query: "revenue", DocumentID: "report", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, MethodHybrid, resp.Used)
	require.NotNil(t, resp.Results[0].SemanticScore)
}
