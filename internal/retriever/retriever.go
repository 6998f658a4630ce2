package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/chunkrank-mcp/internal/embedder"
	"github.com/dshills/chunkrank-mcp/internal/ranking"
	"github.com/dshills/chunkrank-mcp/internal/storage"
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// Method selects how chunks are ranked
type Method string

const (
	MethodKeyword  Method = "keyword"  // Token overlap only
	MethodSemantic Method = "semantic" // Embedding similarity only
	MethodHybrid   Method = "hybrid"   // Weighted blend of both
)

const (
	// DefaultTopK is used when a request does not ask for a positive count
	DefaultTopK = 5

	// DefaultEmbedTimeout bounds how long a query embedding may take
	DefaultEmbedTimeout = 10 * time.Second
)

// ParseMethod normalizes a method name. The empty string selects hybrid.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return MethodHybrid, nil
	case MethodKeyword, MethodSemantic, MethodHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
}

// Request describes one retrieval
type Request struct {
	Query      string
	DocumentID string // Empty means every document
	TopK       int    // Zero or negative means the configured default
	Method     Method // Empty means hybrid

	// Embedding is an optional precomputed query vector. When set the
	// embedder is not called.
	Embedding []float32
}

// Response carries results plus how they were produced
type Response struct {
	Results    []types.ScoredChunk
	Requested  Method
	Used       Method // Differs from Requested after a fallback
	Candidates int
	Duration   time.Duration
}

// Capabilities reports what a Retriever was built with
type Capabilities struct {
	Semantic  bool
	Provider  string
	Model     string
	Dimension int
	Methods   []Method
	Weights   ranking.Weights
	TopK      int
}

// Retriever fetches candidate chunks and ranks them against a query.
// It holds no per-request state and is safe for concurrent use.
type Retriever struct {
	store        storage.ChunkStore
	embedder     embedder.Embedder // nil disables semantic ranking
	weights      ranking.Weights
	defaultTopK  int
	embedTimeout time.Duration
	logger       *slog.Logger
	monitor      Monitor
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithEmbedder enables semantic and hybrid ranking. A nil embedder leaves
// the retriever in keyword-only mode.
func WithEmbedder(e embedder.Embedder) Option {
	return func(r *Retriever) error {
		r.embedder = e
		return nil
	}
}

// WithWeights sets the hybrid weights. They are normalized at ranking time.
func WithWeights(w ranking.Weights) Option {
	return func(r *Retriever) error {
		if w.Semantic < 0 || w.Keyword < 0 {
			return ErrInvalidWeights
		}
		r.weights = w
		return nil
	}
}

// WithDefaultTopK sets the result count used when a request gives none
func WithDefaultTopK(k int) Option {
	return func(r *Retriever) error {
		if k <= 0 {
			return fmt.Errorf("default top_k must be positive, got %d", k)
		}
		r.defaultTopK = k
		return nil
	}
}

// WithEmbedTimeout bounds query embedding. Zero disables the bound.
func WithEmbedTimeout(d time.Duration) Option {
	return func(r *Retriever) error {
		r.embedTimeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "retriever")
		return nil
	}
}

// WithMonitor installs hooks observing each retrieval
func WithMonitor(m Monitor) Option {
	return func(r *Retriever) error {
		if m == nil {
			m = &noopMonitor{}
		}
		r.monitor = m
		return nil
	}
}

// New creates a Retriever over store
func New(store storage.ChunkStore, opts ...Option) (*Retriever, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	r := &Retriever{
		store:        store,
		weights:      ranking.DefaultWeights(),
		defaultTopK:  DefaultTopK,
		embedTimeout: DefaultEmbedTimeout,
		logger:       slog.Default().With("component", "retriever"),
		monitor:      &noopMonitor{},
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Capabilities reports whether semantic ranking is available and with what
func (r *Retriever) Capabilities() Capabilities {
	c := Capabilities{
		Methods: []Method{MethodKeyword},
		Weights: r.weights,
		TopK:    r.defaultTopK,
	}
	if r.embedder != nil {
		c.Semantic = true
		c.Provider = r.embedder.Provider()
		c.Model = r.embedder.Model()
		c.Dimension = r.embedder.Dimension()
		c.Methods = append(c.Methods, MethodSemantic, MethodHybrid)
	}
	return c
}

// Retrieve ranks chunks for req. Store and embedding failures degrade the
// result instead of failing it: a store error yields an empty list and a
// missing query embedding falls back to keyword ranking. The only error
// returned is ErrInvalidMethod.
func (r *Retriever) Retrieve(ctx context.Context, req Request) ([]types.ScoredChunk, error) {
	resp, err := r.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Search is Retrieve with metadata about the ranking that was performed
func (r *Retriever) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	method, err := ParseMethod(string(req.Method))
	if err != nil {
		return nil, err
	}
	req.Method = method
	if req.TopK <= 0 {
		req.TopK = r.defaultTopK
	}

	r.monitor.Start(req)

	chunks, query, fetchErr := r.gather(ctx, req)

	resp := &Response{
		Requested:  method,
		Used:       method,
		Candidates: len(chunks),
	}

	if fetchErr != nil {
		r.logger.Error("chunk fetch failed, returning no results",
			"document_id", req.DocumentID, "err", fetchErr)
		resp.Results = []types.ScoredChunk{}
		resp.Duration = time.Since(startTime)
		r.monitor.Finish(resp.Results)
		return resp, nil
	}

	if method != MethodKeyword && !query.HasEmbedding() {
		resp.Used = MethodKeyword
		r.monitor.Fallback(method, MethodKeyword)
		r.logger.Debug("query embedding unavailable, using keyword ranking", "requested", method)
	}

	switch resp.Used {
	case MethodKeyword:
		resp.Results = ranking.KeywordRetrieve(query.Text, chunks, req.TopK)
	case MethodSemantic:
		resp.Results = ranking.SemanticRetrieve(query.Embedding, chunks, req.TopK)
	case MethodHybrid:
		resp.Results = ranking.HybridRetrieve(query.Text, query.Embedding, chunks, req.TopK, r.weights)
	}

	resp.Duration = time.Since(startTime)
	r.monitor.Finish(resp.Results)

	r.logger.Debug("retrieval complete",
		"method", resp.Used,
		"candidates", resp.Candidates,
		"results", len(resp.Results),
		"duration", resp.Duration)

	return resp, nil
}

// gather fetches candidate chunks and, when needed, the query embedding
// concurrently so a slow provider does not delay the store read. Embedding
// failures are logged and leave the query without a vector.
func (r *Retriever) gather(ctx context.Context, req Request) ([]types.Chunk, types.Query, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	query := types.Query{Text: req.Query, Embedding: req.Embedding}

	var (
		chunks   []types.Chunk
		fetchErr error
	)

	var g errgroup.Group

	g.Go(func() error {
		chunks, fetchErr = r.fetch(ctx, req.DocumentID)
		if fetchErr != nil {
			// Nothing to rank, so stop waiting on the provider
			cancel()
			return nil
		}
		r.monitor.AfterFetch(len(chunks))
		return nil
	})

	if req.Method != MethodKeyword && !query.HasEmbedding() {
		g.Go(func() error {
			query.Embedding = r.embedQuery(ctx, req.Query)
			r.monitor.AfterEmbedding(query.HasEmbedding())
			return nil
		})
	}

	_ = g.Wait()
	return chunks, query, fetchErr
}

func (r *Retriever) fetch(ctx context.Context, documentID string) ([]types.Chunk, error) {
	if documentID != "" {
		return r.store.ListByDocument(ctx, documentID)
	}
	return r.store.ReadAll(ctx)
}

// embedQuery returns the query vector, or nil when no provider is configured
// or the provider fails
func (r *Retriever) embedQuery(ctx context.Context, query string) []float32 {
	if r.embedder == nil {
		return nil
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}

	if r.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.embedTimeout)
		defer cancel()
	}

	emb, err := r.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Warn("query embedding failed, falling back to keyword ranking",
				"provider", r.embedder.Provider(), "err", err)
		}
		return nil
	}
	if emb == nil || len(emb.Vector) == 0 {
		r.logger.Warn("provider returned an empty query embedding", "provider", r.embedder.Provider())
		return nil
	}
	return emb.Vector
}
