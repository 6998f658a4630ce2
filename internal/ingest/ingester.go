package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/dshills/chunkrank-mcp/internal/chunker"
	"github.com/dshills/chunkrank-mcp/internal/embedder"
	"github.com/dshills/chunkrank-mcp/internal/storage"
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// DefaultStoreBatchSize is the number of chunks written per Upsert call
const DefaultStoreBatchSize = 500

// Ingester turns chunk records into stored chunks: it assigns IDs, back-fills
// missing embeddings on a worker pool, and upserts in batches.
type Ingester struct {
	store          storage.ChunkStore
	embedder       embedder.Embedder
	pool           *ants.Pool
	embedBatchSize int
	storeBatchSize int
	newID          func() string
	logger         *slog.Logger
}

// Option configures an Ingester.
type Option func(*Ingester) error

// WithEmbedder enables embedding back-fill
func WithEmbedder(e embedder.Embedder) Option {
	return func(i *Ingester) error {
		i.embedder = e
		return nil
	}
}

// WithPoolSize sets how many embedding batches run at once.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(i *Ingester) error {
		if size < 1 {
			size = 1
		}

		if i.pool != nil {
			i.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		i.pool = pool
		return nil
	}
}

// WithEmbedBatchSize sets the number of texts per embedding request
func WithEmbedBatchSize(size int) Option {
	return func(i *Ingester) error {
		if size < 1 || size > embedder.MaxBatchSize {
			return fmt.Errorf("embed batch size must be between 1 and %d, got %d", embedder.MaxBatchSize, size)
		}
		i.embedBatchSize = size
		return nil
	}
}

// WithStoreBatchSize sets the number of chunks per Upsert call
func WithStoreBatchSize(size int) Option {
	return func(i *Ingester) error {
		if size < 1 {
			return fmt.Errorf("store batch size must be positive, got %d", size)
		}
		i.storeBatchSize = size
		return nil
	}
}

// WithIDGenerator replaces the random chunk ID source
func WithIDGenerator(fn func() string) Option {
	return func(i *Ingester) error {
		if fn != nil {
			i.newID = fn
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Ingester) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger.With("component", "ingest")
		return nil
	}
}

// New creates an Ingester writing to store. Call Release when done.
func New(store storage.ChunkStore, opts ...Option) (*Ingester, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	i := &Ingester{
		store:          store,
		pool:           pool,
		embedBatchSize: embedder.MaxBatchSize,
		storeBatchSize: DefaultStoreBatchSize,
		newID:          uuid.NewString,
		logger:         slog.Default().With("component", "ingest"),
	}

	for _, opt := range opts {
		if optErr := opt(i); optErr != nil {
			i.Release()
			return nil, optErr
		}
	}

	return i, nil
}

// Release stops the worker pool
func (i *Ingester) Release() {
	if i.pool != nil {
		i.pool.Release()
	}
}

// Request describes one ingest
type Request struct {
	DocumentID string
	Records    []Record
	Embed      bool // Back-fill embeddings for records that lack one
	DryRun     bool // Build chunks without writing them
	MaxTokens  int  // Split records above this estimated size; zero disables splitting
}

// Statistics contains statistics about the ingest operation
type Statistics struct {
	ChunksLoaded        int
	ChunksStored        int
	RecordsSplit        int
	IDsAssigned         int
	EmbeddingsGenerated int
	EmbeddingsFailed    int
	Duration            time.Duration
	ErrorMessages       []string
	Chunks              []types.Chunk
}

// Ingest builds chunks for req.DocumentID and stores them. Embedding
// failures are recorded in the statistics; the affected chunks are still
// stored without a vector so keyword ranking can use them.
func (i *Ingester) Ingest(ctx context.Context, req Request) (*Statistics, error) {
	if req.DocumentID == "" {
		return nil, ErrDocumentIDRequired
	}

	startTime := time.Now()
	stats := &Statistics{
		ChunksLoaded:  len(req.Records),
		ErrorMessages: make([]string, 0),
	}

	chunks := i.buildChunks(req.DocumentID, req.Records, req.MaxTokens, stats)

	if req.Embed {
		if i.embedder == nil {
			i.logger.Warn("embedding requested but no provider is configured")
			stats.ErrorMessages = append(stats.ErrorMessages, "embedding skipped: no provider configured")
		} else if err := i.backfill(ctx, chunks, stats); err != nil {
			return nil, err
		}
	}

	if !req.DryRun {
		stored, err := i.write(ctx, chunks)
		stats.ChunksStored = stored
		if err != nil {
			return stats, err
		}
	}

	stats.Chunks = chunks
	stats.Duration = time.Since(startTime)

	i.logger.Info("ingest complete",
		"document_id", req.DocumentID,
		"loaded", stats.ChunksLoaded,
		"stored", stats.ChunksStored,
		"embedded", stats.EmbeddingsGenerated,
		"embed_failures", stats.EmbeddingsFailed,
		"dry_run", req.DryRun,
		"duration", stats.Duration)

	return stats, nil
}

func (i *Ingester) buildChunks(documentID string, records []Record, maxTokens int, stats *Statistics) []types.Chunk {
	createdAt := time.Now().UTC()
	chunks := make([]types.Chunk, 0, len(records))
	for n := range records {
		rec := &records[n]
		page := rec.PageNo()
		if page < 0 {
			page = 0
		}
		body := rec.Body()

		var pieces []string
		if maxTokens > 0 && chunker.EstimateTokenCount(body) > maxTokens {
			pieces = chunker.Split(body, maxTokens)
		}

		if len(pieces) <= 1 {
			chunks = append(chunks, types.Chunk{
				ChunkID:    i.chunkID(rec.ChunkID, 0, stats),
				DocumentID: documentID,
				PageNumber: page,
				Content:    body,
				Embedding:  rec.Embedding,
				CreatedAt:  createdAt,
			})
			continue
		}

		// A supplied embedding describes the whole record, so pieces get none
		stats.RecordsSplit++
		for k, piece := range pieces {
			chunks = append(chunks, types.Chunk{
				ChunkID:    i.chunkID(rec.ChunkID, k+1, stats),
				DocumentID: documentID,
				PageNumber: page,
				Content:    piece,
				CreatedAt:  createdAt,
			})
		}
	}
	return chunks
}

// chunkID keeps a supplied ID, suffixed with the piece number for split
// records, and generates one otherwise
func (i *Ingester) chunkID(supplied string, piece int, stats *Statistics) string {
	if supplied == "" {
		stats.IDsAssigned++
		return i.newID()
	}
	if piece > 0 {
		return supplied + "#" + strconv.Itoa(piece)
	}
	return supplied
}

// backfill embeds chunks that have content but no vector. Batches run on the
// worker pool and write into disjoint indexes of chunks.
func (i *Ingester) backfill(ctx context.Context, chunks []types.Chunk, stats *Statistics) error {
	var pending []int
	for n := range chunks {
		if !chunks[n].HasEmbedding() && chunks[n].Content != "" {
			pending = append(pending, n)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	i.logger.Debug("back-filling embeddings", "chunks", len(pending), "batch_size", i.embedBatchSize)

	var (
		wg sync.WaitGroup
		mu sync.Mutex // Protects stats
	)

	for start := 0; start < len(pending); start += i.embedBatchSize {
		end := start + i.embedBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		wg.Add(1)
		err := i.pool.Submit(func() {
			defer wg.Done()

			generated, err := i.embedBatch(ctx, chunks, batch)

			mu.Lock()
			defer mu.Unlock()
			stats.EmbeddingsGenerated += generated
			if err != nil {
				stats.EmbeddingsFailed += len(batch)
				stats.ErrorMessages = append(stats.ErrorMessages, err.Error())
			}
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submit embedding batch: %w", err)
		}
	}

	wg.Wait()
	return ctx.Err()
}

func (i *Ingester) embedBatch(ctx context.Context, chunks []types.Chunk, batch []int) (int, error) {
	texts := make([]string, len(batch))
	for k, n := range batch {
		texts[k] = chunks[n].Content
	}

	resp, err := i.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		i.logger.Error("error generating embeddings", "count", len(texts), "err", err)
		return 0, fmt.Errorf("embed chunks %s..%s: %w", chunks[batch[0]].ChunkID, chunks[batch[len(batch)-1]].ChunkID, err)
	}
	if len(resp.Embeddings) != len(batch) {
		return 0, fmt.Errorf("embedding result mismatch. expected %d, received %d", len(batch), len(resp.Embeddings))
	}

	for k, n := range batch {
		chunks[n].Embedding = resp.Embeddings[k].Vector
	}
	return len(batch), nil
}

func (i *Ingester) write(ctx context.Context, chunks []types.Chunk) (int, error) {
	stored := 0
	for start := 0; start < len(chunks); start += i.storeBatchSize {
		end := start + i.storeBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		n, err := i.store.Upsert(ctx, chunks[start:end]...)
		stored += n
		if err != nil {
			return stored, fmt.Errorf("store chunks %d-%d: %w", start, end-1, err)
		}
	}
	return stored, nil
}
