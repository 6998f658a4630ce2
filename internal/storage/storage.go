package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/chunkrank-mcp/pkg/types"
)

var (
	// ErrClosed is returned when a store is used after Close
	ErrClosed = errors.New("store is closed")
	// ErrUnknownBackend is returned by Open for an unsupported backend name
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// ChunkStore is the chunk source read by the retriever and written by ingest.
// Implementations must be safe for concurrent readers.
type ChunkStore interface {
	// ReadAll returns every chunk in the store
	ReadAll(ctx context.Context) ([]types.Chunk, error)

	// ListByDocument returns the chunks belonging to one document
	ListByDocument(ctx context.Context, documentID string) ([]types.Chunk, error)

	// Upsert inserts chunks or replaces existing ones with the same
	// (document ID, chunk key) pair. It returns the number of chunks written.
	Upsert(ctx context.Context, chunks ...types.Chunk) (int, error)

	// Stats summarizes the store's contents
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the underlying resources
	Close() error
}

// Stats contains counts describing a chunk store
type Stats struct {
	Backend         string
	Documents       int
	Chunks          int
	EmbeddedChunks  int
	SizeBytes       int64
	LastUpdatedAt   time.Time // Zero when the store is empty
	VectorExtension bool
}

// EmbeddingCoverage returns the fraction of chunks that carry an embedding
func (s *Stats) EmbeddingCoverage() float64 {
	if s.Chunks == 0 {
		return 0
	}
	return float64(s.EmbeddedChunks) / float64(s.Chunks)
}

// Open creates a chunk store for the named backend. path is ignored by the
// memory backend; an empty path opens badger in memory.
func Open(backend, path string) (ChunkStore, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStorage(path)
	case BackendBadger:
		return NewBadgerStorage(path)
	case BackendMemory:
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
	}
}

// prepareChunks validates chunks and fills the fields every backend stores
func prepareChunks(chunks []types.Chunk, now time.Time) ([]types.Chunk, error) {
	prepared := make([]types.Chunk, len(chunks))
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		prepared[i] = chunks[i].Clone()
		if prepared[i].CreatedAt.IsZero() {
			prepared[i].CreatedAt = now
		}
	}
	return prepared, nil
}
