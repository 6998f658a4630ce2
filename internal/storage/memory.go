package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// MemoryStorage is a ChunkStore held entirely in memory. It backs tests and
// retrieval over chunks supplied inline with a request.
type MemoryStorage struct {
	mu      sync.RWMutex
	chunks  []types.Chunk
	index   map[string]int // document_id + "\x00" + chunk key -> position
	updated time.Time
	closed  bool
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{index: make(map[string]int)}
}

// NewMemoryStorageFrom creates an in-memory store holding chunks. Unlike
// Upsert it accepts chunks without a document ID.
func NewMemoryStorageFrom(chunks []types.Chunk) *MemoryStorage {
	m := NewMemoryStorage()
	for i := range chunks {
		m.put(chunks[i].Clone())
	}
	return m
}

func memoryKey(c *types.Chunk) string {
	return c.DocumentID + "\x00" + c.Key()
}

func (m *MemoryStorage) put(chunk types.Chunk) {
	key := memoryKey(&chunk)
	if pos, ok := m.index[key]; ok {
		if !m.chunks[pos].CreatedAt.IsZero() {
			chunk.CreatedAt = m.chunks[pos].CreatedAt
		}
		m.chunks[pos] = chunk
		return
	}
	m.index[key] = len(m.chunks)
	m.chunks = append(m.chunks, chunk)
}

func (m *MemoryStorage) ReadAll(ctx context.Context) ([]types.Chunk, error) {
	return m.filter(ctx, func(types.Chunk) bool { return true })
}

func (m *MemoryStorage) ListByDocument(ctx context.Context, documentID string) ([]types.Chunk, error) {
	return m.filter(ctx, func(c types.Chunk) bool { return c.DocumentID == documentID })
}

func (m *MemoryStorage) filter(ctx context.Context, keep func(types.Chunk) bool) ([]types.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	chunks := make([]types.Chunk, 0, len(m.chunks))
	for i := range m.chunks {
		if keep(m.chunks[i]) {
			chunks = append(chunks, m.chunks[i].Clone())
		}
	}
	return chunks, nil
}

func (m *MemoryStorage) Upsert(ctx context.Context, chunks ...types.Chunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	prepared, err := prepareChunks(chunks, now)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	for _, chunk := range prepared {
		m.put(chunk)
	}
	if len(prepared) > 0 {
		m.updated = now
	}
	return len(prepared), nil
}

func (m *MemoryStorage) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	stats := &Stats{
		Backend:       BackendMemory,
		Chunks:        len(m.chunks),
		LastUpdatedAt: m.updated,
	}
	documents := make(map[string]struct{})
	for i := range m.chunks {
		documents[m.chunks[i].DocumentID] = struct{}{}
		if m.chunks[i].HasEmbedding() {
			stats.EmbeddedChunks++
		}
	}
	stats.Documents = len(documents)
	return stats, nil
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
