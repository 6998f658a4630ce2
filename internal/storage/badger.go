package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// chunkPrefix namespaces chunk records. Keys are chunk/<document_id>/<chunk_key>
// with both parts path-escaped, so a document's chunks form one prefix range.
const chunkPrefix = "chunk/"

// BadgerStorage implements ChunkStore on an embedded BadgerDB
type BadgerStorage struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// chunkRecord is the stored form of a chunk
type chunkRecord struct {
	ChunkID    string    `json:"chunk_id,omitempty"`
	DocumentID string    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	Content    string    `json:"content"`
	Embedding  []byte    `json:"embedding,omitempty"` // little-endian float32
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewBadgerStorage opens a BadgerDB database in dirPath, creating the
// directory if needed. An empty dirPath opens an in-memory database.
func NewBadgerStorage(dirPath string) (*BadgerStorage, error) {
	var opts badger.Options

	if dirPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(dirPath)
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dirPath, 0755); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, err
		} else if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dirPath)
		}
		opts = badger.DefaultOptions(dirPath)
	}

	logger := slog.Default().With("component", "badger-store")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerStorage{db: db, logger: logger}, nil
}

// Close closes the BadgerDB database.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}

func documentPrefix(documentID string) []byte {
	return []byte(chunkPrefix + url.PathEscape(documentID) + "/")
}

func chunkKey(documentID, key string) []byte {
	return append(documentPrefix(documentID), url.PathEscape(key)...)
}

// ReadAll returns every chunk ordered by document and chunk key
func (b *BadgerStorage) ReadAll(ctx context.Context) ([]types.Chunk, error) {
	return b.scan(ctx, []byte(chunkPrefix))
}

// ListByDocument returns one document's chunks ordered by chunk key
func (b *BadgerStorage) ListByDocument(ctx context.Context, documentID string) ([]types.Chunk, error) {
	return b.scan(ctx, documentPrefix(documentID))
}

func (b *BadgerStorage) scan(ctx context.Context, prefix []byte) ([]types.Chunk, error) {
	if b.db.IsClosed() {
		return nil, ErrClosed
	}

	chunks := make([]types.Chunk, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record chunkRecord
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", iter.Item().Key(), err)
			}

			chunks = append(chunks, types.Chunk{
				ChunkID:    record.ChunkID,
				DocumentID: record.DocumentID,
				PageNumber: record.PageNumber,
				Content:    record.Content,
				Embedding:  deserializeVector(record.Embedding),
				CreatedAt:  record.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// Upsert writes chunks in one transaction, keeping created_at of replaced records
func (b *BadgerStorage) Upsert(ctx context.Context, chunks ...types.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if b.db.IsClosed() {
		return 0, ErrClosed
	}

	now := time.Now().UTC()
	prepared, err := prepareChunks(chunks, now)
	if err != nil {
		return 0, err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		for i := range prepared {
			if err := ctx.Err(); err != nil {
				return err
			}

			chunk := &prepared[i]
			key := chunkKey(chunk.DocumentID, chunk.Key())
			record := chunkRecord{
				ChunkID:    chunk.ChunkID,
				DocumentID: chunk.DocumentID,
				PageNumber: chunk.PageNumber,
				Content:    chunk.Content,
				Embedding:  serializeVector(chunk.Embedding),
				CreatedAt:  chunk.CreatedAt.UTC(),
				UpdatedAt:  now,
			}

			if item, err := txn.Get(key); err == nil {
				var existing chunkRecord
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &existing)
				}); err == nil {
					record.CreatedAt = existing.CreatedAt
				}
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			data, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("encode chunk %s: %w", chunk.Key(), err)
			}
			if err := txn.Set(key, data); err != nil {
				return fmt.Errorf("write chunk %s: %w", chunk.Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.logger.Debug("upserted chunks", "count", len(prepared))
	return len(prepared), nil
}

// Stats walks the chunk range once to count documents, chunks and embeddings
func (b *BadgerStorage) Stats(ctx context.Context) (*Stats, error) {
	if b.db.IsClosed() {
		return nil, ErrClosed
	}

	stats := &Stats{Backend: BackendBadger}
	documents := make(map[string]struct{})

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record chunkRecord
			if err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				return err
			}

			stats.Chunks++
			documents[record.DocumentID] = struct{}{}
			if len(record.Embedding) > 0 {
				stats.EmbeddedChunks++
			}
			if record.UpdatedAt.After(stats.LastUpdatedAt) {
				stats.LastUpdatedAt = record.UpdatedAt
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Documents = len(documents)
	lsm, vlog := b.db.Size()
	stats.SizeBytes = lsm + vlog
	return stats, nil
}
