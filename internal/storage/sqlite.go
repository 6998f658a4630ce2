package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// SQLiteStorage implements ChunkStore using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const chunkColumns = `chunk_id, chunk_key, document_id, page_number, content, embedding, created_at`

// ReadAll returns every chunk in insertion order
func (s *SQLiteStorage) ReadAll(ctx context.Context) ([]types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks ORDER BY id`
	return s.listChunks(ctx, s.db, query)
}

// ListByDocument returns one document's chunks in insertion order
func (s *SQLiteStorage) ListByDocument(ctx context.Context, documentID string) ([]types.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE document_id = ? ORDER BY id`
	return s.listChunks(ctx, s.db, query, documentID)
}

func (s *SQLiteStorage) listChunks(ctx context.Context, q querier, query string, args ...interface{}) ([]types.Chunk, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]types.Chunk, 0)
	for rows.Next() {
		var chunk types.Chunk
		var storedKey string
		var blob []byte

		if err := rows.Scan(
			&chunk.ChunkID, &storedKey, &chunk.DocumentID, &chunk.PageNumber,
			&chunk.Content, &blob, &chunk.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}

		chunk.Embedding = deserializeVector(blob)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// Upsert writes chunks in a single transaction. An existing row with the
// same document and chunk key is replaced but keeps its created_at.
func (s *SQLiteStorage) Upsert(ctx context.Context, chunks ...types.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	prepared, err := prepareChunks(chunks, now)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range prepared {
		if err := upsertChunkWithQuerier(ctx, tx, &prepared[i], now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return len(prepared), nil
}

func upsertChunkWithQuerier(ctx context.Context, q querier, chunk *types.Chunk, now time.Time) error {
	// Use atomic INSERT ... ON CONFLICT to avoid race conditions
	query := `
		INSERT INTO chunks (
			document_id, chunk_key, chunk_id, page_number, content,
			embedding, dimension, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id, chunk_key)
		DO UPDATE SET
			chunk_id = excluded.chunk_id,
			page_number = excluded.page_number,
			content = excluded.content,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		chunk.DocumentID, chunk.Key(), chunk.ChunkID, chunk.PageNumber, chunk.Content,
		serializeVector(chunk.Embedding), len(chunk.Embedding),
		chunk.CreatedAt.UTC(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", chunk.Key(), err)
	}
	return nil
}

// Stats counts documents, chunks and embeddings
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Backend:         BackendSQLite,
		VectorExtension: VectorExtensionAvailable,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT document_id), COALESCE(SUM(CASE WHEN dimension > 0 THEN 1 ELSE 0 END), 0)
		FROM chunks
	`).Scan(&stats.Chunks, &stats.Documents, &stats.EmbeddedChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}

	// Selecting the column keeps its declared type so drivers decode the timestamp
	err = s.db.QueryRowContext(ctx, "SELECT updated_at FROM chunks ORDER BY updated_at DESC LIMIT 1").Scan(&stats.LastUpdatedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read last update: %w", err)
	}

	// Calculate database size
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.SizeBytes = pageCount * pageSize
	}

	return stats, nil
}
