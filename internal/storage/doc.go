// Package storage persists chunks for retrieval.
//
// Three ChunkStore implementations are provided:
//
//   - SQLiteStorage: the default. One chunks table with a UNIQUE
//     (document_id, chunk_key) constraint, schema versioned by semver
//     migrations. Built on modernc.org/sqlite, or on mattn/go-sqlite3 with
//     the sqlite_vec build tag.
//   - BadgerStorage: an embedded key-value store. Chunks are JSON records
//     under chunk/<document_id>/<chunk_key>, so document scoping is a prefix
//     scan.
//   - MemoryStorage: process-local, used by tests and for chunks passed
//     inline with a request.
//
// The chunk key is the chunk ID when ingestion supplied one and a
// content-derived key otherwise, so re-ingesting the same content replaces
// rather than duplicates it.
//
// Embeddings are stored as little-endian float32 blobs in every backend.
//
// # Ordering
//
// SQLite and memory stores return chunks in insertion order. Badger returns
// them in key order. Replacing a chunk keeps its original position in the
// SQLite and memory stores.
//
// # Usage
//
//	store, err := storage.Open(storage.BackendSQLite, "chunks.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	n, err := store.Upsert(ctx, chunks...)
//	docChunks, err := store.ListByDocument(ctx, "report-2024")
package storage
