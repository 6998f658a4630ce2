package ingest

import "errors"

var (
	// ErrDocumentIDRequired is returned when an ingest names no document
	ErrDocumentIDRequired = errors.New("document ID is required")
	// ErrStoreRequired is returned by New when no chunk store is given
	ErrStoreRequired = errors.New("chunk store is required")
	// ErrNoChunks is returned when a source holds no chunk records
	ErrNoChunks = errors.New("no chunks found")
	// ErrInProgress is returned when another ingest holds the lock
	ErrInProgress = errors.New("ingest already in progress")
)
