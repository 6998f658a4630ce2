package types

import (
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// derivedKeyPrefix marks chunk keys computed from content rather than supplied by ingestion
const derivedKeyPrefix = "h:"

// Chunk represents a retrievable unit of document text
type Chunk struct {
	// Identification
	ChunkID    string `json:"chunk_id,omitempty"` // Optional - derived from content when empty
	DocumentID string `json:"document_id"`
	PageNumber int    `json:"page_number"`

	// Content
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"` // Nil or empty means no semantic scoring

	// Metadata
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the identifier used to join keyword and semantic scores.
// Chunks without a ChunkID get a stable key derived from their content.
func (c *Chunk) Key() string {
	if c.ChunkID != "" {
		return c.ChunkID
	}
	return DeriveKey(c.Content)
}

// HasEmbedding reports whether the chunk can take part in semantic scoring
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Validate checks the fields the storage layer depends on
func (c *Chunk) Validate() error {
	if c.DocumentID == "" {
		return errors.New("document ID is required")
	}
	if c.PageNumber < 0 {
		return errors.New("page number cannot be negative")
	}
	return nil
}

// Clone returns a copy of the chunk that shares no memory with the original
func (c *Chunk) Clone() Chunk {
	dup := *c
	if c.Embedding != nil {
		dup.Embedding = make([]float32, len(c.Embedding))
		copy(dup.Embedding, c.Embedding)
	}
	return dup
}

// DeriveKey computes a content-based chunk key using a 64-bit BLAKE2b digest
func DeriveKey(content string) string {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(content))
	return derivedKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// IsDerivedKey reports whether key was produced by DeriveKey
func IsDerivedKey(key string) bool {
	return len(key) > len(derivedKeyPrefix) && key[:len(derivedKeyPrefix)] == derivedKeyPrefix
}
