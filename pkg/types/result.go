package types

// ScoredChunk is a chunk enriched with the scores that ranked it
type ScoredChunk struct {
	Chunk

	// Scoring
	Score         float64  `json:"score"`          // Final score used for ordering
	SemanticScore *float64 `json:"semantic_score"` // Nullable - absent when no query embedding was used
	KeywordScore  *float64 `json:"keyword_score"`  // Nullable - absent for pure semantic results
}

// Query is the text being searched for plus an optional precomputed embedding
type Query struct {
	Text      string
	Embedding []float32
}

// HasEmbedding reports whether the query carries a usable embedding
func (q Query) HasEmbedding() bool {
	return len(q.Embedding) > 0
}

// Float64Ptr returns a pointer to v, for populating optional score fields
func Float64Ptr(v float64) *float64 {
	return &v
}
