package ranking

import (
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// Weights are the mixture proportions for semantic and keyword scores
type Weights struct {
	Semantic float64
	Keyword  float64
}

// DefaultWeights returns the default 70/30 semantic/keyword blend
func DefaultWeights() Weights {
	return Weights{Semantic: 0.7, Keyword: 0.3}
}

// Normalize scales the weights so they sum to 1.
// A non-positive sum yields zero weights, which makes every combined score 0.
func (w Weights) Normalize() Weights {
	total := w.Semantic + w.Keyword
	if total <= 0 {
		return Weights{}
	}
	return Weights{
		Semantic: w.Semantic / total,
		Keyword:  w.Keyword / total,
	}
}

// HybridRetrieve blends keyword overlap and embedding similarity into one ranking.
//
// Each signal is rescaled to [0,1] by its own maximum before the weighted sum,
// so neither dominates purely through its numeric range. Without a query
// embedding the semantic signal is absent: SemanticScore stays nil and the
// ranking order matches KeywordRetrieve.
//
// Chunks sharing a document and key collapse onto their first occurrence.
// Equal chunk IDs in different documents stay distinct.
func HybridRetrieve(query string, queryEmbedding []float32, chunks []types.Chunk, topK int, weights Weights) []types.ScoredChunk {
	if topK <= 0 || len(chunks) == 0 {
		return []types.ScoredChunk{}
	}

	w := weights.Normalize()
	useSemantic := len(queryEmbedding) > 0
	queryTokens := Tokenize(query)

	// Collect per-key signals in input order
	entries := make([]hybridEntry, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		key := joinKey(&chunks[i])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		entry := hybridEntry{
			chunk:   &chunks[i],
			keyword: keywordScore(queryTokens, chunks[i].Content),
		}
		if useSemantic && chunks[i].HasEmbedding() {
			entry.semantic = CosineSimilarity(queryEmbedding, chunks[i].Embedding)
			entry.hasSemantic = true
		}
		entries = append(entries, entry)
	}

	rescaleEntries(entries)

	scored := make([]types.ScoredChunk, len(entries))
	for i, e := range entries {
		sc := types.ScoredChunk{
			Chunk:        *e.chunk,
			Score:        w.Semantic*e.semantic + w.Keyword*e.keyword,
			KeywordScore: types.Float64Ptr(e.keyword),
		}
		if useSemantic {
			sc.SemanticScore = types.Float64Ptr(e.semantic)
		}
		scored[i] = sc
	}

	sortScored(scored)
	return limit(scored, topK)
}

// joinKey identifies a chunk across documents
func joinKey(c *types.Chunk) string {
	return c.DocumentID + "\x00" + c.Key()
}

// hybridEntry holds the raw signals for one unique chunk
type hybridEntry struct {
	chunk       *types.Chunk
	keyword     float64
	semantic    float64
	hasSemantic bool
}

// rescaleEntries divides each signal by its own maximum.
// A signal whose maximum is not positive is left untouched.
func rescaleEntries(entries []hybridEntry) {
	var maxKeyword, maxSemantic float64
	semanticSeen := false
	for _, e := range entries {
		if e.keyword > maxKeyword {
			maxKeyword = e.keyword
		}
		if e.hasSemantic && (!semanticSeen || e.semantic > maxSemantic) {
			maxSemantic = e.semantic
			semanticSeen = true
		}
	}

	for i := range entries {
		if maxKeyword > 0 {
			entries[i].keyword /= maxKeyword
		}
		if semanticSeen && maxSemantic > 0 && entries[i].hasSemantic {
			entries[i].semantic /= maxSemantic
		}
	}
}
