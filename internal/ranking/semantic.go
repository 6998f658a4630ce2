package ranking

import (
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// SemanticRetrieve ranks chunks by cosine similarity to the query embedding.
//
// Chunks without an embedding are dropped from the result entirely rather
// than scored 0. An empty query embedding yields an empty result, which the
// retriever treats as a signal to fall back to keyword ranking.
func SemanticRetrieve(queryEmbedding []float32, chunks []types.Chunk, topK int) []types.ScoredChunk {
	if len(queryEmbedding) == 0 || topK <= 0 {
		return []types.ScoredChunk{}
	}

	scored := make([]types.ScoredChunk, 0, len(chunks))
	for i := range chunks {
		if !chunks[i].HasEmbedding() {
			continue
		}

		similarity := CosineSimilarity(queryEmbedding, chunks[i].Embedding)
		scored = append(scored, types.ScoredChunk{
			Chunk:         chunks[i],
			Score:         similarity,
			SemanticScore: types.Float64Ptr(similarity),
		})
	}

	sortScored(scored)
	return limit(scored, topK)
}
