package ranking

import (
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// KeywordRetrieve ranks chunks by the fraction of query tokens found in each chunk.
//
// score = |tokens(query) ∩ tokens(content)| / max(|tokens(query)|, 1)
//
// Every chunk is scored, including those that score 0. Returns at most topK
// results ordered by descending score; equal scores keep their input order.
func KeywordRetrieve(query string, chunks []types.Chunk, topK int) []types.ScoredChunk {
	if topK <= 0 || len(chunks) == 0 {
		return []types.ScoredChunk{}
	}

	queryTokens := Tokenize(query)

	scored := make([]types.ScoredChunk, len(chunks))
	for i := range chunks {
		score := keywordScore(queryTokens, chunks[i].Content)
		scored[i] = types.ScoredChunk{
			Chunk:        chunks[i],
			Score:        score,
			KeywordScore: types.Float64Ptr(score),
		}
	}

	sortScored(scored)
	return limit(scored, topK)
}

// keywordScore computes the overlap ratio of one chunk against pre-tokenized query
func keywordScore(queryTokens TokenSet, content string) float64 {
	chunkTokens := Tokenize(content)
	if len(chunkTokens) == 0 {
		return 0
	}

	denominator := len(queryTokens)
	if denominator < 1 {
		denominator = 1
	}

	return float64(queryTokens.Overlap(chunkTokens)) / float64(denominator)
}
