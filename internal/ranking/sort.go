package ranking

import (
	"sort"

	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// sortScored sorts results by score in descending order, keeping input order on ties
func sortScored(results []types.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// limit truncates results to at most topK entries
func limit(results []types.ScoredChunk, topK int) []types.ScoredChunk {
	if topK < len(results) {
		return results[:topK]
	}
	return results
}
