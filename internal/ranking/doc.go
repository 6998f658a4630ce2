// Package ranking implements the scoring core of chunk retrieval.
//
// Three rankers share one tokenizer and one similarity function:
//   - KeywordRetrieve: fraction of query tokens present in each chunk
//   - SemanticRetrieve: cosine similarity between query and chunk embeddings
//   - HybridRetrieve: weighted blend of both, each rescaled to [0,1] first
//
// All functions are pure: the same query, chunks and weights always produce
// the same ordered output. Nothing in this package performs I/O or returns an
// error; malformed input degrades to a score of 0.
//
// # Keyword Scoring
//
// Text is lowercased and split into maximal [a-z0-9] runs:
//
//	ranking.Tokenize("Revenue grew 25%!") // {"revenue", "grew", "25"}
//
// A chunk's keyword score is the share of distinct query tokens it contains,
// so a chunk only reaches 1.0 when every query token appears in it. An empty
// query scores every chunk 0.
//
// # Hybrid Scoring
//
//	results := ranking.HybridRetrieve(query, queryVec, chunks, 5, ranking.Weights{
//	    Semantic: 0.7,
//	    Keyword:  0.3,
//	})
//
// Weights are normalized to sum to 1, so {0.8, 0.4} behaves like {0.667, 0.333}.
// When queryVec is empty the semantic signal is absent and the ordering is the
// same as KeywordRetrieve.
package ranking
