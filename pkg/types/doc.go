// Package types provides shared type definitions for chunkrank.
//
// # Core Types
//
// Chunk is a retrievable unit of document text. It carries an optional
// precomputed embedding; chunks without one are only ranked by keyword overlap:
//
//	chunk := types.Chunk{
//	    ChunkID:    "c-17",
//	    DocumentID: "annual-report-2024",
//	    Content:    "Revenue growth was strong this year",
//	    Embedding:  vector,
//	}
//
// ChunkID is optional. Key returns the ChunkID when present and otherwise a
// stable content-derived key, so keyword and semantic passes over the same
// chunk set always merge onto the same entry:
//
//	key := chunk.Key() // "c-17", or "h:<blake2b>" when ChunkID is empty
//
// # Scored Results
//
// ScoredChunk wraps a Chunk with its final Score and the optional per-signal
// scores that produced it:
//
//	for _, sc := range results {
//	    fmt.Printf("%s score=%.3f\n", sc.Key(), sc.Score)
//	    if sc.SemanticScore != nil {
//	        fmt.Printf("  semantic=%.3f\n", *sc.SemanticScore)
//	    }
//	}
//
// A nil SemanticScore means no query embedding took part in ranking; it is not
// the same as a semantic score of zero.
package types
