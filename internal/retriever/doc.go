// Package retriever answers queries with ranked chunks.
//
// A Retriever reads candidate chunks from a storage.ChunkStore, optionally
// embeds the query, and ranks with one of three methods:
//
//   - keyword: fraction of query tokens found in each chunk
//   - semantic: cosine similarity between query and chunk embeddings
//   - hybrid: both signals, each rescaled by its maximum, blended by weight
//
// # Degradation
//
// Retrieval never fails because a collaborator did. A store error produces
// an empty result, and a missing or failed query embedding turns semantic and
// hybrid requests into keyword ones. A Retriever built without an embedder is
// keyword-only; Capabilities reports which mode is active.
//
// Only an unknown method is an error:
//
//	results, err := r.Retrieve(ctx, retriever.Request{
//	    Query:      "revenue growth",
//	    DocumentID: "q3-report",
//	    TopK:       5,
//	    Method:     retriever.MethodHybrid,
//	})
//	if errors.Is(err, retriever.ErrInvalidMethod) {
//	    // reject the request
//	}
//
// # Concurrency
//
// The chunk fetch and the query embedding run in parallel. A Retriever keeps
// no state between calls, so identical inputs give identical output.
package retriever
