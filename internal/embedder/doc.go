// Package embedder turns query and chunk text into vectors for semantic ranking.
//
// Four providers implement the Embedder interface:
//
//   - jina: Jina AI HTTP API (1024 dimensions)
//   - openai: OpenAI embeddings through the official SDK (1536 dimensions)
//   - ollama: any OpenAI-compatible host, usually a local Ollama server
//   - local: offline feature-hashed vectors, deterministic and dependency free
//
// # Provider Selection
//
// New picks a provider from Config:
//
//  1. If Config.Provider is set, use it
//  2. Else if a Jina key is set, use Jina
//  3. Else if an OpenAI key is set, use OpenAI
//  4. Else if an embedding host is set, use the OpenAI-compatible provider
//  5. Else return ErrNoProviderEnabled
//
// The last case is not a failure for the service: the retriever is simply
// built without an embedder and ranks by keyword overlap only.
//
//	emb, err := embedder.New(embedder.Config{OpenAIAPIKey: key})
//	if errors.Is(err, embedder.ErrNoProviderEnabled) {
//	    // keyword-only mode
//	}
//
// # Caching
//
// Every provider shares an LRU cache keyed by provider, model and text, so
// repeated queries skip the network. Cached vectors are copied on the way in
// and out.
//
// # Retries
//
// Remote calls retry with exponential backoff (100ms doubling up to 5s, three
// attempts). Authentication and request errors (4xx other than 429) are not
// retried.
package embedder
