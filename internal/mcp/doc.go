// Package mcp implements the Model Context Protocol (MCP) server for chunkrank.
//
// The MCP server exposes four tools:
//   - retrieve_chunks: Rank stored chunks against a query
//   - verify_claims: Find evidence for a claim, with an inline-chunk fallback
//   - ingest_chunks: Store pre-chunked document text
//   - get_status: Report store statistics and retrieval capabilities
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	chunkrank serve
//
// # Tool: retrieve_chunks
//
//	Request:
//	{
//	  "name": "retrieve_chunks",
//	  "arguments": {
//	    "query": "revenue growth",
//	    "document_id": "annual-report-2024",
//	    "top_k": 5,
//	    "method": "hybrid"
//	  }
//	}
//
//	Response:
//	{
//	  "method_requested": "hybrid",
//	  "method_used": "hybrid",
//	  "candidates": 128,
//	  "results": [
//	    {
//	      "chunk_id": "c-17",
//	      "page_number": 4,
//	      "content": "Revenue growth was strong this year",
//	      "score": 0.91,
//	      "semantic_score": 0.87,
//	      "keyword_score": 1
//	    }
//	  ]
//	}
//
// method_used differs from method_requested when no query embedding could be
// produced and ranking fell back to keyword overlap. semantic_score is null
// in that case.
//
// # Tool: verify_claims
//
// Like retrieve_chunks, but never fails on missing data. Without a
// document_id, chunks passed inline are keyword-ranked and the store is only
// searched when none were given. With a document_id the store is searched
// first and the inline chunks are used when it holds nothing for the document.
// The response carries "source" (store, inline or none) and an "error" field
// when no evidence could be searched.
//
// # Tool: ingest_chunks
//
// Takes chunks inline, from an absolute chunks_path, or from chunks_url. Only
// one ingest runs at a time; a second request fails with -32002.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (storage, embedding provider)
//   - -32002: Ingest in progress
//   - -32004: Empty query
//   - -32005: Chunk source could not be read
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "chunkrank": {
//	      "command": "/usr/local/bin/chunkrank",
//	      "args": ["serve"],
//	      "env": {
//	        "OPENAI_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// The server logs to stderr; stdout is reserved for the protocol.
package mcp
