package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// maxTopK bounds top_k on every tool
const maxTopK = 100

// chunkItemSchema describes one inline chunk record
func chunkItemSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"chunk_id": map[string]interface{}{
				"type":        "string",
				"description": "Chunk identifier (generated when omitted on ingest)",
			},
			"page_number": map[string]interface{}{
				"type":        "integer",
				"description": "Page the chunk came from (alias: page)",
				"minimum":     0,
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Chunk text (alias: text)",
			},
			"embedding": map[string]interface{}{
				"type":        "array",
				"description": "Precomputed embedding vector",
				"items":       map[string]interface{}{"type": "number"},
			},
		},
	}
}

func topKSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of chunks to return (1-100, default from configuration)",
		"minimum":     1,
		"maximum":     maxTopK,
	}
}

func methodSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Ranking method: hybrid (weighted semantic + keyword), semantic (cosine only), or keyword (token overlap only)",
		"enum":        []string{"hybrid", "semantic", "keyword"},
		"default":     "hybrid",
	}
}

// retrieveChunksTool returns the tool definition for retrieve_chunks
func retrieveChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "retrieve_chunks",
		Description: "Rank stored document chunks against a query using keyword, semantic, or hybrid scoring",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict ranking to one document (default: all documents)",
				},
				"top_k":  topKSchema(),
				"method": methodSchema(),
				"query_embedding": map[string]interface{}{
					"type":        "array",
					"description": "Precomputed query embedding; skips the embedding provider",
					"items":       map[string]interface{}{"type": "number"},
				},
			},
			Required: []string{"query"},
		},
	}
}

// verifyClaimsTool returns the tool definition for verify_claims
func verifyClaimsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "verify_claims",
		Description: "Find evidence for a claim in stored chunks, falling back to keyword matching over chunks passed inline",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Claim to verify",
				},
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "Document the claim refers to",
				},
				"top_k":  topKSchema(),
				"method": methodSchema(),
				"chunks": map[string]interface{}{
					"type":        "array",
					"description": "Inline chunks ranked when no document_id is given, or when the store has none for it",
					"items":       chunkItemSchema(),
				},
			},
			Required: []string{"query"},
		},
	}
}

// ingestChunksTool returns the tool definition for ingest_chunks
func ingestChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_chunks",
		Description: "Store pre-chunked document text, optionally generating missing embeddings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "Document the chunks belong to",
				},
				"chunks": map[string]interface{}{
					"type":        "array",
					"description": "Chunk records to store",
					"items":       chunkItemSchema(),
				},
				"chunks_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a JSON file of chunk records",
				},
				"chunks_url": map[string]interface{}{
					"type":        "string",
					"description": "URL of a JSON document with a pages or chunks array",
				},
				"embed": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, generate embeddings for chunks that have none",
					"default":     false,
				},
				"max_tokens": map[string]interface{}{
					"type":        "integer",
					"description": "Split records whose estimated token count exceeds this (0 disables splitting)",
					"minimum":     0,
					"default":     0,
				},
				"dry_run": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, build chunks and return them without storing",
					"default":     false,
				},
			},
			Required: []string{"document_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report chunk store statistics and retrieval capabilities",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
