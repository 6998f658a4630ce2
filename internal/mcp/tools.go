package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/chunkrank-mcp/internal/ingest"
	"github.com/dshills/chunkrank-mcp/internal/retriever"
	"github.com/dshills/chunkrank-mcp/internal/storage"
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeIngestInProgress = -32002 // Another ingest operation is already running
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
	ErrorCodeSourceNotFound   = -32005 // Chunk source could not be read
)

// handleRetrieveChunks handles the retrieve_chunks tool invocation
func (s *Server) handleRetrieveChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK, method, err := parseRankingArgs(args)
	if err != nil {
		return nil, err
	}

	queryEmbedding, err := getVector(args, "query_embedding")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid query_embedding", map[string]interface{}{
			"param":  "query_embedding",
			"reason": err.Error(),
		})
	}

	resp, err := s.components.Retriever.Search(ctx, retriever.Request{
		Query:      query,
		DocumentID: getStringDefault(args, "document_id", ""),
		TopK:       topK,
		Method:     method,
		Embedding:  queryEmbedding,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"query":            query,
		"method_requested": resp.Requested,
		"method_used":      resp.Used,
		"candidates":       resp.Candidates,
		"results":          formatResults(resp.Results),
		"duration_ms":      resp.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleVerifyClaims handles the verify_claims tool invocation.
// Problems are reported in the "error" field rather than as protocol errors.
func (s *Server) handleVerifyClaims(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	topK, method, err := parseRankingArgs(args)
	if err != nil {
		return nil, err
	}

	documentID := getStringDefault(args, "document_id", "")

	var inline []types.Chunk
	if raw, present := args["chunks"]; present {
		records, decodeErr := decodeRecords(raw)
		if decodeErr != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunks", map[string]interface{}{
				"param":  "chunks",
				"reason": decodeErr.Error(),
			})
		}
		inline = recordsToChunks(documentID, records)
	}

	result := s.components.Retriever.Verify(ctx, retriever.VerifyRequest{
		Query:      getStringDefault(args, "query", ""),
		DocumentID: documentID,
		TopK:       topK,
		Method:     method,
		Chunks:     inline,
	})

	response := map[string]interface{}{
		"query":   result.Query,
		"source":  result.Source,
		"results": formatResults(result.Chunks),
	}
	if result.Method != "" {
		response["method"] = result.Method
	}
	if result.Error != "" {
		response["error"] = result.Error
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestChunks handles the ingest_chunks tool invocation
func (s *Server) handleIngestChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	documentID, ok := args["document_id"].(string)
	if !ok || documentID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "document_id parameter is required", map[string]interface{}{
			"param":  "document_id",
			"reason": "missing or empty",
		})
	}

	if !s.ingestLock.TryAcquire() {
		return nil, newMCPError(ErrorCodeIngestInProgress, ingest.ErrInProgress.Error(), map[string]interface{}{
			"document_id": documentID,
		})
	}
	defer s.ingestLock.Release()

	maxTokens, err := getIntDefault(args, "max_tokens", 0)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_tokens must be an integer", map[string]interface{}{
			"param":  "max_tokens",
			"reason": err.Error(),
		})
	}
	if maxTokens < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_tokens cannot be negative", map[string]interface{}{
			"param": "max_tokens",
			"value": maxTokens,
		})
	}

	records, err := s.loadRecords(ctx, args)
	if err != nil {
		return nil, err
	}

	dryRun := getBoolDefault(args, "dry_run", false)
	stats, err := s.components.Ingester.Ingest(ctx, ingest.Request{
		DocumentID: documentID,
		Records:    records,
		Embed:      getBoolDefault(args, "embed", false),
		DryRun:     dryRun,
		MaxTokens:  maxTokens,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"status":               "ok",
		"document_id":          documentID,
		"dry_run":              dryRun,
		"chunks_loaded":        stats.ChunksLoaded,
		"chunks_stored":        stats.ChunksStored,
		"records_split":        stats.RecordsSplit,
		"ids_assigned":         stats.IDsAssigned,
		"embeddings_generated": stats.EmbeddingsGenerated,
		"embeddings_failed":    stats.EmbeddingsFailed,
		"duration_ms":          stats.Duration.Milliseconds(),
	}

	if dryRun {
		response["chunks"] = formatChunks(stats.Chunks)
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.components.Store.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	caps := s.components.Retriever.Capabilities()

	lastUpdated := ""
	if !stats.LastUpdatedAt.IsZero() {
		lastUpdated = stats.LastUpdatedAt.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"storage": map[string]interface{}{
			"backend":          stats.Backend,
			"documents_count":  stats.Documents,
			"chunks_count":     stats.Chunks,
			"embeddings_count": stats.EmbeddedChunks,
			"coverage":         fmt.Sprintf("%.2f", stats.EmbeddingCoverage()),
			"size_mb":          fmt.Sprintf("%.2f", float64(stats.SizeBytes)/(1024*1024)),
			"last_updated_at":  lastUpdated,
		},
		"retrieval": map[string]interface{}{
			"semantic_available": caps.Semantic,
			"provider":           caps.Provider,
			"model":              caps.Model,
			"dimension":          caps.Dimension,
			"methods":            caps.Methods,
			"semantic_weight":    caps.Weights.Semantic,
			"keyword_weight":     caps.Weights.Keyword,
			"default_top_k":      caps.TopK,
		},
		"build": map[string]interface{}{
			"version":          ServerVersion,
			"build_mode":       storage.BuildMode,
			"sqlite_driver":    storage.DriverName,
			"vector_extension": stats.VectorExtension,
		},
		"ingest_in_progress": s.ingestLock.Held(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// loadRecords resolves the chunk source of an ingest request.
// Inline chunks win over chunks_path, which wins over chunks_url.
func (s *Server) loadRecords(ctx context.Context, args map[string]interface{}) ([]ingest.Record, error) {
	if raw, present := args["chunks"]; present {
		records, err := decodeRecords(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunks", map[string]interface{}{
				"param":  "chunks",
				"reason": err.Error(),
			})
		}
		return records, nil
	}

	if path := getStringDefault(args, "chunks_path", ""); path != "" {
		if !filepath.IsAbs(path) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid chunks_path", map[string]interface{}{
				"param":  "chunks_path",
				"reason": ErrPathNotAbsolute.Error(),
			})
		}
		records, err := ingest.LoadFile(path)
		if err != nil {
			return nil, newMCPError(ErrorCodeSourceNotFound, "failed to read chunks_path", map[string]interface{}{
				"param": "chunks_path",
				"error": err.Error(),
			})
		}
		return records, nil
	}

	if url := getStringDefault(args, "chunks_url", ""); url != "" {
		records, err := ingest.LoadURL(ctx, s.httpClient, url)
		if err != nil {
			return nil, newMCPError(ErrorCodeSourceNotFound, "failed to fetch chunks_url", map[string]interface{}{
				"param": "chunks_url",
				"error": err.Error(),
			})
		}
		return records, nil
	}

	return nil, newMCPError(ErrorCodeInvalidParams, "no chunk source given", map[string]interface{}{
		"reason": ErrNoSource.Error(),
	})
}

// parseRankingArgs extracts and validates top_k and method
func parseRankingArgs(args map[string]interface{}) (int, retriever.Method, error) {
	topK, err := getIntDefault(args, "top_k", 0)
	if err != nil {
		return 0, "", newMCPError(ErrorCodeInvalidParams, "top_k must be an integer", map[string]interface{}{
			"param":  "top_k",
			"reason": err.Error(),
		})
	}
	if _, present := args["top_k"]; present && (topK < 1 || topK > maxTopK) {
		return 0, "", newMCPError(ErrorCodeInvalidParams, "top_k must be between 1 and 100", map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	raw := getStringDefault(args, "method", "")
	method, err := retriever.ParseMethod(raw)
	if err != nil {
		return 0, "", newMCPError(ErrorCodeInvalidParams, "invalid method", map[string]interface{}{
			"param":   "method",
			"value":   raw,
			"allowed": []retriever.Method{retriever.MethodHybrid, retriever.MethodSemantic, retriever.MethodKeyword},
		})
	}
	return topK, method, nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// decodeRecords converts a JSON-decoded argument into chunk records
func decodeRecords(raw interface{}) ([]ingest.Record, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, ErrChunksNotArray
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	var records []ingest.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func recordsToChunks(documentID string, records []ingest.Record) []types.Chunk {
	chunks := make([]types.Chunk, len(records))
	for i := range records {
		chunks[i] = types.Chunk{
			ChunkID:    records[i].ChunkID,
			DocumentID: documentID,
			PageNumber: records[i].PageNo(),
			Content:    records[i].Body(),
			Embedding:  records[i].Embedding,
		}
	}
	return chunks
}

func formatResults(results []types.ScoredChunk) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		out = append(out, map[string]interface{}{
			"chunk_id":       r.ChunkID,
			"document_id":    r.DocumentID,
			"page_number":    r.PageNumber,
			"content":        r.Content,
			"score":          r.Score,
			"semantic_score": r.SemanticScore,
			"keyword_score":  r.KeywordScore,
		})
	}
	return out
}

func formatChunks(chunks []types.Chunk) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, map[string]interface{}{
			"chunk_id":      c.ChunkID,
			"page_number":   c.PageNumber,
			"content":       c.Content,
			"has_embedding": c.HasEmbedding(),
			"created_at":    c.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value.
// JSON numbers with a fractional part are rejected rather than truncated.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) (int, error) {
	switch val := args[key].(type) {
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return 0, fmt.Errorf("%w: %v", ErrNotInteger, val)
		}
		return int(val), nil
	case int:
		return val, nil
	}
	return defaultValue, nil
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getVector extracts an optional array of numbers
func getVector(args map[string]interface{}, key string) ([]float32, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil, ErrVectorNotArray
	}

	vector := make([]float32, len(items))
	for i, item := range items {
		val, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", ErrVectorNotArray, i, item)
		}
		vector[i] = float32(val)
	}
	return vector, nil
}

// Validation errors

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrChunksNotArray  = errors.New("chunks must be an array")
	ErrVectorNotArray  = errors.New("embedding must be an array of numbers")
	ErrNotInteger      = errors.New("value must be an integer")
	ErrNoSource        = errors.New("one of chunks, chunks_path or chunks_url is required")
)
