package retriever

import (
	"context"

	"github.com/dshills/chunkrank-mcp/internal/ranking"
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

// Sources reported by Verify
const (
	SourceStore  = "store"
	SourceInline = "inline"
	SourceNone   = "none"
)

// VerifyRequest asks for evidence supporting a claim. Chunks are an optional
// inline corpus consulted when the store has nothing.
type VerifyRequest struct {
	Query      string
	DocumentID string
	TopK       int
	Method     Method
	Chunks     []types.Chunk
}

// VerifyResult holds the evidence found for a claim.
// Error is set instead of returning one so callers can always render a verdict.
type VerifyResult struct {
	Query  string
	Chunks []types.ScoredChunk
	Source string
	Method Method
	Error  string
}

// Verify retrieves evidence for a claim. The store is consulted when the
// claim names a document or carries no inline chunks; otherwise the inline
// chunks are keyword ranked. A store search that finds nothing falls back to
// the inline chunks.
func (r *Retriever) Verify(ctx context.Context, req VerifyRequest) VerifyResult {
	if req.Query == "" {
		return VerifyResult{
			Chunks: []types.ScoredChunk{},
			Source: SourceNone,
			Error:  "query is required",
		}
	}

	if _, err := ParseMethod(string(req.Method)); err != nil {
		return VerifyResult{
			Query:  req.Query,
			Chunks: []types.ScoredChunk{},
			Source: SourceNone,
			Error:  err.Error(),
		}
	}

	if req.DocumentID == "" && len(req.Chunks) > 0 {
		return r.verifyInline(req)
	}

	resp, err := r.Search(ctx, Request{
		Query:      req.Query,
		DocumentID: req.DocumentID,
		TopK:       req.TopK,
		Method:     req.Method,
	})
	if err != nil {
		return VerifyResult{
			Query:  req.Query,
			Chunks: []types.ScoredChunk{},
			Source: SourceNone,
			Error:  err.Error(),
		}
	}

	if len(resp.Results) > 0 {
		return VerifyResult{
			Query:  req.Query,
			Chunks: resp.Results,
			Source: SourceStore,
			Method: resp.Used,
		}
	}

	if len(req.Chunks) > 0 {
		return r.verifyInline(req)
	}

	return VerifyResult{
		Query:  req.Query,
		Chunks: []types.ScoredChunk{},
		Source: SourceNone,
		Error:  "no chunks available",
	}
}

func (r *Retriever) verifyInline(req VerifyRequest) VerifyResult {
	topK := req.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}
	return VerifyResult{
		Query:  req.Query,
		Chunks: ranking.KeywordRetrieve(req.Query, req.Chunks, topK),
		Source: SourceInline,
		Method: MethodKeyword,
	}
}
