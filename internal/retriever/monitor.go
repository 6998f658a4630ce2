package retriever

import "github.com/dshills/chunkrank-mcp/pkg/types"

// Monitor provides hooks to observe a retrieval.
// Hooks run synchronously on the calling goroutine, except AfterFetch and
// AfterEmbedding which may run concurrently with each other.
type Monitor interface {
	Start(req Request)
	AfterFetch(candidates int)
	AfterEmbedding(ok bool)
	Fallback(from, to Method)
	Finish(results []types.ScoredChunk)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request)              {}
func (n *noopMonitor) AfterFetch(_ int)             {}
func (n *noopMonitor) AfterEmbedding(_ bool)        {}
func (n *noopMonitor) Fallback(_, _ Method)         {}
func (n *noopMonitor) Finish(_ []types.ScoredChunk) {}
