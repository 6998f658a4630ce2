package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/chunkrank-mcp/internal/app"
	"github.com/dshills/chunkrank-mcp/internal/ingest"
)

const (
	// ServerName is the MCP server name
	ServerName = "chunkrank-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	components *app.Components
	ingestLock ingest.Lock
	httpClient *http.Client // Used for chunks_url sources
	logger     *slog.Logger
}

// NewServer creates a new MCP server over already wired components.
// The server takes ownership of the components and closes them on shutdown.
func NewServer(c *app.Components) *Server {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
		),
		components: c,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With("component", "mcp"),
	}

	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until ctx is canceled or
// stdin is closed
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		if err := s.components.Close(); err != nil {
			s.logger.Error("error closing components", "err", err)
		}
	}()

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(retrieveChunksTool(), s.handleRetrieveChunks)
	s.mcp.AddTool(verifyClaimsTool(), s.handleVerifyClaims)
	s.mcp.AddTool(ingestChunksTool(), s.handleIngestChunks)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
