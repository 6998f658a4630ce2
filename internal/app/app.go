// Package app wires the store, embedder, retriever and ingester from a
// loaded configuration. The MCP server and the CLI commands share it.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/chunkrank-mcp/internal/config"
	"github.com/dshills/chunkrank-mcp/internal/embedder"
	"github.com/dshills/chunkrank-mcp/internal/ingest"
	"github.com/dshills/chunkrank-mcp/internal/retriever"
	"github.com/dshills/chunkrank-mcp/internal/storage"
)

// Components holds the wired application dependencies
type Components struct {
	Config    *config.Config
	Store     storage.ChunkStore
	Embedder  embedder.Embedder // nil when no provider is configured
	Retriever *retriever.Retriever
	Ingester  *ingest.Ingester
	Logger    *slog.Logger
}

// Build opens the configured store and creates the components on top of it.
// A missing embedding provider is not an error: retrieval runs keyword-only.
func Build(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.Backend, path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(cfg.EmbedderConfig())
	switch {
	case errors.Is(err, embedder.ErrNoProviderEnabled):
		logger.Warn("no embedding provider configured, semantic ranking disabled")
		emb = nil
	case err != nil:
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c, err := Assemble(cfg, store, emb, logger)
	if err != nil {
		_ = store.Close()
		if emb != nil {
			_ = emb.Close()
		}
		return nil, err
	}

	logger.Info("components ready",
		"backend", cfg.Storage.Backend,
		"path", path,
		"semantic", emb != nil)
	return c, nil
}

// Assemble creates the retriever and ingester over an existing store and
// embedder. emb may be nil.
func Assemble(cfg *config.Config, store storage.ChunkStore, emb embedder.Embedder, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Retriever and ingester share one embedder so ingest warms the query cache
	retrieverOpts := []retriever.Option{
		retriever.WithWeights(cfg.Weights()),
		retriever.WithDefaultTopK(cfg.RAG.TopK),
		retriever.WithLogger(logger),
	}
	ingestOpts := []ingest.Option{ingest.WithLogger(logger)}
	if emb != nil {
		retrieverOpts = append(retrieverOpts, retriever.WithEmbedder(emb))
		ingestOpts = append(ingestOpts, ingest.WithEmbedder(emb))
	}

	ret, err := retriever.New(store, retrieverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	ing, err := ingest.New(store, ingestOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingester: %w", err)
	}

	return &Components{
		Config:    cfg,
		Store:     store,
		Embedder:  emb,
		Retriever: ret,
		Ingester:  ing,
		Logger:    logger,
	}, nil
}

// Close releases the ingest pool, the embedder and the store
func (c *Components) Close() error {
	c.Ingester.Release()

	var errs []error
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	errs = append(errs, c.Store.Close())
	return errors.Join(errs...)
}
