package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dshills/chunkrank-mcp/internal/app"
	"github.com/dshills/chunkrank-mcp/internal/config"
	"github.com/dshills/chunkrank-mcp/internal/embedder"
	"github.com/dshills/chunkrank-mcp/internal/ingest"
	"github.com/dshills/chunkrank-mcp/internal/mcp"
	"github.com/dshills/chunkrank-mcp/internal/retriever"
	"github.com/dshills/chunkrank-mcp/internal/storage"
	"github.com/dshills/chunkrank-mcp/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "chunkrank",
		Usage:   "Hybrid keyword and semantic ranking over document chunks",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (default: $CHUNKRANK_CONFIG)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the MCP server on stdio",
				Action: serveCommand,
			},
			{
				Name:   "ingest",
				Usage:  "Store chunk records from a JSON file or URL",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "document-id",
						Aliases:  []string{"d"},
						Usage:    "Document the chunks belong to",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Path to a JSON file of chunk records",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "URL of a JSON document with a pages or chunks array",
					},
					&cli.BoolFlag{
						Name:  "embed",
						Usage: "Generate embeddings for chunks that have none",
					},
					&cli.IntFlag{
						Name:  "max-tokens",
						Usage: "Split records whose estimated token count exceeds this (0 disables splitting)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Build chunks and print them without storing",
					},
				},
			},
			{
				Name:   "query",
				Usage:  "Rank stored chunks against a query",
				Action: queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Search query",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "document-id",
						Aliases: []string{"d"},
						Usage:   "Restrict ranking to one document",
					},
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results (default from configuration)",
					},
					&cli.StringFlag{
						Name:    "method",
						Aliases: []string{"m"},
						Usage:   "Ranking method (hybrid, semantic, keyword)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "embed",
				Usage:  "Embed a text with the configured provider and print a summary",
				Action: embedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "text",
						Aliases:  []string{"t"},
						Usage:    "Text to embed",
						Required: true,
					},
				},
			},
			{
				Name:   "version",
				Usage:  "Print build information",
				Action: versionCommand,
			},
		},
	}
}

// setup loads configuration and installs the default logger
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}

	// Logs go to stderr (stdout reserved for MCP protocol and command output)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]interface{})
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// signalContext returns a context canceled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCommand(c *cli.Context) error {
	components, err := app.Build(loadedConfig(c), slog.Default())
	if err != nil {
		return err
	}

	slog.Info("chunkrank MCP server starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName)

	ctx, cancel := signalContext()
	defer cancel()

	server := mcp.NewServer(components)
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func ingestCommand(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	var (
		records []ingest.Record
		err     error
	)
	switch {
	case c.String("file") != "":
		records, err = ingest.LoadFile(c.String("file"))
	case c.String("url") != "":
		records, err = ingest.LoadURL(ctx, nil, c.String("url"))
	default:
		return errors.New("one of --file or --url is required")
	}
	if err != nil {
		return err
	}

	components, err := app.Build(loadedConfig(c), slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	dryRun := c.Bool("dry-run")
	stats, err := components.Ingester.Ingest(ctx, ingest.Request{
		DocumentID: c.String("document-id"),
		Records:    records,
		Embed:      c.Bool("embed"),
		DryRun:     dryRun,
		MaxTokens:  c.Int("max-tokens"),
	})
	if err != nil {
		return err
	}

	out := c.App.Writer
	if dryRun {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats.Chunks)
	}

	_, _ = fmt.Fprintf(out, "Stored %d of %d chunks for %s (%d IDs assigned, %d embedded, %d embedding failures) in %s\n",
		stats.ChunksStored, stats.ChunksLoaded, c.String("document-id"),
		stats.IDsAssigned, stats.EmbeddingsGenerated, stats.EmbeddingsFailed, stats.Duration)
	for _, msg := range stats.ErrorMessages {
		_, _ = fmt.Fprintf(out, "  warning: %s\n", msg)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	method, err := retriever.ParseMethod(c.String("method"))
	if err != nil {
		return err
	}

	components, err := app.Build(loadedConfig(c), slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	resp, err := components.Retriever.Search(ctx, retriever.Request{
		Query:      c.String("query"),
		DocumentID: c.String("document-id"),
		TopK:       c.Int("top-k"),
		Method:     method,
	})
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Results)
	}

	printResults(c, resp)
	return nil
}

func printResults(c *cli.Context, resp *retriever.Response) {
	out := c.App.Writer
	if resp.Used != resp.Requested {
		_, _ = fmt.Fprintf(out, "(%s unavailable, ranked by %s)\n", resp.Requested, resp.Used)
	}
	if len(resp.Results) == 0 {
		_, _ = fmt.Fprintln(out, "No results.")
		return
	}
	for i, r := range resp.Results {
		_, _ = fmt.Fprintf(out, "%d. [%.3f] %s p.%d %s%s\n", i+1, r.Score, r.DocumentID, r.PageNumber, r.Key(), scoreDetail(r))
		_, _ = fmt.Fprintf(out, "   %s\n", snippet(r.Content, 160))
	}
}

func scoreDetail(r types.ScoredChunk) string {
	detail := ""
	if r.SemanticScore != nil {
		detail += fmt.Sprintf(" semantic=%.3f", *r.SemanticScore)
	}
	if r.KeywordScore != nil {
		detail += fmt.Sprintf(" keyword=%.3f", *r.KeywordScore)
	}
	return detail
}

func snippet(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// embedCommand checks that the configured provider answers
func embedCommand(c *cli.Context) error {
	cfg := loadedConfig(c)
	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	defer func() { _ = emb.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: c.String("text")})
	if err != nil {
		return err
	}

	out := c.App.Writer
	_, _ = fmt.Fprintf(out, "Provider: %s\n", result.Provider)
	_, _ = fmt.Fprintf(out, "Model: %s\n", result.Model)
	_, _ = fmt.Fprintf(out, "Dimension: %d\n", result.Dimension)
	_, _ = fmt.Fprintf(out, "Duration: %s\n", time.Since(start).Round(time.Millisecond))

	preview := result.Vector
	if len(preview) > 5 {
		preview = preview[:5]
	}
	_, _ = fmt.Fprintf(out, "Vector: %v...\n", preview)
	return nil
}

func versionCommand(c *cli.Context) error {
	out := c.App.Writer
	_, _ = fmt.Fprintf(out, "chunkrank MCP Server\n")
	_, _ = fmt.Fprintf(out, "Version: %s\n", version)
	_, _ = fmt.Fprintf(out, "Build Time: %s\n", buildTime)
	_, _ = fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
	_, _ = fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
	_, _ = fmt.Fprintf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
	return nil
}
