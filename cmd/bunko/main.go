// Package main is the bunko CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/bunko/internal/cli"
	"github.com/hyperjump/bunko/internal/config"
	"github.com/hyperjump/bunko/internal/models"
	"github.com/hyperjump/bunko/internal/server"
	"github.com/hyperjump/bunko/internal/storage"
	"github.com/hyperjump/bunko/internal/watcher"
	"github.com/hyperjump/bunko/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/bunko/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "bunko server" from the project dir uses the project's config (including debug).
// When no config file exists at the default path, built-in defaults are used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			config.ApplyEnv(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is fine; it only supplies API keys.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "summarize":
		runSummarize()
	case "compare":
		runCompare()
	case "search":
		runSearch()
	case "list":
		runList()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("bunko version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// fail prints to stderr and exits.
func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads config, builds a logger and initializes all components.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fail("%v", err)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (ingestion, retrieval, generation calls)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCatalog(components.Catalog),
		server.WithLibrary(components.Library),
		server.WithModel(components.Generator.Model()),
	}
	if len(cfg.Watch.Directories) > 0 {
		w := watcher.New(components.Indexer, watcher.Config{
			Directories: cfg.Watch.Directories,
			Recursive:   cfg.Watch.RecursiveOrDefault(),
		}, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		opts = append(opts, server.WithWatch(w))
	}

	srv := server.NewServer(components.Assistant, components.Indexer, components.Storage, cfg, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "upload to a running server instead of writing storage directly")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunko ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		fail("Failed to stat path: %v", err)
	}
	ctx := context.Background()

	if *serverURL != "" {
		if info.IsDir() {
			fail("Uploading a directory is not supported; run without --server or add it to watch.directories")
		}
		doc, err := cli.NewClient(*serverURL).Upload(ctx, path)
		if err != nil {
			fail("Upload failed: %v", err)
		}
		fmt.Printf("Document ingested: %s (%d chunks)\n", doc.ID, doc.ChunkCount)
		return
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if info.IsDir() {
		n, err := components.Indexer.IngestDirectory(ctx, path)
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		if err != nil {
			fail("Some files failed: %v", err)
		}
		return
	}
	res, err := components.Indexer.IngestFile(ctx, path)
	if err != nil {
		fail("Ingestion failed: %v", err)
	}
	if res.Skipped {
		fmt.Printf("Document unchanged: %s\n", res.Document.ID)
		return
	}
	fmt.Printf("Document ingested: %s (%d pages, %d chunks)\n", res.Document.ID, res.Document.PageCount, res.Document.ChunkCount)
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "bunko ask \"question\" -doc x"
// would otherwise leave -doc unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// remoteFlags are shared by commands that prefer a running server.
type remoteFlags struct {
	configPath *string
	serverURL  *string
	output     *string
}

func addRemoteFlags(fs *flag.FlagSet) remoteFlags {
	return remoteFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL:  fs.String("server", cli.DefaultServerURL, `server URL (empty = open storage directly when the server is not running)`),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	rf := addRemoteFlags(fs)
	docID := fs.String("doc", "", "document id (required)")
	conversation := fs.String("conversation", "", "conversation id to continue")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuery(fs.Args())
	if *docID == "" || question == "" {
		fmt.Println("Usage: bunko ask --doc <id> [--conversation <id>] <question>")
		os.Exit(1)
	}
	format := parseFormat(*rf.output)
	req := models.ChatRequest{Question: question, ConversationID: *conversation}
	ctx := context.Background()

	var ans *models.Answer
	var err error
	if *rf.serverURL != "" {
		ans, err = cli.NewClient(*rf.serverURL).Ask(ctx, *docID, req)
	} else {
		_, logger, components := setup(*rf.configPath, false)
		defer logger.Sync()
		defer components.Close()
		ans, err = components.Assistant.Ask(ctx, *docID, req)
	}
	if err != nil {
		fail("Ask failed: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runSummarize() {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	rf := addRemoteFlags(fs)
	query := fs.String("query", "", "focus the summary on a topic (default: key findings)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunko summarize [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)
	format := parseFormat(*rf.output)
	ctx := context.Background()

	var sum *models.Summary
	var err error
	if *rf.serverURL != "" {
		sum, err = cli.NewClient(*rf.serverURL).Summarize(ctx, docID, *query)
	} else {
		_, logger, components := setup(*rf.configPath, false)
		defer logger.Sync()
		defer components.Close()
		sum, err = components.Assistant.Summarize(ctx, docID, *query)
	}
	if err != nil {
		fail("Summarize failed: %v", err)
	}
	if err := cli.WriteSummary(os.Stdout, sum, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runCompare() {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	rf := addRemoteFlags(fs)
	mode := fs.String("mode", "content", "content, methodology, conclusions, structure, literal, or custom")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 2 {
		fmt.Println("Usage: bunko compare [flags] <left-id> <right-id> [task]")
		os.Exit(1)
	}
	req := models.CompareRequest{
		LeftID:  fs.Arg(0),
		RightID: fs.Arg(1),
		Task:    buildQuery(fs.Args()[2:]),
		Mode:    *mode,
	}
	format := parseFormat(*rf.output)
	ctx := context.Background()

	var cmp *models.Comparison
	var err error
	if *rf.serverURL != "" {
		cmp, err = cli.NewClient(*rf.serverURL).Compare(ctx, req)
	} else {
		_, logger, components := setup(*rf.configPath, false)
		defer logger.Sync()
		defer components.Close()
		cmp, err = components.Assistant.Compare(ctx, req)
	}
	if err != nil {
		fail("Compare failed: %v", err)
	}
	if err := cli.WriteComparison(os.Stdout, cmp, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: bunko search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Without --doc, search finds which documents match (titles and text).
With --doc, it returns the ranked excerpts of one document that a question would use.

Examples:
  bunko search solar efficiency                  # which documents?
  bunko search --fuzzy photovoltiac              # typo-tolerant
  bunko search --doc upl-1a2b snow cover         # excerpts from one document
`)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	rf := addRemoteFlags(fs)
	docID := fs.String("doc", "", "search within one document")
	limit := fs.Int("limit", 10, "number of results")
	minScore := fs.Float64("min-score", 0, "advisory score floor for excerpts (--doc only)")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance (catalog only)")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	query := buildQuery(fs.Args())
	if query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*rf.output)
	ctx := context.Background()

	var client *cli.Client
	var components *Components
	if *rf.serverURL != "" {
		client = cli.NewClient(*rf.serverURL)
	} else {
		var logger *zap.Logger
		_, logger, components = setup(*rf.configPath, false)
		defer logger.Sync()
		defer components.Close()
	}

	if *docID != "" {
		req := models.SearchRequest{Query: query, TopK: *limit, MinScore: *minScore}
		var resp *models.SearchResponse
		var err error
		if client != nil {
			resp, err = client.Search(ctx, *docID, req)
		} else {
			resp, err = components.Assistant.Search(ctx, *docID, req)
		}
		if err != nil {
			fail("Search failed: %v", err)
		}
		if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}

	var res *cli.CatalogResult
	if client != nil {
		var err error
		res, err = client.Catalog(ctx, query, *limit, *fuzzy)
		if err != nil {
			fail("Search failed: %v", err)
		}
	} else {
		res = catalogSearch(ctx, components, query, *limit, *fuzzy)
	}
	// Retry with fuzzy matching when an exact search finds nothing.
	if len(res.Hits) == 0 && !*fuzzy {
		if client != nil {
			if fuzzyRes, err := client.Catalog(ctx, query, *limit, true); err == nil {
				res = fuzzyRes
			}
		} else {
			res = catalogSearch(ctx, components, query, *limit, true)
		}
	}
	if err := cli.WriteCatalogHits(os.Stdout, res.Query, res.Hits, res.Suggestion, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func catalogSearch(ctx context.Context, c *Components, query string, limit int, fuzzy bool) *cli.CatalogResult {
	opts := catalogOptions(fuzzy)
	hits, err := c.Catalog.Search(ctx, query, limit, opts)
	if err != nil {
		fail("Search failed: %v", err)
	}
	res := &cli.CatalogResult{Query: query, Hits: hits}
	if s := c.Catalog.Suggest(query); s != query {
		res.Suggestion = s
	}
	return res
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 50, "maximum number of documents")
	offset := fs.Int("offset", 0, "skip this many documents")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	// Only SQLite is opened, so listing works while the server holds the catalog index.
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fail("Failed to open storage: %v", err)
	}
	defer store.Close()
	docs, err := store.ListDocuments(context.Background(), *offset, *limit)
	if err != nil {
		fail("List failed: %v", err)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: bunko delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if err := components.Indexer.DeleteDocument(context.Background(), docID); err != nil {
		fail("Deletion failed: %v", err)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	rf := addRemoteFlags(fs)
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*rf.output)
	ctx := context.Background()

	var status map[string]interface{}
	if *rf.serverURL != "" {
		var err error
		status, err = cli.NewClient(*rf.serverURL).Status(ctx)
		if err != nil {
			fail("Status failed: %v", err)
		}
	} else {
		cfg, logger, components := setup(*rf.configPath, false)
		defer logger.Sync()
		defer components.Close()
		var err error
		status, err = localStatus(ctx, cfg, components)
		if err != nil {
			fail("Status failed: %v", err)
		}
	}

	if format == cli.OutputJSON {
		if err := cli.WriteJSON(os.Stdout, status); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("documents:          %v   # count of ingested documents\n", status["documents"])
	fmt.Printf("chunks:             %v   # count of text chunks\n", status["chunks"])
	if v, ok := status["catalog_records"]; ok {
		fmt.Printf("catalog_records:    %v   # titles + chunks in the catalog index\n", v)
	}
	if v, ok := status["model"]; ok {
		fmt.Printf("model:              %v\n", v)
	}
	if v, ok := status["disk_usage_bytes"]; ok {
		fmt.Printf("disk_usage_bytes:   %v   # storage + catalog on disk\n", v)
	}
	if c, ok := status["config"].(map[string]interface{}); ok {
		fmt.Println()
		fmt.Println("# configuration")
		for _, k := range []string{"chunk_target_chars", "chunk_overlap_chars", "top_k", "min_score", "max_total_chars", "history_backend", "database_path", "bleve_index_path"} {
			if v, ok := c[k]; ok {
				fmt.Printf("%-20s%v\n", k+":", v)
			}
		}
	}
}

func localStatus(ctx context.Context, cfg *config.Config, c *Components) (map[string]interface{}, error) {
	docCount, err := c.Storage.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunkCount, err := c.Storage.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	status := map[string]interface{}{
		"documents": docCount,
		"chunks":    chunkCount,
		"model":     c.Generator.Model(),
		"config": map[string]interface{}{
			"chunk_target_chars":  cfg.Ingest.ChunkTargetChars,
			"chunk_overlap_chars": cfg.Ingest.ChunkOverlapChars,
			"top_k":               cfg.Retrieval.TopK,
			"min_score":           cfg.Retrieval.MinScore,
			"max_total_chars":     cfg.Retrieval.MaxTotalChars,
			"history_backend":     cfg.History.Backend,
			"database_path":       cfg.Storage.DatabasePath,
			"bleve_index_path":    cfg.Storage.BleveIndexPath,
		},
	}
	if n, err := c.Catalog.DocCount(); err == nil {
		status["catalog_records"] = n
	}
	if usage, err := storage.MeasureUsage(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath); err == nil {
		status["disk_usage_bytes"] = usage.Total()
		status["disk_usage"] = usage
	}
	return status, nil
}

func printUsage() {
	fmt.Println(`bunko - Ask, summarize, and compare your PDF library

Usage:
  bunko server [flags]                         Start the HTTP server (and inbox watcher)
  bunko ingest [flags] <file-or-directory>     Ingest documents
  bunko ask [flags] --doc <id> <question>      Ask a question about a document
  bunko summarize [flags] <id>                 Summarize a document
  bunko compare [flags] <left-id> <right-id>   Compare two documents
  bunko search [flags] <query>                 Find documents, or excerpts with --doc
  bunko list [flags]                           List ingested documents
  bunko delete [flags] <id>                    Delete a document
  bunko status [flags]                         Show storage/catalog status
  bunko version                                Show version
  bunko help                                   Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/bunko/config.yaml)
  --server string    Server URL for ask/summarize/compare/search/status (default: http://localhost:8080).
                     Use --server "" to open storage directly when the server is not running.
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Ask Flags:
  --doc string           Document id
  --conversation string  Continue a conversation (id printed with each answer)

Summarize Flags:
  --query string     Focus topic (default: key findings)

Compare Flags:
  --mode string      content, methodology, conclusions, structure, literal, or custom

Search Flags:
  --doc string       Search within one document
  --limit int        Number of results (default: 10)
  --min-score float  Advisory score floor (with --doc)
  --fuzzy            Typo-tolerant catalog search

Environment:
  BUNKO_LLM_API_KEY / OPENAI_API_KEY   API key (also read from .env)
  BUNKO_LLM_BASE_URL, BUNKO_LLM_MODEL  Override the endpoint and model
  BUNKO_REDIS_ADDR                     Redis address for conversation history

Examples:
  bunko server
  bunko ingest ~/papers
  bunko search photovoltaic cold climate
  bunko ask --doc upl-1a2b3c "How much did efficiency rise below zero?"
  bunko summarize --output json upl-1a2b3c
  bunko compare --mode methodology upl-1a2b3c upl-4d5e6f`)
}
