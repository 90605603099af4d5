// Package main is the otasuke CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/otasuke/internal/chat"
	"github.com/hyperjump/otasuke/internal/cli"
	"github.com/hyperjump/otasuke/internal/config"
	"github.com/hyperjump/otasuke/internal/embedding"
	"github.com/hyperjump/otasuke/internal/indexer"
	"github.com/hyperjump/otasuke/internal/keyword"
	"github.com/hyperjump/otasuke/internal/knowledge"
	"github.com/hyperjump/otasuke/internal/llm"
	"github.com/hyperjump/otasuke/internal/models"
	"github.com/hyperjump/otasuke/internal/server"
	"github.com/hyperjump/otasuke/internal/session"
	"github.com/hyperjump/otasuke/internal/storage"
	"github.com/hyperjump/otasuke/internal/vector"
	"github.com/hyperjump/otasuke/internal/watcher"
	"github.com/hyperjump/otasuke/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/otasuke/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists, so running from a project dir uses its config.
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "chat":
		runChat()
	case "history":
		runHistory()
	case "clear":
		runClear()
	case "kb":
		runKB()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("otasuke version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and builds the logger shared by every local command.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLoggerWithOptions(utils.LogOptions{
		Debug: debugMode,
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (pipeline states, file indexing, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedConfigPath))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := components.prepareKnowledge(ctx); err != nil {
		logger.Fatal("Failed to prepare knowledge base", zap.Error(err))
	}
	pipeline, err := components.newPipeline()
	if err != nil {
		logger.Fatal("Failed to initialize language model", zap.Error(err))
	}

	if cfg.Knowledge.Watch {
		w := watcher.New(components.Indexer.Root(), cfg.Knowledge.Extensions, components.Indexer,
			watcher.WithLogger(logger))
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("knowledge watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(server.Deps{
		Pipeline: pipeline,
		Sessions: components.Sessions,
		Searcher: components.Retriever,
		Indexer:  components.Indexer,
		Storage:  components.Storage,
		Vectors:  components.Vectors,
	}, cfg, version, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	sessionID := fs.String("session", "", "session id (default: random)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := components.prepareKnowledge(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to prepare knowledge base: %v\n", err)
		os.Exit(1)
	}
	pipeline, err := components.newPipeline()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize language model: %v\n", err)
		os.Exit(1)
	}

	sid := *sessionID
	if sid == "" {
		sid = uuid.New().String()
	}
	fmt.Printf("%s support chat (session %s). Type /history, /clear or /quit.\n", cfg.Business.CompanyName, sid)
	if err := runREPL(ctx, os.Stdin, os.Stdout, pipeline, sid, format); err != nil {
		fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
		os.Exit(1)
	}
}

// runREPL reads one message per line from in and writes replies to out until in
// is exhausted, ctx ends, or the user types /quit. Pipeline errors are reported
// and the loop continues.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, p *chat.Pipeline, sessionID string, format cli.OutputFormat) error {
	scanner := bufio.NewScanner(in)
	for {
		if format == cli.OutputText {
			fmt.Fprint(out, "You: ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			if err := cli.WriteHistory(out, sessionID, p.History(sessionID), format); err != nil {
				return err
			}
			continue
		case "/clear":
			p.Clear(sessionID)
			fmt.Fprintln(out, "History cleared.")
			continue
		}
		rec, err := p.Answer(ctx, chat.Request{SessionID: sessionID, Message: line})
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		if err := cli.WriteAnswer(out, rec, format); err != nil {
			return err
		}
	}
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	apiKey := fs.String("api-key", os.Getenv(config.EnvAPIKeys), "API key sent in X-API-Key")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: otasuke history [flags] <session_id>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	sid := fs.Arg(0)
	var out struct {
		Messages []models.Turn `json:"messages"`
	}
	if err := doJSON(http.MethodGet, *serverURL+"/conversation/"+url.PathEscape(sid), firstKey(*apiKey), nil, &out); err != nil {
		fmt.Fprintf(os.Stderr, "History failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteHistory(os.Stdout, sid, out.Messages, format)
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	apiKey := fs.String("api-key", os.Getenv(config.EnvAPIKeys), "API key sent in X-API-Key")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: otasuke clear [flags] <session_id>")
		os.Exit(1)
	}
	sid := fs.Arg(0)
	err := doJSON(http.MethodDelete, *serverURL+"/conversation/"+url.PathEscape(sid), firstKey(*apiKey), nil, nil)
	var se *statusError
	switch {
	case err == nil:
		fmt.Printf("Cleared session %s\n", sid)
	case errors.As(err, &se) && se.code == http.StatusNotFound:
		fmt.Printf("Session %s had no history\n", sid)
	default:
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}
}

func runKB() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: otasuke kb <build|update|search> [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	args := argsReorder(os.Args[3:])
	fs := flag.NewFlagSet("kb "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	limit := fs.Int("k", 0, "number of results (search only; default from config)")
	mode := fs.String("mode", models.SearchModeSemantic, "search mode: semantic or keyword")
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch sub {
	case "build", "update":
		dir := ""
		if fs.NArg() > 0 {
			dir = fs.Arg(0)
		}
		var report indexer.Report
		if sub == "build" {
			report, err = components.Indexer.Rebuild(ctx, dir)
		} else {
			report, err = components.Indexer.Update(ctx, dir)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Knowledge base %s failed: %v\n", sub, err)
			os.Exit(1)
		}
		_ = cli.WriteReport(os.Stdout, report, format)
	case "search":
		query := buildSearchQuery(fs.Args())
		if query == "" {
			fmt.Fprintln(os.Stderr, "Usage: otasuke kb search [flags] <query>")
			os.Exit(1)
		}
		if _, err := components.Indexer.Restore(ctx); err != nil {
			logger.Warn("vector index restore failed", zap.Error(err))
		}
		resp, err := components.Retriever.Search(ctx, &models.KnowledgeQuery{Query: query, K: *limit, Mode: *mode})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteSearchResults(os.Stdout, resp, format)
	default:
		fmt.Fprintf(os.Stderr, "Unknown kb command: %s\n", sub)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	apiKey := fs.String("api-key", os.Getenv(config.EnvAPIKeys), "API key sent in X-API-Key")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var status statusResponse
	if *serverURL != "" {
		if err := doJSON(http.MethodGet, *serverURL+"/api/v1/status", firstKey(*apiKey), nil, &status); err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status, err = localStatus(context.Background(), components)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := writeStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

type statusResponse struct {
	Documents       int64            `json:"documents"`
	Chunks          int64            `json:"chunks"`
	VectorIndexSize int              `json:"vector_index_size"`
	Sessions        *int             `json:"sessions,omitempty"`
	Turns           *int             `json:"turns,omitempty"`
	DiskUsageBytes  *int64           `json:"disk_usage_bytes,omitempty"`
	DiskUsage       map[string]int64 `json:"disk_usage,omitempty"`
}

func localStatus(ctx context.Context, c *Components) (statusResponse, error) {
	docs, err := c.Storage.CountDocuments(ctx)
	if err != nil {
		return statusResponse{}, fmt.Errorf("count documents: %w", err)
	}
	chunks, err := c.Storage.CountChunks(ctx)
	if err != nil {
		return statusResponse{}, fmt.Errorf("count chunks: %w", err)
	}
	status := statusResponse{Documents: docs, Chunks: chunks, VectorIndexSize: c.Vectors.Size()}
	usage, err := storage.MeasureDiskUsage(map[string]string{
		"database":      c.Config.Storage.DatabasePath,
		"vector_index":  c.Config.Storage.VectorIndexPath,
		"keyword_index": c.Config.Storage.KeywordIndexPath,
	})
	if err == nil {
		status.DiskUsageBytes = &usage.Total
		status.DiskUsage = usage.Paths
	}
	return status, nil
}

func writeStatus(w io.Writer, status statusResponse, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintf(w, "documents:          %d   # knowledge base documents\n", status.Documents)
	fmt.Fprintf(w, "chunks:             %d   # embedded chunks\n", status.Chunks)
	fmt.Fprintf(w, "vector_index_size:  %d   # vectors in the semantic index\n", status.VectorIndexSize)
	if status.Sessions != nil && status.Turns != nil {
		fmt.Fprintf(w, "sessions:           %d   # live conversations\n", *status.Sessions)
		fmt.Fprintf(w, "turns:              %d   # stored turns across sessions\n", *status.Turns)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + indices on disk\n", *status.DiskUsageBytes)
	}
	return nil
}

// statusError is a non-2xx response from the server.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.code, strings.TrimSpace(e.body))
}

// doJSON sends body (if any) as JSON and decodes the response into out (if non-nil).
func doJSON(method, target, apiKey string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return &statusError{code: resp.StatusCode, body: string(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// firstKey returns the first key of a comma separated OTASUKE_API_KEYS value.
func firstKey(keys string) string {
	key, _, _ := strings.Cut(keys, ",")
	return strings.TrimSpace(key)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that appear after positional arguments to the front so
// flag.Parse sees them; the flag package stops at the first non-flag argument.
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

// Components holds the long-lived pieces wired from the config.
type Components struct {
	Config    *config.Config
	Logger    *zap.Logger
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Vectors   vector.Index
	Keywords  keyword.Index
	Indexer   *indexer.Indexer
	Retriever *knowledge.Retriever
	Sessions  *session.Store
}

// Close saves the vector index and releases every component.
func (c *Components) Close() {
	if c.Vectors != nil {
		if err := c.Vectors.Save(c.Config.Storage.VectorIndexPath); err != nil {
			c.Logger.Warn("vector index save failed", zap.String("path", c.Config.Storage.VectorIndexPath), zap.Error(err))
		}
		_ = c.Vectors.Close()
	}
	if c.Sessions != nil {
		_ = c.Sessions.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	c.Embedder, err = embedding.New(cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Vectors, err = vector.New(cfg.Vector.IndexType, c.Embedder.Dimensions(), cfg.Storage.VectorIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if err := c.Vectors.Load(cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector index load skipped (restoring from storage)",
			zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
	logger.Info("vector index initialized", zap.String("type", c.Vectors.Type()), zap.Int("size", c.Vectors.Size()))

	keywords, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.Keywords = keywords

	c.Indexer = indexer.New(store, c.Embedder, c.Vectors, cfg.Knowledge.Path,
		indexer.WithLogger(logger),
		indexer.WithKeywordIndex(c.Keywords),
		indexer.WithChunking(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap),
		indexer.WithExtensions(cfg.Knowledge.Extensions),
		indexer.WithWorkers(cfg.Knowledge.Workers),
	)
	c.Retriever = knowledge.NewRetriever(c.Embedder, c.Vectors, store,
		knowledge.WithLogger(logger),
		knowledge.WithDefaultK(cfg.Retrieval.K),
		knowledge.WithKeywordIndex(c.Keywords),
		knowledge.WithReadLock(c.Indexer.ReadLocker()),
	)
	c.Sessions = session.New(
		session.WithMaxTurns(cfg.Session.MaxTurns),
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithTTL(cfg.Session.TTL),
		session.WithShards(cfg.Session.Shards),
		session.WithLogger(logger),
	)
	return c, nil
}

// prepareKnowledge seeds sample documents into an empty knowledge directory,
// restores the vector index from stored embeddings when needed, and picks up
// files changed since the last run.
func (c *Components) prepareKnowledge(ctx context.Context) error {
	if c.Config.Knowledge.SeedSamplesOrDefault() {
		written, err := c.Indexer.SeedSamples("")
		if err != nil {
			return err
		}
		if len(written) > 0 {
			c.Logger.Info("wrote sample knowledge base", zap.Strings("files", written))
		}
	}
	restored, err := c.Indexer.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore vector index: %w", err)
	}
	if restored > 0 {
		c.Logger.Info("vector index restored from storage", zap.Int("chunks", restored))
	}
	report, err := c.Indexer.Update(ctx, "")
	if err != nil {
		return err
	}
	c.Logger.Info("knowledge base ready",
		zap.Int("files", report.Files),
		zap.Int("indexed", report.Indexed),
		zap.Int("removed", report.Removed),
		zap.Int("failed", report.Failed))
	return nil
}

func (c *Components) newPipeline() (*chat.Pipeline, error) {
	gen, err := llm.New(c.Config.LLM)
	if err != nil {
		return nil, err
	}
	c.Logger.Info("language model ready", zap.String("generator", gen.Name()))
	opts := append(chat.ConfigOptions(c.Config), chat.WithLogger(c.Logger))
	return chat.NewPipeline(c.Sessions, c.Retriever, gen, opts...), nil
}

func printUsage() {
	fmt.Println(`otasuke - Customer support assistant grounded in your knowledge base

Usage:
  otasuke server [flags]                 Start the HTTP API
  otasuke chat [flags]                   Chat in the terminal
  otasuke history [flags] <session_id>   Show a session's history (from a running server)
  otasuke clear [flags] <session_id>     Clear a session's history (on a running server)
  otasuke kb build [flags] [dir]         Rebuild the knowledge base from scratch
  otasuke kb update [flags] [dir]        Index new and changed files, drop deleted ones
  otasuke kb search [flags] <query>      Search the knowledge base
  otasuke status [flags]                 Show knowledge base and session status
  otasuke version                        Show version
  otasuke help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/otasuke/config.yaml, or ./config.yaml if present)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Chat Flags:
  --session string   Session id (default: random)

KB Search Flags:
  --k int            Number of results (default from config)
  --mode string      semantic or keyword (default: semantic)

Server Client Flags (history, clear, status):
  --server string    Server URL (default: http://localhost:8000). For status, empty uses direct storage.
  --api-key string   API key (default: first of OTASUKE_API_KEYS)

Examples:
  otasuke server
  otasuke chat --session demo
  otasuke kb build
  otasuke kb search "return policy" --mode keyword
  otasuke history demo
  otasuke status --server "" --output json`)
}
