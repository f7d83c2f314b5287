// Package main is the civicrag CLI entry point.
package main

import (
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

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/assistant"
	"github.com/hyperjump/civicrag/internal/cli"
	"github.com/hyperjump/civicrag/internal/config"
	"github.com/hyperjump/civicrag/internal/indexer"
	"github.com/hyperjump/civicrag/internal/intent"
	"github.com/hyperjump/civicrag/internal/mcp"
	"github.com/hyperjump/civicrag/internal/messaging"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/server"
	"github.com/hyperjump/civicrag/internal/storage"
	"github.com/hyperjump/civicrag/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/civicrag/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "civicrag serve" from the project dir uses the project's config (including debug).
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
	case "serve", "server":
		runServer()
	case "mcp":
		runMCP()
	case "import":
		runImport()
	case "backfill":
		runBackfill()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "classify":
		runClassify()
	case "status":
		runStatus()
	case "delete":
		runDelete()
	case "version", "--version", "-v":
		fmt.Printf("civicrag version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads the config and builds the logger, exiting on failure.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	return cfg, resolved, logger
}

// openComponents is setup plus initializeComponents for the direct (serverless) code paths.
func openComponents(ctx context.Context, configPath string, opts componentOptions) (*Components, *zap.Logger) {
	cfg, _, logger := setup(configPath, false)
	components, err := initializeComponents(ctx, cfg, logger, opts)
	if err != nil {
		fatalf("Failed to initialize: %v", err)
	}
	return components, logger
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger, componentOptions{messaging: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Classifier.WatchRules && cfg.Classifier.RulesPath != "" {
		rules := intent.NewRulesWatcher(cfg.Classifier.RulesPath, components.Classifier, intent.WithWatcherLogger(logger))
		if err := rules.Start(ctx); err != nil {
			logger.Warn("rules watcher not started", zap.String("path", cfg.Classifier.RulesPath), zap.Error(err))
		} else {
			defer rules.Stop()
		}
	}

	if components.NATS != nil {
		sub, err := messaging.NewIngestSubscriber(components.Indexer, logger).
			Subscribe(components.NATS, cfg.Messaging.IngestSubject)
		if err != nil {
			logger.Fatal("Failed to subscribe", zap.Error(err))
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	srv := server.NewServer(components.Deps(), cfg, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	components.SaveVectorIndex()
}

func runMCP() {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	ctx := context.Background()
	components, logger := openComponents(ctx, *configPath, componentOptions{})
	defer logger.Sync()
	defer components.Close()

	srv := mcp.NewServer(components.Engine, components.Classifier, components.Analyzer, logger)
	if err := srv.Serve(ctx); err != nil {
		logger.Error("MCP server failed", zap.Error(err))
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: civicrag import [flags] <complaints.json|complaints.jsonl>")
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	components, logger := openComponents(ctx, *configPath, componentOptions{messaging: true})
	defer logger.Sync()
	defer components.Close()

	res, err := components.Indexer.ImportFile(ctx, fs.Arg(0))
	components.SaveVectorIndex()
	if err != nil {
		fatalf("Import failed after %d complaint(s): %v", res.Stored, err)
	}
	fmt.Printf("Imported %d complaint(s) from %s\n", res.Stored, fs.Arg(0))
	if res.Pending > 0 {
		fmt.Printf("%d complaint(s) are waiting for an embedding; run \"civicrag backfill\" later\n", res.Pending)
	}
}

func runBackfill() {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	batchSize := fs.Int("batch-size", 0, "complaints per chunk (0 = pipeline.batch_size)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var report *indexer.Report
	if *serverURL != "" {
		var err error
		report, err = doJSON[indexer.Report](http.MethodPost, *serverURL+"/api/v1/embeddings/backfill", map[string]int{"batch_size": *batchSize})
		if err != nil {
			fatalf("Backfill failed: %v", err)
		}
	} else {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		components, logger := openComponents(ctx, *configPath, componentOptions{messaging: true})
		defer logger.Sync()
		defer components.Close()
		var err error
		report, err = components.Pipeline.Backfill(ctx, *batchSize)
		components.SaveVectorIndex()
		if err != nil && report == nil {
			fatalf("Backfill failed: %v", err)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Backfill interrupted: %v\n", err)
		}
	}

	if format == cli.OutputJSON {
		_ = json.NewEncoder(os.Stdout).Encode(report)
		return
	}
	fmt.Printf("processed: %d\nsucceeded: %d\nfailed:    %d\n", report.Processed, report.Succeeded, report.Failed)
	for _, e := range report.Errors {
		fmt.Printf("  %s %s: %s\n", e.DocumentType, e.DocumentID, e.Error)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: civicrag search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results fuse semantic (vector) matches with metadata matches.
  • Filters (--borough, --type, --status, --agency, --risk, --from, --to) apply to both.
  • --vector-weight and --metadata-weight override the configured fusion weights.
  • --fallback adds relaxed keyword matches when nothing passes the filters.

Examples:
  civicrag search loud music at night
  civicrag search --borough brooklyn --type Noise "loud party"
  civicrag search --risk high --from 2024-01-01 heating
  civicrag search --vector-weight 1 --metadata-weight 0 water leak   # semantic only
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "civicrag search noise -limit 5"
// would otherwise leave -limit unparsed.
func searchArgsReorder(args []string) []string {
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

// filterFlags are the metadata filters shared by search and ask.
type filterFlags struct {
	complaintType string
	borough       string
	status        string
	agency        string
	risk          string
	from          string
	to            string
}

func (f *filterFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.complaintType, "type", "", "complaint type, e.g. Noise")
	fs.StringVar(&f.borough, "borough", "", "borough: manhattan, brooklyn, queens, bronx, staten island")
	fs.StringVar(&f.status, "status", "", "complaint status, e.g. Open")
	fs.StringVar(&f.agency, "agency", "", "responsible agency code, e.g. NYPD")
	fs.StringVar(&f.risk, "risk", "", "risk level: low, medium or high")
	fs.StringVar(&f.from, "from", "", "submitted on or after this date (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.to, "to", "", "submitted on or before this date (YYYY-MM-DD, inclusive, or RFC 3339)")
}

func (f filterFlags) build() (models.Filters, error) {
	out := models.Filters{
		ComplaintType: strings.TrimSpace(f.complaintType),
		Status:        strings.TrimSpace(f.status),
		Agency:        strings.TrimSpace(f.agency),
	}
	if f.borough != "" {
		b, ok := models.ParseBorough(f.borough)
		if !ok {
			return out, fmt.Errorf("unknown borough %q", f.borough)
		}
		out.Borough = b
	}
	if f.risk != "" {
		r, ok := models.ParseRiskLevel(f.risk)
		if !ok {
			return out, fmt.Errorf("unknown risk level %q", f.risk)
		}
		out.RiskLevel = r
	}
	var err error
	if out.From, err = parseDate(f.from, false); err != nil {
		return out, fmt.Errorf("--from: %w", err)
	}
	if out.To, err = parseDate(f.to, true); err != nil {
		return out, fmt.Errorf("--to: %w", err)
	}
	if out.From != nil && out.To != nil && !out.From.Before(*out.To) {
		return out, errors.New("--from must be before --to")
	}
	return out, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. A bare date used as an upper bound
// covers the whole day, since the filter's upper bound is exclusive.
func parseDate(s string, upper bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", s)
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// searchFlags holds the search subcommand flags.
type searchFlags struct {
	limit          int
	vectorWeight   float64
	metadataWeight float64
	threshold      float64
	fallback       bool
	filters        filterFlags
}

func (s *searchFlags) register(fs *flag.FlagSet) {
	fs.IntVar(&s.limit, "limit", 0, "number of results (0 = search.default_limit)")
	fs.Float64Var(&s.vectorWeight, "vector-weight", 0, "fusion weight of vector results (default from config)")
	fs.Float64Var(&s.metadataWeight, "metadata-weight", 0, "fusion weight of metadata results (default from config)")
	fs.Float64Var(&s.threshold, "threshold", 0, "minimum cosine similarity for vector results (default from config)")
	fs.BoolVar(&s.fallback, "fallback", false, "add relaxed keyword matches when filters leave no results")
	s.filters.register(fs)
}

// options builds SearchOptions. Weights and threshold are only sent when given on the
// command line, so the configured defaults apply otherwise.
func (s *searchFlags) options(fs *flag.FlagSet) models.SearchOptions {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	opts := models.SearchOptions{Limit: s.limit, IncludeFallback: s.fallback}
	if set["vector-weight"] {
		opts.VectorWeight = &s.vectorWeight
	}
	if set["metadata-weight"] {
		opts.MetadataWeight = &s.metadataWeight
	}
	if set["threshold"] {
		opts.Threshold = &s.threshold
	}
	return opts
}

// searchRequest mirrors the body of POST /api/v1/search.
type searchRequest struct {
	Query   string               `json:"query"`
	Filters models.Filters       `json:"filters"`
	Options models.SearchOptions `json:"options"`
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	var sf searchFlags
	sf.register(fs)
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	filters, err := sf.filters.build()
	if err != nil {
		fatalf("Invalid filter: %v", err)
	}
	req := searchRequest{Query: queryStr, Filters: filters, Options: sf.options(fs)}

	var response *models.SearchResponse
	if *serverURL != "" {
		// Use HTTP API when server is running (avoids Bleve/SQLite lock conflict).
		response, err = searchViaHTTP(*serverURL, req)
	} else {
		ctx := context.Background()
		components, logger := openComponents(ctx, *configPath, componentOptions{})
		defer logger.Sync()
		defer components.Close()
		response, err = components.Engine.Search(ctx, req.Query, req.Filters, req.Options)
	}
	if err != nil {
		fatalf("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func searchViaHTTP(serverURL string, req searchRequest) (*models.SearchResponse, error) {
	return doJSON[models.SearchResponse](http.MethodPost, serverURL+"/api/v1/search", req)
}

func runAsk() {
	askArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	limit := fs.Int("limit", 0, "number of search results (0 = search.default_limit)")
	outputFormat := fs.String("output", "text", "output format: text, compact or json")
	var ff filterFlags
	ff.register(fs)
	_ = fs.Parse(askArgs)

	question := buildSearchQuery(fs.Args())
	if question == "" {
		fmt.Println("Usage: civicrag ask [flags] <question>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	filters, err := ff.build()
	if err != nil {
		fatalf("Invalid filter: %v", err)
	}
	opts := assistant.AskOptions{Limit: *limit, Filters: filters}

	var response *assistant.AskResponse
	if *serverURL != "" {
		response, err = doJSON[assistant.AskResponse](http.MethodPost, *serverURL+"/api/v1/ask",
			map[string]any{"question": question, "options": opts})
	} else {
		ctx := context.Background()
		components, logger := openComponents(ctx, *configPath, componentOptions{})
		defer logger.Sync()
		defer components.Close()
		response, err = components.Assistant.Ask(ctx, question, opts)
	}
	if err != nil {
		fatalf("Ask failed: %v", err)
	}
	if err := cli.WriteAskResponse(os.Stdout, response, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runClassify() {
	args := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = classify locally)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	question := buildSearchQuery(fs.Args())
	if question == "" {
		fmt.Println("Usage: civicrag classify [flags] <question>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	var got models.QueryIntent
	if *serverURL != "" {
		res, err := doJSON[models.QueryIntent](http.MethodPost, *serverURL+"/api/v1/intent", map[string]string{"query": question})
		if err != nil {
			fatalf("Classify failed: %v", err)
		}
		got = *res
	} else {
		// Classification needs no storage, so the indexes are left closed.
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		classifier, err := intent.NewFromConfig(cfg.Classifier, logger)
		if err != nil {
			fatalf("Failed to initialize classifier: %v", err)
		}
		got = classifier.Classify(context.Background(), question)
	}
	if err := cli.WriteIntent(os.Stdout, got, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Complaints      int64                  `json:"complaints"`
	Embeddings      storage.EmbeddingStats `json:"embeddings"`
	KeywordDocs     uint64                 `json:"keyword_documents"`
	VectorIndexSize int                    `json:"vector_index_size"`
	DiskUsageBytes  *int64                 `json:"disk_usage_bytes,omitempty"`
	Config          map[string]any         `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		status = *res
	} else {
		ctx := context.Background()
		components, logger := openComponents(ctx, *configPath, componentOptions{})
		defer logger.Sync()
		defer components.Close()
		res, err := directStatus(ctx, components)
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		status = *res
	}

	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("complaints:         %d   # stored complaints\n", status.Complaints)
	fmt.Printf("embeddings:         %d   # distinct embedded texts\n", status.Embeddings.Embeddings)
	fmt.Printf("embedding_links:    %d   # documents pointing at an embedding\n", status.Embeddings.Links)
	fmt.Printf("keyword_documents:  %d   # complaints in the keyword index\n", status.KeywordDocs)
	fmt.Printf("vector_index_size:  %d   # vectors in the semantic index\n", status.VectorIndexSize)
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage_bytes:   %d   # database + indices on disk\n", *status.DiskUsageBytes)
	}
	if len(status.Config) > 0 {
		fmt.Println()
		fmt.Println("# configuration")
		for _, key := range []string{
			"embedding_provider", "embedding_model", "embedding_dimensions", "classifier_provider",
			"vector_index_type", "vector_weight", "metadata_weight", "similarity_threshold",
		} {
			if v, ok := status.Config[key]; ok {
				fmt.Printf("%-21s%v\n", key+":", v)
			}
		}
	}
}

func directStatus(ctx context.Context, c *Components) (*statusResponse, error) {
	count, err := c.Storage.CountAllComplaints(ctx)
	if err != nil {
		return nil, fmt.Errorf("count complaints: %w", err)
	}
	stats, err := c.Storage.EmbeddingStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding stats: %w", err)
	}
	docs, err := c.KeywordIndex.DocCount()
	if err != nil {
		return nil, fmt.Errorf("keyword index count: %w", err)
	}
	cfg := c.Config
	status := &statusResponse{
		Complaints:      count,
		Embeddings:      stats,
		KeywordDocs:     docs,
		VectorIndexSize: c.VectorIndex.Size(),
		Config: map[string]any{
			"embedding_provider":   cfg.Embedding.Provider,
			"embedding_model":      cfg.Embedding.Model,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"classifier_provider":  cfg.Classifier.Provider,
			"vector_index_type":    cfg.Vector.IndexType,
			"vector_weight":        cfg.Search.VectorWeight,
			"metadata_weight":      cfg.Search.MetadataWeight,
			"similarity_threshold": cfg.Search.SimilarityThreshold,
		},
	}
	_, total, err := storage.DiskUsage(map[string]string{
		"database":      cfg.Storage.DatabasePath,
		"keyword_index": cfg.Storage.KeywordIndexPath,
		"vector_index":  cfg.Vector.IndexPath,
	})
	if err == nil {
		status.DiskUsageBytes = &total
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	return doJSON[statusResponse](http.MethodGet, serverURL+"/api/v1/status", nil)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: civicrag delete [flags] <complaint-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	if *serverURL != "" {
		if _, err := doJSON[map[string]string](http.MethodDelete, *serverURL+"/api/v1/complaints/"+url.PathEscape(id), nil); err != nil {
			fatalf("Deletion failed: %v", err)
		}
	} else {
		ctx := context.Background()
		components, logger := openComponents(ctx, *configPath, componentOptions{})
		defer logger.Sync()
		defer components.Close()
		if err := components.Indexer.DeleteComplaint(ctx, id); err != nil {
			fatalf("Deletion failed: %v", err)
		}
	}
	fmt.Printf("Complaint deleted: %s\n", id)
}

// doJSON sends body (when non-nil) as JSON and decodes a 2xx response into T.
func doJSON[T any](method, endpoint string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func printUsage() {
	fmt.Println(`civicrag - Hybrid search over NYC 311 service complaints

Usage:
  civicrag serve [flags]              Start the HTTP server (and the NATS ingest subscriber when configured)
  civicrag mcp [flags]                Serve search tools over MCP on stdio
  civicrag import [flags] <file>      Import complaints from a JSON array or JSON Lines file
  civicrag backfill [flags]           Embed complaints that have no embedding yet
  civicrag search [flags] <query>     Hybrid search
  civicrag ask [flags] <question>     Classify a question and answer it with search or statistics
  civicrag classify [flags] <question> Show the intent of a question
  civicrag delete [flags] <id>        Delete a complaint
  civicrag status [flags]             Show storage, embedding and index status
  civicrag version                    Show version
  civicrag help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/civicrag/config.yaml, or ./config.yaml when present)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage
                     when the server is not running. classify runs locally unless --server is set.
  --output string    Output format: text, compact or json (default: text)

Serve Flags:
  --debug            Enable debug logging

Search Flags:
  --limit int                Number of results (default from config)
  --type, --borough, --status, --agency, --risk, --from, --to   Metadata filters
  --vector-weight float      Fusion weight of vector results
  --metadata-weight float    Fusion weight of metadata results
  --threshold float          Minimum cosine similarity for vector results
  --fallback                 Add relaxed keyword matches when filters leave no results

Backfill Flags:
  --batch-size int   Complaints per chunk (default from config)

Examples:
  civicrag serve
  civicrag import complaints.jsonl
  civicrag backfill --server ""
  civicrag search --borough brooklyn "loud music at night"
  civicrag search --output json --risk high heating
  civicrag ask "Which borough has the most noise complaints?"
  civicrag classify "show me urgent heat complaints in the bronx"
  civicrag delete 4b1f0c9e-8d5e-4a0c-9a57-8d2f3e1c6a11
  civicrag status --output json`)
}
