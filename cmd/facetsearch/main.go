// Package main is the facetsearch CLI entry point.
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

	"github.com/hyperjump/facetsearch/internal/app"
	"github.com/hyperjump/facetsearch/internal/cache"
	"github.com/hyperjump/facetsearch/internal/cli"
	"github.com/hyperjump/facetsearch/internal/config"
	"github.com/hyperjump/facetsearch/internal/models"
	"github.com/hyperjump/facetsearch/internal/query"
	"github.com/hyperjump/facetsearch/internal/search"
	"github.com/hyperjump/facetsearch/internal/server"
	"github.com/hyperjump/facetsearch/internal/storage"
	"github.com/hyperjump/facetsearch/internal/watcher"
	"github.com/hyperjump/facetsearch/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/facetsearch/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
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

// openApp loads the configuration and wires the application. The returned
// function releases everything.
func openApp(configPath string, debug bool) (*app.Components, *zap.Logger, func(), error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode, cfg.Logging.Level)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return components, logger, func() {
		components.Close()
		_ = logger.Sync()
	}, nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
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
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "delete":
		runDelete()
	case "preload":
		runPreload()
	case "cache":
		runCache()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("facetsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	components, logger, closeApp, err := openApp(*configPath, *debug)
	if err != nil {
		fail("%v", err)
	}
	defer closeApp()
	cfg := components.Config

	syncer := watcher.NewSync(components.Indexer, components.FlushCache, logger)
	watchSvc := watcher.NewWatcher(
		[]string{cfg.Storage.DataDir},
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		syncer,
		watcher.WithLogger(logger),
		watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(components, logger, server.WithWatch(watchSvc))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: facetsearch search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Terms restrict a field with (@field text); a leading "-" excludes them.

Examples:
  facetsearch search drama
  facetsearch search "drama (@actor james stewart)"
  facetsearch search --facets genre,year "(@director hitchcock)"
  facetsearch search --output json "(@genre sci-fi) (@-actor harrison ford)"
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
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

// splitList splits a comma separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search the local index directly)")
	limit := fs.Int("limit", models.DefaultLimit, "number of results")
	offset := fs.Int("offset", 0, "number of results to skip")
	sortMode := fs.String("sort", "", "sort mode or preset name")
	facetList := fs.String("facets", "", "comma separated facets to compute (default all)")
	noCache := fs.Bool("no-cache", false, "bypass the result cache")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	req := &models.SearchRequest{
		Query:    buildSearchQuery(fs.Args()),
		Offset:   *offset,
		Limit:    *limit,
		SortMode: *sortMode,
		Facets:   splitList(*facetList),
	}
	if *noCache {
		off := false
		req.Cache = &off
	}
	format := cli.ParseFormat(*outputFormat)

	var response *models.SearchResponse
	var err error
	if *serverURL != "" {
		// The server holds the index lock, so go through its API when it runs.
		response, err = searchViaHTTP(*serverURL, req)
	} else {
		var closeApp func()
		var components *app.Components
		components, _, closeApp, err = openApp(*configPath, false)
		if err != nil {
			fail("%v", err)
		}
		defer closeApp()
		response, err = components.Client.Search(context.Background(), req, components.Config.Server.Root)
	}
	if err != nil {
		fail("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: facetsearch index [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components, _, closeApp, err := openApp(*configPath, false)
	if err != nil {
		fail("%v", err)
	}
	defer closeApp()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fail("Failed to stat path: %v", err)
	}
	if info.IsDir() {
		n, err := components.Indexer.IndexDirectory(ctx, path, components.Config.Watch.Extensions)
		if err != nil {
			fail("Indexing directory failed: %v", err)
		}
		fmt.Printf("Indexed %d record(s) from %s\n", n, path)
	} else {
		n, err := components.Indexer.IndexFile(ctx, path)
		if err != nil {
			fail("Indexing failed: %v", err)
		}
		fmt.Printf("Indexed %d record(s) from %s\n", n, path)
	}
	if err := components.FlushCache(ctx); err != nil {
		fail("Cache flush failed: %v", err)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: facetsearch delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, _, closeApp, err := openApp(*configPath, false)
	if err != nil {
		fail("%v", err)
	}
	defer closeApp()

	ctx := context.Background()
	if err := components.Indexer.DeleteDocument(ctx, docID); err != nil {
		fail("Deletion failed: %v", err)
	}
	if err := components.FlushCache(ctx); err != nil {
		fail("Cache flush failed: %v", err)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// runPreload stores the results of a query and of every query reachable by
// selecting up to depth facet values. Entries are sticky.
func runPreload() {
	fs := flag.NewFlagSet("preload", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	depth := fs.Int("depth", 1, "number of facet selections to follow")
	dump := fs.String("dump", "", "also dump the cache to this file")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	components, logger, closeApp, err := openApp(*configPath, false)
	if err != nil {
		fail("%v", err)
	}
	defer closeApp()

	ctx := context.Background()
	cl := components.Client.Clone()
	q := cl.Parser().Parse(buildSearchQuery(fs.Args()))
	n, err := cl.Preload(ctx, q, *depth, func(q *query.MultiFieldQuery, res *search.Result) {
		logger.Debug("preloaded", zap.String("query", q.User()), zap.Int("found", res.Hits.TotalFound))
	})
	if err != nil {
		fail("Preload failed after %d queries: %v", n, err)
	}
	fmt.Printf("Preloaded %d quer(y/ies) from %q at depth %d\n", n, q.User(), *depth)

	if *dump != "" {
		written, err := dumpCache(ctx, components.Store, *dump)
		if err != nil {
			fail("Dump failed: %v", err)
		}
		fmt.Printf("Dumped %d entries to %s\n", written, *dump)
	}
}

func dumpCache(ctx context.Context, store cache.Store, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := cache.Dump(ctx, store, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func runCache() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: facetsearch cache <dump|load|flush> [flags] [file]")
		fmt.Println("  facetsearch cache dump <file>               Write every cache entry to file")
		fmt.Println("  facetsearch cache load [-expire s] <file>   Load entries; -expire -1 makes them sticky")
		fmt.Println("  facetsearch cache flush [-sticky]           Remove entries; -sticky also removes preloaded ones")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	expire := fs.Int("expire", 0, "load: seconds until entries expire (0 = default TTL, negative = sticky)")
	sticky := fs.Bool("sticky", false, "flush: also remove sticky entries")
	_ = fs.Parse(searchArgsReorder(os.Args[3:]))

	components, _, closeApp, err := openApp(*configPath, false)
	if err != nil {
		fail("%v", err)
	}
	defer closeApp()
	if components.Store == nil {
		fail("No cache configured or the cache is unreachable")
	}

	ctx := context.Background()
	switch sub {
	case "dump":
		if fs.NArg() < 1 {
			fail("Usage: facetsearch cache dump <file>")
		}
		n, err := dumpCache(ctx, components.Store, fs.Arg(0))
		if err != nil {
			fail("Dump failed: %v", err)
		}
		fmt.Printf("Dumped %d entries to %s\n", n, fs.Arg(0))
	case "load":
		if fs.NArg() < 1 {
			fail("Usage: facetsearch cache load [-expire s] <file>")
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fail("Open failed: %v", err)
		}
		defer f.Close()
		stats, err := cache.Load(ctx, components.Store, f, time.Duration(*expire)*time.Second)
		if err != nil {
			fail("Load failed: %v", err)
		}
		fmt.Printf("Loaded %d entries from %s\n", stats.Loaded, fs.Arg(0))
		if len(stats.Skipped) > 0 {
			fmt.Printf("Skipped malformed lines: %v\n", stats.Skipped)
		}
	case "flush":
		if err := components.Cache.Clear(ctx, *sticky); err != nil {
			fail("Flush failed: %v", err)
		}
		fmt.Println("Cache flushed")
	default:
		fail("Unknown cache subcommand: %s", sub)
	}
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Documents      int64  `json:"documents"`
	Indexed        uint64 `json:"indexed"`
	Facets         []string `json:"facets"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
	Cache          struct {
		Driver  string `json:"driver"`
		Enabled bool   `json:"enabled"`
		Keys    int    `json:"keys"`
	} `json:"cache"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fail("Status failed: %v", err)
		}
		status = *res
	} else {
		components, _, closeApp, err := openApp(*configPath, false)
		if err != nil {
			fail("%v", err)
		}
		defer closeApp()
		status = localStatus(context.Background(), components)
	}

	switch cli.ParseFormat(*outputFormat) {
	case cli.OutputJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fail("Output failed: %v", err)
		}
	default:
		fmt.Printf("documents:          %d   # rows in the document table\n", status.Documents)
		fmt.Printf("indexed:            %d   # documents in the full-text index\n", status.Indexed)
		fmt.Printf("facets:             %s\n", strings.Join(status.Facets, ", "))
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d   # storage + index on disk\n", *status.DiskUsageBytes)
		}
		fmt.Printf("cache:              %s (enabled: %t, keys: %d)\n",
			status.Cache.Driver, status.Cache.Enabled, status.Cache.Keys)
	}
}

func localStatus(ctx context.Context, c *app.Components) statusResponse {
	var s statusResponse
	s.Documents, _ = c.Storage.CountDocuments(ctx)
	s.Indexed, _ = c.Engine.DocCount()
	for _, f := range c.Client.Facets().Enabled() {
		s.Facets = append(s.Facets, f.Name())
	}
	cfg := c.Config
	paths := append(storage.DatabaseFiles(cfg.Storage.DatabasePath), cfg.Storage.BleveIndexPath)
	if n, err := storage.DiskUsageBytes(paths...); err == nil {
		s.DiskUsageBytes = &n
	}
	s.Cache.Driver = cfg.Cache.Driver
	s.Cache.Enabled = c.Store != nil
	if c.Store != nil {
		if keys, err := c.Store.Keys(ctx); err == nil {
			s.Cache.Keys = len(keys)
		}
	}
	return s
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	u, err := url.JoinPath(*serverURL, "/api/v1/watch/directories")
	if err != nil {
		fail("Invalid server URL: %v", err)
	}
	resp, err := http.Get(u)
	if err != nil {
		fail("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fail("List failed (%d): %s", resp.StatusCode, string(b))
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fail("Parse failed: %v", err)
	}
	for _, d := range out.Directories {
		fmt.Println(d)
	}
}

func printUsage() {
	fmt.Println(`facetsearch - Faceted full-text search over JSON records

Usage:
  facetsearch server [flags]               Start the HTTP server and watch the data directory
  facetsearch search [flags] <query>       Search documents and compute facets
  facetsearch index [flags] <path>         Index a .jsonl file or a directory of them
  facetsearch delete [flags] <id>          Delete a document
  facetsearch preload [flags] <query>      Preload the cache from a query
  facetsearch cache <dump|load|flush>      Manage the result cache
  facetsearch status [flags]               Show index, storage and cache status
  facetsearch watch [flags]                List watched directories
  facetsearch version                      Show version
  facetsearch help                         Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/facetsearch/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to search the local index.
  --limit int        Number of results (default: 10)
  --offset int       Results to skip
  --sort string      Sort mode or preset name
  --facets string    Comma separated facets to compute
  --no-cache         Bypass the result cache
  --output string    Output format: text or json (default: text)

Preload Flags:
  --depth int        Facet selections to follow (default: 1)
  --dump string      Dump the cache to this file afterwards

Cache Flags:
  --expire int       load: seconds until loaded entries expire; negative makes them sticky
  --sticky           flush: also remove preloaded entries

Examples:
  facetsearch server
  facetsearch index movies.jsonl
  facetsearch search "drama (@actor james stewart)"
  facetsearch search --output json --facets genre,year "(@director hitchcock)"
  facetsearch preload --depth 2 --dump cache.dump ""
  facetsearch cache load --expire -1 cache.dump
  facetsearch status --output json`)
}
