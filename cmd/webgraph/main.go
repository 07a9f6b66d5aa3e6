package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webgraph/pkg/config"
	"webgraph/pkg/crawler"
	"webgraph/pkg/extract"
	"webgraph/pkg/fetch"
	"webgraph/pkg/graph"
	"webgraph/pkg/sitemap"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("webgraph %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `webgraph - Bounded polite web crawler with link-graph output

Usage:
  webgraph <command> [options]

Commands:
  crawl       Crawl from the configured seeds and write the link graph
  validate    Validate configuration file
  version     Show version info

Run 'webgraph <command> -h' for command-specific help.`)
}

// runCrawl handles the crawl subcommand.
func runCrawl(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webgraph crawl [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(executeCrawl(*configFile, *logLevel, *pprofAddr))
}

// runValidate handles the validate subcommand.
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: webgraph validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate loads and validates a config file, printing warnings.
// Returns a process exit code.
func doValidate(configFile string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "Warning: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Config OK: %d seed(s), max_pages=%d, max_depth=%d\n",
		len(cfg.SeedURLs), cfg.MaxPages, cfg.MaxDepth)
	return 0
}

// setupLogger configures the process-wide logrus logger.
func setupLogger(levelStr string) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to info", levelStr)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}

// expandSeeds appends sitemap-advertised URLs from each seed's host to
// the seed list. Discovery failures only cost the extra seeds.
func expandSeeds(ctx context.Context, d *sitemap.Discoverer, seeds []string, log *logrus.Entry) []string {
	known := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		known[s] = true
	}
	expanded := seeds
	for _, seed := range seeds {
		found, err := d.Discover(ctx, seed)
		if err != nil {
			log.Warnf("Sitemap discovery for %s failed: %v", seed, err)
			continue
		}
		for _, u := range found {
			if !known[u] {
				known[u] = true
				expanded = append(expanded, u)
			}
		}
	}
	if n := len(expanded) - len(seeds); n > 0 {
		log.Infof("Sitemap discovery added %d seed URL(s)", n)
	}
	return expanded
}

// executeCrawl wires the components together and runs a crawl to
// completion. Returns a process exit code.
func executeCrawl(configFile, logLevel, pprofAddr string) int {
	log := setupLogger(logLevel)

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Errorf("Failed to load config: %v", err)
		return 1
	}
	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Invalid config: %v", err)
		return 1
	}

	if pprofAddr != "" {
		go func() {
			log.Infof("pprof listening on %s", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.Warnf("pprof server stopped: %v", err)
			}
		}()
	}

	runID := uuid.NewString()
	baseLog := log.WithField("run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(
		client,
		fetch.RetryPolicy{
			MaxAttempts: cfg.MaxRetries + 1,
			Backoff:     fetch.ExponentialBackoff(cfg.InitialRetryDelay, cfg.MaxRetryDelay),
		},
		cfg.UserAgent,
		cfg.MaxPageSizeBytes,
		baseLog,
	)
	robots := fetch.NewRobotsHandler(client, cfg.UserAgent, cfg.RobotsTimeout, baseLog)
	limiter := fetch.NewRateLimiter(cfg.DefaultDelayPerHost, baseLog)
	extractor := extract.NewExtractor(baseLog)

	if cfg.SitemapDiscovery {
		discoverer := sitemap.NewDiscoverer(client, limiter, cfg.UserAgent, cfg.MaxPages, baseLog)
		cfg.SeedURLs = expandSeeds(ctx, discoverer, cfg.SeedURLs, baseLog)
	}

	g := graph.New()
	renderer := graph.NewRenderer(g, cfg.OutputDOT, cfg.OutputJSON, runID, baseLog)
	go renderer.Run(ctx, cfg.RenderInterval)

	c := crawler.New(cfg, fetcher, robots, limiter, extractor, g, baseLog)
	stats, runErr := c.Run(ctx)

	// Final render regardless of how the crawl ended.
	renderer.Render()
	baseLog.WithFields(logrus.Fields{
		"nodes": g.NodeCount(), "edges": g.EdgeCount(),
	}).Info("Graph artifacts written")

	if runErr != nil {
		baseLog.Warnf("Crawl ended early after %d page(s): %v", stats.PagesFetched, runErr)
		return 1
	}
	return 0
}
