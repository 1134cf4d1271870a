package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/onioncrawl/internal/config"
	"github.com/nao1215/onioncrawl/internal/crawler"
	"github.com/nao1215/onioncrawl/internal/enrich"
	"github.com/nao1215/onioncrawl/internal/extract"
	"github.com/nao1215/onioncrawl/internal/frontier"
	"github.com/nao1215/onioncrawl/internal/log"
	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/proxypool"
	"github.com/nao1215/onioncrawl/internal/queue"
	"github.com/nao1215/onioncrawl/internal/storage"
	"github.com/nao1215/onioncrawl/internal/worker"
)

// NewWorkerCmd creates the worker command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run worker pools consuming crawl jobs",
		Long: `Worker runs consumer pools against the shared job queue. Each pool
binds one job kind:

  fetch   retrieves targets through the proxy pool and extracts artifacts
  enrich  calls the capture and classification services for fetched pages
  detect  scans page images for embedded EXIF metadata
  index   delivers terminally enriched pages to the search index

By default all four kinds run in one process. Use --kinds to dedicate a
process to a subset, for example a fleet of fetch-only workers behind
many proxies and a single index worker near Elasticsearch.

Examples:
  # Run all kinds with the default configuration
  onioncrawl worker

  # Fetch-only worker with external SOCKS5 proxies
  onioncrawl worker --kinds fetch --proxy 127.0.0.1:9050 --proxy 127.0.0.1:9052

  # Enrichment and indexing only
  onioncrawl worker --kinds enrich,detect,index`,
		RunE: runWorkerCmd,
	}

	cmd.Flags().StringSliceP("kinds", "k", []string{"fetch", "enrich", "detect", "index"},
		"Job kinds to consume (fetch, enrich, detect, index)")
	cmd.Flags().StringP("redis", "r", "",
		"Redis address backing the job queue (overrides config file)")
	cmd.Flags().StringSliceP("proxy", "p", nil,
		"SOCKS5 proxy endpoint, repeatable (overrides config file; empty starts embedded Tor)")
	cmd.Flags().IntP("workers", "w", 0,
		"Consumer goroutines per pool (overrides config file)")

	return cmd
}

// runWorkerCmd executes the worker command.
func runWorkerCmd(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if addr, err := cmd.Flags().GetString("redis"); err == nil && addr != "" {
		cfg.RedisAddress = addr
	}
	if proxies, err := cmd.Flags().GetStringSlice("proxy"); err == nil && len(proxies) > 0 {
		cfg.ProxyAddresses = proxies
	}
	if workers, err := cmd.Flags().GetInt("workers"); err == nil && workers > 0 {
		cfg.WorkerCount = workers
	}

	kindNames, err := cmd.Flags().GetStringSlice("kinds")
	if err != nil {
		return err
	}
	kinds, err := parseKinds(kindNames)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	return runWorker(ctx, cfg, kinds, logger)
}

// parseKinds validates and deduplicates the requested job kinds.
func parseKinds(names []string) ([]model.JobKind, error) {
	seen := make(map[model.JobKind]bool, len(names))
	kinds := make([]model.JobKind, 0, len(names))
	for _, name := range names {
		kind := model.JobKind(strings.ToLower(strings.TrimSpace(name)))
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown job kind %q (valid: fetch, enrich, detect, index)", name)
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no job kinds selected")
	}
	return kinds, nil
}

// runWorker wires the pipeline components and runs one pool per kind
// until the context is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, kinds []model.JobKind, logger *slog.Logger) error {
	active := make(map[model.JobKind]bool, len(kinds))
	for _, kind := range kinds {
		active[kind] = true
	}

	// Queue first: without the broker nothing can run.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	defer redisClient.Close()

	jobs := queue.New(redisClient, queue.Options{
		VisibilityTimeout: cfg.VisibilityTimeout.Std(),
		Logger:            logger,
	})
	if err := jobs.Ping(ctx); err != nil {
		return fmt.Errorf("job queue unreachable at %s: %w", cfg.RedisAddress, err)
	}
	if err := jobs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}
	logger.Info("job queue ready", "redis", cfg.RedisAddress)

	store, err := frontier.Open(cfg.DataDir, frontier.DefaultOptions(cfg.MaxDepth))
	if err != nil {
		return fmt.Errorf("failed to open frontier store: %w", err)
	}
	defer store.Close()

	pages, err := storage.Open(cfg.DataDir, storage.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open page store: %w", err)
	}
	defer pages.Close()
	logger.Info("stores opened", "dir", cfg.DataDir)

	// The proxy pool serves fetch directly and detect through the exif
	// detector's image downloads.
	var pool *proxypool.Pool
	if active[model.JobFetch] || active[model.JobDetect] {
		pool, err = buildProxyPool(ctx, cfg, logger)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if active[model.JobFetch] {
		handler := crawler.NewHandler(store, pages, jobs, crawler.NewFetcher(pool, cfg.UserAgent, cfg.MaxBodySize), extract.NewEngine(), crawler.Options{
			MaxAttempts:        cfg.MaxFetchAttempts,
			ProxyBackoffBase:   cfg.ProxyBackoffBase.Std(),
			ContentBackoffBase: cfg.ContentBackoffBase.Std(),
			BackoffCap:         cfg.BackoffCap.Std(),
			FetchTimeout:       cfg.FetchTimeout.Std(),
			Logger:             logger,
		})
		addPool(g, ctx, jobs, model.JobFetch, handler.HandleFetch, cfg, logger)
	}

	if active[model.JobEnrich] || active[model.JobDetect] {
		dispatcher := buildDispatcher(cfg, pages, pool, logger)
		if active[model.JobEnrich] {
			addPool(g, ctx, jobs, model.JobEnrich, worker.EnrichHandler(dispatcher, jobs), cfg, logger)
		}
		if active[model.JobDetect] {
			addPool(g, ctx, jobs, model.JobDetect, worker.DetectHandler(dispatcher, jobs), cfg, logger)
		}
	}

	if active[model.JobIndex] {
		indexer, err := buildIndexer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		addPool(g, ctx, jobs, model.JobIndex, worker.IndexHandler(pages, indexer, logger), cfg, logger)
	}

	logger.Info("workers running", "kinds", kinds, "workers_per_kind", cfg.WorkerCount)
	return g.Wait()
}

// addPool starts one worker pool inside the errgroup.
func addPool(g *errgroup.Group, ctx context.Context, jobs *queue.Queue, kind model.JobKind, handler worker.HandlerFunc, cfg *config.Config, logger *slog.Logger) {
	pool := worker.NewPool(jobs, kind, handler,
		worker.WithWorkers(cfg.WorkerCount),
		worker.WithLogger(logger),
	)
	g.Go(func() error {
		return pool.Run(ctx)
	})
}

// buildProxyPool builds the SOCKS5 egress pool from the configured
// addresses, or bootstraps an embedded Tor daemon when none are set.
func buildProxyPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*proxypool.Pool, error) {
	opts := proxypool.Options{
		Cooldown: cfg.QuarantineCooldown.Std(),
		Logger:   logger,
	}

	if len(cfg.ProxyAddresses) > 0 {
		pool, err := proxypool.NewFromAddresses(cfg.ProxyAddresses, cfg.FetchTimeout.Std(), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to build proxy pool: %w", err)
		}
		logger.Info("proxy pool ready", "endpoints", len(cfg.ProxyAddresses))
		return pool, nil
	}

	fmt.Println("No proxy endpoints configured; starting embedded Tor daemon...")
	fmt.Printf("This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embedded := proxypool.NewEmbeddedTor(
		proxypool.WithStartupTimeout(cfg.EmbeddedTorStartupTimeout.Std()),
	)
	if err := embedded.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	go func() {
		<-ctx.Done()
		if err := embedded.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}()

	logger.Info("embedded Tor daemon started", "socksAddr", embedded.SocksAddr())
	fmt.Printf("Embedded Tor daemon started, SOCKS proxy: %s\n\n", embedded.SocksAddr())

	pool, err := embedded.NewPool(cfg.FetchTimeout.Std(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy pool over embedded Tor: %w", err)
	}
	return pool, nil
}

// buildDispatcher wires the enrichment dispatcher. Service clients for
// unconfigured URLs stay nil and their kinds settle as failed.
func buildDispatcher(cfg *config.Config, pages *storage.PageStore, pool *proxypool.Pool, logger *slog.Logger) *enrich.Dispatcher {
	var capture *enrich.CaptureClient
	if cfg.CaptureServiceURL != "" {
		capture = enrich.NewCaptureClient(cfg.CaptureServiceURL, cfg.EnrichTimeout.Std())
	}
	var classify *enrich.ClassifyClient
	if cfg.ClassifyServiceURL != "" {
		classify = enrich.NewClassifyClient(cfg.ClassifyServiceURL, cfg.EnrichTimeout.Std())
	}

	// A nil *proxypool.Pool stored in the interface would slip past the
	// detector's nil check and panic on first use.
	var clients enrich.HTTPClientSource
	if pool != nil {
		clients = pool
	}

	return enrich.NewDispatcher(pages, capture, classify, enrich.NewExifDetector(clients, cfg.MaxBodySize), enrich.Options{
		RetryBudget: cfg.EnrichRetryBudget,
		Backoff:     cfg.EnrichBackoff.Std(),
		Logger:      logger,
	})
}

// buildIndexer wires the Elasticsearch indexer and verifies the cluster
// is reachable before any index pool starts.
func buildIndexer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Indexer, error) {
	if len(cfg.ElasticsearchAddresses) == 0 {
		return nil, fmt.Errorf("index kind requires elasticsearchAddresses in the configuration")
	}

	client, err := es.NewClient(es.Config{Addresses: cfg.ElasticsearchAddresses})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	indexer := storage.NewIndexer(client, cfg.IndexName, logger)
	if err := indexer.Ping(ctx); err != nil {
		return nil, fmt.Errorf("elasticsearch unreachable: %w", err)
	}
	logger.Info("search index ready", "index", cfg.IndexName)
	return indexer, nil
}

// loadConfig loads the configuration file named by the --config flag and
// returns it with a logger honoring --verbose.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, _ = cmd.Root().PersistentFlags().GetString("config") //nolint:errcheck // Fall back to defaults
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, _ = cmd.Root().PersistentFlags().GetBool("verbose") //nolint:errcheck // Defaults to quiet
	}
	cfg.Verbose = verbose

	logger := log.NewSecureLogger(os.Stderr, verbose)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return ctx, cancel
}
