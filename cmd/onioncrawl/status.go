package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nao1215/onioncrawl/internal/frontier"
	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/proxypool"
	"github.com/nao1215/onioncrawl/internal/queue"
	"github.com/nao1215/onioncrawl/internal/storage"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report frontier, queue, and page store statistics",
		Long: `Status reports the state of the crawl pipeline as a Markdown
document: targets per lifecycle state, pending and delayed jobs per
kind, and page enrichment progress.

With --check-proxies it additionally probes each configured SOCKS5
endpoint and reports its health.`,
		RunE: runStatusCmd,
	}

	cmd.Flags().Bool("check-proxies", false,
		"Probe the configured SOCKS5 proxy endpoints")

	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	md := markdown.NewMarkdown(cmd.OutOrStdout())
	md.H1("onioncrawl Status")
	md.PlainText("")
	md.PlainTextf("Generated at %s", time.Now().UTC().Format("2006-01-02 15:04:05 MST"))
	md.PlainText("")

	if err := writeFrontierStats(ctx, cfg.DataDir, cfg.MaxDepth, md); err != nil {
		return err
	}
	if err := writeQueueStats(ctx, cfg.RedisAddress, cfg.VisibilityTimeout.Std(), md, logger); err != nil {
		return err
	}
	if err := writePageStats(ctx, cfg.DataDir, md); err != nil {
		return err
	}

	if check, err := cmd.Flags().GetBool("check-proxies"); err == nil && check {
		if err := writeProxyHealth(ctx, cfg.ProxyAddresses, cfg.FetchTimeout.Std(), md); err != nil {
			return err
		}
	}

	return md.Build()
}

// writeFrontierStats renders the targets-per-state table.
func writeFrontierStats(ctx context.Context, dataDir string, maxDepth int, md *markdown.Markdown) error {
	store, err := frontier.Open(dataDir, frontier.DefaultOptions(maxDepth))
	if err != nil {
		return fmt.Errorf("failed to open frontier store: %w", err)
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read frontier stats: %w", err)
	}

	md.H2("Frontier")
	md.PlainText("")

	states := make([]string, 0, len(stats))
	for state := range stats {
		states = append(states, state)
	}
	sort.Strings(states)

	rows := make([][]string, 0, len(states))
	total := 0
	for _, state := range states {
		rows = append(rows, []string{state, strconv.Itoa(stats[state])})
		total += stats[state]
	}
	rows = append(rows, []string{"total", strconv.Itoa(total)})

	md.Table(markdown.TableSet{
		Header: []string{"State", "Targets"},
		Rows:   rows,
	})
	md.PlainText("")
	return nil
}

// writeQueueStats renders pending and delayed job counts per kind.
func writeQueueStats(ctx context.Context, redisAddress string, visibility time.Duration, md *markdown.Markdown, logger *slog.Logger) error {
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddress})
	defer redisClient.Close()

	jobs := queue.New(redisClient, queue.Options{VisibilityTimeout: visibility})
	if err := jobs.Ping(ctx); err != nil {
		logger.Warn("job queue unreachable, skipping queue stats", "redis", redisAddress, "error", err)
		md.H2("Job Queue")
		md.PlainText("")
		md.PlainTextf("Unreachable at `%s`: %v", redisAddress, err)
		md.PlainText("")
		return nil
	}

	stats, err := jobs.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}

	md.H2("Job Queue")
	md.PlainText("")

	kinds := []model.JobKind{model.JobFetch, model.JobDetect, model.JobEnrich, model.JobIndex}
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		rows = append(rows, []string{
			string(kind),
			strconv.FormatInt(stats[string(kind)], 10),
			strconv.FormatInt(stats[string(kind)+"_delayed"], 10),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Pending", "Delayed"},
		Rows:   rows,
	})
	md.PlainText("")
	return nil
}

// writePageStats renders total and terminally enriched page counts.
func writePageStats(ctx context.Context, dataDir string, md *markdown.Markdown) error {
	pages, err := storage.Open(dataDir, storage.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open page store: %w", err)
	}
	defer pages.Close()

	total, terminal, err := pages.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page stats: %w", err)
	}

	md.H2("Pages")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"fetched", strconv.FormatInt(total, 10)},
			{"enrichment terminal", strconv.FormatInt(terminal, 10)},
			{"enrichment in progress", strconv.FormatInt(total-terminal, 10)},
		},
	})
	md.PlainText("")
	return nil
}

// writeProxyHealth probes the configured endpoints and renders results.
func writeProxyHealth(ctx context.Context, addresses []string, timeout time.Duration, md *markdown.Markdown) error {
	md.H2("Proxy Endpoints")
	md.PlainText("")

	if len(addresses) == 0 {
		md.PlainText("No external proxy endpoints configured (workers use embedded Tor).")
		md.PlainText("")
		return nil
	}

	pool, err := proxypool.NewFromAddresses(addresses, timeout, proxypool.Options{})
	if err != nil {
		return fmt.Errorf("failed to build proxy pool: %w", err)
	}

	results := pool.CheckAll(ctx)
	sorted := make([]string, 0, len(results))
	for address := range results {
		sorted = append(sorted, address)
	}
	sort.Strings(sorted)

	rows := make([][]string, 0, len(sorted))
	for _, address := range sorted {
		rows = append(rows, []string{"`" + address + "`", results[address].String()})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Endpoint", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
	return nil
}
