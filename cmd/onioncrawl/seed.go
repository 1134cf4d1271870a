package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nao1215/onioncrawl/internal/frontier"
	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/normalize"
	"github.com/nao1215/onioncrawl/internal/queue"
)

// NewSeedCmd creates the seed command.
func NewSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [onion-address]...",
		Short: "Ingest seed addresses into the crawl frontier",
		Long: `Seed normalizes onion addresses, registers them in the frontier at
depth zero, and enqueues their fetch jobs. Addresses already known to
the frontier are skipped; re-seeding is safe.

Examples:
  # Seed addresses from arguments
  onioncrawl seed exampleonion.onion anotheronion.onion

  # Seed addresses from a file, one per line
  onioncrawl seed --file seeds.txt`,
		Args: cobra.ArbitraryArgs,
		RunE: runSeedCmd,
	}

	cmd.Flags().StringP("file", "f", "",
		"File with one onion address per line ('#' starts a comment)")

	return cmd
}

// runSeedCmd executes the seed command.
func runSeedCmd(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	addresses := append([]string(nil), args...)
	if path, err := cmd.Flags().GetString("file"); err == nil && path != "" {
		fromFile, err := readSeedFile(path)
		if err != nil {
			return err
		}
		addresses = append(addresses, fromFile...)
	}
	if len(addresses) == 0 {
		return errors.New("no seeds provided (specify onion addresses as arguments or with --file)")
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

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

	store, err := frontier.Open(cfg.DataDir, frontier.DefaultOptions(cfg.MaxDepth))
	if err != nil {
		return fmt.Errorf("failed to open frontier store: %w", err)
	}
	defer store.Close()

	var seeded, skipped int
	for _, address := range addresses {
		identifier, err := normalize.Identifier(address)
		if err != nil {
			return fmt.Errorf("invalid onion address %q: %w", address, err)
		}

		isNew, err := store.Register(ctx, identifier, "", 0)
		if err != nil {
			return fmt.Errorf("failed to register seed %s: %w", identifier, err)
		}
		if !isNew {
			logger.Info("seed already known, skipping", "target", identifier)
			skipped++
			continue
		}

		if err := store.Mark(ctx, identifier, model.TargetQueued, 0); err != nil {
			return fmt.Errorf("failed to queue seed %s: %w", identifier, err)
		}
		if _, err := jobs.Enqueue(ctx, &model.Job{Kind: model.JobFetch, Payload: identifier}); err != nil {
			return fmt.Errorf("failed to enqueue fetch job for %s: %w", identifier, err)
		}

		logger.Info("seed enqueued", "target", identifier)
		seeded++
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d new targets (%d already known)\n", seeded, skipped)
	return nil
}

// readSeedFile reads one address per line, skipping blanks and comments.
func readSeedFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided seed file path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	var addresses []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addresses = append(addresses, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return addresses, nil
}
