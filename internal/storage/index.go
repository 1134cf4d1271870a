package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/nao1215/onioncrawl/internal/model"
)

// indexAttempts bounds delivery attempts per projection. Delivery is at
// least once overall because the index job is redelivered on nack; these
// inline retries just absorb short blips without a queue round trip.
const indexAttempts = 3

// indexRetryDelay is the linear backoff between inline attempts.
const indexRetryDelay = 2 * time.Second

// Indexer delivers index-ready projections to the Elasticsearch
// collaborator. Documents are upserted by target identifier, so
// re-indexing the same identifier is a no-op for the collaborator.
type Indexer struct {
	client    *es.Client
	indexName string
	logger    *slog.Logger
}

// NewIndexer creates an indexer writing to the named index.
func NewIndexer(client *es.Client, indexName string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		client:    client,
		indexName: indexName,
		logger:    logger,
	}
}

// Ping verifies the Elasticsearch connection.
func (ix *Indexer) Ping(ctx context.Context) error {
	res, err := ix.client.Info(ix.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("search index unreachable: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("search index error response: %s", res.String())
	}
	return nil
}

// Index upserts a projection document keyed by its identifier.
func (ix *Indexer) Index(ctx context.Context, projection model.Projection) error {
	doc, err := json.Marshal(projection)
	if err != nil {
		return fmt.Errorf("failed to serialize projection: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= indexAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(indexRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = ix.indexOnce(ctx, projection.Identifier, doc)
		if lastErr == nil {
			return nil
		}
		ix.logger.Warn("projection delivery failed",
			"identifier", projection.Identifier, "attempt", attempt, "error", lastErr)
	}
	return fmt.Errorf("failed to index projection after %d attempts: %w", indexAttempts, lastErr)
}

func (ix *Indexer) indexOnce(ctx context.Context, identifier string, doc []byte) error {
	res, err := ix.client.Index(
		ix.indexName,
		bytes.NewReader(doc),
		ix.client.Index.WithContext(ctx),
		ix.client.Index.WithDocumentID(DocumentID(identifier)),
	)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index error response: %s", res.String())
	}
	return nil
}

// DocumentID derives the Elasticsearch document ID for an identifier.
// Identifiers contain slashes and colons, so they are hashed rather than
// used raw; the hash is deterministic, keeping the upsert idempotent.
func DocumentID(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}
