package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/queue"
	"github.com/nao1215/onioncrawl/internal/storage"
)

// Enqueuer is the queue surface for chaining follow-up jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *model.Job) (bool, error)
}

// EnrichDispatcher runs the enrichment kinds for a page and reports
// whether the page reached a terminal enrichment state.
// *enrich.Dispatcher satisfies it.
type EnrichDispatcher interface {
	HandleEnrich(ctx context.Context, pageID string) (terminal bool, err error)
	HandleDetect(ctx context.Context, pageID string) (terminal bool, err error)
}

// PageSource loads pages for indexing. *storage.PageStore satisfies it.
type PageSource interface {
	Get(ctx context.Context, id string) (*model.Page, error)
}

// ProjectionIndexer writes page projections to the search index.
// *storage.Indexer satisfies it.
type ProjectionIndexer interface {
	Index(ctx context.Context, projection model.Projection) error
}

// EnrichHandler returns the handler for enrich jobs. Once the page's
// enrichment is terminal it chains an index job; the enqueue merges by
// idempotency key, so redelivery does not fan out duplicates.
func EnrichHandler(dispatcher EnrichDispatcher, jobs Enqueuer) HandlerFunc {
	return func(ctx context.Context, job *model.Job) error {
		terminal, err := dispatcher.HandleEnrich(ctx, job.Payload)
		if err != nil {
			return err
		}
		if !terminal {
			return nil
		}
		return chainIndexJob(ctx, jobs, job.Payload)
	}
}

// DetectHandler returns the handler for detect jobs. Like EnrichHandler
// it chains an index job once the page is terminal, so whichever of the
// two jobs finishes last triggers indexing.
func DetectHandler(dispatcher EnrichDispatcher, jobs Enqueuer) HandlerFunc {
	return func(ctx context.Context, job *model.Job) error {
		terminal, err := dispatcher.HandleDetect(ctx, job.Payload)
		if err != nil {
			return err
		}
		if !terminal {
			return nil
		}
		return chainIndexJob(ctx, jobs, job.Payload)
	}
}

// IndexHandler returns the handler for index jobs. It loads the page,
// projects it, and upserts the projection. Indexing by a deterministic
// document ID makes redelivery a harmless overwrite.
func IndexHandler(pages PageSource, indexer ProjectionIndexer, logger *slog.Logger) HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, job *model.Job) error {
		page, err := pages.Get(ctx, job.Payload)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				logger.Warn("index job references unknown page", "page", job.Payload)
				return nil
			}
			return fmt.Errorf("failed to load page for indexing: %w", err)
		}

		if !page.Enrichment.Terminal() {
			// The job outran the enrichment writes; let it come back.
			return &queue.RequeueError{
				Delay: 30 * time.Second,
				Err:   fmt.Errorf("page %s enrichment not terminal yet", page.ID),
			}
		}

		if err := indexer.Index(ctx, model.ProjectionOf(page)); err != nil {
			return fmt.Errorf("failed to index page %s: %w", page.ID, err)
		}
		return nil
	}
}

// chainIndexJob enqueues the index job for a terminally enriched page.
func chainIndexJob(ctx context.Context, jobs Enqueuer, pageID string) error {
	if _, err := jobs.Enqueue(ctx, &model.Job{Kind: model.JobIndex, Payload: pageID}); err != nil {
		return fmt.Errorf("failed to enqueue index job: %w", err)
	}
	return nil
}
