package crawler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/onioncrawl/internal/extract"
	"github.com/nao1215/onioncrawl/internal/frontier"
	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/normalize"
	"github.com/nao1215/onioncrawl/internal/queue"
	"github.com/nao1215/onioncrawl/internal/storage"
)

// Enqueuer is the queue surface the handler needs for follow-up jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *model.Job) (bool, error)
}

// Handler processes fetch jobs. One Handler is shared by all workers of
// the fetch pool; it holds no per-job state.
type Handler struct {
	frontier *frontier.Store
	pages    *storage.PageStore
	jobs     Enqueuer
	fetcher  ContentFetcher
	engine   *extract.Engine

	maxAttempts        int
	proxyBackoffBase   time.Duration
	contentBackoffBase time.Duration
	backoffCap         time.Duration
	fetchTimeout       time.Duration
	logger             *slog.Logger
}

// Options configures a Handler.
type Options struct {
	// MaxAttempts is the fetch attempt budget per target.
	MaxAttempts int

	// ProxyBackoffBase is the first requeue delay after a transport
	// failure; ContentBackoffBase after a content failure. Both double
	// per attempt up to BackoffCap.
	ProxyBackoffBase   time.Duration
	ContentBackoffBase time.Duration
	BackoffCap         time.Duration

	// FetchTimeout bounds one fetch including body read.
	FetchTimeout time.Duration

	// Logger for crawl events. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewHandler creates a fetch-job handler.
func NewHandler(store *frontier.Store, pages *storage.PageStore, jobs Enqueuer, fetcher ContentFetcher, engine *extract.Engine, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		frontier:           store,
		pages:              pages,
		jobs:               jobs,
		fetcher:            fetcher,
		engine:             engine,
		maxAttempts:        opts.MaxAttempts,
		proxyBackoffBase:   opts.ProxyBackoffBase,
		contentBackoffBase: opts.ContentBackoffBase,
		backoffCap:         opts.BackoffCap,
		fetchTimeout:       opts.FetchTimeout,
		logger:             logger,
	}
}

// HandleFetch processes one fetch job. A nil return means the job is
// done and may be acked; a queue.RequeueError asks for redelivery after
// its delay. Redelivery of an already-fetched target is detected through
// the page record, making the handler idempotent.
func (h *Handler) HandleFetch(ctx context.Context, job *model.Job) error {
	identifier := job.Payload

	target, err := h.frontier.Query(ctx, identifier)
	if err != nil {
		return fmt.Errorf("failed to query target: %w", err)
	}
	if target == nil {
		h.logger.Warn("fetch job references unknown target", "target", identifier)
		return nil
	}
	if target.State == model.TargetDead {
		// The attempt budget was spent by an earlier delivery.
		h.logger.Info("dropping fetch job for dead target", "target", identifier)
		return nil
	}

	// A page already existing means a previous delivery got as far as the
	// durable side effects; only the follow-up jobs and the final state
	// transition might be missing.
	page, err := h.pages.GetByTarget(ctx, identifier)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if page != nil {
		if err := h.enqueueFollowUps(ctx, page.ID); err != nil {
			return err
		}
		if err := h.frontier.Mark(ctx, identifier, model.TargetFetched, target.Attempts); err != nil {
			return fmt.Errorf("failed to mark target fetched: %w", err)
		}
		return nil
	}

	// The frontier counts completed fetch attempts; the one we are about
	// to make is counted by RecordFailure if it fails.
	if err := h.frontier.Mark(ctx, identifier, model.TargetFetching, target.Attempts); err != nil {
		if errors.Is(err, frontier.ErrDead) {
			h.logger.Info("dropping fetch job for dead target", "target", identifier)
			return nil
		}
		return fmt.Errorf("failed to mark target fetching: %w", err)
	}

	fetchCtx := ctx
	if h.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, h.fetchTimeout)
		defer cancel()
	}

	resp, outcome, err := h.fetcher.Fetch(fetchCtx, identifier)
	if err != nil {
		if outcome == model.FetchDeferred {
			return h.handleDeferral(identifier, err)
		}
		return h.handleFailure(ctx, identifier, outcome, err)
	}

	return h.handleSuccess(ctx, identifier, target.Attempts, resp, outcome)
}

// handleDeferral parks the job until a proxy endpoint becomes available.
// No fetch left the process, so the target's attempt counter is not
// touched and its state stays fetching until the job comes back; a
// target can never die from pool exhaustion alone.
func (h *Handler) handleDeferral(identifier string, fetchErr error) error {
	h.logger.Warn("no proxy endpoint available, deferring fetch",
		"target", identifier, "delay", h.proxyBackoffBase, "error", fetchErr)
	return &queue.RequeueError{Delay: h.proxyBackoffBase, Err: fetchErr}
}

// handleFailure applies the retry policy after a failed fetch.
func (h *Handler) handleFailure(ctx context.Context, identifier string, outcome model.FetchOutcome, fetchErr error) error {
	attempts, dead, err := h.frontier.RecordFailure(ctx, identifier, h.maxAttempts)
	if err != nil {
		return fmt.Errorf("failed to record fetch failure: %w", err)
	}

	if dead {
		// Budget spent. The target stays dead and the job completes; this
		// is an expected end state, not a fault to propagate.
		h.logger.Info("target exhausted its fetch attempts",
			"target", identifier, "attempts", attempts, "outcome", outcome)
		return nil
	}

	if err := h.frontier.Mark(ctx, identifier, model.TargetQueued, attempts); err != nil {
		return fmt.Errorf("failed to requeue target: %w", err)
	}

	delay := backoffDelay(h.backoffBase(outcome), h.backoffCap, attempts)
	h.logger.Warn("fetch failed, requeueing",
		"target", identifier, "outcome", outcome, "attempts", attempts,
		"delay", delay, "error", fetchErr)
	return &queue.RequeueError{Delay: delay, Err: fetchErr}
}

// backoffBase selects the backoff curve for an outcome. Proxy problems
// recover faster than content problems, so their curve starts lower.
func (h *Handler) backoffBase(outcome model.FetchOutcome) time.Duration {
	if outcome == model.FetchContentError {
		return h.contentBackoffBase
	}
	return h.proxyBackoffBase
}

// backoffDelay returns base doubled per prior attempt, capped.
func backoffDelay(base, ceiling time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// handleSuccess extracts the content, feeds the frontier, and creates
// the page record with its follow-up jobs.
func (h *Handler) handleSuccess(ctx context.Context, identifier string, attempts int, resp *Response, outcome model.FetchOutcome) error {
	result, err := h.engine.Extract(identifier, bytes.NewReader(resp.Body))
	if err != nil {
		// Undecodable content is a content failure, not a crash.
		return h.handleFailure(ctx, identifier, model.FetchContentError, err)
	}
	if result.Artifacts.Rejected > 0 {
		h.logger.Debug("extraction degraded",
			"target", identifier, "rejected", result.Artifacts.Rejected)
	}

	if err := h.registerLinks(ctx, identifier, result.Artifacts.Links); err != nil {
		return err
	}

	hash := sha256.Sum256(resp.Body)
	page := &model.Page{
		ID:          uuid.NewString(),
		Target:      identifier,
		StatusCode:  resp.StatusCode,
		Outcome:     outcome,
		Title:       result.Title,
		Body:        result.Body,
		ContentHash: hex.EncodeToString(hash[:]),
		Artifacts:   result.Artifacts,
		Enrichment:  model.NewEnrichment(),
		FetchedAt:   time.Now().UTC(),
	}
	if err := h.pages.Create(ctx, page); err != nil {
		if errors.Is(err, storage.ErrDuplicatePage) {
			// A concurrent delivery won the race; use its page.
			existing, getErr := h.pages.GetByTarget(ctx, identifier)
			if getErr != nil {
				return getErr
			}
			page = existing
		} else {
			return fmt.Errorf("failed to create page: %w", err)
		}
	}

	if err := h.enqueueFollowUps(ctx, page.ID); err != nil {
		return err
	}

	if err := h.frontier.Mark(ctx, identifier, model.TargetFetched, attempts); err != nil {
		return fmt.Errorf("failed to mark target fetched: %w", err)
	}

	h.logger.Info("page fetched",
		"target", identifier, "status", resp.StatusCode,
		"links", len(result.Artifacts.Links), "images", len(result.Artifacts.Images))
	return nil
}

// registerLinks normalizes discovered onion links, registers them with
// the frontier, and enqueues fetch jobs for the new ones within depth.
func (h *Handler) registerLinks(ctx context.Context, parent string, links []model.Link) error {
	target, err := h.frontier.Query(ctx, parent)
	if err != nil {
		return fmt.Errorf("failed to query parent target: %w", err)
	}
	depth := 0
	if target != nil {
		depth = target.Depth
	}

	for _, link := range links {
		if !link.Onion {
			continue
		}

		childID, err := normalize.Identifier(link.URL)
		if err != nil {
			// v2 addresses and malformed onions end here.
			continue
		}

		isNew, err := h.frontier.Register(ctx, childID, parent, depth+1)
		if err != nil {
			return fmt.Errorf("failed to register link: %w", err)
		}
		if isNew {
			if err := h.frontier.Mark(ctx, childID, model.TargetQueued, 0); err != nil {
				if errors.Is(err, frontier.ErrDepthExceeded) {
					// Recorded for provenance but never fetched.
					continue
				}
				return fmt.Errorf("failed to queue link: %w", err)
			}
		} else {
			// A known link still queued with zero attempts may have lost
			// its job to a crash between marking and enqueueing; the
			// idempotency-key merge makes re-enqueueing it safe.
			child, err := h.frontier.Query(ctx, childID)
			if err != nil {
				return fmt.Errorf("failed to query known link: %w", err)
			}
			if child == nil || child.State != model.TargetQueued || child.Attempts != 0 {
				continue
			}
		}

		if _, err := h.jobs.Enqueue(ctx, &model.Job{
			Kind:    model.JobFetch,
			Payload: childID,
		}); err != nil {
			return fmt.Errorf("failed to enqueue fetch job: %w", err)
		}
	}
	return nil
}

// enqueueFollowUps enqueues the page's enrich and detect jobs. Both
// merge by idempotency key, so calling this on redelivery is safe.
func (h *Handler) enqueueFollowUps(ctx context.Context, pageID string) error {
	for _, kind := range []model.JobKind{model.JobEnrich, model.JobDetect} {
		if _, err := h.jobs.Enqueue(ctx, &model.Job{Kind: kind, Payload: pageID}); err != nil {
			return fmt.Errorf("failed to enqueue %s job: %w", kind, err)
		}
	}
	return nil
}
