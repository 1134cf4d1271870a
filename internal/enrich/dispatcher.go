package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/normalize"
	"github.com/nao1215/onioncrawl/internal/storage"
)

// Dispatcher runs enrichment kinds for a page and attaches the results
// through the storage writer. Each kind reaches a terminal state
// independently; the page is complete once all required kinds are
// terminal, whether done or failed.
type Dispatcher struct {
	pages    *storage.PageStore
	capture  *CaptureClient
	classify *ClassifyClient
	exif     *ExifDetector

	retryBudget int
	backoff     time.Duration
	logger      *slog.Logger

	// sleep is swapped in tests.
	sleep func(context.Context, time.Duration) error
}

// Options configures a Dispatcher.
type Options struct {
	// RetryBudget is how many retries each kind gets after its first
	// attempt fails.
	RetryBudget int

	// Backoff is the linear backoff unit between attempts; attempt n
	// waits n times this.
	Backoff time.Duration

	// Logger for dispatch events. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given collaborator clients.
func NewDispatcher(pages *storage.PageStore, capture *CaptureClient, classify *ClassifyClient, exifDetector *ExifDetector, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 10 * time.Second
	}
	return &Dispatcher{
		pages:       pages,
		capture:     capture,
		classify:    classify,
		exif:        exifDetector,
		retryBudget: opts.RetryBudget,
		backoff:     backoff,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEnrich runs the capture and classify kinds for the page and
// reports whether the page's enrichment is terminal afterwards.
func (d *Dispatcher) HandleEnrich(ctx context.Context, pageID string) (terminal bool, err error) {
	page, err := d.pages.Get(ctx, pageID)
	if err != nil {
		return false, err
	}

	if !page.Enrichment.Status[model.EnrichCapture].Terminal() {
		if err := d.runCapture(ctx, page); err != nil {
			return false, err
		}
	}
	if !page.Enrichment.Status[model.EnrichClassify].Terminal() {
		if err := d.runClassify(ctx, page); err != nil {
			return false, err
		}
	}
	return d.finalize(ctx, pageID)
}

// HandleDetect runs the exif kind for the page and reports whether the
// page's enrichment is terminal afterwards.
func (d *Dispatcher) HandleDetect(ctx context.Context, pageID string) (terminal bool, err error) {
	page, err := d.pages.Get(ctx, pageID)
	if err != nil {
		return false, err
	}

	if !page.Enrichment.Status[model.EnrichExif].Terminal() {
		if err := d.runExif(ctx, page); err != nil {
			return false, err
		}
	}
	return d.finalize(ctx, pageID)
}

// runCapture executes the capture kind and records its terminal state.
// A nil client means the capture service is not configured; the kind is
// settled as failed so the page can still reach a terminal state.
func (d *Dispatcher) runCapture(ctx context.Context, page *model.Page) error {
	if d.capture == nil {
		return d.record(ctx, page.ID, model.EnrichCapture, ErrNotConfigured, func(*model.Page) {})
	}

	var ref string
	err := d.withRetry(ctx, model.EnrichCapture, page.ID, func() error {
		var captureErr error
		ref, captureErr = d.capture.Capture(ctx, page.Target)
		return captureErr
	})
	return d.record(ctx, page.ID, model.EnrichCapture, err, func(p *model.Page) {
		p.Enrichment.ScreenshotRef = ref
	})
}

// runClassify executes the classify kind and records its terminal state.
func (d *Dispatcher) runClassify(ctx context.Context, page *model.Page) error {
	if d.classify == nil {
		return d.record(ctx, page.ID, model.EnrichClassify, ErrNotConfigured, func(*model.Page) {})
	}

	var verdict *Classification
	err := d.withRetry(ctx, model.EnrichClassify, page.ID, func() error {
		var classifyErr error
		verdict, classifyErr = d.classify.Classify(ctx, page.Title+" "+page.Body)
		return classifyErr
	})
	return d.record(ctx, page.ID, model.EnrichClassify, err, func(p *model.Page) {
		if verdict != nil {
			p.Enrichment.Subject = verdict.Subject
			p.Enrichment.SubjectConfidence = verdict.Confidence
			p.Enrichment.Language = verdict.Language
		}
	})
}

// runExif executes the exif kind and records its terminal state.
func (d *Dispatcher) runExif(ctx context.Context, page *model.Page) error {
	var tags map[string][]string
	err := d.withRetry(ctx, model.EnrichExif, page.ID, func() error {
		var exifErr error
		tags, exifErr = d.exif.Detect(ctx, normalize.Host(page.Target), page.Artifacts.Images)
		return exifErr
	})
	return d.record(ctx, page.ID, model.EnrichExif, err, func(p *model.Page) {
		if len(tags) > 0 {
			p.Enrichment.ExifTags = tags
		}
	})
}

// withRetry runs fn up to 1+budget times with linear backoff. Context
// cancellation aborts immediately; the job will be redelivered.
func (d *Dispatcher) withRetry(ctx context.Context, kind model.EnrichmentKind, pageID string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= d.retryBudget+1; attempt++ {
		if attempt > 1 {
			if err := d.sleep(ctx, time.Duration(attempt-1)*d.backoff); err != nil {
				return err
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("enrichment attempt failed",
			"kind", kind, "page", pageID, "attempt", attempt, "error", lastErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrBudgetExhausted, kind, lastErr)
}

// record writes the kind's terminal state to the page. On success the
// attach function lands the result; on a spent budget the kind is marked
// failed and the page proceeds with partial enrichment.
func (d *Dispatcher) record(ctx context.Context, pageID string, kind model.EnrichmentKind, runErr error, attach func(*model.Page)) error {
	if runErr != nil && ctx.Err() != nil {
		// Cancelled, not exhausted. Leave the kind pending for redelivery.
		return runErr
	}

	status := model.EnrichmentDone
	if runErr != nil {
		status = model.EnrichmentFailed
		d.logger.Warn("enrichment kind failed permanently",
			"kind", kind, "page", pageID, "error", runErr)
	}

	_, err := d.pages.Mutate(ctx, pageID, func(p *model.Page) error {
		p.Enrichment.Status[kind] = status
		if runErr == nil {
			attach(p)
		}
		return nil
	})
	return err
}

// finalize stamps the completion time once all required kinds are
// terminal and reports whether the page is complete.
func (d *Dispatcher) finalize(ctx context.Context, pageID string) (bool, error) {
	page, err := d.pages.Mutate(ctx, pageID, func(p *model.Page) error {
		if p.Enrichment.Terminal() && p.CompletedAt.IsZero() {
			p.CompletedAt = time.Now().UTC()
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return page.Enrichment.Terminal(), nil
}
