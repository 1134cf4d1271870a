package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/queue"
)

// Default pool tuning.
const (
	// DefaultWorkerCount is the number of consumer goroutines per pool.
	DefaultWorkerCount = 4

	// DefaultDequeueWait bounds one blocking dequeue so consumers notice
	// context cancellation promptly.
	DefaultDequeueWait = 5 * time.Second

	// DefaultRequeueDelay is used when a handler fails without asking
	// for a specific delay.
	DefaultRequeueDelay = 30 * time.Second
)

// HandlerFunc processes one leased job. Returning nil acks the job.
// Returning a *queue.RequeueError nacks it with the requested delay;
// any other error nacks it with the pool's default delay.
type HandlerFunc func(ctx context.Context, job *model.Job) error

// JobQueue is the lease surface a pool consumes. *queue.Queue satisfies
// it; tests substitute scripted fakes.
type JobQueue interface {
	Dequeue(ctx context.Context, kind model.JobKind, wait time.Duration) (*model.Job, error)
	Ack(ctx context.Context, job *model.Job) error
	Nack(ctx context.Context, job *model.Job, delay time.Duration) error
}

// Pool runs consumers for one job kind.
type Pool struct {
	queue   JobQueue
	kind    model.JobKind
	handler HandlerFunc

	workers      int
	dequeueWait  time.Duration
	requeueDelay time.Duration
	logger       *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of consumer goroutines.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithDequeueWait sets the blocking wait per dequeue.
func WithDequeueWait(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.dequeueWait = d
		}
	}
}

// WithRequeueDelay sets the nack delay for handler errors that do not
// carry their own.
func WithRequeueDelay(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.requeueDelay = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates a pool binding kind to handler.
func NewPool(q JobQueue, kind model.JobKind, handler HandlerFunc, opts ...Option) *Pool {
	p := &Pool{
		queue:        q,
		kind:         kind,
		handler:      handler,
		workers:      DefaultWorkerCount,
		dequeueWait:  DefaultDequeueWait,
		requeueDelay: DefaultRequeueDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run consumes jobs until the context is cancelled. It returns nil on
// cancellation; only unrecoverable queue faults propagate.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting", "kind", p.kind, "workers", p.workers)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error {
			return p.consume(ctx, worker)
		})
	}

	err := g.Wait()
	p.logger.Info("worker pool stopped", "kind", p.kind)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// consume is one consumer loop. It leases, handles, and settles jobs
// until ctx is done.
func (p *Pool) consume(ctx context.Context, worker int) error {
	logger := p.logger.With("kind", p.kind, "worker", worker)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := p.queue.Dequeue(ctx, p.kind, p.dequeueWait)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient broker faults should not kill the consumer.
			logger.Warn("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		p.settle(ctx, logger, job, p.handler(ctx, job))
	}
}

// settle acks or nacks the leased job based on the handler result. The
// settlement uses a fresh context so a cancelled run still releases the
// lease instead of leaving it to the visibility reclaim.
func (p *Pool) settle(ctx context.Context, logger *slog.Logger, job *model.Job, handleErr error) {
	settleCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		settleCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if handleErr == nil {
		if err := p.queue.Ack(settleCtx, job); err != nil {
			// Redelivery after a lost ack is handled by the handlers'
			// idempotency, so a warning is enough.
			logger.Warn("ack failed", "job", job.ID, "error", err)
		}
		return
	}

	delay := p.requeueDelay
	var requeue *queue.RequeueError
	if errors.As(handleErr, &requeue) {
		delay = requeue.Delay
	} else {
		logger.Error("handler failed", "job", job.ID, "payload", job.Payload, "error", handleErr)
	}

	if err := p.queue.Nack(settleCtx, job, delay); err != nil {
		logger.Warn("nack failed", "job", job.ID, "error", err)
	}
}
