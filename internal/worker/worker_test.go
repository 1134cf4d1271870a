package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/queue"
)

// scriptedQueue hands out a fixed job list and records settlements.
type scriptedQueue struct {
	mu    sync.Mutex
	jobs  []*model.Job
	acked []string
	nacks map[string]time.Duration
}

func newScriptedQueue(jobs ...*model.Job) *scriptedQueue {
	return &scriptedQueue{jobs: jobs, nacks: make(map[string]time.Duration)}
}

func (q *scriptedQueue) Dequeue(ctx context.Context, _ model.JobKind, wait time.Duration) (*model.Job, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(wait):
		return nil, queue.ErrEmpty
	}
}

func (q *scriptedQueue) Ack(_ context.Context, job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, job.ID)
	return nil
}

func (q *scriptedQueue) Nack(_ context.Context, job *model.Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nacks[job.ID] = delay
	return nil
}

func (q *scriptedQueue) settled() (acked []string, nacks map[string]time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...), q.nacks
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runUntilSettled runs the pool until want settlements landed, then
// cancels and waits for shutdown.
func runUntilSettled(t *testing.T, pool *Pool, q *scriptedQueue, want int) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		acked, nacks := q.settled()
		if len(acked)+len(nacks) >= want {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatalf("timed out: %d acked, %d nacked, want %d settled", len(acked), len(nacks), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestPoolAcksOnSuccess(t *testing.T) {
	t.Parallel()

	q := newScriptedQueue(
		&model.Job{ID: "1-0", Kind: model.JobFetch, Payload: "a"},
		&model.Job{ID: "2-0", Kind: model.JobFetch, Payload: "b"},
	)
	var handled int32
	var mu sync.Mutex
	pool := NewPool(q, model.JobFetch, func(context.Context, *model.Job) error {
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	}, WithWorkers(2), WithDequeueWait(20*time.Millisecond), WithLogger(discardLogger()))

	runUntilSettled(t, pool, q, 2)

	acked, nacks := q.settled()
	if len(acked) != 2 {
		t.Errorf("acked %d jobs, want 2", len(acked))
	}
	if len(nacks) != 0 {
		t.Errorf("nacked %d jobs, want 0", len(nacks))
	}
	mu.Lock()
	defer mu.Unlock()
	if handled != 2 {
		t.Errorf("handled %d jobs, want 2", handled)
	}
}

func TestPoolNacksWithRequestedDelay(t *testing.T) {
	t.Parallel()

	q := newScriptedQueue(&model.Job{ID: "1-0", Kind: model.JobFetch, Payload: "a"})
	pool := NewPool(q, model.JobFetch, func(context.Context, *model.Job) error {
		return &queue.RequeueError{Delay: 2 * time.Minute, Err: errors.New("proxy down")}
	}, WithWorkers(1), WithDequeueWait(20*time.Millisecond), WithLogger(discardLogger()))

	runUntilSettled(t, pool, q, 1)

	_, nacks := q.settled()
	if got := nacks["1-0"]; got != 2*time.Minute {
		t.Errorf("nack delay = %v, want 2m", got)
	}
}

func TestPoolNacksWithDefaultDelayOnPlainError(t *testing.T) {
	t.Parallel()

	q := newScriptedQueue(&model.Job{ID: "1-0", Kind: model.JobEnrich, Payload: "a"})
	pool := NewPool(q, model.JobEnrich, func(context.Context, *model.Job) error {
		return errors.New("storage unavailable")
	}, WithWorkers(1), WithDequeueWait(20*time.Millisecond),
		WithRequeueDelay(45*time.Second), WithLogger(discardLogger()))

	runUntilSettled(t, pool, q, 1)

	_, nacks := q.settled()
	if got := nacks["1-0"]; got != 45*time.Second {
		t.Errorf("nack delay = %v, want 45s", got)
	}
}

func TestPoolStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := newScriptedQueue()
	pool := NewPool(q, model.JobFetch, func(context.Context, *model.Job) error {
		return nil
	}, WithWorkers(2), WithDequeueWait(10*time.Millisecond), WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}
