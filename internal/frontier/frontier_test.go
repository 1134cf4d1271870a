package frontier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nao1215/onioncrawl/internal/model"
)

// openTestStore opens a fresh store in a temp directory.
func openTestStore(t *testing.T, maxDepth int) *Store {
	t.Helper()

	s, err := Open(t.TempDir(), DefaultOptions(maxDepth))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return s
}

// TestRegister tests the new/duplicate contract.
func TestRegister(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 5)
	ctx := context.Background()

	isNew, err := s.Register(ctx, "http://a.onion/", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Error("first registration must be new")
	}

	isNew, err = s.Register(ctx, "http://a.onion/", "http://b.onion/", 3)
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Error("second registration must be duplicate")
	}

	// The original registration wins; parent and depth are unchanged.
	target, err := s.Query(ctx, "http://a.onion/")
	if err != nil {
		t.Fatal(err)
	}
	if target == nil {
		t.Fatal("expected target")
	}
	if target.Depth != 0 || target.Parent != "" {
		t.Errorf("duplicate registration mutated target: %+v", target)
	}
}

// TestRegisterConcurrent tests that N concurrent registrations of the same
// identifier yield exactly one "new".
func TestRegisterConcurrent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 5)
	ctx := context.Background()

	const n = 32
	var newCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := s.Register(ctx, "http://race.onion/", "", 1)
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			if isNew {
				newCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := newCount.Load(); got != 1 {
		t.Errorf("got %d new registrations, want exactly 1", got)
	}
}

// TestQueryAbsent tests that unknown identifiers return nil without error.
func TestQueryAbsent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 5)

	target, err := s.Query(context.Background(), "http://nobody.onion/")
	if err != nil {
		t.Fatal(err)
	}
	if target != nil {
		t.Errorf("expected nil for absent identifier, got %+v", target)
	}
}

// TestDepthCap tests that beyond-cap targets are recorded but refuse to
// queue.
func TestDepthCap(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 2)
	ctx := context.Background()

	isNew, err := s.Register(ctx, "http://deep.onion/", "http://p.onion/", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Fatal("expected new registration")
	}

	// Recorded for provenance.
	target, err := s.Query(ctx, "http://deep.onion/")
	if err != nil || target == nil {
		t.Fatalf("expected recorded target, err=%v", err)
	}
	if target.State != model.TargetDiscovered {
		t.Errorf("state = %v, want discovered", target.State)
	}

	// Never transitions to queued.
	if err := s.Mark(ctx, "http://deep.onion/", model.TargetQueued, 0); !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("Mark(queued) = %v, want ErrDepthExceeded", err)
	}

	// At the cap is still allowed.
	if _, err := s.Register(ctx, "http://edge.onion/", "", 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Mark(ctx, "http://edge.onion/", model.TargetQueued, 0); err != nil {
		t.Errorf("Mark(queued) at cap = %v, want nil", err)
	}
}

// TestLifecycleTransitions tests the monotonic state machine.
func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 5)
	ctx := context.Background()

	const id = "http://life.onion/"
	if _, err := s.Register(ctx, id, "", 0); err != nil {
		t.Fatal(err)
	}

	// The happy path is allowed in order.
	for _, state := range []model.TargetState{
		model.TargetQueued, model.TargetFetching, model.TargetFetched,
	} {
		if err := s.Mark(ctx, id, state, 1); err != nil {
			t.Fatalf("Mark(%v) = %v", state, err)
		}
	}

	// fetched is terminal for the fetch phase.
	if err := s.Mark(ctx, id, model.TargetQueued, 1); !errors.Is(err, ErrBadTransition) {
		t.Errorf("Mark(fetched->queued) = %v, want ErrBadTransition", err)
	}
	if err := s.Mark(ctx, id, model.TargetFailed, 1); !errors.Is(err, ErrBadTransition) {
		t.Errorf("Mark(fetched->failed) = %v, want ErrBadTransition", err)
	}

	// Unknown identifiers surface ErrNotFound.
	if err := s.Mark(ctx, "http://ghost.onion/", model.TargetQueued, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Mark(absent) = %v, want ErrNotFound", err)
	}
}

// TestFailureRetryLoop tests failed -> queued retries up to the budget.
func TestFailureRetryLoop(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 5)
	ctx := context.Background()

	const id = "http://flaky.onion/"
	const maxAttempts = 3

	if _, err := s.Register(ctx, id, "", 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Mark(ctx, id, model.TargetQueued, 0); err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.Mark(ctx, id, model.TargetFetching, attempt-1); err != nil {
			t.Fatalf("attempt %d: Mark(fetching) = %v", attempt, err)
		}

		attempts, dead, err := s.RecordFailure(ctx, id, maxAttempts)
		if err != nil {
			t.Fatalf("attempt %d: RecordFailure() = %v", attempt, err)
		}
		if attempts != attempt {
			t.Errorf("attempt %d: counter = %d", attempt, attempts)
		}

		if attempt < maxAttempts {
			if dead {
				t.Fatalf("attempt %d: dead before budget spent", attempt)
			}
			// Bounded retry: failed -> queued is allowed.
			if err := s.Mark(ctx, id, model.TargetQueued, attempts); err != nil {
				t.Fatalf("attempt %d: requeue = %v", attempt, err)
			}
		} else if !dead {
			t.Fatal("target must be dead after the attempt budget is spent")
		}
	}

	// Dead targets are never revived.
	if err := s.Mark(ctx, id, model.TargetQueued, 0); !errors.Is(err, ErrDead) {
		t.Errorf("Mark(dead->queued) = %v, want ErrDead", err)
	}

	target, err := s.Query(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if target.State != model.TargetDead {
		t.Errorf("state = %v, want dead", target.State)
	}
}

// TestStats tests per-state counting.
func TestStats(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, 5)
	ctx := context.Background()

	for _, id := range []string{"http://a.onion/", "http://b.onion/", "http://c.onion/"} {
		if _, err := s.Register(ctx, id, "", 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Mark(ctx, "http://a.onion/", model.TargetQueued, 0); err != nil {
		t.Fatal(err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats["discovered"] != 2 {
		t.Errorf("discovered = %d, want 2", stats["discovered"])
	}
	if stats["queued"] != 1 {
		t.Errorf("queued = %d, want 1", stats["queued"])
	}
}
