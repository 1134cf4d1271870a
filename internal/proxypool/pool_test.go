package proxypool

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testPool(t *testing.T, addresses []string, opts Options) *Pool {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p, err := NewFromAddresses(addresses, 30*time.Second, opts)
	if err != nil {
		t.Fatalf("NewFromAddresses() error = %v", err)
	}
	return p
}

func TestNewRequiresEndpoints(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Options{}); !errors.Is(err, ErrNoEndpoints) {
		t.Errorf("New(nil) error = %v, want ErrNoEndpoints", err)
	}
}

func TestAcquireRoundRobin(t *testing.T) {
	t.Parallel()

	p := testPool(t, []string{"127.0.0.1:9050", "127.0.0.1:9052", "127.0.0.1:9054"}, Options{})

	seen := make(map[string]int)
	for i := 0; i < 6; i++ {
		ep, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		seen[ep.Address()]++
	}

	for addr, count := range seen {
		if count != 2 {
			t.Errorf("endpoint %s acquired %d times, want 2", addr, count)
		}
	}
}

func TestQuarantineAfterStrikeLimit(t *testing.T) {
	t.Parallel()

	p := testPool(t, []string{"127.0.0.1:9050", "127.0.0.1:9052"}, Options{StrikeLimit: 3})

	ep, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Two strikes leave the endpoint in rotation.
	p.ReportFailure(ep)
	p.ReportFailure(ep)
	for _, h := range p.Health() {
		if h.Address == ep.Address() && h.Quarantined {
			t.Fatal("endpoint quarantined before reaching the strike limit")
		}
	}

	// The third strike quarantines it.
	p.ReportFailure(ep)
	quarantined := false
	for _, h := range p.Health() {
		if h.Address == ep.Address() {
			quarantined = h.Quarantined
		}
	}
	if !quarantined {
		t.Fatal("endpoint not quarantined after reaching the strike limit")
	}

	// Acquire must never return the quarantined endpoint.
	for i := 0; i < 10; i++ {
		got, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if got.Address() == ep.Address() {
			t.Fatal("Acquire() returned a quarantined endpoint")
		}
	}
}

func TestSuccessClearsStrikes(t *testing.T) {
	t.Parallel()

	p := testPool(t, []string{"127.0.0.1:9050"}, Options{StrikeLimit: 3})

	ep, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Interleaving a success resets the consecutive-failure count, so two
	// more failures still do not reach the limit.
	p.ReportFailure(ep)
	p.ReportFailure(ep)
	p.ReportSuccess(ep)
	p.ReportFailure(ep)
	p.ReportFailure(ep)

	for _, h := range p.Health() {
		if h.Quarantined {
			t.Error("endpoint quarantined even though a success reset its strikes")
		}
		if h.Strikes != 2 {
			t.Errorf("strikes = %d, want 2", h.Strikes)
		}
	}
}

func TestAllQuarantined(t *testing.T) {
	t.Parallel()

	p := testPool(t, []string{"127.0.0.1:9050"}, Options{StrikeLimit: 1})

	ep, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	p.ReportFailure(ep)

	if _, err := p.Acquire(); !errors.Is(err, ErrAllQuarantined) {
		t.Errorf("Acquire() error = %v, want ErrAllQuarantined", err)
	}
}

func TestQuarantineExpiry(t *testing.T) {
	t.Parallel()

	p := testPool(t, []string{"127.0.0.1:9050"}, Options{StrikeLimit: 1, Cooldown: 10 * time.Minute})

	base := time.Now()
	p.now = func() time.Time { return base }

	ep, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	p.ReportFailure(ep)

	if _, err := p.Acquire(); !errors.Is(err, ErrAllQuarantined) {
		t.Fatalf("Acquire() during cooldown error = %v, want ErrAllQuarantined", err)
	}

	// After the cooldown the endpoint rejoins with a fresh strike budget.
	p.now = func() time.Time { return base.Add(11 * time.Minute) }
	got, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() after cooldown error = %v", err)
	}
	if got.Address() != ep.Address() {
		t.Errorf("Acquire() = %s, want %s", got.Address(), ep.Address())
	}
	for _, h := range p.Health() {
		if h.Strikes != 0 {
			t.Errorf("strikes after release = %d, want 0", h.Strikes)
		}
	}
}

func TestDegradedServedLast(t *testing.T) {
	t.Parallel()

	p := testPool(t, []string{"127.0.0.1:9050", "127.0.0.1:9052"}, Options{StrikeLimit: 3})

	striker, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	p.ReportFailure(striker)

	// While a clean endpoint exists, the struck one is never handed out.
	for i := 0; i < 10; i++ {
		got, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if got.Address() == striker.Address() {
			t.Fatal("Acquire() preferred a degraded endpoint over a healthy one")
		}
	}
}
