package proxypool

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Defaults used when Options leaves a field zero.
const (
	// DefaultStrikeLimit is how many consecutive proxy-level failures
	// quarantine an endpoint.
	DefaultStrikeLimit = 3

	// DefaultCooldown is how long a quarantined endpoint sits out.
	DefaultCooldown = 10 * time.Minute
)

// entry tracks the health bookkeeping of one endpoint.
type entry struct {
	endpoint *Endpoint

	// strikes counts consecutive proxy-level failures since the last
	// success. Reset to zero on success and on quarantine expiry.
	strikes int

	// quarantinedUntil is zero when the endpoint is in rotation.
	quarantinedUntil time.Time
}

// Pool hands out proxy endpoints to fetch workers and tracks their
// health from reported outcomes. Safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	next    int

	strikeLimit int
	cooldown    time.Duration
	logger      *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

// Options configures a Pool.
type Options struct {
	// StrikeLimit is the consecutive-failure count that quarantines an
	// endpoint. Defaults to DefaultStrikeLimit.
	StrikeLimit int

	// Cooldown is how long a quarantined endpoint stays out of rotation.
	// Defaults to DefaultCooldown.
	Cooldown time.Duration

	// Logger for pool events. Defaults to slog.Default().
	Logger *slog.Logger
}

// New creates a pool over the given endpoints.
func New(endpoints []*Endpoint, opts Options) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	strikeLimit := opts.StrikeLimit
	if strikeLimit <= 0 {
		strikeLimit = DefaultStrikeLimit
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entries := make([]*entry, 0, len(endpoints))
	for _, ep := range endpoints {
		entries = append(entries, &entry{endpoint: ep})
	}

	return &Pool{
		entries:     entries,
		strikeLimit: strikeLimit,
		cooldown:    cooldown,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// NewFromAddresses builds endpoints for the given SOCKS5 addresses and
// wraps them in a pool. The timeout applies to HTTP clients built from
// the endpoints.
func NewFromAddresses(addresses []string, timeout time.Duration, opts Options) (*Pool, error) {
	endpoints := make([]*Endpoint, 0, len(addresses))
	for _, addr := range addresses {
		ep, err := NewEndpoint(addr, timeout)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return New(endpoints, opts)
}

// Acquire returns the next endpoint to route a request through. Healthy
// endpoints rotate round-robin; endpoints carrying strikes are served
// only when no healthy one exists. ErrAllQuarantined means every
// endpoint is cooling down and the caller should back off.
func (p *Pool) Acquire() (*Endpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.releaseExpired(now)

	n := len(p.entries)
	var degraded *entry
	for i := 0; i < n; i++ {
		e := p.entries[(p.next+i)%n]
		if !e.quarantinedUntil.IsZero() {
			continue
		}
		if e.strikes == 0 {
			p.next = (p.next + i + 1) % n
			return e.endpoint, nil
		}
		if degraded == nil {
			degraded = e
		}
	}
	if degraded != nil {
		return degraded.endpoint, nil
	}
	return nil, ErrAllQuarantined
}

// releaseExpired returns endpoints whose cooldown has passed to the
// rotation with a fresh strike budget. Callers hold p.mu.
func (p *Pool) releaseExpired(now time.Time) {
	for _, e := range p.entries {
		if e.quarantinedUntil.IsZero() || now.Before(e.quarantinedUntil) {
			continue
		}
		e.quarantinedUntil = time.Time{}
		e.strikes = 0
		p.logger.Info("proxy endpoint released from quarantine", "proxy", e.endpoint.Address())
	}
}

// ReportSuccess clears the strike count of the endpoint.
func (p *Pool) ReportSuccess(ep *Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e := p.find(ep); e != nil {
		e.strikes = 0
	}
}

// ReportFailure records a proxy-level failure against the endpoint.
// Hitting the strike limit quarantines it for the cooldown period.
// Content-level failures (bad HTTP status, oversized body) must not be
// reported here; they say nothing about the proxy.
func (p *Pool) ReportFailure(ep *Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(ep)
	if e == nil || !e.quarantinedUntil.IsZero() {
		return
	}

	e.strikes++
	if e.strikes >= p.strikeLimit {
		e.quarantinedUntil = p.now().Add(p.cooldown)
		p.logger.Warn("proxy endpoint quarantined",
			"proxy", ep.Address(), "strikes", e.strikes, "cooldown", p.cooldown)
	}
}

// find locates the entry for an endpoint. Callers hold p.mu.
func (p *Pool) find(ep *Endpoint) *entry {
	for _, e := range p.entries {
		if e.endpoint == ep {
			return e
		}
	}
	return nil
}

// EndpointHealth describes one endpoint for operational reporting.
type EndpointHealth struct {
	Address          string
	Strikes          int
	Quarantined      bool
	QuarantinedUntil time.Time
}

// Health returns a snapshot of every endpoint's state.
func (p *Pool) Health() []EndpointHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.releaseExpired(now)

	out := make([]EndpointHealth, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, EndpointHealth{
			Address:          e.endpoint.Address(),
			Strikes:          e.strikes,
			Quarantined:      !e.quarantinedUntil.IsZero(),
			QuarantinedUntil: e.quarantinedUntil,
		})
	}
	return out
}

// Client acquires an endpoint and returns an HTTP client routed through
// it. Used by callers that need proxied transport without per-request
// outcome reporting.
func (p *Pool) Client() (*http.Client, error) {
	ep, err := p.Acquire()
	if err != nil {
		return nil, err
	}
	return ep.HTTPClient(), nil
}

// CheckAll probes every endpoint with the SOCKS5 handshake and returns
// the status per address. Used by startup checks and the status command.
func (p *Pool) CheckAll(ctx context.Context) map[string]Status {
	p.mu.Lock()
	endpoints := make([]*Endpoint, 0, len(p.entries))
	for _, e := range p.entries {
		endpoints = append(endpoints, e.endpoint)
	}
	p.mu.Unlock()

	out := make(map[string]Status, len(endpoints))
	for _, ep := range endpoints {
		out[ep.Address()] = ep.Check(ctx)
	}
	return out
}
