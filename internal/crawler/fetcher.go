package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/nao1215/onioncrawl/internal/model"
	"github.com/nao1215/onioncrawl/internal/proxypool"
)

// Response is the usable part of a fetched HTTP response.
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the response body, bounded by the configured maximum.
	Body []byte

	// ContentType is the Content-Type header value.
	ContentType string
}

// ContentFetcher retrieves a target's content. The second return value
// classifies the result; err is non-nil exactly when the outcome is not
// success.
type ContentFetcher interface {
	Fetch(ctx context.Context, identifier string) (*Response, model.FetchOutcome, error)
}

// Fetcher fetches targets through the proxy pool and reports endpoint
// outcomes back to it.
type Fetcher struct {
	pool        *proxypool.Pool
	userAgent   string
	maxBodySize int64
}

// NewFetcher creates a pool-backed fetcher.
func NewFetcher(pool *proxypool.Pool, userAgent string, maxBodySize int64) *Fetcher {
	return &Fetcher{
		pool:        pool,
		userAgent:   userAgent,
		maxBodySize: maxBodySize,
	}
}

// Fetch retrieves the identifier through an acquired proxy endpoint.
// Transport-level failures are reported against the endpoint; content
// failures are not, since they say nothing about the proxy.
func (f *Fetcher) Fetch(ctx context.Context, identifier string) (*Response, model.FetchOutcome, error) {
	endpoint, err := f.pool.Acquire()
	if err != nil {
		// Pool exhaustion defers the job; no fetch left the process, so
		// it must not count as a fetch failure for the target.
		return nil, model.FetchDeferred, fmt.Errorf("no proxy endpoint available: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identifier, nil)
	if err != nil {
		return nil, model.FetchContentError, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := endpoint.HTTPClient().Do(req)
	if err != nil {
		outcome := classifyTransportError(err)
		f.pool.ReportFailure(endpoint)
		return nil, outcome, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	// The transport worked regardless of what the content turns out to be.
	f.pool.ReportSuccess(endpoint)

	if resp.ContentLength > f.maxBodySize {
		return nil, model.FetchContentError,
			fmt.Errorf("response body exceeds %d bytes", f.maxBodySize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, model.FetchContentError, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, model.FetchContentError,
			fmt.Errorf("response body exceeds %d bytes", f.maxBodySize)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, model.FetchContentError,
			fmt.Errorf("unusable response status %d", resp.StatusCode)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, model.FetchSuccess, nil
}

// classifyTransportError separates deadline expiry from proxy failures.
func classifyTransportError(err error) model.FetchOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.FetchTimeout
	}
	return model.FetchProxyError
}
