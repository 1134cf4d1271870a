package proxypool

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// checkTimeout bounds the SOCKS5 handshake used by Check. It is short
// because the check only verifies the proxy answers, it never makes a
// real request through Tor.
const checkTimeout = 2 * time.Second

// SOCKS5 protocol constants.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
	socks5CmdConnect   = 0x01
	socks5AddrTypeDom  = 0x03

	// checkOnion is a synthetic .onion address used by the handshake
	// check. It is intentionally non-existent; we only need the proxy to
	// process a CONNECT request, not to complete it.
	checkOnion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
)

// Endpoint is a single SOCKS5 proxy through which crawl traffic can be
// routed. An Endpoint is created without touching the network; call
// Check to verify the proxy actually answers.
type Endpoint struct {
	// address is the SOCKS5 proxy address in "host:port" format.
	address string

	// dialer is the cached SOCKS5 dialer for this endpoint.
	dialer proxy.Dialer

	// timeout is the default timeout for HTTP clients built on this
	// endpoint.
	timeout time.Duration
}

// NewEndpoint creates an endpoint for the given SOCKS5 address. The
// address must be "host:port" (e.g. "127.0.0.1:9050"). The format is
// validated but the proxy is not contacted.
func NewEndpoint(address string, timeout time.Duration) (*Endpoint, error) {
	if !isValidProxyAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}

	// Tor's SOCKS port does not require auth.
	dialer, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	return &Endpoint{
		address: address,
		dialer:  dialer,
		timeout: timeout,
	}, nil
}

// isValidProxyAddress checks "host:port" format without a full URL parse.
func isValidProxyAddress(address string) bool {
	parts := strings.Split(address, ":")
	if len(parts) != 2 {
		return false
	}

	host := parts[0]
	port := parts[1]
	if host == "" || port == "" {
		return false
	}

	portNum := 0
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
		portNum = portNum*10 + int(c-'0')
		if portNum > 65535 {
			return false
		}
	}
	return portNum >= 1
}

// Address returns the endpoint's SOCKS5 address.
func (e *Endpoint) Address() string {
	return e.address
}

// Check verifies the endpoint answers as a SOCKS5 proxy. It performs the
// version negotiation and sends a CONNECT for a synthetic .onion address;
// any protocol-correct reply counts as working, including host-unreachable,
// since that still proves the proxy processed the request.
func (e *Endpoint) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", e.address)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return StatusTimeout
		}
		return StatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkTimeout)); err != nil {
		return StatusCannotConnect
	}

	// Version negotiation offering no-auth only.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return StatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return StatusTimeout
		}
		return StatusWrongType
	}
	if authResp[0] != socks5Version {
		return StatusWrongType
	}
	if authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return StatusWrongType
	}

	// CONNECT request: version + cmd + reserved + addr type + len + addr + port.
	port := uint16(80)
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDom,
		byte(len(checkOnion)),
	}
	connectReq = append(connectReq, []byte(checkOnion)...)
	connectReq = append(connectReq, byte(port>>8), byte(port&0xFF))

	if _, err := conn.Write(connectReq); err != nil {
		return StatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return StatusTimeout
		}
		return StatusWrongType
	}
	if connectResp[0] != socks5Version {
		return StatusWrongType
	}

	// Any reply code means the proxy processed the request. Tor answers
	// host-unreachable or general-failure for the synthetic address.
	return StatusOK
}

// HTTPClient builds an HTTP client that routes all requests through this
// endpoint. TLS verification is disabled because hidden services use
// self-signed certificates; the .onion address itself authenticates the
// service. Compression is disabled to avoid content-inference side
// channels on Tor circuits.
func (e *Endpoint) HTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
			return e.dialer.Dial(network, addr)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Required for .onion services
		},
		// Each connection holds a Tor circuit, so keep the pool small.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: transport,
		Timeout:   e.timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// DialContext opens a TCP connection through the endpoint with context
// support. The proxy.Dialer interface has no context variant, so the dial
// runs in a goroutine; on cancellation the underlying attempt may linger
// briefly.
func (e *Endpoint) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := e.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
