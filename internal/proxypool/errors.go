package proxypool

import "errors"

var (
	// ErrNoEndpoints is returned when the pool is constructed without any
	// proxy endpoints and embedded Tor is disabled.
	ErrNoEndpoints = errors.New("proxy pool has no endpoints")

	// ErrAllQuarantined is returned by Acquire when every endpoint is
	// currently quarantined. Callers should back off and retry.
	ErrAllQuarantined = errors.New("all proxy endpoints are quarantined")

	// ErrInvalidProxyAddress is returned when an endpoint address is not
	// in "host:port" format.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyNotSOCKS5 is returned when the endpoint responds but does
	// not speak the SOCKS5 protocol.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned when no TCP connection can be
	// established to the endpoint address.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy endpoint")

	// ErrProxyTimeout is returned when the endpoint check times out.
	ErrProxyTimeout = errors.New("timeout connecting to proxy endpoint")
)

// Status represents the result of checking a proxy endpoint.
type Status int

const (
	// StatusOK indicates the endpoint is a working SOCKS5 proxy.
	StatusOK Status = iota

	// StatusWrongType indicates something answered that is not SOCKS5.
	StatusWrongType

	// StatusCannotConnect indicates no TCP connection could be made.
	StatusCannotConnect

	// StatusTimeout indicates the check timed out.
	StatusTimeout
)

// String returns a human-readable description of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWrongType:
		return "wrong type (not SOCKS5)"
	case StatusCannotConnect:
		return "cannot connect"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the error for this status, or nil if OK.
func (s Status) Error() error {
	switch s {
	case StatusOK:
		return nil
	case StatusWrongType:
		return ErrProxyNotSOCKS5
	case StatusCannotConnect:
		return ErrProxyCannotConnect
	case StatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
