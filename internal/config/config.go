package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values are chosen based on typical Tor network characteristics
// and the behavior of the services the pipeline talks to.
const (
	// DefaultRedisAddress is the address of the Redis instance backing the
	// job queue. We use 127.0.0.1 instead of localhost to avoid DNS
	// resolution overhead and IPv6 resolution issues on some systems.
	DefaultRedisAddress = "127.0.0.1:6379"

	// DefaultFetchTimeout bounds a single fetch through the proxy pool.
	// Tor connections are inherently slower than clearnet connections due
	// to the multiple relay hops, so this is generous.
	DefaultFetchTimeout = 120 * time.Second

	// DefaultMaxDepth caps the hop count from a seed. Identifiers
	// discovered beyond the cap are recorded but never queued.
	DefaultMaxDepth = 5

	// DefaultMaxFetchAttempts is the fetch attempt budget per target.
	// A target failing this many times becomes dead and is never retried.
	DefaultMaxFetchAttempts = 3

	// DefaultQuarantineCooldown is how long a proxy endpoint stays
	// excluded from selection after three consecutive failures.
	DefaultQuarantineCooldown = 10 * time.Minute

	// DefaultVisibilityTimeout is how long a dequeued job stays invisible
	// before it is redelivered to another worker. This is the sole
	// cancellation mechanism for stuck handlers.
	DefaultVisibilityTimeout = 5 * time.Minute

	// DefaultEnrichRetryBudget is the number of retries per enrichment
	// kind before it is recorded as permanently failed for the page.
	DefaultEnrichRetryBudget = 2

	// DefaultEnrichTimeout bounds one call to an enrichment service.
	DefaultEnrichTimeout = 60 * time.Second

	// DefaultEnrichBackoff is the linear backoff step between enrichment
	// retries.
	DefaultEnrichBackoff = 10 * time.Second

	// DefaultProxyBackoffBase is the first requeue delay after a
	// transport-level fetch failure. Subsequent failures double it.
	DefaultProxyBackoffBase = 30 * time.Second

	// DefaultContentBackoffBase is the first requeue delay after a
	// content-level fetch failure. Content failures are less likely to be
	// transient than transport failures, so the base is larger.
	DefaultContentBackoffBase = 60 * time.Second

	// DefaultBackoffCap bounds both backoff curves.
	DefaultBackoffCap = 15 * time.Minute

	// DefaultWorkerCount is the bounded local concurrency of one worker
	// pool process.
	DefaultWorkerCount = 4

	// DefaultMaxBodySize limits the response body size read per fetch.
	// 5MB is sufficient for most HTML pages while preventing memory
	// exhaustion from unexpectedly large responses.
	DefaultMaxBodySize = 5 * 1024 * 1024

	// DefaultUserAgent identifies the crawler in HTTP requests.
	DefaultUserAgent = "onioncrawl/1.0 (+https://github.com/nao1215/onioncrawl)"

	// DefaultIndexName is the search collaborator's index name.
	DefaultIndexName = "onioncrawl-pages"

	// AppName is the application name used for XDG directory paths.
	AppName = "onioncrawl"
)

// Config holds all configuration options for the crawl pipeline.
// It is populated from the YAML config file plus CLI flags and passed
// through the application via dependency injection rather than global state.
type Config struct {
	// RedisAddress is the Redis instance backing the job queue in
	// "host:port" format.
	RedisAddress string `yaml:"redisAddress"`

	// DataDir is the directory holding the SQLite frontier and page
	// stores. Defaults to the XDG data directory.
	DataDir string `yaml:"dataDir"`

	// ProxyAddresses are the SOCKS5 egress endpoints of the proxy pool in
	// "host:port" format. When empty, an embedded Tor daemon is launched
	// at startup to provide a single endpoint.
	ProxyAddresses []string `yaml:"proxyAddresses"`

	// EmbeddedTorStartupTimeout is the maximum time to wait for the
	// embedded Tor daemon to bootstrap when no proxy addresses are
	// configured.
	EmbeddedTorStartupTimeout Duration `yaml:"embeddedTorStartupTimeout"`

	// FetchTimeout bounds one fetch through the proxy pool.
	FetchTimeout Duration `yaml:"fetchTimeout"`

	// MaxDepth caps the hop count from a seed.
	MaxDepth int `yaml:"maxDepth"`

	// MaxFetchAttempts is the fetch attempt budget per target.
	MaxFetchAttempts int `yaml:"maxFetchAttempts"`

	// QuarantineCooldown is the proxy endpoint quarantine duration.
	QuarantineCooldown Duration `yaml:"quarantineCooldown"`

	// VisibilityTimeout is the queue's redelivery timeout for in-flight
	// jobs.
	VisibilityTimeout Duration `yaml:"visibilityTimeout"`

	// EnrichRetryBudget is the retry budget per enrichment kind.
	EnrichRetryBudget int `yaml:"enrichRetryBudget"`

	// EnrichTimeout bounds one call to an enrichment service.
	EnrichTimeout Duration `yaml:"enrichTimeout"`

	// EnrichBackoff is the linear backoff step between enrichment retries.
	EnrichBackoff Duration `yaml:"enrichBackoff"`

	// ProxyBackoffBase and ContentBackoffBase are the first requeue delays
	// for transport-level and content-level fetch failures. Both curves
	// double per attempt up to BackoffCap.
	ProxyBackoffBase   Duration `yaml:"proxyBackoffBase"`
	ContentBackoffBase Duration `yaml:"contentBackoffBase"`
	BackoffCap         Duration `yaml:"backoffCap"`

	// WorkerCount is the bounded local concurrency of one worker pool.
	WorkerCount int `yaml:"workerCount"`

	// MaxBodySize limits the response body size read per fetch, in bytes.
	MaxBodySize int64 `yaml:"maxBodySize"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `yaml:"userAgent"`

	// CaptureServiceURL is the base URL of the visual-capture (render)
	// service. Empty disables the capture enrichment kind.
	CaptureServiceURL string `yaml:"captureServiceURL"`

	// ClassifyServiceURL is the base URL of the subject/language
	// classification service. Empty disables the classify kind.
	ClassifyServiceURL string `yaml:"classifyServiceURL"`

	// ElasticsearchAddresses are the search collaborator's endpoints.
	ElasticsearchAddresses []string `yaml:"elasticsearchAddresses"`

	// IndexName is the search collaborator's index name.
	IndexName string `yaml:"indexName"`

	// Verbose enables debug-level log output.
	Verbose bool `yaml:"-"`
}

// New creates a Config with default values. All fields are set to safe,
// sensible defaults; callers override specific values after creation or
// by loading a config file over it.
func New() *Config {
	return &Config{
		RedisAddress:              DefaultRedisAddress,
		DataDir:                   XDGDataDir(),
		EmbeddedTorStartupTimeout: Duration(3 * time.Minute),
		FetchTimeout:              Duration(DefaultFetchTimeout),
		MaxDepth:                  DefaultMaxDepth,
		MaxFetchAttempts:          DefaultMaxFetchAttempts,
		QuarantineCooldown:        Duration(DefaultQuarantineCooldown),
		VisibilityTimeout:         Duration(DefaultVisibilityTimeout),
		EnrichRetryBudget:         DefaultEnrichRetryBudget,
		EnrichTimeout:             Duration(DefaultEnrichTimeout),
		EnrichBackoff:             Duration(DefaultEnrichBackoff),
		ProxyBackoffBase:          Duration(DefaultProxyBackoffBase),
		ContentBackoffBase:        Duration(DefaultContentBackoffBase),
		BackoffCap:                Duration(DefaultBackoffCap),
		WorkerCount:               DefaultWorkerCount,
		MaxBodySize:               DefaultMaxBodySize,
		UserAgent:                 DefaultUserAgent,
		IndexName:                 DefaultIndexName,
	}
}

// XDGDataDir returns the XDG data directory for onioncrawl.
// On Linux: ~/.local/share/onioncrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for onioncrawl.
// On Linux: ~/.config/onioncrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid. It returns a specific
// error describing the first invalid field; fixing one error often makes
// subsequent ones irrelevant. Called once after loading, before any worker
// pool starts.
func (c *Config) Validate() error {
	if c.RedisAddress == "" {
		return ErrNoRedisAddress
	}
	if c.FetchTimeout <= 0 || c.EnrichTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxFetchAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.VisibilityTimeout <= 0 {
		return ErrInvalidVisibilityTimeout
	}
	if c.EnrichRetryBudget < 0 {
		return ErrInvalidRetryBudget
	}
	if c.ProxyBackoffBase <= 0 || c.ContentBackoffBase <= 0 || c.BackoffCap <= 0 {
		return ErrInvalidBackoff
	}
	if c.WorkerCount <= 0 {
		return ErrInvalidWorkerCount
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}
