package jobs

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	// required
	BaseURL string

	// Token is attached as a bearer credential when non-empty.
	Token string

	PollBase      time.Duration // first poll delay (default: 2s)
	PollMax       time.Duration // poll delay ceiling (default: 30s)
	SubmitTimeout time.Duration // per-request timeout on submit/poll (default: 30s)

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client

	// Sleeper realizes poll delays; tests substitute a fake that records
	// requested durations instead of sleeping.
	Sleeper Sleeper
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	// Normalize BaseURL: trim trailing slashes so paths can be appended.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.PollBase <= 0 {
		cfg.PollBase = 2 * time.Second
	}
	if cfg.PollMax <= 0 {
		cfg.PollMax = 30 * time.Second
	}
	if cfg.PollMax < cfg.PollBase {
		cfg.PollMax = cfg.PollBase
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = timerSleeper{}
	}

	return cfg
}

// defaultTransport creates an HTTP transport with connection pooling and
// reasonable timeouts.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
