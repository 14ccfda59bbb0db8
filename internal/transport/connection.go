// Package transport implements nvue.Connection over HTTP(S) with resty.
//
// A Connection performs exactly one round trip per Send. It does not retry:
// a failed request surfaces to the transaction client, which decides what to do.
// WaitReady is the only place that loops, and it runs before a transaction starts.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/muurk/nvuectl/internal/nvue"
	"github.com/muurk/nvuectl/internal/version"
)

const (
	// DefaultPort is the port nvued's REST API listens on
	DefaultPort = 8765

	// DefaultScheme is used when Config.Scheme is empty
	DefaultScheme = "https"

	// DefaultTimeout bounds a single round trip
	DefaultTimeout = 30 * time.Second
)

// Config describes how to reach one device
type Config struct {
	Host     string
	Port     int
	Scheme   string
	Username string
	Password string

	// Insecure skips TLS certificate verification (switches ship self-signed certs)
	Insecure bool

	// Timeout bounds a single round trip; zero means DefaultTimeout
	Timeout time.Duration
}

// BaseURL returns scheme://host:port
func (c Config) BaseURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(c.Host, strconv.Itoa(port))}
	return u.String()
}

// Connection sends NVUE requests to a single device
type Connection struct {
	cfg    Config
	client *resty.Client
	logger *zap.Logger
}

// Option configures a Connection
type Option func(*Connection)

// WithLogger routes request tracing and resty's own warnings to logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConnection creates a connection for cfg
func NewConnection(cfg Config, opts ...Option) (*Connection, error) {
	if cfg.Host == "" {
		return nil, nvue.NewValidationError("device host is required")
	}
	if cfg.Scheme != "" && cfg.Scheme != "http" && cfg.Scheme != "https" {
		return nil, nvue.NewValidationError(fmt.Sprintf("unsupported scheme %q", cfg.Scheme))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, nvue.NewValidationError(fmt.Sprintf("invalid port %d", cfg.Port))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Connection{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL()).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		SetLogger(c.logger.Sugar()).
		SetDisableWarn(true)

	if cfg.Username != "" {
		client.SetBasicAuth(cfg.Username, cfg.Password)
	}
	if cfg.Insecure {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // user opted in with --insecure
	}

	c.client = client
	return c, nil
}

// Config returns the settings the connection was built from
func (c *Connection) Config() Config {
	return c.cfg
}

// Send performs one HTTP round trip. path already carries the API prefix and
// any query string. HTTP error statuses are returned in the RawResponse; only
// failures without a response produce an error.
func (c *Connection) Send(ctx context.Context, path string, body []byte, headers map[string]string, method string) (*nvue.RawResponse, error) {
	req := c.client.R().
		SetContext(ctx).
		SetHeaders(headers)
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, nvue.NewNetworkError(fmt.Sprintf("%s %s failed", method, path), c.cfg.Host, err)
	}

	c.logger.Debug("HTTP round trip",
		zap.String("host", c.cfg.Host),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &nvue.RawResponse{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       bytes.NewReader(resp.Body()),
	}, nil
}

// ReadySettings bound the WaitReady probe loop
type ReadySettings struct {
	// Path is probed with GET; defaults to "/nvue_v1/"
	Path            string
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultReadySettings probes for up to a minute
func DefaultReadySettings() ReadySettings {
	return ReadySettings{
		Path:            nvue.DefaultPrefix + "/",
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  time.Minute,
	}
}

const readyJitter = 0.10

// WaitReady probes the API with exponential backoff until it answers with a
// status below 500. Authentication failures stop the loop at once since
// retrying cannot fix them.
func (c *Connection) WaitReady(ctx context.Context, settings ReadySettings) error {
	if settings.Path == "" {
		settings.Path = nvue.DefaultPrefix + "/"
	}

	exponentialBackoff := backoff.NewExponentialBackOff()
	if settings.InitialInterval > 0 {
		exponentialBackoff.InitialInterval = settings.InitialInterval
	}
	if settings.MaxInterval > 0 {
		exponentialBackoff.MaxInterval = settings.MaxInterval
	}
	exponentialBackoff.MaxElapsedTime = settings.MaxElapsedTime
	exponentialBackoff.RandomizationFactor = readyJitter
	exponentialBackoff.Multiplier = backoff.DefaultMultiplier

	attempt := 0
	probe := func() error {
		attempt++
		raw, err := c.Send(ctx, settings.Path, nil, nil, "GET")
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Debug("Device not ready", zap.String("host", c.cfg.Host), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		switch {
		case raw.StatusCode == 401 || raw.StatusCode == 403:
			return backoff.Permanent(nvue.NewTransportError(raw.StatusCode, raw.Status, "authentication rejected"))
		case raw.StatusCode >= 500:
			c.logger.Debug("Device API not ready", zap.String("host", c.cfg.Host), zap.Int("attempt", attempt), zap.Int("status", raw.StatusCode))
			return nvue.NewTransportError(raw.StatusCode, raw.Status, "")
		}
		return nil
	}

	if err := backoff.Retry(probe, backoff.WithContext(exponentialBackoff, ctx)); err != nil {
		return fmt.Errorf("device %s not ready after %d attempts: %w", c.cfg.Host, attempt, err)
	}

	c.logger.Debug("Device ready", zap.String("host", c.cfg.Host), zap.Int("attempts", attempt))
	return nil
}
