// Package httpget performs the station's outbound GET requests. Every
// failure collapses into the empty-object sentinel so callers have exactly
// one "no data" case to handle.
package httpget

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Sentinel is returned for any failed request.
const Sentinel = "{}"

const (
	DefaultTimeout = 15 * time.Second
	maxBodyBytes   = 256 << 10
)

var errNoCerts = errors.New("no certificates found in PEM")

// IsNoData reports whether body carries no usable content.
func IsNoData(body string) bool {
	b := strings.TrimSpace(body)
	return b == "" || b == Sentinel
}

type Getter interface {
	Get(ctx context.Context, url string, opts ...Option) string
}

type request struct {
	rootCA    []byte
	userAgent string
}

type Option func(*request)

// WithRootCA pins the server certificate chain to the given PEM roots.
func WithRootCA(pem []byte) Option {
	return func(r *request) { r.rootCA = pem }
}

func WithUserAgent(ua string) Option {
	return func(r *request) { r.userAgent = ua }
}

type Client struct {
	timeout time.Duration
	logger  *slog.Logger

	base *http.Client

	mu     sync.Mutex
	pinned map[[32]byte]*http.Client
}

func New(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		timeout: timeout,
		logger:  logger,
		base:    &http.Client{Timeout: timeout},
		pinned:  make(map[[32]byte]*http.Client),
	}
}

func (c *Client) Get(ctx context.Context, url string, opts ...Option) string {
	var r request
	for _, o := range opts {
		o(&r)
	}

	hc, err := c.clientFor(r.rootCA)
	if err != nil {
		c.logger.Warn("http get: bad root certificate", "url", url, "err", err)
		return Sentinel
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("http get: build request", "url", url, "err", err)
		return Sentinel
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Warn("http get failed", "url", url, "err", err)
		return Sentinel
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("http get: unexpected status", "url", url, "status", resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Sentinel
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.logger.Warn("http get: read body", "url", url, "err", err)
		return Sentinel
	}
	c.logger.Debug("http get", "url", url, "status", resp.StatusCode, "bytes", len(body))
	return string(body)
}

func (c *Client) clientFor(rootCA []byte) (*http.Client, error) {
	if len(rootCA) == 0 {
		return c.base, nil
	}

	key := sha256.Sum256(rootCA)
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.pinned[key]; ok {
		return hc, nil
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(rootCA) {
		return nil, errNoCerts
	}
	hc := &http.Client{
		Timeout: c.timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	c.pinned[key] = hc
	return hc, nil
}
