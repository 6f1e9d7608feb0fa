// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/echomind/internal/provider"
)

const (
	// DefaultTimeout bounds buffered (non-streaming) requests.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: size limit prevents memory exhaustion from a
	// misbehaving endpoint.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// approvedCipherSuites restricts TLS 1.2 negotiation to modern AEAD
// suites. TLS 1.3 ignores this list and uses its own built-ins.
var approvedCipherSuites = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
}

func pooledTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			CipherSuites: approvedCipherSuites,
		},
	}
}

var (
	// PERFORMANCE: connection pooling shared across all providers;
	// the pool is stateless with respect to conversation data.
	sharedHTTPClient = &http.Client{
		Transport: pooledTransport(),
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient carries no client timeout; streaming
	// lifetimes are bounded by the request context instead.
	sharedStreamingClient = &http.Client{
		Transport: pooledTransport(),
	}
)

// Doer abstracts the HTTP client for testing.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client sends translated wire requests. Safe for concurrent use.
type Client struct {
	buffered  Doer
	streaming Doer
	limiter   *rate.Limiter
	maxBody   int64
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces both underlying HTTP clients, typically with an
// httptest server's client or a stub.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.buffered = d
		c.streaming = d
	}
}

// WithRateLimit caps outbound requests per second with the given
// burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxResponseSize overrides the buffered response size cap.
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// New creates a transport client backed by the shared pooled HTTP
// clients.
func New(opts ...Option) *Client {
	c := &Client{
		buffered:  sharedHTTPClient,
		streaming: sharedStreamingClient,
		maxBody:   MaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send issues a buffered request and returns the response body.
// Network failures map to TransportError (Timeout set for deadline
// expiry), HTTP 401/403 to AuthError, and other non-2xx statuses to
// ProviderError carrying the provider's own message.
func (c *Client) Send(ctx context.Context, wire *provider.WireRequest, p provider.Profile) ([]byte, error) {
	resp, err := c.do(ctx, c.buffered, wire, p)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, p); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, wrapNetErr(p.ID, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%s: %w", p.ID, ErrResponseTooLarge)
	}
	return body, nil
}

// Stream issues a streaming request and returns the response body for
// incremental decoding. The caller owns the ReadCloser; closing it
// tears down the connection on cancellation.
func (c *Client) Stream(ctx context.Context, wire *provider.WireRequest, p provider.Profile) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.streaming, wire, p)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, p); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) do(ctx context.Context, d Doer, wire *provider.WireRequest, p provider.Profile) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, wrapNetErr(p.ID, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wire.URL, bytes.NewReader(wire.Body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, vals := range wire.Headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := d.Do(req)
	if err != nil {
		return nil, wrapNetErr(p.ID, err)
	}
	return resp, nil
}

// checkStatus maps a non-2xx response onto the error taxonomy,
// consuming the body for the provider's message.
func checkStatus(resp *http.Response, p provider.Profile) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		perr := provider.DecodeErrorBody(resp.StatusCode, body, p)
		return &AuthError{Provider: p.ID, Status: resp.StatusCode, Message: perr.Message}
	}
	return provider.DecodeErrorBody(resp.StatusCode, body, p)
}

// wrapNetErr classifies a network-level error, marking timeouts.
func wrapNetErr(providerID string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	timeout := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if !timeout && errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &TransportError{Provider: providerID, Err: err, Timeout: timeout}
}

// KeyFingerprint returns a short SHA-256 fingerprint of an API key
// for log lines.
// SECURITY: never log the key itself or any fragment of it.
func KeyFingerprint(key string) string {
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}
