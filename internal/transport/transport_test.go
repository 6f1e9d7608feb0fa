// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/echomind/internal/provider"
)

func testProfile(baseURL string) provider.Profile {
	p, _ := provider.NewCustomProfile(baseURL, false)
	return p
}

func wireFor(url string) *provider.WireRequest {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &provider.WireRequest{URL: url, Headers: h, Body: []byte(`{"model":"m"}`)}
}

func TestSendSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"model"`) {
			t.Errorf("body = %q", body)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New()
	got, err := c.Send(context.Background(), wireFor(srv.URL), testProfile(srv.URL))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("body = %q", got)
	}
}

func TestSendAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c := New()
	_, err := c.Send(context.Background(), wireFor(srv.URL), testProfile(srv.URL))
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if authErr.Status != 401 || authErr.Message != "invalid api key" {
		t.Errorf("authErr = %+v", authErr)
	}
}

func TestSendProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	c := New()
	_, err := c.Send(context.Background(), wireFor(srv.URL), testProfile(srv.URL))
	var provErr *provider.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if provErr.Status != 429 || !provErr.Retryable {
		t.Errorf("provErr = %+v", provErr)
	}
}

func TestSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := New()
	_, err := c.Send(ctx, wireFor(srv.URL), testProfile(srv.URL))
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if !tErr.Timeout {
		t.Errorf("Timeout = false, want true: %v", tErr)
	}
}

func TestSendCancellationPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	c := New()
	_, err := c.Send(ctx, wireFor(srv.URL), testProfile(srv.URL))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSendResponseSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	c := New(WithMaxResponseSize(1024))
	_, err := c.Send(context.Background(), wireFor(srv.URL), testProfile(srv.URL))
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("err = %v, want ErrResponseTooLarge", err)
	}
}

func TestStreamReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := New()
	body, err := c.Stream(context.Background(), wireFor(srv.URL), testProfile(srv.URL))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer body.Close()

	data, _ := io.ReadAll(body)
	if !strings.Contains(string(data), "[DONE]") {
		t.Errorf("stream body = %q", data)
	}
}

func TestStreamErrorStatusClosesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New()
	_, err := c.Stream(context.Background(), wireFor(srv.URL), testProfile(srv.URL))
	var provErr *provider.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if provErr.Message != "boom" {
		t.Errorf("message = %q", provErr.Message)
	}
}

func TestRateLimiterDelays(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	// 1 request immediately (burst), the second waits ~50ms.
	c := New(WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := c.Send(context.Background(), wireFor(srv.URL), testProfile(srv.URL)); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if hits != 2 {
		t.Errorf("hits = %d", hits)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, expected rate limiter delay", elapsed)
	}
}

func TestKeyFingerprint(t *testing.T) {
	if KeyFingerprint("") != "none" {
		t.Error("empty key should fingerprint as none")
	}
	fp := KeyFingerprint("sk-secret")
	if len(fp) != 8 {
		t.Errorf("fingerprint %q, want 8 hex chars", fp)
	}
	if strings.Contains(fp, "sk-") {
		t.Error("fingerprint must not contain key material")
	}
	if fp != KeyFingerprint("sk-secret") {
		t.Error("fingerprint must be deterministic")
	}
}
