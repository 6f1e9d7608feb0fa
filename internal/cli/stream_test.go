// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jeranaias/echomind/internal/chat"
	"github.com/jeranaias/echomind/internal/provider"
	"github.com/jeranaias/echomind/internal/storage"
	"github.com/jeranaias/echomind/internal/transport"
)

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			io.WriteString(w, f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func streamEngine(t *testing.T, url string) *chat.Engine {
	t.Helper()
	p, err := provider.NewCustomProfile(url, false)
	if err != nil {
		t.Fatalf("NewCustomProfile: %v", err)
	}
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return chat.NewEngine(store, transport.New(), chat.Candidate{Profile: p})
}

func TestPumpDeltasWritesText(t *testing.T) {
	srv := sseServer(t,
		"data: {\"model\":\"sm\",\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
		"data: [DONE]\n\n",
	)

	e := streamEngine(t, srv.URL)
	sess, err := e.Stream(context.Background(), "s1", chat.Prompt{Text: "hi", Temperature: 0.7, Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer sess.Close()

	var sb strings.Builder
	if err := pumpDeltas(sess, &sb); err != nil {
		t.Fatalf("pumpDeltas: %v", err)
	}
	if sb.String() != "Hello" {
		t.Errorf("streamed text = %q", sb.String())
	}
	if _, err := sess.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestPumpDeltasSurfacesMidStreamError(t *testing.T) {
	srv := sseServer(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"par\"}}]}\n\n",
		"data: {\"error\":{\"message\":\"overloaded\"}}\n\n",
	)

	e := streamEngine(t, srv.URL)
	sess, err := e.Stream(context.Background(), "s2", chat.Prompt{Text: "hi", Temperature: 0.7, Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer sess.Close()

	var sb strings.Builder
	err = pumpDeltas(sess, &sb)
	if err == nil {
		t.Fatal("want mid-stream error, got nil")
	}
	var pe *provider.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if !strings.Contains(pe.Message, "overloaded") {
		t.Errorf("message = %q, want provider-attributed failure", pe.Message)
	}
	if strings.Contains(err.Error(), "stream is not complete") {
		t.Errorf("error = %v, lost provider attribution", err)
	}
	if sb.String() != "par" {
		t.Errorf("partial text = %q", sb.String())
	}
}
