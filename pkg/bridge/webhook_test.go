// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWebhookSinkPost(t *testing.T) {
	t.Parallel()
	var gotContentType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, zerolog.Nop())
	if err := sink.Post(context.Background(), "[TeamSpeak] **Alice**: hi"); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %q", gotContentType)
	}
	if gotBody["content"] != "[TeamSpeak] **Alice**: hi" {
		t.Errorf("content = %q", gotBody["content"])
	}
}

func TestWebhookSinkNon2xx(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, zerolog.Nop())
	err := sink.Post(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("Post = %v, want status 429 error", err)
	}
}

func TestWebhookSinkCancelledContext(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	sink := NewWebhookSink(srv.URL, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Post(ctx, "x"); err == nil {
		t.Error("Post with cancelled context should fail")
	}
}
