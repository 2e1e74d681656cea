// Copyright 2024-2026 Aiku AI

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookSink posts message copies to a Discord-compatible webhook URL.
// It is a one-way side channel: failures are reported to the caller for
// logging and nothing feeds back into bridge state.
type WebhookSink struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewWebhookSink creates a sink for the given webhook URL.
func NewWebhookSink(url string, log zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log.With().Str("component", "webhook").Logger(),
	}
}

// Post sends {"content": ...} to the webhook.
func (w *WebhookSink) Post(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
