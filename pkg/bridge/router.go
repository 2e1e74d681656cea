// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/ts3-discord-bridge/pkg/bridge/discordfmt"
	"github.com/aiku/ts3-discord-bridge/pkg/bridge/tsfmt"
)

// sendTarget is the send side of a supervisor. An interface so tests can
// inject a recording fake instead of a live connection.
type sendTarget interface {
	Platform() Platform
	Send(ctx context.Context, body string) error
}

// webhookPoster is the optional mirror sink.
type webhookPoster interface {
	Post(ctx context.Context, content string) error
}

const (
	webhookPostTimeout = 10 * time.Second
	logBodyLimit       = 120
)

// Router consumes normalized inbound messages from both supervisors and
// dispatches each to the opposite platform: loop guard first, then
// sanitization, then a best-effort send. Messages are delivered at most
// once and never queued or retried.
type Router struct {
	guard   *Identity
	targets map[Platform]sendTarget
	webhook webhookPoster // nil when disabled
	log     zerolog.Logger
}

// NewRouter builds the hub. webhook may be nil.
func NewRouter(guard *Identity, ts, discord sendTarget, webhook webhookPoster, log zerolog.Logger) *Router {
	return &Router{
		guard: guard,
		targets: map[Platform]sendTarget{
			PlatformTeamSpeak: ts,
			PlatformDiscord:   discord,
		},
		webhook: webhook,
		log:     log.With().Str("component", "router").Logger(),
	}
}

// Consume routes messages from one supervisor's event stream until the
// context is cancelled or the stream closes. Each supervisor gets its own
// Consume goroutine, so an in-flight send for one platform never blocks the
// other platform's stream, while per-platform ordering is preserved.
func (r *Router) Consume(ctx context.Context, events <-chan RelayMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			r.Route(ctx, msg)
		}
	}
}

// Route processes a single inbound message.
func (r *Router) Route(ctx context.Context, msg RelayMessage) {
	if r.guard.IsSelfEcho(msg) {
		r.log.Debug().
			Str("source", string(msg.Source)).
			Str("author_id", msg.AuthorID).
			Msg("Dropping self-echo")
		return
	}

	body := sanitize(msg)
	if body == "" {
		return
	}

	out := body
	if msg.AuthorName != "" {
		out = formatAuthor(msg.Source.Peer(), msg.AuthorName) + ": " + body
	}

	if err := r.targets[msg.Source.Peer()].Send(ctx, out); err != nil {
		r.log.Warn().
			Err(err).
			Str("source", string(msg.Source)).
			Str("target", string(msg.Source.Peer())).
			Str("body", truncate(body, logBodyLimit)).
			Msg("Relay send failed, message dropped")
	}

	if r.webhook != nil {
		// Fire and forget: the webhook must never slow down or fail the
		// relay path, and it outlives a shutdown-cancelled request context.
		content := webhookContent(msg)
		go func() {
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookPostTimeout)
			defer cancel()
			if err := r.webhook.Post(wctx, content); err != nil {
				r.log.Warn().Err(err).Msg("Webhook post failed")
			}
		}()
	}
}

// sanitize produces the outbound body for a message according to its
// direction. TeamSpeak bodies lose their BBCode and get embed-friendly
// links; Discord bodies get their CDN attachment URLs shortened.
func sanitize(msg RelayMessage) string {
	switch msg.Source {
	case PlatformTeamSpeak:
		return strings.TrimSpace(tsfmt.RewriteEmbedURLs(tsfmt.StripBBCode(msg.Body)))
	case PlatformDiscord:
		return strings.TrimSpace(discordfmt.ShortenAttachmentURLs(msg.Body, msg.AttachmentURLs))
	default:
		return strings.TrimSpace(msg.Body)
	}
}

// formatAuthor renders the author prefix for the destination platform:
// bold markdown toward Discord, plain text toward TeamSpeak.
func formatAuthor(dest Platform, name string) string {
	if dest == PlatformDiscord {
		return "**" + name + "**"
	}
	return name
}

// webhookContent renders the mirror copy of a message. Discord-sourced
// messages keep their original URLs (the webhook posts back into Discord,
// where the full links embed fine); TeamSpeak-sourced ones use the
// sanitized body.
func webhookContent(msg RelayMessage) string {
	var tag, body string
	switch msg.Source {
	case PlatformTeamSpeak:
		tag = "[TeamSpeak]"
		body = sanitize(msg)
	default:
		tag = "[Discord]"
		parts := make([]string, 0, 1+len(msg.AttachmentURLs))
		if msg.Body != "" {
			parts = append(parts, msg.Body)
		}
		parts = append(parts, msg.AttachmentURLs...)
		body = strings.Join(parts, " ")
	}
	if msg.AuthorName != "" {
		return tag + " **" + msg.AuthorName + "**: " + body
	}
	return tag + " " + body
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
