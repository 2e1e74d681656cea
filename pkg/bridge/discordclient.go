// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// discordMaxMessageLen is Discord's hard message length limit.
const discordMaxMessageLen = 2000

// DiscordSession implements Session for the Discord bot connection.
// Automatic library reconnection is disabled; the supervisor's state
// machine owns the reconnect cycle so backoff and shutdown behave the same
// on both platforms.
type DiscordSession struct {
	cfg      DiscordConfig
	identity *Identity
	events   chan<- RelayMessage
	log      zerolog.Logger

	// limiter paces channel sends well under Discord's per-channel limit.
	limiter *rate.Limiter

	mu      sync.Mutex
	session *discordgo.Session
	runCtx  context.Context
	discCh  chan error
}

// NewDiscordSession creates the Discord side of the bridge. Inbound
// messages are emitted on events.
func NewDiscordSession(cfg DiscordConfig, identity *Identity, events chan<- RelayMessage, log zerolog.Logger) *DiscordSession {
	return &DiscordSession{
		cfg:      cfg,
		identity: identity,
		events:   events,
		log:      log.With().Str("component", "discord").Logger(),
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

var _ Session = (*DiscordSession)(nil)

// Dial constructs the gateway session and registers handlers. No network
// traffic happens until Auth.
func (d *DiscordSession) Dial(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	session.ShouldReconnectOnError = false
	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onDisconnect)

	d.mu.Lock()
	d.session = session
	d.runCtx = ctx
	d.discCh = make(chan error, 1)
	d.mu.Unlock()
	return nil
}

// Auth opens the gateway connection and waits for the Ready event, which
// carries the bot's own user ID for echo suppression.
func (d *DiscordSession) Auth(ctx context.Context) error {
	s := d.gatewaySession()
	if s == nil {
		return ErrNotConnected
	}
	if err := s.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	if s.State != nil && s.State.User != nil {
		d.identity.SetBotID(PlatformDiscord, s.State.User.ID)
		d.log.Info().
			Str("user", s.State.User.Username).
			Str("user_id", s.State.User.ID).
			Msg("Logged in to Discord")
	}
	return nil
}

// Subscribe verifies the configured channel is visible to the bot, so a
// bad channel ID surfaces at connect time instead of on the first send.
func (d *DiscordSession) Subscribe(ctx context.Context) error {
	s := d.gatewaySession()
	if s == nil {
		return ErrNotConnected
	}
	channel, err := s.Channel(d.cfg.ChannelID)
	if err != nil {
		return fmt.Errorf("resolve channel %s: %w", d.cfg.ChannelID, err)
	}
	d.log.Info().Str("channel", channel.Name).Str("channel_id", channel.ID).Msg("Bridging Discord channel")
	return nil
}

// Run blocks until the gateway disconnects or the context is cancelled.
// Events are delivered by discordgo on its own goroutines via the handlers
// registered in Dial.
func (d *DiscordSession) Run(ctx context.Context) error {
	d.mu.Lock()
	discCh := d.discCh
	d.mu.Unlock()
	if discCh == nil {
		return ErrNotConnected
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-discCh:
		return err
	}
}

func (d *DiscordSession) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	d.mu.Lock()
	discCh := d.discCh
	d.mu.Unlock()
	if discCh == nil {
		return
	}
	select {
	case discCh <- errors.New("gateway disconnected"):
	default:
	}
}

func (d *DiscordSession) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.ChannelID != d.cfg.ChannelID || m.Author == nil {
		return
	}
	var selfID string
	if s.State != nil && s.State.User != nil {
		selfID = s.State.User.ID
	}
	msg := relayFromDiscordMessage(m.Message, selfID)
	if msg.Body == "" && len(msg.AttachmentURLs) == 0 {
		return
	}

	d.mu.Lock()
	runCtx := d.runCtx
	d.mu.Unlock()
	if runCtx == nil {
		return
	}
	select {
	case d.events <- msg:
	case <-runCtx.Done():
	}
}

// relayFromDiscordMessage normalizes a Discord message into a RelayMessage.
func relayFromDiscordMessage(m *discordgo.Message, selfID string) RelayMessage {
	urls := make([]string, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		if att != nil && att.URL != "" {
			urls = append(urls, att.URL)
		}
	}
	return RelayMessage{
		Source:          PlatformDiscord,
		AuthorID:        m.Author.ID,
		AuthorName:      discordDisplayName(m),
		AuthorIsSelf:    selfID != "" && m.Author.ID == selfID,
		AuthorIsWebhook: m.WebhookID != "",
		Body:            strings.TrimSpace(m.Content),
		AttachmentURLs:  urls,
		Timestamp:       m.Timestamp,
	}
}

// discordDisplayName picks the most specific name available: server
// nickname, then global display name, then username.
func discordDisplayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// Send posts to the bridged channel, splitting bodies that exceed the
// platform limit.
func (d *DiscordSession) Send(ctx context.Context, body string) error {
	s := d.gatewaySession()
	if s == nil {
		return ErrNotConnected
	}
	for _, chunk := range splitMessage(body, discordMaxMessageLen) {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := s.ChannelMessageSend(d.cfg.ChannelID, chunk); err != nil {
			return fmt.Errorf("send channel message: %w", err)
		}
	}
	return nil
}

// Close drops the gateway connection.
func (d *DiscordSession) Close() {
	d.mu.Lock()
	s := d.session
	d.session = nil
	d.mu.Unlock()
	if s != nil {
		if err := s.Close(); err != nil {
			d.log.Debug().Err(err).Msg("Gateway close failed")
		}
	}
}

func (d *DiscordSession) gatewaySession() *discordgo.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// splitMessage splits a long body into chunks within maxLen, preferring to
// cut at a newline when one falls in the second half of the chunk.
func splitMessage(body string, maxLen int) []string {
	if len(body) <= maxLen {
		return []string{body}
	}
	var chunks []string
	for len(body) > maxLen {
		cut := maxLen
		if idx := strings.LastIndexByte(body[:maxLen], '\n'); idx > maxLen/2 {
			cut = idx + 1
		}
		chunks = append(chunks, body[:cut])
		body = body[cut:]
	}
	return append(chunks, body)
}
