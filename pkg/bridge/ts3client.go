// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/ts3-discord-bridge/pkg/ts3query"
)

// queryErrNicknameInUse is the ServerQuery status for a taken nickname.
const queryErrNicknameInUse = 513

// TS3Session implements Session for the TeamSpeak ServerQuery connection.
type TS3Session struct {
	cfg       TeamSpeakConfig
	keepalive time.Duration
	identity  *Identity
	events    chan<- RelayMessage
	log       zerolog.Logger

	mu       sync.Mutex
	client   *ts3query.Client
	clientID int

	// nameCache maps client IDs to nicknames for events that arrive
	// without an invokername.
	nameCache map[int]string
}

// NewTS3Session creates the TeamSpeak side of the bridge. Inbound messages
// are emitted on events.
func NewTS3Session(cfg TeamSpeakConfig, keepalive time.Duration, identity *Identity, events chan<- RelayMessage, log zerolog.Logger) *TS3Session {
	return &TS3Session{
		cfg:       cfg,
		keepalive: keepalive,
		identity:  identity,
		events:    events,
		log:       log.With().Str("component", "ts3").Logger(),
		nameCache: make(map[int]string),
	}
}

var _ Session = (*TS3Session)(nil)

// Dial opens the ServerQuery TCP connection.
func (t *TS3Session) Dial(ctx context.Context) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.QueryPort))
	t.log.Info().Str("addr", addr).Msg("Connecting to ServerQuery")
	client, err := ts3query.Dial(ctx, addr, t.log)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.client = client
	t.nameCache = make(map[int]string)
	t.mu.Unlock()
	return nil
}

// Auth logs in, selects the virtual server, secures the nickname and
// records our own client ID for echo suppression.
func (t *TS3Session) Auth(ctx context.Context) error {
	c := t.queryClient()
	if c == nil {
		return ErrNotConnected
	}
	if err := c.Login(ctx, t.cfg.Username, t.cfg.Password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := c.Use(ctx, t.cfg.VoicePort); err != nil {
		return fmt.Errorf("select server: %w", err)
	}
	if err := t.ensureNickname(ctx, c); err != nil {
		return err
	}

	whoami, err := c.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("whoami: %w", err)
	}
	clid, err := strconv.Atoi(whoami["client_id"])
	if err != nil {
		return fmt.Errorf("whoami returned bad client_id %q", whoami["client_id"])
	}
	t.mu.Lock()
	t.clientID = clid
	t.mu.Unlock()
	t.identity.SetBotID(PlatformTeamSpeak, strconv.Itoa(clid))
	t.log.Info().Int("client_id", clid).Msg("Logged in to ServerQuery")
	return nil
}

// ensureNickname claims the configured nickname. A stale bridge client from
// a previous run may still hold it; kick it, retry once, then fall back to
// a numbered nickname rather than failing the whole cycle.
func (t *TS3Session) ensureNickname(ctx context.Context, c *ts3query.Client) error {
	err := c.SetNickname(ctx, t.cfg.Nickname)
	if err == nil {
		return nil
	}
	var qe *ts3query.QueryError
	if !errors.As(err, &qe) || qe.ID != queryErrNicknameInUse {
		return fmt.Errorf("set nickname: %w", err)
	}

	t.log.Warn().Str("nickname", t.cfg.Nickname).Msg("Nickname in use, kicking stale client")
	if clients, listErr := c.ClientList(ctx); listErr == nil {
		for _, row := range clients {
			if row["client_nickname"] != t.cfg.Nickname {
				continue
			}
			clid, _ := strconv.Atoi(row["clid"])
			if kickErr := c.KickClient(ctx, clid, "Bridge reconnecting"); kickErr != nil {
				t.log.Warn().Err(kickErr).Int("clid", clid).Msg("Could not kick stale client")
			}
		}
	}
	if err := c.SetNickname(ctx, t.cfg.Nickname); err == nil {
		return nil
	}

	fallback := fmt.Sprintf("%s_%d", t.cfg.Nickname, time.Now().Unix()%100)
	if err := c.SetNickname(ctx, fallback); err != nil {
		return fmt.Errorf("set fallback nickname: %w", err)
	}
	t.log.Warn().Str("nickname", fallback).Msg("Using fallback nickname")
	return nil
}

// Subscribe registers for channel text message notifications.
func (t *TS3Session) Subscribe(ctx context.Context) error {
	c := t.queryClient()
	if c == nil {
		return ErrNotConnected
	}
	if err := c.RegisterTextChannel(ctx); err != nil {
		return fmt.Errorf("register notifications: %w", err)
	}
	return nil
}

// Run receives notifications and sends keepalives until the connection
// drops or the context is cancelled.
func (t *TS3Session) Run(ctx context.Context) error {
	c := t.queryClient()
	if c == nil {
		return ErrNotConnected
	}

	ticker := time.NewTicker(t.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-c.Notifications():
			if !ok {
				return errors.New("query connection closed")
			}
			if n.Event == "notifytextmessage" {
				t.handleTextMessage(ctx, c, n)
			}
		case <-ticker.C:
			if err := c.Version(ctx); err != nil {
				return fmt.Errorf("keepalive: %w", err)
			}
		}
	}
}

// handleTextMessage converts a notifytextmessage event into a RelayMessage.
func (t *TS3Session) handleTextMessage(ctx context.Context, c *ts3query.Client, n ts3query.Notification) {
	// Only channel messages; private and server messages are not bridged.
	if mode, ok := n.Data["targetmode"]; ok && mode != "2" {
		return
	}

	invokerID, _ := strconv.Atoi(n.Data["invokerid"])
	body := flattenLines(n.Data["msg"])
	if body == "" {
		return
	}

	t.mu.Lock()
	selfID := t.clientID
	t.mu.Unlock()

	msg := RelayMessage{
		Source:       PlatformTeamSpeak,
		AuthorID:     strconv.Itoa(invokerID),
		AuthorName:   t.resolveAuthorName(ctx, c, invokerID, n.Data["invokername"]),
		AuthorIsSelf: invokerID != 0 && invokerID == selfID,
		Body:         body,
		Timestamp:    time.Now(),
	}
	select {
	case t.events <- msg:
	case <-ctx.Done():
	}
}

// resolveAuthorName returns a display name for the sender. Some servers
// omit invokername from the event, so fall back to the cache and then to a
// clientinfo lookup before giving up with a synthetic name.
func (t *TS3Session) resolveAuthorName(ctx context.Context, c *ts3query.Client, invokerID int, eventName string) string {
	if name := strings.TrimSpace(eventName); name != "" {
		t.mu.Lock()
		t.nameCache[invokerID] = name
		t.mu.Unlock()
		return name
	}

	t.mu.Lock()
	cached := t.nameCache[invokerID]
	t.mu.Unlock()
	if cached != "" {
		return cached
	}

	if invokerID > 0 {
		if info, err := c.ClientInfo(ctx, invokerID); err == nil {
			if name := strings.TrimSpace(info["client_nickname"]); name != "" {
				t.mu.Lock()
				t.nameCache[invokerID] = name
				t.mu.Unlock()
				return name
			}
		} else {
			t.log.Warn().Err(err).Int("clid", invokerID).Msg("clientinfo lookup failed")
		}
	}
	return "Client_" + strconv.Itoa(invokerID)
}

// Send posts a message to the bridged channel. The query client escapes it.
func (t *TS3Session) Send(ctx context.Context, body string) error {
	c := t.queryClient()
	if c == nil {
		return ErrNotConnected
	}
	if err := c.SendChannelText(ctx, t.cfg.ChannelID, body); err != nil {
		return fmt.Errorf("send channel text: %w", err)
	}
	return nil
}

// Close logs out best-effort and drops the connection.
func (t *TS3Session) Close() {
	t.mu.Lock()
	c := t.client
	t.client = nil
	t.mu.Unlock()
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Logout(ctx); err != nil {
		t.log.Debug().Err(err).Msg("ServerQuery logout failed")
	}
	c.Close()
}

func (t *TS3Session) queryClient() *ts3query.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// flattenLines collapses a multi-line TS3 message into one line for relay.
func flattenLines(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
