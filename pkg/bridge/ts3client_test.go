// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeQueryServer speaks just enough ServerQuery to exercise TS3Session:
// greeting, ok responses for the auth sequence, and pushed notifications.
type fakeQueryServer struct {
	ln net.Listener

	mu       sync.Mutex
	conn     net.Conn
	commands []string
}

func newFakeQueryServer(t *testing.T) *fakeQueryServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := &fakeQueryServer{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		conn.Write([]byte("TS3\n\rWelcome to the TeamSpeak 3 ServerQuery interface\n\r"))
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			s.mu.Lock()
			s.commands = append(s.commands, line)
			s.mu.Unlock()

			switch {
			case strings.HasPrefix(line, "whoami"):
				conn.Write([]byte("client_id=42 client_channel_id=1\n\rerror id=0 msg=ok\n\r"))
			default:
				conn.Write([]byte("error id=0 msg=ok\n\r"))
			}
		}
	}()
	return s
}

func (s *fakeQueryServer) Addr() string {
	return s.ln.Addr().String()
}

// Push writes a raw notification line to the connected client.
func (s *fakeQueryServer) Push(t *testing.T, line string) {
	t.Helper()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connected")
	}
	if _, err := conn.Write([]byte(line + "\n\r")); err != nil {
		t.Fatal(err)
	}
}

func (s *fakeQueryServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(s.commands))
	copy(cp, s.commands)
	return cp
}

func (s *fakeQueryServer) hasCommand(prefix string) bool {
	for _, c := range s.Commands() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func startTS3Session(t *testing.T, srv *fakeQueryServer) (*TS3Session, chan RelayMessage, context.CancelFunc) {
	t.Helper()
	cfg := TeamSpeakConfig{
		Host:      "127.0.0.1",
		QueryPort: mustPort(t, srv.Addr()),
		VoicePort: 9987,
		Username:  "bridge",
		Password:  "hunter2",
		ChannelID: 5,
		Nickname:  "RelayBot",
	}
	events := make(chan RelayMessage, 8)
	identity := NewIdentity(false)
	sess := NewTS3Session(cfg, time.Hour, identity, events, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(sess.Close)

	if err := sess.Dial(ctx); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := sess.Auth(ctx); err != nil {
		t.Fatalf("Auth: %v", err)
	}
	if err := sess.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got := identity.BotID(PlatformTeamSpeak); got != "42" {
		t.Fatalf("registered bot ID = %q, want 42", got)
	}
	go sess.Run(ctx)
	return sess, events, cancel
}

func mustPort(t *testing.T, addr string) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return port
}

func TestTS3SessionAuthSequence(t *testing.T) {
	t.Parallel()
	srv := newFakeQueryServer(t)
	startTS3Session(t, srv)

	for _, want := range []string{
		"login client_login_name=bridge client_login_password=hunter2",
		"use port=9987",
		"clientupdate client_nickname=RelayBot",
		"whoami",
		"servernotifyregister event=textchannel",
	} {
		if !srv.hasCommand(want) {
			t.Errorf("server never received %q; got %q", want, srv.Commands())
		}
	}
}

func TestTS3SessionReceivesChannelMessage(t *testing.T) {
	t.Parallel()
	srv := newFakeQueryServer(t)
	_, events, _ := startTS3Session(t, srv)

	srv.Push(t, "notifytextmessage targetmode=2 msg=hello\\sthere invokerid=7 invokername=Alice")

	select {
	case msg := <-events:
		if msg.Source != PlatformTeamSpeak {
			t.Errorf("source = %v", msg.Source)
		}
		if msg.Body != "hello there" {
			t.Errorf("body = %q, want unescaped text", msg.Body)
		}
		if msg.AuthorID != "7" || msg.AuthorName != "Alice" {
			t.Errorf("author = %q/%q", msg.AuthorID, msg.AuthorName)
		}
		if msg.AuthorIsSelf {
			t.Error("other client's message flagged as self")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no relay message emitted")
	}
}

func TestTS3SessionMarksOwnMessages(t *testing.T) {
	t.Parallel()
	srv := newFakeQueryServer(t)
	_, events, _ := startTS3Session(t, srv)

	srv.Push(t, "notifytextmessage targetmode=2 msg=echo invokerid=42 invokername=RelayBot")

	select {
	case msg := <-events:
		if !msg.AuthorIsSelf {
			t.Error("own message (invokerid matches whoami) not flagged as self")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no relay message emitted")
	}
}

func TestTS3SessionIgnoresNonChannelMessages(t *testing.T) {
	t.Parallel()
	srv := newFakeQueryServer(t)
	_, events, _ := startTS3Session(t, srv)

	// Private message (targetmode=1) must not be bridged.
	srv.Push(t, "notifytextmessage targetmode=1 msg=psst invokerid=7 invokername=Alice")
	// Channel message afterwards proves the session is still alive.
	srv.Push(t, "notifytextmessage targetmode=2 msg=public invokerid=7 invokername=Alice")

	select {
	case msg := <-events:
		if msg.Body != "public" {
			t.Errorf("body = %q; the private message leaked through", msg.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no relay message emitted")
	}
}

func TestTS3SessionSendEscapes(t *testing.T) {
	t.Parallel()
	srv := newFakeQueryServer(t)
	sess, _, _ := startTS3Session(t, srv)

	if err := sess.Send(context.Background(), "hi there"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		return srv.hasCommand("sendtextmessage targetmode=2 target=5 msg=hi\\sthere")
	})
}

func TestFlattenLines(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"one\ntwo", "one two"},
		{"one\r\ntwo", "one  two"},
		{"  padded  ", "padded"},
		{"plain", "plain"},
		{"\n\n", ""},
	}
	for _, tc := range cases {
		if got := flattenLines(tc.in); got != tc.want {
			t.Errorf("flattenLines(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
