// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ts3query implements a minimal TeamSpeak 3 ServerQuery client: a
// line-oriented TCP protocol where each command receives zero or more data
// lines followed by an "error id=... msg=..." status line, and server
// notifications (e.g. channel text messages) arrive asynchronously as
// "notify..." lines interleaved with command responses.
package ts3query

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	greetingTimeout = 10 * time.Second
	writeTimeout    = 10 * time.Second

	// notifyBuffer bounds pending notifications so a stalled consumer
	// cannot block the read loop forever; overflow is dropped with a log.
	notifyBuffer = 64
)

// ErrClosed is returned by Exec when the connection has been closed,
// either locally via Close or by the server.
var ErrClosed = errors.New("ts3query: connection closed")

// QueryError is a non-zero status reported by the server for a command.
type QueryError struct {
	ID  int
	Msg string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("server query error %d: %s", e.ID, e.Msg)
}

// Notification is an asynchronous event pushed by the server after
// servernotifyregister. Data values are unescaped.
type Notification struct {
	Event string
	Data  map[string]string
}

// Client is a single ServerQuery connection. Command exchanges are
// serialized internally; notifications are delivered on a separate channel
// and may be consumed concurrently with command execution.
type Client struct {
	conn net.Conn
	log  zerolog.Logger

	mu     sync.Mutex // serializes command/response exchanges
	lines  chan string
	notify chan Notification
	done   chan struct{}

	closeOnce sync.Once
	readErr   error // set before done is closed
}

// Dial connects to a ServerQuery endpoint and consumes the protocol
// greeting. The returned client is ready for Login.
func Dial(ctx context.Context, addr string, log zerolog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	br := bufio.NewReader(conn)
	if err := conn.SetReadDeadline(time.Now().Add(greetingTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	banner, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read greeting: %w", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(banner), "TS3") {
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting %q", strings.TrimSpace(banner))
	}
	// Welcome line follows the protocol identifier.
	if _, err := br.ReadString('\n'); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:   conn,
		log:    log.With().Str("component", "ts3query").Logger(),
		lines:  make(chan string),
		notify: make(chan Notification, notifyBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop(br)
	return c, nil
}

// readLoop demultiplexes the inbound stream: notification lines go to the
// notify channel, everything else is a command response line.
func (c *Client) readLoop(br *bufio.Reader) {
	defer func() {
		close(c.done)
		close(c.notify)
	}()
	for {
		raw, err := br.ReadString('\n')
		if err != nil {
			c.readErr = err
			return
		}
		// TS3 terminates lines with "\n\r", so the previous line's stray
		// carriage return arrives at the front of this one.
		line := strings.Trim(raw, "\r\n")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "notify") {
			event, rest, _ := strings.Cut(line, " ")
			n := Notification{Event: event, Data: flattenRows(parseRows(rest))}
			select {
			case c.notify <- n:
			default:
				c.log.Warn().Str("event", event).Msg("Notification buffer full, dropping event")
			}
			continue
		}
		select {
		case c.lines <- line:
		case <-c.done:
			return
		}
	}
}

// Notifications returns the channel of server events. It is closed when the
// connection drops or Close is called.
func (c *Client) Notifications() <-chan Notification {
	return c.notify
}

// Exec sends a command and waits for its status line. Data rows, if any,
// are returned with values unescaped. A non-zero status becomes a
// *QueryError.
func (c *Client) Exec(ctx context.Context, cmd *Cmd) ([]map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write([]byte(cmd.String() + "\n")); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	var rows []map[string]string
	for {
		select {
		case <-ctx.Done():
			// The response is now unrecoverable mid-stream; drop the
			// connection rather than desynchronize the exchange.
			c.close()
			return nil, ctx.Err()
		case <-c.done:
			return nil, fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		case line := <-c.lines:
			if strings.HasPrefix(line, "error ") {
				return rows, parseStatus(line)
			}
			rows = append(rows, parseRows(line)...)
		}
	}
}

// Close tears down the connection. Safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Client) close() {
	_ = c.Close()
}

// Login authenticates the ServerQuery session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	_, err := c.Exec(ctx, NewCmd("login").
		Arg("client_login_name", username).
		Arg("client_login_password", password))
	return err
}

// Logout releases the ServerQuery authentication without closing the socket.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Exec(ctx, NewCmd("logout"))
	return err
}

// Use selects the virtual server listening on the given voice port.
func (c *Client) Use(ctx context.Context, voicePort int) error {
	_, err := c.Exec(ctx, NewCmd("use").IntArg("port", voicePort))
	return err
}

// SetNickname updates the query client's visible nickname.
func (c *Client) SetNickname(ctx context.Context, nickname string) error {
	_, err := c.Exec(ctx, NewCmd("clientupdate").Arg("client_nickname", nickname))
	return err
}

// Whoami returns the server's view of this connection, including client_id.
func (c *Client) Whoami(ctx context.Context) (map[string]string, error) {
	rows, err := c.Exec(ctx, NewCmd("whoami"))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("whoami returned no data")
	}
	return rows[0], nil
}

// RegisterTextChannel subscribes to channel text message notifications.
func (c *Client) RegisterTextChannel(ctx context.Context) error {
	_, err := c.Exec(ctx, NewCmd("servernotifyregister").Arg("event", "textchannel"))
	return err
}

// SendChannelText posts a text message to the given channel.
func (c *Client) SendChannelText(ctx context.Context, channelID int, msg string) error {
	_, err := c.Exec(ctx, NewCmd("sendtextmessage").
		IntArg("targetmode", 2).
		IntArg("target", channelID).
		Arg("msg", msg))
	return err
}

// ClientList returns the currently connected clients.
func (c *Client) ClientList(ctx context.Context) ([]map[string]string, error) {
	return c.Exec(ctx, NewCmd("clientlist"))
}

// ClientInfo returns detailed information about one client.
func (c *Client) ClientInfo(ctx context.Context, clientID int) (map[string]string, error) {
	rows, err := c.Exec(ctx, NewCmd("clientinfo").IntArg("clid", clientID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("clientinfo returned no data")
	}
	return rows[0], nil
}

// KickClient removes a client from the server.
func (c *Client) KickClient(ctx context.Context, clientID int, reason string) error {
	_, err := c.Exec(ctx, NewCmd("clientkick").
		IntArg("clid", clientID).
		IntArg("reasonid", 5).
		Arg("reasonmsg", reason))
	return err
}

// Version asks for the server version. Used as a keepalive: hosts drop idle
// query connections, and a failed exchange reveals a dead socket.
func (c *Client) Version(ctx context.Context) error {
	_, err := c.Exec(ctx, NewCmd("version"))
	return err
}

// parseRows parses a response payload line: items separated by "|", each a
// space-separated list of key=value pairs (or bare flags) with escaped values.
func parseRows(line string) []map[string]string {
	if line == "" {
		return nil
	}
	items := strings.Split(line, "|")
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		row := make(map[string]string)
		for _, field := range strings.Fields(item) {
			key, value, found := strings.Cut(field, "=")
			if !found {
				row[key] = ""
				continue
			}
			row[key] = Unescape(value)
		}
		rows = append(rows, row)
	}
	return rows
}

// flattenRows merges parsed rows into one map. Notifications carry a single
// logical record even if the parser yields multiple fragments.
func flattenRows(rows []map[string]string) map[string]string {
	data := make(map[string]string)
	for _, row := range rows {
		for k, v := range row {
			data[k] = v
		}
	}
	return data
}

// parseStatus parses the trailing "error id=0 msg=ok" line. A zero id means
// success and yields a nil error.
func parseStatus(line string) error {
	var qe QueryError
	for _, field := range strings.Fields(strings.TrimPrefix(line, "error ")) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		switch key {
		case "id":
			qe.ID, _ = strconv.Atoi(value)
		case "msg":
			qe.Msg = Unescape(value)
		}
	}
	if qe.ID == 0 {
		return nil
	}
	return &qe
}
