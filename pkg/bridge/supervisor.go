// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Supervisor.Send while the connection is
// not in the Active state. Callers drop the message; reconnection happens
// at the connection level, never per message.
var ErrNotConnected = errors.New("not connected")

// ConnState is the supervisor's position in its connection lifecycle.
// Transitions are monotonic within one cycle and reset on failure.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticating
	StateSubscribing
	StateActive
	StateBackingOff
	StateShuttingDown
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateBackingOff:
		return "backing_off"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Session is one platform connection driven by a Supervisor. Each method
// maps to a lifecycle stage; all of them must honor context cancellation.
// Run blocks while the connection is healthy, receiving platform events,
// and returns when the connection fails or the context is cancelled. Close
// releases the underlying resource and must leave the session reusable for
// a fresh Dial.
type Session interface {
	Dial(ctx context.Context) error
	Auth(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Run(ctx context.Context) error
	Send(ctx context.Context, body string) error
	Close()
}

// eventBufferSize absorbs short bursts so a slow send on one platform does
// not immediately stall the other platform's receive loop.
const eventBufferSize = 64

// Supervisor owns one platform connection and drives its
// connect → authenticate → subscribe → run cycle, re-entering the cycle
// with jittered exponential backoff on any failure.
type Supervisor struct {
	platform Platform
	sess     Session
	events   chan RelayMessage
	state    atomic.Int32
	bo       *backoff
	log      zerolog.Logger
}

// NewSupervisor wires a supervisor around a session. The events channel is
// the one the session emits inbound messages to; the supervisor exposes it
// to the router.
func NewSupervisor(platform Platform, sess Session, events chan RelayMessage, rc ReconnectConfig, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		platform: platform,
		sess:     sess,
		events:   events,
		bo:       newBackoff(rc.BaseDelay.Std(), rc.MaxDelay.Std()),
		log:      log.With().Str("component", "supervisor").Str("platform", string(platform)).Logger(),
	}
}

// Platform returns which platform this supervisor connects to.
func (s *Supervisor) Platform() Platform {
	return s.platform
}

// Events returns the stream of inbound messages produced while Active.
func (s *Supervisor) Events() <-chan RelayMessage {
	return s.events
}

// State returns the current connection state.
func (s *Supervisor) State() ConnState {
	return ConnState(s.state.Load())
}

func (s *Supervisor) setState(st ConnState) {
	old := ConnState(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug().Stringer("from", old).Stringer("to", st).Msg("State transition")
	}
}

// Send forwards a message to the platform if the connection is Active.
// It never blocks waiting for a reconnect.
func (s *Supervisor) Send(ctx context.Context, body string) error {
	if s.State() != StateActive {
		return ErrNotConnected
	}
	return s.sess.Send(ctx, body)
}

// Run drives the reconnect loop until ctx is cancelled. It always returns
// nil on shutdown; connection errors are contained here as state
// transitions and log events.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateShuttingDown)
	for {
		err := s.runCycle(ctx)
		if ctx.Err() != nil {
			s.log.Info().Msg("Supervisor stopped")
			return nil
		}

		delay := s.bo.Next()
		s.setState(StateBackingOff)
		s.log.Warn().
			Err(err).
			Int("attempt", s.bo.Attempt()).
			Dur("retry_in", delay).
			Msg("Connection lost, reconnecting after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info().Msg("Supervisor stopped during backoff")
			return nil
		case <-timer.C:
		}
	}
}

// runCycle performs one full connection attempt. The session is closed on
// every exit path so each cycle starts from a fresh Dial.
func (s *Supervisor) runCycle(ctx context.Context) error {
	defer s.sess.Close()
	defer s.setState(StateDisconnected)

	s.setState(StateConnecting)
	if err := s.sess.Dial(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	s.setState(StateAuthenticating)
	if err := s.sess.Auth(ctx); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	s.setState(StateSubscribing)
	if err := s.sess.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.setState(StateActive)
	s.bo.Reset()
	s.log.Info().Msg("Connection active")

	return s.sess.Run(ctx)
}
