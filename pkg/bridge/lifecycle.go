// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Bridge is the process-wide lifecycle controller. It owns both
// supervisors, the router and the optional webhook sink.
type Bridge struct {
	cfg    *Config
	log    zerolog.Logger
	ts     *Supervisor
	disc   *Supervisor
	router *Router
}

// New wires a bridge from a validated config.
func New(cfg *Config, log zerolog.Logger) *Bridge {
	identity := NewIdentity(cfg.Webhook.Enabled)

	tsEvents := make(chan RelayMessage, eventBufferSize)
	discEvents := make(chan RelayMessage, eventBufferSize)

	tsSess := NewTS3Session(cfg.TeamSpeak, cfg.Reconnect.KeepaliveInterval.Std(), identity, tsEvents, log)
	discSess := NewDiscordSession(cfg.Discord, identity, discEvents, log)

	ts := NewSupervisor(PlatformTeamSpeak, tsSess, tsEvents, cfg.Reconnect, log)
	disc := NewSupervisor(PlatformDiscord, discSess, discEvents, cfg.Reconnect, log)

	var webhook webhookPoster
	if cfg.Webhook.Enabled {
		webhook = NewWebhookSink(cfg.Webhook.URL, log)
	}

	return &Bridge{
		cfg:    cfg,
		log:    log.With().Str("component", "bridge").Logger(),
		ts:     ts,
		disc:   disc,
		router: NewRouter(identity, ts, disc, webhook, log),
	}
}

// Run starts both supervisors and the router consume loops, then blocks
// until ctx is cancelled. Teardown is bounded: supervisors that do not
// stop within the shutdown timeout are abandoned rather than holding up
// process exit.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info().Msg("Starting bridge")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.ts.Run(gctx) })
	g.Go(func() error { return b.disc.Run(gctx) })
	g.Go(func() error {
		b.router.Consume(gctx, b.ts.Events())
		return nil
	})
	g.Go(func() error {
		b.router.Consume(gctx, b.disc.Events())
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	b.log.Info().Msg("Shutdown requested, stopping supervisors")
	timer := time.NewTimer(b.cfg.Reconnect.ShutdownTimeout.Std())
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		b.log.Info().Msg("Bridge stopped cleanly")
		return nil
	case <-timer.C:
		b.log.Warn().Msg("Supervisors did not stop within the shutdown timeout, exiting anyway")
		return nil
	}
}
