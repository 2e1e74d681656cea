// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command ts3-discord-bridge mirrors channel text messages between a
// TeamSpeak 3 server and a Discord channel in real time. TeamSpeak BBCode
// is stripped before posting to Discord, and Discord CDN attachment URLs
// are shortened for cleaner TeamSpeak messages.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mau.fi/util/exzerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aiku/ts3-discord-bridge/pkg/bridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "ts3-discord-bridge",
		Short:        "Bidirectional TeamSpeak <-> Discord channel text bridge",
		SilenceUsage: true,
		RunE:         runBridge,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (optional, env vars also work)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ts3-discord-bridge %s (%s, built %s)\n", Tag, Commit, BuildTime)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "genconfig",
		Short: "Print an example config file to stdout",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(bridge.ExampleConfig)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := bridge.LoadConfig(configPath)
	if err != nil {
		// Configuration errors are fatal before any connection starts.
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	log, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return bridge.New(cfg, log).Run(ctx)
}

// setupLogging builds the root logger: console output always, plus a
// rotating file when configured.
func setupLogging(cfg bridge.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	var out io.Writer = console
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	log := zerolog.New(out).With().Timestamp().Logger().Level(level)
	exzerolog.SetupDefaults(&log)
	return log, nil
}
