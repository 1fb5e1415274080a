// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command xmpp-irc-bridge relays conversation, presence and a small set of
// in-room commands between one IRC channel and one XMPP conference room,
// tagging relayed messages with the originating speaker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exzerolog"

	"github.com/aiku/xmpp-irc-bridge/pkg/bridge"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath   = flag.String("config", "config.yaml", "Path to the bridge configuration file")
	logLevel     = flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	printExample = flag.Bool("example-config", false, "Print the example configuration and exit")
	printVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *printVersion {
		fmt.Printf("xmpp-irc-bridge %s (%s, built %s)\n", Tag, Commit, BuildTime)
		return
	}
	if *printExample {
		fmt.Print(bridge.ExampleConfig)
		return
	}

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.NewConsoleWriter()).
		Level(level).
		With().Timestamp().
		Logger()
	exzerolog.SetupDefaults(&log)

	cfg, err := bridge.LoadConfig(*configPath)
	if err != nil {
		// Configuration errors are fatal at startup; nothing is retried.
		log.Fatal().Err(err).Str("path", *configPath).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bridge.New(cfg, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Bridge stopped")
	}
	log.Info().Msg("Bridge shut down")
}
