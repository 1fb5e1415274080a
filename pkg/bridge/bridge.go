// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge relays conversation, presence and a few in-room commands
// between one IRC channel and one XMPP conference room.
//
// All state (session handles, roster, timers) is owned by a single
// dispatcher goroutine draining one event channel. Session reader
// goroutines and timers only post events, tagged with the generation of the
// connection they belong to; events from a superseded generation are
// dropped, so a stale timer can never act on a rebuilt connection.
package bridge

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	goirc "gopkg.in/irc.v4"
)

// control discriminates dispatcher events.
type control int

const (
	ctrlIRCDialed control = iota
	ctrlIRCInbound
	ctrlIRCDown
	ctrlIRCRetry
	ctrlIRCProbe
	ctrlIRCSilence
	ctrlXMPPConnected
	ctrlXMPPStanza
	ctrlXMPPDown
	ctrlXMPPRetry
	ctrlXMPPPing
)

// dispatch is one unit of work for the dispatcher goroutine. gen is the
// session generation the event was produced under.
type dispatch struct {
	ctrl   control
	gen    int
	msg    *goirc.Message
	stanza any
	conn   ircConn
	client xmppClient
	err    error
}

// Bridge wires the two sessions, the roster and the relay router together
// and runs the dispatcher loop.
type Bridge struct {
	cfg    *Config
	log    zerolog.Logger
	events chan dispatch

	roster *Roster
	irc    *IRCSession
	xmpp   *XMPPSession
	router *Router
}

// New builds a bridge from a validated configuration.
func New(cfg *Config, log zerolog.Logger) *Bridge {
	b := &Bridge{
		cfg:    cfg,
		log:    log,
		events: make(chan dispatch, 64),
		roster: NewRoster(),
	}
	b.irc = newIRCSession(cfg, log, b.post)
	b.xmpp = newXMPPSession(cfg, log, b.roster, b.post)
	commands := NewCommandProcessor(cfg, b.roster, b.irc, b.xmpp, log, os.Exit)
	b.router = NewRouter(cfg, b.roster, b.irc, b.xmpp, commands, log)
	b.irc.router = b.router
	b.xmpp.router = b.router
	return b
}

func (b *Bridge) post(ev dispatch) {
	b.events <- ev
}

// Run starts both sessions and services events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info().
		Str("channel", b.cfg.IRC.Channel).
		Str("room", b.cfg.XMPP.Room).
		Str("mode", b.cfg.Mode).
		Msg("Starting bridge")
	b.irc.connect()
	b.xmpp.connect()
	for {
		select {
		case <-ctx.Done():
			b.irc.close()
			b.xmpp.close()
			return ctx.Err()
		case ev := <-b.events:
			b.handle(ev)
		}
	}
}

// handle runs one event to completion. Handlers never block; sends are
// fire-and-forget against the owning session's connection.
func (b *Bridge) handle(ev dispatch) {
	switch ev.ctrl {
	case ctrlIRCDialed:
		b.irc.handleDialed(ev)
	case ctrlIRCInbound:
		b.irc.handleInbound(ev)
	case ctrlIRCDown:
		b.irc.handleDown(ev)
	case ctrlIRCRetry:
		b.irc.handleRetry(ev)
	case ctrlIRCProbe:
		b.irc.handleProbe(ev)
	case ctrlIRCSilence:
		b.irc.handleSilence(ev)
	case ctrlXMPPConnected:
		b.xmpp.handleConnected(ev)
	case ctrlXMPPStanza:
		b.xmpp.handleStanza(ev)
	case ctrlXMPPDown:
		b.xmpp.handleDown(ev)
	case ctrlXMPPRetry:
		b.xmpp.handleRetry(ev)
	case ctrlXMPPPing:
		b.xmpp.handlePing(ev)
	}
}
