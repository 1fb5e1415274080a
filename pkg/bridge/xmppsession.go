// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	xmpp "github.com/xmppo/go-xmpp"
)

// xmppPingInterval is the fixed period of the room/server liveness ping.
const xmppPingInterval = 3 * time.Minute

// xmppClient is the slice of the go-xmpp client the session uses. An
// interface so tests can classify stanzas without a live connection.
type xmppClient interface {
	Recv() (any, error)
	Send(chat xmpp.Chat) (int, error)
	SendOrg(org string) (int, error)
	JoinMUCNoHistory(jid, nick string) (int, error)
	Roster() error
	PingC2S(jid, server string) error
	SendResultPing(id, toServer string) error
	Close() error
}

// XMPPSession owns the connection to the XMPP network: connect and
// authenticate, announce presence and join the room on ready, keep the
// session alive with a recurring ping, and rebuild the client after any
// terminal failure. Every failure mode of the underlying client (TLS,
// auth, bind, session, socket) surfaces as an error from dial or Recv, so
// a single failure path covers them all.
type XMPPSession struct {
	cfg    *Config
	log    zerolog.Logger
	post   func(dispatch)
	router *Router
	roster *Roster

	gen    int
	client xmppClient

	pingTimer  *time.Timer
	retryTimer *time.Timer
}

func newXMPPSession(cfg *Config, log zerolog.Logger, roster *Roster, post func(dispatch)) *XMPPSession {
	return &XMPPSession{
		cfg:    cfg,
		log:    log.With().Str("component", "xmpp").Logger(),
		post:   post,
		roster: roster,
	}
}

// connect requests a fresh connection under a new generation. Dial and
// authentication run off the dispatcher goroutine.
func (s *XMPPSession) connect() {
	s.gen++
	gen := s.gen
	s.log.Info().Int("generation", gen).Str("server", s.cfg.XMPP.Server).Msg("Connecting to XMPP")
	go func() {
		client, err := s.dial()
		s.post(dispatch{ctrl: ctrlXMPPConnected, gen: gen, client: client, err: err})
	}()
}

// dial builds the go-xmpp client. Session negotiation and the initial
// available presence are handled by the library during connect.
func (s *XMPPSession) dial() (xmppClient, error) {
	options := xmpp.Options{
		Host:          net.JoinHostPort(s.cfg.XMPP.Server, strconv.Itoa(s.cfg.XMPP.Port)),
		User:          s.cfg.XMPP.JID,
		Password:      s.cfg.XMPP.Password,
		Resource:      s.cfg.XMPP.Resource,
		NoTLS:         true,
		StartTLS:      !s.cfg.XMPP.NoTLS,
		Session:       true,
		Status:        "chat",
		StatusMessage: "Relaying " + s.cfg.IRC.Channel,
	}
	if s.cfg.XMPP.NoTLS {
		options.InsecureAllowUnencryptedAuth = true
	}
	client, err := options.NewClient()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// handleConnected finishes the ready sequence: request the contact roster
// and join the configured room under the configured alias, then start the
// reader and the ping timer.
func (s *XMPPSession) handleConnected(ev dispatch) {
	if ev.gen != s.gen {
		if ev.client != nil {
			_ = ev.client.Close()
		}
		return
	}
	if ev.err != nil {
		s.log.Error().Err(ev.err).Msg("XMPP connect failed")
		s.scheduleRetry()
		return
	}
	s.client = ev.client
	gen := s.gen

	if err := s.client.Roster(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to request XMPP roster")
	}
	if _, err := s.client.JoinMUCNoHistory(s.cfg.XMPP.Room, s.cfg.XMPP.RoomNick); err != nil {
		s.log.Error().Err(err).Msg("Failed to join room")
		s.failure()
		return
	}
	// Presence will be replayed by the room for everyone present.
	s.roster.Clear()

	client := s.client
	go func() {
		for {
			stanza, err := client.Recv()
			if err != nil {
				s.post(dispatch{ctrl: ctrlXMPPDown, gen: gen, err: err})
				return
			}
			s.post(dispatch{ctrl: ctrlXMPPStanza, gen: gen, stanza: stanza})
		}
	}()
	s.schedulePing()
	s.log.Info().Int("generation", gen).Str("room", s.cfg.XMPP.Room).Msg("XMPP connection established")
}

func (s *XMPPSession) handleDown(ev dispatch) {
	if ev.gen != s.gen {
		return
	}
	s.log.Warn().Err(ev.err).Msg("XMPP connection lost")
	s.failure()
}

func (s *XMPPSession) handleRetry(ev dispatch) {
	if ev.gen != s.gen {
		return
	}
	s.connect()
}

// handlePing sends the recurring liveness probe and reschedules itself.
func (s *XMPPSession) handlePing(ev dispatch) {
	if ev.gen != s.gen || s.client == nil {
		return
	}
	if err := s.client.PingC2S("", ""); err != nil {
		s.log.Warn().Err(err).Msg("XMPP ping failed")
		s.failure()
		return
	}
	s.schedulePing()
}

// handleStanza classifies one inbound stanza by its concrete type. Unknown
// stanzas are logged and dropped, never fatal.
func (s *XMPPSession) handleStanza(ev dispatch) {
	if ev.gen != s.gen {
		return
	}
	switch v := ev.stanza.(type) {
	case xmpp.Chat:
		s.classifyMessage(v)
	case xmpp.Presence:
		s.classifyPresence(v)
	case xmpp.IQ:
		s.classifyIQ(v)
	default:
		s.log.Trace().Type("stanza", v).Msg("Unhandled stanza type")
	}
}

func (s *XMPPSession) classifyMessage(msg xmpp.Chat) {
	switch msg.Type {
	case "error":
		s.log.Debug().Str("from", msg.Remote).Msg("Dropping error message")
	case "chat":
		// Direct messages are answered with an echo and never relayed.
		if msg.Text == "" {
			return
		}
		if _, err := s.client.Send(xmpp.Chat{Remote: msg.Remote, Type: "chat", Text: msg.Text}); err != nil {
			s.log.Warn().Err(err).Msg("Failed to send echo reply")
		}
	case "groupchat":
		bare, alias := splitJID(msg.Remote)
		if bare != s.cfg.XMPP.Room {
			s.log.Debug().Str("from", msg.Remote).Msg("Dropping groupchat from unknown room")
			return
		}
		s.router.HandleXMPP(&RelayEvent{
			Kind:    EventGroupChat,
			Origin:  OriginXMPP,
			Speaker: alias,
			Body:    msg.Text,
			Delayed: !msg.Stamp.IsZero(),
		})
	default:
		s.log.Debug().Str("type", msg.Type).Str("from", msg.Remote).Msg("Ignoring message type")
	}
}

func (s *XMPPSession) classifyPresence(p xmpp.Presence) {
	if p.Type == "subscribe" {
		s.log.Info().Str("from", p.From).Msg("Approving presence subscription")
		s.approveSubscription(p.From)
		return
	}

	bare, alias := splitJID(p.From)
	if bare != s.cfg.XMPP.Room {
		s.log.Debug().Str("from", p.From).Str("type", p.Type).Msg("Ignoring non-room presence")
		return
	}

	switch p.Type {
	case "error":
		if alias == s.cfg.XMPP.RoomNick {
			// An error presence under our own alias means the room kicked
			// the session: a signal to reconnect, not to drop a member.
			s.log.Warn().Str("from", p.From).Msg("Room rejected our presence, reconnecting")
			s.failure()
			return
		}
		s.log.Debug().Str("from", p.From).Msg("Ignoring error presence")
	case "", "available":
		if alias == "" || alias == s.cfg.XMPP.RoomNick {
			return
		}
		if s.roster.Contains(alias) {
			// Status update from someone already present.
			return
		}
		s.roster.Add(alias)
		s.router.HandleXMPP(&RelayEvent{Kind: EventPresenceAvailable, Origin: OriginXMPP, Speaker: alias})
	case "unavailable":
		if alias == "" || alias == s.cfg.XMPP.RoomNick || !s.roster.Contains(alias) {
			return
		}
		s.roster.Remove(alias)
		s.router.HandleXMPP(&RelayEvent{Kind: EventPresenceUnavailable, Origin: OriginXMPP, Speaker: alias})
	default:
		s.log.Debug().Str("from", p.From).Str("type", p.Type).Msg("Ignoring presence type")
	}
}

// classifyIQ answers liveness probes addressed to the bridge. Failing to
// answer a ping gets the bridge kicked from many deployments, so the
// result goes out immediately, before any other work from this stanza.
func (s *XMPPSession) classifyIQ(iq xmpp.IQ) {
	if iq.Type == "get" && isPingQuery(iq.Query) {
		if err := s.client.SendResultPing(iq.ID, iq.From); err != nil {
			s.log.Warn().Err(err).Msg("Failed to answer ping")
		}
		return
	}
	s.log.Debug().Str("from", iq.From).Str("type", iq.Type).Msg("Ignoring iq")
}

func isPingQuery(query []byte) bool {
	return bytes.Contains(query, []byte("urn:xmpp:ping"))
}

// Groupchat implements roomSender.
func (s *XMPPSession) Groupchat(text string) {
	if s.client == nil {
		s.log.Warn().Msg("Dropping outbound room message, not connected")
		return
	}
	if _, err := s.client.Send(xmpp.Chat{Remote: s.cfg.XMPP.Room, Type: "groupchat", Text: text}); err != nil {
		s.log.Warn().Err(err).Msg("Failed to send room message")
	}
}

func (s *XMPPSession) approveSubscription(jid string) {
	if _, err := s.client.SendOrg("<presence to='" + xmlEscape(jid) + "' type='subscribed'/>"); err != nil {
		s.log.Warn().Err(err).Msg("Failed to approve subscription")
	}
}

// failure tears the client down and schedules a rebuild after the
// configured delay. Bumping the generation first makes the old reader's
// pending events no-ops.
func (s *XMPPSession) failure() {
	s.gen++
	s.teardown()
	s.scheduleRetry()
}

func (s *XMPPSession) scheduleRetry() {
	gen := s.gen
	s.retryTimer = time.AfterFunc(time.Duration(s.cfg.XMPP.ReconnectDelay)*time.Second, func() {
		s.post(dispatch{ctrl: ctrlXMPPRetry, gen: gen})
	})
}

func (s *XMPPSession) schedulePing() {
	gen := s.gen
	s.pingTimer = time.AfterFunc(xmppPingInterval, func() {
		s.post(dispatch{ctrl: ctrlXMPPPing, gen: gen})
	})
}

func (s *XMPPSession) teardown() {
	for _, t := range []*time.Timer{s.pingTimer, s.retryTimer} {
		if t != nil {
			t.Stop()
		}
	}
	if s.client != nil {
		_ = s.client.Close()
	}
	s.client = nil
}

func (s *XMPPSession) close() {
	s.gen++
	s.teardown()
}

// splitJID splits "room@host/alias" into the bare JID and the resource.
func splitJID(jid string) (bare, resource string) {
	bare, resource, _ = strings.Cut(jid, "/")
	return bare, resource
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}
