// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	xmpp "github.com/xmppo/go-xmpp"
)

// newTestXMPPSession wires a session over a fake client and mock senders.
func newTestXMPPSession(cfg *Config) (*XMPPSession, *fakeXMPPClient, *mockChannelSender, *Roster) {
	roster := NewRoster()
	router, irc, _ := newTestRouter(cfg, roster, nil)
	s := newXMPPSession(cfg, zerolog.Nop(), roster, func(dispatch) {})
	s.router = router
	s.gen = 1
	fake := &fakeXMPPClient{}
	s.client = fake
	return s, fake, irc, roster
}

func stanza(s *XMPPSession, v any) {
	s.handleStanza(dispatch{ctrl: ctrlXMPPStanza, gen: s.gen, stanza: v})
}

func TestGroupchatRelayedFromStanza(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, _, irc, _ := newTestXMPPSession(cfg)
	stanza(s, xmpp.Chat{Remote: cfg.XMPP.Room + "/nem", Type: "groupchat", Text: "hello"})
	if len(irc.messages) != 1 || irc.messages[0] != "[nem] hello" {
		t.Errorf("groupchat relay: got %v", irc.messages)
	}
}

func TestGroupchatWithDelayStampDropped(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, _, irc, _ := newTestXMPPSession(cfg)
	stanza(s, xmpp.Chat{
		Remote: cfg.XMPP.Room + "/nem",
		Type:   "groupchat",
		Text:   "backlog",
		Stamp:  time.Now().Add(-time.Hour),
	})
	if len(irc.messages) != 0 {
		t.Errorf("delayed groupchat relayed: %v", irc.messages)
	}
}

func TestGroupchatFromForeignRoomDropped(t *testing.T) {
	t.Parallel()
	s, _, irc, _ := newTestXMPPSession(newTestConfig())
	stanza(s, xmpp.Chat{Remote: "other@conference.example.org/nem", Type: "groupchat", Text: "hello"})
	if len(irc.messages) != 0 {
		t.Errorf("foreign room message relayed: %v", irc.messages)
	}
}

func TestErrorMessageDropped(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, fake, irc, _ := newTestXMPPSession(cfg)
	stanza(s, xmpp.Chat{Remote: cfg.XMPP.Room + "/nem", Type: "error", Text: "boom"})
	if len(irc.messages) != 0 || len(fake.calls) != 0 {
		t.Errorf("error message acted on: irc=%v calls=%v", irc.messages, fake.calls)
	}
}

func TestDirectChatEchoedNotRelayed(t *testing.T) {
	t.Parallel()
	s, fake, irc, _ := newTestXMPPSession(newTestConfig())
	stanza(s, xmpp.Chat{Remote: "someone@example.org/home", Type: "chat", Text: "are you a bot?"})
	if len(irc.messages) != 0 {
		t.Errorf("direct chat relayed to channel: %v", irc.messages)
	}
	if len(fake.chats) != 1 || fake.chats[0].Text != "are you a bot?" || fake.chats[0].Type != "chat" {
		t.Errorf("expected echo reply, got %v", fake.chats)
	}
}

func TestPresenceUpdatesRoster(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, _, irc, roster := newTestXMPPSession(cfg)

	stanza(s, xmpp.Presence{From: cfg.XMPP.Room + "/nem", Type: "available"})
	if !roster.Contains("nem") {
		t.Error("nem should be in the roster after available presence")
	}
	if len(irc.messages) != 1 || irc.messages[0] != "* nem has joined the room" {
		t.Errorf("join notice: got %v", irc.messages)
	}

	// A repeated available presence (status change) is not re-announced.
	stanza(s, xmpp.Presence{From: cfg.XMPP.Room + "/nem"})
	if len(irc.messages) != 1 {
		t.Errorf("status update re-announced: %v", irc.messages)
	}

	stanza(s, xmpp.Presence{From: cfg.XMPP.Room + "/nem", Type: "unavailable"})
	if roster.Contains("nem") {
		t.Error("nem should be gone after unavailable presence")
	}
}

func TestPresenceAbsentTypeMeansAvailable(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, _, _, roster := newTestXMPPSession(cfg)
	stanza(s, xmpp.Presence{From: cfg.XMPP.Room + "/nem"})
	if !roster.Contains("nem") {
		t.Error("absent presence type should count as available")
	}
}

func TestOwnPresenceExcludedFromRoster(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, _, _, roster := newTestXMPPSession(cfg)
	stanza(s, xmpp.Presence{From: cfg.XMPP.Room + "/" + cfg.XMPP.RoomNick, Type: "available"})
	if roster.Len() != 0 {
		t.Errorf("own alias tracked in roster: %v", roster.List())
	}
}

func TestSubscribeAutoApproved(t *testing.T) {
	t.Parallel()
	s, fake, _, _ := newTestXMPPSession(newTestConfig())
	stanza(s, xmpp.Presence{From: "friend@example.org", Type: "subscribe"})
	if len(fake.calls) != 1 || !strings.Contains(fake.calls[0], "type='subscribed'") {
		t.Errorf("expected subscribed presence, got %v", fake.calls)
	}
	if !strings.Contains(fake.calls[0], "friend@example.org") {
		t.Errorf("approval not addressed to requester: %v", fake.calls)
	}
}

func TestOwnErrorPresenceTriggersReconnect(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, fake, _, _ := newTestXMPPSession(cfg)
	genBefore := s.gen
	stanza(s, xmpp.Presence{From: cfg.XMPP.Room + "/" + cfg.XMPP.RoomNick, Type: "error"})
	if s.gen == genBefore {
		t.Error("error presence under own alias should supersede the connection")
	}
	if !fake.closed {
		t.Error("old client should be closed")
	}
	if s.retryTimer == nil {
		t.Error("reconnect should be scheduled")
	}
	s.retryTimer.Stop()
}

func TestForeignErrorPresenceIgnored(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, fake, _, roster := newTestXMPPSession(cfg)
	roster.Add("nem")
	genBefore := s.gen
	stanza(s, xmpp.Presence{From: cfg.XMPP.Room + "/nem", Type: "error"})
	if s.gen != genBefore || fake.closed {
		t.Error("error presence for another alias must not reconnect")
	}
	if !roster.Contains("nem") {
		t.Error("error presence must not remove a member")
	}
}

func TestIQPingAnsweredFirst(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, fake, _, _ := newTestXMPPSession(cfg)
	stanza(s, xmpp.IQ{
		ID:    "ping-1",
		From:  "example.org",
		To:    cfg.XMPP.JID + "/bridge",
		Type:  "get",
		Query: []byte(`<ping xmlns='urn:xmpp:ping'/>`),
	})
	if len(fake.calls) == 0 || fake.calls[0] != "resultping:ping-1:example.org" {
		t.Errorf("ping must be answered before anything else, calls: %v", fake.calls)
	}
}

func TestUnknownIQDropped(t *testing.T) {
	t.Parallel()
	s, fake, _, _ := newTestXMPPSession(newTestConfig())
	stanza(s, xmpp.IQ{ID: "v1", From: "x@example.org", Type: "get", Query: []byte(`<query xmlns='jabber:iq:version'/>`)})
	if len(fake.calls) != 0 {
		t.Errorf("unknown iq should be dropped, got %v", fake.calls)
	}
}

func TestStaleGenerationDropped(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	s, _, irc, _ := newTestXMPPSession(cfg)
	s.handleStanza(dispatch{
		ctrl:   ctrlXMPPStanza,
		gen:    s.gen - 1,
		stanza: xmpp.Chat{Remote: cfg.XMPP.Room + "/nem", Type: "groupchat", Text: "stale"},
	})
	if len(irc.messages) != 0 {
		t.Errorf("stale-generation stanza acted on: %v", irc.messages)
	}
}
