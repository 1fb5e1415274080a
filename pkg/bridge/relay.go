// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/aiku/xmpp-irc-bridge/pkg/bridge/ircfmt"
	"github.com/aiku/xmpp-irc-bridge/pkg/bridge/xmppfmt"
)

// channelSender is the outbound surface of the IRC session used by the
// router and command processor. An interface so tests can inject a mock
// instead of a live connection.
type channelSender interface {
	// Privmsg sends one message line to the bridged channel.
	Privmsg(text string)
	// RequestNames issues a NAMES query for the bridged channel.
	RequestNames()
}

// roomSender is the outbound surface of the XMPP session.
type roomSender interface {
	// Groupchat sends one message to the bridged room.
	Groupchat(text string)
}

// Router converts a classified inbound event from either side into zero or
// more outbound messages on the other side. It is the only component that
// calls across sessions.
type Router struct {
	cfg      *Config
	roster   *Roster
	irc      channelSender
	xmpp     roomSender
	commands *CommandProcessor
	log      zerolog.Logger
}

// NewRouter builds the relay router.
func NewRouter(cfg *Config, roster *Roster, irc channelSender, xmpp roomSender, commands *CommandProcessor, log zerolog.Logger) *Router {
	return &Router{
		cfg:      cfg,
		roster:   roster,
		irc:      irc,
		xmpp:     xmpp,
		commands: commands,
		log:      log.With().Str("component", "router").Logger(),
	}
}

// HandleXMPP routes an event classified by the XMPP session.
func (r *Router) HandleXMPP(ev *RelayEvent) {
	switch ev.Kind {
	case EventGroupChat:
		r.relayGroupchat(ev)
	case EventPresenceAvailable:
		r.relayRoomStatus(ev.Speaker + " has joined the room")
	case EventPresenceUnavailable:
		r.relayRoomStatus(ev.Speaker + " has left the room")
	default:
		r.log.Debug().Stringer("kind", ev.Kind).Msg("No XMPP relay rule for event")
	}
}

// relayGroupchat is the room-to-channel transform path.
func (r *Router) relayGroupchat(ev *RelayEvent) {
	// Loop prevention: never relay our own room alias.
	if ev.Speaker == r.cfg.XMPP.RoomNick {
		return
	}
	// Room backlog replayed on join is marked with a delay stamp; relaying
	// it would duplicate the conversation.
	if ev.Delayed {
		r.log.Debug().Str("speaker", ev.Speaker).Msg("Dropping delayed room message")
		return
	}

	prefix := ircfmt.SpeakerPrefix(ev.Speaker)

	// Room-system notices: drop the known-uninteresting service phrases,
	// and everything when quiet_status is on.
	if ev.Speaker == "" {
		if r.cfg.Relay.QuietStatus || r.isFilteredStatus(ev.Body) {
			return
		}
	}

	if r.commands.Handle(OriginXMPP, ev.Speaker, ev.Body) {
		return
	}

	if action, ok := xmppfmt.Action(ev.Body); ok {
		r.irc.Privmsg(ircfmt.ActionLine(ev.Speaker, ircfmt.StripControl(action)))
		return
	}

	for _, line := range strings.Split(ev.Body, "\n") {
		line = ircfmt.StripControl(line)
		for _, out := range ircfmt.Wrap(prefix, line, r.cfg.Relay.LineLimit) {
			r.irc.Privmsg(out)
		}
	}
}

// isFilteredStatus reports whether a room-system notice matches the
// configured uninteresting phrases or is the room echoing its own name.
func (r *Router) isFilteredStatus(body string) bool {
	if body == r.cfg.RoomName() || body == r.cfg.XMPP.RoomNick {
		return true
	}
	for _, phrase := range r.cfg.Relay.StatusFilters {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}

// relayRoomStatus forwards a room presence notice to the channel unless
// quiet_status is configured.
func (r *Router) relayRoomStatus(text string) {
	if r.cfg.Relay.QuietStatus {
		return
	}
	r.irc.Privmsg("* " + text)
}

// HandleIRC routes an event classified by the IRC session.
func (r *Router) HandleIRC(ev *RelayEvent) {
	// Loop prevention: never relay the bridge's own nick.
	if ev.Speaker == r.cfg.IRC.Nick {
		return
	}

	switch ev.Kind {
	case EventChat:
		if r.commands.Handle(OriginIRC, ev.Speaker, ev.Body) {
			return
		}
		r.xmpp.Groupchat(toRoomText("["+ev.Speaker+"] ", ev.Body))
	case EventAction:
		r.xmpp.Groupchat(toRoomText("", xmppfmt.EmoteLine(ev.Speaker, ev.Body)))
	case EventJoin:
		r.relayChannelStatus(ev.Speaker + " has joined " + r.cfg.IRC.Channel)
	case EventPart:
		r.relayChannelStatus(withReason(ev.Speaker+" has left "+r.cfg.IRC.Channel, ev.Body))
	case EventQuit:
		r.relayChannelStatus(withReason(ev.Speaker+" has quit", ev.Body))
	case EventKick:
		r.relayChannelStatus(withReason(ev.Target+" was kicked from "+r.cfg.IRC.Channel+" by "+ev.Speaker, ev.Body))
	case EventNickChange:
		r.relayChannelStatus(ev.Speaker + " is now known as " + ev.Body)
	case EventNamesReply:
		r.xmpp.Groupchat("Members of " + r.cfg.IRC.Channel + ": " + ev.Body)
	default:
		r.log.Debug().Stringer("kind", ev.Kind).Msg("No IRC relay rule for event")
	}
}

// relayChannelStatus forwards a channel presence notice to the room unless
// quiet_status is configured.
func (r *Router) relayChannelStatus(text string) {
	if r.cfg.Relay.QuietStatus {
		return
	}
	r.xmpp.Groupchat("* " + text)
}

// toRoomText applies the channel-to-room text transforms: emphasis toggles
// become plain markers, and anything that is not valid UTF-8 is escaped so
// the stanza layer never carries raw binary.
func toRoomText(prefix, body string) string {
	return xmppfmt.EscapeNonUTF8(prefix + xmppfmt.TranslateEmphasis(body))
}

func withReason(text, reason string) string {
	if reason == "" {
		return text
	}
	return text + " (" + reason + ")"
}
