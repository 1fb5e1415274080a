// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goirc "gopkg.in/irc.v4"
)

// ircConn is the network handle owned by the IRC session. It is replaced
// wholesale on reconnect, never patched in place.
type ircConn = net.Conn

const (
	// ircRetryInterval is the fixed short interval used for both IRC
	// timers after a forced reconnect, until real traffic resumes.
	ircRetryInterval = 30 * time.Second
	ircDialTimeout   = 30 * time.Second
)

// IRCSession owns the connection to the IRC network: registration, channel
// join, liveness probing and silence-based reconnects. IRC gives no
// reliable disconnect signal, so liveness is modeled with two timers: a
// probe timer that periodically asks the server for its time purely to
// provoke traffic, and a silence timer reset by every inbound message of
// any kind. When the silence timer fires the connection is presumed dead.
type IRCSession struct {
	cfg    *Config
	log    zerolog.Logger
	post   func(dispatch)
	router *Router
	// dial creates the raw connection. Injected so tests never touch the
	// network.
	dial func(addr string) (net.Conn, error)

	// gen is bumped every time a new connection handle is created; events
	// and timer firings carrying an older generation are ignored.
	gen    int
	conn   ircConn
	client *goirc.Client

	currentNick string
	joined      bool
	// degraded switches both timers to the short retry interval after a
	// forced reconnect, until real traffic arrives again.
	degraded bool

	// names accumulates 353 reply entries until the 366 end marker.
	names []string
	// channelNames is the last complete NAMES snapshot.
	channelNames []string
	// whoPending marks that the next complete NAMES reply answers a who
	// command from the room.
	whoPending bool
	// privileged tracks channel op/voice grants by nick. Pure bookkeeping;
	// nothing in the relay path depends on it.
	privileged map[string]string

	probeTimer   *time.Timer
	silenceTimer *time.Timer
	retryTimer   *time.Timer
}

func newIRCSession(cfg *Config, log zerolog.Logger, post func(dispatch)) *IRCSession {
	return &IRCSession{
		cfg:  cfg,
		log:  log.With().Str("component", "irc").Logger(),
		post: post,
		dial: func(addr string) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, ircDialTimeout)
		},
		currentNick: cfg.IRC.Nick,
		privileged:  make(map[string]string),
	}
}

// connect discards any previous handle identity and dials a fresh
// connection. Dialing happens off the dispatcher goroutine; the result
// comes back as a ctrlIRCDialed event.
func (s *IRCSession) connect() {
	s.gen++
	gen := s.gen
	s.joined = false
	addr := net.JoinHostPort(s.cfg.IRC.Server, strconv.Itoa(s.cfg.IRC.Port))
	s.log.Info().Int("generation", gen).Str("addr", addr).Msg("Connecting to IRC")
	go func() {
		conn, err := s.dial(addr)
		s.post(dispatch{ctrl: ctrlIRCDialed, gen: gen, conn: conn, err: err})
	}()
}

func (s *IRCSession) handleDialed(ev dispatch) {
	if ev.gen != s.gen {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	if ev.err != nil {
		s.log.Error().Err(ev.err).Msg("IRC dial failed")
		s.scheduleRetry()
		return
	}
	s.conn = ev.conn
	gen := s.gen
	s.client = goirc.NewClient(s.conn, goirc.ClientConfig{
		Nick: s.cfg.IRC.Nick,
		Pass: s.cfg.IRC.ServerPassword,
		User: s.cfg.IRC.Username,
		Name: s.cfg.IRC.Realname,
		Handler: goirc.HandlerFunc(func(_ *goirc.Client, m *goirc.Message) {
			s.post(dispatch{ctrl: ctrlIRCInbound, gen: gen, msg: m})
		}),
	})
	client := s.client
	go func() {
		err := client.Run()
		s.post(dispatch{ctrl: ctrlIRCDown, gen: gen, err: err})
	}()
	s.startTimers()
	s.log.Info().Int("generation", gen).Msg("IRC connection established")
}

func (s *IRCSession) handleDown(ev dispatch) {
	if ev.gen != s.gen {
		return
	}
	s.log.Warn().Err(ev.err).Msg("IRC connection lost")
	s.degraded = true
	s.teardown()
	s.connect()
}

func (s *IRCSession) handleRetry(ev dispatch) {
	if ev.gen != s.gen {
		return
	}
	s.connect()
}

// handleProbe sends the liveness probe (a server TIME query) and
// reschedules itself.
func (s *IRCSession) handleProbe(ev dispatch) {
	if ev.gen != s.gen || s.client == nil {
		return
	}
	s.client.WriteMessage(&goirc.Message{Command: "TIME"})
	gen := s.gen
	s.probeTimer = time.AfterFunc(s.probeInterval(), func() {
		s.post(dispatch{ctrl: ctrlIRCProbe, gen: gen})
	})
}

// handleSilence fires when nothing at all has arrived for the whole
// silence window: the connection is presumed dead even though the socket
// never reported anything.
func (s *IRCSession) handleSilence(ev dispatch) {
	if ev.gen != s.gen {
		return
	}
	s.log.Warn().
		Int("generation", s.gen).
		Dur("window", s.silenceInterval()).
		Msg("No IRC traffic for the whole silence window, rebuilding connection")
	s.degraded = true
	s.teardown()
	s.connect()
}

// handleInbound classifies one inbound IRC message. Every message of any
// kind refreshes the silence timer.
func (s *IRCSession) handleInbound(ev dispatch) {
	if ev.gen != s.gen {
		return
	}
	s.degraded = false
	s.resetSilence()
	s.classify(ev.msg)
}

func (s *IRCSession) classify(m *goirc.Message) {
	sender := ""
	if m.Prefix != nil {
		sender = m.Prefix.Name
	}

	switch m.Command {
	case "001":
		if len(m.Params) > 0 {
			s.currentNick = m.Params[0]
		}
		s.identify()
		s.join()
	case "433":
		// Nick in use; retry with a trailing underscore.
		s.log.Warn().Str("nick", s.currentNick).Msg("IRC nick in use")
		s.currentNick += "_"
		s.write(&goirc.Message{Command: "NICK", Params: []string{s.currentNick}})
	case "PRIVMSG":
		s.classifyPrivmsg(m, sender)
	case "JOIN":
		if sender == s.currentNick {
			s.joined = true
			s.log.Info().Str("channel", s.cfg.IRC.Channel).Msg("Joined IRC channel")
			return
		}
		s.router.HandleIRC(&RelayEvent{Kind: EventJoin, Origin: OriginIRC, Speaker: sender})
	case "PART":
		if sender == s.currentNick {
			return
		}
		delete(s.privileged, sender)
		s.router.HandleIRC(&RelayEvent{Kind: EventPart, Origin: OriginIRC, Speaker: sender, Body: m.Trailing()})
	case "QUIT":
		if sender == s.currentNick {
			return
		}
		delete(s.privileged, sender)
		s.router.HandleIRC(&RelayEvent{Kind: EventQuit, Origin: OriginIRC, Speaker: sender, Body: m.Trailing()})
	case "KICK":
		s.classifyKick(m, sender)
	case "NICK":
		s.classifyNick(m, sender)
	case "353":
		// NAMES replies arrive in chunks; the member list is the trailing
		// parameter.
		s.names = append(s.names, strings.Fields(m.Trailing())...)
	case "366":
		s.finishNames()
	case "MODE":
		s.trackMode(m, sender)
	case "TOPIC":
		s.log.Info().Str("nick", sender).Str("topic", m.Trailing()).Msg("IRC topic changed")
	case "INVITE":
		s.log.Info().Str("nick", sender).Msg("Ignoring IRC invite")
	case "391":
		// TIME reply; its only purpose was refreshing the silence timer.
		s.log.Debug().Str("time", m.Trailing()).Msg("IRC time probe answered")
	default:
		s.log.Trace().Str("command", m.Command).Msg("Unhandled IRC command")
	}
}

func (s *IRCSession) classifyPrivmsg(m *goirc.Message, sender string) {
	if len(m.Params) < 2 || sender == "" {
		return
	}
	target := m.Params[0]
	text := m.Trailing()

	// The router also drops the configured nick, but only the session
	// knows the current nick after a forced rename.
	if sender == s.currentNick {
		return
	}
	if !strings.EqualFold(target, s.cfg.IRC.Channel) {
		// Direct messages to the bridge are not relayed.
		s.log.Debug().Str("nick", sender).Msg("Ignoring IRC private message")
		return
	}

	if action, ok := cutCTCPAction(text); ok {
		s.router.HandleIRC(&RelayEvent{Kind: EventAction, Origin: OriginIRC, Speaker: sender, Body: action})
		return
	}
	s.router.HandleIRC(&RelayEvent{Kind: EventChat, Origin: OriginIRC, Speaker: sender, Body: text})
}

func (s *IRCSession) classifyKick(m *goirc.Message, sender string) {
	if len(m.Params) < 2 {
		return
	}
	victim := m.Params[1]
	if victim == s.currentNick {
		// Kicked ourselves: rejoin rather than relay.
		s.log.Warn().Str("by", sender).Msg("Bridge was kicked from the IRC channel, rejoining")
		s.joined = false
		s.join()
		return
	}
	delete(s.privileged, victim)
	s.router.HandleIRC(&RelayEvent{
		Kind:    EventKick,
		Origin:  OriginIRC,
		Speaker: sender,
		Target:  victim,
		Body:    m.Trailing(),
	})
}

func (s *IRCSession) classifyNick(m *goirc.Message, sender string) {
	if len(m.Params) < 1 {
		return
	}
	newNick := m.Params[0]
	if sender == s.currentNick {
		s.currentNick = newNick
		return
	}
	if flags, ok := s.privileged[sender]; ok {
		delete(s.privileged, sender)
		s.privileged[newNick] = flags
	}
	s.router.HandleIRC(&RelayEvent{Kind: EventNickChange, Origin: OriginIRC, Speaker: sender, Body: newNick})
}

// trackMode keeps op/voice bookkeeping for channel members. Relay
// correctness does not depend on it.
func (s *IRCSession) trackMode(m *goirc.Message, sender string) {
	if len(m.Params) < 3 || !strings.EqualFold(m.Params[0], s.cfg.IRC.Channel) {
		return
	}
	modes, nicks := m.Params[1], m.Params[2:]
	grant := true
	i := 0
	for _, r := range modes {
		switch r {
		case '+':
			grant = true
		case '-':
			grant = false
		case 'o', 'v':
			if i >= len(nicks) {
				return
			}
			nick := nicks[i]
			i++
			if grant {
				s.privileged[nick] = s.privileged[nick] + string(r)
			} else {
				s.privileged[nick] = strings.ReplaceAll(s.privileged[nick], string(r), "")
				if s.privileged[nick] == "" {
					delete(s.privileged, nick)
				}
			}
		default:
			// Modes with a parameter we don't track still consume one.
			if i < len(nicks) {
				i++
			}
		}
	}
	s.log.Debug().Str("by", sender).Str("modes", modes).Msg("IRC mode change")
}

// finishNames completes a NAMES accumulation: the snapshot is replaced
// wholesale, and if a who command is waiting the listing is relayed.
func (s *IRCSession) finishNames() {
	s.channelNames = s.names
	s.names = nil
	if !s.whoPending {
		return
	}
	s.whoPending = false
	s.router.HandleIRC(&RelayEvent{
		Kind:   EventNamesReply,
		Origin: OriginIRC,
		Body:   strings.Join(s.channelNames, " "),
	})
}

// write sends one raw message when a connection exists.
func (s *IRCSession) write(m *goirc.Message) {
	if s.client == nil {
		return
	}
	s.client.WriteMessage(m)
}

// identify authenticates with NickServ when a credential is configured.
func (s *IRCSession) identify() {
	if s.cfg.IRC.NickservPassword == "" {
		return
	}
	s.write(&goirc.Message{
		Command: "PRIVMSG",
		Params:  []string{"NickServ", "IDENTIFY " + s.cfg.IRC.NickservPassword},
	})
}

func (s *IRCSession) join() {
	s.write(&goirc.Message{Command: "JOIN", Params: []string{s.cfg.IRC.Channel}})
}

// Privmsg implements channelSender.
func (s *IRCSession) Privmsg(text string) {
	if s.client == nil {
		s.log.Warn().Msg("Dropping outbound IRC message, not connected")
		return
	}
	s.client.WriteMessage(&goirc.Message{Command: "PRIVMSG", Params: []string{s.cfg.IRC.Channel, text}})
}

// RequestNames implements channelSender. The reply is relayed
// asynchronously once the 366 end marker arrives.
func (s *IRCSession) RequestNames() {
	if s.client == nil {
		s.log.Warn().Msg("Dropping NAMES request, not connected")
		return
	}
	s.whoPending = true
	s.client.WriteMessage(&goirc.Message{Command: "NAMES", Params: []string{s.cfg.IRC.Channel}})
}

func (s *IRCSession) startTimers() {
	gen := s.gen
	s.probeTimer = time.AfterFunc(s.probeInterval(), func() {
		s.post(dispatch{ctrl: ctrlIRCProbe, gen: gen})
	})
	s.silenceTimer = time.AfterFunc(s.silenceInterval(), func() {
		s.post(dispatch{ctrl: ctrlIRCSilence, gen: gen})
	})
}

func (s *IRCSession) resetSilence() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	gen := s.gen
	s.silenceTimer = time.AfterFunc(s.silenceInterval(), func() {
		s.post(dispatch{ctrl: ctrlIRCSilence, gen: gen})
	})
}

func (s *IRCSession) probeInterval() time.Duration {
	d := time.Duration(s.cfg.IRC.TimeDelay) * time.Second
	if s.degraded && d > ircRetryInterval {
		return ircRetryInterval
	}
	return d
}

func (s *IRCSession) silenceInterval() time.Duration {
	if s.degraded {
		return ircRetryInterval
	}
	return time.Duration(s.cfg.IRC.ReconnectTimer) * time.Second
}

func (s *IRCSession) scheduleRetry() {
	gen := s.gen
	s.retryTimer = time.AfterFunc(ircRetryInterval, func() {
		s.post(dispatch{ctrl: ctrlIRCRetry, gen: gen})
	})
}

// teardown stops the timers and discards the connection handle. The old
// reader goroutine will post a down event carrying the old generation,
// which the dispatcher discards.
func (s *IRCSession) teardown() {
	for _, t := range []*time.Timer{s.probeTimer, s.silenceTimer, s.retryTimer} {
		if t != nil {
			t.Stop()
		}
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.client = nil
	s.joined = false
	s.names = nil
	s.whoPending = false
	clear(s.privileged)
}

func (s *IRCSession) close() {
	s.gen++
	s.teardown()
}

// cutCTCPAction unwraps a CTCP ACTION ("\x01ACTION waves\x01") and returns
// the action text.
func cutCTCPAction(text string) (string, bool) {
	const prefix = "\x01ACTION "
	if !strings.HasPrefix(text, prefix) {
		return "", false
	}
	return strings.TrimSuffix(text[len(prefix):], "\x01"), true
}
