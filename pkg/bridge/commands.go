// Copyright 2024-2026 Aiku AI

package bridge

import (
	"strings"

	"github.com/rs/zerolog"
)

// CommandProcessor recognizes the configured command prefix in relayed text
// and dispatches the in-room commands. Handle reports whether it consumed
// the message; unconsumed text is relayed verbatim by the caller.
type CommandProcessor struct {
	prefix string
	admin  string
	roster *Roster
	irc    channelSender
	xmpp   roomSender
	log    zerolog.Logger

	// exit terminates the process. Injected so tests can observe the
	// shutdown command instead of dying.
	exit func(code int)
}

// NewCommandProcessor wires a command processor against both senders.
func NewCommandProcessor(cfg *Config, roster *Roster, irc channelSender, xmpp roomSender, log zerolog.Logger, exit func(int)) *CommandProcessor {
	return &CommandProcessor{
		prefix: cfg.Relay.CommandPrefix,
		admin:  cfg.Relay.Admin,
		roster: roster,
		irc:    irc,
		xmpp:   xmpp,
		log:    log.With().Str("component", "commands").Logger(),
		exit:   exit,
	}
}

// Handle dispatches body if it is a recognized command. The command word is
// matched case-insensitively on the first whitespace-delimited token.
func (p *CommandProcessor) Handle(origin Origin, speaker, body string) bool {
	rest, ok := strings.CutPrefix(body, p.prefix)
	if !ok || rest == "" {
		return false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return false
	}
	word, param := fields[0], strings.Join(fields[1:], " ")

	switch strings.ToLower(word) {
	case "help":
		p.handleHelp(origin)
	case "who":
		p.handleWho(origin)
	case "shutdown":
		p.handleShutdown(origin, speaker)
	default:
		return false
	}
	p.log.Debug().
		Stringer("origin", origin).
		Str("speaker", speaker).
		Str("command", strings.ToLower(word)).
		Str("param", param).
		Msg("Handled command")
	return true
}

// handleHelp replies with a two-line usage summary on the origin side only;
// help text is never relayed across.
func (p *CommandProcessor) handleHelp(origin Origin) {
	p.replyTo(origin, "Commands: "+p.prefix+"help, "+p.prefix+"who, "+p.prefix+"shutdown")
	p.replyTo(origin, p.prefix+"who lists who is present on the other side, "+p.prefix+"shutdown stops the bridge")
}

// handleWho answers with the membership of the opposite side. From the room
// it issues an asynchronous NAMES request on IRC; the reply is relayed when
// it arrives. From IRC it answers directly from the cached room roster.
func (p *CommandProcessor) handleWho(origin Origin) {
	if origin == OriginXMPP {
		p.irc.RequestNames()
		return
	}
	if p.roster.Len() == 0 {
		p.irc.Privmsg("Nobody is in the room")
		return
	}
	p.irc.Privmsg("Room members: " + strings.Join(p.roster.List(), " "))
}

// handleShutdown terminates the process immediately, with no cross-side
// notification. When an admin is configured, only that speaker may use it.
func (p *CommandProcessor) handleShutdown(origin Origin, speaker string) {
	if p.admin != "" && speaker != p.admin {
		p.log.Warn().
			Stringer("origin", origin).
			Str("speaker", speaker).
			Msg("Ignoring shutdown from non-admin")
		p.replyTo(origin, "shutdown is restricted to "+p.admin)
		return
	}
	p.log.Info().
		Stringer("origin", origin).
		Str("speaker", speaker).
		Msg("Shutdown requested")
	p.exit(0)
}

func (p *CommandProcessor) replyTo(origin Origin, line string) {
	if origin == OriginIRC {
		p.irc.Privmsg(line)
	} else {
		p.xmpp.Groupchat(line)
	}
}
