// Copyright 2024-2026 Aiku AI

package bridge

// Origin identifies which network side produced an event.
type Origin int

const (
	// OriginIRC marks events produced by the IRC session.
	OriginIRC Origin = iota
	// OriginXMPP marks events produced by the XMPP session.
	OriginXMPP
)

func (o Origin) String() string {
	if o == OriginIRC {
		return "irc"
	}
	return "xmpp"
}

// EventKind is the tag of the RelayEvent union.
type EventKind int

const (
	// EventChat is a public message in the IRC channel.
	EventChat EventKind = iota
	// EventAction is an emote ("/me" on XMPP, CTCP ACTION on IRC).
	EventAction
	// EventGroupChat is a message in the XMPP room.
	EventGroupChat
	// EventJoin, EventPart, EventQuit, EventKick and EventNickChange are
	// IRC channel membership changes.
	EventJoin
	EventPart
	EventQuit
	EventKick
	EventNickChange
	// EventPresenceAvailable and EventPresenceUnavailable are XMPP room
	// presence changes, already applied to the roster by the session.
	EventPresenceAvailable
	EventPresenceUnavailable
	// EventNamesReply carries a complete IRC NAMES listing for the channel.
	EventNamesReply
)

func (k EventKind) String() string {
	switch k {
	case EventChat:
		return "chat"
	case EventAction:
		return "action"
	case EventGroupChat:
		return "groupchat"
	case EventJoin:
		return "join"
	case EventPart:
		return "part"
	case EventQuit:
		return "quit"
	case EventKick:
		return "kick"
	case EventNickChange:
		return "nick"
	case EventPresenceAvailable:
		return "available"
	case EventPresenceUnavailable:
		return "unavailable"
	case EventNamesReply:
		return "names"
	default:
		return "unknown"
	}
}

// RelayEvent is a normalized inbound event handed from a session to the
// relay router. It is transient; nothing is persisted.
type RelayEvent struct {
	Kind   EventKind
	Origin Origin

	// Speaker is the IRC nick or XMPP room alias that produced the event.
	// Empty for room-system notices.
	Speaker string
	// Body is the message text. For EventPart/EventQuit/EventKick it holds
	// the reason, for EventNickChange the new nick, for EventNamesReply the
	// space-separated member list.
	Body string
	// Target is the victim of a kick.
	Target string
	// Delayed marks a groupchat message that carried a delay/history
	// marker, i.e. room backlog replayed on join.
	Delayed bool
}
