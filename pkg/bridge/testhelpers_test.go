// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"io"

	"github.com/rs/zerolog"
	xmpp "github.com/xmppo/go-xmpp"
)

// mockChannelSender captures outbound IRC traffic for test assertions.
type mockChannelSender struct {
	messages      []string
	namesRequests int
}

func (m *mockChannelSender) Privmsg(text string) {
	m.messages = append(m.messages, text)
}

func (m *mockChannelSender) RequestNames() {
	m.namesRequests++
}

// mockRoomSender captures outbound XMPP room traffic.
type mockRoomSender struct {
	messages []string
}

func (m *mockRoomSender) Groupchat(text string) {
	m.messages = append(m.messages, text)
}

// fakeXMPPClient records go-xmpp calls in order without a connection.
type fakeXMPPClient struct {
	calls  []string
	chats  []xmpp.Chat
	closed bool
}

func (f *fakeXMPPClient) Recv() (any, error) {
	return nil, io.EOF
}

func (f *fakeXMPPClient) Send(chat xmpp.Chat) (int, error) {
	f.calls = append(f.calls, "send:"+chat.Type+":"+chat.Remote)
	f.chats = append(f.chats, chat)
	return 0, nil
}

func (f *fakeXMPPClient) SendOrg(org string) (int, error) {
	f.calls = append(f.calls, "org:"+org)
	return 0, nil
}

func (f *fakeXMPPClient) JoinMUCNoHistory(jid, nick string) (int, error) {
	f.calls = append(f.calls, "join:"+jid+"/"+nick)
	return 0, nil
}

func (f *fakeXMPPClient) Roster() error {
	f.calls = append(f.calls, "roster")
	return nil
}

func (f *fakeXMPPClient) PingC2S(jid, server string) error {
	f.calls = append(f.calls, "ping")
	return nil
}

func (f *fakeXMPPClient) SendResultPing(id, toServer string) error {
	f.calls = append(f.calls, "resultping:"+id+":"+toServer)
	return nil
}

func (f *fakeXMPPClient) Close() error {
	f.closed = true
	return nil
}

// newTestConfig returns a minimal valid, post-processed configuration.
func newTestConfig() *Config {
	cfg := &Config{
		IRC: IRCConfig{
			Server:  "irc.example.net",
			Nick:    "bridgebot",
			Channel: "#chan",
		},
		XMPP: XMPPConfig{
			JID:      "bridge@example.org",
			Password: "secret",
			Server:   "example.org",
			Room:     "room@conference.example.org",
			RoomNick: "bridgebot",
		},
	}
	cfg.PostProcess()
	return cfg
}

// newTestRouter builds a router (and command processor) over mock senders.
// exit defaults to a no-op when nil.
func newTestRouter(cfg *Config, roster *Roster, exit func(int)) (*Router, *mockChannelSender, *mockRoomSender) {
	if roster == nil {
		roster = NewRoster()
	}
	if exit == nil {
		exit = func(int) {}
	}
	irc := &mockChannelSender{}
	room := &mockRoomSender{}
	log := zerolog.Nop()
	commands := NewCommandProcessor(cfg, roster, irc, room, log, exit)
	return NewRouter(cfg, roster, irc, room, commands, log), irc, room
}
