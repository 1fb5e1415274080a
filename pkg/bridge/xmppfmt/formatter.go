// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package xmppfmt prepares IRC text for the XMPP side of the bridge:
// mIRC emphasis toggles become plain-text markers, and bodies that are not
// valid UTF-8 are escaped so the stanza layer never sees raw binary.
// All functions are pure.
package xmppfmt

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	ircBold      = "\x02"
	ircUnderline = "\x1f"
)

// TranslateEmphasis replaces the mIRC bold and underline toggle bytes with
// plain-text markers. Toggles come in pairs in practice, so a one-for-one
// replacement yields paired markers around the emphasized span.
func TranslateEmphasis(s string) string {
	s = strings.ReplaceAll(s, ircBold, "*")
	s = strings.ReplaceAll(s, ircUnderline, "_")
	return s
}

// EscapeNonUTF8 returns s unchanged when it is valid UTF-8. Otherwise every
// byte outside printable ASCII, plus the ampersand, is rewritten as a
// decimal character reference so the result survives XML transport.
// Escaping the ampersand as well makes DecodeEscapes an exact inverse.
func EscapeNonUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c < 0x7f && c != '&' {
			b.WriteByte(c)
			continue
		}
		b.WriteString("&#")
		b.WriteString(strconv.Itoa(int(c)))
		b.WriteByte(';')
	}
	return b.String()
}

// DecodeEscapes reverses EscapeNonUTF8, turning decimal character
// references for single bytes back into the original bytes.
func DecodeEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '&' && i+1 < len(s) && s[i+1] == '#' {
			if end := strings.IndexByte(s[i:], ';'); end > 2 {
				if n, err := strconv.Atoi(s[i+2 : i+end]); err == nil && n >= 0 && n < 256 {
					b.WriteByte(byte(n))
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// Action reports whether body is a conventional "/me" emote and returns the
// action text when it is.
func Action(body string) (string, bool) {
	if rest, ok := strings.CutPrefix(body, "/me "); ok {
		return rest, true
	}
	return "", false
}

// EmoteLine renders an IRC-originated action for the room, in the
// historical "*** nick action" form.
func EmoteLine(nick, action string) string {
	return "*** " + nick + " " + action
}
