// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package ircfmt prepares text for the IRC side of the bridge: control
// character stripping, speaker prefixing and word wrapping to the
// configured line limit. All functions are pure.
package ircfmt

import (
	"strings"
	"unicode/utf8"
)

// SpeakerPrefix returns the prefix prepended to relayed room messages:
// "[speaker] " for a named speaker, "* " for a room-system notice.
func SpeakerPrefix(speaker string) string {
	if speaker == "" {
		return "* "
	}
	return "[" + speaker + "] "
}

// ActionLine renders an emote as a single status-style line.
func ActionLine(speaker, action string) string {
	return "* " + speaker + " " + action
}

// StripControl removes ASCII control characters (including CR/LF and DEL)
// from a single line. IRC messages cannot carry them, and an embedded CR/LF
// would let a room message inject arbitrary IRC commands.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

// Wrap splits line into chunks so that prefix+chunk never exceeds limit,
// returning the complete output lines with the prefix repeated on each
// continuation. Chunks are cut at the last space that fits, falling back to
// a hard cut on a rune boundary for unbroken runs. No characters are
// dropped: concatenating the chunks reconstructs the input exactly.
func Wrap(prefix, line string, limit int) []string {
	width := limit - len(prefix)
	if width < 1 {
		width = 1
	}
	if len(line) <= width {
		return []string{prefix + line}
	}

	var out []string
	rest := line
	for len(rest) > width {
		cut := cutPoint(rest, width)
		out = append(out, prefix+rest[:cut])
		rest = rest[cut:]
	}
	out = append(out, prefix+rest)
	return out
}

// cutPoint returns the byte offset to split rest at, preferring the
// position just after the last space within width bytes.
func cutPoint(rest string, width int) int {
	if idx := strings.LastIndexByte(rest[:width], ' '); idx >= 0 {
		return idx + 1
	}
	// Hard cut; back up to a rune boundary so we never split a multi-byte
	// character in two.
	cut := width
	for cut > 0 && !utf8.RuneStart(rest[cut]) {
		cut--
	}
	if cut == 0 {
		cut = width
	}
	return cut
}
