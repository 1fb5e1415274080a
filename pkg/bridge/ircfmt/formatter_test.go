// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package ircfmt

import (
	"strings"
	"testing"
)

func TestSpeakerPrefix(t *testing.T) {
	t.Parallel()
	if got := SpeakerPrefix("nem"); got != "[nem] " {
		t.Errorf("SpeakerPrefix(nem): got %q, want %q", got, "[nem] ")
	}
	if got := SpeakerPrefix(""); got != "* " {
		t.Errorf("SpeakerPrefix(empty): got %q, want %q", got, "* ")
	}
}

func TestActionLine(t *testing.T) {
	t.Parallel()
	if got := ActionLine("nem", "waves"); got != "* nem waves" {
		t.Errorf("ActionLine: got %q, want %q", got, "* nem waves")
	}
}

func TestStripControl(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"crlf injection", "hi\r\nQUIT", "hiQUIT"},
		{"bold and color", "\x02bold\x02 \x03" + "04red", "bold 04red"},
		{"del", "a\x7fb", "ab"},
		{"unicode kept", "héllo ☺", "héllo ☺"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StripControl(tt.in); got != tt.want {
				t.Errorf("StripControl(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWrapShortLine(t *testing.T) {
	t.Parallel()
	got := Wrap("[nem] ", "hello", 400)
	if len(got) != 1 || got[0] != "[nem] hello" {
		t.Errorf("Wrap short: got %v", got)
	}
}

func TestWrapRepeatsPrefix(t *testing.T) {
	t.Parallel()
	got := Wrap("[nem] ", "aaa bbb ccc ddd", 13)
	if len(got) < 2 {
		t.Fatalf("expected multiple lines, got %v", got)
	}
	for i, line := range got {
		if !strings.HasPrefix(line, "[nem] ") {
			t.Errorf("line %d missing prefix: %q", i, line)
		}
		if len(line) > 13 {
			t.Errorf("line %d exceeds limit: %q (%d)", i, line, len(line))
		}
	}
}

func TestWrapPrefersSpaces(t *testing.T) {
	t.Parallel()
	got := Wrap("> ", "one two three", 9)
	for i, line := range got {
		if len(line) > 9 {
			t.Errorf("line %d exceeds limit despite available spaces: %q", i, line)
		}
		if strings.Contains(strings.TrimSuffix(line, " "), "  ") {
			t.Errorf("line %d mangled spacing: %q", i, line)
		}
	}
	if re := reassemble(got, "> "); re != "one two three" {
		t.Errorf("Wrap: reassembled to %q", re)
	}
}

func TestWrapReassembly(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"the quick brown fox jumps over the lazy dog",
		"nospacesatallinthisverylongtokenthatneedshardcuts",
		"mixed short and averyveryverylongtokenwithoutbreaks then more words",
		"héllo wörld ünïcode characters överall the place",
		"",
	}
	for _, in := range inputs {
		for _, limit := range []int{10, 16, 25, 80} {
			got := Wrap("[x] ", in, limit)
			if re := reassemble(got, "[x] "); re != in {
				t.Errorf("Wrap(%q, limit %d) not reassemblable: got %q", in, limit, re)
			}
		}
	}
}

func FuzzWrapReassembly(f *testing.F) {
	f.Add("hello world", 20)
	f.Add("a b c d e f", 3)
	f.Add("nospaces", 4)
	f.Add("héllo ☺ wörld", 7)
	f.Fuzz(func(t *testing.T, line string, limit int) {
		if limit < 5 || limit > 512 || strings.ContainsAny(line, "\r\n") {
			t.Skip()
		}
		prefix := "[s] "
		got := Wrap(prefix, line, limit)
		if re := reassemble(got, prefix); re != line {
			t.Errorf("Wrap(%q, %d) reassembled to %q", line, limit, re)
		}
		for _, out := range got {
			if !strings.HasPrefix(out, prefix) {
				t.Errorf("missing prefix on %q", out)
			}
		}
	})
}

func reassemble(lines []string, prefix string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(strings.TrimPrefix(line, prefix))
	}
	return b.String()
}
