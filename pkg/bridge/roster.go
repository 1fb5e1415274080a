// Copyright 2024-2026 Aiku AI

package bridge

import (
	"sort"
	"strings"
)

// Roster tracks which aliases are currently present in the XMPP room. It is
// mutated only by presence events on the dispatcher goroutine and read only
// by the who command, so it needs no locking.
//
// Entries are removed only by an explicit unavailable presence. A missed
// unavailable (e.g. a remote server dropping silently) leaves a stale entry
// until the room is re-joined on the next reconnect.
type Roster struct {
	members map[string]struct{}
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{members: make(map[string]struct{})}
}

// Add records alias as present.
func (r *Roster) Add(alias string) {
	r.members[alias] = struct{}{}
}

// Remove forgets alias.
func (r *Roster) Remove(alias string) {
	delete(r.members, alias)
}

// Contains reports whether alias is currently present.
func (r *Roster) Contains(alias string) bool {
	_, ok := r.members[alias]
	return ok
}

// Len returns the number of present aliases.
func (r *Roster) Len() int {
	return len(r.members)
}

// Clear empties the roster, used when the room is re-joined after a
// reconnect and presence will be replayed from scratch.
func (r *Roster) Clear() {
	clear(r.members)
}

// List returns the present aliases sorted case-insensitively.
func (r *Roster) List() []string {
	out := make([]string, 0, len(r.members))
	for alias := range r.members {
		out = append(out, alias)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
