// Copyright 2024-2026 Aiku AI

package bridge

import (
	"reflect"
	"testing"
)

func TestRosterAddRemove(t *testing.T) {
	t.Parallel()
	r := NewRoster()
	r.Add("nem")
	if !r.Contains("nem") {
		t.Error("nem should be present after available presence")
	}
	r.Remove("nem")
	if r.Contains("nem") {
		t.Error("nem should be gone after unavailable presence")
	}
	// Removing an absent alias is a no-op.
	r.Remove("ghost")
	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
}

func TestRosterListSortedCaseInsensitive(t *testing.T) {
	t.Parallel()
	r := NewRoster()
	for _, alias := range []string{"zoe", "Alice", "bob", "Carol"} {
		r.Add(alias)
	}
	want := []string{"Alice", "bob", "Carol", "zoe"}
	if got := r.List(); !reflect.DeepEqual(got, want) {
		t.Errorf("List: got %v, want %v", got, want)
	}
}

func TestRosterClear(t *testing.T) {
	t.Parallel()
	r := NewRoster()
	r.Add("a")
	r.Add("b")
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len after Clear: got %d, want 0", r.Len())
	}
}
