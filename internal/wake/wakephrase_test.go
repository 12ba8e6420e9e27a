package wake

import (
	"errors"
	"testing"
)

func newWatson(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher("  Watson ")
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return m
}

func TestIsWake(t *testing.T) {
	m := newWatson(t)
	cases := []struct {
		text string
		want bool
	}{
		{"hey watson, summarize", true},
		{"WATSON what do you think", true},
		{"waterston plan", false},
		{"watsonville is nice", false},
		{"whatson the plan", true},
		{"so what's   on the agenda", true},
		{"", false},
		{"   ", false},
		{"nothing here", false},
	}
	for _, c := range cases {
		if got := m.IsWake(c.text); got != c.want {
			t.Fatalf("IsWake(%q): want %v got %v", c.text, c.want, got)
		}
	}
}

func TestWakePositionPrefersPrimary(t *testing.T) {
	m := newWatson(t)
	pos, ok := m.WakePosition("whatson, hey watson")
	if !ok || pos != 13 {
		t.Fatalf("WakePosition: want 13 got %d (ok=%v)", pos, ok)
	}
	pos, ok = m.WakePosition("¿wadson?")
	if !ok || pos != 1 {
		t.Fatalf("WakePosition on alternate: want 1 got %d (ok=%v)", pos, ok)
	}
	if _, ok := m.WakePosition("no wake"); ok {
		t.Fatalf("expected no position")
	}
}

func TestExtractCommand(t *testing.T) {
	m := newWatson(t)
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"watson please summarize the call", "summarize the call", true},
		{"Hey Watson, can you give us an opinion?", "give us an opinion?", true},
		{"watson um so what's next", "so what's next", true},
		{"watson sort the list", "sort the list", true},
		{"watson", "", false},
		{"watson, please.", "", false},
		{"no wake here", "", false},
	}
	for _, c := range cases {
		got, ok := m.ExtractCommand(c.text)
		if got != c.want || ok != c.ok {
			t.Fatalf("ExtractCommand(%q): want (%q,%v) got (%q,%v)", c.text, c.want, c.ok, got, ok)
		}
	}
}

func TestExtraAlternates(t *testing.T) {
	m, err := NewMatcher("copilot", "co pilot")
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	if !m.IsWake("ok co pilot summarize") {
		t.Fatalf("configured alternate should match")
	}
	if m.IsWake("whatson") {
		t.Fatalf("watson alternates must not apply to other phrases")
	}
	if _, err := NewMatcher("  "); !errors.Is(err, ErrEmptyPhrase) {
		t.Fatalf("expected ErrEmptyPhrase, got %v", err)
	}
}
