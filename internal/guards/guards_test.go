package guards

import (
	"testing"
	"time"
)

func TestRecentlyRemovedTTL(t *testing.T) {
	g := New()
	clock := time.Now()
	g.SetClock(func() time.Time { return clock })

	g.MarkRemoved("a1")
	if !g.WasRecentlyRemoved("a1") {
		t.Fatal("expected a1 to be recently removed")
	}

	clock = clock.Add(4*time.Minute + 59*time.Second)
	if !g.WasRecentlyRemoved("a1") {
		t.Fatal("expected a1 still recently removed just under 5 minutes")
	}

	clock = clock.Add(2 * time.Second)
	if g.WasRecentlyRemoved("a1") {
		t.Fatal("expected a1 to expire past 5 minutes")
	}
}

func TestClearRecentlyRemovedAllowsImmediateReregister(t *testing.T) {
	g := New()
	g.MarkRemoved("sub-1")
	g.ClearRecentlyRemoved("sub-1")
	if g.WasRecentlyRemoved("sub-1") {
		t.Fatal("expected clear to allow immediate re-registration")
	}
}

func TestSessionStoppedClearedOnNewTurn(t *testing.T) {
	g := New()
	g.MarkSessionStopped("sess-1")
	if !g.IsSessionStopped("sess-1") {
		t.Fatal("expected session stopped")
	}
	g.ClearSessionStopped("sess-1")
	if g.IsSessionStopped("sess-1") {
		t.Fatal("expected session stopped flag cleared")
	}
}

func TestIsHookActiveWindow(t *testing.T) {
	g := New()
	clock := time.Now()
	g.SetClock(func() time.Time { return clock })

	g.MarkHookActive("agent-1")
	if !g.IsHookActive("agent-1", 5*time.Second) {
		t.Fatal("expected hook active immediately after mark")
	}

	clock = clock.Add(5*time.Second + time.Millisecond)
	if g.IsHookActive("agent-1", 5*time.Second) {
		t.Fatal("expected hook active to expire past window")
	}
}

func TestIsHookActiveDefaultWindow(t *testing.T) {
	g := New()
	g.MarkHookActive("agent-2")
	if !g.IsHookActive("agent-2", 0) {
		t.Fatal("expected zero delta to use default window")
	}
}

func TestSessionToAgentMapping(t *testing.T) {
	g := New()
	if got := g.ResolveAgentID("raw-sid"); got != "raw-sid" {
		t.Fatalf("expected passthrough for unmapped session, got %q", got)
	}

	g.RegisterSessionToAgentMapping("raw-sid", "team-agent-1")
	if got := g.ResolveAgentID("raw-sid"); got != "team-agent-1" {
		t.Fatalf("expected mapped agent id, got %q", got)
	}

	g.RemoveSessionMappings("raw-sid")
	if got := g.ResolveAgentID("raw-sid"); got != "raw-sid" {
		t.Fatalf("expected mapping removed, got %q", got)
	}
}

func TestReset(t *testing.T) {
	g := New()
	g.MarkRemoved("a")
	g.MarkSessionStopped("s")
	g.MarkHookActive("h")
	g.RegisterSessionToAgentMapping("raw", "agent")

	g.Reset()

	if g.WasRecentlyRemoved("a") || g.IsSessionStopped("s") || g.IsHookActive("h", 0) {
		t.Fatal("expected all guard state cleared by Reset")
	}
	if got := g.ResolveAgentID("raw"); got != "raw" {
		t.Fatal("expected session mapping cleared by Reset")
	}
}
