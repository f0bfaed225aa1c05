package wsfanout

import (
	"testing"
	"time"

	"github.com/agentwatch/observer/internal/guards"
	"github.com/agentwatch/observer/internal/registry"
)

// newTestClient builds a wsClient with no live connection; handleDelta and
// enqueue only touch c.send, which tests read from directly.
func newTestClient(reg *registry.Registry) *wsClient {
	return &wsClient{reg: reg, send: make(chan wireMessage, sendBuffer)}
}

func drain(t *testing.T, c *wsClient) *wireMessage {
	t.Helper()
	select {
	case m := <-c.send:
		return &m
	case <-time.After(10 * time.Millisecond):
		return nil
	}
}

func TestHandleDeltaForwardsAgentUpdateOnlyForMember(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	reg.AddSession(&registry.Session{SessionID: "s1"})
	reg.AddSession(&registry.Session{SessionID: "s2"})

	c := newTestClient(reg)
	c.setSelectedSession("s1")

	c.handleDelta(registry.Delta{
		Type:      registry.DeltaAgentUpdate,
		SessionID: "s2",
		Agent:     &registry.Agent{ID: "s2", SessionID: "s2"},
	})
	if m := drain(t, c); m != nil {
		t.Fatalf("expected no forward for non-member agent, got %+v", m)
	}

	c.handleDelta(registry.Delta{
		Type:      registry.DeltaAgentUpdate,
		SessionID: "s1",
		Agent:     &registry.Agent{ID: "s1", SessionID: "s1"},
	})
	m := drain(t, c)
	if m == nil || m.Type != "agent_update" {
		t.Fatalf("expected agent_update forwarded, got %+v", m)
	}
}

func TestHandleDeltaTaskUpdateOnlyForTeamSession(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	reg.AddSession(&registry.Session{SessionID: "s1"})
	reg.AddSession(&registry.Session{SessionID: "team:alpha", IsTeam: true, TeamName: "alpha"})

	soloClient := newTestClient(reg)
	soloClient.setSelectedSession("s1")
	soloClient.handleDelta(registry.Delta{
		Type:      registry.DeltaTaskUpdate,
		SessionID: "team:alpha",
		Task:      &registry.Task{ID: "t1", TeamName: "alpha"},
	})
	if m := drain(t, soloClient); m != nil {
		t.Fatalf("expected solo-session client to drop task_update, got %+v", m)
	}

	teamClient := newTestClient(reg)
	teamClient.setSelectedSession("team:alpha")
	teamClient.handleDelta(registry.Delta{
		Type:      registry.DeltaTaskUpdate,
		SessionID: "team:alpha",
		Task:      &registry.Task{ID: "t1", TeamName: "alpha"},
	})
	if m := drain(t, teamClient); m == nil || m.Type != "task_update" {
		t.Fatalf("expected team client to receive task_update, got %+v", m)
	}
}

func TestHandleDeltaNewMessageBroadcastsToAllClients(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	c := newTestClient(reg)
	// no selection at all — messages still forward, per spec §4.7.
	c.handleDelta(registry.Delta{Type: registry.DeltaNewMessage, Message: &registry.Message{ID: "m1"}})
	if m := drain(t, c); m == nil || m.Type != "new_message" {
		t.Fatalf("expected new_message forwarded regardless of selection, got %+v", m)
	}
}

func TestHandleDeltaSessionsListForwardsDirectly(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	c := newTestClient(reg)
	c.handleDelta(registry.Delta{Type: registry.DeltaSessionsList, Sessions: []registry.SessionSummary{{SessionID: "s1"}}})
	m := drain(t, c)
	if m == nil || m.Type != "sessions_list" {
		t.Fatalf("expected sessions_list forwarded, got %+v", m)
	}
}

func TestHandleDeltaSessionStartedIsNoOp(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	c := newTestClient(reg)
	c.handleDelta(registry.Delta{Type: registry.DeltaSessionStarted, SessionID: "s1"})
	if m := drain(t, c); m != nil {
		t.Fatalf("expected session_started to be a no-op (sessions_list follows separately), got %+v", m)
	}
}

func TestDefaultSessionPrefersWaitingAgent(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	base := time.Unix(1_700_000_000, 0)
	reg.AddSession(&registry.Session{SessionID: "fresh", LastActivity: base.Add(10 * time.Second)})
	reg.AddSession(&registry.Session{SessionID: "waiting", LastActivity: base})
	reg.UpdateAgent(&registry.Agent{ID: "waiting", SessionID: "waiting", WaitingForInput: true})

	summaries := reg.BuildSessionsList()
	got := defaultSession(reg, summaries)
	if got != "waiting" {
		t.Fatalf("expected freshest-with-waiting-agent session selected, got %q", got)
	}
}

func TestDefaultSessionFallsBackToFreshest(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	base := time.Unix(1_700_000_000, 0)
	reg.AddSession(&registry.Session{SessionID: "older", LastActivity: base})
	reg.AddSession(&registry.Session{SessionID: "newer", LastActivity: base.Add(10 * time.Second)})

	summaries := reg.BuildSessionsList()
	got := defaultSession(reg, summaries)
	if got != "newer" {
		t.Fatalf("expected freshest session as fallback, got %q", got)
	}
}

func TestHandleSelectSessionRejectsUnknownSession(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	reg.AddSession(&registry.Session{SessionID: "s1"})
	c := newTestClient(reg)
	c.setSelectedSession("s1")

	c.handleSelectSession("does-not-exist")
	if m := drain(t, c); m != nil {
		t.Fatalf("expected no full_state for unknown session, got %+v", m)
	}
	if c.selectedSession() != "s1" {
		t.Fatalf("expected selection unchanged, got %q", c.selectedSession())
	}
}

func TestHandleSelectSessionSwitchesAndResendsFullState(t *testing.T) {
	g := guards.New()
	reg := registry.New(g)
	reg.AddSession(&registry.Session{SessionID: "s1"})
	reg.AddSession(&registry.Session{SessionID: "s2"})
	c := newTestClient(reg)
	c.setSelectedSession("s1")

	c.handleSelectSession("s2")
	m := drain(t, c)
	if m == nil || m.Type != "full_state" {
		t.Fatalf("expected full_state on select_session, got %+v", m)
	}
	if c.selectedSession() != "s2" {
		t.Fatalf("expected selection switched to s2, got %q", c.selectedSession())
	}
}
