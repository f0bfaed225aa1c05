package registry

import (
	"testing"

	"github.com/agentwatch/observer/internal/guards"
)

func TestMembershipSolo(t *testing.T) {
	r := New(guards.New())
	r.AddSession(&Session{SessionID: "sess-1", ProjectName: "proj"})
	r.UpdateAgent(&Agent{ID: "sess-1", SessionID: "sess-1"})
	r.UpdateAgent(&Agent{ID: "sub-1", IsSubagent: true, ParentAgentID: "sess-1", SessionID: "sess-1"})
	r.UpdateAgent(&Agent{ID: "other", SessionID: "sess-2"})

	members := r.MembersOf("sess-1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d: %+v", len(members), members)
	}
	ids := map[string]bool{}
	for _, a := range members {
		ids[a.ID] = true
	}
	if !ids["sess-1"] || !ids["sub-1"] {
		t.Fatalf("expected sess-1 and sub-1 as members, got %+v", ids)
	}
}

func TestMembershipTeamExcludesSoloSessionIDs(t *testing.T) {
	r := New(guards.New())
	r.AddSession(&Session{SessionID: "sess-1", ProjectName: "proj"})
	r.AddSession(&Session{SessionID: "team:alpha", TeamName: "alpha", IsTeam: true})

	r.UpdateAgent(&Agent{ID: "sess-1", SessionID: "sess-1"})
	r.UpdateAgent(&Agent{ID: "teammate-1", TeamName: "alpha"})
	r.UpdateAgent(&Agent{ID: "teammate-2", TeamName: "alpha"})

	members := r.MembersOf("team:alpha")
	if len(members) != 2 {
		t.Fatalf("expected 2 team members (sess-1 excluded as a known solo session id), got %d: %+v", len(members), members)
	}
	for _, a := range members {
		if a.ID == "sess-1" {
			t.Fatal("solo session's own agent id must never appear as a team member")
		}
	}
}

func TestIsMemberOfMatchesMembersOf(t *testing.T) {
	r := New(guards.New())
	r.AddSession(&Session{SessionID: "sess-1", ProjectName: "proj"})
	r.UpdateAgent(&Agent{ID: "sess-1", SessionID: "sess-1"})
	r.UpdateAgent(&Agent{ID: "elsewhere", SessionID: "sess-2"})

	a, _ := r.GetAgent("sess-1")
	if !r.IsMemberOf(a, "sess-1") {
		t.Fatal("expected sess-1 agent to be a member of its own session")
	}
	other, _ := r.GetAgent("elsewhere")
	if r.IsMemberOf(other, "sess-1") {
		t.Fatal("expected unrelated agent to not be a member")
	}
}
