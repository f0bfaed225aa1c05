package sweeper

import (
	"sync"
	"testing"
	"time"

	"github.com/agentwatch/observer/internal/guards"
	"github.com/agentwatch/observer/internal/registry"
	"github.com/agentwatch/observer/internal/watcher"
)

type fakeFiles struct {
	mu      sync.Mutex
	entries map[string]watcher.TrackedSnapshot
}

func newFakeFiles(entries ...watcher.TrackedSnapshot) *fakeFiles {
	f := &fakeFiles{entries: make(map[string]watcher.TrackedSnapshot)}
	for _, e := range entries {
		f.entries[e.Path] = e
	}
	return f
}

func (f *fakeFiles) Snapshot() []watcher.TrackedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]watcher.TrackedSnapshot, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out
}

func (f *fakeFiles) Drop(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, path)
}

func newTestSweeper(t *testing.T, files TrackedFileSource) (*Sweeper, *registry.Registry, *guards.Guards) {
	t.Helper()
	g := guards.New()
	reg := registry.New(g)
	return New(reg, g, files), reg, g
}

func TestSweepFlipsWorkingToIdleAfter60s(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	files := newFakeFiles(watcher.TrackedSnapshot{Path: "p1", SessionID: "s1", LastActivity: base})
	s, reg, _ := newTestSweeper(t, files)

	reg.AddSession(&registry.Session{SessionID: "s1", LastActivity: base})
	reg.UpdateAgent(&registry.Agent{ID: "s1", SessionID: "s1", Status: registry.StatusWorking})

	s.now = func() time.Time { return base.Add(61 * time.Second) }
	s.Tick()

	a, _ := reg.GetAgent("s1")
	if a.Status != registry.StatusIdle {
		t.Fatalf("expected idle after 61s, got %+v", a)
	}
}

func TestSweepRemovesSubagentAfter300s(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	files := newFakeFiles(watcher.TrackedSnapshot{
		Path: "p1", SessionID: "parent", IsSubagent: true, AgentID: "sub-1", LastActivity: base,
	})
	s, reg, _ := newTestSweeper(t, files)

	reg.AddSession(&registry.Session{SessionID: "parent", LastActivity: base})
	reg.UpdateAgent(&registry.Agent{ID: "sub-1", SessionID: "parent", IsSubagent: true, ParentAgentID: "parent", Status: registry.StatusWorking})

	s.now = func() time.Time { return base.Add(301 * time.Second) }
	s.Tick()

	if _, ok := reg.GetAgent("sub-1"); ok {
		t.Fatal("expected subagent removed after 300s idle")
	}
}

func TestSweepExpiresSessionAndFailsOver(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	files := newFakeFiles(
		watcher.TrackedSnapshot{Path: "p1", SessionID: "s1", LastActivity: base},
		watcher.TrackedSnapshot{Path: "p2", SessionID: "s2", LastActivity: base.Add(3590 * time.Second)},
	)
	s, reg, _ := newTestSweeper(t, files)

	reg.AddSession(&registry.Session{SessionID: "s1", LastActivity: base})
	reg.UpdateAgent(&registry.Agent{ID: "s1", SessionID: "s1", Status: registry.StatusIdle})
	reg.AddSession(&registry.Session{SessionID: "s2", LastActivity: base.Add(3590 * time.Second)})
	reg.UpdateAgent(&registry.Agent{ID: "s2", SessionID: "s2", Status: registry.StatusIdle})
	reg.SelectSession("s1")

	s.now = func() time.Time { return base.Add(3601 * time.Second) }
	s.Tick()

	if _, ok := reg.GetSession("s1"); ok {
		t.Fatal("expected s1 expired")
	}
	if reg.SelectedSessionID() != "s2" {
		t.Fatalf("expected failover to s2, got %q", reg.SelectedSessionID())
	}
}

func TestSweepProcessCheckPostponesExpiry(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	files := newFakeFiles(watcher.TrackedSnapshot{Path: "p1", SessionID: "s1", LastActivity: base})
	s, reg, _ := newTestSweeper(t, files)
	s.ProcessCheck = func(projectPath string) bool { return true }

	reg.AddSession(&registry.Session{SessionID: "s1", ProjectPath: "/x", LastActivity: base})
	reg.UpdateAgent(&registry.Agent{ID: "s1", SessionID: "s1", Status: registry.StatusIdle})

	s.now = func() time.Time { return base.Add(3601 * time.Second) }
	s.Tick()

	if _, ok := reg.GetSession("s1"); !ok {
		t.Fatal("expected expiry postponed while ProcessCheck reports alive")
	}
}

func TestSweepDropsOrphanTrackingEntry(t *testing.T) {
	files := newFakeFiles(watcher.TrackedSnapshot{Path: "p1", SessionID: "unknown-session"})
	s, _, _ := newTestSweeper(t, files)

	s.Tick()

	if len(files.Snapshot()) != 0 {
		t.Fatal("expected orphan tracking entry dropped")
	}
}

func TestCatchAllRemovesStaleOrphanSubagent(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	s, reg, g := newTestSweeper(t, newFakeFiles())

	reg.AddSession(&registry.Session{SessionID: "parent", LastActivity: base})
	reg.UpdateAgent(&registry.Agent{ID: "sub-1", IsSubagent: true, ParentAgentID: "parent", Status: registry.StatusWorking})
	_ = g

	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	s.Tick()

	if _, ok := reg.GetAgent("sub-1"); ok {
		t.Fatal("expected catch-all to remove stale orphan subagent")
	}
}
