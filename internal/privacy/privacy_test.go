package privacy

import (
	"testing"

	"github.com/agentwatch/observer/internal/registry"
)

func TestFilterIsSlugAllowed(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		slug   string
		want   bool
	}{
		{
			name:   "empty filter allows everything",
			filter: Filter{},
			slug:   "my-project",
			want:   true,
		},
		{
			name:   "empty slug always allowed",
			filter: Filter{BlockedSlugs: []string{"scratch-*"}},
			slug:   "",
			want:   true,
		},
		{
			name:   "allowlist match",
			filter: Filter{AllowedSlugs: []string{"work-*"}},
			slug:   "work-myproject",
			want:   true,
		},
		{
			name:   "allowlist no match",
			filter: Filter{AllowedSlugs: []string{"work-*"}},
			slug:   "personal-diary",
			want:   false,
		},
		{
			name:   "blocklist match",
			filter: Filter{BlockedSlugs: []string{"scratch-*"}},
			slug:   "scratch-tmp",
			want:   false,
		},
		{
			name:   "blocklist no match",
			filter: Filter{BlockedSlugs: []string{"scratch-*"}},
			slug:   "my-project",
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.IsSlugAllowed(tt.slug); got != tt.want {
				t.Errorf("IsSlugAllowed(%q) = %v, want %v", tt.slug, got, tt.want)
			}
		})
	}
}

func TestFilterIsNoopOnNilReceiver(t *testing.T) {
	var f *Filter
	if !f.IsNoop() {
		t.Fatal("nil filter should be a no-op")
	}
	summaries := []registry.SessionSummary{{SessionID: "s1", ProjectName: "secret-repo"}}
	if got := f.Summaries(summaries); got[0].ProjectName != "secret-repo" {
		t.Fatal("nil filter must not mutate summaries")
	}
	agent := &registry.Agent{ID: "a1", Git: &registry.GitInfo{Worktree: "/home/user/work/wt"}}
	if got := f.Agent(agent); got.Git.Worktree != "/home/user/work/wt" {
		t.Fatal("nil filter must not mutate agent git info")
	}
}

func TestFilterSummariesMasksAndFilters(t *testing.T) {
	f := &Filter{MaskProjectNames: true, BlockedSlugs: []string{"scratch-*"}}
	in := []registry.SessionSummary{
		{SessionID: "s1", Slug: "work-foo", ProjectName: "foo"},
		{SessionID: "s2", Slug: "scratch-bar", ProjectName: "bar"},
	}

	out := f.Summaries(in)
	if len(out) != 1 {
		t.Fatalf("expected blocked session dropped, got %d entries", len(out))
	}
	if out[0].SessionID != "s1" {
		t.Fatalf("unexpected surviving session: %+v", out[0])
	}
	if out[0].ProjectName == "foo" {
		t.Fatal("expected project name to be masked")
	}
}

func TestFilterAgentMasksWorktree(t *testing.T) {
	f := &Filter{MaskWorktreePaths: true}
	a := &registry.Agent{ID: "a1", Git: &registry.GitInfo{Worktree: "/home/user/work/wt-1", Branch: "main"}}

	masked := f.Agent(a)
	if masked == a {
		t.Fatal("expected a masked copy, not the original pointer")
	}
	if masked.Git.Worktree != "wt-1" {
		t.Fatalf("expected worktree basename only, got %q", masked.Git.Worktree)
	}
	if masked.Git.Branch != "main" {
		t.Fatal("branch must be untouched")
	}
	if a.Git.Worktree != "/home/user/work/wt-1" {
		t.Fatal("original agent must not be mutated")
	}
}

func TestFilterViewMasksNestedAgents(t *testing.T) {
	f := &Filter{MaskWorktreePaths: true}
	v := &registry.SessionView{
		SessionID: "s1",
		Agents: []*registry.Agent{
			{ID: "a1", Git: &registry.GitInfo{Worktree: "/home/user/work/wt-1"}},
		},
	}

	out := f.View(v)
	if out == v {
		t.Fatal("expected a copy")
	}
	if out.Agents[0].Git.Worktree != "wt-1" {
		t.Fatalf("expected masked worktree, got %q", out.Agents[0].Git.Worktree)
	}
}
