package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentwatch/observer/internal/registry"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseTeamConfigValid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"members":[{"id":"dev-1","name":"Lead Dana","type":"lead"},{"id":"dev-2","name":"Tess the tester"}]}`)

	members, ok := ParseTeamConfig(path)
	if !ok || len(members) != 2 {
		t.Fatalf("expected 2 members, got %+v ok=%v", members, ok)
	}
	if members[0].Role != registry.RoleLead {
		t.Fatalf("expected lead role, got %s", members[0].Role)
	}
	if members[1].Role != registry.RoleTester {
		t.Fatalf("expected tester role, got %s", members[1].Role)
	}
	if members[0].Status != registry.StatusIdle || members[0].TasksCompleted != 0 {
		t.Fatalf("expected default idle/0, got %+v", members[0])
	}
}

func TestParseTeamConfigMalformedOrMissing(t *testing.T) {
	if _, ok := ParseTeamConfig("/nonexistent/config.json"); ok {
		t.Fatal("expected false for missing file")
	}
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"members": "not-an-array"}`)
	if _, ok := ParseTeamConfig(path); ok {
		t.Fatal("expected false for malformed members")
	}
}

func TestParseTaskFileNormalizesStatusAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "task-7.json", `{"status":"deleted"}`)
	task, ok := ParseTaskFile(path)
	if !ok {
		t.Fatal("expected ok")
	}
	if task.Status != registry.TaskCompleted {
		t.Fatalf("expected deleted->completed, got %s", task.Status)
	}
	if task.Subject != "Untitled" {
		t.Fatalf("expected default subject Untitled, got %q", task.Subject)
	}
	if task.ID != "task-7" {
		t.Fatalf("expected id derived from filename stem, got %q", task.ID)
	}
}

func TestParseTaskFileEmptyFileReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "task-1.json", "")
	if _, ok := ParseTaskFile(path); ok {
		t.Fatal("expected false for empty (mid-write) file")
	}
}

func TestInferRolePrecedence(t *testing.T) {
	cases := []struct {
		agentType, name string
		want            registry.Role
	}{
		{"team-lead", "", registry.RoleLead},
		{"", "Explorer bot", registry.RoleResearcher},
		{"", "Validator-9000", registry.RoleTester},
		{"", "Planning Scribe", registry.RolePlanner},
		{"", "generic-worker", registry.RoleImplementer},
	}
	for _, c := range cases {
		got := InferRole(c.agentType, c.name)
		if got != c.want {
			t.Fatalf("InferRole(%q,%q) = %s, want %s", c.agentType, c.name, got, c.want)
		}
	}
}
