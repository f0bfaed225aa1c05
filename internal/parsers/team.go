package parsers

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentwatch/observer/internal/registry"
)

// TeamMember is one validated row of a team config.json.
type TeamMember struct {
	ID             string
	Name           string
	Role           registry.Role
	Status         registry.Status
	TasksCompleted int
}

// ParseTeamConfig reads and validates a team config.json. It returns
// (nil, false) on a missing file, malformed JSON, or an absent/invalid
// members array.
func ParseTeamConfig(path string) ([]TeamMember, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var cfg struct {
		Members []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"members"`
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, false
	}
	if cfg.Members == nil {
		return nil, false
	}
	out := make([]TeamMember, 0, len(cfg.Members))
	for _, m := range cfg.Members {
		if m.ID == "" {
			continue
		}
		out = append(out, TeamMember{
			ID:     m.ID,
			Name:   m.Name,
			Role:   InferRole(m.Type, m.Name),
			Status: registry.StatusIdle,
		})
	}
	return out, true
}

// TaskRecord is one validated row of a task JSON file.
type TaskRecord struct {
	ID        string
	Subject   string
	Status    registry.TaskStatus
	Owner     string
	BlockedBy []string
	Blocks    []string
}

// ParseTaskFile reads and normalizes a task JSON file. It returns
// (nil, false) for a missing or empty (mid-write) file, or malformed JSON.
func ParseTaskFile(path string) (*TaskRecord, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	var raw struct {
		ID        string   `json:"id"`
		Subject   string   `json:"subject"`
		Status    string   `json:"status"`
		Owner     string   `json:"owner"`
		BlockedBy []string `json:"blockedBy"`
		Blocks    []string `json:"blocks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	id := raw.ID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	subject := raw.Subject
	if subject == "" {
		subject = "Untitled"
	}
	return &TaskRecord{
		ID:        id,
		Subject:   subject,
		Status:    registry.NormalizeTaskStatus(raw.Status),
		Owner:     raw.Owner,
		BlockedBy: raw.BlockedBy,
		Blocks:    raw.Blocks,
	}, true
}

// InferRole maps an agent type + name onto a Role by case-insensitive
// substring precedence: lead/team-lead, then research/explore/architect,
// then test/validat/tester, then plan/design/artist/scribe, else
// implementer. Precedence order is part of the contract.
func InferRole(agentType, name string) registry.Role {
	combined := strings.ToLower(agentType + " " + name)
	switch {
	case strings.Contains(combined, "lead"):
		return registry.RoleLead
	case strings.Contains(combined, "research"), strings.Contains(combined, "explore"), strings.Contains(combined, "architect"):
		return registry.RoleResearcher
	case strings.Contains(combined, "test"), strings.Contains(combined, "validat"):
		return registry.RoleTester
	case strings.Contains(combined, "plan"), strings.Contains(combined, "design"), strings.Contains(combined, "artist"), strings.Contains(combined, "scribe"):
		return registry.RolePlanner
	default:
		return registry.RoleImplementer
	}
}
