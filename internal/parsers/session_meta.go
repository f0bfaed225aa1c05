package parsers

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SessionMeta is the metadata ParseSessionMetadata extracts from one
// transcript line.
type SessionMeta struct {
	SessionID   string
	Slug        string
	ProjectPath string
	ProjectName string
	GitBranch   string
	TeamName    string
	IsTeam      bool
	AgentID     string
}

// ParseSessionMetadata extracts session identity from a transcript line.
// Returns nil if the line has no sessionId.
func ParseSessionMetadata(line []byte) *SessionMeta {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil
	}
	var raw struct {
		SessionID string `json:"sessionId"`
		Slug      string `json:"slug"`
		Cwd       string `json:"cwd"`
		GitBranch string `json:"gitBranch"`
		TeamName  string `json:"teamName"`
		AgentID   string `json:"agentId"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil
	}
	if raw.SessionID == "" {
		return nil
	}
	return &SessionMeta{
		SessionID:   raw.SessionID,
		Slug:        raw.Slug,
		ProjectPath: raw.Cwd,
		ProjectName: deriveProjectName(raw.Cwd, raw.Slug),
		GitBranch:   raw.GitBranch,
		TeamName:    raw.TeamName,
		IsTeam:      raw.TeamName != "",
		AgentID:     raw.AgentID,
	}
}

// deriveProjectName prefers the last non-empty path segment of cwd; when
// cwd is absent it falls back to the slug, split on the last "-Source-"
// separator, else the slug's own last path segment.
func deriveProjectName(cwd, slug string) string {
	if cwd != "" {
		return lastNonEmptySegment(cwd)
	}
	if slug == "" {
		return ""
	}
	const sep = "-Source-"
	if idx := strings.LastIndex(slug, sep); idx >= 0 {
		return slug[idx+len(sep):]
	}
	return lastNonEmptySegment(slug)
}

func lastNonEmptySegment(path string) string {
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}
