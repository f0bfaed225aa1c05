package watcher

import (
	"path/filepath"
	"strings"
)

// isSubagentPath reports whether path matches
// <slug>/<parentSessionId>/subagents/<agentId>.jsonl.
func isSubagentPath(path string) bool {
	return filepath.Base(filepath.Dir(path)) == "subagents"
}

// parentSessionIDFromSubagentPath extracts <parentSessionId> from a path
// matching isSubagentPath.
func parentSessionIDFromSubagentPath(path string) string {
	return filepath.Base(filepath.Dir(filepath.Dir(path)))
}

// agentIDFromPath extracts <agentId> from a subagent path (the filename
// stem).
func agentIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

// sessionIDFromPath extracts <sessionId> from a top-level session path (the
// filename stem is authoritative over any sessionId found in the file's own
// content).
func sessionIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

// slugFromPath returns the project slug directory name one level above the
// session file (or, for a subagent file, two levels above it).
func slugFromPath(path string) string {
	dir := filepath.Dir(path)
	if isSubagentPath(path) {
		dir = filepath.Dir(filepath.Dir(dir))
	}
	return filepath.Base(dir)
}

// acompactPrefix identifies the internal compaction-subagent naming scheme.
const acompactPrefix = "agent-acompact"

func isAcompactAgentID(agentID string) bool {
	return strings.HasPrefix(agentID, acompactPrefix)
}

// inferSubagentType derives a short display type from the conventional
// "agent-<type>-<nonce>" subagent id, e.g. "agent-explore-7f2" -> "Explore".
func inferSubagentType(agentID string) string {
	rest := strings.TrimPrefix(agentID, "agent-")
	if rest == agentID {
		return "Agent"
	}
	cut := len(rest)
	for i, r := range rest {
		if r == '-' || (r >= '0' && r <= '9') {
			cut = i
			break
		}
	}
	word := rest[:cut]
	if word == "" {
		return "Agent"
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
