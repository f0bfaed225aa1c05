package watcher

import (
	"os"
	"strings"
	"time"

	"github.com/agentwatch/observer/internal/parsers"
	"github.com/agentwatch/observer/internal/registry"
)

// subagentTailLines is the window detectSubagent inspects to decide whether
// a subagent transcript already reached its turn_end (and should therefore
// start idle rather than working).
const subagentTailLines = 15

// subagentInitialMaxAge bounds how old a subagent file may be during the
// initial sweep before it's ignored.
const subagentInitialMaxAge = 5 * time.Minute

// acompactRecentWindow is how fresh an internal compaction-subagent file's
// mtime must be before its activity is reflected onto the parent agent.
const acompactRecentWindow = 10 * time.Second

// detectSubagent handles a newly discovered
// <slug>/<parentSessionId>/subagents/<agentId>.jsonl file.
func (w *Watcher) detectSubagent(path string, initial bool) {
	info, err := os.Stat(path)
	if err != nil {
		w.health.recordReadError(err)
		return
	}
	if initial && w.now().Sub(info.ModTime()) > subagentInitialMaxAge {
		return
	}

	parent := parentSessionIDFromSubagentPath(path)
	agentID := agentIDFromPath(path)

	if isAcompactAgentID(agentID) {
		if w.now().Sub(info.ModTime()) < acompactRecentWindow {
			w.reg.UpdateAgentActivityById(parent, registry.StatusWorking, "Compacting conversation...", "")
		}
		w.mu.Lock()
		w.tracked[path] = &trackedFile{
			sessionID:       parent,
			isSubagent:      true,
			isAcompact:      true,
			parentSessionID: parent,
			offset:          info.Size(),
			lastActivity:    info.ModTime(),
		}
		w.mu.Unlock()
		return
	}

	fullOffset := info.Size()

	skipRegistration := w.guards.WasRecentlyRemoved(agentID)
	if existing, ok := w.reg.GetAgent(agentID); ok {
		skipRegistration = true
		if existing.Status == registry.StatusDone {
			// A hook already concluded this subagent; leave it as-is.
			w.mu.Lock()
			w.tracked[path] = &trackedFile{
				sessionID: parent, isSubagent: true, agentID: agentID,
				parentSessionID: parent, offset: fullOffset, lastActivity: info.ModTime(),
			}
			w.mu.Unlock()
			return
		}
	}

	if !skipRegistration {
		tail, err := readLastLines(path, subagentTailLines)
		if err != nil {
			w.health.recordReadError(err)
		}
		status := registry.StatusWorking
		if hasTurnEnd(tail) {
			status = registry.StatusIdle
		}

		name := subagentDisplayName(path)
		subagentType := inferSubagentType(agentID)
		if name == "" {
			name = subagentType
		}

		w.reg.UpdateAgent(&registry.Agent{
			ID:            agentID,
			Name:          name,
			Role:          parsers.InferRole(subagentType, name),
			Status:        status,
			IsSubagent:    true,
			ParentAgentID: parent,
			SubagentType:  subagentType,
			SessionID:     parent,
		})
	}

	w.mu.Lock()
	w.tracked[path] = &trackedFile{
		sessionID:       parent,
		isSubagent:      true,
		agentID:         agentID,
		parentSessionID: parent,
		offset:          fullOffset,
		lastActivity:    info.ModTime(),
	}
	w.mu.Unlock()
}

// hasTurnEnd reports whether any line in lines parses as a turn_end record.
func hasTurnEnd(lines []string) bool {
	for i := len(lines) - 1; i >= 0; i-- {
		parsed := parsers.ParseTranscriptLine([]byte(lines[i]))
		if parsed != nil && parsed.Kind == parsers.KindTurnEnd {
			return true
		}
	}
	return false
}

// subagentDisplayName derives a short label from the subagent's first user
// message, falling back to its inferred type.
func subagentDisplayName(path string) string {
	lines, _, err := readFirstLines(path, metadataScanLines)
	if err != nil {
		return ""
	}
	for _, line := range lines {
		if text, ok := parsers.FirstUserMessageText([]byte(line)); ok {
			return clampName(text)
		}
	}
	return ""
}

const subagentNameCap = 40

func clampName(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= subagentNameCap {
		return s
	}
	return string(r[:subagentNameCap])
}
