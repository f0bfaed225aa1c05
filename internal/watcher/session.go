package watcher

import (
	"bufio"
	"io"
	"os"
	"time"

	"github.com/agentwatch/observer/internal/parsers"
	"github.com/agentwatch/observer/internal/registry"
)

// initialScanMaxAge bounds how old a top-level session file may be during
// the initial sweep before it's ignored as long-dead history.
const initialScanMaxAge = 24 * time.Hour

// metadataScanLines is how many leading lines detectSession reads looking
// for session identity, per spec §4.5.
const metadataScanLines = 20

// tailScanLines is how many trailing lines detectSession inspects to infer
// the session's current status on discovery.
const tailScanLines = 30

// recentWriteWindow bounds how fresh a file's mtime must be for a detected
// change to count toward lastActivity — guards against historical replay
// (see handleChange) inflating timestamps.
const recentWriteWindow = 5 * time.Minute

// detectSession handles a newly discovered top-level <slug>/<sessionId>.jsonl
// file: it extracts identity from the leading lines, infers current status
// from a reverse tail-scan, and registers the session and its agent.
func (w *Watcher) detectSession(path string, initial bool) {
	info, err := os.Stat(path)
	if err != nil {
		w.health.recordReadError(err)
		return
	}
	if initial && w.now().Sub(info.ModTime()) > initialScanMaxAge {
		return
	}

	firstLines, offset, err := readFirstLines(path, metadataScanLines)
	if err != nil {
		w.health.recordReadError(err)
		return
	}
	var meta *parsers.SessionMeta
	for _, l := range firstLines {
		if m := parsers.ParseSessionMetadata([]byte(l)); m != nil {
			meta = m
			break
		}
	}
	if meta == nil {
		meta = &parsers.SessionMeta{}
	}

	sessionID := sessionIDFromPath(path)
	dirSlug := slugFromPath(path)
	slug := meta.Slug
	if slug == "" {
		slug = dirSlug
	}

	tail, err := readLastLines(path, tailScanLines)
	if err != nil {
		w.health.recordReadError(err)
	}
	status, action, waiting, waitingType := scanTail(tail)
	if status == "" {
		if w.now().Sub(info.ModTime()) < 10*time.Second {
			status = registry.StatusWorking
		} else {
			status = registry.StatusIdle
		}
	}
	if w.guards.IsSessionStopped(sessionID) {
		status = registry.StatusIdle
		waiting = false
	}

	wt := parsers.DetectGitWorktree(meta.ProjectPath, w.exec)

	w.reg.AddSession(&registry.Session{
		SessionID:   sessionID,
		ProjectName: meta.ProjectName,
		ProjectPath: meta.ProjectPath,
		Slug:        slug,
		GitBranch:   wt.Branch,
		TeamName:    meta.TeamName,
		IsTeam:      meta.IsTeam,
	})

	agent := &registry.Agent{
		ID:              sessionID,
		Name:            displayName(slug, meta.ProjectName),
		Role:            registry.RoleImplementer,
		Status:          status,
		WaitingForInput: waiting,
		WaitingType:     waitingType,
		CurrentAction:   action,
		SessionID:       sessionID,
		TeamName:        meta.TeamName,
	}
	if wt.Branch != "" || wt.Worktree != "" {
		agent.Git = &registry.GitInfo{Branch: wt.Branch, Worktree: wt.Worktree}
	}
	w.reg.UpdateAgent(agent)

	if w.hasRecentAcompact(sessionID) {
		w.reg.UpdateAgentActivityById(sessionID, registry.StatusWorking, "Compacting conversation...", "")
	}

	if meta.IsTeam && meta.AgentID != "" {
		w.guards.RegisterSessionToAgentMapping(sessionID, meta.AgentID)
	}

	w.mu.Lock()
	w.tracked[path] = &trackedFile{
		sessionID:    sessionID,
		offset:       offset,
		lastActivity: info.ModTime(),
	}
	w.mu.Unlock()
}

// displayName mirrors the hook dispatcher's auto-register rule
// ("name=session.slug or projectName"): the session's own slug wins when
// present, since it's the host's human-facing mnemonic for the session.
func displayName(slug, projectName string) string {
	if slug != "" {
		return slug
	}
	return projectName
}

// scanTail applies the reverse-order precedence rules over the tail window:
// a turn_end is definitive and wins outright; otherwise the most recent
// tool_call/thinking/compact line (in that priority order) determines the
// reported status and action, and a trailing agent_activity (tool_result)
// line stops the scan as a natural conversation boundary.
func scanTail(lines []string) (status registry.Status, action string, waiting bool, wt registry.WaitingType) {
	var rememberedToolCall *parsers.ParsedLine
	var rememberedThinking string
	var rememberedCompact string

scan:
	for i := len(lines) - 1; i >= 0; i-- {
		parsed := parsers.ParseTranscriptLine([]byte(lines[i]))
		if parsed == nil {
			continue
		}
		switch parsed.Kind {
		case parsers.KindTurnEnd:
			return registry.StatusIdle, "", false, ""
		case parsers.KindToolCall:
			if rememberedToolCall == nil {
				cp := *parsed
				rememberedToolCall = &cp
			}
		case parsers.KindAgentActivity:
			break scan // stop scanning older lines; natural boundary
		case parsers.KindThinking:
			if rememberedThinking == "" {
				rememberedThinking = parsed.Label
			}
		case parsers.KindCompact:
			if rememberedCompact == "" {
				rememberedCompact = parsed.Label
			}
		}
	}

	switch {
	case rememberedToolCall != nil:
		if rememberedToolCall.IsUserPrompt {
			return registry.StatusWorking, rememberedToolCall.Label, true, waitingTypeForTool(rememberedToolCall.ToolName)
		}
		return registry.StatusWorking, rememberedToolCall.Label, false, ""
	case rememberedThinking != "":
		return registry.StatusWorking, rememberedThinking, false, ""
	case rememberedCompact != "":
		return registry.StatusWorking, rememberedCompact, false, ""
	default:
		return "", "", false, ""
	}
}

// waitingTypeForTool maps a user-input tool name to its WaitingType.
func waitingTypeForTool(toolName string) registry.WaitingType {
	switch toolName {
	case "EnterPlanMode":
		return registry.WaitingPlan
	case "ExitPlanMode":
		return registry.WaitingPlanApproval
	default:
		return registry.WaitingQuestion
	}
}

// readFirstLines reads up to n complete lines from the start of path and
// returns them along with the byte offset immediately after the last line
// read (so the caller can treat everything beyond it as "new").
func readFirstLines(path string, n int) ([]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var lines []string
	var offset int64
	reader := bufio.NewReader(f)
	for len(lines) < n {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			lines = append(lines, string(line[:len(line)-1]))
			offset += int64(len(line))
		}
		if err != nil {
			break
		}
	}
	return lines, offset, nil
}

// readLastLines reads the whole file and returns its last n lines in
// original (oldest-first) order. Transcript files are small enough in
// practice that a full read is simpler and more reliable than seek-based
// tail estimation.
func readLastLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}
