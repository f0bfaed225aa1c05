package hooks

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/agentwatch/observer/internal/parsers"
	"github.com/agentwatch/observer/internal/registry"
)

func (d *Dispatcher) onPreToolUse(e *Event, agentID string) {
	d.guards.ClearSessionStopped(e.SessionID)

	if e.ToolName == "Task" {
		teamName := e.TeamName
		if a, ok := d.reg.GetAgent(agentID); ok && teamName == "" {
			teamName = a.TeamName
		}
		d.spawns.record(e.ToolUseID, &pendingSpawn{
			description:  stringField(e.ToolInput, "description"),
			prompt:       firstLine(stringField(e.ToolInput, "prompt"), 80),
			subagentType: stringField(e.ToolInput, "subagent_type"),
			sessionID:    e.SessionID,
			teamName:     teamName,
			ts:           d.now(),
		})
	}

	d.reg.SetAgentWaitingById(agentID, false, "", "", "")
	d.reg.UpdateAgentActivityById(agentID, registry.StatusWorking, parsers.DescribeToolAction(e.ToolName, e.ToolInput), "")
}

func (d *Dispatcher) onPostToolUse(e *Event, agentID string) {
	d.reg.SetAgentWaitingById(agentID, false, "", "", "")

	if e.ToolName == "Bash" && gitMutationCmd.MatchString(stringField(e.ToolInput, "command")) {
		if a, ok := d.reg.GetAgent(agentID); ok {
			cwd := d.cwdFor(e.SessionID)
			if cwd != "" {
				parsers.ClearGitStatusCache(cwd)
				go d.probeGit(a.ID, cwd)
			}
		}
	}

	switch e.ToolName {
	case "SendMessage", "SendMessageTool":
		d.handleSendMessage(e, agentID)
	case "TeamCreate":
		d.handleTeamCreate(e, agentID)
	case "TeamDelete":
		d.handleTeamDelete(e)
	case "TaskCreate":
		d.handleTaskCreate(e, agentID)
	case "TaskUpdate":
		d.handleTaskUpdate(e, agentID)
	}
}

func (d *Dispatcher) cwdFor(sessionID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cwdSeen[sessionID]
}

func (d *Dispatcher) onPostToolUseFailure(e *Event, agentID string) {
	action := "Interrupted"
	if !e.IsInterrupt {
		action = "Failed: " + parsers.DescribeToolAction(e.ToolName, e.ToolInput)
	}
	d.reg.UpdateAgentActivityById(agentID, registry.StatusWorking, action, "")
}

func (d *Dispatcher) onSubagentStart(e *Event) {
	spawn := d.spawns.consumeOldest(e.SessionID)

	d.guards.ClearRecentlyRemoved(e.AgentID)

	name := e.AgentType
	var teamName string
	if spawn != nil {
		if spawn.description != "" {
			name = spawn.description
		} else if spawn.prompt != "" {
			name = spawn.prompt
		}
		teamName = spawn.teamName
	}
	if name == "" {
		name = "subagent"
	}

	subagentType := e.AgentType
	if spawn != nil && spawn.subagentType != "" {
		subagentType = spawn.subagentType
	}

	a := &registry.Agent{
		ID:           e.AgentID,
		Name:         name,
		Role:         parsers.InferRole(subagentType, name),
		Status:       registry.StatusWorking,
		IsSubagent:   teamName == "",
		TeamName:     teamName,
		SubagentType: subagentType,
	}
	if a.IsSubagent {
		a.ParentAgentID = e.SessionID
	}
	d.reg.UpdateAgent(a)
}

func (d *Dispatcher) onSubagentStop(e *Event, agentID string) {
	a, ok := d.reg.GetAgent(agentID)
	if !ok {
		return
	}
	if !a.IsSubagent {
		d.reg.UpdateAgentActivityById(agentID, registry.StatusIdle, "", "")
		return
	}

	d.reg.UpdateAgentActivityById(agentID, registry.StatusDone, "Done", "")
	d.guards.MarkSessionStopped(e.SessionID)

	d.mu.Lock()
	if t, scheduled := d.scheduled[agentID]; scheduled {
		t.Stop()
	}
	d.scheduled[agentID] = scheduledRemoval(d.reg, agentID, subagentStopDelay)
	d.mu.Unlock()
}

func (d *Dispatcher) onTeammateIdle(e *Event) {
	id := e.TeammateName
	if id != "" {
		if resolved, ok := d.reg.FindAgentIDByName(e.TeammateName); ok {
			id = resolved
		}
	} else {
		id = d.guards.ResolveAgentID(e.SessionID)
	}
	d.reg.SetAgentWaitingById(id, false, "", "", "")
	d.reg.UpdateAgentActivityById(id, registry.StatusIdle, "", "")
}

func (d *Dispatcher) onTaskCompleted(e *Event) {
	t, ok := d.reg.GetTask(e.TaskID)
	if !ok {
		t = &registry.Task{ID: e.TaskID, Subject: e.TaskSubject}
	}
	t.Status = registry.TaskCompleted
	d.reg.UpdateTask(t)
	d.reg.ReconcileAgentStatuses()
}

func (d *Dispatcher) onNotification(e *Event, agentID string) {
	text := strings.ToLower(e.Message)
	isIdlePrompt := e.NotificationType == "idle_prompt" || strings.Contains(text, "waiting for your input") || strings.Contains(text, "waiting for input")
	isPermission := e.NotificationType == "permission_prompt" || strings.Contains(text, "needs your permission") || strings.Contains(text, "permission")

	if isIdlePrompt {
		d.reg.SetAgentWaitingById(agentID, true, "", "", registry.WaitingQuestion)
		return
	}
	if isPermission {
		if a, ok := d.reg.GetAgent(agentID); ok && a.WaitingForInput {
			return
		}
		d.reg.SetAgentWaitingById(agentID, true, "", "", registry.WaitingPermission)
	}
}

func stringField(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	_ = json.Unmarshal(v, &s)
	return s
}

func firstLine(s string, cap int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(s)
	if len(r) > cap {
		s = string(r[:cap])
	}
	return s
}

// taskNumberFromResponse extracts N from a "Task #N" style tool_response,
// used when the response carries the server-assigned task id.
func taskNumberFromResponse(resp json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(resp, &s); err != nil || s == "" {
		return "", false
	}
	idx := strings.Index(s, "Task #")
	if idx < 0 {
		return "", false
	}
	rest := s[idx+len("Task #"):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false
	}
	if _, err := strconv.Atoi(rest[:end]); err != nil {
		return "", false
	}
	return rest[:end], true
}
