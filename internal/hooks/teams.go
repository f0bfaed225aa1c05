package hooks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentwatch/observer/internal/parsers"
	"github.com/agentwatch/observer/internal/registry"
)

// scheduledRemoval fires reg.RemoveAgent(id) after delay, used for the
// SubagentStop 15s deferred removal.
func scheduledRemoval(reg *registry.Registry, id string, delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, func() { reg.RemoveAgent(id) })
}

func (d *Dispatcher) handleSendMessage(e *Event, agentID string) {
	var body struct {
		Type      string `json:"type"`
		Recipient string `json:"recipient"`
		Content   string `json:"content"`
		Summary   string `json:"summary"`
	}
	if len(e.ToolInput) > 0 {
		_ = json.Unmarshal(e.ToolInput, &body)
	}

	senderName := agentID
	if a, ok := d.reg.GetAgent(agentID); ok {
		senderName = a.Name
	}

	if body.Type == "shutdown_request" {
		d.reg.AddMessage(&registry.Message{
			ID:        messageID(e),
			From:      senderName,
			To:        body.Recipient,
			Content:   "requested shutdown",
			Timestamp: d.now(),
		})
		return
	}

	content := body.Content
	if content == "" {
		content = body.Summary
	}
	if content == "" {
		return
	}

	recipient := body.Recipient
	if body.Type == "broadcast" || recipient == "" {
		recipient = "team (broadcast)"
	}

	d.reg.AddMessage(&registry.Message{
		ID:        messageID(e),
		From:      senderName,
		To:        recipient,
		Content:   registry.TruncateContent(content),
		Timestamp: d.now(),
	})
}

func messageID(e *Event) string {
	if e.ToolUseID != "" {
		return e.ToolUseID
	}
	return e.SessionID + ":" + fmt.Sprint(time.Now().UnixNano())
}

func (d *Dispatcher) handleTeamCreate(e *Event, agentID string) {
	teamName := e.TeamName
	if teamName == "" {
		teamName = stringField(e.ToolInput, "team_name")
	}
	if teamName == "" {
		return
	}
	if a, ok := d.reg.GetAgent(agentID); ok {
		a.TeamName = teamName
		d.reg.UpdateAgent(a)
	}

	var resp struct {
		Members []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"members"`
	}
	if len(e.ToolResponse) > 0 {
		_ = json.Unmarshal(e.ToolResponse, &resp)
	}
	for _, m := range resp.Members {
		if m.ID == "" {
			continue
		}
		d.reg.UpdateAgent(&registry.Agent{
			ID:       m.ID,
			Name:     m.Name,
			Role:     parsers.InferRole(m.Type, m.Name),
			Status:   registry.StatusIdle,
			TeamName: teamName,
		})
	}
}

func (d *Dispatcher) handleTeamDelete(e *Event) {
	teamName := e.TeamName
	if teamName == "" {
		teamName = stringField(e.ToolInput, "team_name")
	}
	if teamName == "" {
		return
	}
	for _, id := range d.reg.AgentsByTeam(teamName) {
		d.reg.RemoveAgent(id)
	}
	for _, id := range d.reg.TasksByTeam(teamName) {
		d.reg.RemoveTask(id)
	}
	d.reg.RemoveSession("team:" + teamName)
}

func (d *Dispatcher) handleTaskCreate(e *Event, agentID string) {
	id, ok := taskNumberFromResponse(e.ToolResponse)
	if !ok {
		id = e.TaskID
	}
	if id == "" {
		id = "task-" + messageID(e)
	}
	subject := stringField(e.ToolInput, "subject")
	if subject == "" {
		subject = e.TaskSubject
	}
	teamName := e.TeamName
	if teamName == "" {
		if a, ok := d.reg.GetAgent(agentID); ok {
			teamName = a.TeamName
		}
	}
	d.reg.UpdateTask(&registry.Task{
		ID:      id,
		Subject: subject,
		Status:  registry.TaskPending,
		Owner:   stringField(e.ToolInput, "owner"),
		TeamName: teamName,
	})
}

func (d *Dispatcher) handleTaskUpdate(e *Event, agentID string) {
	taskID := e.TaskID
	if taskID == "" {
		taskID = stringField(e.ToolInput, "task_id")
	}
	if taskID == "" {
		return
	}
	status := stringField(e.ToolInput, "status")
	if status == "deleted" {
		d.reg.RemoveTask(taskID)
		return
	}

	existing, _ := d.reg.GetTask(taskID)
	t := existing
	if t == nil {
		t = &registry.Task{ID: taskID}
	}
	if subj := stringField(e.ToolInput, "subject"); subj != "" {
		t.Subject = subj
	}
	if status != "" {
		t.Status = registry.NormalizeTaskStatus(status)
	}
	prevOwner := t.Owner
	if owner := stringField(e.ToolInput, "owner"); owner != "" {
		t.Owner = owner
	}
	teamName := e.TeamName
	if teamName == "" {
		if a, ok := d.reg.GetAgent(agentID); ok {
			teamName = a.TeamName
		}
	}
	if t.TeamName == "" {
		t.TeamName = teamName
	}
	d.reg.UpdateTask(t)

	switch t.Status {
	case registry.TaskInProgress:
		if t.Owner != "" {
			d.reg.SetAgentCurrentTask(t.Owner, t.ID)
		}
	case registry.TaskCompleted:
		owner := t.Owner
		if owner == "" {
			owner = prevOwner
		}
		if owner != "" {
			d.reg.SetAgentCurrentTask(owner, "")
		}
	}
}
