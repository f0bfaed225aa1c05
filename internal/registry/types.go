// Package registry is the single source of truth for sessions, agents,
// tasks, and messages. It owns all mutable entity state;
// the watcher, dispatcher, and sweeper hold only ids and pass them back here
// for mutation.
package registry

import "time"

// Role is an agent's inferred function within a team.
type Role string

const (
	RoleLead        Role = "lead"
	RoleResearcher  Role = "researcher"
	RoleImplementer Role = "implementer"
	RoleTester      Role = "tester"
	RolePlanner     Role = "planner"
)

// Status is an agent's coarse activity state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
)

// WaitingType narrows why an agent is blocked on external input.
type WaitingType string

const (
	WaitingPermission    WaitingType = "permission"
	WaitingQuestion      WaitingType = "question"
	WaitingPlan          WaitingType = "plan"
	WaitingPlanApproval  WaitingType = "plan_approval"
)

// ActionEntry is one entry in an agent's recentActions ring buffer.
type ActionEntry struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// recentActionsCap bounds Agent.RecentActions to the most recent entries.
const recentActionsCap = 5

// GitInfo holds the optional git fields an Agent may carry.
type GitInfo struct {
	Branch      string `json:"branch,omitempty"`
	Worktree    string `json:"worktree,omitempty"`
	Ahead       int    `json:"ahead"`
	Behind      int    `json:"behind"`
	HasUpstream bool   `json:"hasUpstream"`
	Dirty       bool   `json:"dirty"`
}

// Agent is a logical actor (main/solo/team-member/subagent) whose activity
// is observed.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`

	Status          Status      `json:"status"`
	WaitingForInput bool        `json:"waitingForInput"`
	WaitingType     WaitingType `json:"waitingType,omitempty"`

	CurrentAction string `json:"currentAction,omitempty"`
	ActionContext string `json:"actionContext,omitempty"`

	TasksCompleted int           `json:"tasksCompleted"`
	RecentActions  []ActionEntry `json:"recentActions,omitempty"`
	CurrentTaskID  string        `json:"currentTaskId,omitempty"`

	Git *GitInfo `json:"git,omitempty"`

	IsSubagent    bool   `json:"isSubagent,omitempty"`
	ParentAgentID string `json:"parentAgentId,omitempty"`
	SubagentType  string `json:"subagentType,omitempty"`

	// SessionID is the solo session this agent belongs to (equal to ID for
	// a main/solo agent; equal to the parent session id for a subagent).
	// Empty for team members, which are addressed by TeamName instead.
	SessionID string `json:"sessionId,omitempty"`
	TeamName  string `json:"teamName,omitempty"`

	UpdatedAt time.Time `json:"-"`
}

// Clone returns a deep copy so callers can mutate the copy without racing
// the Registry's internal state.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	c := *a
	if a.Git != nil {
		g := *a.Git
		c.Git = &g
	}
	if len(a.RecentActions) > 0 {
		c.RecentActions = append([]ActionEntry(nil), a.RecentActions...)
	}
	return &c
}

// appendRecentAction pushes a new entry onto the ring buffer, trimming to
// recentActionsCap and keeping oldest->newest order.
func (a *Agent) appendRecentAction(action string, ts time.Time) {
	if action == "" {
		return
	}
	a.RecentActions = append(a.RecentActions, ActionEntry{Action: action, Timestamp: ts})
	if len(a.RecentActions) > recentActionsCap {
		a.RecentActions = a.RecentActions[len(a.RecentActions)-recentActionsCap:]
	}
}

// Session is a host-side conversation instance (solo) or team workspace,
// default.
type Session struct {
	SessionID   string `json:"sessionId"`
	ProjectName string `json:"projectName"`
	ProjectPath string `json:"projectPath"`
	Slug        string `json:"slug,omitempty"`
	GitBranch   string `json:"gitBranch,omitempty"`
	TeamName    string `json:"teamName,omitempty"`
	IsTeam      bool   `json:"isTeam"`

	LastActivity time.Time `json:"lastActivity"`

	// idMappings maps inner hook-session UUIDs to team-agent-ids, for team
	// sessions only.
	idMappings map[string]string
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if len(s.idMappings) > 0 {
		c.idMappings = make(map[string]string, len(s.idMappings))
		for k, v := range s.idMappings {
			c.idMappings[k] = v
		}
	}
	return &c
}

// TaskStatus normalizes the external task status vocabulary.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// NormalizeTaskStatus maps an arbitrary external status string onto the
// closed TaskStatus set: "deleted" -> completed, anything unrecognized ->
// pending.
func NormalizeTaskStatus(s string) TaskStatus {
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskCompleted:
		return TaskStatus(s)
	}
	if s == "deleted" {
		return TaskCompleted
	}
	return TaskPending
}

// Task is a unit of work tracked within a team.
type Task struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	Status    TaskStatus `json:"status"`
	Owner     string     `json:"owner,omitempty"`
	BlockedBy []string   `json:"blockedBy,omitempty"`
	Blocks    []string   `json:"blocks,omitempty"`
	TeamName  string     `json:"teamName,omitempty"`
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.BlockedBy = append([]string(nil), t.BlockedBy...)
	c.Blocks = append([]string(nil), t.Blocks...)
	return &c
}

// messageContentCap bounds Message.Content.
const messageContentCap = 200

// messageLogCap bounds the total number of retained messages.
const messageLogCap = 200

// Message is an inter-agent message, deduplicated by ID and bounded to the
// most recent messageLogCap entries.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TruncateContent clamps c to messageContentCap runes, matching the
// spec's "truncated ≤200 chars" rule.
func TruncateContent(c string) string {
	r := []rune(c)
	if len(r) <= messageContentCap {
		return c
	}
	return string(r[:messageContentCap])
}
