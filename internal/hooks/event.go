// Package hooks implements the §4.4 Hook Dispatcher: the HTTP handler for
// POST /api/hook that parses lifecycle callbacks from the host, resolves
// them onto Registry agents/sessions via Guards, and applies the per-event
// state transitions in the dispatch table.
package hooks

import "encoding/json"

// Name is one of the closed set of hook event names the dispatcher accepts.
type Name string

const (
	PreToolUse         Name = "PreToolUse"
	PostToolUse        Name = "PostToolUse"
	PostToolUseFailure Name = "PostToolUseFailure"
	PermissionRequest  Name = "PermissionRequest"
	SubagentStart      Name = "SubagentStart"
	SubagentStop       Name = "SubagentStop"
	PreCompact         Name = "PreCompact"
	Stop               Name = "Stop"
	SessionStart       Name = "SessionStart"
	SessionEnd         Name = "SessionEnd"
	TeammateIdle       Name = "TeammateIdle"
	TaskCompleted      Name = "TaskCompleted"
	UserPromptSubmit   Name = "UserPromptSubmit"
	Notification       Name = "Notification"
)

var validNames = map[Name]bool{
	PreToolUse: true, PostToolUse: true, PostToolUseFailure: true,
	PermissionRequest: true, SubagentStart: true, SubagentStop: true,
	PreCompact: true, Stop: true, SessionStart: true, SessionEnd: true,
	TeammateIdle: true, TaskCompleted: true, UserPromptSubmit: true,
	Notification: true,
}

// Event is the decoded JSON body of a hook callback. Only the fields
// relevant to HookEventName are ever populated by the host.
type Event struct {
	HookEventName Name   `json:"hook_event_name"`
	SessionID     string `json:"session_id"`

	Cwd              string          `json:"cwd,omitempty"`
	ToolName         string          `json:"tool_name,omitempty"`
	ToolInput        json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse     json.RawMessage `json:"tool_response,omitempty"`
	ToolUseID        string          `json:"tool_use_id,omitempty"`
	AgentID          string          `json:"agent_id,omitempty"`
	AgentType        string          `json:"agent_type,omitempty"`
	TeammateName     string          `json:"teammate_name,omitempty"`
	TeamName         string          `json:"team_name,omitempty"`
	TaskID           string          `json:"task_id,omitempty"`
	TaskSubject      string          `json:"task_subject,omitempty"`
	PermissionMode   string          `json:"permission_mode,omitempty"`
	Source           string          `json:"source,omitempty"`
	Model            string          `json:"model,omitempty"`
	IsInterrupt      bool            `json:"is_interrupt,omitempty"`
	Message          string          `json:"message,omitempty"`
	NotificationType string          `json:"notification_type,omitempty"`
	Prompt           string          `json:"prompt,omitempty"`
}

// validationError is a 400-worthy rejection reason, returned verbatim to
// the caller per spec §6's examples ("session_id too long", "cwd must be
// absolute").
type validationError string

func (e validationError) Error() string { return string(e) }

// validate enforces spec §6's required-field and format rules.
func (e *Event) validate() error {
	if !validNames[e.HookEventName] {
		return validationError("unknown hook_event_name")
	}
	if len(e.SessionID) == 0 {
		return validationError("session_id required")
	}
	if len(e.SessionID) > 256 {
		return validationError("session_id too long")
	}
	if e.Cwd != "" && e.Cwd[0] != '/' {
		return validationError("cwd must be absolute")
	}
	return nil
}
