package parsers

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
)

// LineKind tags the classification ParseTranscriptLine assigns to one
// transcript record.
type LineKind string

const (
	KindMessage       LineKind = "message"
	KindToolCall      LineKind = "tool_call"
	KindCompact       LineKind = "compact"
	KindThinking      LineKind = "thinking"
	KindProgress      LineKind = "progress"
	KindTurnEnd       LineKind = "turn_end"
	KindAgentActivity LineKind = "agent_activity"
	KindUnknown       LineKind = "unknown"
)

// ParsedMessage is the extracted payload of a SendMessage/SendMessageTool
// tool-use block.
type ParsedMessage struct {
	Kind      string // "message" or "broadcast"
	Recipient string
	Content   string
	Summary   string
}

// ParsedLine is the tagged-variant result of ParseTranscriptLine. Only the
// fields relevant to Kind are populated.
type ParsedLine struct {
	Kind LineKind

	// Label is the human-readable action description for tool_call,
	// thinking, progress, and compact lines.
	Label string

	// ToolName is the raw tool name for tool_call lines, used by callers
	// that need to derive a WaitingType (question vs plan) from it.
	ToolName string

	// IsUserPrompt is set for tool_call lines whose tool is one of
	// AskUserQuestion, EnterPlanMode, ExitPlanMode.
	IsUserPrompt bool

	Message *ParsedMessage
}

type rawBlock struct {
	Type  string          `json:"type"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	Text  string          `json:"text,omitempty"`
}

type rawMessage struct {
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

type rawLine struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Message *rawMessage     `json:"message,omitempty"`
	// Fields used when the line itself is a bare top-level tool_use block.
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

var userInputTools = map[string]bool{
	"AskUserQuestion": true,
	"EnterPlanMode":   true,
	"ExitPlanMode":    true,
}

// ParseTranscriptLine classifies one JSONL record. It returns nil for
// malformed JSON, top-level arrays/null, or a SendMessage block missing a
// usable recipient/content.
func ParseTranscriptLine(line []byte) *ParsedLine {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] == '[' || string(trimmed) == "null" {
		return nil
	}
	var raw rawLine
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil
	}

	if block, ok := firstToolUseBlock(raw); ok {
		if block.Name == "SendMessage" || block.Name == "SendMessageTool" {
			msg, ok := extractMessage(block.Input)
			if !ok {
				return nil
			}
			return &ParsedLine{Kind: KindMessage, Message: msg}
		}
		return &ParsedLine{
			Kind:         KindToolCall,
			Label:        DescribeToolAction(block.Name, block.Input),
			ToolName:     block.Name,
			IsUserPrompt: userInputTools[block.Name],
		}
	}

	if raw.Type == "system" && (raw.Subtype == "compact_boundary" || raw.Subtype == "microcompact_boundary") {
		return &ParsedLine{Kind: KindCompact, Label: "Compacting conversation..."}
	}

	if raw.Type == "assistant" && raw.Message != nil {
		if blocks, ok := decodeBlocks(raw.Message.Content); ok && len(blocks) > 0 {
			switch blocks[0].Type {
			case "thinking":
				return &ParsedLine{Kind: KindThinking, Label: "Thinking..."}
			case "text":
				return &ParsedLine{Kind: KindThinking, Label: "Responding..."}
			}
		}
	}

	if raw.Type == "progress" {
		return &ParsedLine{Kind: KindProgress, Label: progressLabel(raw.Subtype)}
	}

	if raw.Type == "system" && raw.Subtype == "turn_duration" {
		return &ParsedLine{Kind: KindTurnEnd}
	}

	if raw.Type == "tool_result" || raw.Type == "tool_output" {
		return &ParsedLine{Kind: KindAgentActivity}
	}

	return &ParsedLine{Kind: KindUnknown}
}

// firstToolUseBlock discovers a tool-use block across the three positional
// layouts the host emits: top-level content[], a bare top-level
// type=tool_use record, or nested message.content[].
func firstToolUseBlock(raw rawLine) (rawBlock, bool) {
	if blocks, ok := decodeBlocks(raw.Content); ok {
		for _, b := range blocks {
			if b.Type == "tool_use" {
				return b, true
			}
		}
	}
	if raw.Type == "tool_use" {
		return rawBlock{Type: raw.Type, Name: raw.Name, Input: raw.Input}, true
	}
	if raw.Message != nil {
		if blocks, ok := decodeBlocks(raw.Message.Content); ok {
			for _, b := range blocks {
				if b.Type == "tool_use" {
					return b, true
				}
			}
		}
	}
	return rawBlock{}, false
}

func decodeBlocks(raw json.RawMessage) ([]rawBlock, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var blocks []rawBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

func extractMessage(input json.RawMessage) (*ParsedMessage, bool) {
	var body struct {
		Type      string `json:"type"`
		Recipient string `json:"recipient"`
		Content   string `json:"content"`
		Summary   string `json:"summary"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &body); err != nil {
			return nil, false
		}
	}
	if body.Type != "message" && body.Type != "broadcast" {
		return nil, false
	}
	recipient := body.Recipient
	if body.Type == "broadcast" && recipient == "" {
		recipient = "all"
	}
	if recipient == "" || body.Content == "" {
		return nil, false
	}
	return &ParsedMessage{Kind: body.Type, Recipient: recipient, Content: body.Content, Summary: body.Summary}, true
}

func progressLabel(subtype string) string {
	switch strings.ToLower(subtype) {
	case "command", "bash", "shell":
		return "Running command..."
	case "agent", "subagent", "task":
		return "Agent working..."
	default:
		return "Processing..."
	}
}

// actionLabelCap bounds DescribeToolAction's output.
const actionLabelCap = 60

func clampLabel(s string) string {
	r := []rune(s)
	if len(r) <= actionLabelCap {
		return s
	}
	return string(r[:actionLabelCap])
}

func stringField(input json.RawMessage, key string) string {
	if len(input) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(input, &m); err != nil {
		return ""
	}
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func firstCommandSegment(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	cut := len(cmd)
	if i := strings.Index(cmd, "&&"); i >= 0 && i < cut {
		cut = i
	}
	if i := strings.Index(cmd, "|"); i >= 0 && i < cut {
		cut = i
	}
	return strings.TrimSpace(cmd[:cut])
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// DescribeToolAction produces a short, human-readable label for a tool
// invocation, clamped to 60 characters.
func DescribeToolAction(name string, input json.RawMessage) string {
	switch name {
	case "Edit", "Write", "Read":
		verb := map[string]string{"Edit": "Editing", "Write": "Writing", "Read": "Reading"}[name]
		path := stringField(input, "file_path")
		return clampLabel(strings.TrimSpace(verb + " " + filepath.Base(path)))
	case "Bash":
		if d := stringField(input, "description"); d != "" {
			return clampLabel(d)
		}
		head := firstCommandSegment(stringField(input, "command"))
		return clampLabel("Running: " + truncateRunes(head, 50))
	case "Grep", "Glob":
		return clampLabel("Searching: " + stringField(input, "pattern"))
	case "Task":
		return clampLabel("Spawning: " + stringField(input, "description"))
	case "TaskCreate":
		return clampLabel("Creating task: " + stringField(input, "subject"))
	case "TaskUpdate":
		return clampLabel("Updating task → " + stringField(input, "status"))
	case "WebSearch":
		return clampLabel("Searching web: " + stringField(input, "query"))
	case "WebFetch":
		return clampLabel("Fetching: " + stringField(input, "url"))
	default:
		return clampLabel(name)
	}
}
