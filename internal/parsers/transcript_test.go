package parsers

import "testing"

func TestParseTranscriptLineRejectsArraysAndNull(t *testing.T) {
	if got := ParseTranscriptLine([]byte("[1,2,3]")); got != nil {
		t.Fatalf("expected nil for top-level array, got %+v", got)
	}
	if got := ParseTranscriptLine([]byte("null")); got != nil {
		t.Fatalf("expected nil for top-level null, got %+v", got)
	}
	if got := ParseTranscriptLine([]byte("not json")); got != nil {
		t.Fatalf("expected nil for malformed json, got %+v", got)
	}
}

func TestParseTranscriptLineTurnEnd(t *testing.T) {
	line := []byte(`{"type":"system","subtype":"turn_duration","duration_ms":3000}`)
	got := ParseTranscriptLine(line)
	if got == nil || got.Kind != KindTurnEnd {
		t.Fatalf("expected turn_end, got %+v", got)
	}
}

func TestParseTranscriptLineCompact(t *testing.T) {
	for _, subtype := range []string{"compact_boundary", "microcompact_boundary"} {
		line := []byte(`{"type":"system","subtype":"` + subtype + `"}`)
		got := ParseTranscriptLine(line)
		if got == nil || got.Kind != KindCompact || got.Label != "Compacting conversation..." {
			t.Fatalf("subtype=%s: expected compact, got %+v", subtype, got)
		}
	}
}

func TestParseTranscriptLineThinkingAndText(t *testing.T) {
	thinking := []byte(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"thinking"}]}}`)
	got := ParseTranscriptLine(thinking)
	if got == nil || got.Kind != KindThinking || got.Label != "Thinking..." {
		t.Fatalf("expected Thinking..., got %+v", got)
	}

	text := []byte(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}`)
	got = ParseTranscriptLine(text)
	if got == nil || got.Kind != KindThinking || got.Label != "Responding..." {
		t.Fatalf("expected Responding..., got %+v", got)
	}
}

func TestParseTranscriptLineAgentActivity(t *testing.T) {
	for _, typ := range []string{"tool_result", "tool_output"} {
		line := []byte(`{"type":"` + typ + `"}`)
		got := ParseTranscriptLine(line)
		if got == nil || got.Kind != KindAgentActivity {
			t.Fatalf("type=%s: expected agent_activity, got %+v", typ, got)
		}
	}
}

func TestParseTranscriptLineProgressLabels(t *testing.T) {
	cases := map[string]string{
		"command": "Running command...",
		"agent":   "Agent working...",
		"weird":   "Processing...",
	}
	for subtype, want := range cases {
		line := []byte(`{"type":"progress","subtype":"` + subtype + `"}`)
		got := ParseTranscriptLine(line)
		if got == nil || got.Kind != KindProgress || got.Label != want {
			t.Fatalf("subtype=%s: expected %q, got %+v", subtype, want, got)
		}
	}
}

func TestParseTranscriptLineToolCallTopLevelContent(t *testing.T) {
	line := []byte(`{"type":"assistant","content":[{"type":"tool_use","name":"Write","input":{"file_path":"/x/y.ts"}}]}`)
	got := ParseTranscriptLine(line)
	if got == nil || got.Kind != KindToolCall {
		t.Fatalf("expected tool_call, got %+v", got)
	}
	if got.Label != "Writing y.ts" {
		t.Fatalf("expected label 'Writing y.ts', got %q", got.Label)
	}
}

func TestParseTranscriptLineToolCallNestedMessageContent(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"AskUserQuestion","input":{}}]}}`)
	got := ParseTranscriptLine(line)
	if got == nil || got.Kind != KindToolCall || !got.IsUserPrompt {
		t.Fatalf("expected isUserPrompt tool_call, got %+v", got)
	}
}

func TestParseTranscriptLineMessageExtraction(t *testing.T) {
	line := []byte(`{"type":"assistant","content":[{"type":"tool_use","name":"SendMessage","input":{"type":"message","recipient":"dev-2","content":"ship it"}}]}`)
	got := ParseTranscriptLine(line)
	if got == nil || got.Kind != KindMessage {
		t.Fatalf("expected message, got %+v", got)
	}
	if got.Message.Recipient != "dev-2" || got.Message.Content != "ship it" {
		t.Fatalf("unexpected message payload: %+v", got.Message)
	}
}

func TestParseTranscriptLineBroadcastDefaultsRecipient(t *testing.T) {
	line := []byte(`{"type":"assistant","content":[{"type":"tool_use","name":"SendMessageTool","input":{"type":"broadcast","content":"standup"}}]}`)
	got := ParseTranscriptLine(line)
	if got == nil || got.Kind != KindMessage || got.Message.Recipient != "all" {
		t.Fatalf("expected broadcast recipient 'all', got %+v", got)
	}
}

func TestParseTranscriptLineMessageMissingRecipientYieldsNil(t *testing.T) {
	line := []byte(`{"type":"assistant","content":[{"type":"tool_use","name":"SendMessage","input":{"type":"message","content":"ship it"}}]}`)
	got := ParseTranscriptLine(line)
	if got != nil {
		t.Fatalf("expected nil for message missing recipient, got %+v", got)
	}
}

func TestDescribeToolActionBashPrefersDescription(t *testing.T) {
	label := DescribeToolAction("Bash", []byte(`{"description":"run tests","command":"go test ./... && echo done"}`))
	if label != "run tests" {
		t.Fatalf("expected description to win, got %q", label)
	}
}

func TestDescribeToolActionBashFallsBackToCommandHead(t *testing.T) {
	label := DescribeToolAction("Bash", []byte(`{"command":"go test ./... && echo done"}`))
	if label != "Running: go test ./..." {
		t.Fatalf("expected command head up to &&, got %q", label)
	}
}

func TestDescribeToolActionGrep(t *testing.T) {
	label := DescribeToolAction("Grep", []byte(`{"pattern":"TODO"}`))
	if label != "Searching: TODO" {
		t.Fatalf("got %q", label)
	}
}

func TestDescribeToolActionUnknownFallsThrough(t *testing.T) {
	label := DescribeToolAction("MysteryTool", nil)
	if label != "MysteryTool" {
		t.Fatalf("expected raw tool name fallback, got %q", label)
	}
}
