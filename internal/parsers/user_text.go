package parsers

import "encoding/json"

// FirstUserMessageText extracts the textual content of a raw JSONL line
// whose type is "user", handling both the plain-string and block-array
// content shapes. Used by the watcher to derive a subagent's display name
// from its first user message.
func FirstUserMessageText(raw []byte) (string, bool) {
	var line struct {
		Type    string `json:"type"`
		Message *struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &line); err != nil {
		return "", false
	}
	if line.Type != "user" || line.Message == nil || len(line.Message.Content) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(line.Message.Content, &s); err == nil && s != "" {
		return s, true
	}

	if blocks, ok := decodeBlocks(line.Message.Content); ok {
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				return b.Text, true
			}
		}
	}
	return "", false
}
