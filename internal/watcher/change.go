package watcher

import (
	"crypto/sha1"
	"encoding/hex"
	"os"

	"github.com/agentwatch/observer/internal/parsers"
	"github.com/agentwatch/observer/internal/registry"
)

// handleChange processes the bytes appended to path since it was last read.
// Messages are always recorded; status/activity mutations are suppressed
// while a hook event is actively driving the same agent, or once the
// governing session has seen its Stop hook — the watcher never fights the
// dispatcher for authority over the same agent.
func (w *Watcher) handleChange(path string) {
	w.mu.Lock()
	tf, ok := w.tracked[path]
	initial := w.initialScan
	w.mu.Unlock()

	if !ok {
		w.handleAdd(path, false)
		return
	}
	if initial {
		return
	}

	lines, newOffset, err := parsers.ReadNewLines(path, tf.offset)
	if err != nil {
		w.health.recordReadError(err)
		return
	}

	targetID := tf.sessionID
	switch {
	case tf.isAcompact:
		targetID = tf.parentSessionID
	case tf.isSubagent:
		targetID = tf.agentID
	}

	stopped := w.guards.IsSessionStopped(tf.sessionID)
	hookActive := w.guards.IsHookActive(targetID, 0)

	meaningful := false
	for _, line := range lines {
		parsed := parsers.ParseTranscriptLine([]byte(line))
		if parsed == nil {
			continue
		}

		if parsed.Kind == parsers.KindMessage {
			meaningful = true
			w.recordMessage(path, line, targetID, parsed.Message)
			continue
		}

		if stopped || hookActive {
			continue
		}

		switch parsed.Kind {
		case parsers.KindCompact, parsers.KindThinking:
			meaningful = true
			w.reg.UpdateAgentActivityById(targetID, registry.StatusWorking, parsed.Label, "")
		case parsers.KindToolCall:
			meaningful = true
			w.reg.UpdateAgentActivityById(targetID, registry.StatusWorking, parsed.Label, "")
			if parsed.IsUserPrompt {
				w.reg.SetAgentWaitingById(targetID, true, parsed.Label, "", waitingTypeForTool(parsed.ToolName))
			}
		case parsers.KindProgress:
			meaningful = true
			w.reg.UpdateAgentActivityById(targetID, registry.StatusWorking, "", "")
			w.reg.SetAgentWaitingById(targetID, false, "", "", "")
		case parsers.KindAgentActivity:
			meaningful = true
			w.reg.SetAgentWaitingById(targetID, false, "", "", "")
		case parsers.KindTurnEnd:
			meaningful = true
			w.reg.SetAgentWaitingById(targetID, false, "", "", "")
			w.reg.UpdateAgentActivityById(targetID, registry.StatusIdle, "", "")
		}
	}

	w.mu.Lock()
	tf.offset = newOffset
	w.mu.Unlock()

	if meaningful {
		if info, err := os.Stat(path); err == nil && w.now().Sub(info.ModTime()) < recentWriteWindow {
			w.mu.Lock()
			tf.lastActivity = w.now()
			w.mu.Unlock()
			w.reg.UpdateSessionActivity(tf.sessionID)
		}
	}
}

func (w *Watcher) recordMessage(path, line, targetID string, msg *parsers.ParsedMessage) {
	senderName := targetID
	if a, ok := w.reg.GetAgent(targetID); ok {
		senderName = a.Name
	}
	recipient := msg.Recipient
	if msg.Kind == "broadcast" {
		recipient = "team (broadcast)"
	}
	w.reg.AddMessage(&registry.Message{
		ID:        lineDigest(path, line),
		From:      senderName,
		To:        recipient,
		Content:   registry.TruncateContent(msg.Content),
		Timestamp: w.now(),
	})
}

// lineDigest derives a stable message id from its source path and raw
// content so replaying the same line twice (e.g. after a truncated read)
// produces the same id and de-dupes in the Registry.
func lineDigest(path, line string) string {
	h := sha1.Sum([]byte(path + "\x00" + line))
	return hex.EncodeToString(h[:])
}
