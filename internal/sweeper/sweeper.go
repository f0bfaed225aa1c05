// Package sweeper implements the §4.6 Staleness Sweeper: a 15s periodic
// tick that ages out idle agents, expires long-dead sessions, removes
// orphaned subagents, and re-picks the most interesting session on
// failover. It holds no entity state of its own — only ids, read back from
// the Registry and the Watcher's tracked-file snapshot, exactly as spec.md
// §4 describes the ownership split.
package sweeper

import (
	"context"
	"time"

	"github.com/agentwatch/observer/internal/guards"
	"github.com/agentwatch/observer/internal/registry"
	"github.com/agentwatch/observer/internal/watcher"
)

// tickInterval is the sweeper's period, per spec §4.6 ("Runs every 15 s").
const tickInterval = 15 * time.Second

// idleThreshold is how long an agent may sit without activity before it's
// flipped idle/done and its waiting flag cleared.
const idleThreshold = 60 * time.Second

// subagentRemovalThreshold is how long a subagent may stay idle before it is
// removed outright.
const subagentRemovalThreshold = 300 * time.Second

// sessionExpiryThreshold is how long a non-subagent session may stay idle
// before it is expired (agent + session removed).
const sessionExpiryThreshold = 3600 * time.Second

// catchAllStaleThreshold is the margin beyond hook-active freshness used by
// the orphan-subagent catch-all sweep.
const catchAllStaleThreshold = 5 * time.Minute

// TrackedFileSource supplies the sweeper with a snapshot of tracked files
// and lets it drop entries once the corresponding agent/session is gone.
// *watcher.Watcher satisfies this.
type TrackedFileSource interface {
	Snapshot() []watcher.TrackedSnapshot
	Drop(path string)
}

// ProcessCheck optionally corroborates that the host process behind
// projectPath is still alive before the sweeper expires its session on the
// 1-hour boundary. Off by default (nil); see gopsutil-backed implementation
// in internal/sweeper/liveness.go.
type ProcessCheck func(projectPath string) bool

// Thresholds holds the sweeper's timing knobs. The zero value is invalid;
// use DefaultThresholds, which matches spec.md §4.6 exactly, and override
// only the fields internal/config exposes for live reload.
type Thresholds struct {
	Tick            time.Duration
	Idle            time.Duration
	SubagentRemoval time.Duration
	SessionExpiry   time.Duration
	CatchAllStale   time.Duration
}

// DefaultThresholds returns spec.md §4.6's literal timing constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Tick:            tickInterval,
		Idle:            idleThreshold,
		SubagentRemoval: subagentRemovalThreshold,
		SessionExpiry:   sessionExpiryThreshold,
		CatchAllStale:   catchAllStaleThreshold,
	}
}

// Sweeper periodically reconciles staleness across the Registry.
type Sweeper struct {
	reg    *registry.Registry
	guards *guards.Guards
	files  TrackedFileSource
	now    func() time.Time

	thresholds Thresholds

	// ProcessCheck, when non-nil, is consulted before expiring a session on
	// the 1-hour boundary; a live process postpones expiry.
	ProcessCheck ProcessCheck
}

// New creates a Sweeper using spec.md's default thresholds. files supplies
// the watcher's tracked-file snapshot.
func New(reg *registry.Registry, g *guards.Guards, files TrackedFileSource) *Sweeper {
	return &Sweeper{reg: reg, guards: g, files: files, now: time.Now, thresholds: DefaultThresholds()}
}

// SetThresholds overrides the sweeper's timing knobs, e.g. from
// internal/config on startup or SIGHUP reload. Zero fields are left at
// their current value rather than disabling that sweep entirely.
func (s *Sweeper) SetThresholds(t Thresholds) {
	if t.Tick > 0 {
		s.thresholds.Tick = t.Tick
	}
	if t.Idle > 0 {
		s.thresholds.Idle = t.Idle
	}
	if t.SubagentRemoval > 0 {
		s.thresholds.SubagentRemoval = t.SubagentRemoval
	}
	if t.SessionExpiry > 0 {
		s.thresholds.SessionExpiry = t.SessionExpiry
	}
	if t.CatchAllStale > 0 {
		s.thresholds.CatchAllStale = t.CatchAllStale
	}
}

// Start runs Tick every s.thresholds.Tick until ctx is cancelled. Intended
// to be run as a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	t := time.NewTicker(s.thresholds.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Tick()
		}
	}
}

// Tick runs one staleness pass.
func (s *Sweeper) Tick() {
	s.sweepTrackedFiles()
	s.sweepUntrackedSessions()
	s.sweepOrphanSubagents()
}

func (s *Sweeper) sweepTrackedFiles() {
	selected := s.reg.SelectedSessionID()
	for _, tf := range s.files.Snapshot() {
		sess, sessOK := s.reg.GetSession(tf.SessionID)
		if !sessOK && tf.SessionID != selected {
			s.files.Drop(tf.Path)
			continue
		}

		effective := tf.LastActivity
		if sessOK && sess.LastActivity.After(effective) {
			effective = sess.LastActivity
		}
		idle := s.now().Sub(effective)

		if idle < s.thresholds.Idle {
			continue
		}

		if tf.IsAcompact {
			s.files.Drop(tf.Path)
			continue
		}

		targetID := tf.SessionID
		if tf.IsSubagent {
			targetID = tf.AgentID
		}

		if a, ok := s.reg.GetAgent(targetID); ok {
			s.reg.SetAgentWaitingById(targetID, false, "", "", "")
			if a.Status == registry.StatusWorking {
				if tf.IsSubagent {
					s.reg.UpdateAgentActivityById(targetID, registry.StatusDone, "Done", "")
				} else {
					s.reg.UpdateAgentActivityById(targetID, registry.StatusIdle, "", "")
				}
			}
		}

		if tf.IsSubagent {
			if idle >= s.thresholds.SubagentRemoval {
				s.reg.RemoveAgent(targetID) // marks recentlyRemoved too
				s.files.Drop(tf.Path)
			}
			continue
		}

		if idle >= s.thresholds.SessionExpiry {
			if s.ProcessCheck != nil && sessOK && s.ProcessCheck(sess.ProjectPath) {
				continue // host process still alive; postpone expiry
			}
			wasSelected := selected == tf.SessionID
			s.reg.RemoveAgent(tf.SessionID)
			s.reg.RemoveSession(tf.SessionID)
			s.files.Drop(tf.Path)
			if wasSelected {
				s.reg.SelectMostInterestingSession()
			}
		}
	}
}

// sweepUntrackedSessions flips team-member agents (which have no JSONL
// tracking of their own — they're registered purely via hooks) to idle once
// their session has been quiet for idleThreshold.
func (s *Sweeper) sweepUntrackedSessions() {
	now := s.now()
	for _, sess := range s.reg.AllSessions() {
		if !sess.IsTeam {
			continue
		}
		if now.Sub(sess.LastActivity) < s.thresholds.Idle {
			continue
		}
		for _, a := range s.reg.AllAgents() {
			if a.TeamName != sess.TeamName {
				continue
			}
			if a.Status == registry.StatusWorking {
				s.reg.UpdateAgentActivityById(a.ID, registry.StatusIdle, "", "")
			}
			s.reg.SetAgentWaitingById(a.ID, false, "", "", "")
		}
	}
}

// sweepOrphanSubagents is the catch-all: any subagent whose parent session
// has been both quiet (lastActivity) and un-hooked (hook-active window)
// for longer than catchAllStaleThreshold gets removed, even if the watcher
// never tracked (or already dropped) its transcript file.
func (s *Sweeper) sweepOrphanSubagents() {
	now := s.now()
	for _, a := range s.reg.AllAgents() {
		if !a.IsSubagent || a.ParentAgentID == "" {
			continue
		}
		parentSession, ok := s.reg.GetSession(a.ParentAgentID)
		if !ok {
			continue
		}
		if now.Sub(parentSession.LastActivity) <= s.thresholds.CatchAllStale {
			continue
		}
		if s.guards.IsHookActive(a.ParentAgentID, s.thresholds.CatchAllStale) {
			continue
		}
		s.reg.RemoveAgent(a.ID)
	}
}
