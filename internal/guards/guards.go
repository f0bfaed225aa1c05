// Package guards implements the short-lived, advisory flags that coordinate
// precedence between the hook dispatcher and the transcript watcher: which
// ids were just deliberately removed, which sessions have seen a Stop hook,
// which ids a hook touched recently, and the session->team-agent address
// mapping. All state here is process-lived and cleared only by explicit
// calls or TTL expiry (see Guards.Reset).
package guards

import (
	"sync"
	"time"
)

// DefaultHookActiveWindow is the default Δ used by IsHookActive when the
// caller does not specify one explicitly.
const DefaultHookActiveWindow = 5 * time.Second

// recentlyRemovedTTL is how long an id stays "recently removed" after
// markRemoved.
const recentlyRemovedTTL = 5 * time.Minute

// Guards holds the four independently-mutable structures described in
// A single Guards instance is a process-wide singleton shared
// between the watcher and the hook dispatcher.
type Guards struct {
	mu sync.Mutex

	recentlyRemoved map[string]time.Time // id -> removal time
	stoppedSessions map[string]bool      // session id -> stopped
	hookActive      map[string]time.Time // id -> last hook timestamp
	sessionToAgent  map[string]string    // raw hook session id -> team agent id

	now func() time.Time // overridable for tests
}

// New creates an empty Guards instance.
func New() *Guards {
	return &Guards{
		recentlyRemoved: make(map[string]time.Time),
		stoppedSessions: make(map[string]bool),
		hookActive:      make(map[string]time.Time),
		sessionToAgent:  make(map[string]string),
		now:             time.Now,
	}
}

// MarkRemoved records id as recently removed. The watcher must not
// re-register id until ClearRecentlyRemoved(id) or recentlyRemovedTTL elapses.
func (g *Guards) MarkRemoved(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recentlyRemoved[id] = g.now()
}

// WasRecentlyRemoved reports whether id was marked removed within the last
// 5 minutes. Expired entries are lazily evicted.
func (g *Guards) WasRecentlyRemoved(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.recentlyRemoved[id]
	if !ok {
		return false
	}
	if g.now().Sub(ts) > recentlyRemovedTTL {
		delete(g.recentlyRemoved, id)
		return false
	}
	return true
}

// ClearRecentlyRemoved allows id to be re-registered immediately, e.g. ahead
// of a legitimate SubagentStart re-spawn.
func (g *Guards) ClearRecentlyRemoved(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.recentlyRemoved, id)
}

// MarkSessionStopped records that sid's Stop hook has fired.
func (g *Guards) MarkSessionStopped(sid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stoppedSessions[sid] = true
}

// ClearSessionStopped clears the stopped flag for sid, e.g. on
// UserPromptSubmit (new turn).
func (g *Guards) ClearSessionStopped(sid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.stoppedSessions, sid)
}

// IsSessionStopped reports whether sid's Stop hook fired and has not since
// been cleared.
func (g *Guards) IsSessionStopped(sid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stoppedSessions[sid]
}

// MarkHookActive records that a hook event touched id just now.
func (g *Guards) MarkHookActive(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hookActive[id] = g.now()
}

// IsHookActive reports whether a hook event for id was recorded within the
// last delta. A zero delta uses DefaultHookActiveWindow.
func (g *Guards) IsHookActive(id string, delta time.Duration) bool {
	if delta <= 0 {
		delta = DefaultHookActiveWindow
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.hookActive[id]
	if !ok {
		return false
	}
	return g.now().Sub(ts) <= delta
}

// RegisterSessionToAgentMapping records that hook events addressed to
// sessionID should be resolved to the team agent id.
func (g *Guards) RegisterSessionToAgentMapping(sessionID, agentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionToAgent[sessionID] = agentID
}

// ResolveAgentID returns the team agent id mapped to sessionID, or
// sessionID itself if no mapping exists.
func (g *Guards) ResolveAgentID(sessionID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if agentID, ok := g.sessionToAgent[sessionID]; ok {
		return agentID
	}
	return sessionID
}

// RemoveSessionMappings deletes any session->agent mapping for sessionID.
func (g *Guards) RemoveSessionMappings(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessionToAgent, sessionID)
}

// Reset clears all guard state. Intended for test isolation between
// scenarios.
func (g *Guards) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recentlyRemoved = make(map[string]time.Time)
	g.stoppedSessions = make(map[string]bool)
	g.hookActive = make(map[string]time.Time)
	g.sessionToAgent = make(map[string]string)
}

// SetClock overrides the time source used for TTL calculations. Test-only.
func (g *Guards) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}
