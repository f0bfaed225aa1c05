package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/agentwatch/observer/internal/guards"
)

// workingDebounce is the coalescing window for consecutive `working` status
// broadcasts on the same agent id.
const workingDebounce = 200 * time.Millisecond

// Registry is the single source of truth for sessions, agents, tasks, and
// messages. All mutation operations are serialized through mu; subscriber
// callbacks run synchronously while mu is held and must not call back into
// the Registry (see Subscriber's doc comment).
type Registry struct {
	mu sync.Mutex

	guards *guards.Guards
	now    func() time.Time

	allAgents  map[string]*Agent
	sessions   map[string]*Session
	tasks      map[string]*Task
	messages   []*Message
	messageIDs map[string]bool

	selectedSessionID string

	// pendingTimers holds the in-flight 200ms coalescing timer for an
	// agent id currently in the `working` debounce window.
	pendingTimers map[string]*time.Timer

	subs      map[int]Subscriber
	nextSubID int
}

// New creates an empty Registry bound to g, the shared Guards instance.
func New(g *guards.Guards) *Registry {
	return &Registry{
		guards:        g,
		now:           time.Now,
		allAgents:     make(map[string]*Agent),
		sessions:      make(map[string]*Session),
		tasks:         make(map[string]*Task),
		messageIDs:    make(map[string]bool),
		pendingTimers: make(map[string]*time.Timer),
		subs:          make(map[int]Subscriber),
	}
}

// SetClock overrides the time source. Test-only.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Subscribe registers fn to receive every emitted Delta and returns an id
// for later Unsubscribe.
func (r *Registry) Subscribe(fn Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSubID++
	id := r.nextSubID
	r.subs[id] = fn
	return id
}

// Unsubscribe removes a previously-registered subscriber.
func (r *Registry) Unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// emitLocked notifies every subscriber. Callers must hold r.mu.
func (r *Registry) emitLocked(d Delta) {
	for _, fn := range r.subs {
		fn(d)
	}
}

// governingSessionID returns the session id a delta about this agent
// should be tagged with: the agent's own solo session, its parent's solo
// session if it's a subagent, or its team's synthetic "team:<name>" session.
func (r *Registry) governingSessionID(a *Agent) string {
	if a.SessionID != "" {
		return a.SessionID
	}
	if a.IsSubagent && a.ParentAgentID != "" {
		return a.ParentAgentID
	}
	if a.TeamName != "" {
		return "team:" + a.TeamName
	}
	return ""
}

// RegisterAgent inserts a into allAgents only, respecting the recentlyRemoved
// guard. It never writes into displayed state and never
// emits — it exists so the watcher/dispatcher can record an agent it has
// just discovered without it appearing in any view until a real update
// arrives via UpdateAgent.
func (r *Registry) RegisterAgent(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.guards.WasRecentlyRemoved(a.ID) {
		return
	}
	c := a.Clone()
	c.UpdatedAt = r.now()
	r.allAgents[a.ID] = c
}

// UpdateAgent inserts or updates a in allAgents, respecting the
// recentlyRemoved guard, and emits agent_added (on first insert) or
// agent_update (on change) tagged with the agent's governing session.
//
// Per-client view filtering (which agents a given WebSocket client actually
// sees) is the fan-out layer's job via the §4.2.1 membership filter — every
// mutation is emitted here regardless of the server-global selection, since
// per-client selections are independent of it.
func (r *Registry) UpdateAgent(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.guards.WasRecentlyRemoved(a.ID) {
		return
	}
	_, existed := r.allAgents[a.ID]
	c := a.Clone()
	c.UpdatedAt = r.now()
	r.allAgents[a.ID] = c

	sid := r.governingSessionID(c)
	if sid == "" {
		return
	}
	dt := DeltaAgentUpdate
	if !existed {
		dt = DeltaAgentAdded
	}
	r.emitLocked(Delta{Type: dt, SessionID: sid, Agent: c.Clone()})
}

// RemoveAgent deletes id from allAgents, marks it recentlyRemoved, cancels
// any pending working-status debounce, and emits agent_removed.
func (r *Registry) RemoveAgent(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allAgents[id]
	delete(r.allAgents, id)
	r.guards.MarkRemoved(id)
	if t, ok2 := r.pendingTimers[id]; ok2 {
		t.Stop()
		delete(r.pendingTimers, id)
	}
	if !ok {
		return
	}
	sid := r.governingSessionID(a)
	if sid == "" {
		return
	}
	r.emitLocked(Delta{Type: DeltaAgentRemoved, SessionID: sid, Agent: a.Clone()})
}

// UpdateAgentActivityById sets status/currentAction/actionContext on id.
// On status=working with a non-empty action it appends to recentActions.
// Broadcast policy: idle/done flush immediately and
// cancel any pending working-debounce for id; consecutive working updates
// coalesce within a 200ms window, latest wins.
func (r *Registry) UpdateAgentActivityById(id string, status Status, action, context string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allAgents[id]
	if !ok {
		return
	}
	a.Status = status
	a.CurrentAction = action
	a.ActionContext = context
	if status == StatusWorking && action != "" {
		a.appendRecentAction(action, r.now())
	}

	if status == StatusIdle || status == StatusDone {
		a.WaitingForInput = false
		a.WaitingType = ""
		if t, ok2 := r.pendingTimers[id]; ok2 {
			t.Stop()
			delete(r.pendingTimers, id)
		}
		r.emitActivityLocked(a)
		return
	}

	// working: coalesce within workingDebounce, latest wins.
	if _, scheduled := r.pendingTimers[id]; scheduled {
		return
	}
	r.pendingTimers[id] = time.AfterFunc(workingDebounce, func() { r.flushWorkingBroadcast(id) })
}

func (r *Registry) flushWorkingBroadcast(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pendingTimers, id)
	a, ok := r.allAgents[id]
	if !ok || a.Status != StatusWorking {
		// idle/done already flushed directly and cancelled us; or the
		// agent was removed in the interim.
		return
	}
	r.emitActivityLocked(a)
}

func (r *Registry) emitActivityLocked(a *Agent) {
	sid := r.governingSessionID(a)
	if sid == "" {
		return
	}
	r.emitLocked(Delta{Type: DeltaAgentUpdate, SessionID: sid, Agent: a.Clone()})
}

// SetAgentWaitingById flips waitingForInput and optionally updates
// action/context/waitingType.
func (r *Registry) SetAgentWaitingById(id string, waiting bool, action, context string, wt WaitingType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allAgents[id]
	if !ok {
		return
	}
	a.WaitingForInput = waiting
	if action != "" {
		a.CurrentAction = action
	}
	if context != "" {
		a.ActionContext = context
	}
	if waiting {
		a.WaitingType = wt
	} else {
		a.WaitingType = ""
	}
	r.emitActivityLocked(a)
}

// GitUpdate carries the optional fields UpdateAgentGitInfo merges; a nil
// field leaves the corresponding GitInfo field untouched.
type GitUpdate struct {
	Branch      *string
	Worktree    *string
	Ahead       *int
	Behind      *int
	HasUpstream *bool
	Dirty       *bool
}

// UpdateAgentGitInfo merges the non-nil fields of u into id's git info.
func (r *Registry) UpdateAgentGitInfo(id string, u GitUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allAgents[id]
	if !ok {
		return
	}
	if a.Git == nil {
		a.Git = &GitInfo{}
	}
	if u.Branch != nil {
		a.Git.Branch = *u.Branch
	}
	if u.Worktree != nil {
		a.Git.Worktree = *u.Worktree
	}
	if u.Ahead != nil {
		a.Git.Ahead = *u.Ahead
	}
	if u.Behind != nil {
		a.Git.Behind = *u.Behind
	}
	if u.HasUpstream != nil {
		a.Git.HasUpstream = *u.HasUpstream
	}
	if u.Dirty != nil {
		a.Git.Dirty = *u.Dirty
	}
	r.emitActivityLocked(a)
}

// SetAgentCurrentTask records id's active task.
func (r *Registry) SetAgentCurrentTask(id, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allAgents[id]
	if !ok {
		return
	}
	a.CurrentTaskID = taskID
	r.emitActivityLocked(a)
}

// hasInProgressTaskLocked reports whether owner currently owns any
// in_progress task.
func (r *Registry) hasInProgressTaskLocked(owner string) bool {
	for _, t := range r.tasks {
		if t.Owner == owner && t.Status == TaskInProgress {
			return true
		}
	}
	return false
}

// UpdateTask upserts t. On transition to completed with an owner, the
// owner's tasksCompleted is incremented and an agent_update is emitted for
// it. On an owner change while the prior owner is working, the prior owner
// is flipped to idle if it no longer owns any in_progress task, and an
// agent_update is emitted for that too — mirroring ReconcileAgentStatuses,
// so a client never sees a task_update imply an agent change it wasn't
// actually told about.
func (r *Registry) UpdateTask(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, existed := r.tasks[t.ID]
	var prevOwner string
	var prevStatus TaskStatus
	if existed {
		prevOwner = prev.Owner
		prevStatus = prev.Status
	}

	c := t.Clone()
	r.tasks[t.ID] = c

	if c.Status == TaskCompleted && prevStatus != TaskCompleted && c.Owner != "" {
		if ag, ok := r.allAgents[c.Owner]; ok {
			ag.TasksCompleted++
			r.emitActivityLocked(ag)
		}
	}

	if existed && prevOwner != "" && prevOwner != c.Owner {
		if ag, ok := r.allAgents[prevOwner]; ok && ag.Status == StatusWorking {
			if !r.hasInProgressTaskLocked(prevOwner) {
				ag.Status = StatusIdle
				ag.CurrentAction = ""
				r.emitActivityLocked(ag)
			}
		}
	}

	r.emitLocked(Delta{Type: DeltaTaskUpdate, SessionID: "team:" + c.TeamName, Task: c.Clone()})
}

// RemoveTask deletes id. Clients are told via a task_update carrying the
// task marked completed, so a removal reads the same as "finished" on the
// wire rather than requiring a distinct delta type.
func (r *Registry) RemoveTask(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return
	}
	delete(r.tasks, id)
	removed := t.Clone()
	removed.Status = TaskCompleted
	r.emitLocked(Delta{Type: DeltaTaskUpdate, SessionID: "team:" + t.TeamName, Task: removed})
}

// AddMessage records m, deduplicated by id and bounded to the most recent
// messageLogCap entries.
func (r *Registry) AddMessage(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messageIDs[m.ID] {
		return
	}
	c := *m
	c.Content = TruncateContent(m.Content)
	r.messageIDs[c.ID] = true
	r.messages = append(r.messages, &c)
	if len(r.messages) > messageLogCap {
		evicted := r.messages[0]
		r.messages = r.messages[1:]
		delete(r.messageIDs, evicted.ID)
	}
	out := c
	r.emitLocked(Delta{Type: DeltaNewMessage, Message: &out})
}

// UpdateSessionActivity bumps sid's lastActivity if sid is known. It is a
// no-op for unknown sessions — creation happens explicitly via AddSession.
func (r *Registry) UpdateSessionActivity(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	if !ok {
		return
	}
	s.LastActivity = r.now()
}

// AddSession inserts s, auto-selecting it if no session is currently
// selected or if s is fresher than the current selection. Emits
// session_started always, and either a full_state+sessions_list pair (on
// selection change) or a sessions_list broadcast alone.
func (r *Registry) AddSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := s.Clone()
	if c.LastActivity.IsZero() {
		c.LastActivity = r.now()
	}
	r.sessions[c.SessionID] = c
	r.emitLocked(Delta{Type: DeltaSessionStarted, SessionID: c.SessionID})

	shouldSelect := true
	if cur, ok := r.sessions[r.selectedSessionID]; ok {
		shouldSelect = c.LastActivity.After(cur.LastActivity)
	}
	if shouldSelect {
		r.selectSessionLocked(c.SessionID)
		return
	}
	r.emitLocked(Delta{Type: DeltaSessionsList, Sessions: r.buildSessionsListLocked()})
}

func (r *Registry) selectSessionLocked(sid string) {
	r.selectedSessionID = sid
	view := r.buildViewLocked(sid)
	r.emitLocked(Delta{Type: DeltaFullState, SessionID: sid, View: view})
	r.emitLocked(Delta{Type: DeltaSessionsList, Sessions: r.buildSessionsListLocked()})
}

// SelectSession switches the server-global displayed session to sid and
// broadcasts full_state and sessions_list. A no-op if sid is unknown.
func (r *Registry) SelectSession(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return
	}
	r.selectSessionLocked(sid)
}

// RemoveSession deletes sid, clears its guard mappings, clears the global
// selection if sid was selected, and emits session_ended + sessions_list.
func (r *Registry) RemoveSession(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return
	}
	delete(r.sessions, sid)
	r.guards.RemoveSessionMappings(sid)
	if r.selectedSessionID == sid {
		r.selectedSessionID = ""
	}
	r.emitLocked(Delta{Type: DeltaSessionEnded, SessionID: sid})
	r.emitLocked(Delta{Type: DeltaSessionsList, Sessions: r.buildSessionsListLocked()})
}

// ReconcileAgentStatuses scans tasks: any agent owning an in_progress task
// becomes working; any working agent with no in_progress task becomes idle
// with a cleared action.
func (r *Registry) ReconcileAgentStatuses() {
	r.mu.Lock()
	defer r.mu.Unlock()
	inProgress := make(map[string]bool)
	for _, t := range r.tasks {
		if t.Status == TaskInProgress && t.Owner != "" {
			inProgress[t.Owner] = true
		}
	}
	for id, a := range r.allAgents {
		switch {
		case inProgress[id] && a.Status != StatusWorking:
			a.Status = StatusWorking
			r.emitActivityLocked(a)
		case !inProgress[id] && a.Status == StatusWorking:
			a.Status = StatusIdle
			a.CurrentAction = ""
			r.emitActivityLocked(a)
		}
	}
}

// SelectMostInterestingSession picks the session with the most recent
// lastActivity and selects it (used by the sweeper's failover path).
func (r *Registry) SelectMostInterestingSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *Session
	for _, s := range r.sessions {
		if best == nil || s.LastActivity.After(best.LastActivity) {
			best = s
		}
	}
	if best != nil {
		r.selectSessionLocked(best.SessionID)
	}
}

// isMemberOfLocked implements the §4.2.1 single membership filter. Callers
// must hold r.mu.
func (r *Registry) isMemberOfLocked(a *Agent, sid string) bool {
	s, ok := r.sessions[sid]
	if !ok {
		return false
	}
	if !s.IsTeam {
		if a.ID == s.SessionID {
			return true
		}
		return a.IsSubagent && a.ParentAgentID == s.SessionID
	}
	for _, other := range r.sessions {
		if !other.IsTeam && other.SessionID == a.ID {
			return false
		}
	}
	return true
}

func (r *Registry) membersOfLocked(sid string) []*Agent {
	if _, ok := r.sessions[sid]; !ok {
		return nil
	}
	var out []*Agent
	for _, a := range r.allAgents {
		if r.isMemberOfLocked(a, sid) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MembersOf returns the agents visible for sid per the §4.2.1 filter.
func (r *Registry) MembersOf(sid string) []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersOfLocked(sid)
}

// IsMemberOf reports whether agent a (a snapshot, e.g. from a Delta) is
// visible for session sid. Exported for the fan-out layer's per-client
// delta filtering, which must reuse this single function
// rather than re-deriving membership.
func (r *Registry) IsMemberOf(a *Agent, sid string) bool {
	if a == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isMemberOfLocked(a, sid)
}

// HasWaitingAgent reports whether any member of sid has waitingForInput
// set, used by the fan-out layer's on-connect default-session heuristic.
func (r *Registry) HasWaitingAgent(sid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.membersOfLocked(sid) {
		if a.WaitingForInput {
			return true
		}
	}
	return false
}

func (r *Registry) buildViewLocked(sid string) *SessionView {
	s, ok := r.sessions[sid]
	if !ok {
		return &SessionView{SessionID: sid}
	}
	members := r.membersOfLocked(sid)
	var tasks []*Task
	if s.IsTeam {
		for _, t := range r.tasks {
			if t.TeamName == s.TeamName {
				tasks = append(tasks, t.Clone())
			}
		}
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	}
	msgs := make([]*Message, len(r.messages))
	for i, m := range r.messages {
		c := *m
		msgs[i] = &c
	}
	name := s.ProjectName
	if s.IsTeam {
		name = s.TeamName
	}
	return &SessionView{SessionID: sid, Name: name, IsTeam: s.IsTeam, Agents: members, Tasks: tasks, Messages: msgs}
}

// GetView materializes the full_state payload for sid.
func (r *Registry) GetView(sid string) *SessionView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buildViewLocked(sid)
}

func (r *Registry) buildSessionsListLocked() []SessionSummary {
	list := make([]SessionSummary, 0, len(r.sessions))
	for id, s := range r.sessions {
		list = append(list, SessionSummary{
			SessionID:    id,
			ProjectName:  s.ProjectName,
			Slug:         s.Slug,
			TeamName:     s.TeamName,
			IsTeam:       s.IsTeam,
			LastActivity: s.LastActivity,
			AgentCount:   len(r.membersOfLocked(id)),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LastActivity.After(list[j].LastActivity) })
	return list
}

// BuildSessionsList returns all known sessions sorted by lastActivity desc.
func (r *Registry) BuildSessionsList() []SessionSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buildSessionsListLocked()
}

// GetAgent returns a clone of the agent with id, if known.
func (r *Registry) GetAgent(id string) (*Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allAgents[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// GetSession returns a clone of the session with id, if known.
func (r *Registry) GetSession(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// GetTask returns a clone of the task with id, if known.
func (r *Registry) GetTask(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// SelectedSessionID returns the server-global currently-selected session id,
// or "" if none is selected.
func (r *Registry) SelectedSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectedSessionID
}
