package hooks

import (
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/agentwatch/observer/internal/guards"
	"github.com/agentwatch/observer/internal/parsers"
	"github.com/agentwatch/observer/internal/registry"
)

// subagentStopDelay is how long after SubagentStop a subagent's agent_removed
// is scheduled, giving clients a moment to render the "Done" state.
const subagentStopDelay = 15 * time.Second

// Dispatcher is the §4.4 Hook Dispatcher: it owns no entity state itself,
// only the short-lived bookkeeping (pending Task→SubagentStart correlation,
// first-seen cwd per session) needed to translate hook callbacks into
// Registry/Guards calls.
type Dispatcher struct {
	reg    *registry.Registry
	guards *guards.Guards
	exec   parsers.ExecFunc

	mu        sync.Mutex
	cwdSeen   map[string]string // sessionID -> first-seen cwd
	spawns    *pendingSpawns
	scheduled map[string]*time.Timer // agentID -> pending delayed removal

	now func() time.Time
}

// New creates a Dispatcher bound to reg/g, using exec for the
// fire-and-forget git probes it kicks off on first contact with a cwd.
func New(reg *registry.Registry, g *guards.Guards, exec parsers.ExecFunc) *Dispatcher {
	return &Dispatcher{
		reg:       reg,
		guards:    g,
		exec:      exec,
		cwdSeen:   make(map[string]string),
		spawns:    newPendingSpawns(),
		scheduled: make(map[string]*time.Timer),
		now:       time.Now,
	}
}

// gitMutationCmd matches a Bash command that plausibly changed the
// repository's ahead/behind/dirty state, per spec §4.4's PostToolUse rule.
var gitMutationCmd = regexp.MustCompile(`^\s*(git\s+(push|commit|pull|merge|rebase|checkout|switch)\b|gh\s+pr\b)`)

// Dispatch is the preamble (§4.4 steps 1-8) plus the per-event dispatch
// table. Validation has already happened in ServeHTTP; Dispatch assumes e is
// well-formed.
func (d *Dispatcher) Dispatch(e *Event) {
	agentID := d.guards.ResolveAgentID(e.SessionID)

	d.reg.UpdateSessionActivity(e.SessionID)
	d.guards.MarkHookActive(agentID)

	if a, ok := d.reg.GetAgent(agentID); ok && a.TeamName != "" {
		d.reg.UpdateSessionActivity("team:" + a.TeamName)
	}

	firstSeenCwd := d.recordCwd(e.SessionID, e.Cwd)

	if e.HookEventName != SubagentStart && e.HookEventName != SubagentStop {
		d.autoRegister(e, agentID)
	}

	if firstSeenCwd && e.Cwd != "" {
		go d.probeGit(agentID, e.Cwd)
	}

	if e.PermissionMode == "plan" {
		if a, ok := d.reg.GetAgent(agentID); ok && !a.WaitingForInput {
			d.reg.SetAgentWaitingById(agentID, true, "", "", registry.WaitingPlan)
		}
	}

	switch e.HookEventName {
	case PreToolUse:
		d.onPreToolUse(e, agentID)
	case PostToolUse:
		d.onPostToolUse(e, agentID)
	case PostToolUseFailure:
		d.onPostToolUseFailure(e, agentID)
	case PermissionRequest:
		d.reg.SetAgentWaitingById(agentID, true, parsers.DescribeToolAction(e.ToolName, e.ToolInput), "", registry.WaitingPermission)
	case SubagentStart:
		d.onSubagentStart(e)
	case SubagentStop:
		d.onSubagentStop(e, agentID)
	case PreCompact:
		d.reg.SetAgentWaitingById(agentID, false, "", "", "")
		d.reg.UpdateAgentActivityById(agentID, registry.StatusWorking, "Compacting conversation...", "")
	case Stop:
		d.reg.SetAgentWaitingById(agentID, false, "", "", "")
		d.reg.UpdateAgentActivityById(agentID, registry.StatusIdle, "", "")
		d.guards.MarkSessionStopped(e.SessionID)
	case SessionStart:
		log.Printf("[hooks] session start: %s", e.SessionID)
	case SessionEnd:
		log.Printf("[hooks] session end: %s", e.SessionID)
		d.reg.UpdateAgentActivityById(agentID, registry.StatusIdle, "", "")
	case UserPromptSubmit:
		d.guards.ClearSessionStopped(e.SessionID)
		d.reg.SetAgentWaitingById(agentID, false, "", "", "")
		d.reg.UpdateAgentActivityById(agentID, registry.StatusWorking, "Processing prompt...", "")
	case TeammateIdle:
		d.onTeammateIdle(e)
	case TaskCompleted:
		d.onTaskCompleted(e)
	case Notification:
		d.onNotification(e, agentID)
	}
}

// recordCwd remembers the first cwd seen for sessionID, reporting whether
// this call was the first to record one.
func (d *Dispatcher) recordCwd(sessionID, cwd string) bool {
	if cwd == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cwdSeen[sessionID]; ok {
		return false
	}
	d.cwdSeen[sessionID] = cwd
	return true
}

// autoRegister creates a session+agent (or just an agent, if the session
// already exists) the first time a non-subagent hook event arrives for a
// session the Registry has never seen, per spec §4.4 step 6.
func (d *Dispatcher) autoRegister(e *Event, agentID string) {
	if _, ok := d.reg.GetAgent(agentID); ok {
		return
	}
	if s, ok := d.reg.GetSession(e.SessionID); ok {
		name := s.Slug
		if name == "" {
			name = s.ProjectName
		}
		d.reg.RegisterAgent(&registry.Agent{ID: agentID, Name: name, Role: registry.RoleImplementer, Status: registry.StatusWorking, SessionID: e.SessionID})
		d.reg.UpdateAgent(&registry.Agent{ID: agentID, Name: name, Role: registry.RoleImplementer, Status: registry.StatusWorking, SessionID: e.SessionID})
		return
	}
	if e.Cwd == "" {
		return
	}
	projectName := lastPathSegment(e.Cwd)
	d.reg.AddSession(&registry.Session{SessionID: e.SessionID, ProjectName: projectName, ProjectPath: e.Cwd})
	d.reg.UpdateAgent(&registry.Agent{ID: agentID, Name: projectName, Role: registry.RoleImplementer, Status: registry.StatusWorking, SessionID: e.SessionID})
}

func lastPathSegment(p string) string {
	i := len(p) - 1
	for i >= 0 && p[i] == '/' {
		i--
	}
	end := i + 1
	for i >= 0 && p[i] != '/' {
		i--
	}
	if i+1 > end {
		return ""
	}
	return p[i+1 : end]
}

// probeGit runs the git worktree/status probes fire-and-forget and applies
// the result to agentID, per spec §5 "Git probes are fire-and-forget."
func (d *Dispatcher) probeGit(agentID, cwd string) {
	wt := parsers.DetectGitWorktree(cwd, d.exec)
	if wt.Branch == "" {
		return
	}
	branch := wt.Branch
	worktree := wt.Worktree
	u := registry.GitUpdate{Branch: &branch, Worktree: &worktree}
	if st, err := parsers.DetectGitStatus(cwd, d.exec); err == nil {
		u.Ahead, u.Behind, u.HasUpstream, u.Dirty = &st.Ahead, &st.Behind, &st.HasUpstream, &st.Dirty
	}
	d.reg.UpdateAgentGitInfo(agentID, u)
}
