// Package privacy implements an optional broadcast-time scrubber for the
// WS Fan-out, adapted from the teacher's internal/session.PrivacyFilter
// (glob allow/block lists plus field masking applied "before it is
// broadcast to clients"). The teacher's filter worked over its own
// SessionState; this one works over the wire-level shapes
// internal/wsfanout actually sends (registry.SessionSummary,
// registry.SessionView, registry.Agent), since that is what leaves the
// process. A zero-value Filter is a no-op, matching the teacher's IsNoop
// short-circuit, so wiring this in costs nothing when unconfigured.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"

	"github.com/agentwatch/observer/internal/registry"
)

// Filter masks and path-filters session/agent data before it reaches a
// WebSocket client. None of this changes Registry state — it is applied
// only to the copies handed to wsfanout's wireMessage payloads.
type Filter struct {
	// MaskProjectNames replaces SessionSummary.ProjectName in sessions_list
	// payloads with a short opaque hash, so a client screen-share doesn't
	// leak repo names. A full_state payload's SessionView.Name is not
	// masked.
	MaskProjectNames bool
	// MaskWorktreePaths reduces Agent.Git.Worktree to its last path element
	// (the full path, unlike ProjectName, often reveals a full
	// home-directory layout).
	MaskWorktreePaths bool

	// AllowedSlugs/BlockedSlugs are glob patterns (filepath.Match syntax)
	// matched against a session's Slug — the closest wire-visible analogue
	// to the teacher's working-directory allowlist, since ProjectPath
	// itself never leaves the Registry (see registry.SessionSummary).
	AllowedSlugs []string
	BlockedSlugs []string
}

// IsNoop reports whether the filter does nothing, letting callers skip the
// copy-and-mutate pass entirely.
func (f *Filter) IsNoop() bool {
	if f == nil {
		return true
	}
	return !f.MaskProjectNames && !f.MaskWorktreePaths &&
		len(f.AllowedSlugs) == 0 && len(f.BlockedSlugs) == 0
}

// IsSlugAllowed reports whether a session with the given slug should be
// broadcast at all. An empty slug (not yet derived) is always allowed.
func (f *Filter) IsSlugAllowed(slug string) bool {
	if f == nil || slug == "" {
		return true
	}
	if len(f.AllowedSlugs) > 0 {
		ok := false
		for _, pattern := range f.AllowedSlugs {
			if matched, _ := filepath.Match(pattern, slug); matched {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, pattern := range f.BlockedSlugs {
		if matched, _ := filepath.Match(pattern, slug); matched {
			return false
		}
	}
	return true
}

// Summaries returns a filtered, masked copy of a sessions_list payload.
func (f *Filter) Summaries(in []registry.SessionSummary) []registry.SessionSummary {
	if f.IsNoop() {
		return in
	}
	out := make([]registry.SessionSummary, 0, len(in))
	for _, s := range in {
		if !f.IsSlugAllowed(s.Slug) {
			continue
		}
		if f.MaskProjectNames {
			s.ProjectName = shortHash(s.ProjectName)
		}
		out = append(out, s)
	}
	return out
}

// View returns a copy of a full_state payload with each agent masked as
// Agent does, or in unchanged when it is nil or the filter is a no-op. It
// does not check the session's slug against AllowedSlugs/BlockedSlugs.
func (f *Filter) View(in *registry.SessionView) *registry.SessionView {
	if f.IsNoop() || in == nil {
		return in
	}
	v := *in
	v.Agents = make([]*registry.Agent, len(in.Agents))
	for i, a := range in.Agents {
		v.Agents[i] = f.Agent(a)
	}
	return &v
}

// Agent returns a masked copy of a (for agent_added/agent_update/
// agent_removed deltas), or a unchanged if masking has nothing to do.
func (f *Filter) Agent(a *registry.Agent) *registry.Agent {
	if f.IsNoop() || a == nil || a.Git == nil || !f.MaskWorktreePaths || a.Git.Worktree == "" {
		return a
	}
	masked := *a
	gitCopy := *a.Git
	gitCopy.Worktree = filepath.Base(gitCopy.Worktree)
	masked.Git = &gitCopy
	return &masked
}

// shortHash returns a truncated SHA-256 hex digest, used in place of a
// real project name when MaskProjectNames is set.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
