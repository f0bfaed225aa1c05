package registry

// FindAgentIDByName resolves a display name to an agent id. Its one caller
// is the TeammateIdle hook, whose teammate_name carries a name instead of
// an id. When several agents share the name, which of their ids is
// returned is not defined (allAgents is a map).
func (r *Registry) FindAgentIDByName(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.allAgents {
		if a.Name == name {
			return id, true
		}
	}
	return "", false
}

// AgentsByTeam returns every agent whose TeamName equals team, used by
// TeamDelete to clear a disbanded team's roster.
func (r *Registry) AgentsByTeam(team string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, a := range r.allAgents {
		if a.TeamName == team {
			ids = append(ids, id)
		}
	}
	return ids
}

// TasksByTeam returns the ids of every task belonging to team.
func (r *Registry) TasksByTeam(team string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, t := range r.tasks {
		if t.TeamName == team {
			ids = append(ids, id)
		}
	}
	return ids
}

// AllSessions returns a clone of every known session, for the Staleness
// Sweeper's periodic scan.
func (r *Registry) AllSessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// AllAgents returns a clone of every known agent, for the Staleness
// Sweeper's periodic scan.
func (r *Registry) AllAgents() []*Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Agent, 0, len(r.allAgents))
	for _, a := range r.allAgents {
		out = append(out, a.Clone())
	}
	return out
}
