package wsfanout

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agentwatch/observer/internal/privacy"
	"github.com/agentwatch/observer/internal/registry"
)

// selectSessionMsg is the one client→server message type, per spec §6.
type selectSessionMsg struct {
	Type string `json:"type"`
	Data struct {
		SessionID string `json:"sessionId"`
	} `json:"data"`
}

// wsClient is one connected browser tab: a send goroutine decoupled from
// the Registry's own goroutine via a buffered channel, and a single
// mutable field (selected) guarded by its own lock since deltas arrive
// from whichever goroutine drove the mutation (watcher, hook handler,
// sweeper) while select_session arrives from the read loop.
type wsClient struct {
	conn    *websocket.Conn
	reg     *registry.Registry
	privacy *privacy.Filter
	send    chan wireMessage

	// deltas queues raw Registry deltas for this client. Fanout.onDelta
	// enqueues onto it synchronously from inside the Registry's own
	// emitting goroutine (registry.Registry.mu held), so enqueueDelta must
	// do nothing but a non-blocking channel send. processDeltas drains it
	// on its own goroutine, off that lock, which is the only place
	// handleDelta's membership/view lookups (IsMemberOf, GetSession,
	// GetView) are allowed to run — see registry.Subscriber's
	// non-reentrancy contract.
	deltas chan registry.Delta

	mu       sync.Mutex
	selected string
}

func newClient(conn *websocket.Conn, reg *registry.Registry, filter *privacy.Filter) *wsClient {
	c := &wsClient{
		conn:    conn,
		reg:     reg,
		privacy: filter,
		send:    make(chan wireMessage, sendBuffer),
		deltas:  make(chan registry.Delta, sendBuffer),
	}
	go c.writePump()
	go c.processDeltas()
	return c
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// processDeltas runs on its own goroutine, never the Registry's, so
// handleDelta is free to call back into the Registry here.
func (c *wsClient) processDeltas() {
	for d := range c.deltas {
		c.handleDelta(d)
	}
	close(c.send)
}

func (c *wsClient) close() {
	// Closing deltas unblocks processDeltas, whose exit closes send in
	// turn, which unblocks writePump; conn.Close there terminates any
	// in-flight read in readLoop too.
	defer func() { recover() }()
	close(c.deltas)
}

// enqueue drops the message rather than blocking if the client's buffer is
// full, so a slow client never stalls its caller. The client is not
// disconnected, and snapshot frames (sessions_list, full_state) are
// dropped the same way as deltas.
func (c *wsClient) enqueue(msg wireMessage) {
	select {
	case c.send <- msg:
	default:
		log.Printf("[wsfanout] client too slow, dropping %s", msg.Type)
	}
}

// enqueueDelta hands d off to processDeltas without touching the Registry
// again. Called synchronously from Fanout.onDelta, itself invoked from
// inside the Registry's own locked emit — see the deltas field's doc
// comment.
func (c *wsClient) enqueueDelta(d registry.Delta) {
	select {
	case c.deltas <- d:
	default:
		log.Printf("[wsfanout] client too slow, dropping %s", d.Type)
	}
}

func (c *wsClient) selectedSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *wsClient) setSelectedSession(sid string) {
	c.mu.Lock()
	c.selected = sid
	c.mu.Unlock()
}

// sendInitialSnapshot sends sessions_list plus full_state for the
// server-chosen default session: the freshest session with a waiting
// agent, else the freshest overall, per spec §4.7.
func (c *wsClient) sendInitialSnapshot() {
	summaries := c.privacy.Summaries(c.reg.BuildSessionsList())
	c.enqueue(wireMessage{Type: "sessions_list", Data: summaries})

	sid := defaultSession(c.reg, summaries)
	if sid == "" {
		return
	}
	c.setSelectedSession(sid)
	c.enqueue(wireMessage{Type: "full_state", Data: c.privacy.View(c.reg.GetView(sid))})
}

// defaultSession picks the freshest session (summaries is already sorted
// lastActivity desc) with at least one waiting agent, falling back to the
// freshest overall.
func defaultSession(reg *registry.Registry, summaries []registry.SessionSummary) string {
	for _, s := range summaries {
		if reg.HasWaitingAgent(s.SessionID) {
			return s.SessionID
		}
	}
	if len(summaries) > 0 {
		return summaries[0].SessionID
	}
	return ""
}

// readLoop blocks on incoming client frames until the connection closes.
// The only client→server message is select_session; anything else (and
// any malformed frame) is ignored rather than disconnecting the client,
// matching spec.md §7's "skip one line, continue" parser-error posture.
func (c *wsClient) readLoop() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg selectSessionMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "select_session" || msg.Data.SessionID == "" {
			continue
		}
		c.handleSelectSession(msg.Data.SessionID)
	}
}

// handleSelectSession switches this client's own subscription only; the
// server-global selected session (used by the sweeper's failover and by
// legacy single-session consumers) is untouched, per spec §4.7.
func (c *wsClient) handleSelectSession(sid string) {
	if _, ok := c.reg.GetSession(sid); !ok {
		return
	}
	c.setSelectedSession(sid)
	c.enqueue(wireMessage{Type: "full_state", Data: c.privacy.View(c.reg.GetView(sid))})
}

// handleDelta translates one Registry delta into zero or one wire frames
// for this client, applying the §4.2.1 membership filter. Only ever called
// from processDeltas (or directly in tests), never from the Registry's own
// emitting goroutine — it calls back into the Registry (IsMemberOf,
// GetSession, GetView), which would deadlock the non-reentrant
// registry.Registry.mu if called from onDelta itself.
func (c *wsClient) handleDelta(d registry.Delta) {
	switch d.Type {
	case registry.DeltaAgentAdded, registry.DeltaAgentUpdate, registry.DeltaAgentRemoved:
		sid := c.selectedSession()
		if sid == "" || !c.reg.IsMemberOf(d.Agent, sid) {
			return
		}
		c.enqueue(wireMessage{Type: string(d.Type), Data: c.privacy.Agent(d.Agent)})

	case registry.DeltaTaskUpdate:
		sid := c.selectedSession()
		if sid == "" {
			return
		}
		sess, ok := c.reg.GetSession(sid)
		if !ok || !sess.IsTeam || d.SessionID != "team:"+sess.TeamName {
			return
		}
		c.enqueue(wireMessage{Type: string(d.Type), Data: d.Task})

	case registry.DeltaNewMessage:
		c.enqueue(wireMessage{Type: string(d.Type), Data: d.Message})

	case registry.DeltaSessionStarted, registry.DeltaSessionEnded:
		// No-op here: the Registry always follows these with a separate
		// DeltaSessionsList emission (see AddSession/RemoveSession), which
		// the case below forwards. Reacting to both would double-send.

	case registry.DeltaSessionsList:
		c.enqueue(wireMessage{Type: "sessions_list", Data: c.privacy.Summaries(d.Sessions)})

	case registry.DeltaFullState:
		sid := c.selectedSession()
		if sid == "" || d.SessionID != sid {
			return
		}
		c.enqueue(wireMessage{Type: "full_state", Data: c.privacy.View(c.reg.GetView(sid))})
	}
}
