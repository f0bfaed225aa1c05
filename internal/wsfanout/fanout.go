// Package wsfanout implements the §4.7 WS Fan-out: one gorilla/websocket
// connection per client, each subscribed to exactly one session at a time.
// It translates Registry deltas (§4.2) into the wire messages of §6,
// applying the §4.2.1 membership filter per client rather than per
// broadcast, since two clients may be watching two different sessions over
// the same Registry stream.
package wsfanout

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/agentwatch/observer/internal/httpauth"
	"github.com/agentwatch/observer/internal/privacy"
	"github.com/agentwatch/observer/internal/registry"
)

// sendBuffer is the per-connection outbound channel depth. Frames sent to
// a client whose buffer is full are dropped; the client stays connected.
const sendBuffer = 64

// wireMessage is the `{type, data}` envelope every server→client frame uses.
type wireMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Fanout owns every connected client and the Registry subscription feeding
// them all.
type Fanout struct {
	reg       *registry.Registry
	authToken string

	// Privacy, when non-nil, masks/filters every outbound snapshot and
	// delta (see internal/privacy). Left nil by default — a nil Filter is
	// a no-op per Filter.IsNoop.
	Privacy *privacy.Filter

	// HealthSnapshot, when non-nil, is called once per new connection to
	// produce the supplemental source_health frame (SPEC_FULL §4) — the
	// transcript watchers' own I/O failure counters, not part of spec.md's
	// wire protocol but additive to it. Left nil by default.
	HealthSnapshot func() interface{}

	mu      chan struct{} // binary semaphore guarding clients
	clients map[*wsClient]struct{}
}

// New wires a Fanout to reg. Call Subscribe once before serving connections.
func New(reg *registry.Registry, authToken string) *Fanout {
	f := &Fanout{
		reg:       reg,
		authToken: authToken,
		mu:        make(chan struct{}, 1),
		clients:   make(map[*wsClient]struct{}),
	}
	f.mu <- struct{}{}
	return f
}

// Subscribe registers the Fanout as a Registry subscriber. Must be called
// exactly once, before the Registry starts mutating.
func (f *Fanout) Subscribe() {
	f.reg.Subscribe(f.onDelta)
}

func (f *Fanout) lock()   { <-f.mu }
func (f *Fanout) unlock() { f.mu <- struct{}{} }

// onDelta is invoked synchronously under the Registry's lock (per
// registry.Subscriber's contract) and must never call back into the
// Registry. It only hands the raw delta to each client's own deltas
// channel; membership/view filtering (which does call back into the
// Registry) happens later, on each client's own processDeltas goroutine.
func (f *Fanout) onDelta(d registry.Delta) {
	f.lock()
	clients := make([]*wsClient, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.unlock()

	for _, c := range clients {
		c.enqueueDelta(d)
	}
}

// ServeHTTP upgrades the connection and runs the client until it
// disconnects. Intended to be mounted at GET /ws.
func (f *Fanout) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !httpauth.Authorized(r, f.authToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[wsfanout] upgrade error: %v", err)
		return
	}

	c := newClient(conn, f.reg, f.Privacy)
	f.addClient(c)
	defer f.removeClient(c)

	c.sendInitialSnapshot()
	if f.HealthSnapshot != nil {
		c.enqueue(wireMessage{Type: "source_health", Data: f.HealthSnapshot()})
	}
	c.readLoop()
}

func (f *Fanout) addClient(c *wsClient) {
	f.lock()
	f.clients[c] = struct{}{}
	f.unlock()
}

func (f *Fanout) removeClient(c *wsClient) {
	f.lock()
	delete(f.clients, c)
	f.unlock()
	c.close()
}

// ClientCount reports how many clients are currently connected, for tests
// and operational introspection.
func (f *Fanout) ClientCount() int {
	f.lock()
	defer f.unlock()
	return len(f.clients)
}
