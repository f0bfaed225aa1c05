package hooks

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/agentwatch/observer/internal/httpauth"
)

// Handler wraps a Dispatcher with the auth check and JSON plumbing for
// POST /api/hook.
type Handler struct {
	dispatcher *Dispatcher
	authToken  string
}

// NewHandler builds the /api/hook http.Handler. authToken mirrors the
// process-wide AUTH_TOKEN; an empty string disables auth.
func NewHandler(d *Dispatcher, authToken string) *Handler {
	return &Handler{dispatcher: d, authToken: authToken}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !httpauth.Authorized(r, h.authToken) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var e Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, "malformed json body")
		return
	}
	if err := e.validate(); err != nil {
		writeError(w, err.Error())
		return
	}

	// Dispatch synchronously: preamble + state transitions are cheap map
	// operations serialized through the Registry's own lock; only the git
	// probe is offloaded to a goroutine (see Dispatcher.probeGit).
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[hooks] panic handling %s for %s: %v", e.HookEventName, e.SessionID, r)
			}
		}()
		h.dispatcher.Dispatch(&e)
	}()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func writeError(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
