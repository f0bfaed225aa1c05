// Package watcher implements the §4.5 Transcript Watcher: it tails the
// JSONL files the host writes under the projects directory tree, detects
// new sessions and subagents, and reconciles incremental writes into the
// Registry. fsnotify drives the event loop, matching the idiomatic
// tail-watching pattern the pack's own JSONL-tailing example uses (a
// per-path debounce timer feeding a single processing goroutine).
package watcher

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentwatch/observer/internal/guards"
	"github.com/agentwatch/observer/internal/parsers"
	"github.com/agentwatch/observer/internal/registry"
)

// maxWatchDepth bounds the recursive directory walk below root, per spec §2
// ("recursively watches the projects directory (depth 4)").
const maxWatchDepth = 4

// changeDebounce coalesces rapid successive writes to one file into a
// single incremental read, per spec §5's 100ms per-path debouncer.
const changeDebounce = 100 * time.Millisecond

// trackedFile is the Watcher's own bookkeeping for one JSONL file it has
// discovered — offset, governing session, and (for subagents) identity.
type trackedFile struct {
	sessionID       string // governing solo-session id for activity mutations
	offset          int64
	lastActivity    time.Time
	isSubagent      bool
	agentID         string // populated when isSubagent
	parentSessionID string
	isAcompact      bool
}

// Watcher tails every *.jsonl file under root and reconciles it into reg.
type Watcher struct {
	root   string
	reg    *registry.Registry
	guards *guards.Guards
	exec   parsers.ExecFunc
	now    func() time.Time

	health *Health

	mu          sync.Mutex
	tracked     map[string]*trackedFile
	debounce    map[string]*time.Timer
	initialScan bool

	fsw *fsnotify.Watcher
}

// New creates a Watcher rooted at root (typically
// "<home>/.claude/projects"). exec is the injected git-probe capability.
func New(root string, reg *registry.Registry, g *guards.Guards, exec parsers.ExecFunc) *Watcher {
	return &Watcher{
		root:     root,
		reg:      reg,
		guards:   g,
		exec:     exec,
		now:      time.Now,
		health:   newHealth(),
		tracked:  make(map[string]*trackedFile),
		debounce: make(map[string]*time.Timer),
	}
}

// Health exposes this watcher's I/O failure counters for the supplemental
// source_health broadcast (see SPEC_FULL §4).
func (w *Watcher) Health() *Health { return w.health }

// Start walks root, performs the initial tail-scan over every existing
// *.jsonl file, then blocks processing fsnotify events until ctx is
// cancelled. Intended to be run as a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer fsw.Close()

	if err := w.watchTree(w.root, 0); err != nil {
		log.Printf("[watcher] initial tree walk failed: %v", err)
	}

	w.mu.Lock()
	w.initialScan = true
	w.mu.Unlock()

	w.initialSweep()

	w.mu.Lock()
	w.initialScan = false
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.health.recordWatchError(err)
			log.Printf("[watcher] fsnotify error: %v", err)
		}
	}
}

// watchTree recursively registers fsnotify watches on every directory under
// dir, up to maxWatchDepth below root.
func (w *Watcher) watchTree(dir string, depth int) error {
	if depth > maxWatchDepth {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			_ = w.watchTree(filepath.Join(dir, entry.Name()), depth+1)
		}
	}
	return nil
}

// initialSweep walks the tree looking for existing *.jsonl files and runs
// the add-path detection logic on each.
func (w *Watcher) initialSweep() {
	_ = filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		w.handleAdd(path, true)
		return nil
	})
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.watchTree(ev.Name, 0)
			return
		}
		if strings.HasSuffix(ev.Name, ".jsonl") {
			w.handleAdd(ev.Name, false)
		}
		return
	}
	if ev.Has(fsnotify.Write) {
		if !strings.HasSuffix(ev.Name, ".jsonl") {
			return
		}
		w.debounceChange(ev.Name)
		return
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if strings.HasSuffix(ev.Name, ".jsonl") {
			w.handleUnlink(ev.Name)
		}
	}
}

// debounceChange coalesces rapid writes to path into one handleChange call
// after changeDebounce, per spec §5.
func (w *Watcher) debounceChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounce[path]; ok {
		t.Stop()
	}
	w.debounce[path] = time.AfterFunc(changeDebounce, func() {
		w.handleChange(path)
	})
}

func (w *Watcher) handleAdd(path string, initial bool) {
	if isSubagentPath(path) {
		w.detectSubagent(path, initial)
		return
	}
	w.detectSession(path, initial)
}

// TrackedSnapshot is a point-in-time copy of one tracked file's bookkeeping,
// exposed to the Staleness Sweeper (which owns no tracking state of its own).
type TrackedSnapshot struct {
	Path            string
	SessionID       string
	IsSubagent      bool
	AgentID         string
	ParentSessionID string
	IsAcompact      bool
	LastActivity    time.Time
}

// Snapshot returns a copy of every tracked file's bookkeeping.
func (w *Watcher) Snapshot() []TrackedSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]TrackedSnapshot, 0, len(w.tracked))
	for path, tf := range w.tracked {
		out = append(out, TrackedSnapshot{
			Path:            path,
			SessionID:       tf.sessionID,
			IsSubagent:      tf.isSubagent,
			AgentID:         tf.agentID,
			ParentSessionID: tf.parentSessionID,
			IsAcompact:      tf.isAcompact,
			LastActivity:    tf.lastActivity,
		})
	}
	return out
}

// Drop discards a tracked file's bookkeeping without touching the Registry.
// Used by the Staleness Sweeper once it has removed the corresponding
// agent/session itself.
func (w *Watcher) Drop(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tracked, path)
}

// hasRecentAcompact reports whether a tracked internal acompact subagent
// file for sessionID was seen within acompactRecentWindow.
func (w *Watcher) hasRecentAcompact(sessionID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, tf := range w.tracked {
		if tf.isAcompact && tf.parentSessionID == sessionID && w.now().Sub(tf.lastActivity) < acompactRecentWindow {
			return true
		}
	}
	return false
}

// handleUnlink drops tracking for path and, if no other tracked file
// references the same solo session, removes that session.
func (w *Watcher) handleUnlink(path string) {
	w.mu.Lock()
	tf, ok := w.tracked[path]
	if ok {
		delete(w.tracked, path)
	}
	w.mu.Unlock()
	if !ok || tf.isSubagent {
		return
	}

	w.mu.Lock()
	stillReferenced := false
	for _, other := range w.tracked {
		if !other.isSubagent && other.sessionID == tf.sessionID {
			stillReferenced = true
			break
		}
	}
	w.mu.Unlock()
	if stillReferenced {
		return
	}

	if s, ok := w.reg.GetSession(tf.sessionID); ok && !s.IsTeam {
		w.reg.RemoveSession(tf.sessionID)
	}
}
