// Command observer is the real-time reconciliation server described by
// spec.md: it tails transcript JSONL files and accepts hook HTTP callbacks,
// merges both into the Registry, and serves the result over WebSocket.
// Flag/signal handling follows the teacher's cmd/server/main.go shape
// (flag.*, signal.Notify on SIGINT/SIGTERM, SIGHUP-driven config reload).
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/agentwatch/observer/internal/config"
	"github.com/agentwatch/observer/internal/gitexec"
	"github.com/agentwatch/observer/internal/guards"
	"github.com/agentwatch/observer/internal/hooks"
	"github.com/agentwatch/observer/internal/privacy"
	"github.com/agentwatch/observer/internal/registry"
	"github.com/agentwatch/observer/internal/sweeper"
	"github.com/agentwatch/observer/internal/watcher"
	"github.com/agentwatch/observer/internal/wsfanout"
)

// multiWatcher lets the Sweeper treat several roots (internal/config's
// Watcher.Roots allows more than one, e.g. a user who points the observer
// at both ~/.claude/projects and a second checkout location) as a single
// sweeper.TrackedFileSource.
type multiWatcher struct {
	watchers []*watcher.Watcher
}

func (m *multiWatcher) Snapshot() []watcher.TrackedSnapshot {
	var out []watcher.TrackedSnapshot
	for _, w := range m.watchers {
		out = append(out, w.Snapshot()...)
	}
	return out
}

func (m *multiWatcher) Drop(path string) {
	for _, w := range m.watchers {
		w.Drop(path)
	}
}

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to ~/.config/agentwatch-observer/config.yaml)")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyEnvOverrides()
	if *port > 0 {
		cfg.Server.Port = *port
	}

	g := guards.New()
	reg := registry.New(g)

	var mw multiWatcher
	for _, root := range cfg.Watcher.Roots {
		if root == "" {
			continue
		}
		mw.watchers = append(mw.watchers, watcher.New(root, reg, g, gitexec.Run))
	}

	sw := sweeper.New(reg, g, &mw)
	sw.SetThresholds(sweeper.Thresholds{
		Tick:            cfg.Staleness.TickInterval,
		Idle:            cfg.Staleness.IdleThreshold,
		SubagentRemoval: cfg.Staleness.SubagentRemovalThreshold,
		SessionExpiry:   cfg.Staleness.SessionExpiryThreshold,
		CatchAllStale:   cfg.Staleness.CatchAllStaleThreshold,
	})
	sw.ProcessCheck = sweeper.GopsutilProcessCheck()

	dispatcher := hooks.New(reg, g, gitexec.Run)
	hookHandler := hooks.NewHandler(dispatcher, cfg.Server.AuthToken)

	fanout := wsfanout.New(reg, cfg.Server.AuthToken)
	fanout.Privacy = &privacy.Filter{
		MaskProjectNames:  cfg.Privacy.MaskProjectNames,
		MaskWorktreePaths: cfg.Privacy.MaskWorktreePaths,
		AllowedSlugs:      cfg.Privacy.AllowedSlugs,
		BlockedSlugs:      cfg.Privacy.BlockedSlugs,
	}
	fanout.HealthSnapshot = func() interface{} {
		snapshots := make([]watcher.Snapshot, 0, len(mw.watchers))
		for _, w := range mw.watchers {
			snapshots = append(snapshots, w.Health().Snapshot())
		}
		return snapshots
	}
	fanout.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range mw.watchers {
		wg.Add(1)
		go func(w *watcher.Watcher) {
			defer wg.Done()
			if err := w.Start(ctx); err != nil {
				log.Printf("[watcher] stopped: %v", err)
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sw.Start(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/api/hook", hookHandler)
	mux.Handle("/ws", fanout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				reloaded, err := config.Load(cfgPath)
				if err != nil {
					log.Printf("[config] reload failed: %v", err)
					continue
				}
				reloaded.ApplyEnvOverrides()
				for _, change := range config.Diff(cfg, reloaded) {
					log.Printf("[config] %s", change)
				}
				cfg = reloaded
				sw.SetThresholds(sweeper.Thresholds{
					Tick:            cfg.Staleness.TickInterval,
					Idle:            cfg.Staleness.IdleThreshold,
					SubagentRemoval: cfg.Staleness.SubagentRemovalThreshold,
					SessionExpiry:   cfg.Staleness.SessionExpiryThreshold,
					CatchAllStale:   cfg.Staleness.CatchAllStaleThreshold,
				})
				continue
			}
			log.Println("shutting down...")
			cancel()
			wg.Wait()
			os.Exit(0)
		}
	}()

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	log.Printf("observer listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
