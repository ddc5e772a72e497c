// Package core wires the Link Monitor's modules (Interface Table, Adjacency
// Table, Persistent State, Range Allocator, Advertisement Engine) onto the
// single dispatch loop that owns state.State.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"

	"github.com/linkmond/linkmond/state"
)

// Deps bundles the external collaborators the Link Monitor core consumes
// (spec §1: "surrounding daemon... treated as external collaborators").
type Deps struct {
	KVStore     state.KVClient
	ConfigStore state.ConfigStore
	Netlink     state.NetlinkTransport
	// Metrics is optional: pass a pre-built *state.Metrics when something
	// else (e.g. an HTTP /metrics server) needs the same registry; nil
	// builds a fresh one.
	Metrics *state.Metrics
}

func newLogger(nodeName string, level slog.Level, logPath string) (*slog.Logger, error) {
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: nodeName,
		}),
	}
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Start constructs the dispatcher, initializes every module, and blocks
// running the main dispatch loop until shutdown (SIGINT/SIGTERM or a fatal
// dispatch error). It returns once the loop has stopped and every
// module's Cleanup has run; work still queued on the dispatch channel at
// that point is not run.
func Start(cfg *state.Config, deps Deps, level slog.Level, logPath string) error {
	if deps.KVStore == nil || deps.ConfigStore == nil || deps.Netlink == nil {
		// Fatal per spec §7: null collaborator handles at construction are
		// a programmer error; refuse to start.
		return errors.New("core.Start: KVStore, ConfigStore and Netlink must all be non-nil")
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	dispatch := make(chan func(*state.State) error, 256)

	logger, err := newLogger(cfg.NodeName, level, logPath)
	if err != nil {
		return err
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = state.NewMetrics()
	}

	s := &state.State{
		Modules:       make(map[string]state.Module),
		IfaceThrottle: &state.Throttle{},
		AdjThrottle:   make(map[state.AreaId]*state.Throttle),
		LastPeers:     make(map[state.AreaId]map[state.NodeId]state.PeerEndpoint),
		InitialSynced: make(map[state.AreaId]map[state.NodeId]bool),
		Env: &state.Env{
			DispatchChannel: dispatch,
			Config:          cfg,
			Context:         ctx,
			Cancel:          cancel,
			Log:             logger,
			Metrics:         metrics,
			KVStore:         deps.KVStore,
			ConfigStore:     deps.ConfigStore,
			Netlink:         deps.Netlink,
			NeighborEvents:  make(chan state.NeighborEvent, 64),
			NetlinkEvents:   make(chan state.NetlinkEvent, 64),
			InterfaceDB:     make(chan state.InterfaceDatabase, 8),
			PrefixSync:      make(chan state.PrefixUpdateRequest, 8),
		},
	}

	s.Log.Info("initializing link monitor modules")
	if err := initModules(s); err != nil {
		return err
	}
	s.Log.Info("link monitor ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sig:
			s.Cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
		}
	}()

	return mainLoop(s, dispatch)
}

func initModules(s *state.State) error {
	modules := []state.Module{
		&InterfaceModule{},
		&AdjacencyModule{},
		&PersistModule{},
		&AllocatorModule{},
		&AdvertiseModule{},
		&AdminModule{},
	}
	for _, m := range modules {
		name := reflect.TypeOf(m).String()
		s.Modules[name] = m
		if err := m.Init(s); err != nil {
			return fmt.Errorf("init %s: %w", name, err)
		}
	}
	return nil
}

func mainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("dispatch loop started")
	for {
		select {
		case fn := <-dispatch:
			if fn == nil {
				goto stopped
			}
			start := time.Now()
			if err := fn(s); err != nil {
				s.Log.Error("dispatch handler returned error", "error", err)
				s.Cancel(err)
			}
			if elapsed := time.Since(start); elapsed > 4*time.Millisecond {
				s.Log.Warn("dispatch took a long time", "elapsed", elapsed, "queued", len(dispatch),
					"goroutines", runtime.NumGoroutine())
			}
		case <-s.Context.Done():
			goto stopped
		}
	}
stopped:
	cause := context.Cause(s.Context)
	s.Log.Info("dispatch loop stopped", "reason", cause)
	stop(s)
	if cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// stoppableKVClient is satisfied by KVClient implementations that hold their
// own background workers (impl.KVStore's ttlcache loops). state.KVClient
// itself stays collaborator-shaped and does not declare Stop.
type stoppableKVClient interface {
	Stop()
}

func stop(s *state.State) {
	s.Cancel(context.Canceled)
	// The key-value-store client is stopped before the rest of module
	// cleanup runs, so no module's Cleanup can kick off a persist that
	// outlives shutdown (spec §5).
	if kv, ok := s.KVStore.(stoppableKVClient); ok {
		kv.Stop()
	}
	for name, m := range s.Modules {
		if err := m.Cleanup(s); err != nil {
			s.Log.Error("module cleanup failed", "module", name, "error", err)
		}
	}
	s.Log.Info("link monitor stopped")
}
