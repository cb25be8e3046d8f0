// Package supervisor owns the pipeline lifecycle: at most one live
// instance of watchers, dispatcher, workers, and retention manager per
// process, started and stopped as a unit.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/filesentry/internal/alert"
	"github.com/ppiankov/filesentry/internal/analyze"
	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/dispatch"
	"github.com/ppiankov/filesentry/internal/retention"
	"github.com/ppiankov/filesentry/internal/state"
	"github.com/ppiankov/filesentry/internal/store"
	"github.com/ppiankov/filesentry/internal/watch"
)

var (
	// ErrAlreadyRunning is returned by Start when a pipeline is live.
	ErrAlreadyRunning = errors.New("monitor already running")
	// ErrNotRunning is returned by Stop and RunFullScan when idle.
	ErrNotRunning = errors.New("monitor not running")
)

// stopTimeout is the graceful drain deadline before workers are
// abandoned.
const stopTimeout = 5 * time.Second

// Status is the supervisor's externally visible state.
type Status struct {
	Running       bool      `json:"running"`
	Roots         []string  `json:"roots"`
	QueueDepth    int       `json:"queue_depth"`
	Workers       int       `json:"workers"`
	LastScanAt    time.Time `json:"last_scan_at"`
	EventsDropped uint64    `json:"events_dropped_total"`
}

// pipeline bundles one running instance.
type pipeline struct {
	cfg        *config.Config
	cache      *state.Cache
	dispatcher *dispatch.Dispatcher
	watchers   []*watch.Watcher
	cancel     context.CancelFunc
	done       chan struct{}
}

// Supervisor manages the singleton pipeline.
type Supervisor struct {
	store    *store.Store
	alerts   *alert.Dispatcher
	stateDir string
	log      *slog.Logger

	mu       sync.Mutex
	pipeline *pipeline
}

// New builds a supervisor. stateDir holds the pidfile, the cache spill
// directory, and the state snapshot.
func New(s *store.Store, alerts *alert.Dispatcher, stateDir string, log *slog.Logger) *Supervisor {
	return &Supervisor{
		store:    s,
		alerts:   alerts,
		stateDir: stateDir,
		log:      log,
	}
}

func (s *Supervisor) pidPath() string      { return filepath.Join(s.stateDir, "filesentry.pid") }
func (s *Supervisor) spillDir() string     { return filepath.Join(s.stateDir, "spill") }
func (s *Supervisor) snapshotPath() string { return filepath.Join(s.stateDir, "state.json") }

// Start brings up a pipeline for the given configuration.
func (s *Supervisor) Start(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		return ErrAlreadyRunning
	}

	if err := os.MkdirAll(s.stateDir, 0700); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	if err := acquirePIDLock(s.pidPath()); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	cache, err := state.New(s.spillDir(), 0)
	if err != nil {
		releasePIDLock(s.pidPath())
		return fmt.Errorf("start failed: %w", err)
	}
	if err := cache.LoadSnapshot(s.snapshotPath()); err != nil {
		s.log.Warn("state snapshot unreadable, starting cold", "level", "WARN", "error", err)
	}

	analyzer := analyze.New()
	worker := s.workerHandler(cfg, cache, analyzer)
	dispatcher := dispatch.New(cfg, cache, worker, s.log)

	watchers := make([]*watch.Watcher, 0, len(cfg.Roots))
	for _, root := range cfg.Roots {
		watchers = append(watchers, watch.New(root, cfg, cache, dispatcher.Offer, s.log))
	}

	keeper := retention.New(s.store, cfg.Retention, s.log)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	for _, w := range watchers {
		wg.Add(1)
		go func(w *watch.Watcher) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		keeper.Run(ctx)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.snapshotLoop(ctx, cache, cfg.Retention.CleanupInterval)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	s.pipeline = &pipeline{
		cfg:        cfg,
		cache:      cache,
		dispatcher: dispatcher,
		watchers:   watchers,
		cancel:     cancel,
		done:       done,
	}
	s.log.Info("monitor started", "level", "INFO",
		"roots", len(cfg.Roots), "workers", dispatcher.WorkerCount())
	return nil
}

// Stop cancels the pipeline and drains it within the stop deadline.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	p := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()
	if p == nil {
		return ErrNotRunning
	}

	p.cancel()
	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		s.log.Warn("stop deadline exceeded, abandoning workers", "level", "WARN")
	}

	if err := p.cache.SaveSnapshot(s.snapshotPath()); err != nil {
		s.log.Warn("state snapshot write failed", "level", "WARN", "error", err)
	}
	releasePIDLock(s.pidPath())
	s.log.Info("monitor stopped", "level", "INFO")
	return nil
}

// Restart stops any running pipeline and starts one with cfg. State
// cached for roots absent from the new configuration is dropped so it
// cannot outlive the root that produced it.
func (s *Supervisor) Restart(cfg *config.Config) error {
	removed := s.removedRoots(cfg)
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	if err := s.Start(cfg); err != nil {
		return err
	}

	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	if p != nil {
		for _, root := range removed {
			p.cache.DropRoot(root)
		}
	}
	return nil
}

// removedRoots lists roots watched by the running pipeline that cfg no
// longer names.
func (s *Supervisor) removedRoots(cfg *config.Config) []string {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	if p == nil {
		return nil
	}

	keep := make(map[string]bool, len(cfg.Roots))
	for _, r := range cfg.Roots {
		keep[r.Path] = true
	}
	var removed []string
	for _, r := range p.cfg.Roots {
		if !keep[r.Path] {
			removed = append(removed, r.Path)
		}
	}
	return removed
}

// Status reports the current pipeline state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	if p == nil {
		return Status{}
	}

	st := Status{
		Running:       true,
		Roots:         p.cfg.RootPaths(),
		QueueDepth:    p.dispatcher.QueueDepth(),
		Workers:       p.dispatcher.WorkerCount(),
		EventsDropped: p.dispatcher.Dropped(),
	}
	for _, w := range p.watchers {
		if last := w.LastPass(); last.After(st.LastScanAt) {
			st.LastScanAt = last
		}
	}
	return st
}

// Running reports whether a pipeline is live.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline != nil
}

// Config returns the running pipeline's configuration, or nil.
func (s *Supervisor) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline == nil {
		return nil
	}
	return s.pipeline.cfg
}

// RunFullScan kicks every watcher into an immediate pass and returns a
// scan id for correlation. The pass diffs each tree against cached
// state, so any divergence from the snapshot produces events.
func (s *Supervisor) RunFullScan() (string, error) {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()
	if p == nil {
		return "", ErrNotRunning
	}

	id := uuid.NewString()
	for _, w := range p.watchers {
		w.Kick()
	}
	s.log.Info("full scan scheduled", "level", "INFO", "scan_id", id)
	return id, nil
}

// snapshotLoop writes the state snapshot at least once per retention
// cycle.
func (s *Supervisor) snapshotLoop(ctx context.Context, cache *state.Cache, interval time.Duration) {
	if interval <= 0 {
		interval = config.DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cache.SaveSnapshot(s.snapshotPath()); err != nil {
				s.log.Warn("state snapshot write failed", "level", "WARN", "error", err)
			}
		}
	}
}
