// Package watch runs one poll watcher per configured root. Each watcher
// walks its tree at the scan interval, diffs (mtime, size) against the
// state cache, and emits created/modified/deleted events. The first
// pass only seeds the cache.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/metrics"
	"github.com/ppiankov/filesentry/internal/model"
	"github.com/ppiankov/filesentry/internal/state"
)

// unhealthyErrorRate is the per-pass error fraction above which the
// watcher raises a health event instead of a file event.
const unhealthyErrorRate = 0.5

// unhealthyMinErrors avoids flagging a pass over a tiny tree where one
// transient error dominates the rate.
const unhealthyMinErrors = 5

// Emitter hands an event to the dispatcher without blocking. A false
// return means the event was shed under backpressure.
type Emitter func(model.Event) bool

// Watcher polls one root. Fields are fixed at construction; a config
// change is applied by restarting the pipeline with new watchers.
type Watcher struct {
	root  config.Root
	cfg   *config.Config
	cache *state.Cache
	emit  Emitter
	log   *slog.Logger

	kick chan struct{}

	mu       sync.Mutex
	initial  bool
	lastPass time.Time
}

// New builds a watcher for one root. The first pass after New seeds the
// cache without emitting events.
func New(root config.Root, cfg *config.Config, cache *state.Cache, emit Emitter, log *slog.Logger) *Watcher {
	return &Watcher{
		root:    root,
		cfg:     cfg,
		cache:   cache,
		emit:    emit,
		log:     log.With("root", root.Path),
		kick:    make(chan struct{}, 1),
		initial: true,
	}
}

// Run executes scan passes until ctx is cancelled. A Kick schedules an
// immediate pass without waiting for the ticker.
func (w *Watcher) Run(ctx context.Context) {
	w.pass(ctx)

	interval := w.cfg.ScanInterval
	if interval <= 0 {
		interval = config.DefaultScanInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pass(ctx)
		case <-w.kick:
			w.pass(ctx)
		}
	}
}

// Kick schedules an immediate pass. The pass diffs the tree against the
// cache, so every file diverging from cached state produces an event.
func (w *Watcher) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// LastPass returns when the most recent pass completed.
func (w *Watcher) LastPass() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastPass
}

// pass walks the root once, emitting diffs and sweeping deletions.
func (w *Watcher) pass(ctx context.Context) {
	w.mu.Lock()
	initial := w.initial
	w.initial = false
	w.mu.Unlock()

	visited := make(map[string]struct{})
	visits, errs := 0, 0

	visit := func(path string, info fs.FileInfo) {
		visited[path] = struct{}{}
		visits++
		w.compare(path, info, initial)
	}

	if w.root.Recursive {
		err := filepath.WalkDir(w.root.Path, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return filepath.SkipAll
			}
			if err != nil {
				errs++
				metrics.WalkErrors.Inc()
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			path = config.NormalizePath(path)
			if d.IsDir() {
				if path != w.root.Path && w.cfg.Excluded(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !w.admits(path) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				errs++
				metrics.WalkErrors.Inc()
				return nil
			}
			visit(path, info)
			return nil
		})
		if err != nil {
			errs++
			metrics.WalkErrors.Inc()
		}
	} else {
		entries, err := os.ReadDir(w.root.Path)
		if err != nil {
			errs++
			metrics.WalkErrors.Inc()
			w.log.Warn("root unreadable", "level", "WARN", "error", err)
		}
		for _, e := range entries {
			if ctx.Err() != nil {
				break
			}
			if e.IsDir() {
				continue
			}
			path := config.NormalizePath(filepath.Join(w.root.Path, e.Name()))
			if !w.admits(path) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				errs++
				metrics.WalkErrors.Inc()
				continue
			}
			visit(path, info)
		}
	}

	if ctx.Err() == nil {
		w.sweepDeleted(visited, initial)
	}

	if errs >= unhealthyMinErrors && float64(errs)/float64(errs+visits) > unhealthyErrorRate {
		metrics.WatcherUnhealthy.Inc()
		w.log.Warn("watcher unhealthy", "level", "WARN", "errors", errs, "visited", visits)
	}

	w.mu.Lock()
	w.lastPass = time.Now()
	w.mu.Unlock()
}

// admits applies the exclusion, extension, and scratch filters.
func (w *Watcher) admits(path string) bool {
	if w.cfg.Excluded(path) || w.cfg.ExtExcluded(path) {
		return false
	}
	return !scratchFile(filepath.Base(path))
}

// compare diffs one file against the cache and emits created or
// modified. The cache entry is refreshed either way; content hashes are
// left to the dispatcher, which recomputes them on change.
func (w *Watcher) compare(path string, info fs.FileInfo, initial bool) {
	lock := w.cache.RootLock(w.root.Path)
	lock.Lock()
	prev, known := w.cache.Get(path)
	next := state.FileState{
		Path:       path,
		MTimeNanos: info.ModTime().UnixNano(),
		Size:       info.Size(),
	}
	if known {
		next.Hash = prev.Hash
		next.HashValid = prev.HashValid
		next.LastAnalyzed = prev.LastAnalyzed
	}
	w.cache.Put(next)
	lock.Unlock()

	var kind model.EventKind
	switch {
	case !known:
		if initial {
			return
		}
		kind = model.Created
	case prev.MTimeNanos != next.MTimeNanos || prev.Size != next.Size:
		kind = model.Modified
	default:
		return
	}

	ev := model.Event{
		Path:       path,
		Kind:       kind,
		ObservedAt: time.Now(),
		Size:       info.Size(),
	}
	if info.Size() > w.cfg.MaxAnalysisSize() {
		ev.SkipAnalysis = model.SkipSize
	}
	if w.emit(ev) {
		metrics.EventsEmitted.WithLabelValues(string(kind)).Inc()
	}
}

// sweepDeleted emits deleted for every cached path under the root not
// seen this pass and drops it from the cache. Last known size and hash
// ride along so the dispatcher can coalesce renames.
func (w *Watcher) sweepDeleted(visited map[string]struct{}, initial bool) {
	for _, path := range w.cache.PathsUnder(w.root.Path) {
		if _, ok := visited[path]; ok {
			continue
		}

		lock := w.cache.RootLock(w.root.Path)
		lock.Lock()
		prev, known := w.cache.Get(path)
		w.cache.Delete(path)
		lock.Unlock()

		// Paths the current config no longer admits are purged
		// silently: excluded state must not linger in the cache.
		if !known || initial || !w.admits(path) {
			continue
		}

		ev := model.Event{
			Path:       path,
			Kind:       model.Deleted,
			ObservedAt: time.Now(),
			Size:       prev.Size,
			Hash:       prev.Hash,
			HashValid:  prev.HashValid,
		}
		if w.emit(ev) {
			metrics.EventsEmitted.WithLabelValues(string(model.Deleted)).Inc()
		}
	}
}
