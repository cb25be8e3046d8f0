// Package dispatch sits between the root watchers and the worker pool.
// It deduplicates events by key and content hash, coalesces
// delete/create pairs into renames, and routes jobs to workers keyed by
// path so per-path ordering survives parallel processing.
package dispatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/ppiankov/filesentry/internal/config"
	"github.com/ppiankov/filesentry/internal/metrics"
	"github.com/ppiankov/filesentry/internal/model"
	"github.com/ppiankov/filesentry/internal/state"
)

// renameWindow is how long a deleted event is held waiting for a
// matching created event before it is dispatched as a plain delete.
const renameWindow = 2 * time.Second

// flushTick drives pending-delete flushes and dedup window sweeps.
const flushTick = 500 * time.Millisecond

// workerQueueCap is the per-worker job channel buffer.
const workerQueueCap = 64

// Handler processes one analysis job. Supplied by the supervisor.
type Handler func(ctx context.Context, job model.Job)

// Workers returns the worker pool size.
func Workers() int {
	w := runtime.NumCPU()
	if w > 8 {
		w = 8
	}
	if w < 1 {
		w = 1
	}
	return w
}

type pendingDelete struct {
	ev       model.Event
	deadline time.Time
}

// Dispatcher consumes the ingress queue and feeds the worker pool.
type Dispatcher struct {
	cfg     *config.Config
	cache   *state.Cache
	queue   *Queue
	window  *Window
	handler Handler
	log     *slog.Logger

	workers int
	chans   []chan model.Job

	mu      sync.Mutex
	pending []pendingDelete
}

// New builds a dispatcher over a fresh ingress queue.
func New(cfg *config.Config, cache *state.Cache, handler Handler, log *slog.Logger) *Dispatcher {
	workers := Workers()
	chans := make([]chan model.Job, workers)
	for i := range chans {
		chans[i] = make(chan model.Job, workerQueueCap)
	}
	return &Dispatcher{
		cfg:     cfg,
		cache:   cache,
		queue:   NewQueue(0),
		window:  NewWindow(cfg.DedupWindow),
		handler: handler,
		log:     log,
		workers: workers,
		chans:   chans,
	}
}

// Offer is the Emitter handed to watchers. Never blocks.
func (d *Dispatcher) Offer(ev model.Event) bool {
	return d.queue.Push(ev)
}

// QueueDepth returns the current ingress depth.
func (d *Dispatcher) QueueDepth() int {
	return d.queue.Len()
}

// Dropped returns the total number of shed events.
func (d *Dispatcher) Dropped() uint64 {
	return d.queue.Shed()
}

// WorkerCount returns the size of the worker pool.
func (d *Dispatcher) WorkerCount() int {
	return d.workers
}

// Run consumes the ingress queue until ctx is cancelled, then closes
// the worker channels and waits for in-flight jobs.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(jobs <-chan model.Job) {
			defer wg.Done()
			for job := range jobs {
				d.handler(ctx, job)
			}
		}(d.chans[i])
	}

	ticker := time.NewTicker(flushTick)
	defer ticker.Stop()

	defer func() {
		d.flushPending(ctx, time.Time{}, true)
		for _, ch := range d.chans {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.window.Sweep(now)
			d.flushPending(ctx, now, false)
		case <-d.queue.Ready():
			for {
				ev, ok := d.queue.TryPop()
				if !ok {
					break
				}
				d.process(ctx, ev)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// process applies normalization, rename coalescing, dedup, and the
// content-hash change filter to one event, then routes the job.
func (d *Dispatcher) process(ctx context.Context, ev model.Event) {
	ev.Path = config.NormalizePath(ev.Path)

	// A deleted event with a known hash is held briefly; a created
	// event with matching size and content closes it into a rename.
	if ev.Kind == model.Deleted && ev.HashValid {
		d.mu.Lock()
		d.pending = append(d.pending, pendingDelete{ev: ev, deadline: ev.ObservedAt.Add(renameWindow)})
		d.mu.Unlock()
		return
	}

	// Per-path ordering: anything else on a path with a held delete
	// forces that delete out first.
	d.flushPath(ctx, ev.Path)

	var hash uint64
	var hashed bool
	if (ev.Kind == model.Created || ev.Kind == model.Modified) && ev.SkipAnalysis == "" {
		if h, size, err := state.ContentHash(ev.Path); err == nil {
			hash, hashed = h, true
			ev.Size = size
		}
	}

	if ev.Kind == model.Created && hashed {
		if old, ok := d.closePending(ev.Path, ev.Size, hash); ok {
			ev.Kind = model.Renamed
			ev.OldPath = old.Path
		}
	}

	key := Key(ev.Path, ev.Kind, ev.ObservedAt)
	if d.window.Seen(key, ev.ObservedAt) {
		metrics.EventsDeduped.WithLabelValues("window").Inc()
		return
	}

	if hashed {
		lock := d.cache.RootLock(d.rootOf(ev.Path))
		lock.Lock()
		prev, known := d.cache.Get(ev.Path)
		if known && prev.HashValid && prev.Hash == hash {
			lock.Unlock()
			metrics.EventsDeduped.WithLabelValues("hash").Inc()
			return
		}
		next := prev
		next.Path = ev.Path
		next.Size = ev.Size
		next.Hash = hash
		next.HashValid = true
		d.cache.Put(next)
		lock.Unlock()
	}

	d.route(ctx, ev, key)
}

// route hands the job to the worker owning the path.
func (d *Dispatcher) route(ctx context.Context, ev model.Event, key string) {
	job := model.Job{
		Path:         ev.Path,
		Kind:         ev.Kind,
		ObservedAt:   ev.ObservedAt,
		OldPath:      ev.OldPath,
		DedupKey:     key,
		SkipAnalysis: ev.SkipAnalysis,
	}
	idx := xxhash.Sum64String(ev.Path) % uint64(d.workers)
	select {
	case d.chans[idx] <- job:
	case <-ctx.Done():
	}
}

// closePending removes and returns a held delete matching size and
// hash. Same-path pairs are not renames; they flush via flushPath.
func (d *Dispatcher) closePending(path string, size int64, hash uint64) (model.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.pending {
		if p.ev.Path == path {
			continue
		}
		if p.ev.Size == size && p.ev.Hash == hash {
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			return p.ev, true
		}
	}
	return model.Event{}, false
}

// flushPending dispatches held deletes whose rename window expired.
func (d *Dispatcher) flushPending(ctx context.Context, now time.Time, force bool) {
	d.mu.Lock()
	var expired []model.Event
	var keep []pendingDelete
	for _, p := range d.pending {
		if force || !now.Before(p.deadline) {
			expired = append(expired, p.ev)
		} else {
			keep = append(keep, p)
		}
	}
	d.pending = keep
	d.mu.Unlock()

	for _, ev := range expired {
		d.dispatchDelete(ctx, ev)
	}
}

// flushPath dispatches any held delete for one path immediately.
func (d *Dispatcher) flushPath(ctx context.Context, path string) {
	d.mu.Lock()
	var held *model.Event
	for i, p := range d.pending {
		if p.ev.Path == path {
			ev := p.ev
			held = &ev
			d.pending = append(d.pending[:i], d.pending[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	if held != nil {
		d.dispatchDelete(ctx, *held)
	}
}

func (d *Dispatcher) dispatchDelete(ctx context.Context, ev model.Event) {
	key := Key(ev.Path, ev.Kind, ev.ObservedAt)
	if d.window.Seen(key, ev.ObservedAt) {
		metrics.EventsDeduped.WithLabelValues("window").Inc()
		return
	}
	d.route(ctx, ev, key)
}

// rootOf finds the configured root containing the path. Falls back to
// the path itself when no root matches, which still yields a valid
// lock.
func (d *Dispatcher) rootOf(path string) string {
	for _, r := range d.cfg.Roots {
		if path == r.Path || strings.HasPrefix(path, r.Path+string(filepath.Separator)) {
			return r.Path
		}
	}
	return path
}
