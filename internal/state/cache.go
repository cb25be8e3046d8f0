// Package state tracks per-path file observations between scan passes.
// The cache is memory-bounded: least-recently-updated entries spill to
// per-key files on disk and are re-admitted lazily, and the whole cache
// snapshots to a single file so restarts do not replay history as
// change events.
package state

import (
	"container/list"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultMaxEntries bounds the in-memory cache before spilling to disk.
const DefaultMaxEntries = 10000

// FileState is the last observed state of one path.
type FileState struct {
	Path         string `json:"path"`
	MTimeNanos   int64  `json:"mtime_ns"`
	Size         int64  `json:"size"`
	Hash         uint64 `json:"hash,omitempty"`
	HashValid    bool   `json:"hash_valid,omitempty"`
	LastAnalyzed int64  `json:"last_analyzed_ns,omitempty"`
}

// MTime returns the observation mtime at full resolution.
func (s FileState) MTime() time.Time {
	return time.Unix(0, s.MTimeNanos)
}

type entry struct {
	state FileState
	elem  *list.Element
}

// Cache maps paths to FileStates with an LRU bound and disk spill.
// Map and LRU mutations take the global lock; each root additionally
// has its own lock so a watcher can serialize a whole scan pass against
// the dispatcher's hash updates.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lru      *list.List // front = most recently updated; values are paths
	max      int
	spillDir string

	rootMu sync.Mutex
	roots  map[string]*sync.Mutex
}

// New creates a Cache spilling evicted entries under spillDir.
func New(spillDir string, maxEntries int) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if err := os.MkdirAll(spillDir, 0700); err != nil {
		return nil, fmt.Errorf("create spill directory: %w", err)
	}
	return &Cache{
		entries:  make(map[string]*entry),
		lru:      list.New(),
		max:      maxEntries,
		spillDir: spillDir,
		roots:    make(map[string]*sync.Mutex),
	}, nil
}

// RootLock returns the lock serializing updates for one root. Watchers
// hold it for the duration of a pass.
func (c *Cache) RootLock(root string) *sync.Mutex {
	c.rootMu.Lock()
	defer c.rootMu.Unlock()
	mu, ok := c.roots[root]
	if !ok {
		mu = &sync.Mutex{}
		c.roots[root] = mu
	}
	return mu
}

// Get returns the state for a path, re-admitting a spilled entry if one
// exists on disk.
func (c *Cache) Get(path string) (FileState, bool) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		c.lru.MoveToFront(e.elem)
		st := e.state
		c.mu.Unlock()
		return st, true
	}
	c.mu.Unlock()

	st, ok := c.loadSpilled(path)
	if !ok {
		return FileState{}, false
	}
	c.Put(st)
	_ = os.Remove(c.spillPath(path))
	return st, true
}

// Put inserts or updates a state, evicting the least-recently-updated
// entry to disk when the bound is exceeded.
func (c *Cache) Put(st FileState) {
	c.mu.Lock()
	if e, ok := c.entries[st.Path]; ok {
		e.state = st
		c.lru.MoveToFront(e.elem)
		c.mu.Unlock()
		return
	}
	e := &entry{state: st}
	e.elem = c.lru.PushFront(st.Path)
	c.entries[st.Path] = e

	var evicted []FileState
	for len(c.entries) > c.max {
		back := c.lru.Back()
		if back == nil {
			break
		}
		victim := back.Value.(string)
		evicted = append(evicted, c.entries[victim].state)
		c.lru.Remove(back)
		delete(c.entries, victim)
	}
	c.mu.Unlock()

	for _, v := range evicted {
		c.spill(v)
	}
}

// Delete removes a path from memory and from the spill area.
func (c *Cache) Delete(path string) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		c.lru.Remove(e.elem)
		delete(c.entries, path)
	}
	c.mu.Unlock()
	_ = os.Remove(c.spillPath(path))
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PathsUnder returns all cached paths (memory and spill) under root.
func (c *Cache) PathsUnder(root string) []string {
	prefix := root + string(filepath.Separator)
	var paths []string

	c.mu.Lock()
	for p := range c.entries {
		if p == root || strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	c.mu.Unlock()

	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		seen[p] = true
	}
	for _, st := range c.readSpillDir() {
		if seen[st.Path] {
			continue
		}
		if st.Path == root || strings.HasPrefix(st.Path, prefix) {
			paths = append(paths, st.Path)
		}
	}
	return paths
}

// DropRoot removes every entry under root, memory and spill. Used when
// a root is removed from the configuration so its state does not
// outlive it.
func (c *Cache) DropRoot(root string) {
	for _, p := range c.PathsUnder(root) {
		c.Delete(p)
	}
}

func (c *Cache) spillPath(path string) string {
	return filepath.Join(c.spillDir, fmt.Sprintf("%016x.json", xxhash.Sum64String(path)))
}

func (c *Cache) spill(st FileState) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	target := c.spillPath(st.Path)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return
	}
	_ = os.Rename(tmp, target)
}

func (c *Cache) loadSpilled(path string) (FileState, bool) {
	data, err := os.ReadFile(c.spillPath(path))
	if err != nil {
		return FileState{}, false
	}
	var st FileState
	if err := json.Unmarshal(data, &st); err != nil {
		return FileState{}, false
	}
	// Hash collisions in the spill key are possible; verify the path.
	if st.Path != path {
		return FileState{}, false
	}
	return st, true
}

func (c *Cache) readSpillDir() []FileState {
	entries, err := os.ReadDir(c.spillDir)
	if err != nil {
		return nil
	}
	var states []FileState
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.spillDir, e.Name()))
		if err != nil {
			continue
		}
		var st FileState
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		states = append(states, st)
	}
	return states
}
