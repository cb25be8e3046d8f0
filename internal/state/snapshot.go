package state

import (
	"encoding/json"
	"fmt"
	"os"
)

// snapshot is the on-disk representation of the full cache.
type snapshot struct {
	Version int         `json:"version"`
	States  []FileState `json:"states"`
}

const snapshotVersion = 1

// SaveSnapshot writes every known FileState (in-memory and spilled) to
// path atomically. Called on clean shutdown and periodically.
func (c *Cache) SaveSnapshot(path string) error {
	snap := snapshot{Version: snapshotVersion}

	c.mu.Lock()
	for _, e := range c.entries {
		snap.States = append(snap.States, e.state)
	}
	c.mu.Unlock()

	seen := make(map[string]bool, len(snap.States))
	for _, st := range snap.States {
		seen[st.Path] = true
	}
	for _, st := range c.readSpillDir() {
		if !seen[st.Path] {
			snap.States = append(snap.States, st)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot pre-seeds the cache from a snapshot file. A missing file
// is not an error; the cache simply starts empty.
func (c *Cache) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	for _, st := range snap.States {
		c.Put(st)
	}
	return nil
}
