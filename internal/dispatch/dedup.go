package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ppiankov/filesentry/internal/model"
)

// Key derives the dedup key for an event: SHA-256 over path, kind, and
// the observation time floored to one second. Identical observations
// within the same second always collide.
func Key(path string, kind model.EventKind, at time.Time) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	var buf [8]byte
	sec := at.Unix()
	for i := 7; i >= 0; i-- {
		buf[i] = byte(sec)
		sec >>= 8
	}
	h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Window remembers recently seen dedup keys for a fixed duration.
type Window struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

// NewWindow creates a dedup window of the given duration.
func NewWindow(window time.Duration) *Window {
	return &Window{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

// Seen records the key and reports whether it was already present
// within the window.
func (w *Window) Seen(key string, at time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.seen[key]; ok && at.Sub(prev) < w.window {
		return true
	}
	w.seen[key] = at
	return false
}

// Sweep drops keys older than the window. Called periodically by the
// dispatcher loop.
func (w *Window) Sweep(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, at := range w.seen {
		if now.Sub(at) >= w.window {
			delete(w.seen, k)
		}
	}
}

// Len returns the number of tracked keys.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
