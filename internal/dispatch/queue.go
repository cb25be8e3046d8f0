package dispatch

import (
	"sync"

	"github.com/ppiankov/filesentry/internal/metrics"
	"github.com/ppiankov/filesentry/internal/model"
)

// DefaultQueueCapacity bounds the ingress queue fed by all watchers.
const DefaultQueueCapacity = 1024

// Queue is the bounded ingress queue. Push never blocks: on overflow it
// sheds modified events first — oldest for the same path, then oldest
// globally — and only rejects the incoming event when nothing else can
// yield. Created, deleted, and renamed events are never shed to make
// room for a modified one.
type Queue struct {
	mu    sync.Mutex
	buf   []model.Event
	cap   int
	shed  uint64
	ready chan struct{}
}

// NewQueue creates a queue with the given capacity (0 means default).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		cap:   capacity,
		ready: make(chan struct{}, 1),
	}
}

// Push enqueues an event, applying the shed policy on overflow. The
// return value reports whether the incoming event was accepted; every
// shed event, incoming or resident, is counted.
func (q *Queue) Push(ev model.Event) bool {
	q.mu.Lock()
	if len(q.buf) >= q.cap {
		if !q.shedLocked(ev.Path) {
			if ev.Kind == model.Modified {
				q.shed++
				q.mu.Unlock()
				metrics.EventsShed.Inc()
				return false
			}
			// No modified event anywhere to yield; the structural
			// event still wins over the oldest resident.
			q.buf = q.buf[1:]
			q.shed++
			metrics.EventsShed.Inc()
		}
	}
	q.buf = append(q.buf, ev)
	depth := len(q.buf)
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(depth))
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// shedLocked removes the oldest modified event for path, falling back
// to the oldest modified globally. Returns false when none exists.
func (q *Queue) shedLocked(path string) bool {
	victim := -1
	for i, ev := range q.buf {
		if ev.Kind != model.Modified {
			continue
		}
		if ev.Path == path {
			victim = i
			break
		}
		if victim == -1 {
			victim = i
		}
	}
	if victim == -1 {
		return false
	}
	q.buf = append(q.buf[:victim], q.buf[victim+1:]...)
	q.shed++
	metrics.EventsShed.Inc()
	return true
}

// Shed returns the total number of shed events.
func (q *Queue) Shed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shed
}

// TryPop removes the head event without blocking.
func (q *Queue) TryPop() (model.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		metrics.QueueDepth.Set(0)
		return model.Event{}, false
	}
	ev := q.buf[0]
	q.buf = q.buf[1:]
	metrics.QueueDepth.Set(float64(len(q.buf)))
	return ev, true
}

// Ready signals that at least one event may be pending.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
