package resilience

import (
	"sync"
	"time"

	"github.com/chimera-dev/chimera/internal/config"
)

// Entry is a dead-lettered message with its failure context.
type Entry struct {
	// Message is the original envelope that exhausted its retries.
	Message  any
	Reason   string
	FailedAt time.Time
	Attempts int
}

// DeadLetterQueue is a bounded FIFO sink for messages whose retries are
// exhausted. Pushing past capacity evicts the oldest entry first; the
// loss is explicit and counted, never silent.
type DeadLetterQueue struct {
	maxSize   int
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries []*Entry
	evicted uint64
	expired uint64

	// onSize is invoked with the current size after every mutation so
	// metrics stay in step with the queue. May be nil.
	onSize func(size int, evicted, expired uint64)
}

// NewDeadLetterQueue creates a queue from configuration.
func NewDeadLetterQueue(cfg config.DLQConfig) *DeadLetterQueue {
	return &DeadLetterQueue{
		maxSize:   cfg.MaxSize,
		retention: cfg.Retention,
		now:       time.Now,
		entries:   make([]*Entry, 0, cfg.MaxSize),
	}
}

// OnSize registers a metrics hook called after every mutation.
func (q *DeadLetterQueue) OnSize(fn func(size int, evicted, expired uint64)) {
	q.mu.Lock()
	q.onSize = fn
	q.mu.Unlock()
}

// Push appends an entry, evicting the oldest when at capacity.
func (q *DeadLetterQueue) Push(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e.FailedAt.IsZero() {
		e.FailedAt = q.now().UTC()
	}
	q.entries = append(q.entries, e)
	for len(q.entries) > q.maxSize {
		q.entries = q.entries[1:]
		q.evicted++
	}
	q.notify()
}

// Drain removes and returns up to limit entries in FIFO order.
// A non-positive limit drains everything.
func (q *DeadLetterQueue) Drain(limit int) []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || limit > len(q.entries) {
		limit = len(q.entries)
	}
	drained := make([]*Entry, limit)
	copy(drained, q.entries[:limit])
	q.entries = append(q.entries[:0], q.entries[limit:]...)
	q.notify()
	return drained
}

// Size reports the number of entries currently held.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Evicted reports how many entries have been lost to capacity eviction.
func (q *DeadLetterQueue) Evicted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.evicted
}

// Sweep drops entries older than the retention window. It is scheduled
// periodically by the process scheduler.
func (q *DeadLetterQueue) Sweep() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.retention <= 0 {
		return
	}
	cutoff := q.now().Add(-q.retention)
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.FailedAt.After(cutoff) {
			kept = append(kept, e)
		} else {
			q.expired++
		}
	}
	q.entries = kept
	q.notify()
}

// OldestAge returns the age of the oldest entry, or zero when empty.
func (q *DeadLetterQueue) OldestAge() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return 0
	}
	return q.now().Sub(q.entries[0].FailedAt)
}

func (q *DeadLetterQueue) notify() {
	if q.onSize != nil {
		q.onSize(len(q.entries), q.evicted, q.expired)
	}
}
