package eventstore

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chimera-dev/chimera/internal/config"
	"github.com/google/uuid"
)

// MemoryStore holds at most a configured number of events in memory.
// Appends are serialized store-wide, which also serializes writers of any
// single stream. An LRU cache keeps the decoded event sequences of hot
// streams; a cache miss rebuilds the stream by scanning the log.
//
// Evicted events are unrecoverable. The store gives no durability
// guarantee across process restarts.
type MemoryStore struct {
	maxEvents int
	batchSize int
	now       func() time.Time

	mu       sync.RWMutex
	events   []Event // global append order
	position int     // total events ever appended
	evicted  uint64

	cache *lru.Cache[string, []Event]
}

// NewMemoryStore creates a store from configuration.
func NewMemoryStore(cfg config.EventStoreConfig) (*MemoryStore, error) {
	cache, err := lru.New[string, []Event](cfg.StreamCacheSize)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		maxEvents: cfg.MaxMemoryEvents,
		batchSize: cfg.CleanupBatchSize,
		now:       time.Now,
		cache:     cache,
	}, nil
}

// Append validates and appends an event to its stream, returning the
// event's position in global append order. When the append pushes the
// store over capacity a cleanup pass runs synchronously.
func (s *MemoryStore) Append(e Event) (int, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}

	pos := s.position
	s.position++
	s.events = append(s.events, e)

	if cached, ok := s.cache.Get(e.StreamID); ok {
		s.cache.Add(e.StreamID, append(cached, e))
	}
	if len(s.events) > s.maxEvents {
		s.cleanupLocked()
	}
	return pos, nil
}

// Read returns the events of a stream in append order. The returned
// slice is a copy and safe to iterate repeatedly.
func (s *MemoryStore) Read(streamID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cached, ok := s.cache.Get(streamID); ok {
		return copyEvents(cached)
	}

	var stream []Event
	for _, e := range s.events {
		if e.StreamID == streamID {
			stream = append(stream, e)
		}
	}
	s.cache.Add(streamID, stream)
	return copyEvents(stream)
}

// ReadAllSince returns events across all streams with a timestamp at or
// after ts, in global append order.
func (s *MemoryStore) ReadAllSince(ts time.Time) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, e := range s.events {
		if !e.Timestamp.Before(ts) {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of events currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Evicted reports how many events cleanup has removed.
func (s *MemoryStore) Evicted() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}

// Cleanup removes the oldest events in batches until the store is back
// under its capacity. It is also scheduled periodically by the process
// scheduler. Returns the number of events removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked()
}

func (s *MemoryStore) cleanupLocked() int {
	removed := 0
	for len(s.events) > s.maxEvents {
		n := s.batchSize
		if over := len(s.events) - s.maxEvents; n > over {
			n = over
		}
		s.events = append([]Event(nil), s.events[n:]...)
		removed += n
	}
	if removed > 0 {
		s.evicted += uint64(removed)
		// Cached streams may reference evicted events; rebuild on demand.
		s.cache.Purge()
	}
	return removed
}

func copyEvents(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
