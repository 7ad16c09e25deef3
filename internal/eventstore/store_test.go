package eventstore

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-dev/chimera/internal/config"
)

func newTestStore(t *testing.T, maxEvents, batchSize int) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(config.EventStoreConfig{
		MaxMemoryEvents:  maxEvents,
		StreamCacheSize:  4,
		CleanupBatchSize: batchSize,
	})
	require.NoError(t, err)
	return store
}

func TestAppendAssignsGlobalPositions(t *testing.T) {
	store := newTestStore(t, 100, 10)

	for i := 0; i < 5; i++ {
		pos, err := store.Append(Event{Type: "ping", StreamID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, i, pos)
	}
}

func TestAppendRejectsEmptyEventType(t *testing.T) {
	store := newTestStore(t, 100, 10)

	_, err := store.Append(Event{StreamID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Equal(t, 0, store.Len())
}

func TestAppendAllowsEmptyStreamID(t *testing.T) {
	store := newTestStore(t, 100, 10)

	_, err := store.Append(Event{Type: "global_tick"})
	require.NoError(t, err)
	assert.Len(t, store.Read(""), 1)
}

func TestReadReturnsStreamInAppendOrder(t *testing.T) {
	store := newTestStore(t, 100, 10)

	for i := 0; i < 3; i++ {
		_, err := store.Append(Event{Type: fmt.Sprintf("e%d", i), StreamID: "alice"})
		require.NoError(t, err)
		_, err = store.Append(Event{Type: "noise", StreamID: "bob"})
		require.NoError(t, err)
	}

	events := store.Read("alice")
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, fmt.Sprintf("e%d", i), e.Type)
		assert.Equal(t, "alice", e.StreamID)
	}
}

func TestReadAfterAppendSeesNewEvents(t *testing.T) {
	store := newTestStore(t, 100, 10)

	_, err := store.Append(Event{Type: "first", StreamID: "s1"})
	require.NoError(t, err)

	// Prime the stream cache, then append more.
	require.Len(t, store.Read("s1"), 1)

	_, err = store.Append(Event{Type: "second", StreamID: "s1"})
	require.NoError(t, err)

	events := store.Read("s1")
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[1].Type)
}

func TestCleanupEnforcesCapacity(t *testing.T) {
	store := newTestStore(t, 10, 3)

	for i := 0; i < 25; i++ {
		_, err := store.Append(Event{Type: fmt.Sprintf("e%d", i), StreamID: "s1"})
		require.NoError(t, err)
		assert.LessOrEqual(t, store.Len(), 10)
	}

	assert.Equal(t, uint64(15), store.Evicted())

	// The oldest events are gone; the newest survive in order.
	events := store.Read("s1")
	require.Len(t, events, 10)
	assert.Equal(t, "e15", events[0].Type)
	assert.Equal(t, "e24", events[9].Type)
}

func TestReadAllSinceFiltersByTimestamp(t *testing.T) {
	store := newTestStore(t, 100, 10)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err := store.Append(Event{
			Type:      fmt.Sprintf("e%d", i),
			StreamID:  "s1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	since := store.ReadAllSince(base.Add(2 * time.Minute))
	require.Len(t, since, 2)
	assert.Equal(t, "e2", since[0].Type)
	assert.Equal(t, "e3", since[1].Type)
}

func TestEventJSONTimestampFormat(t *testing.T) {
	e := Event{
		ID:        "abc",
		Type:      "mode_detected",
		StreamID:  "user-1",
		Timestamp: time.Date(2025, 6, 1, 12, 30, 45, 123456000, time.UTC),
		Payload:   map[string]any{"mode": "expert"},
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":"2025-06-01T12:30:45.123456Z"`)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, e.Type, decoded.Type)
	assert.True(t, decoded.Timestamp.Equal(e.Timestamp))
}
