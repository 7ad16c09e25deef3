package resilience

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chimera-dev/chimera/internal/config"
)

func newTestQueue(maxSize int, retention time.Duration) *DeadLetterQueue {
	return NewDeadLetterQueue(config.DLQConfig{
		MaxSize:         maxSize,
		Retention:       retention,
		CleanupInterval: time.Hour,
	})
}

func TestQueueNeverExceedsCapacity(t *testing.T) {
	q := newTestQueue(3, time.Hour)

	for i := 0; i < 10; i++ {
		q.Push(&Entry{Message: fmt.Sprintf("m%d", i), Reason: "fail"})
		assert.LessOrEqual(t, q.Size(), 3)
	}
	assert.Equal(t, 3, q.Size())
	assert.Equal(t, uint64(7), q.Evicted())
}

func TestQueueEvictsOldestFirst(t *testing.T) {
	q := newTestQueue(2, time.Hour)

	q.Push(&Entry{Message: "first"})
	q.Push(&Entry{Message: "second"})
	q.Push(&Entry{Message: "third"})

	entries := q.Drain(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, "third", entries[1].Message)
}

func TestQueueDrainLimit(t *testing.T) {
	q := newTestQueue(10, time.Hour)
	for i := 0; i < 5; i++ {
		q.Push(&Entry{Message: i})
	}

	first := q.Drain(2)
	require.Len(t, first, 2)
	assert.Equal(t, 0, first[0].Message)
	assert.Equal(t, 1, first[1].Message)
	assert.Equal(t, 3, q.Size())

	rest := q.Drain(0)
	assert.Len(t, rest, 3)
	assert.Equal(t, 0, q.Size())
}

func TestQueueSweepDropsExpiredEntries(t *testing.T) {
	q := newTestQueue(10, time.Hour)

	now := time.Now()
	q.now = func() time.Time { return now }

	q.Push(&Entry{Message: "old", FailedAt: now.Add(-2 * time.Hour)})
	q.Push(&Entry{Message: "fresh", FailedAt: now.Add(-time.Minute)})

	q.Sweep()

	entries := q.Drain(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].Message)
}

func TestQueueSizeHookFires(t *testing.T) {
	q := newTestQueue(2, time.Hour)

	var lastSize int
	var lastEvicted uint64
	q.OnSize(func(size int, evicted, _ uint64) {
		lastSize = size
		lastEvicted = evicted
	})

	q.Push(&Entry{Message: "a"})
	q.Push(&Entry{Message: "b"})
	q.Push(&Entry{Message: "c"})

	assert.Equal(t, 2, lastSize)
	assert.Equal(t, uint64(1), lastEvicted)
}
