package actor

import (
	"errors"
	"time"
)

var (
	// ErrQueueFull is returned when a mailbox is at capacity. Enqueue
	// fails fast instead of blocking the sender.
	ErrQueueFull = errors.New("mailbox queue full")

	// ErrDequeueTimeout is returned when no message arrives within the
	// dequeue wait. It is an expected idle condition, not a failure.
	ErrDequeueTimeout = errors.New("mailbox dequeue timed out")

	// ErrMailboxClosed is returned when dequeuing from a closed mailbox.
	ErrMailboxClosed = errors.New("mailbox closed")
)

// Mailbox is the bounded FIFO message queue feeding one actor.
// Capacity is fixed at construction.
type Mailbox struct {
	ch chan *Message
}

// NewMailbox creates a mailbox with the given capacity.
func NewMailbox(capacity int) *Mailbox {
	return &Mailbox{ch: make(chan *Message, capacity)}
}

// Enqueue adds a message, returning ErrQueueFull when at capacity.
func (m *Mailbox) Enqueue(msg *Message) error {
	select {
	case m.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue waits up to timeout for the next message. It returns
// ErrDequeueTimeout when the wait elapses so the dispatch loop can do
// idle housekeeping without busy-spinning.
func (m *Mailbox) Dequeue(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-m.ch:
		if !ok {
			return nil, ErrMailboxClosed
		}
		return msg, nil
	case <-timer.C:
		return nil, ErrDequeueTimeout
	}
}

// TryDequeue returns the next message without waiting. Used to drain a
// mailbox during shutdown.
func (m *Mailbox) TryDequeue() (*Message, bool) {
	select {
	case msg, ok := <-m.ch:
		if !ok {
			return nil, false
		}
		return msg, true
	default:
		return nil, false
	}
}

// Len reports the number of pending messages.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// Cap reports the mailbox capacity.
func (m *Mailbox) Cap() int {
	return cap(m.ch)
}
