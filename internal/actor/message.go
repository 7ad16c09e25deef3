package actor

import (
	"time"

	"github.com/google/uuid"
)

// Message is the envelope routed through an actor's mailbox.
//
// A message is owned by the mailbox until dequeued, then by the executing
// actor for the duration of one handling attempt.
type Message struct {
	ID         string
	UserID     string
	Text       string
	Attempts   int
	EnqueuedAt time.Time
}

// NewMessage builds a message envelope for an inbound user text.
func NewMessage(userID, text string) *Message {
	return &Message{
		ID:         uuid.New().String(),
		UserID:     userID,
		Text:       text,
		EnqueuedAt: time.Now().UTC(),
	}
}
