// Package chat implements the per-user session actor: it classifies each
// inbound message into a conversational mode, generates a reply through
// the chat completion backend and delivers it to the user, recording
// session-affecting events along the way.
package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chimera-dev/chimera/internal/actor"
	"github.com/chimera-dev/chimera/internal/eventstore"
	"github.com/chimera-dev/chimera/internal/observability"
	"github.com/chimera-dev/chimera/internal/resilience"
	"github.com/chimera-dev/chimera/internal/session"
)

// Generator produces a reply for a user message in a given mode.
type Generator interface {
	Generate(ctx context.Context, prompt string, mode session.Mode) (string, error)
}

// Deliverer sends outbound text to a user on the messaging platform.
type Deliverer interface {
	Deliver(ctx context.Context, userID, text string) error
}

// Typist is optionally implemented by deliverers that can show a typing
// indicator while a reply is being generated.
type Typist interface {
	Typing(ctx context.Context, userID string) (stop func())
}

// EventAppender receives the session's events.
type EventAppender interface {
	Append(e eventstore.Event) (int, error)
}

// Limiter gates demo access per user.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// limitReachedReply is sent when a user exhausts the daily demo quota.
const limitReachedReply = "Дневной лимит сообщений исчерпан. Попробуйте снова завтра."

// Actor holds one user's session state. The actor system guarantees a
// single in-flight Handle call, so the session needs no locking.
type Actor struct {
	session   *session.UserSession
	detector  *session.Detector
	generator Generator
	deliverer Deliverer
	events    EventAppender
	limiter   Limiter
	log       *zap.Logger

	// Intake state for the message currently being handled. Quota
	// charging, classification and intake events must happen exactly once
	// per message even when the retry pipeline re-invokes Handle.
	intakeMsgID  string
	intakeMode   session.Mode
	intakeDenied bool
}

// Options wires the actor's collaborators. Limiter may be nil.
type Options struct {
	Detector  *session.Detector
	Generator Generator
	Deliverer Deliverer
	Events    EventAppender
	Limiter   Limiter
	Logger    *zap.Logger
}

// NewActor creates the session actor for a user.
func NewActor(userID string, historySize int, opts Options) (*Actor, error) {
	sess, err := session.NewUserSession(userID, historySize)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Actor{
		session:   sess,
		detector:  opts.Detector,
		generator: opts.Generator,
		deliverer: opts.Deliverer,
		events:    opts.Events,
		limiter:   opts.Limiter,
		log:       opts.Logger.With(zap.String("component", "session_actor"), zap.String("user_id", userID)),
	}, nil
}

// Session exposes the session state for inspection.
func (a *Actor) Session() *session.UserSession {
	return a.session
}

// Handle processes one inbound message end to end. The retry pipeline
// may invoke it several times for the same message; only reply
// generation and delivery are re-run on later attempts, while intake
// (quota, classification, intake events) sticks to the first.
func (a *Actor) Handle(ctx context.Context, msg *actor.Message) error {
	ctx, span := observability.StartSpan(ctx, "chat.handle")
	defer span.End()

	if msg.ID != a.intakeMsgID {
		a.intake(ctx, msg)
	}

	if a.intakeDenied {
		if err := a.deliverer.Deliver(ctx, msg.UserID, limitReachedReply); err != nil {
			return &resilience.DownstreamError{Err: fmt.Errorf("deliver limit notice: %w", err)}
		}
		return nil
	}
	mode := a.intakeMode

	if typist, ok := a.deliverer.(Typist); ok {
		stop := typist.Typing(ctx, msg.UserID)
		defer stop()
	}

	reply, err := a.generator.Generate(ctx, msg.Text, mode)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	if err := a.deliverer.Deliver(ctx, msg.UserID, reply); err != nil {
		return &resilience.DownstreamError{Err: fmt.Errorf("deliver reply: %w", err)}
	}

	a.append("response_generated", map[string]any{
		"message_id": msg.ID,
		"mode":       string(mode),
		"length":     len(reply),
	})
	return nil
}

// intake runs the once-per-message work: the daily quota charge, mode
// classification with its session history update, and the intake events.
func (a *Actor) intake(ctx context.Context, msg *actor.Message) {
	a.intakeMsgID = msg.ID
	a.intakeDenied = false

	if a.limiter != nil {
		allowed, err := a.limiter.Allow(ctx, msg.UserID)
		if err != nil {
			// The limiter backend being down must not block users.
			a.log.Warn("limiter unavailable, allowing message", zap.Error(err))
		} else if !allowed {
			a.intakeDenied = true
			a.append("daily_limit_reached", map[string]any{"message_id": msg.ID})
			return
		}
	}

	a.append("message_received", map[string]any{
		"message_id": msg.ID,
		"length":     len(msg.Text),
	})

	mode, confidence := a.detector.Classify(msg.Text, a.session)
	a.session.RecordMetric("last_confidence", confidence)
	a.append("mode_detected", map[string]any{
		"message_id": msg.ID,
		"mode":       string(mode),
		"confidence": confidence,
	})
	observability.RecordModeDetected(string(mode))
	a.log.Debug("mode detected",
		zap.String("mode", string(mode)),
		zap.Float64("confidence", confidence))
	a.intakeMode = mode
}

func (a *Actor) append(eventType string, payload map[string]any) {
	if a.events == nil {
		return
	}
	if _, err := a.events.Append(eventstore.Event{
		Type:     eventType,
		StreamID: a.session.UserID,
		Payload:  payload,
	}); err != nil {
		a.log.Error("append event", zap.String("event_type", eventType), zap.Error(err))
	}
}
