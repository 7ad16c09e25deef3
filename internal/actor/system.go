// Package actor implements mailbox-based per-user concurrency: each user
// gets an isolated actor whose dispatch loop processes messages one at a
// time, wrapped in the retry/circuit-breaker/dead-letter pipeline.
package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chimera-dev/chimera/internal/config"
	"github.com/chimera-dev/chimera/internal/eventstore"
	"github.com/chimera-dev/chimera/internal/observability"
	"github.com/chimera-dev/chimera/internal/resilience"
)

// ErrSystemClosed is returned when routing a message after shutdown began.
var ErrSystemClosed = errors.New("actor system closed")

// Handler processes one message on behalf of an actor. Implementations
// own their session state exclusively; the dispatch loop guarantees a
// single in-flight call per actor.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFactory builds the handler for a newly seen user.
type HandlerFactory func(userID string) (Handler, error)

// SystemOptions wires the system's collaborators.
type SystemOptions struct {
	Retrier *resilience.Executor
	DLQ     *resilience.DeadLetterQueue
	// Events, when set, receives a message_failed event for every
	// dead-lettered message.
	Events *eventstore.MemoryStore
	// Dependency names the guarded external dependency consulted on the
	// circuit breaker for each handling attempt.
	Dependency string
	Logger     *zap.Logger
}

// System owns the set of live actors keyed by user, creates them lazily
// on first message, and runs each dispatch loop as its own goroutine.
type System struct {
	cfg     config.ActorConfig
	factory HandlerFactory
	retrier *resilience.Executor
	dlq     *resilience.DeadLetterQueue
	events  *eventstore.MemoryStore
	dep     string
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	actors map[string]*runner
	closed bool

	// onProcessed is invoked after each message completes handling or is
	// dead-lettered, with the wall time spent in the retry pipeline.
	// May be nil.
	onProcessed func(userID string, failed bool, elapsed time.Duration)
}

type runner struct {
	userID     string
	mailbox    *Mailbox
	handler    Handler
	stop       chan struct{}
	done       chan struct{}
	lastActive time.Time
}

// NewSystem creates an actor system.
func NewSystem(cfg config.ActorConfig, factory HandlerFactory, opts SystemOptions) *System {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dependency == "" {
		opts.Dependency = "upstream"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &System{
		cfg:     cfg,
		factory: factory,
		retrier: opts.Retrier,
		dlq:     opts.DLQ,
		events:  opts.Events,
		dep:     opts.Dependency,
		log:     opts.Logger.With(zap.String("component", "actor_system"), zap.String("system", cfg.SystemName)),
		ctx:     ctx,
		cancel:  cancel,
		actors:  make(map[string]*runner),
	}
}

// OnProcessed registers a hook called after each message outcome.
func (s *System) OnProcessed(fn func(userID string, failed bool, elapsed time.Duration)) {
	s.mu.Lock()
	s.onProcessed = fn
	s.mu.Unlock()
}

// Tell routes a user's message to their actor, spawning it on first
// contact. Returns ErrQueueFull when the actor's mailbox is at capacity
// so the upstream caller is never blocked.
func (s *System) Tell(userID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSystemClosed
	}

	r, ok := s.actors[userID]
	if !ok {
		handler, err := s.factory(userID)
		if err != nil {
			return fmt.Errorf("spawn actor for %s: %w", userID, err)
		}
		r = &runner{
			userID:     userID,
			mailbox:    NewMailbox(s.cfg.QueueSize),
			handler:    handler,
			stop:       make(chan struct{}),
			done:       make(chan struct{}),
			lastActive: time.Now(),
		}
		s.actors[userID] = r
		go s.dispatchLoop(r)
		s.log.Info("actor spawned", zap.String("user_id", userID))
	}

	return r.mailbox.Enqueue(NewMessage(userID, text))
}

// ActiveActors reports the number of live actors.
func (s *System) ActiveActors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actors)
}

// dispatchLoop pulls messages off the mailbox in FIFO order and runs
// them through the retry pipeline, one at a time.
func (s *System) dispatchLoop(r *runner) {
	defer close(r.done)

	for {
		select {
		case <-r.stop:
			s.drain(r)
			return
		case <-s.ctx.Done():
			return
		default:
		}

		msg, err := r.mailbox.Dequeue(s.cfg.MessageTimeout)
		if err != nil {
			// Idle housekeeping: an actor that stays quiet past its TTL
			// is evicted to bound the actor table.
			if s.cfg.IdleTTL > 0 && time.Since(r.lastActive) >= s.cfg.IdleTTL {
				if s.tryEvict(r) {
					return
				}
			}
			continue
		}

		r.lastActive = time.Now()
		s.process(r, msg)
	}
}

// drain processes whatever is left in the mailbox without waiting, then
// lets the loop exit.
func (s *System) drain(r *runner) {
	for {
		msg, ok := r.mailbox.TryDequeue()
		if !ok {
			return
		}
		s.process(r, msg)
	}
}

// process runs one message through the retry executor. Exhausted retries
// and circuit rejections move the message to the dead letter queue; a
// panicking handler is converted to a failure instead of killing the
// actor.
func (s *System) process(r *runner, msg *Message) {
	start := time.Now()
	err := s.retrier.Run(s.ctx, s.dep, func(ctx context.Context) error {
		msg.Attempts++
		observability.RecordRetryAttempt()
		return s.safeHandle(ctx, r.handler, msg)
	})
	elapsed := time.Since(start)

	failed := err != nil
	if failed {
		s.dlq.Push(&resilience.Entry{
			Message:  msg,
			Reason:   err.Error(),
			Attempts: msg.Attempts,
		})
		s.recordFailure(msg, err)
		s.log.Warn("message dead-lettered",
			zap.String("user_id", msg.UserID),
			zap.String("message_id", msg.ID),
			zap.Int("attempts", msg.Attempts),
			zap.Error(err))
	}

	s.mu.Lock()
	hook := s.onProcessed
	s.mu.Unlock()
	if hook != nil {
		hook(msg.UserID, failed, elapsed)
	}
}

func (s *System) safeHandle(ctx context.Context, h Handler, msg *Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h.Handle(ctx, msg)
}

func (s *System) recordFailure(msg *Message, cause error) {
	if s.events == nil {
		return
	}
	_, err := s.events.Append(eventstore.Event{
		Type:     "message_failed",
		StreamID: msg.UserID,
		Payload: map[string]any{
			"message_id": msg.ID,
			"reason":     cause.Error(),
			"attempts":   msg.Attempts,
		},
	})
	if err != nil {
		s.log.Error("failed to record failure event", zap.Error(err))
	}
}

// tryEvict removes an idle actor unless new mail arrived in the meantime.
func (s *System) tryEvict(r *runner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || r.mailbox.Len() > 0 {
		return false
	}
	delete(s.actors, r.userID)
	s.log.Info("idle actor evicted", zap.String("user_id", r.userID))
	return true
}

// Shutdown stops accepting new messages, waits up to the configured
// shutdown timeout for dispatch loops to drain their mailboxes and
// finish the current handling attempt, then forcibly terminates any
// still running.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	runners := make([]*runner, 0, len(s.actors))
	for _, r := range s.actors {
		runners = append(runners, r)
	}
	s.mu.Unlock()

	for _, r := range runners {
		close(r.stop)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	g := new(errgroup.Group)
	for _, r := range runners {
		g.Go(func() error {
			select {
			case <-r.done:
				return nil
			case <-waitCtx.Done():
				return fmt.Errorf("actor %s did not drain in time", r.userID)
			}
		})
	}

	err := g.Wait()
	// Force any stragglers to observe cancellation.
	s.cancel()
	if err != nil {
		s.log.Warn("forced actor shutdown", zap.Error(err))
		return err
	}
	s.log.Info("actor system stopped", zap.Int("actors", len(runners)))
	return nil
}
