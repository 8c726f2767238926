// Package event implements the game's logical clock: time-stamped events and the
// single-consumer Scheduler that orders, delays, cancels and fires them.
package event

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle stage of an event instance.
type State int32

const (
	StateCreated State = iota
	StateScheduled
	StateFired
	StateCancelled
	StateCompleted
)

// String returns a human-readable state label.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateScheduled:
		return "scheduled"
	case StateFired:
		return "fired"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Context is supplied to every Execute call.
type Context interface {
	// Now returns the scheduler clock's current time.
	Now() time.Time
	// Logger returns the logger events should write to.
	Logger() *zap.Logger
}

// Event is a unit of deferred work. Every implementation embeds *Base, which
// supplies identity, repeat policy and lifecycle state.
type Event interface {
	ID() uuid.UUID
	RequestorID() uint32
	Kind() string
	RepeatAfter() time.Duration
	CanBeCancelled() bool
	State() State

	// Execute performs the event's work on the scheduler's consumer goroutine.
	Execute(ctx Context) error

	base() *Base
}

// Base holds the fields shared by every event.
//
// Invariant: id never changes after NewBase returns.
type Base struct {
	id          uuid.UUID
	requestorID uint32
	kind        string
	repeatAfter time.Duration
	cancellable bool
	state       atomic.Int32
}

// Option configures a Base at construction.
type Option func(*Base)

// WithRepeat makes the event re-submit itself after d each time it fires.
//
// Precondition: d > 0.
func WithRepeat(d time.Duration) Option {
	return func(b *Base) {
		if d <= 0 {
			panic("event.WithRepeat: duration must be > 0")
		}
		b.repeatAfter = d
	}
}

// NotCancellable marks the event as immune to CancelEvent and CancelAllFor.
func NotCancellable() Option {
	return func(b *Base) { b.cancellable = false }
}

// NewBase creates a Base with a fresh id in StateCreated.
//
// Precondition: kind must be non-empty.
// Postcondition: Returns a cancellable, non-repeating Base unless opts say otherwise.
func NewBase(kind string, requestorID uint32, opts ...Option) *Base {
	if kind == "" {
		panic("event.NewBase: kind must not be empty")
	}
	b := &Base{
		id:          uuid.New(),
		requestorID: requestorID,
		kind:        kind,
		cancellable: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID returns the process-unique event id.
func (b *Base) ID() uuid.UUID { return b.id }

// RequestorID returns the creature that caused the event, or 0 for system events.
func (b *Base) RequestorID() uint32 { return b.requestorID }

// Kind returns the event subtype name.
func (b *Base) Kind() string { return b.kind }

// RepeatAfter returns the repeat interval, or 0 for one-shot events.
func (b *Base) RepeatAfter() time.Duration { return b.repeatAfter }

// CanBeCancelled reports whether the scheduler may cancel this event.
func (b *Base) CanBeCancelled() bool { return b.cancellable }

// State returns the current lifecycle state. Safe for concurrent use.
func (b *Base) State() State { return State(b.state.Load()) }

func (b *Base) base() *Base { return b }

func (b *Base) setState(s State) { b.state.Store(int32(s)) }

func (b *Base) transition(from, to State) bool {
	return b.state.CompareAndSwap(int32(from), int32(to))
}

// Func is an Event whose work is a plain function. Useful for system ticks and tests.
type Func struct {
	*Base
	fn func(ctx Context) error
}

// NewFunc wraps fn as an Event.
//
// Precondition: fn must not be nil.
func NewFunc(kind string, requestorID uint32, fn func(ctx Context) error, opts ...Option) *Func {
	if fn == nil {
		panic("event.NewFunc: fn must not be nil")
	}
	return &Func{Base: NewBase(kind, requestorID, opts...), fn: fn}
}

// Execute calls the wrapped function.
func (f *Func) Execute(ctx Context) error { return f.fn(ctx) }
