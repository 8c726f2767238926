// Package operation couples a list of conditions with pass and fail actions to
// form a gate-checked unit of game logic that runs on the event scheduler.
package operation

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/event"
)

// Action is one step of an operation's pass or fail branch.
type Action func(ctx event.Context) error

// FailureReporter surfaces a failed condition's message to the requestor.
// Implementations decide whether the requestor is a player who can see it.
type FailureReporter interface {
	ReportFailure(requestorID uint32, msg string)
}

// Operation is an Event that evaluates its conditions when it fires and runs
// either its pass or its fail actions.
//
// Concrete operations are constructors that populate these lists; nothing
// subclasses Operation.
type Operation struct {
	*event.Base

	conditions []Condition
	onPass     []Action
	onFail     []Action

	exhaustion ExhaustionType
	cost       time.Duration
	sink       ExhaustionSink
	reporter   FailureReporter
}

// New creates an Operation with no conditions and no actions.
//
// Precondition: kind must be non-empty.
func New(kind string, requestorID uint32, opts ...event.Option) *Operation {
	return &Operation{Base: event.NewBase(kind, requestorID, opts...)}
}

// When appends conditions, evaluated in the order given.
func (o *Operation) When(conds ...Condition) *Operation {
	o.conditions = append(o.conditions, conds...)
	return o
}

// OnPass appends actions run when every condition holds.
func (o *Operation) OnPass(actions ...Action) *Operation {
	o.onPass = append(o.onPass, actions...)
	return o
}

// OnFail appends actions run when a condition fails.
func (o *Operation) OnFail(actions ...Action) *Operation {
	o.onFail = append(o.onFail, actions...)
	return o
}

// WithExhaustion sets the cooldown this operation charges sink when it passes.
func (o *Operation) WithExhaustion(t ExhaustionType, cost time.Duration, sink ExhaustionSink) *Operation {
	o.exhaustion, o.cost, o.sink = t, cost, sink
	return o
}

// ReportFailuresTo sets where the first failing condition's message goes.
func (o *Operation) ReportFailuresTo(r FailureReporter) *Operation {
	o.reporter = r
	return o
}

// ExhaustionType returns the cooldown class of the operation.
func (o *Operation) ExhaustionType() ExhaustionType { return o.exhaustion }

// ExhaustionCost returns the cooldown charged when the operation passes.
func (o *Operation) ExhaustionCost() time.Duration { return o.cost }

// Execute evaluates conditions in order, stopping at the first failure, then
// runs the matching action list in order. A failed condition is a gameplay
// rejection, not an error. An action error stops its list and is returned.
func (o *Operation) Execute(ctx event.Context) error {
	failed := o.firstFailure()
	if failed == nil {
		if o.sink != nil && o.exhaustion != ExhaustionNone && o.cost > 0 {
			o.sink.AddExhaustion(o.exhaustion, o.cost, ctx.Now())
		}
		return o.run(ctx, "pass", o.onPass)
	}

	ctx.Logger().Debug("operation rejected",
		zap.String("kind", o.Kind()),
		zap.Uint32("requestor", o.RequestorID()),
		zap.String("reason", failed.ErrorMessage()),
	)
	err := o.run(ctx, "fail", o.onFail)
	if o.reporter != nil && o.RequestorID() != 0 && failed.ErrorMessage() != "" {
		o.reporter.ReportFailure(o.RequestorID(), failed.ErrorMessage())
	}
	return err
}

func (o *Operation) firstFailure() Condition {
	for _, c := range o.conditions {
		if !c.Evaluate() {
			return c
		}
	}
	return nil
}

func (o *Operation) run(ctx event.Context, branch string, actions []Action) error {
	for i, a := range actions {
		if err := a(ctx); err != nil {
			return fmt.Errorf("%s %s action %d: %w", o.Kind(), branch, i, err)
		}
	}
	return nil
}

// Scheduler is the subset of *event.Scheduler that operations use to chain
// further work and to supersede earlier intentions.
type Scheduler interface {
	ScheduleEvent(ev event.Event, delay time.Duration) error
	CancelEvent(ev event.Event) bool
	CancelAllFor(requestorID uint32, kinds ...string) int
}
