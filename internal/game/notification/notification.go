// Package notification carries outbound text to observing players as
// scheduled events.
package notification

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/event"
)

// Kind is the event kind of every Notification.
const Kind = "notification"

// Sender delivers text to a creature's connection. Ids without a connection,
// such as monsters, are ignored.
type Sender interface {
	Send(creatureID uint32, text string)
}

// Notification is an Event that delivers one message to a set of recipients
// when it fires.
type Notification struct {
	*event.Base
	sender     Sender
	text       string
	recipients []uint32
}

// New builds a Notification. Notifications are not cancellable so that a
// logout sweep never swallows messages to other players.
func New(sender Sender, text string, recipients ...uint32) *Notification {
	return &Notification{
		Base:       event.NewBase(Kind, 0, event.NotCancellable()),
		sender:     sender,
		text:       text,
		recipients: slices.Clone(recipients),
	}
}

// Text returns the message.
func (n *Notification) Text() string { return n.text }

// Recipients returns the creature ids the message goes to.
func (n *Notification) Recipients() []uint32 { return slices.Clone(n.recipients) }

// Execute sends the message to every recipient.
func (n *Notification) Execute(event.Context) error {
	for _, id := range n.recipients {
		n.sender.Send(id, n.text)
	}
	return nil
}

// Scheduler is the subset of *event.Scheduler a Notifier needs.
type Scheduler interface {
	ScheduleEvent(ev event.Event, delay time.Duration) error
}

// Notifier turns messages into scheduled Notifications.
type Notifier struct {
	sched  Scheduler
	sender Sender
	logger *zap.Logger
}

// NewNotifier creates a Notifier.
//
// Precondition: sched and sender must be non-nil.
func NewNotifier(sched Scheduler, sender Sender, logger *zap.Logger) *Notifier {
	if sched == nil || sender == nil {
		panic("notification.NewNotifier: scheduler and sender must be non-nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sched: sched, sender: sender, logger: logger}
}

// Notify schedules text for immediate delivery to recipients.
func (n *Notifier) Notify(text string, recipients ...uint32) {
	if len(recipients) == 0 || text == "" {
		return
	}
	if err := n.sched.ScheduleEvent(New(n.sender, text, recipients...), 0); err != nil {
		n.logger.Error("scheduling notification", zap.Error(err))
	}
}

// ReportFailure sends a failed condition's message to the requestor.
func (n *Notifier) ReportFailure(requestorID uint32, msg string) {
	n.Notify(msg, requestorID)
}
