package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNilEvent is returned when a nil event is passed to the scheduler.
	ErrNilEvent = errors.New("event must not be nil")
	// ErrAlreadyScheduled is returned when an event instance is already queued.
	ErrAlreadyScheduled = errors.New("event is already scheduled")
)

// FiredHandler is notified on the consumer goroutine when an event comes due.
// It is responsible for executing the event.
type FiredHandler func(ev Event) error

// Config holds Scheduler tuning.
type Config struct {
	// Granularity is the resolution due times are rounded up to. Events scheduled
	// within the same window collapse onto one priority and fire in FIFO order.
	Granularity time.Duration
	// MaxWait bounds how long the consumer sleeps without a wake signal.
	MaxWait time.Duration
	// InitialCapacity is the starting size of the priority queue.
	InitialCapacity int
}

// DefaultConfig returns the production scheduler tuning.
func DefaultConfig() Config {
	return Config{
		Granularity:     10 * time.Millisecond,
		MaxWait:         100 * time.Millisecond,
		InitialCapacity: 1024,
	}
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Queued    int
	Capacity  int
	Pending   int
	Fired     uint64
	Cancelled uint64
	Failed    uint64
	Resizes   uint64
}

// Scheduler is a thread-safe priority queue of events keyed by due time, drained
// by a single consumer goroutine started with Run.
//
// Invariant: an event id appears in the queue at most once.
// Concurrency: every method except Run may be called from any goroutine,
// including from inside an executing event.
type Scheduler struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger
	start  time.Time

	mu          sync.Mutex
	queue       *priorityQueue
	cancelled   map[uuid.UUID]struct{}
	byRequestor map[uint32]map[uuid.UUID]Event
	handlers    []FiredHandler

	ingest ingestQueue
	wake   chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	running  atomic.Bool

	fired          atomic.Uint64
	cancelledTotal atomic.Uint64
	failed         atomic.Uint64
	resizes        atomic.Uint64
}

// NewScheduler creates a stopped Scheduler whose start reference is clock.Now().
//
// Precondition: cfg.Granularity >= 1ms; cfg.MaxWait > 0; clock must be non-nil.
// Postcondition: Returns a Scheduler ready to accept events; Run starts firing them.
func NewScheduler(cfg Config, clock Clock, logger *zap.Logger) *Scheduler {
	if cfg.Granularity < time.Millisecond {
		panic("event.NewScheduler: granularity must be >= 1ms")
	}
	if cfg.MaxWait <= 0 {
		panic("event.NewScheduler: max wait must be > 0")
	}
	if clock == nil {
		panic("event.NewScheduler: clock must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:         cfg,
		clock:       clock,
		logger:      logger,
		start:       clock.Now(),
		queue:       newPriorityQueue(cfg.InitialCapacity),
		cancelled:   make(map[uuid.UUID]struct{}),
		byRequestor: make(map[uint32]map[uuid.UUID]Event),
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Now returns the scheduler clock's current time.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Logger returns the scheduler's logger.
func (s *Scheduler) Logger() *zap.Logger { return s.logger }

// OnEventFired registers h to run when an event comes due. With no handlers
// registered the scheduler executes events against itself as the Context.
func (s *Scheduler) OnEventFired(h FiredHandler) {
	if h == nil {
		panic("event.Scheduler.OnEventFired: handler must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// ScheduleEvent queues ev to fire no earlier than now + max(delay, 0).
//
// Postcondition: Returns ErrNilEvent or ErrAlreadyScheduled on misuse; otherwise
// ev is in StateScheduled and indexed under its requestor.
func (s *Scheduler) ScheduleEvent(ev Event, delay time.Duration) error {
	if ev == nil {
		return ErrNilEvent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(ev, s.dueAfter(delay))
}

// ScheduleEventAsync stages ev for the consumer goroutine. The scheduler lock
// is held only for the duplicate check; queue insertion and requestor indexing
// happen on the consumer. The delay is re-based on reconciliation so time spent
// staged counts toward it.
//
// Postcondition: Returns ErrNilEvent or ErrAlreadyScheduled on misuse; otherwise
// ev is in StateScheduled and will be queued on the consumer's next cycle.
func (s *Scheduler) ScheduleEventAsync(ev Event, delay time.Duration) error {
	if ev == nil {
		return ErrNilEvent
	}
	s.mu.Lock()
	if s.pendingLocked(ev.ID()) || !markScheduled(ev.base()) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s %s", ErrAlreadyScheduled, ev.Kind(), ev.ID())
	}
	s.mu.Unlock()
	s.ingest.Push(asyncRequest{ev: ev, delay: delay, requestedAt: s.clock.Now()})
	s.signal()
	return nil
}

// CancelEvent marks ev cancelled. The queue entry is discarded lazily when it
// would otherwise fire.
//
// Postcondition: Returns true exactly once per scheduled instance; false when ev
// cannot be cancelled, is not scheduled, or was already cancelled.
func (s *Scheduler) CancelEvent(ev Event) bool {
	if ev == nil || !ev.CanBeCancelled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(ev)
}

// CancelAllFor cancels every indexed event caused by requestorID. When kinds is
// non-empty only events of those kinds are cancelled.
//
// Postcondition: Returns the number of events cancelled.
func (s *Scheduler) CancelAllFor(requestorID uint32, kinds ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, ev := range s.byRequestor[requestorID] {
		if !matchesKind(ev, kinds) || !ev.CanBeCancelled() {
			continue
		}
		if s.cancelLocked(ev) {
			n++
		}
	}
	return n
}

// Expedite makes ev due immediately. If ev already left the queue it is
// scheduled again with no delay.
//
// Postcondition: Returns true if ev is now queued to fire as soon as possible;
// false for a cancelled event whose entry has not been discarded yet.
func (s *Scheduler) Expedite(ev Event) bool {
	if ev == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cancelled[ev.ID()]; ok {
		return false
	}
	if s.queue.updatePriority(ev.ID(), s.dueAfter(0)) {
		s.signal()
		return true
	}
	return s.scheduleLocked(ev, s.dueAfter(0)) == nil
}

// Delay pushes ev's due time back by d. If ev already left the queue it is
// scheduled again with delay d.
//
// Postcondition: Returns true if ev is queued at its new due time; false for a
// cancelled event whose entry has not been discarded yet.
func (s *Scheduler) Delay(ev Event, d time.Duration) bool {
	if ev == nil {
		return false
	}
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cancelled[ev.ID()]; ok {
		return false
	}
	if due, ok := s.queue.dueOf(ev.ID()); ok {
		s.queue.updatePriority(ev.ID(), s.roundUp(time.Duration(due)*time.Millisecond+d))
		s.signal()
		return true
	}
	return s.scheduleLocked(ev, s.dueAfter(d)) == nil
}

// CalculateTimeToFire returns how long until ev is due, clamped to zero. Events
// that are not queued report zero.
func (s *Scheduler) CalculateTimeToFire(ev Event) time.Duration {
	if ev == nil {
		return 0
	}
	s.mu.Lock()
	due, ok := s.queue.dueOf(ev.ID())
	s.mu.Unlock()
	if !ok {
		return 0
	}
	remaining := time.Duration(due)*time.Millisecond - s.sinceStart()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats returns a snapshot of queue occupancy and counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	queued, capacity := s.queue.Len(), s.queue.Capacity()
	s.mu.Unlock()
	return Stats{
		Queued:    queued,
		Capacity:  capacity,
		Pending:   s.ingest.Len(),
		Fired:     s.fired.Load(),
		Cancelled: s.cancelledTotal.Load(),
		Failed:    s.failed.Load(),
		Resizes:   s.resizes.Load(),
	}
}

// Run drives the consumer loop until ctx is cancelled or Stop is called. Each
// cycle reconciles the async queue, fires every due event, then sleeps until
// the head is due, a wake signal arrives, or MaxWait elapses.
//
// Precondition: Run must be called at most once.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		panic("event.Scheduler.Run: already running")
	}
	defer close(s.done)

	s.logger.Info("scheduler started",
		zap.Duration("granularity", s.cfg.Granularity),
		zap.Duration("max_wait", s.cfg.MaxWait),
		zap.Int("capacity", s.cfg.InitialCapacity),
	)

	timer := time.NewTimer(s.cfg.MaxWait)
	defer timer.Stop()
	for {
		s.Step()

		timer.Reset(s.nextWait())
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", zap.String("reason", "context cancelled"))
			return
		case <-s.stop:
			s.logger.Info("scheduler stopped", zap.String("reason", "stop requested"))
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// Stop ends Run and waits for the consumer goroutine to exit. Safe to call
// multiple times, and before Run.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.running.Load() {
		<-s.done
	}
}

// Step runs one pass of the consumer loop: reconcile the async queue, then fire
// every due event. Run calls it each cycle; simulations and tests drive a
// stopped scheduler with it directly.
//
// Precondition: Run must not be active; Step is not safe to call concurrently
// with itself or with Run.
func (s *Scheduler) Step() {
	s.drainIngest()
	s.fireDue()
}

// pendingLocked reports whether an entry for id is still live: queued, or
// cancelled but not yet discarded from the queue or the staging area.
func (s *Scheduler) pendingLocked(id uuid.UUID) bool {
	if s.queue.contains(id) {
		return true
	}
	_, ok := s.cancelled[id]
	return ok
}

func (s *Scheduler) scheduleLocked(ev Event, due int64) error {
	if s.pendingLocked(ev.ID()) || !markScheduled(ev.base()) {
		return fmt.Errorf("%w: %s %s", ErrAlreadyScheduled, ev.Kind(), ev.ID())
	}
	s.enqueueLocked(ev, due)
	return nil
}

// enqueueLocked inserts an event already in StateScheduled.
func (s *Scheduler) enqueueLocked(ev Event, due int64) {
	if s.queue.enqueue(ev, due) {
		s.resizes.Add(1)
		s.logger.Debug("scheduler queue grown",
			zap.Int("capacity", s.queue.Capacity()),
			zap.Int("queued", s.queue.Len()),
		)
	}
	if rid := ev.RequestorID(); rid != 0 {
		set, ok := s.byRequestor[rid]
		if !ok {
			set = make(map[uuid.UUID]Event)
			s.byRequestor[rid] = set
		}
		set[ev.ID()] = ev
	}
	s.signal()
}

func (s *Scheduler) cancelLocked(ev Event) bool {
	b := ev.base()
	switch {
	case b.transition(StateScheduled, StateCancelled):
		s.cancelled[ev.ID()] = struct{}{}
		s.unindexLocked(ev)
	case ev.RepeatAfter() > 0 && b.transition(StateFired, StateCancelled):
		// Executing right now; afterFire sees the state and skips the repeat.
	default:
		return false
	}
	s.cancelledTotal.Add(1)
	return true
}

func (s *Scheduler) unindexLocked(ev Event) {
	rid := ev.RequestorID()
	if rid == 0 {
		return
	}
	if set, ok := s.byRequestor[rid]; ok {
		delete(set, ev.ID())
		if len(set) == 0 {
			delete(s.byRequestor, rid)
		}
	}
}

func (s *Scheduler) drainIngest() {
	reqs := s.ingest.Drain()
	if len(reqs) == 0 {
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range reqs {
		id := req.ev.ID()
		if _, ok := s.cancelled[id]; ok && !s.queue.contains(id) {
			delete(s.cancelled, id)
			req.ev.base().setState(StateCompleted)
			continue
		}
		if s.queue.contains(id) {
			s.logger.Error("dropping async event already in queue",
				zap.String("kind", req.ev.Kind()),
				zap.Stringer("event_id", id),
			)
			continue
		}
		remaining := req.delay - now.Sub(req.requestedAt)
		s.enqueueLocked(req.ev, s.dueAfter(remaining))
	}
}

func (s *Scheduler) fireDue() {
	for {
		s.mu.Lock()
		head := s.queue.peek()
		nowMs := s.sinceStart().Milliseconds()
		if head == nil || head.due > nowMs {
			s.mu.Unlock()
			return
		}
		it := s.queue.dequeue()
		ev := it.ev
		s.unindexLocked(ev)
		if _, ok := s.cancelled[ev.ID()]; ok {
			delete(s.cancelled, ev.ID())
			ev.base().setState(StateCompleted)
			s.mu.Unlock()
			continue
		}
		ev.base().setState(StateFired)
		handlers := s.handlers
		s.mu.Unlock()

		s.fired.Add(1)
		s.dispatch(ev, handlers)
		s.afterFire(ev, time.Duration(nowMs)*time.Millisecond)
	}
}

// dispatch runs ev with the lock released so handlers may re-enter the scheduler.
// A failing or panicking event is logged and never stops the loop.
func (s *Scheduler) dispatch(ev Event, handlers []FiredHandler) {
	defer func() {
		if r := recover(); r != nil {
			s.failed.Add(1)
			s.logger.Error("event panicked",
				zap.String("kind", ev.Kind()),
				zap.Stringer("event_id", ev.ID()),
				zap.Uint32("requestor", ev.RequestorID()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	if len(handlers) == 0 {
		handlers = []FiredHandler{func(ev Event) error { return ev.Execute(s) }}
	}
	for _, h := range handlers {
		if err := h(ev); err != nil {
			s.failed.Add(1)
			s.logger.Error("event failed",
				zap.String("kind", ev.Kind()),
				zap.Stringer("event_id", ev.ID()),
				zap.Uint32("requestor", ev.RequestorID()),
				zap.Error(err),
			)
		}
	}
}

func (s *Scheduler) afterFire(ev Event, firedAt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := ev.base()
	if repeat := ev.RepeatAfter(); repeat > 0 && b.transition(StateFired, StateCreated) {
		if err := s.scheduleLocked(ev, s.roundUp(firedAt+repeat)); err != nil {
			s.logger.Error("re-scheduling repeating event",
				zap.String("kind", ev.Kind()),
				zap.Stringer("event_id", ev.ID()),
				zap.Error(err),
			)
		}
		return
	}
	if !b.transition(StateFired, StateCompleted) {
		b.transition(StateCancelled, StateCompleted)
	}
}

func (s *Scheduler) nextWait() time.Duration {
	if s.ingest.Len() > 0 {
		return 0
	}
	s.mu.Lock()
	head := s.queue.peek()
	s.mu.Unlock()
	if head == nil {
		return s.cfg.MaxWait
	}
	wait := time.Duration(head.due)*time.Millisecond - s.sinceStart()
	switch {
	case wait < 0:
		return 0
	case wait > s.cfg.MaxWait:
		return s.cfg.MaxWait
	default:
		return wait
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) sinceStart() time.Duration {
	return s.clock.Now().Sub(s.start)
}

// dueAfter converts a delay from now into a rounded priority.
func (s *Scheduler) dueAfter(delay time.Duration) int64 {
	if delay < 0 {
		delay = 0
	}
	return s.roundUp(s.sinceStart() + delay)
}

// roundUp returns offset rounded up to the granularity, in milliseconds.
func (s *Scheduler) roundUp(offset time.Duration) int64 {
	if offset < 0 {
		offset = 0
	}
	g := s.cfg.Granularity
	return ((offset + g - 1) / g * g).Milliseconds()
}

// markScheduled moves b into StateScheduled from any other state.
func markScheduled(b *Base) bool {
	for {
		st := b.State()
		if st == StateScheduled {
			return false
		}
		if b.transition(st, StateScheduled) {
			return true
		}
	}
}

func matchesKind(ev Event, kinds []string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if ev.Kind() == k {
			return true
		}
	}
	return false
}
