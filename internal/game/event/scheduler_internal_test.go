package event

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

func newManualScheduler(t *testing.T, capacity int) (*Scheduler, *ManualClock) {
	t.Helper()
	clk := NewManualClock(time.Unix(1_700_000_000, 0))
	s := NewScheduler(Config{
		Granularity:     10 * time.Millisecond,
		MaxWait:         50 * time.Millisecond,
		InitialCapacity: capacity,
	}, clk, zaptest.NewLogger(t))
	return s, clk
}

type recorder struct {
	fired []string
}

func (r *recorder) event(name string, requestor uint32, opts ...Option) *Func {
	return NewFunc(name, requestor, func(Context) error {
		r.fired = append(r.fired, name)
		return nil
	}, opts...)
}

func TestScheduler_ShorterDelayFiresFirst(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	a := rec.event("a", 0)
	b := rec.event("b", 0)

	require.NoError(t, s.ScheduleEvent(a, 100*time.Millisecond))
	require.NoError(t, s.ScheduleEvent(b, 50*time.Millisecond))

	clk.Advance(49 * time.Millisecond)
	s.Step()
	assert.Empty(t, rec.fired)

	clk.Advance(time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"b"}, rec.fired)

	clk.Advance(50 * time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"b", "a"}, rec.fired)
	assert.Equal(t, StateCompleted, a.State())
	assert.Equal(t, StateCompleted, b.State())
}

func TestScheduler_SameWindowFiresInInsertionOrder(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	// 1ms, 5ms and 10ms all round up to the same 10ms window.
	require.NoError(t, s.ScheduleEvent(rec.event("first", 0), 10*time.Millisecond))
	require.NoError(t, s.ScheduleEvent(rec.event("second", 0), time.Millisecond))
	require.NoError(t, s.ScheduleEvent(rec.event("third", 0), 5*time.Millisecond))

	clk.Advance(10 * time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"first", "second", "third"}, rec.fired)
}

func TestProperty_FiringOrderIsStableByRoundedDueTime(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		delays := rapid.SliceOfN(rapid.IntRange(0, 500), 1, 60).Draw(rt, "delays")

		clk := NewManualClock(time.Unix(0, 0))
		s := NewScheduler(Config{Granularity: 10 * time.Millisecond, MaxWait: time.Second, InitialCapacity: 4}, clk, zap.NewNop())

		var fired []int
		for i, d := range delays {
			i := i
			ev := NewFunc("tick", 0, func(Context) error {
				fired = append(fired, i)
				return nil
			})
			if err := s.ScheduleEvent(ev, time.Duration(d)*time.Millisecond); err != nil {
				rt.Fatalf("schedule %d: %v", i, err)
			}
		}
		clk.Advance(510 * time.Millisecond)
		s.Step()

		want := make([]int, len(delays))
		for i := range want {
			want[i] = i
		}
		window := func(i int) int { return (delays[i] + 9) / 10 }
		sort.SliceStable(want, func(a, b int) bool { return window(want[a]) < window(want[b]) })

		if len(fired) != len(want) {
			rt.Fatalf("fired %d events, want %d", len(fired), len(want))
		}
		for i := range want {
			if fired[i] != want[i] {
				rt.Fatalf("position %d: fired %d, want %d (fired=%v)", i, fired[i], want[i], fired)
			}
		}
	})
}

func TestScheduler_RejectsNilAndDuplicate(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	assert.ErrorIs(t, s.ScheduleEvent(nil, 0), ErrNilEvent)
	assert.ErrorIs(t, s.ScheduleEventAsync(nil, 0), ErrNilEvent)

	rec := &recorder{}
	ev := rec.event("once", 0)
	require.NoError(t, s.ScheduleEvent(ev, 20*time.Millisecond))
	assert.ErrorIs(t, s.ScheduleEvent(ev, 20*time.Millisecond), ErrAlreadyScheduled)
	assert.ErrorIs(t, s.ScheduleEventAsync(ev, 0), ErrAlreadyScheduled)

	clk.Advance(20 * time.Millisecond)
	s.Step()
	require.Equal(t, []string{"once"}, rec.fired)

	// A completed instance may be scheduled again.
	require.NoError(t, s.ScheduleEvent(ev, 0))
	s.Step()
	assert.Equal(t, []string{"once", "once"}, rec.fired)
}

func TestScheduler_CancelEventReturnsTrueOnce(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	ev := rec.event("doomed", 3)
	require.NoError(t, s.ScheduleEvent(ev, 30*time.Millisecond))

	assert.True(t, s.CancelEvent(ev))
	assert.False(t, s.CancelEvent(ev))
	assert.Equal(t, StateCancelled, ev.State())

	clk.Advance(30 * time.Millisecond)
	s.Step()
	assert.Empty(t, rec.fired)
	assert.Equal(t, StateCompleted, ev.State())
	assert.Equal(t, 0, s.Stats().Queued)
	assert.Equal(t, uint64(1), s.Stats().Cancelled)
}

func TestScheduler_NotCancellableEventIgnoresCancel(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	ev := rec.event("pinned", 3, NotCancellable())
	require.NoError(t, s.ScheduleEvent(ev, 0))

	assert.False(t, s.CancelEvent(ev))
	assert.Equal(t, 0, s.CancelAllFor(3))

	clk.Advance(10 * time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"pinned"}, rec.fired)
}

func TestScheduler_CancelAllForScopesByRequestorAndKind(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	require.NoError(t, s.ScheduleEvent(rec.event("move", 7), 10*time.Millisecond))
	require.NoError(t, s.ScheduleEvent(rec.event("attack", 7), 10*time.Millisecond))
	require.NoError(t, s.ScheduleEvent(rec.event("move", 8), 10*time.Millisecond))

	assert.Equal(t, 1, s.CancelAllFor(7, "move"))
	assert.Equal(t, 0, s.CancelAllFor(7, "move"))
	assert.Equal(t, 1, s.CancelAllFor(7))
	assert.Equal(t, 0, s.CancelAllFor(99))

	clk.Advance(10 * time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"move"}, rec.fired)
}

func TestScheduler_RepeatingEventResubmitsSameInstance(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	count := 0
	ev := NewFunc("regen", 1, func(Context) error {
		count++
		return nil
	}, WithRepeat(100*time.Millisecond))
	id := ev.ID()

	require.NoError(t, s.ScheduleEvent(ev, 0))
	s.Step()
	require.Equal(t, 1, count)
	assert.Equal(t, StateScheduled, ev.State())
	assert.Equal(t, id, ev.ID())
	assert.Equal(t, 100*time.Millisecond, s.CalculateTimeToFire(ev))
	assert.Equal(t, 1, s.Stats().Queued)

	clk.Advance(99 * time.Millisecond)
	s.Step()
	assert.Equal(t, 1, count)

	clk.Advance(time.Millisecond)
	s.Step()
	assert.Equal(t, 2, count)

	assert.True(t, s.CancelEvent(ev))
	clk.Advance(500 * time.Millisecond)
	s.Step()
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestScheduler_RepeatingEventCancelledDuringExecutionStops(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	var self *Func
	cancelled := false
	self = NewFunc("regen", 1, func(Context) error {
		cancelled = s.CancelEvent(self)
		return nil
	}, WithRepeat(50*time.Millisecond))

	require.NoError(t, s.ScheduleEvent(self, 0))
	s.Step()
	assert.True(t, cancelled)
	assert.Equal(t, StateCompleted, self.State())

	clk.Advance(time.Second)
	s.Step()
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestScheduler_QueueGrowsPastHighWaterMark(t *testing.T) {
	s, clk := newManualScheduler(t, 4)
	rec := &recorder{}
	for i := 0; i < 10; i++ {
		require.NoError(t, s.ScheduleEvent(rec.event("e", 0), time.Duration(i)*10*time.Millisecond))
	}
	st := s.Stats()
	assert.Equal(t, 10, st.Queued)
	assert.Equal(t, 16, st.Capacity)
	assert.Equal(t, uint64(2), st.Resizes)

	clk.Advance(time.Second)
	s.Step()
	assert.Len(t, rec.fired, 10)
}

func TestScheduler_PanicAndErrorDoNotStopLoop(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	require.NoError(t, s.ScheduleEvent(NewFunc("boom", 1, func(Context) error { panic("bad event") }), 0))
	require.NoError(t, s.ScheduleEvent(NewFunc("oops", 1, func(Context) error { return errors.New("failed") }), 0))
	require.NoError(t, s.ScheduleEvent(rec.event("after", 1), 0))

	clk.Advance(10 * time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"after"}, rec.fired)
	assert.Equal(t, uint64(2), s.Stats().Failed)
	assert.Equal(t, uint64(3), s.Stats().Fired)
}

func TestScheduler_AsyncDelayIsRebasedOnReconciliation(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	ev := rec.event("late", 5)
	require.NoError(t, s.ScheduleEventAsync(ev, 100*time.Millisecond))
	assert.Equal(t, StateScheduled, ev.State())
	assert.Equal(t, 1, s.Stats().Pending)

	clk.Advance(60 * time.Millisecond)
	s.Step()
	assert.Equal(t, 0, s.Stats().Pending)
	assert.Equal(t, 40*time.Millisecond, s.CalculateTimeToFire(ev))

	clk.Advance(40 * time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"late"}, rec.fired)
}

func TestScheduler_AsyncDelayAlreadyElapsedFiresOnDrain(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	require.NoError(t, s.ScheduleEventAsync(rec.event("overdue", 0), 50*time.Millisecond))
	clk.Advance(150 * time.Millisecond)
	s.Step()
	assert.Equal(t, []string{"overdue"}, rec.fired)
}

func TestScheduler_AsyncEventIndexedOnlyAfterReconciliation(t *testing.T) {
	s, _ := newManualScheduler(t, 16)
	rec := &recorder{}
	ev := rec.event("staged", 5)
	require.NoError(t, s.ScheduleEventAsync(ev, time.Second))

	assert.Equal(t, 0, s.CancelAllFor(5))
	s.Step()
	assert.Equal(t, 1, s.CancelAllFor(5))
}

func TestScheduler_CancelBeforeReconciliationPurgesAsyncEvent(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	ev := rec.event("staged", 5)
	require.NoError(t, s.ScheduleEventAsync(ev, 0))
	assert.True(t, s.CancelEvent(ev))

	clk.Advance(10 * time.Millisecond)
	s.Step()
	assert.Empty(t, rec.fired)
	assert.Equal(t, StateCompleted, ev.State())
	assert.Equal(t, 0, s.Stats().Queued)
}

func TestScheduler_EventMayScheduleFromInsideExecute(t *testing.T) {
	s, _ := newManualScheduler(t, 16)
	rec := &recorder{}
	child := rec.event("child", 2)
	parent := NewFunc("parent", 2, func(Context) error {
		rec.fired = append(rec.fired, "parent")
		return s.ScheduleEvent(child, 0)
	})
	require.NoError(t, s.ScheduleEvent(parent, 0))
	s.Step()
	assert.Equal(t, []string{"parent", "child"}, rec.fired)
}

func TestScheduler_ExpediteAndDelay(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	slow := rec.event("slow", 0)
	require.NoError(t, s.ScheduleEvent(slow, 500*time.Millisecond))
	assert.True(t, s.Expedite(slow))
	assert.Equal(t, time.Duration(0), s.CalculateTimeToFire(slow))
	s.Step()
	assert.Equal(t, []string{"slow"}, rec.fired)

	// Left the queue: expedite schedules it again.
	assert.True(t, s.Expedite(slow))
	s.Step()
	assert.Equal(t, []string{"slow", "slow"}, rec.fired)

	held := rec.event("held", 0)
	require.NoError(t, s.ScheduleEvent(held, 100*time.Millisecond))
	assert.True(t, s.Delay(held, 50*time.Millisecond))
	assert.Equal(t, 150*time.Millisecond, s.CalculateTimeToFire(held))

	clk.Advance(100 * time.Millisecond)
	s.Step()
	assert.Len(t, rec.fired, 2)
	clk.Advance(50 * time.Millisecond)
	s.Step()
	assert.Len(t, rec.fired, 3)
}

func TestScheduler_TimeToFireClampsAtZero(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	ev := (&recorder{}).event("e", 0)
	assert.Equal(t, time.Duration(0), s.CalculateTimeToFire(ev))

	require.NoError(t, s.ScheduleEvent(ev, 100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, s.CalculateTimeToFire(ev))
	clk.Advance(250 * time.Millisecond)
	assert.Equal(t, time.Duration(0), s.CalculateTimeToFire(ev))
}

func TestScheduler_FiredHandlersReplaceDirectExecution(t *testing.T) {
	s, _ := newManualScheduler(t, 16)
	ev := NewFunc("routed", 4, func(Context) error {
		t.Fatal("Execute must not be called when a handler is registered")
		return nil
	})
	var seen []Event
	s.OnEventFired(func(ev Event) error {
		seen = append(seen, ev)
		return nil
	})
	require.NoError(t, s.ScheduleEvent(ev, 0))
	s.Step()
	require.Len(t, seen, 1)
	assert.Equal(t, ev.ID(), seen[0].ID())
}

func TestNewScheduler_PanicsOnBadConfig(t *testing.T) {
	clk := NewManualClock(time.Unix(0, 0))
	assert.Panics(t, func() { NewScheduler(Config{Granularity: 0, MaxWait: time.Second}, clk, nil) })
	assert.Panics(t, func() { NewScheduler(Config{Granularity: time.Millisecond}, clk, nil) })
	assert.Panics(t, func() { NewScheduler(DefaultConfig(), nil, nil) })
}

func TestScheduler_CancelledEntryStillBlocksRescheduling(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	ev := rec.event("retry", 2)
	require.NoError(t, s.ScheduleEvent(ev, 50*time.Millisecond))
	require.True(t, s.CancelEvent(ev))

	assert.ErrorIs(t, s.ScheduleEventAsync(ev, 0), ErrAlreadyScheduled)
	assert.ErrorIs(t, s.ScheduleEvent(ev, 0), ErrAlreadyScheduled)
	assert.Equal(t, StateCancelled, ev.State())
	assert.Equal(t, 0, s.Stats().Pending)

	clk.Advance(100 * time.Millisecond)
	s.Step()
	assert.Empty(t, rec.fired)
	assert.Equal(t, StateCompleted, ev.State())

	// Once the entry is discarded the instance may be scheduled again.
	require.NoError(t, s.ScheduleEventAsync(ev, 0))
	s.Step()
	assert.Equal(t, []string{"retry"}, rec.fired)
}

func TestScheduler_CancelledStagedEventBlocksRescheduling(t *testing.T) {
	s, _ := newManualScheduler(t, 16)
	rec := &recorder{}
	ev := rec.event("staged", 2)
	require.NoError(t, s.ScheduleEventAsync(ev, 0))
	require.True(t, s.CancelEvent(ev))

	assert.ErrorIs(t, s.ScheduleEventAsync(ev, 0), ErrAlreadyScheduled)
	s.Step()
	assert.Empty(t, rec.fired)
	assert.Equal(t, StateCompleted, ev.State())
}

func TestScheduler_ExpediteAndDelayRefuseCancelledEntries(t *testing.T) {
	s, clk := newManualScheduler(t, 16)
	rec := &recorder{}
	ev := rec.event("gone", 0)
	require.NoError(t, s.ScheduleEvent(ev, 200*time.Millisecond))
	require.True(t, s.CancelEvent(ev))

	assert.False(t, s.Expedite(ev))
	assert.False(t, s.Delay(ev, 10*time.Millisecond))

	clk.Advance(time.Second)
	s.Step()
	assert.Empty(t, rec.fired)
	assert.Equal(t, 0, s.Stats().Queued)
}
