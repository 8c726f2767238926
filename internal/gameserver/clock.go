package gameserver

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/event"
)

// KindClock is the repeating event that advances the time of day.
const KindClock = "world_clock"

// TimePeriod is a named phase of the game day.
type TimePeriod string

const (
	PeriodMidnight  TimePeriod = "Midnight"
	PeriodLateNight TimePeriod = "Late Night"
	PeriodDawn      TimePeriod = "Dawn"
	PeriodMorning   TimePeriod = "Morning"
	PeriodAfternoon TimePeriod = "Afternoon"
	PeriodDusk      TimePeriod = "Dusk"
	PeriodEvening   TimePeriod = "Evening"
	PeriodNight     TimePeriod = "Night"
)

// GameHour is a game-clock hour in [0, 23].
type GameHour int32

// Period returns the named time period for this hour.
//
// Precondition: h is in [0, 23].
// Postcondition: Returns one of the eight TimePeriod constants.
func (h GameHour) Period() TimePeriod {
	switch {
	case h == 0:
		return PeriodMidnight
	case h >= 1 && h <= 4:
		return PeriodLateNight
	case h >= 5 && h <= 6:
		return PeriodDawn
	case h >= 7 && h <= 11:
		return PeriodMorning
	case h >= 12 && h <= 16:
		return PeriodAfternoon
	case h >= 17 && h <= 18:
		return PeriodDusk
	case h >= 19 && h <= 21:
		return PeriodEvening
	default: // 22-23
		return PeriodNight
	}
}

// String returns the hour in "HH:00" format.
func (h GameHour) String() string {
	return fmt.Sprintf("%02d:00", int(h))
}

// WorldClock is the time of day. It is advanced one hour per firing of its
// repeating event and read from any goroutine.
type WorldClock struct {
	hour atomic.Int32
}

// NewWorldClock creates a WorldClock at startHour, taken modulo 24.
func NewWorldClock(startHour int) *WorldClock {
	c := &WorldClock{}
	c.hour.Store(int32(((startHour % 24) + 24) % 24))
	return c
}

// CurrentHour returns the current game hour.
func (c *WorldClock) CurrentHour() GameHour {
	return GameHour(c.hour.Load())
}

// advance moves the clock one hour forward and returns the new hour.
func (c *WorldClock) advance() GameHour {
	for {
		old := c.hour.Load()
		next := (old + 1) % 24
		if c.hour.CompareAndSwap(old, next) {
			return GameHour(next)
		}
	}
}

// clockEvent advances the world clock every hourLength and tells every
// connected player when the period of the day changes.
//
// Precondition: hourLength > 0.
func (g *Game) clockEvent(hourLength time.Duration) event.Event {
	return event.NewFunc(KindClock, 0, func(ctx event.Context) error {
		prev := g.clock.CurrentHour().Period()
		h := g.clock.advance()
		ctx.Logger().Debug("hour passed", zap.Stringer("hour", h))
		if p := h.Period(); p != prev {
			g.announce(fmt.Sprintf("%s falls over the land. %s", p, FlavorText(p, true)))
		}
		return nil
	}, event.WithRepeat(hourLength), event.NotCancellable())
}

// announce tells every connected player text.
func (g *Game) announce(text string) {
	var ids []uint32
	for _, c := range g.creatures.All() {
		if c.IsPlayer() {
			ids = append(ids, c.ID())
		}
	}
	g.notifier.Notify(text, ids...)
}
