package creature

import (
	"sync"
	"time"

	"github.com/cory-johannsen/fibula/internal/game/operation"
)

// ExhaustionTracker records, per exhaustion type, when a creature may act again.
//
// Connection goroutines read it to compute scheduling delays while the game
// goroutine writes it, so it is mutex-guarded.
type ExhaustionTracker struct {
	mu    sync.Mutex
	until map[operation.ExhaustionType]time.Time
}

// NewExhaustionTracker returns a tracker with no pending cooldowns.
func NewExhaustionTracker() *ExhaustionTracker {
	return &ExhaustionTracker{until: make(map[operation.ExhaustionType]time.Time)}
}

// AddExhaustion extends the cooldown for t by cost, starting from now or from
// the end of the current cooldown, whichever is later.
func (e *ExhaustionTracker) AddExhaustion(t operation.ExhaustionType, cost time.Duration, now time.Time) {
	if t == operation.ExhaustionNone || cost <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	from := now
	if u, ok := e.until[t]; ok && u.After(now) {
		from = u
	}
	e.until[t] = from.Add(cost)
}

// CalculateRemainingCooldownTime returns how long until t is ready, clamped to 0.
func (e *ExhaustionTracker) CalculateRemainingCooldownTime(t operation.ExhaustionType, now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.until[t]
	if !ok {
		return 0
	}
	if d := u.Sub(now); d > 0 {
		return d
	}
	return 0
}
