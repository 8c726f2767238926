package combat

import (
	"fmt"
	"time"

	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/operation"
)

// Credit names one of a combatant's credit counters.
type Credit int

const (
	AttackCredit Credit = iota
	DefenseCredit
)

// String returns the credit name.
func (c Credit) String() string {
	if c == DefenseCredit {
		return "defense"
	}
	return "attack"
}

func (c Credit) kind() string {
	if c == DefenseCredit {
		return KindRestoreDefense
	}
	return KindRestoreAttack
}

// NewRestoreCredits builds the repeating event that gives creatureID one
// credit of the given kind every interval. It cancels itself once the
// creature has left the world.
//
// Precondition: interval > 0.
func NewRestoreCredits(d *Deps, creatureID uint32, credit Credit, interval time.Duration) *operation.Operation {
	op := operation.New(credit.kind(), creatureID, event.WithRepeat(interval))
	op.When(operation.RequestorExists(d.Creatures, creatureID)).
		OnPass(func(event.Context) error {
			if c, ok := d.Creatures.Find(creatureID); ok {
				if credit == DefenseCredit {
					c.Combat.RestoreDefense()
				} else {
					c.Combat.RestoreAttack()
				}
			}
			return nil
		}).
		OnFail(func(event.Context) error {
			d.Scheduler.CancelEvent(op)
			return nil
		})
	return op
}

// StartRestoring schedules c's credit restoration: attack credits return
// every AttackSpeed and defense credits every DefenseSpeed.
func StartRestoring(d *Deps, c *creature.Creature) error {
	for _, r := range []struct {
		credit   Credit
		interval time.Duration
	}{
		{AttackCredit, c.AttackSpeed()},
		{DefenseCredit, c.DefenseSpeed()},
	} {
		if err := d.Scheduler.ScheduleEvent(NewRestoreCredits(d, c.ID(), r.credit, r.interval), r.interval); err != nil {
			return fmt.Errorf("restoring %s credits of %d: %w", r.credit, c.ID(), err)
		}
	}
	return nil
}
