// Package item provides the use-item operation.
package item

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/catalog"
	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/dice"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/notification"
	"github.com/cory-johannsen/fibula/internal/game/operation"
)

const KindUseItem = "use_item"

// Deps are the collaborators the use-item operation closes over.
type Deps struct {
	Creatures *creature.Registry
	Catalog   *catalog.Registry
	Roller    *dice.Roller
	Notifier  *notification.Notifier
	// Cooldown is the item-use exhaustion charged per use.
	Cooldown time.Duration
}

// NewUseItem builds an operation that consumes one itemID carried by
// requestorID and heals it by the item's heal roll.
//
// Conditions: the requestor is alive, carries the item, and the item heals.
func NewUseItem(d *Deps, requestorID uint32, itemID string) *operation.Operation {
	op := operation.New(KindUseItem, requestorID)
	if c, ok := d.Creatures.Find(requestorID); ok {
		op.WithExhaustion(operation.ExhaustionItemUse, d.Cooldown, c.Exhaustion)
	}
	op.ReportFailuresTo(d.Notifier)

	it, known := d.Catalog.Item(itemID)
	return op.
		When(
			operation.NewCondition("You are dead.", func() bool {
				c, ok := d.Creatures.Find(requestorID)
				return ok && c.IsAlive()
			}),
			operation.NewCondition("You do not have that.", func() bool {
				c, ok := d.Creatures.Find(requestorID)
				return ok && known && c.ItemCount(itemID) > 0
			}),
			operation.NewCondition("You cannot use that.", func() bool {
				return it.Heal.Count > 0
			}),
		).
		OnPass(func(ctx event.Context) error {
			c, ok := d.Creatures.Find(requestorID)
			if !ok || !c.TakeItem(itemID) {
				return nil
			}
			healed := c.Heal(d.Roller.Roll(it.Heal).Total())
			ctx.Logger().Debug("item used",
				zap.Uint32("creature", requestorID),
				zap.String("item", itemID),
				zap.Int("healed", healed),
			)
			d.Notifier.Notify(fmt.Sprintf("You use the %s and recover %d hit points.", it.Name, healed), requestorID)
			return nil
		})
}
