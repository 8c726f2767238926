// Package movement provides the walk and turn operations.
package movement

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/notification"
	"github.com/cory-johannsen/fibula/internal/game/operation"
	"github.com/cory-johannsen/fibula/internal/game/world"
)

// Event kinds for walking and facing changes.
const (
	KindMove = "move"
	KindTurn = "turn"

	// RuleOnMove is the scripted rule type consulted before every step.
	RuleOnMove = "on_move"
)

const (
	stairsUp   = '>'
	stairsDown = '<'
)

// Deps are the collaborators movement operations close over.
type Deps struct {
	Scheduler operation.Scheduler
	Creatures *creature.Registry
	Map       *world.Map
	Notifier  *notification.Notifier
	Rules     operation.RuleEvaluator
	ViewRange int
}

// Cost returns the movement exhaustion of one step in dir. Diagonal steps
// cost twice the walk speed.
func Cost(c *creature.Creature, dir world.Direction) time.Duration {
	if dir.Diagonal() {
		return 2 * c.WalkSpeed()
	}
	return c.WalkSpeed()
}

// NewMove builds one step of requestorID in dir. The destination is resolved
// when the operation fires, from wherever the creature stands then.
//
// Conditions: the requestor is alive, the destination is walkable and free,
// and every on_move rule accepts the step.
func NewMove(d *Deps, requestorID uint32, dir world.Direction) *operation.Operation {
	op := operation.New(KindMove, requestorID)
	if c, ok := d.Creatures.Find(requestorID); ok {
		op.WithExhaustion(operation.ExhaustionMovement, Cost(c, dir), c.Exhaustion)
	}
	if d.Notifier != nil {
		op.ReportFailuresTo(d.Notifier)
	}
	return op.
		When(
			alive(d, requestorID),
			operation.NewCondition("There is not enough room.", func() bool {
				c, ok := d.Creatures.Find(requestorID)
				return ok && d.Map.CanMoveTo(d.destination(c.Location(), dir))
			}),
			operation.Rule(d.Rules, RuleOnMove, "You cannot go there.", func() map[string]any {
				return d.moveArgs(requestorID, dir)
			}),
		).
		OnPass(func(ctx event.Context) error {
			return d.step(ctx, requestorID, dir)
		})
}

// Request replaces any queued steps of c with a single step in dir, deferred
// until c's movement cooldown has elapsed.
//
// Precondition: called on the game goroutine.
func Request(d *Deps, c *creature.Creature, dir world.Direction, now time.Time) error {
	d.Scheduler.CancelAllFor(c.ID(), KindMove)
	delay := operation.CooldownDelay(c.Exhaustion, operation.ExhaustionMovement, now)
	if err := d.Scheduler.ScheduleEvent(NewMove(d, c.ID(), dir), delay); err != nil {
		return fmt.Errorf("moving %d %s: %w", c.ID(), dir, err)
	}
	return nil
}

// NewTurn builds an operation that changes requestorID's facing without
// moving it. Turning carries no exhaustion.
func NewTurn(d *Deps, requestorID uint32, dir world.Direction) *operation.Operation {
	op := operation.New(KindTurn, requestorID)
	if d.Notifier != nil {
		op.ReportFailuresTo(d.Notifier)
	}
	return op.
		When(alive(d, requestorID)).
		OnPass(func(event.Context) error {
			if c, ok := d.Creatures.Find(requestorID); ok {
				c.SetFacing(dir)
			}
			return nil
		})
}

func alive(d *Deps, id uint32) operation.Condition {
	return operation.NewCondition("You are dead.", func() bool {
		c, ok := d.Creatures.Find(id)
		return ok && c.IsAlive()
	})
}

// destination is the tile a step in dir from `from` ends on. Stairs carry the
// walker one floor up or down when the tile above or below is walkable.
func (d *Deps) destination(from world.Location, dir world.Direction) world.Location {
	to := from.Step(dir)
	tile, ok := d.Map.TileAt(to)
	if !ok {
		return to
	}
	next := to
	switch tile.Glyph {
	case stairsUp:
		next.Z++
	case stairsDown:
		next.Z--
	default:
		return to
	}
	if d.Map.IsWalkable(next) {
		return next
	}
	return to
}

func (d *Deps) moveArgs(id uint32, dir world.Direction) map[string]any {
	c, ok := d.Creatures.Find(id)
	if !ok {
		return map[string]any{"id": int(id)}
	}
	from := c.Location()
	to := d.destination(from, dir)
	glyph := ""
	if tile, ok := d.Map.TileAt(to); ok {
		glyph = string(tile.Glyph)
	}
	return map[string]any{
		"id":        int(id),
		"name":      c.Name(),
		"kind":      c.Kind().String(),
		"direction": dir.String(),
		"from_x":    from.X,
		"from_y":    from.Y,
		"from_z":    from.Z,
		"x":         to.X,
		"y":         to.Y,
		"z":         to.Z,
		"glyph":     glyph,
		"in_combat": c.Target() != 0,
	}
}

func (d *Deps) step(ctx event.Context, id uint32, dir world.Direction) error {
	c, ok := d.Creatures.Find(id)
	if !ok {
		return nil
	}
	from := c.Location()
	to := d.destination(from, dir)
	if err := d.Map.Move(id, from, to); err != nil {
		return fmt.Errorf("moving %d %s -> %s: %w", id, from, to, err)
	}
	c.SetLocation(to)
	c.SetFacing(dir)
	ctx.Logger().Debug("moved",
		zap.Uint32("creature", id),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)

	if d.Notifier == nil {
		return nil
	}
	watchers := d.Map.Spectators(from, d.ViewRange)
	for _, w := range d.Map.Spectators(to, d.ViewRange) {
		if !slices.Contains(watchers, w) {
			watchers = append(watchers, w)
		}
	}
	watchers = slices.DeleteFunc(watchers, func(w uint32) bool { return w == id })
	msg := fmt.Sprintf("%s moves %s.", c.Name(), dir)
	if to.Z != from.Z {
		msg = fmt.Sprintf("%s takes the stairs.", c.Name())
	}
	d.Notifier.Notify(msg, watchers...)
	return nil
}
