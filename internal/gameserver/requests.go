package gameserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/fibula/internal/game/combat"
	"github.com/cory-johannsen/fibula/internal/game/command"
	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/item"
	"github.com/cory-johannsen/fibula/internal/game/movement"
	"github.com/cory-johannsen/fibula/internal/game/operation"
	"github.com/cory-johannsen/fibula/internal/game/speech"
)

// Submit parses one line typed by player id and stages the resulting request
// for the game goroutine. Malformed lines are answered directly.
//
// Postcondition: Returns ErrQuit for the quit command; any other error means
// the request could not be staged.
func (g *Game) Submit(id uint32, line string) error {
	req, err := g.commands.Build(line)
	switch {
	case errors.Is(err, command.ErrEmpty):
		return nil
	case err != nil:
		g.sessions.Send(id, rejection(err))
		return nil
	case req.Handler == command.HandlerQuit:
		return ErrQuit
	}
	ev := event.NewFunc(KindRequest, id, func(ctx event.Context) error {
		return g.handle(ctx, id, req)
	})
	return g.sched.ScheduleEventAsync(ev, 0)
}

func rejection(err error) string {
	if errors.Is(err, command.ErrUnknownCommand) {
		return "Unknown command. Type 'help' for a list."
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i > 0 {
		msg = msg[:i]
	}
	return capitalize(msg)
}

// handle turns a request into operations. Exhausting requests are deferred
// until the creature's matching cooldown has elapsed.
func (g *Game) handle(ctx event.Context, id uint32, req command.Request) error {
	c, ok := g.creatures.Find(id)
	if !ok {
		return nil
	}
	now := ctx.Now()
	switch req.Handler {
	case command.HandlerMove:
		return movement.Request(g.movement, c, req.Direction, now)
	case command.HandlerTurn:
		return g.sched.ScheduleEvent(movement.NewTurn(g.movement, id, req.Direction), 0)
	case command.HandlerAttack:
		return g.attack(ctx, c, req.Target)
	case command.HandlerStop:
		if c.Target() == 0 {
			g.tell(id, "You are not attacking anything.")
			return nil
		}
		combat.Disengage(g.combat, c)
		g.tell(id, "You stop attacking.")
	case command.HandlerSay:
		delay := operation.CooldownDelay(c.Exhaustion, operation.ExhaustionSpeech, now)
		return g.sched.ScheduleEvent(speech.NewSay(g.speech, id, req.Text), delay)
	case command.HandlerUse:
		itemID := req.Item
		if it, ok := g.catalog.ItemByName(req.Item); ok {
			itemID = it.ID
		}
		delay := operation.CooldownDelay(c.Exhaustion, operation.ExhaustionItemUse, now)
		return g.sched.ScheduleEvent(item.NewUseItem(g.items, id, itemID), delay)
	case command.HandlerLook:
		g.tell(id, g.describeSurroundings(c))
	case command.HandlerStatus:
		g.tell(id, g.describeStatus(c))
	case command.HandlerInventory:
		g.tell(id, g.describeInventory(c))
	case command.HandlerWho:
		g.tell(id, "Players online: "+strings.Join(g.sessions.Names(), ", ")+".")
	case command.HandlerHelp:
		g.tell(id, g.helpText())
	default:
		return fmt.Errorf("unhandled request %q", req.Handler)
	}
	return nil
}

func (g *Game) attack(ctx event.Context, attacker *creature.Creature, name string) error {
	if !attacker.IsAlive() {
		g.tell(attacker.ID(), "You are dead.")
		return nil
	}
	target, ok := g.findVisible(attacker, name)
	if !ok {
		g.tell(attacker.ID(), "You do not see that here.")
		return nil
	}
	if err := combat.Engage(g.combat, attacker, target, ctx.Now()); err != nil {
		if errors.Is(err, combat.ErrSelfTarget) {
			g.tell(attacker.ID(), "You cannot attack yourself.")
			return nil
		}
		return err
	}
	g.tell(attacker.ID(), fmt.Sprintf("You attack %s.", target.Name()))
	return nil
}

// findVisible returns the nearest living creature named name that viewer can
// see. Names compare without case.
func (g *Game) findVisible(viewer *creature.Creature, name string) (*creature.Creature, bool) {
	var (
		best     *creature.Creature
		bestDist int
	)
	here := viewer.Location()
	for _, c := range g.creatures.All() {
		if !strings.EqualFold(c.Name(), name) || !c.IsAlive() {
			continue
		}
		at := c.Location()
		if !at.SameFloor(here) {
			continue
		}
		d := at.Distance(here)
		if d > g.sightRange(here.Z) {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, best != nil
}
