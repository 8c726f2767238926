package gameserver

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/combat"
	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/movement"
	"github.com/cory-johannsen/fibula/internal/game/world"
)

// blockedSpawnRetry is how long a spawn waits when its tile is occupied and
// the spawn point has no respawn delay of its own.
const blockedSpawnRetry = 5 * time.Second

func (g *Game) spawnEvent(sp world.Spawn) event.Event {
	return event.NewFunc(KindSpawn, 0, func(ctx event.Context) error {
		return g.spawnMonster(ctx, sp)
	})
}

// spawnMonster places a fresh monster on sp. An occupied spawn tile defers
// the spawn instead of stacking creatures.
func (g *Game) spawnMonster(ctx event.Context, sp world.Spawn) error {
	typ, ok := g.catalog.Creature(sp.Monster)
	if !ok {
		return fmt.Errorf("unknown monster %q", sp.Monster)
	}
	if !g.world.CanMoveTo(sp.At) {
		retry := sp.Respawn
		if retry <= 0 {
			retry = blockedSpawnRetry
		}
		ctx.Logger().Debug("spawn blocked", zap.String("monster", sp.Monster), zap.Stringer("at", sp.At))
		return g.sched.ScheduleEvent(g.spawnEvent(sp), retry)
	}

	c := creature.New(g.creatures.NextID(), typ.Template, sp.At)
	for _, carry := range typ.Carries {
		c.AddItem(carry.Item, carry.Count)
	}
	if err := g.creatures.Add(c); err != nil {
		return err
	}
	if err := g.world.Place(c.ID(), sp.At); err != nil {
		g.creatures.Remove(c.ID())
		return err
	}
	g.spawns[c.ID()] = sp
	if err := combat.StartRestoring(g.combat, c); err != nil {
		return err
	}

	g.broadcast(sp.At, fmt.Sprintf("%s appears.", article(c.Name())), c.ID())
	ctx.Logger().Debug("monster spawned",
		zap.Uint32("creature", c.ID()),
		zap.String("monster", sp.Monster),
		zap.Stringer("at", sp.At),
	)
	return nil
}

// onDeath runs after combat has ended the victim's session. Monsters leave the
// world and come back after their spawn's respawn delay; players wake at the
// map start with full health.
func (g *Game) onDeath(ctx event.Context, victim, killer *creature.Creature) {
	if victim.IsPlayer() {
		g.revive(ctx, victim)
		return
	}
	g.removeFromWorld(victim)
	sp, ok := g.spawns[victim.ID()]
	delete(g.spawns, victim.ID())
	if !ok || sp.Respawn <= 0 {
		return
	}
	if err := g.sched.ScheduleEvent(g.spawnEvent(sp), sp.Respawn); err != nil {
		ctx.Logger().Error("scheduling respawn", zap.String("monster", sp.Monster), zap.Error(err))
	}
}

func (g *Game) revive(ctx event.Context, p *creature.Creature) {
	g.sched.CancelAllFor(p.ID(), movement.KindMove)
	from, to := p.Location(), g.world.Start()
	if err := g.world.Remove(p.ID(), from); err != nil {
		ctx.Logger().Warn("removing dead player", zap.Uint32("creature", p.ID()), zap.Error(err))
	}
	if err := g.world.Place(p.ID(), to); err != nil {
		ctx.Logger().Error("placing revived player", zap.Uint32("creature", p.ID()), zap.Error(err))
		return
	}
	p.SetLocation(to)
	p.Restore(p.MaxHitPoints())
	g.tell(p.ID(), "You have died. You wake up where your journey began.")
	g.broadcast(to, fmt.Sprintf("%s appears.", p.Name()), p.ID())
}

// removeFromWorld takes c off the map and out of the registry and drops every
// combat link to it.
func (g *Game) removeFromWorld(c *creature.Creature) {
	combat.Disengage(g.combat, c)
	for _, id := range c.Combat.AttackedBy() {
		if a, ok := g.creatures.Find(id); ok && a.Target() == c.ID() {
			combat.Disengage(g.combat, a)
		}
	}
	g.sched.CancelAllFor(c.ID())
	if err := g.world.Remove(c.ID(), c.Location()); err != nil {
		g.logger.Warn("removing creature from map", zap.Uint32("creature", c.ID()), zap.Error(err))
	}
	g.creatures.Remove(c.ID())
}

// article prefixes a lower-case monster name with "A"/"An".
func article(name string) string {
	if name == "" || name[0] < 'a' || name[0] > 'z' {
		return name
	}
	switch name[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "An " + name
	}
	return "A " + name
}
