package combat

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/notification"
	"github.com/cory-johannsen/fibula/internal/game/operation"
	"github.com/cory-johannsen/fibula/internal/game/world"
)

// Event kinds scheduled by the combat package. Logout and death cancel them
// by requestor.
const (
	KindAutoAttack     = "auto_attack"
	KindRestoreAttack  = "restore_attack"
	KindRestoreDefense = "restore_defense"
)

// ErrSelfTarget is returned when a creature tries to attack itself.
var ErrSelfTarget = errors.New("a creature cannot target itself")

// Deps are the collaborators combat operations close over.
type Deps struct {
	Scheduler  operation.Scheduler
	Creatures  *creature.Registry
	Map        *world.Map
	Calculator Calculator
	Notifier   *notification.Notifier
	// ViewRange is how far away spectators see combat messages.
	ViewRange int
	// OnDeath runs on the game goroutine after a kill has ended the session.
	OnDeath func(ctx event.Context, victim, killer *creature.Creature)
}

// NewAutoAttack builds one combat round of attackerID against targetID.
//
// Conditions: the attacker still targets this target; both stand on one floor
// within the attacker's range. On pass one attack credit is spent on a swing.
// Either way, while the attacker still has this live target, a fresh round is
// scheduled after the attacker's AttackSpeed.
func NewAutoAttack(d *Deps, attackerID, targetID uint32) *operation.Operation {
	op := operation.New(KindAutoAttack, attackerID)

	cost := time.Duration(0)
	if a, ok := d.Creatures.Find(attackerID); ok {
		cost = a.AttackSpeed()
		op.WithExhaustion(operation.ExhaustionPhysicalCombat, cost, a.Exhaustion)
	}
	next := func(event.Context) error {
		return d.continueRound(attackerID, targetID, cost)
	}

	if d.Notifier != nil {
		op.ReportFailuresTo(d.Notifier)
	}
	return op.
		When(
			d.stillTargeting(attackerID, targetID),
			d.inRange(attackerID, targetID),
		).
		OnPass(func(ctx event.Context) error {
			d.swing(ctx, attackerID, targetID)
			return nil
		}, next).
		OnFail(func(ctx event.Context) error {
			d.chase(ctx, attackerID, targetID)
			return nil
		}, next)
}

// Engage makes attacker auto-attack target, replacing any previous target.
// The first round waits out the attacker's physical-combat cooldown.
//
// Precondition: called on the game goroutine.
func Engage(d *Deps, attacker, target *creature.Creature, now time.Time) error {
	if attacker.ID() == target.ID() {
		return ErrSelfTarget
	}
	d.Scheduler.CancelAllFor(attacker.ID(), KindAutoAttack)
	if prev := attacker.SetTarget(target.ID()); prev != 0 && prev != target.ID() {
		if p, ok := d.Creatures.Find(prev); ok {
			p.Combat.UnsetAttackedBy(attacker.ID())
		}
	}
	target.Combat.SetAttackedBy(attacker.ID())

	delay := operation.CooldownDelay(attacker.Exhaustion, operation.ExhaustionPhysicalCombat, now)
	if err := d.Scheduler.ScheduleEvent(NewAutoAttack(d, attacker.ID(), target.ID()), delay); err != nil {
		return fmt.Errorf("engaging %d -> %d: %w", attacker.ID(), target.ID(), err)
	}
	return nil
}

// Disengage clears attacker's target and cancels its pending rounds.
//
// Precondition: called on the game goroutine.
func Disengage(d *Deps, attacker *creature.Creature) {
	d.Scheduler.CancelAllFor(attacker.ID(), KindAutoAttack)
	if prev := attacker.SetTarget(0); prev != 0 {
		if p, ok := d.Creatures.Find(prev); ok {
			p.Combat.UnsetAttackedBy(attacker.ID())
		}
	}
}

func (d *Deps) stillTargeting(attackerID, targetID uint32) operation.Condition {
	return operation.NewCondition("", func() bool {
		a, ok := d.Creatures.Find(attackerID)
		return ok && a.IsAlive() && a.Target() == targetID
	})
}

func (d *Deps) inRange(attackerID, targetID uint32) operation.Condition {
	return operation.NewCondition("Target is out of reach.", func() bool {
		a, ok := d.Creatures.Find(attackerID)
		if !ok {
			return false
		}
		t, ok := d.Creatures.Find(targetID)
		if !ok || !t.IsAlive() {
			return false
		}
		from, to := a.Location(), t.Location()
		return from.SameFloor(to) && from.Distance(to) <= a.AttackRange()
	})
}

func (d *Deps) continueRound(attackerID, targetID uint32, delay time.Duration) error {
	a, ok := d.Creatures.Find(attackerID)
	if !ok || !a.IsAlive() || a.Target() != targetID {
		return nil
	}
	if t, ok := d.Creatures.Find(targetID); !ok || !t.IsAlive() {
		return nil
	}
	return d.Scheduler.ScheduleEvent(NewAutoAttack(d, attackerID, targetID), delay)
}

func (d *Deps) swing(ctx event.Context, attackerID, targetID uint32) {
	a, _ := d.Creatures.Find(attackerID)
	t, _ := d.Creatures.Find(targetID)
	if a == nil || t == nil {
		return
	}
	if !a.Combat.ConsumeAttack() {
		ctx.Logger().Debug("no attack credit",
			zap.Uint32("attacker", attackerID),
			zap.Uint32("target", targetID),
		)
		return
	}

	res := d.Calculator.Calculate(a, t)
	dmg := t.ApplyDamage(a.ID(), res.Damage)
	d.broadcast(t.Location(), describe(a, t, res, dmg))
	ctx.Logger().Debug("swing",
		zap.Uint32("attacker", attackerID),
		zap.Uint32("target", targetID),
		zap.Int("damage", dmg.Applied),
		zap.Bool("blocked", res.Blocked),
		zap.Bool("armor_blocked", res.ArmorBlocked),
		zap.Int("target_hp", t.HitPoints()),
	)

	if dmg.Killed {
		d.endSession(ctx, t, a)
		return
	}
	if t.Kind() == creature.KindMonster && t.Target() == 0 {
		if err := Engage(d, t, a, ctx.Now()); err != nil {
			ctx.Logger().Warn("monster retaliation", zap.Uint32("monster", t.ID()), zap.Error(err))
		}
	}
}

// chase steps a monster one tile towards a target that is on its floor but
// out of reach. Players are never moved on their behalf.
func (d *Deps) chase(ctx event.Context, attackerID, targetID uint32) {
	a, ok := d.Creatures.Find(attackerID)
	if !ok || a.IsPlayer() || !a.IsAlive() || a.Target() != targetID {
		return
	}
	t, ok := d.Creatures.Find(targetID)
	if !ok || !t.IsAlive() {
		return
	}
	from, to := a.Location(), t.Location()
	if !from.SameFloor(to) || from.Distance(to) <= a.AttackRange() {
		return
	}
	dir := from.Towards(to)
	step := from.Step(dir)
	if err := d.Map.Move(a.ID(), from, step); err != nil {
		ctx.Logger().Debug("chase blocked", zap.Uint32("monster", a.ID()), zap.Error(err))
		return
	}
	a.SetLocation(step)
	a.SetFacing(dir)
}

// endSession runs after victim dies: every attacker loses its target, the
// attacked-by links are removed and the kill is announced.
func (d *Deps) endSession(ctx event.Context, victim, killer *creature.Creature) {
	for _, id := range victim.Combat.AttackedBy() {
		if a, ok := d.Creatures.Find(id); ok && a.Target() == victim.ID() {
			a.SetTarget(0)
			d.Scheduler.CancelAllFor(id, KindAutoAttack)
		}
	}
	if prev := victim.SetTarget(0); prev != 0 {
		if p, ok := d.Creatures.Find(prev); ok {
			p.Combat.UnsetAttackedBy(victim.ID())
		}
	}
	d.Scheduler.CancelAllFor(victim.ID(), KindAutoAttack)
	victim.Combat.EndSession()

	d.broadcast(victim.Location(), fmt.Sprintf("%s is slain by %s.", capitalize(victim.Name()), killer.Name()))
	ctx.Logger().Info("creature killed",
		zap.Uint32("victim", victim.ID()),
		zap.String("victim_name", victim.Name()),
		zap.Uint32("killer", killer.ID()),
	)
	if d.OnDeath != nil {
		d.OnDeath(ctx, victim, killer)
	}
}

func (d *Deps) broadcast(at world.Location, text string) {
	if d.Notifier == nil {
		return
	}
	d.Notifier.Notify(text, d.Map.Spectators(at, d.ViewRange)...)
}

func describe(a, t *creature.Creature, res Result, dmg creature.Damage) string {
	switch {
	case res.Blocked:
		return fmt.Sprintf("%s attacks %s, but the blow is blocked (%s).", capitalize(a.Name()), t.Name(), creature.EffectShieldBlock)
	case res.ArmorBlocked:
		return fmt.Sprintf("%s attacks %s, but the blow glances off armor (%s).", capitalize(a.Name()), t.Name(), creature.EffectBlockHit)
	default:
		return fmt.Sprintf("%s hits %s for %d damage (%s).", capitalize(a.Name()), t.Name(), dmg.Applied, dmg.Effect)
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
