// Package combat implements auto-attack combat as self-rescheduling operations
// and the periodic restoration of combat credits.
package combat

import (
	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/dice"
)

// Result is the outcome of one swing. A miss is not an error: Blocked and
// ArmorBlocked describe why Damage is zero.
type Result struct {
	Damage       int
	Blocked      bool
	ArmorBlocked bool
}

// Calculator decides how much damage a swing inflicts.
type Calculator interface {
	Calculate(attacker, target *creature.Creature) Result
}

// ProbabilityCalculator splits a percentile roll between a hit and a shield
// block, then lets the target's armor absorb part of the damage roll.
type ProbabilityCalculator struct {
	roller *dice.Roller
}

// NewProbabilityCalculator creates a ProbabilityCalculator.
//
// Precondition: roller must be non-nil.
func NewProbabilityCalculator(roller *dice.Roller) *ProbabilityCalculator {
	if roller == nil {
		panic("combat.NewProbabilityCalculator: roller must not be nil")
	}
	return &ProbabilityCalculator{roller: roller}
}

// HitChance returns the percent chance that attacker's swing gets past target's
// shield. Always within [5, 95].
func HitChance(attacker, target creature.Template) int {
	return min(95, max(5, 60+attacker.AttackSkill-target.DefenseSkill))
}

// Calculate rolls one swing. A shield block costs the target a defense credit;
// without one the swing lands.
//
// Postcondition: Damage >= 0; Damage == 0 iff Blocked or ArmorBlocked.
func (p *ProbabilityCalculator) Calculate(attacker, target *creature.Creature) Result {
	at, tt := attacker.Template(), target.Template()
	if p.roller.Percent() >= HitChance(at, tt) && target.Combat.ConsumeDefense() {
		return Result{Blocked: true}
	}
	raw := p.roller.Roll(at.Damage).Total()
	absorbed := 0
	if tt.Armor > 0 {
		absorbed = p.roller.Intn(tt.Armor + 1)
	}
	if dmg := raw - absorbed; dmg > 0 {
		return Result{Damage: dmg}
	}
	return Result{ArmorBlocked: true}
}
