// Package creature models combatants: players and monsters with hit points,
// combat credits, cooldowns and an auto-attack target.
package creature

import (
	"fmt"
	"sync"
	"time"

	"github.com/cory-johannsen/fibula/internal/game/dice"
	"github.com/cory-johannsen/fibula/internal/game/world"
)

// Kind distinguishes player characters from monsters.
type Kind int

const (
	KindPlayer Kind = iota
	KindMonster
)

func (k Kind) String() string {
	if k == KindPlayer {
		return "player"
	}
	return "monster"
}

// BloodType decides the effect shown when a creature is wounded.
type BloodType int

const (
	BloodRed BloodType = iota
	BloodVenom
	BloodUndead
	BloodFire
	BloodNone
)

// ParseBloodType maps a catalog name to a BloodType.
func ParseBloodType(s string) (BloodType, error) {
	switch s {
	case "", "red", "blood":
		return BloodRed, nil
	case "venom", "slime":
		return BloodVenom, nil
	case "undead", "bones":
		return BloodUndead, nil
	case "fire":
		return BloodFire, nil
	case "none":
		return BloodNone, nil
	}
	return 0, fmt.Errorf("unknown blood type %q", s)
}

// Effect is the visual cue produced by a wound.
type Effect string

const (
	EffectNone        Effect = ""
	EffectBlood       Effect = "blood"
	EffectPoison      Effect = "green splash"
	EffectBoneShards  Effect = "bone shards"
	EffectEmbers      Effect = "embers"
	EffectBlockHit    Effect = "sparks"
	EffectShieldBlock Effect = "puff"
)

// WoundEffect returns the effect for a damaging hit on this blood type.
func (b BloodType) WoundEffect() Effect {
	switch b {
	case BloodRed:
		return EffectBlood
	case BloodVenom:
		return EffectPoison
	case BloodUndead:
		return EffectBoneShards
	case BloodFire:
		return EffectEmbers
	default:
		return EffectNone
	}
}

// Template is the immutable description a Creature is built from.
type Template struct {
	Name         string
	Kind         Kind
	MaxHitPoints int
	Blood        BloodType

	// AttackSpeed and DefenseSpeed are the intervals at which one credit of
	// each kind is restored (see combat.StartRestoring). AttackSpeed is also
	// the pause between rounds.
	AttackSpeed  time.Duration
	DefenseSpeed time.Duration
	WalkSpeed    time.Duration

	AttackRange  int
	AttackSkill  int
	DefenseSkill int
	Armor        int
	Damage       dice.Expression
	MaxCredits   int
	Experience   int
}

// Validate reports whether t can build a Creature.
func (t Template) Validate() error {
	switch {
	case t.Name == "":
		return fmt.Errorf("creature template: name must not be empty")
	case t.MaxHitPoints < 1:
		return fmt.Errorf("creature template %q: max hit points must be >= 1", t.Name)
	case t.AttackSpeed <= 0 || t.DefenseSpeed <= 0 || t.WalkSpeed <= 0:
		return fmt.Errorf("creature template %q: speeds must be > 0", t.Name)
	case t.AttackRange < 1:
		return fmt.Errorf("creature template %q: attack range must be >= 1", t.Name)
	case t.Damage.Count < 1:
		return fmt.Errorf("creature template %q: damage expression required", t.Name)
	case t.MaxCredits < 1:
		return fmt.Errorf("creature template %q: max credits must be >= 1", t.Name)
	}
	return nil
}

// Creature is a live combatant in the world.
//
// Mutable fields are written only from event execution on the game goroutine;
// the mutex lets connection goroutines read consistent snapshots.
type Creature struct {
	id       uint32
	template Template

	Combat     *CombatState
	Exhaustion *ExhaustionTracker

	mu       sync.RWMutex
	hp       int
	location world.Location
	facing   world.Direction
	target   uint32
	items    map[string]int
}

// New creates a Creature at full health.
//
// Precondition: id != 0 and t.Validate() == nil.
func New(id uint32, t Template, loc world.Location) *Creature {
	if id == 0 {
		panic("creature.New: id must not be 0")
	}
	if err := t.Validate(); err != nil {
		panic("creature.New: " + err.Error())
	}
	return &Creature{
		id:         id,
		template:   t,
		Combat:     NewCombatState(t.MaxCredits, t.MaxCredits),
		Exhaustion: NewExhaustionTracker(),
		hp:         t.MaxHitPoints,
		location:   loc,
		facing:     world.South,
		items:      make(map[string]int),
	}
}

func (c *Creature) ID() uint32 { return c.id }
func (c *Creature) Name() string { return c.template.Name }
func (c *Creature) Kind() Kind { return c.template.Kind }
func (c *Creature) IsPlayer() bool { return c.template.Kind == KindPlayer }
func (c *Creature) Template() Template { return c.template }
func (c *Creature) MaxHitPoints() int { return c.template.MaxHitPoints }
func (c *Creature) AttackRange() int { return c.template.AttackRange }
func (c *Creature) Blood() BloodType { return c.template.Blood }
func (c *Creature) AttackSpeed() time.Duration { return c.template.AttackSpeed }
func (c *Creature) DefenseSpeed() time.Duration { return c.template.DefenseSpeed }
func (c *Creature) WalkSpeed() time.Duration { return c.template.WalkSpeed }

// HitPoints returns current hit points.
func (c *Creature) HitPoints() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hp
}

// IsAlive reports whether hit points are above zero.
func (c *Creature) IsAlive() bool { return c.HitPoints() > 0 }

// Location returns the creature's tile.
func (c *Creature) Location() world.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.location
}

// SetLocation moves the creature's own record; the Map is updated separately.
func (c *Creature) SetLocation(loc world.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = loc
}

// Facing returns the direction the creature looks in.
func (c *Creature) Facing() world.Direction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.facing
}

// SetFacing turns the creature.
func (c *Creature) SetFacing(d world.Direction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facing = d
}

// Target returns the auto-attack target id, or 0.
func (c *Creature) Target() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// SetTarget sets the auto-attack target; 0 clears it. Returns the previous target.
func (c *Creature) SetTarget(id uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.target
	c.target = id
	return prev
}

// Damage is the outcome of ApplyDamage.
type Damage struct {
	Applied int
	Effect  Effect
	Killed  bool
}

// ApplyDamage removes up to amount hit points and attributes the removed
// amount to attacker.
//
// Postcondition: 0 <= Applied <= previous hit points; hit points never go
// negative; Combat.DamageTakenFrom(attacker) grows by exactly Applied.
func (c *Creature) ApplyDamage(attacker uint32, amount int) Damage {
	c.mu.Lock()
	applied := max(0, min(amount, c.hp))
	c.hp -= applied
	killed := applied > 0 && c.hp == 0
	c.mu.Unlock()

	c.Combat.RecordDamage(attacker, applied)
	effect := EffectNone
	if applied > 0 {
		effect = c.template.Blood.WoundEffect()
	}
	return Damage{Applied: applied, Effect: effect, Killed: killed}
}

// Heal restores up to amount hit points. Returns the amount restored.
func (c *Creature) Heal(amount int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount <= 0 || c.hp == 0 {
		return 0
	}
	healed := min(amount, c.template.MaxHitPoints-c.hp)
	c.hp += healed
	return healed
}

// Restore sets hit points to hp, clamped to [1, max], and ends any combat
// session. Used on respawn and when loading a saved character.
func (c *Creature) Restore(hp int) {
	c.mu.Lock()
	c.hp = max(1, min(hp, c.template.MaxHitPoints))
	c.target = 0
	c.mu.Unlock()
	c.Combat.EndSession()
}

// AddItem puts n of itemID into the creature's pack.
func (c *Creature) AddItem(itemID string, n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[itemID] += n
}

// TakeItem removes one itemID. Returns false if none is carried.
func (c *Creature) TakeItem(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items[itemID] == 0 {
		return false
	}
	c.items[itemID]--
	if c.items[itemID] == 0 {
		delete(c.items, itemID)
	}
	return true
}

// ItemCount returns how many of itemID are carried.
func (c *Creature) ItemCount(itemID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[itemID]
}

// Items returns a copy of the pack.
func (c *Creature) Items() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.items))
	for k, v := range c.items {
		out[k] = v
	}
	return out
}
