package creature

import (
	"slices"
	"sync"
)

// Credits is a bounded counter gating how often a combatant may act.
//
// Invariant: 0 <= Current() <= Max().
type Credits struct {
	current int
	max     int
}

// Current returns the available credits.
func (c Credits) Current() int { return c.current }

// Max returns the cap.
func (c Credits) Max() int { return c.max }

// CombatState tracks one combatant's credits and session attribution.
//
// Concurrency: written by the game goroutine, read by status commands; all
// methods are safe for concurrent use.
type CombatState struct {
	mu          sync.Mutex
	attack      Credits
	defense     Credits
	damageTaken map[uint32]int
	attackedBy  map[uint32]struct{}
}

// NewCombatState returns a CombatState with full credits.
//
// Precondition: maxAttack >= 1 and maxDefense >= 1.
func NewCombatState(maxAttack, maxDefense int) *CombatState {
	if maxAttack < 1 || maxDefense < 1 {
		panic("creature.NewCombatState: credit caps must be >= 1")
	}
	return &CombatState{
		attack:      Credits{current: maxAttack, max: maxAttack},
		defense:     Credits{current: maxDefense, max: maxDefense},
		damageTaken: make(map[uint32]int),
		attackedBy:  make(map[uint32]struct{}),
	}
}

// AttackCredits returns a snapshot of the attack counter.
func (s *CombatState) AttackCredits() Credits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attack
}

// DefenseCredits returns a snapshot of the defense counter.
func (s *CombatState) DefenseCredits() Credits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defense
}

// ConsumeAttack spends one attack credit. Returns false when none remain.
func (s *CombatState) ConsumeAttack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return consume(&s.attack)
}

// ConsumeDefense spends one defense credit. Returns false when none remain.
func (s *CombatState) ConsumeDefense() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return consume(&s.defense)
}

// RestoreAttack adds one attack credit, up to the cap.
func (s *CombatState) RestoreAttack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore(&s.attack)
}

// RestoreDefense adds one defense credit, up to the cap.
func (s *CombatState) RestoreDefense() {
	s.mu.Lock()
	defer s.mu.Unlock()
	restore(&s.defense)
}

// RecordDamage attributes amount to attacker for the current session.
//
// Precondition: amount >= 0.
func (s *CombatState) RecordDamage(attacker uint32, amount int) {
	if amount <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.damageTaken[attacker] += amount
}

// DamageTakenFrom returns the damage attacker dealt this session.
func (s *CombatState) DamageTakenFrom(attacker uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.damageTaken[attacker]
}

// DamageTakenInSession returns a copy of the attribution map.
func (s *CombatState) DamageTakenInSession() map[uint32]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint32]int, len(s.damageTaken))
	for k, v := range s.damageTaken {
		out[k] = v
	}
	return out
}

// SetAttackedBy records that attacker is targeting this combatant.
func (s *CombatState) SetAttackedBy(attacker uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attackedBy[attacker] = struct{}{}
}

// UnsetAttackedBy removes attacker from the set.
func (s *CombatState) UnsetAttackedBy(attacker uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attackedBy, attacker)
}

// IsAttackedBy reports whether attacker is in the set.
func (s *CombatState) IsAttackedBy(attacker uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.attackedBy[attacker]
	return ok
}

// AttackedBy returns the attacker ids in ascending order.
func (s *CombatState) AttackedBy() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint32, 0, len(s.attackedBy))
	for id := range s.attackedBy {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EndSession clears attribution and the attacked-by set.
func (s *CombatState) EndSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.damageTaken)
	clear(s.attackedBy)
}

func restore(c *Credits) {
	c.current = min(c.current+1, c.max)
}

func consume(c *Credits) bool {
	if c.current == 0 {
		return false
	}
	c.current--
	return true
}
