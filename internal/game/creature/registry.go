package creature

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrDuplicateID is returned when adding a creature whose id is already taken.
var ErrDuplicateID = errors.New("creature id already registered")

// Registry indexes every creature in the world by id.
type Registry struct {
	mu        sync.RWMutex
	creatures map[uint32]*Creature
	nextID    atomic.Uint32
}

// NewRegistry returns an empty Registry. Ids handed out by NextID start at 1.
func NewRegistry() *Registry {
	return &Registry{creatures: make(map[uint32]*Creature)}
}

// NextID returns a fresh creature id.
func (r *Registry) NextID() uint32 { return r.nextID.Add(1) }

// Add registers c.
func (r *Registry) Add(c *Creature) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.creatures[c.ID()]; ok {
		return fmt.Errorf("adding %q: %w: %d", c.Name(), ErrDuplicateID, c.ID())
	}
	r.creatures[c.ID()] = c
	return nil
}

// Remove unregisters id and returns the creature, if any.
func (r *Registry) Remove(id uint32) (*Creature, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creatures[id]
	delete(r.creatures, id)
	return c, ok
}

// Find returns the creature with id.
func (r *Registry) Find(id uint32) (*Creature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creatures[id]
	return c, ok
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id uint32) bool {
	_, ok := r.Find(id)
	return ok
}

// FindByName returns the first creature whose name matches, ignoring case.
func (r *Registry) FindByName(name string) (*Creature, bool) {
	for _, c := range r.All() {
		if strings.EqualFold(c.Name(), name) {
			return c, true
		}
	}
	return nil, false
}

// All returns every creature ordered by id.
func (r *Registry) All() []*Creature {
	r.mu.RLock()
	out := make([]*Creature, 0, len(r.creatures))
	for _, c := range r.creatures {
		out = append(out, c)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Creature) int { return cmp.Compare(a.ID(), b.ID()) })
	return out
}

// Len returns the number of registered creatures.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.creatures)
}
