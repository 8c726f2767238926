package world

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	// ErrNotWalkable is returned when placing a creature on a wall or off the map.
	ErrNotWalkable = errors.New("tile is not walkable")
	// ErrOccupied is returned when the destination already holds a creature.
	ErrOccupied = errors.New("tile is occupied")
	// ErrNotPresent is returned when a creature is not at the given location.
	ErrNotPresent = errors.New("creature is not at location")
)

// Tile is one cell of a floor.
type Tile struct {
	Walkable bool
	Glyph    rune
}

// Spawn marks where a catalog monster appears and how quickly it returns.
type Spawn struct {
	Monster string
	At      Location
	Respawn time.Duration
}

// Map is a set of rectangular floors plus creature occupancy.
//
// Tiles never change after construction. Occupancy is written by the game
// goroutine and read by connection goroutines, so it is guarded by mu.
type Map struct {
	name   string
	start  Location
	floors map[int][][]Tile
	spawns []Spawn

	mu        sync.RWMutex
	occupants map[Location][]uint32
}

// NewMap creates a Map from floor rows where '#' is a wall, ' ' is void and
// any other glyph is walkable.
//
// Precondition: floors must be non-empty and start must be walkable.
// Postcondition: Returns a Map with no occupants, or an error.
func NewMap(name string, start Location, floors map[int][]string, spawns []Spawn) (*Map, error) {
	if len(floors) == 0 {
		return nil, fmt.Errorf("map %q: at least one floor required", name)
	}
	m := &Map{
		name:      name,
		start:     start,
		floors:    make(map[int][][]Tile, len(floors)),
		occupants: make(map[Location][]uint32),
	}
	for z, rows := range floors {
		grid := make([][]Tile, len(rows))
		for y, row := range rows {
			for _, r := range row {
				grid[y] = append(grid[y], Tile{Walkable: r != '#' && r != ' ', Glyph: r})
			}
		}
		m.floors[z] = grid
	}
	if !m.IsWalkable(start) {
		return nil, fmt.Errorf("map %q: start %s: %w", name, start, ErrNotWalkable)
	}
	for _, sp := range spawns {
		if !m.IsWalkable(sp.At) {
			return nil, fmt.Errorf("map %q: spawn %q at %s: %w", name, sp.Monster, sp.At, ErrNotWalkable)
		}
	}
	m.spawns = slices.Clone(spawns)
	return m, nil
}

// Name returns the map name.
func (m *Map) Name() string { return m.name }

// Start returns the location new characters appear at.
func (m *Map) Start() Location { return m.start }

// Spawns returns the monster spawn points.
func (m *Map) Spawns() []Spawn { return slices.Clone(m.spawns) }

// TileAt returns the tile at loc and whether loc is on the map.
func (m *Map) TileAt(loc Location) (Tile, bool) {
	grid, ok := m.floors[loc.Z]
	if !ok || loc.Y < 0 || loc.Y >= len(grid) {
		return Tile{}, false
	}
	row := grid[loc.Y]
	if loc.X < 0 || loc.X >= len(row) {
		return Tile{}, false
	}
	return row[loc.X], true
}

// IsWalkable reports whether loc is a walkable tile on the map.
func (m *Map) IsWalkable(loc Location) bool {
	t, ok := m.TileAt(loc)
	return ok && t.Walkable
}

// CanMoveTo reports whether a creature may step onto loc: walkable and empty.
func (m *Map) CanMoveTo(loc Location) bool {
	if !m.IsWalkable(loc) {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.occupants[loc]) == 0
}

// CreaturesAt returns the ids standing on loc in arrival order.
func (m *Map) CreaturesAt(loc Location) []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.occupants[loc])
}

// Spectators returns every creature on center's floor within rng tiles.
func (m *Map) Spectators(center Location, rng int) []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []uint32
	for loc, here := range m.occupants {
		if loc.SameFloor(center) && loc.Distance(center) <= rng {
			ids = append(ids, here...)
		}
	}
	slices.Sort(ids)
	return ids
}

// Place puts id on loc regardless of other occupants. Used for login and
// spawning, where stacking is tolerated.
//
// Precondition: loc must be walkable.
func (m *Map) Place(id uint32, loc Location) error {
	if !m.IsWalkable(loc) {
		return fmt.Errorf("placing %d at %s: %w", id, loc, ErrNotWalkable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occupants[loc] = append(m.occupants[loc], id)
	return nil
}

// Remove takes id off loc.
func (m *Map) Remove(id uint32, loc Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(id, loc)
}

// Move relocates id from one tile to an empty walkable neighbour.
//
// Postcondition: on error occupancy is unchanged.
func (m *Map) Move(id uint32, from, to Location) error {
	if !m.IsWalkable(to) {
		return fmt.Errorf("moving %d to %s: %w", id, to, ErrNotWalkable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.occupants[to]) > 0 {
		return fmt.Errorf("moving %d to %s: %w", id, to, ErrOccupied)
	}
	if err := m.removeLocked(id, from); err != nil {
		return err
	}
	m.occupants[to] = append(m.occupants[to], id)
	return nil
}

func (m *Map) removeLocked(id uint32, loc Location) error {
	here := m.occupants[loc]
	i := slices.Index(here, id)
	if i < 0 {
		return fmt.Errorf("removing %d from %s: %w", id, loc, ErrNotPresent)
	}
	here = slices.Delete(here, i, i+1)
	if len(here) == 0 {
		delete(m.occupants, loc)
	} else {
		m.occupants[loc] = here
	}
	return nil
}
