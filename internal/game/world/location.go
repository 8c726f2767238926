// Package world models the tile map: coordinates, walkability and which
// creatures stand where.
package world

import (
	"fmt"
	"strings"
)

// Location is a tile coordinate. Z is the floor.
type Location struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

func (l Location) String() string { return fmt.Sprintf("(%d,%d,%d)", l.X, l.Y, l.Z) }

// SameFloor reports whether l and o are on the same floor.
func (l Location) SameFloor(o Location) bool { return l.Z == o.Z }

// Distance returns the Chebyshev distance between l and o, ignoring floors.
func (l Location) Distance(o Location) int {
	return max(abs(l.X-o.X), abs(l.Y-o.Y))
}

// Step returns the neighbouring location in direction d.
func (l Location) Step(d Direction) Location {
	dx, dy := d.delta()
	return Location{X: l.X + dx, Y: l.Y + dy, Z: l.Z}
}

// Direction is a compass heading. Y grows southwards.
type Direction int

const (
	North Direction = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var directionNames = [...]string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

var directionAliases = map[string]Direction{
	"n": North, "ne": NorthEast, "e": East, "se": SouthEast,
	"s": South, "sw": SouthWest, "w": West, "nw": NorthWest,
}

func (d Direction) String() string {
	if d < North || d > NorthWest {
		return "unknown"
	}
	return directionNames[d]
}

// Diagonal reports whether d moves on both axes.
func (d Direction) Diagonal() bool { return d%2 == 1 }

// ParseDirection accepts full names and one- or two-letter abbreviations.
func ParseDirection(s string) (Direction, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := directionAliases[s]; ok {
		return d, nil
	}
	for i, name := range directionNames {
		if s == name {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Towards returns the direction that best approaches to from l.
func (l Location) Towards(to Location) Direction {
	dx, dy := sign(to.X-l.X), sign(to.Y-l.Y)
	for d := North; d <= NorthWest; d++ {
		if ddx, ddy := d.delta(); ddx == dx && ddy == dy {
			return d
		}
	}
	return North
}

func (d Direction) delta() (int, int) {
	switch d {
	case North:
		return 0, -1
	case NorthEast:
		return 1, -1
	case East:
		return 1, 0
	case SouthEast:
		return 1, 1
	case South:
		return 0, 1
	case SouthWest:
		return -1, 1
	case West:
		return -1, 0
	case NorthWest:
		return -1, -1
	}
	return 0, 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
