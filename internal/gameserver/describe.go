package gameserver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cory-johannsen/fibula/internal/game/command"
	"github.com/cory-johannsen/fibula/internal/game/creature"
)

var categoryOrder = []string{
	command.CategoryMovement,
	command.CategoryCombat,
	command.CategoryWorld,
	command.CategoryCommunication,
	command.CategorySystem,
}

// describeSurroundings renders what c sees: its own position and every other
// creature on its floor within view range, nearest first.
func (g *Game) describeSurroundings(c *creature.Creature) string {
	here := c.Location()
	var b strings.Builder
	fmt.Fprintf(&b, "You stand at %s facing %s", here, c.Facing())
	if tile, ok := g.world.TileAt(here); ok {
		if ground := groundName(tile.Glyph); ground != "" {
			fmt.Fprintf(&b, " on %s", ground)
		}
	}
	b.WriteString(".")
	if here.Z <= surfaceFloor {
		h := g.clock.CurrentHour()
		fmt.Fprintf(&b, " It is %s (%s). %s", h.Period(), h, FlavorText(h.Period(), true))
	}

	type sighting struct {
		c    *creature.Creature
		dist int
	}
	var seen []sighting
	for _, id := range g.world.Spectators(here, g.sightRange(here.Z)) {
		if id == c.ID() {
			continue
		}
		if other, ok := g.creatures.Find(id); ok {
			seen = append(seen, sighting{other, other.Location().Distance(here)})
		}
	}
	sort.SliceStable(seen, func(i, j int) bool {
		if seen[i].dist != seen[j].dist {
			return seen[i].dist < seen[j].dist
		}
		return seen[i].c.ID() < seen[j].c.ID()
	})
	for _, s := range seen {
		name := s.c.Name()
		if !s.c.IsPlayer() {
			name = strings.ToLower(article(name))
		}
		if s.dist == 0 {
			fmt.Fprintf(&b, "\n  %s, right here", name)
			continue
		}
		unit := "squares"
		if s.dist == 1 {
			unit = "square"
		}
		fmt.Fprintf(&b, "\n  %s, %d %s to the %s", name, s.dist, unit, here.Towards(s.c.Location()))
	}
	return b.String()
}

func groundName(glyph rune) string {
	switch glyph {
	case '+':
		return "sanctuary ground"
	case '>':
		return "stairs leading up"
	case '<':
		return "stairs leading down"
	}
	return ""
}

func (g *Game) describeStatus(c *creature.Creature) string {
	atk, def := c.Combat.AttackCredits(), c.Combat.DefenseCredits()
	s := fmt.Sprintf("%s: %d/%d hit points, attack %d/%d, defense %d/%d.",
		c.Name(), c.HitPoints(), c.MaxHitPoints(),
		atk.Current(), atk.Max(), def.Current(), def.Max())
	if t, ok := g.creatures.Find(c.Target()); ok && c.Target() != 0 {
		s += fmt.Sprintf(" Attacking %s.", t.Name())
	}
	return s
}

func (g *Game) describeInventory(c *creature.Creature) string {
	items := c.Items()
	if len(items) == 0 {
		return "You carry nothing."
	}
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		name := id
		if it, ok := g.catalog.Item(id); ok {
			name = it.Name
		}
		parts = append(parts, fmt.Sprintf("%d %s", items[id], name))
	}
	return "You carry: " + strings.Join(parts, ", ") + "."
}

func (g *Game) helpText() string {
	byCat := g.commands.CommandsByCategory()
	var b strings.Builder
	b.WriteString("Commands:")
	for _, cat := range categoryOrder {
		for _, cmd := range byCat[cat] {
			usage := cmd.Name
			if cmd.Usage != "" {
				usage += " " + cmd.Usage
			}
			fmt.Fprintf(&b, "\n  %-22s %s", usage, cmd.Help)
			if len(cmd.Aliases) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(cmd.Aliases, ", "))
			}
		}
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
