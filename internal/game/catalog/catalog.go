// Package catalog loads the immutable monster and item type templates the
// world spawns from.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/dice"
)

// PlayerTypeID is the creature type every player character is built from.
const PlayerTypeID = "player"

// CreatureDef is the YAML form of a creature type.
type CreatureDef struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	HitPoints    int           `yaml:"hit_points"`
	Blood        string        `yaml:"blood"`
	AttackSpeed  time.Duration `yaml:"attack_speed"`
	DefenseSpeed time.Duration `yaml:"defense_speed"`
	WalkSpeed    time.Duration `yaml:"walk_speed"`
	AttackRange  int           `yaml:"attack_range"`
	AttackSkill  int           `yaml:"attack_skill"`
	DefenseSkill int           `yaml:"defense_skill"`
	Armor        int           `yaml:"armor"`
	Damage       string        `yaml:"damage"`
	MaxCredits   int           `yaml:"max_credits"`
	Experience   int           `yaml:"experience"`
	Carries      []Carry       `yaml:"carries"`
}

// Carry is an item a creature type starts with.
type Carry struct {
	Item  string `yaml:"item"`
	Count int    `yaml:"count"`
}

// ItemDef is an item type.
type ItemDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Heal        string `yaml:"heal"`
}

type file struct {
	Creatures []CreatureDef `yaml:"creatures"`
	Items     []ItemDef     `yaml:"items"`
}

// Item is a resolved item type.
type Item struct {
	ID          string
	Name        string
	Description string
	Heal        dice.Expression
}

// CreatureType is a resolved creature type.
type CreatureType struct {
	ID       string
	Template creature.Template
	Carries  []Carry
}

// Registry is a read-only index of creature and item types.
type Registry struct {
	creatures map[string]CreatureType
	items     map[string]Item
}

// Creature returns the creature type with id.
func (r *Registry) Creature(id string) (CreatureType, bool) {
	c, ok := r.creatures[id]
	return c, ok
}

// Item returns the item type with id.
func (r *Registry) Item(id string) (Item, bool) {
	it, ok := r.items[id]
	return it, ok
}

// ItemByName resolves an item by id or case-insensitive name.
func (r *Registry) ItemByName(name string) (Item, bool) {
	if it, ok := r.items[name]; ok {
		return it, true
	}
	for _, it := range r.items {
		if strings.EqualFold(it.Name, name) {
			return it, true
		}
	}
	return Item{}, false
}

// CreatureIDs returns every creature type id, sorted.
func (r *Registry) CreatureIDs() []string {
	ids := make([]string, 0, len(r.creatures))
	for id := range r.creatures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadDirectory reads every *.yaml file in dir.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a validated Registry in which every carried item
// resolves and the player type exists, or an error.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalog dir %q: %w", dir, err)
	}
	var docs [][]byte
	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		docs = append(docs, data)
	}
	return Load(docs...)
}

// Load builds a Registry from YAML documents. Unknown fields are rejected.
func Load(docs ...[]byte) (*Registry, error) {
	reg := &Registry{creatures: make(map[string]CreatureType), items: make(map[string]Item)}
	var creatureDefs []CreatureDef
	for i, data := range docs {
		var f file
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("parsing catalog document %d: %w", i, err)
		}
		for _, d := range f.Items {
			it, err := d.resolve()
			if err != nil {
				return nil, err
			}
			if _, dup := reg.items[it.ID]; dup {
				return nil, fmt.Errorf("duplicate item id %q", it.ID)
			}
			reg.items[it.ID] = it
		}
		creatureDefs = append(creatureDefs, f.Creatures...)
	}

	for _, d := range creatureDefs {
		ct, err := d.resolve()
		if err != nil {
			return nil, err
		}
		if _, dup := reg.creatures[ct.ID]; dup {
			return nil, fmt.Errorf("duplicate creature id %q", ct.ID)
		}
		for _, c := range ct.Carries {
			if _, ok := reg.items[c.Item]; !ok {
				return nil, fmt.Errorf("creature %q carries unknown item %q", ct.ID, c.Item)
			}
		}
		reg.creatures[ct.ID] = ct
	}
	if _, ok := reg.creatures[PlayerTypeID]; !ok {
		return nil, fmt.Errorf("catalog must define a %q creature type", PlayerTypeID)
	}
	return reg, nil
}

func (d ItemDef) resolve() (Item, error) {
	if d.ID == "" {
		return Item{}, fmt.Errorf("item with empty id")
	}
	it := Item{ID: d.ID, Name: d.Name, Description: d.Description}
	if it.Name == "" {
		it.Name = d.ID
	}
	if d.Heal != "" {
		e, err := dice.Parse(d.Heal)
		if err != nil {
			return Item{}, fmt.Errorf("item %q heal: %w", d.ID, err)
		}
		it.Heal = e
	}
	return it, nil
}

func (d CreatureDef) resolve() (CreatureType, error) {
	if d.ID == "" {
		return CreatureType{}, fmt.Errorf("creature with empty id")
	}
	blood, err := creature.ParseBloodType(d.Blood)
	if err != nil {
		return CreatureType{}, fmt.Errorf("creature %q: %w", d.ID, err)
	}
	dmg, err := dice.Parse(d.Damage)
	if err != nil {
		return CreatureType{}, fmt.Errorf("creature %q damage: %w", d.ID, err)
	}
	kind := creature.KindMonster
	if d.ID == PlayerTypeID {
		kind = creature.KindPlayer
	}
	name := d.Name
	if name == "" {
		name = d.ID
	}
	t := creature.Template{
		Name:         name,
		Kind:         kind,
		MaxHitPoints: d.HitPoints,
		Blood:        blood,
		AttackSpeed:  d.AttackSpeed,
		DefenseSpeed: d.DefenseSpeed,
		WalkSpeed:    d.WalkSpeed,
		AttackRange:  max(d.AttackRange, 1),
		AttackSkill:  d.AttackSkill,
		DefenseSkill: d.DefenseSkill,
		Armor:        d.Armor,
		Damage:       dmg,
		MaxCredits:   max(d.MaxCredits, 1),
		Experience:   d.Experience,
	}
	if err := t.Validate(); err != nil {
		return CreatureType{}, fmt.Errorf("creature %q: %w", d.ID, err)
	}
	for _, c := range d.Carries {
		if c.Count < 1 {
			return CreatureType{}, fmt.Errorf("creature %q carries %d of %q", d.ID, c.Count, c.Item)
		}
	}
	return CreatureType{ID: d.ID, Template: t, Carries: d.Carries}, nil
}
