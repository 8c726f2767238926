package item_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/fibula/internal/game/catalog"
	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/dice"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/item"
	"github.com/cory-johannsen/fibula/internal/game/notification"
	"github.com/cory-johannsen/fibula/internal/game/world"
)

const testCatalog = `
creatures:
  - id: player
    name: player
    hit_points: 50
    attack_speed: 2s
    defense_speed: 2s
    walk_speed: 400ms
    attack_range: 1
    damage: 1d4
    max_credits: 2
items:
  - id: potion
    name: potion
    heal: 1d6+4
  - id: rock
    name: rock
`

type inbox struct {
	mu   sync.Mutex
	msgs map[uint32][]string
}

func (i *inbox) Send(id uint32, text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.msgs == nil {
		i.msgs = make(map[uint32][]string)
	}
	i.msgs[id] = append(i.msgs[id], text)
}

func (i *inbox) received(id uint32) []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.msgs[id]...)
}

func setup(t *testing.T, rolls ...int) (*event.Scheduler, *item.Deps, *inbox, *creature.Creature) {
	t.Helper()
	cat, err := catalog.Load([]byte(testCatalog))
	require.NoError(t, err)
	player, ok := cat.Creature(catalog.PlayerTypeID)
	require.True(t, ok)

	clk := event.NewManualClock(time.Unix(0, 0))
	s := event.NewScheduler(event.DefaultConfig(), clk, zaptest.NewLogger(t))
	box := &inbox{}
	d := &item.Deps{
		Creatures: creature.NewRegistry(),
		Catalog:   cat,
		Roller:    dice.NewRoller(dice.NewSequenceSource(rolls...), zaptest.NewLogger(t)),
		Notifier:  notification.NewNotifier(s, box, zaptest.NewLogger(t)),
		Cooldown:  time.Second,
	}
	hero := creature.New(d.Creatures.NextID(), player.Template, world.Location{})
	require.NoError(t, d.Creatures.Add(hero))
	return s, d, box, hero
}

func TestUseItem_HealsAndConsumes(t *testing.T) {
	s, d, box, hero := setup(t, 2)
	hero.AddItem("potion", 2)
	hero.ApplyDamage(7, 20)

	require.NoError(t, s.ScheduleEvent(item.NewUseItem(d, hero.ID(), "potion"), 0))
	s.Step()

	assert.Equal(t, 37, hero.HitPoints())
	assert.Equal(t, 1, hero.ItemCount("potion"))
	assert.Equal(t, []string{"You use the potion and recover 7 hit points."}, box.received(hero.ID()))
}

func TestUseItem_Rejections(t *testing.T) {
	tests := []struct {
		name string
		item string
		give bool
		want string
	}{
		{name: "not carried", item: "potion", want: "You do not have that."},
		{name: "unknown item", item: "sword", want: "You do not have that."},
		{name: "not usable", item: "rock", give: true, want: "You cannot use that."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d, box, hero := setup(t, 0)
			if tt.give {
				hero.AddItem(tt.item, 1)
			}
			require.NoError(t, s.ScheduleEvent(item.NewUseItem(d, hero.ID(), tt.item), 0))
			s.Step()
			assert.Equal(t, []string{tt.want}, box.received(hero.ID()))
			if tt.give {
				assert.Equal(t, 1, hero.ItemCount(tt.item))
			}
		})
	}
}
