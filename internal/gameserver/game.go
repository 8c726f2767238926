// Package gameserver runs the world: it owns the scheduler's fired-event
// handler, turns player requests into operations, and spawns monsters.
//
// Every world mutation happens inside an event executing on the scheduler's
// consumer goroutine. Connection goroutines only parse input and stage events
// with ScheduleEventAsync.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/config"
	"github.com/cory-johannsen/fibula/internal/game/catalog"
	"github.com/cory-johannsen/fibula/internal/game/combat"
	"github.com/cory-johannsen/fibula/internal/game/command"
	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/dice"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/item"
	"github.com/cory-johannsen/fibula/internal/game/movement"
	"github.com/cory-johannsen/fibula/internal/game/notification"
	"github.com/cory-johannsen/fibula/internal/game/operation"
	"github.com/cory-johannsen/fibula/internal/game/session"
	"github.com/cory-johannsen/fibula/internal/game/speech"
	"github.com/cory-johannsen/fibula/internal/game/world"
)

// Event kinds the game schedules for sessions and the world. Logout cancels
// a player's pending requests by requestor.
const (
	KindLogin   = "login"
	KindLogout  = "logout"
	KindRequest = "request"
	KindSpawn   = "spawn"
)

// ErrQuit is returned by Submit when the player asked to leave.
var ErrQuit = errors.New("quit")

// Game is the world dispatcher. It implements event.Context for every event it
// executes.
type Game struct {
	sched      *event.Scheduler
	creatures  *creature.Registry
	world      *world.Map
	catalog    *catalog.Registry
	sessions   *session.Manager
	commands   *command.Registry
	notifier   *notification.Notifier
	characters CharacterStore
	logger     *zap.Logger

	movement *movement.Deps
	combat   *combat.Deps
	speech   *speech.Deps
	items    *item.Deps

	player     catalog.CreatureType
	viewRange  int
	clock      *WorldClock
	hourLength time.Duration

	// spawns maps a live monster to the spawn point that created it. Touched
	// only on the game goroutine.
	spawns map[uint32]world.Spawn
}

// NewGame wires the world's operation builders around one scheduler and
// registers the Game as the scheduler's fired-event handler.
//
// Precondition: sched, worldMap, cat, sessions, commands, roller and logger
// must be non-nil. rules and characters may be nil to disable scripted rules
// and persistence.
// Postcondition: Returns an error if the catalog lacks the player type or a
// map spawn names an unknown monster.
func NewGame(
	cfg config.GameConfig,
	sched *event.Scheduler,
	worldMap *world.Map,
	cat *catalog.Registry,
	sessions *session.Manager,
	commands *command.Registry,
	roller *dice.Roller,
	rules operation.RuleEvaluator,
	characters CharacterStore,
	logger *zap.Logger,
) (*Game, error) {
	if sched == nil || worldMap == nil || cat == nil || sessions == nil || commands == nil || roller == nil || logger == nil {
		panic("gameserver.NewGame: dependencies must not be nil")
	}
	player, ok := cat.Creature(catalog.PlayerTypeID)
	if !ok {
		return nil, fmt.Errorf("catalog has no %q creature type", catalog.PlayerTypeID)
	}
	for _, sp := range worldMap.Spawns() {
		if _, ok := cat.Creature(sp.Monster); !ok {
			return nil, fmt.Errorf("spawn at %s: unknown monster %q", sp.At, sp.Monster)
		}
	}

	creatures := creature.NewRegistry()
	notifier := notification.NewNotifier(sched, sessions, logger)
	g := &Game{
		sched:          sched,
		creatures:      creatures,
		world:          worldMap,
		catalog:        cat,
		sessions:       sessions,
		commands:       commands,
		notifier:       notifier,
		characters:     characters,
		logger:         logger,
		player:         player,
		viewRange:      cfg.ViewRange,
		clock:          NewWorldClock(cfg.StartHour),
		hourLength:     cfg.HourLength,
		spawns:         make(map[uint32]world.Spawn),
	}
	g.movement = &movement.Deps{
		Scheduler: sched,
		Creatures: creatures,
		Map:       worldMap,
		Notifier:  notifier,
		Rules:     rules,
		ViewRange: cfg.ViewRange,
	}
	g.combat = &combat.Deps{
		Scheduler:  sched,
		Creatures:  creatures,
		Map:        worldMap,
		Calculator: combat.NewProbabilityCalculator(roller),
		Notifier:   notifier,
		ViewRange:  cfg.ViewRange,
		OnDeath:    g.onDeath,
	}
	g.speech = &speech.Deps{
		Creatures:    creatures,
		Map:          worldMap,
		Notifier:     notifier,
		HearingRange: cfg.HearingRange,
		Cooldown:     cfg.SpeechCooldown,
	}
	g.items = &item.Deps{
		Creatures: creatures,
		Catalog:   cat,
		Roller:    roller,
		Notifier:  notifier,
		Cooldown:  cfg.ItemCooldown,
	}

	sched.OnEventFired(g.execute)
	return g, nil
}

// Now implements event.Context.
func (g *Game) Now() time.Time { return g.sched.Now() }

// Logger implements event.Context.
func (g *Game) Logger() *zap.Logger { return g.logger }

// Creatures exposes the live creature registry for read-only inspection.
func (g *Game) Creatures() *creature.Registry { return g.creatures }

func (g *Game) execute(ev event.Event) error {
	return ev.Execute(g)
}

// Start populates the world and runs the scheduler until Stop. It implements
// server.Service.
func (g *Game) Start() error {
	if err := g.Populate(); err != nil {
		return err
	}
	g.sched.Run(context.Background())
	return nil
}

// Stop halts the scheduler and waits for its goroutine to exit.
func (g *Game) Stop() {
	g.sched.Stop()
}

// Populate stages one spawn event per map spawn point and starts the world
// clock.
func (g *Game) Populate() error {
	for _, sp := range g.world.Spawns() {
		if err := g.sched.ScheduleEventAsync(g.spawnEvent(sp), 0); err != nil {
			return fmt.Errorf("spawning %s at %s: %w", sp.Monster, sp.At, err)
		}
	}
	if err := g.sched.ScheduleEventAsync(g.clockEvent(g.hourLength), g.hourLength); err != nil {
		return fmt.Errorf("starting world clock: %w", err)
	}
	return nil
}

// Hour returns the current time of day.
func (g *Game) Hour() GameHour { return g.clock.CurrentHour() }

// tell sends text to one creature through a notification.
func (g *Game) tell(id uint32, text string) {
	g.notifier.Notify(text, id)
}

// broadcast sends text to every creature that can see at, except the excluded ids.
func (g *Game) broadcast(at world.Location, text string, exclude ...uint32) {
	var to []uint32
	for _, id := range g.world.Spectators(at, g.viewRange) {
		if !slices.Contains(exclude, id) {
			to = append(to, id)
		}
	}
	g.notifier.Notify(text, to...)
}
