package gameserver

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/game/combat"
	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/session"
	"github.com/cory-johannsen/fibula/internal/game/world"
	"github.com/cory-johannsen/fibula/internal/storage/postgres"
)

// ErrInvalidName is returned for character names that are malformed or
// clash with a monster type.
var ErrInvalidName = errors.New("invalid character name")

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{1,15}$`)

// CharacterStore loads and saves persistent characters.
type CharacterStore interface {
	GetByAccount(ctx context.Context, accountID int64) (postgres.Character, error)
	Create(ctx context.Context, c postgres.Character) (postgres.Character, error)
	SaveState(ctx context.Context, id int64, loc world.Location, hp int, items map[string]int) error
}

// LoginRequest identifies who is entering the world.
type LoginRequest struct {
	// Name is the character name for new and guest characters.
	Name     string
	Username string
	// AccountID is the authenticated account; 0 plays a guest.
	AccountID int64
}

// snapshot is a player's state as it left the world.
type snapshot struct {
	present  bool
	location world.Location
	hp       int
	items    map[string]int
}

// ValidateName reports whether name may be used for a character.
func (g *Game) ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%q must be 2-16 letters, digits or underscores starting with a letter: %w", name, ErrInvalidName)
	}
	for _, id := range g.catalog.CreatureIDs() {
		if typ, _ := g.catalog.Creature(id); strings.EqualFold(typ.Template.Name, name) {
			return fmt.Errorf("%q is a creature name: %w", name, ErrInvalidName)
		}
	}
	return nil
}

// Login loads or creates the character for req, registers its session and
// stages its entry into the world.
//
// Precondition: called from a connection goroutine, never from an event.
// Postcondition: Returns the player's session; the creature appears on the
// map when the staged login event fires. Returns an error wrapping
// session.ErrAlreadyConnected if the character is already playing.
func (g *Game) Login(ctx context.Context, req LoginRequest) (*session.PlayerSession, error) {
	rec, err := g.loadCharacter(ctx, req)
	if err != nil {
		return nil, err
	}

	id := g.creatures.NextID()
	sess, err := g.sessions.AddPlayer(id, rec.Name, req.Username, rec.ID)
	if err != nil {
		return nil, err
	}
	ev := event.NewFunc(KindLogin, id, func(ctx event.Context) error {
		return g.enterWorld(ctx, id, rec)
	}, event.NotCancellable())
	if err := g.sched.ScheduleEventAsync(ev, 0); err != nil {
		_ = g.sessions.RemovePlayer(id)
		return nil, fmt.Errorf("staging login of %q: %w", rec.Name, err)
	}

	g.logger.Info("player logging in",
		zap.Uint32("creature", id),
		zap.String("name", rec.Name),
		zap.String("username", req.Username),
		zap.Int64("character_id", rec.ID),
	)
	return sess, nil
}

func (g *Game) loadCharacter(ctx context.Context, req LoginRequest) (postgres.Character, error) {
	fresh := postgres.Character{
		AccountID: req.AccountID,
		Name:      req.Name,
		Location:  g.world.Start(),
		HitPoints: g.player.Template.MaxHitPoints,
		Items:     make(map[string]int),
	}
	for _, carry := range g.player.Carries {
		fresh.Items[carry.Item] += carry.Count
	}

	if req.AccountID == 0 || g.characters == nil {
		if err := g.ValidateName(req.Name); err != nil {
			return postgres.Character{}, err
		}
		fresh.AccountID = 0
		return fresh, nil
	}

	rec, err := g.characters.GetByAccount(ctx, req.AccountID)
	switch {
	case err == nil:
		return rec, nil
	case !errors.Is(err, postgres.ErrCharacterNotFound):
		return postgres.Character{}, fmt.Errorf("loading character of account %d: %w", req.AccountID, err)
	}
	if err := g.ValidateName(req.Name); err != nil {
		return postgres.Character{}, err
	}
	rec, err = g.characters.Create(ctx, fresh)
	if err != nil {
		return postgres.Character{}, fmt.Errorf("creating character %q: %w", req.Name, err)
	}
	g.logger.Info("character created", zap.Int64("character_id", rec.ID), zap.String("name", rec.Name))
	return rec, nil
}

// enterWorld builds the player's creature from rec and places it on the map.
func (g *Game) enterWorld(ctx event.Context, id uint32, rec postgres.Character) error {
	if _, ok := g.sessions.GetPlayer(id); !ok {
		return nil
	}
	tmpl := g.player.Template
	tmpl.Name = rec.Name

	loc := rec.Location
	if !g.world.IsWalkable(loc) {
		loc = g.world.Start()
	}
	c := creature.New(id, tmpl, loc)
	if rec.HitPoints > 0 {
		c.Restore(rec.HitPoints)
	}
	for itemID, n := range rec.Items {
		c.AddItem(itemID, n)
	}
	if err := g.creatures.Add(c); err != nil {
		return err
	}
	if err := g.world.Place(id, loc); err != nil {
		g.creatures.Remove(id)
		return err
	}
	if err := combat.StartRestoring(g.combat, c); err != nil {
		return err
	}

	g.broadcast(loc, fmt.Sprintf("%s appears.", c.Name()), id)
	g.tell(id, fmt.Sprintf("Welcome, %s.", c.Name()))
	g.tell(id, g.describeSurroundings(c))
	ctx.Logger().Info("player entered world", zap.Uint32("creature", id), zap.Stringer("at", loc))
	return nil
}

// Logout takes the player's creature out of the world, saves its character
// and closes its session.
//
// Precondition: called from a connection goroutine while the scheduler runs.
// Postcondition: The session is removed even when ctx expires first; the
// character is saved only if the creature left the world in time.
func (g *Game) Logout(ctx context.Context, id uint32) error {
	sess, ok := g.sessions.GetPlayer(id)
	if !ok {
		return fmt.Errorf("logging out %d: %w", id, session.ErrNotConnected)
	}
	defer func() { _ = g.sessions.RemovePlayer(id) }()

	left := make(chan snapshot, 1)
	ev := event.NewFunc(KindLogout, id, func(event.Context) error {
		left <- g.leaveWorld(id)
		return nil
	}, event.NotCancellable())
	if err := g.sched.ScheduleEventAsync(ev, 0); err != nil {
		return fmt.Errorf("staging logout of %q: %w", sess.Name, err)
	}

	var snap snapshot
	select {
	case snap = <-left:
	case <-ctx.Done():
		return fmt.Errorf("logging out %q: %w", sess.Name, ctx.Err())
	}

	g.logger.Info("player logged out", zap.Uint32("creature", id), zap.String("name", sess.Name))
	if !snap.present || sess.CharacterID == 0 || g.characters == nil {
		return nil
	}
	if err := g.characters.SaveState(ctx, sess.CharacterID, snap.location, snap.hp, snap.items); err != nil {
		return fmt.Errorf("saving character %d: %w", sess.CharacterID, err)
	}
	g.logger.Info("character state saved",
		zap.Int64("character_id", sess.CharacterID),
		zap.Stringer("location", snap.location),
	)
	return nil
}

func (g *Game) leaveWorld(id uint32) snapshot {
	c, ok := g.creatures.Find(id)
	if !ok {
		return snapshot{}
	}
	snap := snapshot{
		present:  true,
		location: c.Location(),
		hp:       c.HitPoints(),
		items:    maps.Clone(c.Items()),
	}
	g.removeFromWorld(c)
	g.broadcast(snap.location, fmt.Sprintf("%s disappears.", c.Name()))
	return snap
}
