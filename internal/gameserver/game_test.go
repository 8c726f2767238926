package gameserver_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/fibula/internal/config"
	"github.com/cory-johannsen/fibula/internal/game/catalog"
	"github.com/cory-johannsen/fibula/internal/game/command"
	"github.com/cory-johannsen/fibula/internal/game/dice"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/session"
	"github.com/cory-johannsen/fibula/internal/game/world"
	"github.com/cory-johannsen/fibula/internal/gameserver"
	"github.com/cory-johannsen/fibula/internal/storage/postgres"
)

// Every swing of the test roller hits for 21 and every heal rolls 2.
const testCatalog = `
creatures:
  - id: player
    name: adventurer
    hit_points: 20
    blood: red
    attack_speed: 20ms
    defense_speed: 20ms
    walk_speed: 10ms
    attack_range: 10
    attack_skill: 100
    damage: 1d2+20
    max_credits: 2
    carries:
      - item: health_potion
        count: 2
  - id: rat
    name: rat
    hit_points: 5
    blood: red
    attack_speed: 20ms
    defense_speed: 20ms
    walk_speed: 10ms
    damage: 1d2
  - id: golem
    name: golem
    hit_points: 500
    blood: undead
    attack_speed: 20ms
    defense_speed: 20ms
    walk_speed: 10ms
    attack_range: 10
    attack_skill: 100
    damage: 1d2+20
items:
  - id: health_potion
    name: health potion
    heal: 1d2+1
`

const testMap = `
map:
  name: test
  start: {x: 1, y: 1, z: 7}
  floors:
    - z: 7
      rows:
        - "############"
        - "#+.........#"
        - "#..........#"
        - "############"
  spawns:
    - monster: rat
      at: {x: 3, y: 1, z: 7}
      respawn: 100ms
    - monster: golem
      at: {x: 9, y: 1, z: 7}
`

type fakeCharacters struct {
	mu     sync.Mutex
	nextID int64
	byAcct map[int64]postgres.Character
}

func newFakeCharacters() *fakeCharacters {
	return &fakeCharacters{nextID: 1, byAcct: make(map[int64]postgres.Character)}
}

func (f *fakeCharacters) GetByAccount(_ context.Context, accountID int64) (postgres.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byAcct[accountID]
	if !ok {
		return postgres.Character{}, postgres.ErrCharacterNotFound
	}
	return c, nil
}

func (f *fakeCharacters) Create(_ context.Context, c postgres.Character) (postgres.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.nextID
	f.nextID++
	f.byAcct[c.AccountID] = c
	return c, nil
}

func (f *fakeCharacters) SaveState(_ context.Context, id int64, loc world.Location, hp int, items map[string]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for acct, c := range f.byAcct {
		if c.ID == id {
			c.Location, c.HitPoints, c.Items = loc, hp, items
			f.byAcct[acct] = c
			return nil
		}
	}
	return postgres.ErrCharacterNotFound
}

func (f *fakeCharacters) get(accountID int64) postgres.Character {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byAcct[accountID]
}

type harness struct {
	game     *gameserver.Game
	sessions *session.Manager
	chars    *fakeCharacters
}

func testGameConfig() config.GameConfig {
	return config.GameConfig{
		ViewRange:      8,
		HearingRange:   6,
		SpeechCooldown: 10 * time.Millisecond,
		ItemCooldown:   10 * time.Millisecond,
		SessionBuffer:  256,
		StartHour:      12,
		HourLength:     time.Hour,
	}
}

func startGame(t *testing.T, cfg config.GameConfig) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cat, err := catalog.Load([]byte(testCatalog))
	require.NoError(t, err)
	m, err := world.LoadMapFromBytes([]byte(testMap))
	require.NoError(t, err)

	sched := event.NewScheduler(event.Config{
		Granularity:     time.Millisecond,
		MaxWait:         5 * time.Millisecond,
		InitialCapacity: 64,
	}, event.SystemClock{}, logger)
	sessions := session.NewManager(cfg.SessionBuffer, logger)
	chars := newFakeCharacters()
	roller := dice.NewRoller(dice.NewSequenceSource(0), logger)

	g, err := gameserver.NewGame(cfg, sched, m, cat, sessions, command.DefaultRegistry(), roller, nil, chars, logger)
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() { started <- g.Start() }()
	t.Cleanup(func() {
		g.Stop()
		select {
		case err := <-started:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("game did not stop")
		}
	})
	require.Eventually(t, func() bool { return len(g.Creatures().All()) == 2 },
		2*time.Second, 5*time.Millisecond, "monsters did not spawn")
	return &harness{game: g, sessions: sessions, chars: chars}
}

// expect reads sess's outbound lines until one contains want.
func expect(t *testing.T, sess *session.PlayerSession, want string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	var seen []string
	for {
		select {
		case line := <-sess.Entity.Events():
			if strings.Contains(line, want) {
				return line
			}
			seen = append(seen, line)
		case <-deadline:
			t.Fatalf("no line containing %q; saw %q", want, seen)
			return ""
		}
	}
}

func login(t *testing.T, h *harness, name string) *session.PlayerSession {
	t.Helper()
	sess, err := h.game.Login(context.Background(), gameserver.LoginRequest{Name: name})
	require.NoError(t, err)
	expect(t, sess, "Welcome, "+name+".")
	return sess
}

// lookUntil repeats the look command until sess sees want.
func lookUntil(t *testing.T, h *harness, sess *session.PlayerSession, want string) string {
	t.Helper()
	var last string
	require.Eventually(t, func() bool {
		if err := h.game.Submit(sess.CreatureID, "look"); err != nil {
			return false
		}
		for {
			select {
			case line := <-sess.Entity.Events():
				if strings.HasPrefix(line, "You stand at") {
					last = line
					return strings.Contains(line, want)
				}
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond, "never saw %q", want)
	return last
}

func submit(t *testing.T, h *harness, sess *session.PlayerSession, line string) {
	t.Helper()
	require.NoError(t, h.game.Submit(sess.CreatureID, line))
}

func TestNewGame_UnknownSpawnMonster(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cat, err := catalog.Load([]byte(testCatalog))
	require.NoError(t, err)
	m, err := world.LoadMapFromBytes([]byte(strings.Replace(testMap, "monster: golem", "monster: dragon", 1)))
	require.NoError(t, err)
	sched := event.NewScheduler(event.DefaultConfig(), event.SystemClock{}, logger)

	_, err = gameserver.NewGame(testGameConfig(), sched, m, cat, session.NewManager(8, logger),
		command.DefaultRegistry(), dice.NewRoller(dice.NewSequenceSource(0), logger), nil, nil, logger)
	assert.ErrorContains(t, err, "dragon")
}

func TestLogin_WelcomesAndDescribes(t *testing.T) {
	h := startGame(t, testGameConfig())
	sess, err := h.game.Login(context.Background(), gameserver.LoginRequest{Name: "Alice"})
	require.NoError(t, err)

	expect(t, sess, "Welcome, Alice.")
	look := expect(t, sess, "You stand at (1,1,7)")
	assert.Contains(t, look, "on sanctuary ground")
	assert.Contains(t, look, "It is Afternoon (12:00).")
}

func TestLogin_RejectsDuplicateName(t *testing.T) {
	h := startGame(t, testGameConfig())
	login(t, h, "Alice")

	_, err := h.game.Login(context.Background(), gameserver.LoginRequest{Name: "alice"})
	assert.ErrorIs(t, err, session.ErrAlreadyConnected)
}

func TestLogin_RejectsInvalidNames(t *testing.T) {
	h := startGame(t, testGameConfig())
	for _, name := range []string{"", "x", "9lives", "has space", "Rat", "GOLEM", "averyveryverylongname"} {
		_, err := h.game.Login(context.Background(), gameserver.LoginRequest{Name: name})
		assert.ErrorIs(t, err, gameserver.ErrInvalidName, "name %q", name)
	}
}

func TestMove_NotifiesOtherPlayers(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")
	bob := login(t, h, "Bob")
	expect(t, alice, "Bob appears.")

	submit(t, h, alice, "south")
	expect(t, bob, "Alice moves south.")

	submit(t, h, alice, "look")
	expect(t, alice, "You stand at (1,2,7) facing south")
}

func TestMove_IntoWallIsReported(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")

	submit(t, h, alice, "north")
	expect(t, alice, "There is not enough room.")
}

func TestAttack_KillsMonsterWhichRespawns(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")

	submit(t, h, alice, "attack RAT")
	expect(t, alice, "You attack rat.")
	expect(t, alice, "Rat is slain by Alice.")
	expect(t, alice, "A rat appears.")
}

func TestAttack_CreditsReturnAtAttackSpeed(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")

	submit(t, h, alice, "attack rat")
	expect(t, alice, "Rat is slain by Alice.")

	require.Eventually(t, func() bool {
		if err := h.game.Submit(alice.CreatureID, "status"); err != nil {
			return false
		}
		for {
			select {
			case line := <-alice.Entity.Events():
				if strings.HasPrefix(line, "Alice:") {
					return strings.Contains(line, "attack 2/2, defense 2/2.")
				}
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAttack_UnknownTargetAndSelf(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")

	submit(t, h, alice, "attack dragon")
	expect(t, alice, "You do not see that here.")
	submit(t, h, alice, "attack alice")
	expect(t, alice, "You cannot attack yourself.")
	submit(t, h, alice, "stop")
	expect(t, alice, "You are not attacking anything.")
}

func TestPlayerDeath_RevivesAtStart(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")

	submit(t, h, alice, "attack golem")
	expect(t, alice, "Alice is slain by golem.")
	expect(t, alice, "You have died. You wake up where your journey began.")

	submit(t, h, alice, "status")
	status := expect(t, alice, "hit points")
	assert.Contains(t, status, "Alice: 20/20 hit points")
	assert.NotContains(t, status, "Attacking")
}

func TestRequests_InformationalCommands(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")

	submit(t, h, alice, "who")
	expect(t, alice, "Players online: Alice.")

	submit(t, h, alice, "inventory")
	expect(t, alice, "You carry: 2 health potion.")

	submit(t, h, alice, "help")
	help := expect(t, alice, "Commands:")
	assert.Contains(t, help, "attack <name>")
	assert.Contains(t, help, "quit")
}

func TestRequests_UseItemConsumesIt(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")

	submit(t, h, alice, "use health potion")
	expect(t, alice, "You use the health potion and recover 0 hit points.")
	submit(t, h, alice, "inventory")
	expect(t, alice, "You carry: 1 health potion.")

	submit(t, h, alice, "use bread")
	expect(t, alice, "You do not have that.")
}

func TestRequests_SayReachesListeners(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")
	bob := login(t, h, "Bob")

	submit(t, h, alice, "say hello there")
	expect(t, bob, "Alice says: hello there")
}

func TestSubmit_RejectionsAndQuit(t *testing.T) {
	h := startGame(t, testGameConfig())
	alice := login(t, h, "Alice")

	require.NoError(t, h.game.Submit(alice.CreatureID, "   "))
	require.NoError(t, h.game.Submit(alice.CreatureID, "dance"))
	expect(t, alice, "Unknown command. Type 'help' for a list.")
	require.NoError(t, h.game.Submit(alice.CreatureID, "attack"))
	expect(t, alice, "Usage: attack <name>")

	assert.ErrorIs(t, h.game.Submit(alice.CreatureID, "quit"), gameserver.ErrQuit)
}

func TestLogout_SavesCharacterAndRestoresIt(t *testing.T) {
	h := startGame(t, testGameConfig())
	ctx := context.Background()

	sess, err := h.game.Login(ctx, gameserver.LoginRequest{Name: "Carol", Username: "carol", AccountID: 42})
	require.NoError(t, err)
	expect(t, sess, "Welcome, Carol.")
	assert.NotZero(t, sess.CharacterID)

	submit(t, h, sess, "east")
	lookUntil(t, h, sess, "You stand at (2,1,7)")

	logoutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.game.Logout(logoutCtx, sess.CreatureID))
	_, ok := h.sessions.GetPlayer(sess.CreatureID)
	assert.False(t, ok)

	saved := h.chars.get(42)
	assert.Equal(t, world.Location{X: 2, Y: 1, Z: 7}, saved.Location)
	assert.Equal(t, 20, saved.HitPoints)
	assert.Equal(t, map[string]int{"health_potion": 2}, saved.Items)

	again, err := h.game.Login(ctx, gameserver.LoginRequest{Name: "Ignored", Username: "carol", AccountID: 42})
	require.NoError(t, err)
	expect(t, again, "Welcome, Carol.")
	expect(t, again, "You stand at (2,1,7)")
	assert.Equal(t, sess.CharacterID, again.CharacterID)
}

func TestLogout_UnknownPlayer(t *testing.T) {
	h := startGame(t, testGameConfig())
	assert.ErrorIs(t, h.game.Logout(context.Background(), 9999), session.ErrNotConnected)
}

func TestClock_AnnouncesPeriodChange(t *testing.T) {
	cfg := testGameConfig()
	cfg.StartHour = 4
	cfg.HourLength = 20 * time.Millisecond
	h := startGame(t, cfg)
	alice := login(t, h, "Alice")

	expect(t, alice, "falls over the land.")
}

func TestDarkness_HalvesSightOnTheSurface(t *testing.T) {
	day := startGame(t, testGameConfig())
	alice := login(t, day, "Alice")
	look := lookUntil(t, day, alice, "a rat, 2 squares to the east")
	assert.Contains(t, look, "a golem, 8 squares to the east")

	cfg := testGameConfig()
	cfg.StartHour = 23
	night := startGame(t, cfg)
	bob := login(t, night, "Bob")
	look = lookUntil(t, night, bob, "a rat, 2 squares to the east")
	assert.Contains(t, look, "It is Night (23:00).")
	assert.NotContains(t, look, "golem")

	submit(t, night, bob, "attack golem")
	expect(t, bob, "You do not see that here.")
}
