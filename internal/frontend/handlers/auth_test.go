package handlers

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/fibula/internal/frontend/telnet"
	"github.com/cory-johannsen/fibula/internal/game/session"
	"github.com/cory-johannsen/fibula/internal/gameserver"
	"github.com/cory-johannsen/fibula/internal/storage/postgres"
)

// mockAccountStore implements AccountStore in memory.
type mockAccountStore struct {
	mu        sync.Mutex
	accounts  map[string]postgres.Account
	passwords map[string]string
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{
		accounts:  make(map[string]postgres.Account),
		passwords: make(map[string]string),
	}
}

func (m *mockAccountStore) Create(_ context.Context, username, password string) (postgres.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[username]; exists {
		return postgres.Account{}, postgres.ErrAccountExists
	}
	acct := postgres.Account{ID: int64(len(m.accounts) + 1), Username: username, CreatedAt: time.Now()}
	m.accounts[username] = acct
	m.passwords[username] = password
	return acct, nil
}

func (m *mockAccountStore) Authenticate(_ context.Context, username, password string) (postgres.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, exists := m.accounts[username]
	if !exists {
		return postgres.Account{}, postgres.ErrAccountNotFound
	}
	if m.passwords[username] != password {
		return postgres.Account{}, postgres.ErrInvalidCredentials
	}
	return acct, nil
}

// fakeGame records what sessions ask of the world. Submitting "look" answers
// "You look around."; "quit" returns ErrQuit.
type fakeGame struct {
	sessions *session.Manager

	mu        sync.Mutex
	nextID    uint32
	logins    []gameserver.LoginRequest
	submitted []string
	logouts   []uint32
}

func newFakeGame(t *testing.T) *fakeGame {
	return &fakeGame{sessions: session.NewManager(64, zaptest.NewLogger(t))}
}

func (g *fakeGame) Login(_ context.Context, req gameserver.LoginRequest) (*session.PlayerSession, error) {
	if req.Name == "x" {
		return nil, gameserver.ErrInvalidName
	}
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.logins = append(g.logins, req)
	g.mu.Unlock()

	sess, err := g.sessions.AddPlayer(id, req.Name, req.Username, req.AccountID)
	if err != nil {
		return nil, err
	}
	g.sessions.Send(id, "Welcome, "+req.Name+".")
	return sess, nil
}

func (g *fakeGame) Submit(id uint32, line string) error {
	g.mu.Lock()
	g.submitted = append(g.submitted, line)
	g.mu.Unlock()
	switch line {
	case "quit":
		return gameserver.ErrQuit
	case "look":
		g.sessions.Send(id, "You look around.")
	}
	return nil
}

func (g *fakeGame) Logout(_ context.Context, id uint32) error {
	g.mu.Lock()
	g.logouts = append(g.logouts, id)
	g.mu.Unlock()
	return g.sessions.RemovePlayer(id)
}

func (g *fakeGame) snapshot() ([]gameserver.LoginRequest, []string, []uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gameserver.LoginRequest(nil), g.logins...),
		append([]string(nil), g.submitted...),
		append([]uint32(nil), g.logouts...)
}

// scriptConn is a LineConn fed from a fixed script. It reports io.EOF once
// the script runs out.
type scriptConn struct {
	mu        sync.Mutex
	input     []string
	out       strings.Builder
	passwords int
}

func newScriptConn(lines ...string) *scriptConn {
	return &scriptConn{input: lines}
}

func (c *scriptConn) ReadLine() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.input) == 0 {
		return "", io.EOF
	}
	line := c.input[0]
	c.input = c.input[1:]
	return line, nil
}

func (c *scriptConn) ReadPassword() (string, error) {
	c.mu.Lock()
	c.passwords++
	c.mu.Unlock()
	return c.ReadLine()
}

func (c *scriptConn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.WriteString(text + "\n")
	return nil
}

func (c *scriptConn) WritePrompt(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.WriteString(text)
	return nil
}

func (c *scriptConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000}
}

func (c *scriptConn) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func serve(t *testing.T, accounts AccountStore, game Game, conn *scriptConn) error {
	t.Helper()
	h := NewAuthHandler(accounts, game, zaptest.NewLogger(t))
	return h.Serve(context.Background(), conn, false)
}

func TestServe_QuitAtPrompt(t *testing.T) {
	conn := newScriptConn("", "help", "exit")
	require.NoError(t, serve(t, nil, newFakeGame(t), conn))

	out := conn.output()
	assert.Contains(t, out, "|_|   |_|_.__/")
	assert.Contains(t, out, "guest <name>")
	assert.NotContains(t, out, "register <username>")
	assert.Contains(t, out, "Goodbye.")
}

func TestServe_UnknownCommand(t *testing.T) {
	conn := newScriptConn("dance", "quit")
	require.NoError(t, serve(t, nil, newFakeGame(t), conn))
	assert.Contains(t, conn.output(), "Unknown command: dance. Type 'help' for a list.")
}

func TestServe_GuestPlaysAndQuits(t *testing.T) {
	game := newFakeGame(t)
	conn := newScriptConn("guest Alice", "look", "quit")
	require.NoError(t, serve(t, nil, game, conn))

	out := conn.output()
	assert.Contains(t, out, "Welcome, Alice.")
	assert.Contains(t, out, "You look around.")
	assert.Contains(t, out, "Goodbye.")

	logins, submitted, logouts := game.snapshot()
	require.Len(t, logins, 1)
	assert.Equal(t, gameserver.LoginRequest{Name: "Alice"}, logins[0])
	assert.Equal(t, []string{"look", "quit"}, submitted)
	assert.Equal(t, []uint32{1}, logouts)
	assert.Zero(t, game.sessions.PlayerCount())
}

func TestServe_DisconnectDuringPlayLogsOut(t *testing.T) {
	game := newFakeGame(t)
	conn := newScriptConn("guest Alice", "look")
	err := serve(t, nil, game, conn)
	assert.ErrorIs(t, err, io.EOF)

	_, _, logouts := game.snapshot()
	assert.Equal(t, []uint32{1}, logouts)
}

func TestServe_RefusedLoginReturnsToPrompt(t *testing.T) {
	game := newFakeGame(t)
	conn := newScriptConn("guest", "guest x", "quit")
	require.NoError(t, serve(t, nil, game, conn))

	out := conn.output()
	assert.Contains(t, out, "Usage: guest <name>")
	assert.Contains(t, out, "That name cannot be used.")
	_, _, logouts := game.snapshot()
	assert.Empty(t, logouts)
}

func TestServe_DuplicateCharacter(t *testing.T) {
	game := newFakeGame(t)
	_, err := game.sessions.AddPlayer(99, "Alice", "", 0)
	require.NoError(t, err)

	conn := newScriptConn("guest Alice", "quit")
	require.NoError(t, serve(t, nil, game, conn))
	assert.Contains(t, conn.output(), "That character is already playing.")
}

func TestServe_AccountsDisabled(t *testing.T) {
	conn := newScriptConn("login bob", "register bob", "quit")
	require.NoError(t, serve(t, nil, newFakeGame(t), conn))
	assert.Equal(t, 2, strings.Count(conn.output(), "Accounts are disabled on this server."))
}

func TestServe_RegisterThenLogin(t *testing.T) {
	accounts := newMockAccountStore()
	game := newFakeGame(t)
	conn := newScriptConn(
		"register bob", "secret1", "secret1",
		"login bob Bobby", "secret1",
		"quit",
	)
	require.NoError(t, serve(t, accounts, game, conn))

	out := conn.output()
	assert.Contains(t, out, "Account bob created.")
	assert.Contains(t, out, "Welcome, Bobby.")
	assert.Equal(t, 3, conn.passwords)

	logins, _, _ := game.snapshot()
	require.Len(t, logins, 1)
	assert.Equal(t, gameserver.LoginRequest{Name: "Bobby", Username: "bob", AccountID: 1}, logins[0])
}

func TestServe_LoginDefaultsCharacterToUsername(t *testing.T) {
	accounts := newMockAccountStore()
	_, err := accounts.Create(context.Background(), "carol", "secret1")
	require.NoError(t, err)
	game := newFakeGame(t)

	conn := newScriptConn("login carol", "secret1", "quit")
	require.NoError(t, serve(t, accounts, game, conn))

	logins, _, _ := game.snapshot()
	require.Len(t, logins, 1)
	assert.Equal(t, "carol", logins[0].Name)
}

func TestServe_AccountErrors(t *testing.T) {
	tests := []struct {
		name   string
		script []string
		want   string
	}{
		{"unknown account", []string{"login nobody", "pw"}, "No such account."},
		{"wrong password", []string{"login dave", "nope"}, "Wrong password."},
		{"login usage", []string{"login"}, "Usage: login <username> [character]"},
		{"register usage", []string{"register"}, "Usage: register <username>"},
		{"short username", []string{"register ab"}, "Usernames are 3 to 32 letters, digits or underscores."},
		{"dashed username", []string{"register old-guard"}, "Usernames are 3 to 32 letters, digits or underscores."},
		{"short password", []string{"register erin", "abc"}, "Passwords are 6 to 72 characters long."},
		{"mismatch", []string{"register erin", "secret1", "secret2"}, "The passwords do not match."},
		{"taken", []string{"register dave", "secret1", "secret1"}, "That username is taken."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := newMockAccountStore()
			_, err := accounts.Create(context.Background(), "dave", "secret1")
			require.NoError(t, err)

			conn := newScriptConn(append(tt.script, "quit")...)
			require.NoError(t, serve(t, accounts, newFakeGame(t), conn))
			assert.Contains(t, conn.output(), tt.want)
		})
	}
}

func TestServe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn := newScriptConn("quit")
	h := NewAuthHandler(nil, newFakeGame(t), zaptest.NewLogger(t))

	assert.ErrorIs(t, h.Serve(ctx, conn, false), context.Canceled)
	assert.Contains(t, conn.output(), "The server is shutting down.")
}

func TestServe_ColorOnlyWhenAsked(t *testing.T) {
	plain := newScriptConn("quit")
	require.NoError(t, NewAuthHandler(nil, newFakeGame(t), zaptest.NewLogger(t)).Serve(context.Background(), plain, false))
	assert.NotContains(t, plain.output(), "\033[")

	colored := newScriptConn("quit")
	require.NoError(t, NewAuthHandler(nil, newFakeGame(t), zaptest.NewLogger(t)).Serve(context.Background(), colored, true))
	assert.Contains(t, colored.output(), telnet.Cyan)
	assert.Equal(t, plain.output(), telnet.StripANSI(colored.output()))
}
