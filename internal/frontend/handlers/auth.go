// Package handlers runs client sessions: the account prompt shown on connect
// and the play loop that relays lines between a connection and the world.
// Telnet and websocket connections share one implementation.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/frontend/telnet"
	"github.com/cory-johannsen/fibula/internal/frontend/websocket"
	"github.com/cory-johannsen/fibula/internal/game/session"
	"github.com/cory-johannsen/fibula/internal/gameserver"
	"github.com/cory-johannsen/fibula/internal/storage/postgres"
)

// logoutTimeout bounds how long a disconnecting session waits for the world
// to take its creature out and save it.
const logoutTimeout = 5 * time.Second

// LineConn is one client connection seen as lines of text.
type LineConn interface {
	ReadLine() (string, error)
	ReadPassword() (string, error)
	WriteLine(text string) error
	WritePrompt(text string) error
	RemoteAddr() net.Addr
}

// AccountStore authenticates and registers accounts.
type AccountStore interface {
	Create(ctx context.Context, username, password string) (postgres.Account, error)
	Authenticate(ctx context.Context, username, password string) (postgres.Account, error)
}

// Game is the part of the world a session drives.
type Game interface {
	Login(ctx context.Context, req gameserver.LoginRequest) (*session.PlayerSession, error)
	Submit(id uint32, line string) error
	Logout(ctx context.Context, id uint32) error
}

const banner = `
  _____ _ _           _
 |  ___(_) |__  _   _| | __ _
 | |_  | | '_ \| | | | |/ _' |
 |  _| | | |_) | |_| | | (_| |
 |_|   |_|_.__/ \__,_|_|\__,_|
`

// AuthHandler greets a client, signs it in and hands it to the play loop. It
// implements telnet.SessionHandler and websocket.SessionHandler.
type AuthHandler struct {
	accounts AccountStore
	game     Game
	logger   *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
//
// Precondition: game and logger must be non-nil. accounts may be nil, which
// leaves only guest play.
func NewAuthHandler(accounts AccountStore, game Game, logger *zap.Logger) *AuthHandler {
	if game == nil || logger == nil {
		panic("handlers.NewAuthHandler: game and logger must not be nil")
	}
	return &AuthHandler{accounts: accounts, game: game, logger: logger}
}

// HandleSession implements telnet.SessionHandler.
func (h *AuthHandler) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	return h.Serve(ctx, conn, true)
}

// HandleWebsocket implements websocket.SessionHandler.
func (h *AuthHandler) HandleWebsocket(ctx context.Context, conn *websocket.Conn) error {
	return h.Serve(ctx, conn, false)
}

// client is one connection plus how it renders color.
type client struct {
	LineConn
	color bool
}

func (c client) say(color, text string) {
	if c.color {
		text = telnet.Colorize(color, text)
	}
	_ = c.WriteLine(text)
}

// Serve runs the sign-in prompt on conn until the client quits, disconnects
// or finishes a game session. ANSI colors are used when color is set.
//
// Postcondition: Returns nil when the client quit, otherwise the error that
// ended the connection.
func (h *AuthHandler) Serve(ctx context.Context, conn LineConn, color bool) error {
	c := client{LineConn: conn, color: color}
	addr := conn.RemoteAddr().String()
	if color {
		_ = c.WriteLine(telnet.Colorize(telnet.Bold+telnet.BrightCyan, banner))
	} else {
		_ = c.WriteLine(banner)
	}
	h.showHelp(c)

	for {
		if err := ctx.Err(); err != nil {
			c.say(telnet.Yellow, "The server is shutting down. Goodbye.")
			return err
		}
		if err := c.WritePrompt("> "); err != nil {
			return fmt.Errorf("writing prompt: %w", err)
		}
		line, err := c.ReadLine()
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		var req *gameserver.LoginRequest
		switch cmd {
		case "quit", "exit":
			c.say(telnet.Cyan, "Goodbye.")
			return nil
		case "help", "?":
			h.showHelp(c)
		case "guest":
			if len(args) != 1 {
				c.say(telnet.Red, "Usage: guest <name>")
				continue
			}
			req = &gameserver.LoginRequest{Name: args[0]}
		case "login":
			if req, err = h.login(ctx, c, args); err != nil {
				return err
			}
		case "register":
			if err := h.register(ctx, c, args); err != nil {
				return err
			}
		default:
			c.say(telnet.Red, fmt.Sprintf("Unknown command: %s. Type 'help' for a list.", cmd))
		}
		if req == nil {
			continue
		}

		ended, err := h.play(ctx, c, *req)
		if ended {
			h.logger.Info("session finished", zap.String("remote_addr", addr), zap.NamedError("reason", err))
			return err
		}
	}
}

func (h *AuthHandler) showHelp(c client) {
	lines := []string{
		"Commands:",
		"  guest <name>                  play a character that is not saved",
	}
	if h.accounts != nil {
		lines = append(lines,
			"  login <username> [character]  play your saved character",
			"  register <username>           create an account",
		)
	}
	lines = append(lines, "  quit                          disconnect")
	c.say(telnet.White, strings.Join(lines, "\n"))
}

// login authenticates args[0] and returns the request that enters the world
// with its character. A nil request with a nil error means the failure was
// reported to the client.
func (h *AuthHandler) login(ctx context.Context, c client, args []string) (*gameserver.LoginRequest, error) {
	if h.accounts == nil {
		c.say(telnet.Red, "Accounts are disabled on this server. Use 'guest <name>'.")
		return nil, nil
	}
	if len(args) < 1 || len(args) > 2 {
		c.say(telnet.Red, "Usage: login <username> [character]")
		return nil, nil
	}
	username := args[0]
	name := username
	if len(args) == 2 {
		name = args[1]
	}

	password, err := h.askPassword(c, "Password: ")
	if err != nil {
		return nil, err
	}
	acct, err := h.accounts.Authenticate(ctx, username, password)
	switch {
	case errors.Is(err, postgres.ErrAccountNotFound):
		c.say(telnet.Red, "No such account. Use 'register' to create one.")
		return nil, nil
	case errors.Is(err, postgres.ErrInvalidCredentials):
		c.say(telnet.Red, "Wrong password.")
		return nil, nil
	case err != nil:
		h.logger.Error("authenticating", zap.String("username", username), zap.Error(err))
		c.say(telnet.Red, "Something went wrong. Please try again.")
		return nil, nil
	}
	h.logger.Info("account authenticated", zap.Int64("account_id", acct.ID), zap.String("username", acct.Username))
	return &gameserver.LoginRequest{Name: name, Username: acct.Username, AccountID: acct.ID}, nil
}

func (h *AuthHandler) register(ctx context.Context, c client, args []string) error {
	if h.accounts == nil {
		c.say(telnet.Red, "Accounts are disabled on this server. Use 'guest <name>'.")
		return nil
	}
	if len(args) != 1 {
		c.say(telnet.Red, "Usage: register <username>")
		return nil
	}
	username := args[0]
	if err := postgres.ValidateUsername(username); err != nil {
		c.say(telnet.Red, fmt.Sprintf("Usernames are %d to %d letters, digits or underscores.",
			postgres.MinUsernameLength, postgres.MaxUsernameLength))
		return nil
	}
	password, err := h.askPassword(c, "Choose a password: ")
	if err != nil {
		return err
	}
	if err := postgres.ValidatePassword(password); err != nil {
		c.say(telnet.Red, fmt.Sprintf("Passwords are %d to %d characters long.",
			postgres.MinPasswordLength, postgres.MaxPasswordLength))
		return nil
	}
	confirm, err := h.askPassword(c, "Repeat the password: ")
	if err != nil {
		return err
	}
	if confirm != password {
		c.say(telnet.Red, "The passwords do not match.")
		return nil
	}

	acct, err := h.accounts.Create(ctx, username, password)
	switch {
	case errors.Is(err, postgres.ErrAccountExists):
		c.say(telnet.Red, "That username is taken.")
		return nil
	case err != nil:
		h.logger.Error("registering", zap.String("username", username), zap.Error(err))
		c.say(telnet.Red, "Something went wrong. Please try again.")
		return nil
	}
	h.logger.Info("account registered", zap.Int64("account_id", acct.ID), zap.String("username", acct.Username))
	c.say(telnet.Green, fmt.Sprintf("Account %s created. Type 'login %s' to play.", acct.Username, acct.Username))
	return nil
}

func (h *AuthHandler) askPassword(c client, prompt string) (string, error) {
	if err := c.WritePrompt(prompt); err != nil {
		return "", fmt.Errorf("writing prompt: %w", err)
	}
	password, err := c.ReadPassword()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(password), nil
}
