package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fibula/internal/frontend/telnet"
	"github.com/cory-johannsen/fibula/internal/game/session"
	"github.com/cory-johannsen/fibula/internal/gameserver"
)

// play enters the world with req and relays lines until the player quits or
// the connection drops.
//
// Postcondition: ended is false when login was refused and the sign-in prompt
// should continue. When ended, err is nil for a clean quit.
func (h *AuthHandler) play(ctx context.Context, c client, req gameserver.LoginRequest) (ended bool, err error) {
	sess, err := h.game.Login(ctx, req)
	switch {
	case errors.Is(err, gameserver.ErrInvalidName):
		c.say(telnet.Red, "That name cannot be used. Names are 2 to 16 letters, digits or underscores and start with a letter.")
		return false, nil
	case errors.Is(err, session.ErrAlreadyConnected):
		c.say(telnet.Red, "That character is already playing.")
		return false, nil
	case err != nil:
		h.logger.Error("entering world", zap.String("name", req.Name), zap.Error(err))
		c.say(telnet.Red, "Something went wrong. Please try again.")
		return false, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for line := range sess.Entity.Events() {
			if err := c.WriteLine(line); err != nil {
				return
			}
		}
	}()
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		if lerr := h.game.Logout(logoutCtx, sess.CreatureID); lerr != nil {
			h.logger.Warn("logging out", zap.String("name", sess.Name), zap.Error(lerr))
		}
		wg.Wait()
	}()

	for {
		line, rerr := c.ReadLine()
		if rerr != nil {
			return true, fmt.Errorf("reading input: %w", rerr)
		}
		switch serr := h.game.Submit(sess.CreatureID, line); {
		case errors.Is(serr, gameserver.ErrQuit):
			c.say(telnet.Cyan, "Goodbye.")
			return true, nil
		case serr != nil:
			h.logger.Warn("submitting request", zap.String("name", sess.Name), zap.Error(serr))
			c.say(telnet.Red, "The world is not responding.")
		}
		if cerr := ctx.Err(); cerr != nil {
			return true, cerr
		}
	}
}
