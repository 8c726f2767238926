package command

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/fibula/internal/game/world"
)

var (
	// ErrEmpty is returned for a blank line.
	ErrEmpty = errors.New("empty command")
	// ErrUnknownCommand is returned when no command or alias matches.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingArgument is returned when a command's required argument is absent.
	ErrMissingArgument = errors.New("missing argument")
)

// Request is a decoded player intention, independent of the transport it
// arrived on.
type Request struct {
	Handler   string
	Direction world.Direction
	// Target is the creature name for attack.
	Target string
	// Text is the utterance for say.
	Text string
	// Item is the item id or name for use.
	Item string
}

// Build parses line and resolves it into a Request.
//
// Postcondition: On error the Request is zero and the error wraps one of
// ErrEmpty, ErrUnknownCommand or ErrMissingArgument.
func (r *Registry) Build(line string) (Request, error) {
	p := Parse(line)
	if p.Command == "" {
		return Request{}, ErrEmpty
	}
	cmd, ok := r.Resolve(p.Command)
	if !ok {
		return Request{}, fmt.Errorf("%q: %w", p.Command, ErrUnknownCommand)
	}
	if cmd.Usage != "" && p.RawArgs == "" {
		return Request{}, fmt.Errorf("usage: %s %s: %w", cmd.Name, cmd.Usage, ErrMissingArgument)
	}

	req := Request{Handler: cmd.Handler}
	switch cmd.Handler {
	case HandlerMove:
		d, err := world.ParseDirection(cmd.Name)
		if err != nil {
			return Request{}, err
		}
		req.Direction = d
	case HandlerTurn:
		d, err := world.ParseDirection(p.Args[0])
		if err != nil {
			return Request{}, fmt.Errorf("usage: %s %s: %w", cmd.Name, cmd.Usage, err)
		}
		req.Direction = d
	case HandlerAttack:
		req.Target = p.RawArgs
	case HandlerSay:
		req.Text = p.RawArgs
	case HandlerUse:
		req.Item = p.RawArgs
	}
	return req, nil
}
