// Package speech provides the say operation.
package speech

import (
	"fmt"
	"strings"
	"time"

	"github.com/cory-johannsen/fibula/internal/game/creature"
	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/notification"
	"github.com/cory-johannsen/fibula/internal/game/operation"
	"github.com/cory-johannsen/fibula/internal/game/world"
)

const KindSay = "say"

// MaxLength bounds a single utterance in bytes.
const MaxLength = 255

// Deps are the collaborators the say operation closes over.
type Deps struct {
	Creatures    *creature.Registry
	Map          *world.Map
	Notifier     *notification.Notifier
	HearingRange int
	// Cooldown is the speech exhaustion charged per utterance.
	Cooldown time.Duration
}

// NewSay builds an operation in which requestorID says text to every creature
// within hearing range, the speaker included.
func NewSay(d *Deps, requestorID uint32, text string) *operation.Operation {
	text = strings.TrimSpace(text)
	if len(text) > MaxLength {
		text = text[:MaxLength]
	}

	op := operation.New(KindSay, requestorID)
	if c, ok := d.Creatures.Find(requestorID); ok {
		op.WithExhaustion(operation.ExhaustionSpeech, d.Cooldown, c.Exhaustion)
	}
	op.ReportFailuresTo(d.Notifier)
	return op.
		When(
			operation.NewCondition("Say what?", func() bool { return text != "" }),
			operation.NewCondition("You are dead.", func() bool {
				c, ok := d.Creatures.Find(requestorID)
				return ok && c.IsAlive()
			}),
		).
		OnPass(func(event.Context) error {
			c, ok := d.Creatures.Find(requestorID)
			if !ok {
				return nil
			}
			d.Notifier.Notify(fmt.Sprintf("%s says: %s", c.Name(), text),
				d.Map.Spectators(c.Location(), d.HearingRange)...)
			return nil
		})
}
