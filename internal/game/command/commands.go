// Package command turns player text lines into typed game requests.
package command

import "github.com/cory-johannsen/fibula/internal/game/world"

// Categories for organizing help output.
const (
	CategoryMovement      = "movement"
	CategoryCombat        = "combat"
	CategoryWorld         = "world"
	CategoryCommunication = "communication"
	CategorySystem        = "system"
)

// Handler identifiers route a resolved command to the game.
const (
	HandlerMove      = "move"
	HandlerTurn      = "turn"
	HandlerAttack    = "attack"
	HandlerStop      = "stop"
	HandlerSay       = "say"
	HandlerUse       = "use"
	HandlerLook      = "look"
	HandlerStatus    = "status"
	HandlerInventory = "inventory"
	HandlerWho       = "who"
	HandlerHelp      = "help"
	HandlerQuit      = "quit"
)

// Command defines a player-invocable command.
type Command struct {
	Name     string
	Aliases  []string
	Help     string
	Category string
	Handler  string
	// Usage names the required argument, if any.
	Usage string
}

// BuiltinCommands returns every built-in command. Each compass direction is
// its own move command; the direction's short form is its alias.
func BuiltinCommands() []Command {
	cmds := make([]Command, 0, 20)
	for d := world.North; d <= world.NorthWest; d++ {
		cmds = append(cmds, Command{
			Name:     d.String(),
			Aliases:  []string{shortDirection(d)},
			Help:     "Walk " + d.String(),
			Category: CategoryMovement,
			Handler:  HandlerMove,
		})
	}
	return append(cmds,
		Command{Name: "turn", Aliases: []string{"face"}, Help: "Face a direction", Category: CategoryMovement, Handler: HandlerTurn, Usage: "<direction>"},
		Command{Name: "attack", Aliases: []string{"att", "kill"}, Help: "Attack a creature until it or you fall", Category: CategoryCombat, Handler: HandlerAttack, Usage: "<name>"},
		Command{Name: "stop", Aliases: []string{"st"}, Help: "Stop attacking", Category: CategoryCombat, Handler: HandlerStop},
		Command{Name: "use", Aliases: []string{"drink", "eat"}, Help: "Use an item you carry", Category: CategoryWorld, Handler: HandlerUse, Usage: "<item>"},
		Command{Name: "look", Aliases: []string{"l"}, Help: "Describe your surroundings", Category: CategoryWorld, Handler: HandlerLook},
		Command{Name: "status", Aliases: []string{"stat", "hp"}, Help: "Show your health and combat credits", Category: CategoryWorld, Handler: HandlerStatus},
		Command{Name: "inventory", Aliases: []string{"inv", "i"}, Help: "List what you carry", Category: CategoryWorld, Handler: HandlerInventory},
		Command{Name: "say", Aliases: []string{"'"}, Help: "Speak to everyone nearby", Category: CategoryCommunication, Handler: HandlerSay, Usage: "<text>"},
		Command{Name: "who", Help: "List connected players", Category: CategorySystem, Handler: HandlerWho},
		Command{Name: "help", Aliases: []string{"?"}, Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
		Command{Name: "quit", Aliases: []string{"exit", "logout"}, Help: "Leave the game", Category: CategorySystem, Handler: HandlerQuit},
	)
}

func shortDirection(d world.Direction) string {
	switch d {
	case world.North:
		return "n"
	case world.NorthEast:
		return "ne"
	case world.East:
		return "e"
	case world.SouthEast:
		return "se"
	case world.South:
		return "s"
	case world.SouthWest:
		return "sw"
	case world.West:
		return "w"
	default:
		return "nw"
	}
}
