package operation

import "time"

// ExhaustionType classifies the cooldown an operation imposes once it passes.
type ExhaustionType int

const (
	ExhaustionNone ExhaustionType = iota
	ExhaustionMovement
	ExhaustionPhysicalCombat
	ExhaustionDefense
	ExhaustionSpeech
	ExhaustionItemUse
)

func (t ExhaustionType) String() string {
	switch t {
	case ExhaustionNone:
		return "none"
	case ExhaustionMovement:
		return "movement"
	case ExhaustionPhysicalCombat:
		return "physical_combat"
	case ExhaustionDefense:
		return "defense"
	case ExhaustionSpeech:
		return "speech"
	case ExhaustionItemUse:
		return "item_use"
	default:
		return "unknown"
	}
}

// ExhaustionSink receives the cooldown of a passed operation.
type ExhaustionSink interface {
	AddExhaustion(t ExhaustionType, cost time.Duration, now time.Time)
}

// CooldownSource reports how long remains on a requestor's cooldown.
type CooldownSource interface {
	CalculateRemainingCooldownTime(t ExhaustionType, now time.Time) time.Duration
}

// CooldownDelay returns the delay a new operation of type t should be
// scheduled with. A pending cooldown defers the operation; it never drops it.
//
// Postcondition: Returns >= 0; returns 0 for ExhaustionNone or a nil src.
func CooldownDelay(src CooldownSource, t ExhaustionType, now time.Time) time.Duration {
	if src == nil || t == ExhaustionNone {
		return 0
	}
	if d := src.CalculateRemainingCooldownTime(t, now); d > 0 {
		return d
	}
	return 0
}
