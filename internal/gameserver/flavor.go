package gameserver

// surfaceFloor is the lowest-numbered floor that lies under open sky. Floors
// with a greater z are underground.
const surfaceFloor = 7

// FlavorText returns an atmospheric sentence appended to outdoor descriptions.
// Returns empty string indoors or underground (isOutdoor == false).
//
// Precondition: period is one of the eight TimePeriod constants.
// Postcondition: Returns a non-empty string outdoors, empty otherwise.
func FlavorText(period TimePeriod, isOutdoor bool) string {
	if !isOutdoor {
		return ""
	}
	switch period {
	case PeriodMidnight:
		return "The world is cloaked in deep darkness; only faint starlight remains."
	case PeriodLateNight:
		return "The night presses close, silent and still."
	case PeriodDawn:
		return "A pale blush of light edges the horizon as dawn breaks."
	case PeriodMorning:
		return "Morning light floods the area, casting long shadows."
	case PeriodAfternoon:
		return "The sun hangs high overhead, bright and relentless."
	case PeriodDusk:
		return "The sky burns orange and red as the sun sinks toward the horizon."
	case PeriodEvening:
		return "Twilight settles softly, the first stars beginning to appear."
	default: // PeriodNight
		return "A canopy of stars fills the night sky above."
	}
}

// IsDarkPeriod reports whether a period halves how far a creature on the
// surface can see.
//
// Postcondition: Returns true for Midnight, LateNight, Night.
func IsDarkPeriod(period TimePeriod) bool {
	return period == PeriodMidnight || period == PeriodLateNight || period == PeriodNight
}

// sightRange is how far a creature standing on floor z sees right now.
func (g *Game) sightRange(z int) int {
	if z <= surfaceFloor && IsDarkPeriod(g.clock.CurrentHour().Period()) {
		return max(1, g.viewRange/2)
	}
	return g.viewRange
}
