package games

// Format determines which scoring/time rule variant and auto-termination
// policy apply to a game.
type Format string

const (
	// FormatProfessional plays timed quarters and ends when the clock expires.
	FormatProfessional Format = "professional"
	// FormatTournament plays to a target score and never ends on the clock.
	FormatTournament Format = "tournament"
	// FormatRecreational plays timed halves and ends when the clock expires.
	FormatRecreational Format = "recreational"
)

// Valid checks whether the Format is a known one.
func (f Format) Valid() bool {
	switch f {
	case FormatProfessional, FormatTournament, FormatRecreational:
		return true
	}
	return false
}

// Periods returns the number of periods a game of the Format is played in.
// Professional games play quarters, the other formats play halves.
func (f Format) Periods() int {
	if f == FormatProfessional {
		return 4
	}
	return 2
}

// Status is the lifecycle status of a game.
type Status string

const (
	// StatusUpcoming is the status of a created game that has not started yet.
	StatusUpcoming Status = "upcoming"
	// StatusLive is the status of a running game.
	StatusLive Status = "live"
	// StatusCompleted is the terminal status of a finished game.
	StatusCompleted Status = "completed"
	// StatusCancelled is the terminal status of an aborted game.
	StatusCancelled Status = "cancelled"
)

// Valid checks whether the Status is a known one.
func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusLive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// legalStatusTransitions is the total table of allowed status transitions.
// Completed and cancelled are terminal.
var legalStatusTransitions = map[Status]map[Status]struct{}{
	StatusUpcoming: {
		StatusLive:      {},
		StatusCancelled: {},
	},
	StatusLive: {
		StatusCompleted: {},
		StatusCancelled: {},
	},
}

// StatusTransitionAllowed checks the given transition against the legal
// transition table.
func StatusTransitionAllowed(from Status, to Status) bool {
	allowed, ok := legalStatusTransitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Side identifies one of the two teams in a game.
type Side string

const (
	// SideHome is the home team.
	SideHome Side = "home"
	// SideAway is the away team.
	SideAway Side = "away"
)

// Valid checks whether the Side is a known one.
func (s Side) Valid() bool {
	return s == SideHome || s == SideAway
}

// Opposite returns the other Side.
func (s Side) Opposite() Side {
	if s == SideHome {
		return SideAway
	}
	return SideHome
}
