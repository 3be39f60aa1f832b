package games

import (
	"fmt"

	"github.com/gobuffalo/nulls"
	"github.com/ultiscore/ultiscore-server/errors"
)

// ProfessionalRules is the rule variant for FormatProfessional.
type ProfessionalRules struct {
	// QuarterLengthMin is the length of one quarter in minutes.
	QuarterLengthMin int `json:"quarter_length_min"`
}

// TournamentRules is the rule variant for FormatTournament.
type TournamentRules struct {
	// TargetScore is the score at which the game ends.
	TargetScore int `json:"target_score"`
	// SoftCapMin is the optional soft cap time in minutes. Cap evaluation is not
	// part of auto-termination.
	SoftCapMin nulls.Int `json:"soft_cap_min"`
	// HardCapMin is the optional hard cap time in minutes.
	HardCapMin nulls.Int `json:"hard_cap_min"`
}

// RecreationalRules is the rule variant for FormatRecreational.
type RecreationalRules struct {
	// HalfLengthMin is the length of one half in minutes.
	HalfLengthMin int `json:"half_length_min"`
}

// RuleConfig is the rule configuration of a game. The common fields apply to
// all formats. Exactly one of the variant fields must be set and must match
// the game's format.
type RuleConfig struct {
	// StallCount is the stall count to play with. Allowed values are 6, 7 and 10.
	StallCount int `json:"stall_count"`
	// TimeoutsPerHalf is the number of timeouts each team has per half.
	TimeoutsPerHalf int `json:"timeouts_per_half"`
	// TimeoutDurationSec is the duration of a timeout in seconds.
	TimeoutDurationSec int `json:"timeout_duration_sec"`
	// Professional is the variant for FormatProfessional.
	Professional *ProfessionalRules `json:"professional,omitempty"`
	// Tournament is the variant for FormatTournament.
	Tournament *TournamentRules `json:"tournament,omitempty"`
	// Recreational is the variant for FormatRecreational.
	Recreational *RecreationalRules `json:"recreational,omitempty"`
}

// allowedStallCounts holds the stall counts games can be played with.
var allowedStallCounts = map[int]struct{}{6: {}, 7: {}, 10: {}}

// Validate checks the RuleConfig against the given Format. The variant
// matching the format must be present and the only one set.
func (c RuleConfig) Validate(format Format) error {
	if !format.Valid() {
		return errors.NewBadRequestError(fmt.Sprintf("unknown format: %s", format), nil)
	}
	if _, ok := allowedStallCounts[c.StallCount]; !ok {
		return errors.NewBadRequestError(fmt.Sprintf("stall count %d not allowed", c.StallCount),
			errors.Details{"stallCount": c.StallCount})
	}
	if c.TimeoutsPerHalf < 0 {
		return errors.NewBadRequestError("timeouts per half must not be negative",
			errors.Details{"timeoutsPerHalf": c.TimeoutsPerHalf})
	}
	if c.TimeoutDurationSec <= 0 {
		return errors.NewBadRequestError("timeout duration must be positive",
			errors.Details{"timeoutDurationSec": c.TimeoutDurationSec})
	}
	// Assure exactly one variant is set.
	variants := 0
	if c.Professional != nil {
		variants++
	}
	if c.Tournament != nil {
		variants++
	}
	if c.Recreational != nil {
		variants++
	}
	if variants != 1 {
		return errors.NewBadRequestError("rule config must carry exactly one format variant",
			errors.Details{"variants": variants})
	}
	switch format {
	case FormatProfessional:
		if c.Professional == nil {
			return errors.NewBadRequestError("professional rule variant required", nil)
		}
		if c.Professional.QuarterLengthMin <= 0 {
			return errors.NewBadRequestError("quarter length must be positive",
				errors.Details{"quarterLengthMin": c.Professional.QuarterLengthMin})
		}
	case FormatTournament:
		if c.Tournament == nil {
			return errors.NewBadRequestError("tournament rule variant required", nil)
		}
		if c.Tournament.TargetScore <= 0 {
			return errors.NewBadRequestError("target score must be positive",
				errors.Details{"targetScore": c.Tournament.TargetScore})
		}
		if c.Tournament.SoftCapMin.Valid && c.Tournament.SoftCapMin.Int <= 0 {
			return errors.NewBadRequestError("soft cap must be positive",
				errors.Details{"softCapMin": c.Tournament.SoftCapMin.Int})
		}
		if c.Tournament.HardCapMin.Valid && c.Tournament.HardCapMin.Int <= 0 {
			return errors.NewBadRequestError("hard cap must be positive",
				errors.Details{"hardCapMin": c.Tournament.HardCapMin.Int})
		}
		if c.Tournament.SoftCapMin.Valid && c.Tournament.HardCapMin.Valid &&
			c.Tournament.HardCapMin.Int < c.Tournament.SoftCapMin.Int {
			return errors.NewBadRequestError("hard cap must not be below soft cap",
				errors.Details{
					"softCapMin": c.Tournament.SoftCapMin.Int,
					"hardCapMin": c.Tournament.HardCapMin.Int,
				})
		}
	case FormatRecreational:
		if c.Recreational == nil {
			return errors.NewBadRequestError("recreational rule variant required", nil)
		}
		if c.Recreational.HalfLengthMin <= 0 {
			return errors.NewBadRequestError("half length must be positive",
				errors.Details{"halfLengthMin": c.Recreational.HalfLengthMin})
		}
	}
	return nil
}

// PeriodLengthSeconds returns the configured length of one period in seconds.
// For score-target formats, 0 is returned.
func (c RuleConfig) PeriodLengthSeconds() int {
	if c.Professional != nil {
		return c.Professional.QuarterLengthMin * 60
	}
	if c.Recreational != nil {
		return c.Recreational.HalfLengthMin * 60
	}
	return 0
}

// InitialClockSeconds returns the clock value a live state starts with.
func (c RuleConfig) InitialClockSeconds() int {
	return c.PeriodLengthSeconds()
}

// TargetScore returns the configured target score. The second return value
// describes whether a target score applies.
func (c RuleConfig) TargetScore() (int, bool) {
	if c.Tournament == nil {
		return 0, false
	}
	return c.Tournament.TargetScore, true
}

// ValidateClockWrite checks a requested clock write against the rule
// configuration and the current snapshot. Negative values and values above the
// configured period length are rejected. Increasing the clock is only allowed
// while the stored clock is not running which enables operator corrections.
func ValidateClockWrite(c RuleConfig, currentClockSeconds int, currentRunning bool, newClockSeconds int) error {
	if newClockSeconds < 0 {
		return errors.NewBadRequestError("clock must not be negative",
			errors.Details{"clockSeconds": newClockSeconds})
	}
	periodLength := c.PeriodLengthSeconds()
	if periodLength > 0 && newClockSeconds > periodLength {
		return errors.NewBadRequestError("clock must not exceed period length",
			errors.Details{
				"clockSeconds":        newClockSeconds,
				"periodLengthSeconds": periodLength,
			})
	}
	if currentRunning && newClockSeconds > currentClockSeconds {
		return errors.NewBadRequestError("clock must not increase while running",
			errors.Details{
				"clockSeconds":        newClockSeconds,
				"currentClockSeconds": currentClockSeconds,
			})
	}
	return nil
}

// EndsOnScore reports whether a game with the given format and rules
// auto-terminates with the given scores. Only tournament games end on score.
func EndsOnScore(format Format, c RuleConfig, homeScore int, awayScore int) bool {
	if format != FormatTournament {
		return false
	}
	target, ok := c.TargetScore()
	if !ok {
		return false
	}
	return homeScore >= target || awayScore >= target
}

// EndsOnClock reports whether a game with the given format auto-terminates
// with the given clock value. Tournament games never end on the clock.
func EndsOnClock(format Format, clockSeconds int) bool {
	if format != FormatProfessional && format != FormatRecreational {
		return false
	}
	return clockSeconds <= 0
}
