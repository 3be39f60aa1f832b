package games

import (
	"testing"

	"github.com/gobuffalo/nulls"
	"github.com/stretchr/testify/suite"
	"github.com/ultiscore/ultiscore-server/errors"
)

// professionalConfig returns a valid RuleConfig for FormatProfessional.
func professionalConfig() RuleConfig {
	return RuleConfig{
		StallCount:         7,
		TimeoutsPerHalf:    2,
		TimeoutDurationSec: 70,
		Professional:       &ProfessionalRules{QuarterLengthMin: 12},
	}
}

// tournamentConfig returns a valid RuleConfig for FormatTournament.
func tournamentConfig(targetScore int) RuleConfig {
	return RuleConfig{
		StallCount:         10,
		TimeoutsPerHalf:    2,
		TimeoutDurationSec: 70,
		Tournament:         &TournamentRules{TargetScore: targetScore},
	}
}

// recreationalConfig returns a valid RuleConfig for FormatRecreational.
func recreationalConfig() RuleConfig {
	return RuleConfig{
		StallCount:         6,
		TimeoutsPerHalf:    1,
		TimeoutDurationSec: 60,
		Recreational:       &RecreationalRules{HalfLengthMin: 20},
	}
}

// RuleConfigValidateSuite tests RuleConfig.Validate.
type RuleConfigValidateSuite struct {
	suite.Suite
}

func (suite *RuleConfigValidateSuite) TestOKProfessional() {
	suite.NoError(professionalConfig().Validate(FormatProfessional))
}

func (suite *RuleConfigValidateSuite) TestOKTournament() {
	suite.NoError(tournamentConfig(15).Validate(FormatTournament))
}

func (suite *RuleConfigValidateSuite) TestOKRecreational() {
	suite.NoError(recreationalConfig().Validate(FormatRecreational))
}

func (suite *RuleConfigValidateSuite) TestUnknownFormat() {
	err := professionalConfig().Validate(Format("college"))
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestBadStallCount() {
	config := professionalConfig()
	config.StallCount = 8
	err := config.Validate(FormatProfessional)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestNegativeTimeouts() {
	config := professionalConfig()
	config.TimeoutsPerHalf = -1
	err := config.Validate(FormatProfessional)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestZeroTimeoutDuration() {
	config := professionalConfig()
	config.TimeoutDurationSec = 0
	err := config.Validate(FormatProfessional)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestMissingVariant() {
	config := professionalConfig()
	config.Professional = nil
	err := config.Validate(FormatProfessional)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestWrongVariant() {
	config := tournamentConfig(15)
	err := config.Validate(FormatProfessional)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestMultipleVariants() {
	config := professionalConfig()
	config.Tournament = &TournamentRules{TargetScore: 15}
	err := config.Validate(FormatProfessional)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestZeroTargetScore() {
	err := tournamentConfig(0).Validate(FormatTournament)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestZeroQuarterLength() {
	config := professionalConfig()
	config.Professional.QuarterLengthMin = 0
	err := config.Validate(FormatProfessional)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestZeroHalfLength() {
	config := recreationalConfig()
	config.Recreational.HalfLengthMin = 0
	err := config.Validate(FormatRecreational)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestHardCapBelowSoftCap() {
	config := tournamentConfig(15)
	config.Tournament.SoftCapMin = nulls.NewInt(90)
	config.Tournament.HardCapMin = nulls.NewInt(75)
	err := config.Validate(FormatTournament)
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad request")
}

func (suite *RuleConfigValidateSuite) TestCapsOK() {
	config := tournamentConfig(15)
	config.Tournament.SoftCapMin = nulls.NewInt(75)
	config.Tournament.HardCapMin = nulls.NewInt(90)
	suite.NoError(config.Validate(FormatTournament))
}

func TestRuleConfigValidate(t *testing.T) {
	suite.Run(t, new(RuleConfigValidateSuite))
}

func TestRuleConfigInitialClockSeconds(t *testing.T) {
	tests := []struct {
		name   string
		config RuleConfig
		want   int
	}{
		{name: "professional", config: professionalConfig(), want: 12 * 60},
		{name: "recreational", config: recreationalConfig(), want: 20 * 60},
		{name: "tournament", config: tournamentConfig(15), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.InitialClockSeconds(); got != tt.want {
				t.Errorf("InitialClockSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestValidateClockWrite(t *testing.T) {
	tests := []struct {
		name           string
		config         RuleConfig
		currentClock   int
		currentRunning bool
		newClock       int
		wantOK         bool
	}{
		{name: "regular decrease", config: professionalConfig(), currentClock: 300, currentRunning: true, newClock: 280, wantOK: true},
		{name: "negative", config: professionalConfig(), currentClock: 300, currentRunning: true, newClock: -1, wantOK: false},
		{name: "above period length", config: professionalConfig(), currentClock: 300, currentRunning: false, newClock: 1000, wantOK: false},
		{name: "increase while running", config: professionalConfig(), currentClock: 300, currentRunning: true, newClock: 320, wantOK: false},
		{name: "correction while stopped", config: professionalConfig(), currentClock: 300, currentRunning: false, newClock: 320, wantOK: true},
		{name: "tournament informal clock", config: tournamentConfig(15), currentClock: 0, currentRunning: false, newClock: 5400, wantOK: true},
		{name: "tournament negative", config: tournamentConfig(15), currentClock: 100, currentRunning: false, newClock: -5, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateClockWrite(tt.config, tt.currentClock, tt.currentRunning, tt.newClock)
			if tt.wantOK && err != nil {
				t.Errorf("ValidateClockWrite() unexpected error: %v", err)
			}
			if !tt.wantOK && !errors.Is(err, errors.ErrBadRequest) {
				t.Errorf("ValidateClockWrite() error = %v, want bad request", err)
			}
		})
	}
}

func TestEndsOnScore(t *testing.T) {
	tests := []struct {
		name      string
		format    Format
		config    RuleConfig
		homeScore int
		awayScore int
		want      bool
	}{
		{name: "tournament below target", format: FormatTournament, config: tournamentConfig(15), homeScore: 14, awayScore: 10, want: false},
		{name: "tournament home at target", format: FormatTournament, config: tournamentConfig(15), homeScore: 15, awayScore: 10, want: true},
		{name: "tournament away above target", format: FormatTournament, config: tournamentConfig(15), homeScore: 3, awayScore: 16, want: true},
		{name: "professional never on score", format: FormatProfessional, config: professionalConfig(), homeScore: 99, awayScore: 0, want: false},
		{name: "recreational never on score", format: FormatRecreational, config: recreationalConfig(), homeScore: 99, awayScore: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EndsOnScore(tt.format, tt.config, tt.homeScore, tt.awayScore); got != tt.want {
				t.Errorf("EndsOnScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEndsOnClock(t *testing.T) {
	tests := []struct {
		name         string
		format       Format
		clockSeconds int
		want         bool
	}{
		{name: "professional at zero", format: FormatProfessional, clockSeconds: 0, want: true},
		{name: "professional running", format: FormatProfessional, clockSeconds: 30, want: false},
		{name: "recreational at zero", format: FormatRecreational, clockSeconds: 0, want: true},
		{name: "tournament at zero", format: FormatTournament, clockSeconds: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EndsOnClock(tt.format, tt.clockSeconds); got != tt.want {
				t.Errorf("EndsOnClock() = %v, want %v", got, tt.want)
			}
		})
	}
}
