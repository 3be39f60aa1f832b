package gamesvc

import (
	"context"
	"fmt"

	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/games"
	"github.com/ultiscore/ultiscore-server/store"
	"go.uber.org/zap"
)

// mutation is the outcome of one scorekeeping action: the new live state, the
// events to append and, if the game auto-terminated or transitioned, the new
// game row.
type mutation struct {
	state  store.LiveState
	events []store.Event
	game   *store.Game
}

// applyMutation runs the whole read-modify-write cycle for one scorekeeping
// action. The build function receives the current game and snapshot and
// returns the mutation to apply. On a version conflict the cycle is retried
// with fresh reads up to mutationAttempts times. Committed changes are handed
// to the notifier.
func (s *Service) applyMutation(ctx context.Context, gameID uuid.UUID,
	build func(game store.Game, state store.LiveState) (mutation, error)) (mutation, error) {
	var lastErr error
	for attempt := 0; attempt < mutationAttempts; attempt++ {
		game, err := s.store.GameByID(ctx, gameID)
		if err != nil {
			return mutation{}, errors.Wrap(err, "game by id", nil)
		}
		state, err := s.store.LiveStateByGame(ctx, gameID)
		if err != nil {
			return mutation{}, errors.Wrap(err, "live state by game", nil)
		}
		m, err := build(game, state)
		if err != nil {
			return mutation{}, errors.Wrap(err, "build mutation", nil)
		}
		err = s.store.ApplyLiveStateMutation(ctx, m.state, state.Version, m.events, m.game)
		if err != nil {
			if errors.IsKind(err, errors.KindVersionConflict) {
				s.logger.Debug("live state version moved on, retrying mutation",
					zap.String("game_id", gameID.String()),
					zap.Int("attempt", attempt+1))
				lastErr = err
				continue
			}
			return mutation{}, errors.Wrap(err, "apply live state mutation in store", nil)
		}
		status := game.Status
		if m.game != nil {
			status = m.game.Status
		}
		s.notifier.NotifyGameStateUpdated(ctx, status, m.state)
		for _, e := range m.events {
			s.notifier.NotifyGameEventAppended(ctx, e)
		}
		return m, nil
	}
	return mutation{}, errors.Wrap(lastErr, "mutation retries exhausted", nil)
}

// assureLive checks that the game is in live status.
func assureLive(game store.Game, operation string) error {
	if game.Status != games.StatusLive {
		return errors.NewInvalidStateError(operation, string(game.Status),
			errors.Details{"game": game.ID})
	}
	return nil
}

// endGame turns the given game and state into their completed form and
// appends the game-end event to the mutation.
func (s *Service) endGame(m *mutation, game store.Game, recordedBy uuid.UUID, autoTerminated bool) error {
	game.Status = games.StatusCompleted
	game.EndTime = nulls.NewTime(s.now())
	m.state.ClockRunning = false
	m.state.ActiveTimeoutTeam = nulls.String{}
	m.state.ActiveTimeoutStart = nulls.Time{}
	endEvent, err := s.newEvent(game.ID, m.state, games.EventTypeGameEnd, games.GameEndPayload{
		FinalHomeScore: m.state.HomeScore,
		FinalAwayScore: m.state.AwayScore,
		AutoTerminated: autoTerminated,
	}, recordedBy)
	if err != nil {
		return errors.Wrap(err, "build game end event", nil)
	}
	m.events = append(m.events, endEvent)
	m.game = &game
	return nil
}

// GoalResult is what RecordGoal reports back to the caller.
type GoalResult struct {
	// EventID identifies the appended goal event.
	EventID uuid.UUID
	// HomeScore is the home score after the goal.
	HomeScore int
	// AwayScore is the away score after the goal.
	AwayScore int
	// GameEnded describes whether the goal auto-terminated the game.
	GameEnded bool
	// StateVersion is the live state's version after the mutation.
	StateVersion int
}

// RecordGoal increments the scoring team's score, appends the goal event and
// gives the next point's possession to the scored-against team. Tournament
// games auto-terminate when the target score is reached.
func (s *Service) RecordGoal(ctx context.Context, user store.User, gameID uuid.UUID, payload games.GoalPayload) (GoalResult, error) {
	if !payload.ScoringTeam.Valid() {
		return GoalResult{}, errors.NewBadRequestError(fmt.Sprintf("unknown side: %s", payload.ScoringTeam), nil)
	}
	var result GoalResult
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "record goal")
		if err != nil {
			return mutation{}, err
		}
		if payload.ScoringTeam == games.SideHome {
			state.HomeScore++
		} else {
			state.AwayScore++
		}
		// The scored-against team starts the next point with the disc.
		state.Possession = payload.ScoringTeam.Opposite()
		state.PointStartedWith = payload.ScoringTeam.Opposite()
		s.stampState(&state, user)
		goalEvent, err := s.newEvent(gameID, state, games.EventTypeGoal, payload, user.ID)
		if err != nil {
			return mutation{}, errors.Wrap(err, "build goal event", nil)
		}
		m := mutation{state: state, events: []store.Event{goalEvent}}
		if games.EndsOnScore(game.Format, game.RuleConfig, state.HomeScore, state.AwayScore) {
			err = s.endGame(&m, game, user.ID, true)
			if err != nil {
				return mutation{}, errors.Wrap(err, "end game", nil)
			}
		}
		result = GoalResult{
			EventID:      goalEvent.ID,
			HomeScore:    m.state.HomeScore,
			AwayScore:    m.state.AwayScore,
			GameEnded:    m.game != nil,
			StateVersion: m.state.Version,
		}
		return m, nil
	})
	if err != nil {
		return GoalResult{}, errors.Wrap(err, "apply goal", nil)
	}
	return result, nil
}

// UpdateClock sets the clock to the given value and running flag. Writes are
// validated against the rule configuration. Timed formats auto-terminate when
// the clock reaches zero.
func (s *Service) UpdateClock(ctx context.Context, user store.User, gameID uuid.UUID, clockSeconds int, clockRunning bool) error {
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "update clock")
		if err != nil {
			return mutation{}, err
		}
		err = games.ValidateClockWrite(game.RuleConfig, state.ClockSeconds, state.ClockRunning, clockSeconds)
		if err != nil {
			return mutation{}, errors.Wrap(err, "validate clock write", nil)
		}
		state.ClockSeconds = clockSeconds
		state.ClockRunning = clockRunning
		s.stampState(&state, user)
		m := mutation{state: state}
		if games.EndsOnClock(game.Format, clockSeconds) {
			err = s.endGame(&m, game, user.ID, true)
			if err != nil {
				return mutation{}, errors.Wrap(err, "end game", nil)
			}
		}
		return m, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply clock update", nil)
	}
	return nil
}

// UpdatePossession sets the side currently holding the disc. No event is
// appended, possession corrections are not part of the play-by-play log.
func (s *Service) UpdatePossession(ctx context.Context, user store.User, gameID uuid.UUID, side games.Side) error {
	if !side.Valid() {
		return errors.NewBadRequestError(fmt.Sprintf("unknown side: %s", side), nil)
	}
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "update possession")
		if err != nil {
			return mutation{}, err
		}
		state.Possession = side
		s.stampState(&state, user)
		return mutation{state: state}, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply possession update", nil)
	}
	return nil
}

// RecordTurnover appends the turnover event and flips possession to the team
// gaining the disc.
func (s *Service) RecordTurnover(ctx context.Context, user store.User, gameID uuid.UUID, payload games.TurnoverPayload) error {
	if !payload.LosingTeam.Valid() {
		return errors.NewBadRequestError(fmt.Sprintf("unknown side: %s", payload.LosingTeam), nil)
	}
	if payload.Kind == "" {
		return errors.NewBadRequestError("turnover kind must not be empty", nil)
	}
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "record turnover")
		if err != nil {
			return mutation{}, err
		}
		state.Possession = payload.LosingTeam.Opposite()
		s.stampState(&state, user)
		turnoverEvent, err := s.newEvent(gameID, state, games.EventTypeTurnover, payload, user.ID)
		if err != nil {
			return mutation{}, errors.Wrap(err, "build turnover event", nil)
		}
		return mutation{state: state, events: []store.Event{turnoverEvent}}, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply turnover", nil)
	}
	return nil
}

// RecordTimeout starts a timeout for the given team: the team's remaining
// count is decremented, the clock stops and the timeout event is appended.
func (s *Service) RecordTimeout(ctx context.Context, user store.User, gameID uuid.UUID, team games.Side) error {
	if !team.Valid() {
		return errors.NewBadRequestError(fmt.Sprintf("unknown side: %s", team), nil)
	}
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "record timeout")
		if err != nil {
			return mutation{}, err
		}
		if state.ActiveTimeoutTeam.Valid {
			return mutation{}, errors.NewBadRequestError("timeout already running",
				errors.Details{"activeTimeoutTeam": state.ActiveTimeoutTeam.String})
		}
		remaining := state.HomeTimeoutsRemaining
		if team == games.SideAway {
			remaining = state.AwayTimeoutsRemaining
		}
		if remaining <= 0 {
			return mutation{}, errors.NewBadRequestError(fmt.Sprintf("%s team has no timeouts remaining", team),
				errors.Details{"team": team})
		}
		remaining--
		if team == games.SideHome {
			state.HomeTimeoutsRemaining = remaining
		} else {
			state.AwayTimeoutsRemaining = remaining
		}
		state.ActiveTimeoutTeam = nulls.NewString(string(team))
		state.ActiveTimeoutStart = nulls.NewTime(s.now())
		state.ClockRunning = false
		s.stampState(&state, user)
		timeoutEvent, err := s.newEvent(gameID, state, games.EventTypeTimeout, games.TimeoutPayload{
			Team:      team,
			Remaining: remaining,
		}, user.ID)
		if err != nil {
			return mutation{}, errors.Wrap(err, "build timeout event", nil)
		}
		return mutation{state: state, events: []store.Event{timeoutEvent}}, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply timeout", nil)
	}
	return nil
}

// ClearTimeout ends the currently running timeout.
func (s *Service) ClearTimeout(ctx context.Context, user store.User, gameID uuid.UUID) error {
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "clear timeout")
		if err != nil {
			return mutation{}, err
		}
		if !state.ActiveTimeoutTeam.Valid {
			return mutation{}, errors.NewBadRequestError("no timeout running", errors.Details{"game": gameID})
		}
		state.ActiveTimeoutTeam = nulls.String{}
		state.ActiveTimeoutStart = nulls.Time{}
		s.stampState(&state, user)
		return mutation{state: state}, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply clear timeout", nil)
	}
	return nil
}

// RecordSubstitution appends the substitution event. Live state is stamped but
// otherwise unchanged.
func (s *Service) RecordSubstitution(ctx context.Context, user store.User, gameID uuid.UUID, payload games.SubstitutionPayload) error {
	if !payload.Team.Valid() {
		return errors.NewBadRequestError(fmt.Sprintf("unknown side: %s", payload.Team), nil)
	}
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "record substitution")
		if err != nil {
			return mutation{}, err
		}
		s.stampState(&state, user)
		substitutionEvent, err := s.newEvent(gameID, state, games.EventTypeSubstitution, payload, user.ID)
		if err != nil {
			return mutation{}, errors.Wrap(err, "build substitution event", nil)
		}
		return mutation{state: state, events: []store.Event{substitutionEvent}}, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply substitution", nil)
	}
	return nil
}

// RecordPenalty appends the penalty event. Live state is stamped but otherwise
// unchanged.
func (s *Service) RecordPenalty(ctx context.Context, user store.User, gameID uuid.UUID, payload games.PenaltyPayload) error {
	if !payload.Team.Valid() {
		return errors.NewBadRequestError(fmt.Sprintf("unknown side: %s", payload.Team), nil)
	}
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "record penalty")
		if err != nil {
			return mutation{}, err
		}
		s.stampState(&state, user)
		penaltyEvent, err := s.newEvent(gameID, state, games.EventTypePenalty, payload, user.ID)
		if err != nil {
			return mutation{}, errors.Wrap(err, "build penalty event", nil)
		}
		return mutation{state: state, events: []store.Event{penaltyEvent}}, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply penalty", nil)
	}
	return nil
}

// AdvancePeriod ends the current period and continues with the next one. The
// clock is reset to the period length and stopped. At the half boundary both
// teams get their per-half timeouts back. The final period cannot be advanced
// past, ending the game is an explicit transition or auto-termination.
func (s *Service) AdvancePeriod(ctx context.Context, user store.User, gameID uuid.UUID) error {
	_, err := s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		err := assureLive(game, "advance period")
		if err != nil {
			return mutation{}, err
		}
		if state.Period >= game.Format.Periods() {
			return mutation{}, errors.NewBadRequestError("already in the final period",
				errors.Details{"period": state.Period})
		}
		endedPeriod := state.Period
		// Record the period end with the old period's clock before resetting.
		periodEndEvent, err := s.newEvent(gameID, state, games.EventTypePeriodEnd, games.PeriodEndPayload{
			EndedPeriod: endedPeriod,
			NextPeriod:  endedPeriod + 1,
		}, user.ID)
		if err != nil {
			return mutation{}, errors.Wrap(err, "build period end event", nil)
		}
		state.Period = endedPeriod + 1
		state.ClockSeconds = game.RuleConfig.PeriodLengthSeconds()
		state.ClockRunning = false
		state.ActiveTimeoutTeam = nulls.String{}
		state.ActiveTimeoutStart = nulls.Time{}
		if endedPeriod == game.Format.Periods()/2 {
			// Half boundary, timeouts replenish.
			state.HomeTimeoutsRemaining = game.RuleConfig.TimeoutsPerHalf
			state.AwayTimeoutsRemaining = game.RuleConfig.TimeoutsPerHalf
		}
		s.stampState(&state, user)
		return mutation{state: state, events: []store.Event{periodEndEvent}}, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply period advance", nil)
	}
	return nil
}
