// Package gamesvc is the game state engine. It owns the lifecycle of games,
// every scorekeeping mutation of their live states and the append-only
// play-by-play log, including format-specific auto-termination.
package gamesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/ultiscore/ultiscore-server/auth"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/games"
	"github.com/ultiscore/ultiscore-server/store"
	"go.uber.org/zap"
)

// mutationAttempts is how often a scorekeeping mutation is retried when the
// live state's version moved on concurrently.
const mutationAttempts = 3

// defaultEventsLimit bounds event reads when the caller does not pass a limit.
const defaultEventsLimit = 50

// Store are the persistence dependencies needed for Service.
type Store interface {
	// CreateGame inserts the given store.Game together with its initial
	// store.LiveState atomically.
	CreateGame(ctx context.Context, game store.Game, state store.LiveState) error
	// GameByID retrieves the store.Game with the given id.
	GameByID(ctx context.Context, gameID uuid.UUID) (store.Game, error)
	// GamesByStatus retrieves all games with the given status.
	GamesByStatus(ctx context.Context, status games.Status) ([]store.Game, error)
	// UpdateGameRules replaces the rule configuration of the still upcoming game
	// and applies the recomputed live state atomically.
	UpdateGameRules(ctx context.Context, gameID uuid.UUID, ruleConfig games.RuleConfig,
		state store.LiveState, expectedStateVersion int) error
	// ApplyLiveStateMutation applies one mutation atomically: the live state is
	// replaced if its stored version still matches, the events are appended and
	// the optional game row is replaced as well.
	ApplyLiveStateMutation(ctx context.Context, state store.LiveState, expectedStateVersion int,
		events []store.Event, game *store.Game) error
	// DeleteGame removes the game with its live state and events.
	DeleteGame(ctx context.Context, gameID uuid.UUID) error
	// LiveStateByGame retrieves the store.LiveState for the given game.
	LiveStateByGame(ctx context.Context, gameID uuid.UUID) (store.LiveState, error)
	// EventsByGame retrieves the most recent events for the given game.
	EventsByGame(ctx context.Context, gameID uuid.UUID, limit int) ([]store.Event, error)
}

// Notifier publishes committed changes to live consumers. Implementations
// must not fail the causing operation.
type Notifier interface {
	// NotifyGameStateUpdated is called after the live state of a game changed.
	NotifyGameStateUpdated(ctx context.Context, status games.Status, state store.LiveState)
	// NotifyGameEventAppended is called for every appended play-by-play entry.
	NotifyGameEventAppended(ctx context.Context, e store.Event)
}

// Service is the game state engine.
type Service struct {
	logger   *zap.Logger
	store    Store
	notifier Notifier
	// now is the time source. Overridable in tests.
	now func() time.Time
}

// NewService creates a new Service ready to use.
func NewService(logger *zap.Logger, store Store, notifier Notifier) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateGameParams bundle what is needed for creating a game via CreateGame.
type CreateGameParams struct {
	// Format is the competitive format the game will be played in.
	Format games.Format
	// HomeTeam references the home team.
	HomeTeam uuid.UUID
	// AwayTeam references the away team.
	AwayTeam uuid.UUID
	// ScheduledStart is when the game is planned to start.
	ScheduledStart time.Time
	// Venue is where the game takes place.
	Venue string
	// FieldInfo is optional field geometry information.
	FieldInfo nulls.String
	// RuleConfig is the format-specific rule configuration.
	RuleConfig games.RuleConfig
	// GenderRatioRequired describes whether gender ratio counts are tracked.
	GenderRatioRequired bool
}

// CreateGame creates a game in upcoming status together with its initial live
// state. Requires the manage-games capability.
func (s *Service) CreateGame(ctx context.Context, user store.User, params CreateGameParams) (store.Game, error) {
	err := auth.RequireManageGames(user)
	if err != nil {
		return store.Game{}, errors.Wrap(err, "require manage games", nil)
	}
	err = params.RuleConfig.Validate(params.Format)
	if err != nil {
		return store.Game{}, errors.Wrap(err, "validate rule config", nil)
	}
	if params.HomeTeam == params.AwayTeam {
		return store.Game{}, errors.NewBadRequestError("home and away team must differ",
			errors.Details{"team": params.HomeTeam})
	}
	if params.Venue == "" {
		return store.Game{}, errors.NewBadRequestError("venue must not be empty", nil)
	}
	game := store.Game{
		ID:                  uuid.New(),
		Format:              params.Format,
		Status:              games.StatusUpcoming,
		HomeTeam:            params.HomeTeam,
		AwayTeam:            params.AwayTeam,
		ScheduledStart:      params.ScheduledStart,
		Venue:               params.Venue,
		FieldInfo:           params.FieldInfo,
		RuleConfig:          params.RuleConfig,
		GenderRatioRequired: params.GenderRatioRequired,
	}
	state := s.initialLiveState(game, user)
	err = s.store.CreateGame(ctx, game, state)
	if err != nil {
		return store.Game{}, errors.Wrap(err, "create game in store", nil)
	}
	s.notifier.NotifyGameStateUpdated(ctx, game.Status, state)
	return game, nil
}

// initialLiveState builds the live state a game starts with. The home team
// starts the first point with possession until scorekeepers correct it.
func (s *Service) initialLiveState(game store.Game, user store.User) store.LiveState {
	state := store.LiveState{
		GameID:                game.ID,
		Period:                1,
		ClockSeconds:          game.RuleConfig.InitialClockSeconds(),
		Possession:            games.SideHome,
		PointStartedWith:      games.SideHome,
		HomeTimeoutsRemaining: game.RuleConfig.TimeoutsPerHalf,
		AwayTimeoutsRemaining: game.RuleConfig.TimeoutsPerHalf,
		LastUpdateTime:        s.now(),
		LastUpdatedBy:         user.ID,
		Version:               0,
	}
	if game.GenderRatioRequired {
		state.HomeGenderRatio = nulls.NewInt(0)
		state.AwayGenderRatio = nulls.NewInt(0)
	}
	return state
}

// UpdateGameRules replaces the rule configuration of an upcoming game. The
// live state's clock and timeout counts are recomputed from the new rules.
// Requires the manage-games capability.
func (s *Service) UpdateGameRules(ctx context.Context, user store.User, gameID uuid.UUID, ruleConfig games.RuleConfig) error {
	err := auth.RequireManageGames(user)
	if err != nil {
		return errors.Wrap(err, "require manage games", nil)
	}
	var lastErr error
	for attempt := 0; attempt < mutationAttempts; attempt++ {
		game, err := s.store.GameByID(ctx, gameID)
		if err != nil {
			return errors.Wrap(err, "game by id", nil)
		}
		if game.Status != games.StatusUpcoming {
			return errors.NewInvalidStateError("update game rules", string(game.Status),
				errors.Details{"game": gameID})
		}
		err = ruleConfig.Validate(game.Format)
		if err != nil {
			return errors.Wrap(err, "validate rule config", nil)
		}
		state, err := s.store.LiveStateByGame(ctx, gameID)
		if err != nil {
			return errors.Wrap(err, "live state by game", nil)
		}
		expectedVersion := state.Version
		state.ClockSeconds = ruleConfig.InitialClockSeconds()
		state.HomeTimeoutsRemaining = ruleConfig.TimeoutsPerHalf
		state.AwayTimeoutsRemaining = ruleConfig.TimeoutsPerHalf
		s.stampState(&state, user)
		err = s.store.UpdateGameRules(ctx, gameID, ruleConfig, state, expectedVersion)
		if err != nil {
			if errors.IsKind(err, errors.KindVersionConflict) {
				lastErr = err
				continue
			}
			return errors.Wrap(err, "update game rules in store", nil)
		}
		s.notifier.NotifyGameStateUpdated(ctx, game.Status, state)
		return nil
	}
	return errors.Wrap(lastErr, "update game rules retries exhausted", nil)
}

// StartGame transitions the game from upcoming to live. Requires the
// manage-games capability.
func (s *Service) StartGame(ctx context.Context, user store.User, gameID uuid.UUID) error {
	return s.UpdateGameStatus(ctx, user, gameID, games.StatusLive)
}

// EndGame transitions the game from live to completed. Requires the
// manage-games capability.
func (s *Service) EndGame(ctx context.Context, user store.User, gameID uuid.UUID) error {
	return s.UpdateGameStatus(ctx, user, gameID, games.StatusCompleted)
}

// UpdateGameStatus performs an explicit status transition. Illegal transitions
// fail with an errors.ErrInvalidState error and terminal states are never
// left. Requires the manage-games capability.
func (s *Service) UpdateGameStatus(ctx context.Context, user store.User, gameID uuid.UUID, to games.Status) error {
	err := auth.RequireManageGames(user)
	if err != nil {
		return errors.Wrap(err, "require manage games", nil)
	}
	if !to.Valid() {
		return errors.NewBadRequestError(fmt.Sprintf("unknown status: %s", to), nil)
	}
	_, err = s.applyMutation(ctx, gameID, func(game store.Game, state store.LiveState) (mutation, error) {
		if !games.StatusTransitionAllowed(game.Status, to) {
			return mutation{}, errors.NewIllegalStatusTransitionError(string(game.Status), string(to),
				errors.Details{"game": gameID})
		}
		var events []store.Event
		switch to {
		case games.StatusLive:
			game.ActualStart = nulls.NewTime(s.now())
			startEvent, err := s.newEvent(game.ID, state, games.EventTypeGameStart,
				games.GameStartPayload{StartingPossession: state.PointStartedWith}, user.ID)
			if err != nil {
				return mutation{}, errors.Wrap(err, "build game start event", nil)
			}
			events = append(events, startEvent)
		case games.StatusCompleted:
			game.EndTime = nulls.NewTime(s.now())
			state.ClockRunning = false
			state.ActiveTimeoutTeam = nulls.String{}
			state.ActiveTimeoutStart = nulls.Time{}
			endEvent, err := s.newEvent(game.ID, state, games.EventTypeGameEnd, games.GameEndPayload{
				FinalHomeScore: state.HomeScore,
				FinalAwayScore: state.AwayScore,
				AutoTerminated: false,
			}, user.ID)
			if err != nil {
				return mutation{}, errors.Wrap(err, "build game end event", nil)
			}
			events = append(events, endEvent)
		case games.StatusCancelled:
			game.EndTime = nulls.NewTime(s.now())
			state.ClockRunning = false
			state.ActiveTimeoutTeam = nulls.String{}
			state.ActiveTimeoutStart = nulls.Time{}
		}
		game.Status = to
		s.stampState(&state, user)
		return mutation{state: state, events: events, game: &game}, nil
	})
	if err != nil {
		return errors.Wrap(err, "apply status transition", nil)
	}
	return nil
}

// DeleteGame removes the game together with its live state and events.
// Requires the manage-games capability.
func (s *Service) DeleteGame(ctx context.Context, user store.User, gameID uuid.UUID) error {
	err := auth.RequireManageGames(user)
	if err != nil {
		return errors.Wrap(err, "require manage games", nil)
	}
	err = s.store.DeleteGame(ctx, gameID)
	if err != nil {
		return errors.Wrap(err, "delete game in store", nil)
	}
	return nil
}

// GameByID retrieves the game with the given id.
func (s *Service) GameByID(ctx context.Context, gameID uuid.UUID) (store.Game, error) {
	game, err := s.store.GameByID(ctx, gameID)
	if err != nil {
		return store.Game{}, errors.Wrap(err, "game by id", nil)
	}
	return game, nil
}

// GamesByStatus retrieves all games with the given status.
func (s *Service) GamesByStatus(ctx context.Context, status games.Status) ([]store.Game, error) {
	if !status.Valid() {
		return nil, errors.NewBadRequestError(fmt.Sprintf("unknown status: %s", status), nil)
	}
	gameList, err := s.store.GamesByStatus(ctx, status)
	if err != nil {
		return nil, errors.Wrap(err, "games by status", nil)
	}
	return gameList, nil
}

// GameState retrieves the game together with its current live-state snapshot.
func (s *Service) GameState(ctx context.Context, gameID uuid.UUID) (store.Game, store.LiveState, error) {
	game, err := s.store.GameByID(ctx, gameID)
	if err != nil {
		return store.Game{}, store.LiveState{}, errors.Wrap(err, "game by id", nil)
	}
	state, err := s.store.LiveStateByGame(ctx, gameID)
	if err != nil {
		return store.Game{}, store.LiveState{}, errors.Wrap(err, "live state by game", nil)
	}
	return game, state, nil
}

// GameEvents retrieves the most recent play-by-play entries for the game in
// reverse-chronological order. A non-positive limit falls back to the default
// one.
func (s *Service) GameEvents(ctx context.Context, gameID uuid.UUID, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = defaultEventsLimit
	}
	// Assure the game exists so that unknown games fail with not-found instead of
	// an empty list.
	_, err := s.store.GameByID(ctx, gameID)
	if err != nil {
		return nil, errors.Wrap(err, "game by id", nil)
	}
	events, err := s.store.EventsByGame(ctx, gameID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "events by game", nil)
	}
	return events, nil
}

// stampState marks the state as mutated now by the given user and bumps the
// version counter.
func (s *Service) stampState(state *store.LiveState, user store.User) {
	state.LastUpdateTime = s.now()
	state.LastUpdatedBy = user.ID
	state.Version++
}

// describedPayload is an event payload that describes itself.
type describedPayload interface {
	Description() string
}

// newEvent builds a store.Event for the given payload using the clock and
// period from the given snapshot.
func (s *Service) newEvent(gameID uuid.UUID, state store.LiveState, eventType games.EventType,
	payload describedPayload, recordedBy uuid.UUID) (store.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return store.Event{}, errors.NewInternalErrorFromErr(err, "marshal event payload",
			errors.Details{"game": gameID, "eventType": eventType})
	}
	return store.Event{
		ID:           uuid.New(),
		GameID:       gameID,
		Timestamp:    s.now(),
		ClockSeconds: state.ClockSeconds,
		Period:       state.Period,
		Type:         eventType,
		Payload:      raw,
		Description:  payload.Description(),
		RecordedBy:   recordedBy,
	}, nil
}
