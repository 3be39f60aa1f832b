package gamesvc

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/games"
	"github.com/ultiscore/ultiscore-server/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StoreStub mocks Store.
type StoreStub struct {
	mock.Mock
}

func (s *StoreStub) CreateGame(ctx context.Context, game store.Game, state store.LiveState) error {
	return s.Called(ctx, game, state).Error(0)
}

func (s *StoreStub) GameByID(ctx context.Context, gameID uuid.UUID) (store.Game, error) {
	args := s.Called(ctx, gameID)
	return args.Get(0).(store.Game), args.Error(1)
}

func (s *StoreStub) GamesByStatus(ctx context.Context, status games.Status) ([]store.Game, error) {
	args := s.Called(ctx, status)
	var gameList []store.Game
	if args.Get(0) != nil {
		gameList = args.Get(0).([]store.Game)
	}
	return gameList, args.Error(1)
}

func (s *StoreStub) UpdateGameRules(ctx context.Context, gameID uuid.UUID, ruleConfig games.RuleConfig,
	state store.LiveState, expectedStateVersion int) error {
	return s.Called(ctx, gameID, ruleConfig, state, expectedStateVersion).Error(0)
}

func (s *StoreStub) ApplyLiveStateMutation(ctx context.Context, state store.LiveState, expectedStateVersion int,
	events []store.Event, game *store.Game) error {
	return s.Called(ctx, state, expectedStateVersion, events, game).Error(0)
}

func (s *StoreStub) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	return s.Called(ctx, gameID).Error(0)
}

func (s *StoreStub) LiveStateByGame(ctx context.Context, gameID uuid.UUID) (store.LiveState, error) {
	args := s.Called(ctx, gameID)
	return args.Get(0).(store.LiveState), args.Error(1)
}

func (s *StoreStub) EventsByGame(ctx context.Context, gameID uuid.UUID, limit int) ([]store.Event, error) {
	args := s.Called(ctx, gameID, limit)
	var events []store.Event
	if args.Get(0) != nil {
		events = args.Get(0).([]store.Event)
	}
	return events, args.Error(1)
}

// NotifierStub mocks Notifier.
type NotifierStub struct {
	mock.Mock
}

func (s *NotifierStub) NotifyGameStateUpdated(ctx context.Context, status games.Status, state store.LiveState) {
	s.Called(ctx, status, state)
}

func (s *NotifierStub) NotifyGameEventAppended(ctx context.Context, e store.Event) {
	s.Called(ctx, e)
}

var testTime = time.Date(2022, 4, 12, 18, 0, 0, 0, time.UTC)

// newTestService creates a Service with stubbed dependencies and a fixed time
// source.
func newTestService(storeStub *StoreStub, notifierStub *NotifierStub) *Service {
	svc := NewService(zap.New(zapcore.NewNopCore()), storeStub, notifierStub)
	svc.now = func() time.Time {
		return testTime
	}
	return svc
}

func manager() store.User {
	return store.User{ID: uuid.New(), CallSign: "lead", ManageGames: true}
}

func scorekeeper() store.User {
	return store.User{ID: uuid.New(), CallSign: "keeper"}
}

func tournamentRules(targetScore int) games.RuleConfig {
	return games.RuleConfig{
		StallCount:         10,
		TimeoutsPerHalf:    2,
		TimeoutDurationSec: 70,
		Tournament:         &games.TournamentRules{TargetScore: targetScore},
	}
}

func professionalRules() games.RuleConfig {
	return games.RuleConfig{
		StallCount:         7,
		TimeoutsPerHalf:    2,
		TimeoutDurationSec: 70,
		Professional:       &games.ProfessionalRules{QuarterLengthMin: 12},
	}
}

// CreateGameSuite tests Service.CreateGame.
type CreateGameSuite struct {
	suite.Suite
	svc          *Service
	storeStub    *StoreStub
	notifierStub *NotifierStub
	params       CreateGameParams
}

func (suite *CreateGameSuite) SetupTest() {
	suite.storeStub = &StoreStub{}
	suite.notifierStub = &NotifierStub{}
	suite.svc = newTestService(suite.storeStub, suite.notifierStub)
	suite.params = CreateGameParams{
		Format:         games.FormatTournament,
		HomeTeam:       uuid.New(),
		AwayTeam:       uuid.New(),
		ScheduledStart: testTime.Add(time.Hour),
		Venue:          "field 3",
		RuleConfig:     tournamentRules(15),
	}
}

func (suite *CreateGameSuite) TestMissingCapability() {
	_, err := suite.svc.CreateGame(context.Background(), scorekeeper(), suite.params)
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrForbidden), "should fail with forbidden error")
}

func (suite *CreateGameSuite) TestInvalidRuleConfig() {
	suite.params.RuleConfig.Tournament = nil
	_, err := suite.svc.CreateGame(context.Background(), manager(), suite.params)
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad-request error")
}

func (suite *CreateGameSuite) TestSameTeams() {
	suite.params.AwayTeam = suite.params.HomeTeam
	_, err := suite.svc.CreateGame(context.Background(), manager(), suite.params)
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad-request error")
}

func (suite *CreateGameSuite) TestStoreFail() {
	suite.storeStub.On("CreateGame", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.NewInternalError("sad life", nil))
	defer suite.storeStub.AssertExpectations(suite.T())
	_, err := suite.svc.CreateGame(context.Background(), manager(), suite.params)
	suite.Error(err, "should fail")
}

func (suite *CreateGameSuite) TestOK() {
	user := manager()
	var createdState store.LiveState
	suite.storeStub.On("CreateGame", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			createdState = args.Get(2).(store.LiveState)
		}).Return(nil)
	suite.notifierStub.On("NotifyGameStateUpdated", mock.Anything, games.StatusUpcoming, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.notifierStub.AssertExpectations(suite.T())
	game, err := suite.svc.CreateGame(context.Background(), user, suite.params)
	suite.Require().NoError(err, "should not fail")
	suite.Equal(games.StatusUpcoming, game.Status, "game should be upcoming")
	suite.Equal(game.ID, createdState.GameID, "state should reference the game")
	suite.Equal(1, createdState.Period, "should start in period 1")
	suite.Equal(0, createdState.ClockSeconds, "tournament games carry no clock")
	suite.Equal(games.SideHome, createdState.Possession, "home starts with possession")
	suite.Equal(2, createdState.HomeTimeoutsRemaining, "should grant per-half timeouts")
	suite.Equal(2, createdState.AwayTimeoutsRemaining, "should grant per-half timeouts")
	suite.Equal(0, createdState.Version, "version starts at zero")
	suite.Equal(user.ID, createdState.LastUpdatedBy, "creator performed the last mutation")
}

func (suite *CreateGameSuite) TestTimedFormatClock() {
	suite.params.Format = games.FormatProfessional
	suite.params.RuleConfig = professionalRules()
	var createdState store.LiveState
	suite.storeStub.On("CreateGame", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			createdState = args.Get(2).(store.LiveState)
		}).Return(nil)
	suite.notifierStub.On("NotifyGameStateUpdated", mock.Anything, mock.Anything, mock.Anything)
	_, err := suite.svc.CreateGame(context.Background(), manager(), suite.params)
	suite.Require().NoError(err, "should not fail")
	suite.Equal(12*60, createdState.ClockSeconds, "clock should start at quarter length")
}

func TestServiceCreateGame(t *testing.T) {
	suite.Run(t, new(CreateGameSuite))
}

// UpdateGameRulesSuite tests Service.UpdateGameRules.
type UpdateGameRulesSuite struct {
	suite.Suite
	svc          *Service
	storeStub    *StoreStub
	notifierStub *NotifierStub
	game         store.Game
	state        store.LiveState
}

func (suite *UpdateGameRulesSuite) SetupTest() {
	suite.storeStub = &StoreStub{}
	suite.notifierStub = &NotifierStub{}
	suite.svc = newTestService(suite.storeStub, suite.notifierStub)
	suite.game = store.Game{
		ID:         uuid.New(),
		Format:     games.FormatTournament,
		Status:     games.StatusUpcoming,
		RuleConfig: tournamentRules(15),
	}
	suite.state = store.LiveState{
		GameID:                suite.game.ID,
		Period:                1,
		Possession:            games.SideHome,
		PointStartedWith:      games.SideHome,
		HomeTimeoutsRemaining: 2,
		AwayTimeoutsRemaining: 2,
		Version:               3,
	}
}

func (suite *UpdateGameRulesSuite) TestMissingCapability() {
	err := suite.svc.UpdateGameRules(context.Background(), scorekeeper(), suite.game.ID, tournamentRules(13))
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrForbidden), "should fail with forbidden error")
}

func (suite *UpdateGameRulesSuite) TestNotUpcoming() {
	suite.game.Status = games.StatusLive
	suite.storeStub.On("GameByID", mock.Anything, suite.game.ID).Return(suite.game, nil)
	err := suite.svc.UpdateGameRules(context.Background(), manager(), suite.game.ID, tournamentRules(13))
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrInvalidState), "should fail with invalid-state error")
}

func (suite *UpdateGameRulesSuite) TestRetryOnVersionConflict() {
	newRules := tournamentRules(13)
	suite.storeStub.On("GameByID", mock.Anything, suite.game.ID).Return(suite.game, nil)
	suite.storeStub.On("LiveStateByGame", mock.Anything, suite.game.ID).Return(suite.state, nil)
	suite.storeStub.On("UpdateGameRules", mock.Anything, suite.game.ID, newRules, mock.Anything, suite.state.Version).
		Return(errors.NewVersionConflictError("moved on", nil)).Once()
	suite.storeStub.On("UpdateGameRules", mock.Anything, suite.game.ID, newRules, mock.Anything, suite.state.Version).
		Return(nil).Once()
	suite.notifierStub.On("NotifyGameStateUpdated", mock.Anything, games.StatusUpcoming, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.notifierStub.AssertExpectations(suite.T())
	err := suite.svc.UpdateGameRules(context.Background(), manager(), suite.game.ID, newRules)
	suite.NoError(err, "should not fail")
}

func (suite *UpdateGameRulesSuite) TestRetriesExhausted() {
	newRules := tournamentRules(13)
	suite.storeStub.On("GameByID", mock.Anything, suite.game.ID).Return(suite.game, nil)
	suite.storeStub.On("LiveStateByGame", mock.Anything, suite.game.ID).Return(suite.state, nil)
	suite.storeStub.On("UpdateGameRules", mock.Anything, suite.game.ID, newRules, mock.Anything, suite.state.Version).
		Return(errors.NewVersionConflictError("moved on", nil)).Times(mutationAttempts)
	defer suite.storeStub.AssertExpectations(suite.T())
	err := suite.svc.UpdateGameRules(context.Background(), manager(), suite.game.ID, newRules)
	suite.Require().Error(err, "should fail")
	suite.True(errors.IsKind(err, errors.KindVersionConflict), "should keep the version-conflict kind")
}

func (suite *UpdateGameRulesSuite) TestOK() {
	newRules := tournamentRules(13)
	newRules.TimeoutsPerHalf = 1
	var updatedState store.LiveState
	suite.storeStub.On("GameByID", mock.Anything, suite.game.ID).Return(suite.game, nil)
	suite.storeStub.On("LiveStateByGame", mock.Anything, suite.game.ID).Return(suite.state, nil)
	suite.storeStub.On("UpdateGameRules", mock.Anything, suite.game.ID, newRules, mock.Anything, suite.state.Version).
		Run(func(args mock.Arguments) {
			updatedState = args.Get(3).(store.LiveState)
		}).Return(nil)
	suite.notifierStub.On("NotifyGameStateUpdated", mock.Anything, games.StatusUpcoming, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	err := suite.svc.UpdateGameRules(context.Background(), manager(), suite.game.ID, newRules)
	suite.Require().NoError(err, "should not fail")
	suite.Equal(1, updatedState.HomeTimeoutsRemaining, "should recompute timeout counts")
	suite.Equal(suite.state.Version+1, updatedState.Version, "should bump the version")
}

func TestServiceUpdateGameRules(t *testing.T) {
	suite.Run(t, new(UpdateGameRulesSuite))
}

// UpdateGameStatusSuite tests Service.UpdateGameStatus and its StartGame and
// EndGame shorthands.
type UpdateGameStatusSuite struct {
	suite.Suite
	svc          *Service
	storeStub    *StoreStub
	notifierStub *NotifierStub
	game         store.Game
	state        store.LiveState
}

func (suite *UpdateGameStatusSuite) SetupTest() {
	suite.storeStub = &StoreStub{}
	suite.notifierStub = &NotifierStub{}
	suite.svc = newTestService(suite.storeStub, suite.notifierStub)
	suite.game = store.Game{
		ID:         uuid.New(),
		Format:     games.FormatTournament,
		Status:     games.StatusUpcoming,
		RuleConfig: tournamentRules(15),
	}
	suite.state = store.LiveState{
		GameID:           suite.game.ID,
		Period:           1,
		Possession:       games.SideHome,
		PointStartedWith: games.SideHome,
		Version:          0,
	}
}

func (suite *UpdateGameStatusSuite) expectReads() {
	suite.storeStub.On("GameByID", mock.Anything, suite.game.ID).Return(suite.game, nil)
	suite.storeStub.On("LiveStateByGame", mock.Anything, suite.game.ID).Return(suite.state, nil)
}

func (suite *UpdateGameStatusSuite) TestMissingCapability() {
	err := suite.svc.StartGame(context.Background(), scorekeeper(), suite.game.ID)
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrForbidden), "should fail with forbidden error")
}

func (suite *UpdateGameStatusSuite) TestUnknownStatus() {
	err := suite.svc.UpdateGameStatus(context.Background(), manager(), suite.game.ID, games.Status("paused"))
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrBadRequest), "should fail with bad-request error")
}

func (suite *UpdateGameStatusSuite) TestIllegalTransition() {
	suite.expectReads()
	err := suite.svc.EndGame(context.Background(), manager(), suite.game.ID)
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrInvalidState), "should fail with invalid-state error")
	suite.True(errors.IsKind(err, errors.KindIllegalStatusTransition), "should carry the transition kind")
}

func (suite *UpdateGameStatusSuite) TestTerminalSealed() {
	suite.game.Status = games.StatusCompleted
	suite.expectReads()
	err := suite.svc.StartGame(context.Background(), manager(), suite.game.ID)
	suite.Require().Error(err, "should fail")
	suite.True(errors.Is(err, errors.ErrInvalidState), "should fail with invalid-state error")
	suite.True(errors.IsKind(err, errors.KindIllegalStatusTransition), "should carry the transition kind")
}

func (suite *UpdateGameStatusSuite) TestStartOK() {
	suite.expectReads()
	var appliedEvents []store.Event
	var appliedGame *store.Game
	suite.storeStub.On("ApplyLiveStateMutation", mock.Anything, mock.Anything, suite.state.Version,
		mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			appliedEvents = args.Get(3).([]store.Event)
			appliedGame = args.Get(4).(*store.Game)
		}).Return(nil)
	suite.notifierStub.On("NotifyGameStateUpdated", mock.Anything, games.StatusLive, mock.Anything).Once()
	suite.notifierStub.On("NotifyGameEventAppended", mock.Anything, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.notifierStub.AssertExpectations(suite.T())
	err := suite.svc.StartGame(context.Background(), manager(), suite.game.ID)
	suite.Require().NoError(err, "should not fail")
	suite.Require().NotNil(appliedGame, "should update the game row")
	suite.Equal(games.StatusLive, appliedGame.Status, "game should be live")
	suite.True(appliedGame.ActualStart.Valid, "should stamp the actual start")
	suite.Require().Len(appliedEvents, 1, "should append one event")
	suite.Equal(games.EventTypeGameStart, appliedEvents[0].Type, "should append the game start event")
}

func (suite *UpdateGameStatusSuite) TestEndOK() {
	suite.game.Status = games.StatusLive
	suite.state.HomeScore = 15
	suite.state.AwayScore = 12
	suite.expectReads()
	var appliedEvents []store.Event
	var appliedGame *store.Game
	suite.storeStub.On("ApplyLiveStateMutation", mock.Anything, mock.Anything, suite.state.Version,
		mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			appliedEvents = args.Get(3).([]store.Event)
			appliedGame = args.Get(4).(*store.Game)
		}).Return(nil)
	suite.notifierStub.On("NotifyGameStateUpdated", mock.Anything, games.StatusCompleted, mock.Anything).Once()
	suite.notifierStub.On("NotifyGameEventAppended", mock.Anything, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	err := suite.svc.EndGame(context.Background(), manager(), suite.game.ID)
	suite.Require().NoError(err, "should not fail")
	suite.Require().NotNil(appliedGame, "should update the game row")
	suite.Equal(games.StatusCompleted, appliedGame.Status, "game should be completed")
	suite.True(appliedGame.EndTime.Valid, "should stamp the end time")
	suite.Require().Len(appliedEvents, 1, "should append one event")
	suite.Equal(games.EventTypeGameEnd, appliedEvents[0].Type, "should append the game end event")
}

func (suite *UpdateGameStatusSuite) TestCancelOK() {
	suite.expectReads()
	var appliedEvents []store.Event
	var appliedGame *store.Game
	suite.storeStub.On("ApplyLiveStateMutation", mock.Anything, mock.Anything, suite.state.Version,
		mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			appliedEvents = args.Get(3).([]store.Event)
			appliedGame = args.Get(4).(*store.Game)
		}).Return(nil)
	suite.notifierStub.On("NotifyGameStateUpdated", mock.Anything, games.StatusCancelled, mock.Anything).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	err := suite.svc.UpdateGameStatus(context.Background(), manager(), suite.game.ID, games.StatusCancelled)
	suite.Require().NoError(err, "should not fail")
	suite.Equal(games.StatusCancelled, appliedGame.Status, "game should be cancelled")
	suite.Empty(appliedEvents, "cancelling should not append events")
}

func TestServiceUpdateGameStatus(t *testing.T) {
	suite.Run(t, new(UpdateGameStatusSuite))
}

func TestServiceDeleteGame(t *testing.T) {
	storeStub := &StoreStub{}
	notifierStub := &NotifierStub{}
	svc := newTestService(storeStub, notifierStub)
	gameID := uuid.New()

	t.Run("MissingCapability", func(t *testing.T) {
		err := svc.DeleteGame(context.Background(), scorekeeper(), gameID)
		if !errors.Is(err, errors.ErrForbidden) {
			t.Error("should fail with forbidden error")
		}
	})

	t.Run("OK", func(t *testing.T) {
		storeStub.On("DeleteGame", mock.Anything, gameID).Return(nil).Once()
		defer storeStub.AssertExpectations(t)
		err := svc.DeleteGame(context.Background(), manager(), gameID)
		if err != nil {
			t.Errorf("should not fail but got: %v", err)
		}
	})
}

func TestServiceGameEvents(t *testing.T) {
	storeStub := &StoreStub{}
	svc := newTestService(storeStub, &NotifierStub{})
	gameID := uuid.New()
	storeStub.On("GameByID", mock.Anything, gameID).Return(store.Game{ID: gameID}, nil)
	storeStub.On("EventsByGame", mock.Anything, gameID, defaultEventsLimit).Return([]store.Event{}, nil).Once()
	defer storeStub.AssertExpectations(t)
	// A non-positive limit falls back to the default one.
	_, err := svc.GameEvents(context.Background(), gameID, 0)
	if err != nil {
		t.Errorf("should not fail but got: %v", err)
	}
}

func TestServiceGamesByStatusUnknown(t *testing.T) {
	svc := newTestService(&StoreStub{}, &NotifierStub{})
	_, err := svc.GamesByStatus(context.Background(), games.Status("paused"))
	if !errors.Is(err, errors.ErrBadRequest) {
		t.Error("should fail with bad-request error")
	}
}

func TestServiceGameState(t *testing.T) {
	storeStub := &StoreStub{}
	svc := newTestService(storeStub, &NotifierStub{})
	gameID := uuid.New()
	game := store.Game{ID: gameID, Status: games.StatusLive}
	state := store.LiveState{GameID: gameID, HomeScore: 3, Version: 7}
	storeStub.On("GameByID", mock.Anything, gameID).Return(game, nil)
	storeStub.On("LiveStateByGame", mock.Anything, gameID).Return(state, nil)
	defer storeStub.AssertExpectations(t)
	gotGame, gotState, err := svc.GameState(context.Background(), gameID)
	if err != nil {
		t.Fatalf("should not fail but got: %v", err)
	}
	if gotGame.ID != gameID || gotState.Version != 7 {
		t.Error("should return the stored game and state")
	}
}
