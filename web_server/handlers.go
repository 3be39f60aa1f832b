package web_server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/games"
	"github.com/ultiscore/ultiscore-server/gamesvc"
	"github.com/ultiscore/ultiscore-server/store"
	"go.uber.org/zap"
)

// Engine are the game state engine dependencies needed for the handlers.
type Engine interface {
	CreateGame(ctx context.Context, user store.User, params gamesvc.CreateGameParams) (store.Game, error)
	UpdateGameRules(ctx context.Context, user store.User, gameID uuid.UUID, ruleConfig games.RuleConfig) error
	StartGame(ctx context.Context, user store.User, gameID uuid.UUID) error
	EndGame(ctx context.Context, user store.User, gameID uuid.UUID) error
	UpdateGameStatus(ctx context.Context, user store.User, gameID uuid.UUID, to games.Status) error
	DeleteGame(ctx context.Context, user store.User, gameID uuid.UUID) error
	GameByID(ctx context.Context, gameID uuid.UUID) (store.Game, error)
	GamesByStatus(ctx context.Context, status games.Status) ([]store.Game, error)
	GameState(ctx context.Context, gameID uuid.UUID) (store.Game, store.LiveState, error)
	GameEvents(ctx context.Context, gameID uuid.UUID, limit int) ([]store.Event, error)
	RecordGoal(ctx context.Context, user store.User, gameID uuid.UUID, payload games.GoalPayload) (gamesvc.GoalResult, error)
	UpdateClock(ctx context.Context, user store.User, gameID uuid.UUID, clockSeconds int, clockRunning bool) error
	UpdatePossession(ctx context.Context, user store.User, gameID uuid.UUID, side games.Side) error
	RecordTurnover(ctx context.Context, user store.User, gameID uuid.UUID, payload games.TurnoverPayload) error
	RecordTimeout(ctx context.Context, user store.User, gameID uuid.UUID, team games.Side) error
	ClearTimeout(ctx context.Context, user store.User, gameID uuid.UUID) error
	RecordSubstitution(ctx context.Context, user store.User, gameID uuid.UUID, payload games.SubstitutionPayload) error
	RecordPenalty(ctx context.Context, user store.User, gameID uuid.UUID, payload games.PenaltyPayload) error
	AdvancePeriod(ctx context.Context, user store.User, gameID uuid.UUID) error
}

// Authenticator resolves bearer tokens to users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (store.User, error)
}

// httpStatusForError maps the error code to the HTTP status to respond with.
func httpStatusForError(err error) int {
	e, _ := errors.Cast(err)
	switch e.Code {
	case errors.ErrAuthentication:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrInvalidState:
		return http.StatusConflict
	case errors.ErrBadRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// errorResponse is the body error responses carry.
type errorResponse struct {
	Error string `json:"error"`
}

// respondError logs the given error and responds with the mapped HTTP status.
// Internal error messages are not exposed to the caller.
func respondError(logger *zap.Logger, w http.ResponseWriter, err error) {
	errors.Log(logger, err)
	status := httpStatusForError(err)
	message := "internal server error"
	if errors.BlameUser(err) {
		e, _ := errors.Cast(err)
		message = e.Message
	}
	respondJSON(logger, w, status, errorResponse{Error: message})
}

// respondJSON responds with the given payload as JSON.
func respondJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		errors.Log(logger, errors.NewInternalErrorFromErr(err, "marshal response", nil))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(raw)
	if err != nil {
		errors.Log(logger, errors.NewInternalErrorFromErr(err, "write response", nil))
	}
}

// decodeBody decodes the request body into the given target.
func decodeBody(r *http.Request, target interface{}) error {
	err := json.NewDecoder(r.Body).Decode(target)
	if err != nil {
		return errors.NewBadRequestError("invalid request body", errors.Details{"err": err.Error()})
	}
	return nil
}

// gameIDFromRequest extracts the game id from the request path.
func gameIDFromRequest(r *http.Request) (uuid.UUID, error) {
	gameID, err := uuid.Parse(mux.Vars(r)["gameID"])
	if err != nil {
		return uuid.UUID{}, errors.NewBadRequestError("invalid game id", errors.Details{"was": mux.Vars(r)["gameID"]})
	}
	return gameID, nil
}

// publicGame is the public representation of a game.
type publicGame struct {
	ID                  uuid.UUID        `json:"id"`
	Format              games.Format     `json:"format"`
	Status              games.Status     `json:"status"`
	HomeTeam            uuid.UUID        `json:"home_team"`
	AwayTeam            uuid.UUID        `json:"away_team"`
	ScheduledStart      time.Time        `json:"scheduled_start"`
	ActualStart         nulls.Time       `json:"actual_start"`
	EndTime             nulls.Time       `json:"end_time"`
	Venue               string           `json:"venue"`
	FieldInfo           nulls.String     `json:"field_info"`
	RuleConfig          games.RuleConfig `json:"rule_config"`
	GenderRatioRequired bool             `json:"gender_ratio_required"`
}

func publicGameFromStore(game store.Game) publicGame {
	return publicGame{
		ID:                  game.ID,
		Format:              game.Format,
		Status:              game.Status,
		HomeTeam:            game.HomeTeam,
		AwayTeam:            game.AwayTeam,
		ScheduledStart:      game.ScheduledStart,
		ActualStart:         game.ActualStart,
		EndTime:             game.EndTime,
		Venue:               game.Venue,
		FieldInfo:           game.FieldInfo,
		RuleConfig:          game.RuleConfig,
		GenderRatioRequired: game.GenderRatioRequired,
	}
}

// publicLiveState is the public representation of a live-state snapshot. The
// version serves as concurrency token for clients that want to detect
// conflicting writes.
type publicLiveState struct {
	GameID                uuid.UUID    `json:"game_id"`
	Status                games.Status `json:"status"`
	HomeScore             int          `json:"home_score"`
	AwayScore             int          `json:"away_score"`
	Period                int          `json:"period"`
	ClockSeconds          int          `json:"clock_seconds"`
	ClockRunning          bool         `json:"clock_running"`
	Possession            games.Side   `json:"possession"`
	PointStartedWith      games.Side   `json:"point_started_with"`
	HomeTimeoutsRemaining int          `json:"home_timeouts_remaining"`
	AwayTimeoutsRemaining int          `json:"away_timeouts_remaining"`
	ActiveTimeoutTeam     nulls.String `json:"active_timeout_team"`
	ActiveTimeoutStart    nulls.Time   `json:"active_timeout_start"`
	HomeGenderRatio       nulls.Int    `json:"home_gender_ratio"`
	AwayGenderRatio       nulls.Int    `json:"away_gender_ratio"`
	LastUpdateTime        time.Time    `json:"last_update_time"`
	Version               int          `json:"version"`
}

func publicLiveStateFromStore(status games.Status, state store.LiveState) publicLiveState {
	return publicLiveState{
		GameID:                state.GameID,
		Status:                status,
		HomeScore:             state.HomeScore,
		AwayScore:             state.AwayScore,
		Period:                state.Period,
		ClockSeconds:          state.ClockSeconds,
		ClockRunning:          state.ClockRunning,
		Possession:            state.Possession,
		PointStartedWith:      state.PointStartedWith,
		HomeTimeoutsRemaining: state.HomeTimeoutsRemaining,
		AwayTimeoutsRemaining: state.AwayTimeoutsRemaining,
		ActiveTimeoutTeam:     state.ActiveTimeoutTeam,
		ActiveTimeoutStart:    state.ActiveTimeoutStart,
		HomeGenderRatio:       state.HomeGenderRatio,
		AwayGenderRatio:       state.AwayGenderRatio,
		LastUpdateTime:        state.LastUpdateTime,
		Version:               state.Version,
	}
}

// publicEvent is the public representation of a play-by-play entry.
type publicEvent struct {
	ID           uuid.UUID       `json:"id"`
	GameID       uuid.UUID       `json:"game_id"`
	Timestamp    time.Time       `json:"timestamp"`
	ClockSeconds int             `json:"clock_seconds"`
	Period       int             `json:"period"`
	Type         games.EventType `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Description  string          `json:"description"`
}

func publicEventFromStore(e store.Event) publicEvent {
	return publicEvent{
		ID:           e.ID,
		GameID:       e.GameID,
		Timestamp:    e.Timestamp,
		ClockSeconds: e.ClockSeconds,
		Period:       e.Period,
		Type:         e.Type,
		Payload:      e.Payload,
		Description:  e.Description,
	}
}

// createGameRequest is the body for handleCreateGame.
type createGameRequest struct {
	Format              games.Format     `json:"format"`
	HomeTeam            uuid.UUID        `json:"home_team"`
	AwayTeam            uuid.UUID        `json:"away_team"`
	ScheduledStart      time.Time        `json:"scheduled_start"`
	Venue               string           `json:"venue"`
	FieldInfo           nulls.String     `json:"field_info"`
	RuleConfig          games.RuleConfig `json:"rule_config"`
	GenderRatioRequired bool             `json:"gender_ratio_required"`
}

func (server *WebServer) handleCreateGame(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request createGameRequest
		err := decodeBody(r, &request)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		game, err := engine.CreateGame(r.Context(), userFromRequest(r), gamesvc.CreateGameParams{
			Format:              request.Format,
			HomeTeam:            request.HomeTeam,
			AwayTeam:            request.AwayTeam,
			ScheduledStart:      request.ScheduledStart,
			Venue:               request.Venue,
			FieldInfo:           request.FieldInfo,
			RuleConfig:          request.RuleConfig,
			GenderRatioRequired: request.GenderRatioRequired,
		})
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "create game", nil))
			return
		}
		respondJSON(server.logger, w, http.StatusCreated, publicGameFromStore(game))
	}
}

func (server *WebServer) handleListGames(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := games.Status(r.URL.Query().Get("status"))
		gameList, err := engine.GamesByStatus(r.Context(), status)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "games by status", nil))
			return
		}
		publicGames := make([]publicGame, 0, len(gameList))
		for _, game := range gameList {
			publicGames = append(publicGames, publicGameFromStore(game))
		}
		respondJSON(server.logger, w, http.StatusOK, publicGames)
	}
}

func (server *WebServer) handleGetGame(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		game, err := engine.GameByID(r.Context(), gameID)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "game by id", nil))
			return
		}
		respondJSON(server.logger, w, http.StatusOK, publicGameFromStore(game))
	}
}

func (server *WebServer) handleDeleteGame(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.DeleteGame(r.Context(), userFromRequest(r), gameID)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "delete game", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// updateRulesRequest is the body for handleUpdateGameRules.
type updateRulesRequest struct {
	RuleConfig games.RuleConfig `json:"rule_config"`
}

func (server *WebServer) handleUpdateGameRules(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var request updateRulesRequest
		err = decodeBody(r, &request)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.UpdateGameRules(r.Context(), userFromRequest(r), gameID, request.RuleConfig)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "update game rules", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (server *WebServer) handleStartGame(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.StartGame(r.Context(), userFromRequest(r), gameID)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "start game", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (server *WebServer) handleEndGame(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.EndGame(r.Context(), userFromRequest(r), gameID)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "end game", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// updateStatusRequest is the body for handleUpdateGameStatus.
type updateStatusRequest struct {
	Status games.Status `json:"status"`
}

func (server *WebServer) handleUpdateGameStatus(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var request updateStatusRequest
		err = decodeBody(r, &request)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.UpdateGameStatus(r.Context(), userFromRequest(r), gameID, request.Status)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "update game status", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (server *WebServer) handleGetGameState(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		game, state, err := engine.GameState(r.Context(), gameID)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "game state", nil))
			return
		}
		respondJSON(server.logger, w, http.StatusOK, publicLiveStateFromStore(game.Status, state))
	}
}

func (server *WebServer) handleGetGameEvents(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		limit := 0
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			limit, err = strconv.Atoi(limitStr)
			if err != nil {
				respondError(server.logger, w, errors.NewBadRequestError("invalid limit",
					errors.Details{"was": limitStr}))
				return
			}
		}
		events, err := engine.GameEvents(r.Context(), gameID, limit)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "game events", nil))
			return
		}
		publicEvents := make([]publicEvent, 0, len(events))
		for _, e := range events {
			publicEvents = append(publicEvents, publicEventFromStore(e))
		}
		respondJSON(server.logger, w, http.StatusOK, publicEvents)
	}
}

// goalResponse is the body handleRecordGoal responds with.
type goalResponse struct {
	EventID      uuid.UUID `json:"event_id"`
	HomeScore    int       `json:"home_score"`
	AwayScore    int       `json:"away_score"`
	GameEnded    bool      `json:"game_ended"`
	StateVersion int       `json:"state_version"`
}

func (server *WebServer) handleRecordGoal(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var payload games.GoalPayload
		err = decodeBody(r, &payload)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		result, err := engine.RecordGoal(r.Context(), userFromRequest(r), gameID, payload)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "record goal", nil))
			return
		}
		respondJSON(server.logger, w, http.StatusCreated, goalResponse{
			EventID:      result.EventID,
			HomeScore:    result.HomeScore,
			AwayScore:    result.AwayScore,
			GameEnded:    result.GameEnded,
			StateVersion: result.StateVersion,
		})
	}
}

// updateClockRequest is the body for handleUpdateClock.
type updateClockRequest struct {
	ClockSeconds int  `json:"clock_seconds"`
	ClockRunning bool `json:"clock_running"`
}

func (server *WebServer) handleUpdateClock(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var request updateClockRequest
		err = decodeBody(r, &request)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.UpdateClock(r.Context(), userFromRequest(r), gameID, request.ClockSeconds, request.ClockRunning)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "update clock", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// updatePossessionRequest is the body for handleUpdatePossession.
type updatePossessionRequest struct {
	Side games.Side `json:"side"`
}

func (server *WebServer) handleUpdatePossession(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var request updatePossessionRequest
		err = decodeBody(r, &request)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.UpdatePossession(r.Context(), userFromRequest(r), gameID, request.Side)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "update possession", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (server *WebServer) handleRecordTurnover(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var payload games.TurnoverPayload
		err = decodeBody(r, &payload)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.RecordTurnover(r.Context(), userFromRequest(r), gameID, payload)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "record turnover", nil))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// recordTimeoutRequest is the body for handleRecordTimeout.
type recordTimeoutRequest struct {
	Team games.Side `json:"team"`
}

func (server *WebServer) handleRecordTimeout(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var request recordTimeoutRequest
		err = decodeBody(r, &request)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.RecordTimeout(r.Context(), userFromRequest(r), gameID, request.Team)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "record timeout", nil))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func (server *WebServer) handleClearTimeout(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.ClearTimeout(r.Context(), userFromRequest(r), gameID)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "clear timeout", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (server *WebServer) handleRecordSubstitution(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var payload games.SubstitutionPayload
		err = decodeBody(r, &payload)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.RecordSubstitution(r.Context(), userFromRequest(r), gameID, payload)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "record substitution", nil))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func (server *WebServer) handleRecordPenalty(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		var payload games.PenaltyPayload
		err = decodeBody(r, &payload)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.RecordPenalty(r.Context(), userFromRequest(r), gameID, payload)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "record penalty", nil))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func (server *WebServer) handleAdvancePeriod(engine Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID, err := gameIDFromRequest(r)
		if err != nil {
			respondError(server.logger, w, err)
			return
		}
		err = engine.AdvancePeriod(r.Context(), userFromRequest(r), gameID)
		if err != nil {
			respondError(server.logger, w, errors.Wrap(err, "advance period", nil))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
