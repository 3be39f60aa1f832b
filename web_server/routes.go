package web_server

import (
	"net/http"

	"github.com/ultiscore/ultiscore-server/ws"
)

// PopulateRoutes populates the WebServer with the routes. The websocket
// endpoint and the live-state and event reads are public, spectators do not
// authenticate. Everything else under the API prefix requires a bearer token.
func (server *WebServer) PopulateRoutes(engine Engine, authenticator Authenticator, hub *ws.Hub) {
	// Websocket stuff.
	server.router.HandleFunc("/ws", ws.HandleWS(hub))
	// Public reads. Registered before the API subrouter so that they match
	// first and skip the auth middleware.
	server.router.HandleFunc("/api/v1/games/{gameID}/state", server.handleGetGameState(engine)).Methods(http.MethodGet)
	server.router.HandleFunc("/api/v1/games/{gameID}/events", server.handleGetGameEvents(engine)).Methods(http.MethodGet)
	// API stuff.
	apiRouter := server.router.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMiddleware(server.logger, authenticator))
	// Lifecycle.
	apiRouter.HandleFunc("/games", server.handleCreateGame(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games", server.handleListGames(engine)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/games/{gameID}", server.handleGetGame(engine)).Methods(http.MethodGet)
	apiRouter.HandleFunc("/games/{gameID}", server.handleDeleteGame(engine)).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/games/{gameID}/rules", server.handleUpdateGameRules(engine)).Methods(http.MethodPatch)
	apiRouter.HandleFunc("/games/{gameID}/start", server.handleStartGame(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/end", server.handleEndGame(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/status", server.handleUpdateGameStatus(engine)).Methods(http.MethodPost)
	// Scorekeeping.
	apiRouter.HandleFunc("/games/{gameID}/goals", server.handleRecordGoal(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/clock", server.handleUpdateClock(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/possession", server.handleUpdatePossession(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/turnovers", server.handleRecordTurnover(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/timeouts", server.handleRecordTimeout(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/timeouts", server.handleClearTimeout(engine)).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/games/{gameID}/substitutions", server.handleRecordSubstitution(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/penalties", server.handleRecordPenalty(engine)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/games/{gameID}/period-advance", server.handleAdvancePeriod(engine)).Methods(http.MethodPost)
}
