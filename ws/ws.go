// Package ws provides the websocket hub that pushes live game state to
// subscribed spectator and scorekeeper clients.
package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ultiscore/ultiscore-server/errors"
)

// HandleWS handles websocket requests.
func HandleWS(hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errors.Log(hub.logger, errors.NewInternalErrorFromErr(err, "upgrade websocket connection", nil))
			return
		}
		client := &Client{
			ID:         uuid.New(),
			Send:       make(chan []byte, 256),
			hub:        hub,
			connection: conn,
		}
		// Use the client's hub so that the reference from the handler can be
		// dropped.
		client.hub.register <- client
		// Power the pumps.
		go client.writePump()
		go client.readPump()
	}
}
