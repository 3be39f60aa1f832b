package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ultiscore/ultiscore-server/errors"
	"go.uber.org/zap"
)

const (
	// writeTimeout is the timeout for writing a message to the peer.
	writeTimeout = 10 * time.Second
	// pongTimeout is the timeout for waiting for the next pong message from the
	// peer. Must be greater than pingInterval.
	pongTimeout = 60 * time.Second
	// pingInterval is the interval in which pings are sent to the peer. Must be
	// less than pongTimeout.
	pingInterval = (pongTimeout * 9) / 10
	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 4096
)

// clientMessage is the only message clients send: a subscription change for a
// game's live updates.
type clientMessage struct {
	// Action is either "subscribe" or "unsubscribe".
	Action string `json:"action"`
	// Game is the id of the game.
	Game uuid.UUID `json:"game"`
}

// Client holds the websocket connection and is being used by Hub.
type Client struct {
	// ID is a temporary id assigned to the Client.
	ID uuid.UUID
	// Send is the channel outgoing payloads are passed to.
	Send chan []byte
	// hub is the actual websocket hub which is used for registering and
	// unregistering.
	hub *Hub
	// connection is the actual websocket connection.
	connection *websocket.Conn
}

// logger returns a zap.Logger with the Client id as field.
func (c *Client) logger() *zap.Logger {
	return c.hub.logger.With(zap.String("client_id", c.ID.String()))
}

// readPump parses subscription messages from the websocket connection and
// forwards them to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		err := c.connection.Close()
		if err != nil {
			c.logger().Debug(errors.Wrap(err, "close connection", nil).Error())
		}
	}()
	c.connection.SetReadLimit(maxMessageSize)
	_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
	// Handle received pong.
	c.connection.SetPongHandler(func(string) error {
		_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		// Read next message.
		_, message, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().Debug(errors.Wrap(err, "unexpected close", nil).Error())
			}
			break
		}
		var parsed clientMessage
		err = json.Unmarshal(message, &parsed)
		if err != nil {
			c.logger().Debug("dropping malformed client message", zap.ByteString("message", message))
			continue
		}
		switch parsed.Action {
		case "subscribe":
			c.hub.subscriptionRequests <- subscriptionRequest{client: c, gameID: parsed.Game, subscribe: true}
		case "unsubscribe":
			c.hub.subscriptionRequests <- subscriptionRequest{client: c, gameID: parsed.Game, subscribe: false}
		default:
			c.logger().Debug("dropping client message with unknown action", zap.String("action", parsed.Action))
		}
	}
}

// writePump forwards outgoing payloads from the hub to the websocket
// connection. We do not pass a context.Context here because the hub will close
// the Send-channel which will lead to termination, anyways.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		// Stop ping ticker in order to avoid ticker leak.
		pingTicker.Stop()
		// Close connection.
		err := c.connection.Close()
		if err != nil {
			c.logger().Debug(errors.Wrap(err, "close connection", nil).Error())
		}
	}()
	for {
		select {
		case payload, ok := <-c.Send:
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Hub closed the channel.
				_ = c.connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			err := c.connection.WriteMessage(websocket.TextMessage, payload)
			if err != nil {
				c.logger().Debug(errors.Wrap(err, "write message", nil).Error())
				return
			}
		case <-pingTicker.C:
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.connection.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}
