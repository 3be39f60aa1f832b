// Package statepublish fans out live-state changes and appended play-by-play
// entries to everything that wants to render them: venue scoreboards via the
// portal and spectator clients via the websocket hub.
package statepublish

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/ultiscore/ultiscore-server/errors"
	"github.com/ultiscore/ultiscore-server/event"
	"github.com/ultiscore/ultiscore-server/games"
	"github.com/ultiscore/ultiscore-server/portal"
	"github.com/ultiscore/ultiscore-server/store"
	"go.uber.org/zap"
)

// wsMessage is the envelope websocket clients receive.
type wsMessage struct {
	// Type distinguishes the payload. Either "state" or "event".
	Type string `json:"type"`
	// Payload is the actual message payload.
	Payload interface{} `json:"payload"`
}

// hub is the consumer-side interface of ws.Hub.
type hub interface {
	BroadcastToGame(ctx context.Context, gameID uuid.UUID, payload []byte)
}

// Publisher broadcasts live-state snapshots and appended events. Publishing is
// best-effort and never fails the causing operation.
type Publisher struct {
	logger *zap.Logger
	// portal publishes to the venue MQTT broker. May be nil when the server runs
	// without a broker.
	portal portal.Portal
	// hub broadcasts to subscribed websocket clients.
	hub hub
}

// NewPublisher creates a new Publisher ready to use. The portal may be nil
// when no MQTT broker is configured.
func NewPublisher(logger *zap.Logger, p portal.Portal, hub hub) *Publisher {
	return &Publisher{
		logger: logger,
		portal: p,
		hub:    hub,
	}
}

// NotifyGameStateUpdated publishes the given live-state snapshot for the game.
func (p *Publisher) NotifyGameStateUpdated(ctx context.Context, status games.Status, state store.LiveState) {
	payload := event.GameStateUpdatedPayloadFromStore(status, state)
	if p.portal != nil {
		p.portal.Publish(ctx, portal.GameStateTopic(state.GameID), payload)
	}
	p.broadcast(ctx, state.GameID, wsMessage{Type: "state", Payload: payload})
}

// NotifyGameEventAppended publishes the given appended play-by-play entry.
func (p *Publisher) NotifyGameEventAppended(ctx context.Context, e store.Event) {
	payload := event.GameEventAppendedPayloadFromStore(e)
	if p.portal != nil {
		p.portal.Publish(ctx, portal.GameEventsTopic(e.GameID), payload)
	}
	p.broadcast(ctx, e.GameID, wsMessage{Type: "event", Payload: payload})
}

// broadcast marshals the given message and hands it to the websocket hub.
func (p *Publisher) broadcast(ctx context.Context, gameID uuid.UUID, message wsMessage) {
	raw, err := json.Marshal(message)
	if err != nil {
		errors.Log(p.logger, errors.NewInternalErrorFromErr(err, "marshal ws message", errors.Details{
			"game": gameID,
			"type": message.Type,
		}))
		return
	}
	p.hub.BroadcastToGame(ctx, gameID, raw)
}
