package ws

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// broadcast is a payload to deliver to all clients subscribed to a game.
type broadcast struct {
	gameID  uuid.UUID
	payload []byte
}

// subscriptionRequest is sent by clients that want to (un)subscribe live
// updates for a game.
type subscriptionRequest struct {
	client    *Client
	gameID    uuid.UUID
	subscribe bool
}

// Hub holds all active clients and manages centralized sending of live game
// updates to their subscribers.
type Hub struct {
	logger *zap.Logger
	// clients holds all online clients.
	clients map[*Client]struct{}
	// subscriptions holds the subscribed clients per game.
	subscriptions map[uuid.UUID]map[*Client]struct{}
	// register receives when a Client wants to register itself.
	register chan *Client
	// unregister receives when a Client wants to unregister itself.
	unregister chan *Client
	// subscriptionRequests receives subscription changes from clients.
	subscriptionRequests chan subscriptionRequest
	// broadcasts receives payloads to deliver to game subscribers.
	broadcasts chan broadcast
}

// NewHub creates a new Hub. Start it with Hub.Run.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:               logger,
		clients:              make(map[*Client]struct{}),
		subscriptions:        make(map[uuid.UUID]map[*Client]struct{}),
		register:             make(chan *Client),
		unregister:           make(chan *Client),
		subscriptionRequests: make(chan subscriptionRequest, 16),
		broadcasts:           make(chan broadcast, 256),
	}
}

// BroadcastToGame delivers the given payload to all clients currently
// subscribed to the game. Delivery is best-effort: slow clients are skipped.
func (h *Hub) BroadcastToGame(ctx context.Context, gameID uuid.UUID, payload []byte) {
	select {
	case <-ctx.Done():
	case h.broadcasts <- broadcast{gameID: gameID, payload: payload}:
	}
}

// Run starts the Hub. It blocks so you need to start a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Info("client connected", zap.String("client_id", c.ID.String()))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.dropSubscriptions(c)
				h.logger.Info("client disconnected", zap.String("client_id", c.ID.String()))
				// Close the send-channel which leads to stopping the write-pump.
				close(c.Send)
			}
		case request := <-h.subscriptionRequests:
			h.applySubscriptionRequest(request)
		case b := <-h.broadcasts:
			for c := range h.subscriptions[b.gameID] {
				select {
				case c.Send <- b.payload:
				default:
					h.logger.Debug("dropping broadcast for slow client",
						zap.String("client_id", c.ID.String()),
						zap.String("game_id", b.gameID.String()))
				}
			}
		}
	}
}

// applySubscriptionRequest adds or removes the subscription for the request's
// client.
func (h *Hub) applySubscriptionRequest(request subscriptionRequest) {
	if _, ok := h.clients[request.client]; !ok {
		return
	}
	subscribers, ok := h.subscriptions[request.gameID]
	if request.subscribe {
		if !ok {
			subscribers = make(map[*Client]struct{})
			h.subscriptions[request.gameID] = subscribers
		}
		subscribers[request.client] = struct{}{}
		return
	}
	if !ok {
		return
	}
	delete(subscribers, request.client)
	if len(subscribers) == 0 {
		delete(h.subscriptions, request.gameID)
	}
}

// dropSubscriptions removes all subscriptions of the given client.
func (h *Hub) dropSubscriptions(client *Client) {
	for gameID, subscribers := range h.subscriptions {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.subscriptions, gameID)
		}
	}
}
