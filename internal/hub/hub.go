// Package hub is the websocket transport boundary. It upgrades
// connections, binds them to the session registry and routes inbound
// frames to the relay engine.
package hub

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/metrics"
	"github.com/parley-chat/parley/internal/registry"
	"github.com/parley-chat/parley/internal/relay"
	"github.com/parley-chat/parley/internal/store"
)

// Inbound and outbound event types.
const (
	EventConnected = "connected" // server -> client after upgrade
	EventSend      = "send"      // client -> server: send a message
	EventMessage   = "message"   // server -> client: pushed message
	EventAck       = "ack"       // server -> client: send committed
	EventDelivered = "delivered" // client -> server: delivery receipt
	EventRead      = "read"      // client -> server: read receipt
	EventError     = "error"     // server -> client: rejected send
)

// Event is the websocket frame envelope.
type Event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendPayload is the inbound send request.
type SendPayload struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// AckPayload acknowledges a committed send to its sender.
type AckPayload struct {
	MessageID string `json:"message_id"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"ts"`
	Status    string `json:"status"`
}

// ReceiptPayload carries a delivery or read receipt.
type ReceiptPayload struct {
	MessageID string `json:"message_id"`
}

// ErrorPayload reports a rejected send.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ConnectedPayload confirms a successful connection.
type ConnectedPayload struct {
	UserID string `json:"user_id"`
}

func mustEvent(eventType string, payload interface{}) Event {
	data, _ := json.Marshal(payload)
	return Event{Event: eventType, Payload: data}
}

// Hub upgrades websocket connections and owns their lifecycle.
type Hub struct {
	engine   *relay.Engine
	reg      *registry.Registry
	db       store.DataStore
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewHub creates a hub. An empty origin list allows all origins, which
// is only acceptable in development.
func NewHub(engine *relay.Engine, reg *registry.Registry, db store.DataStore, logger zerolog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		engine: engine,
		reg:    reg,
		db:     db,
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?user_id=. The user must exist; the connection
// is rejected before the upgrade otherwise.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, `{"error":"invalid user_id"}`, http.StatusBadRequest)
		return
	}

	user, err := h.db.GetUserByID(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error":"database error"}`, http.StatusInternalServerError)
		return
	}
	if user == nil || user.Retired {
		http.Error(w, `{"error":"UserNotFound"}`, http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(userID, conn, h)
	h.reg.Register(userID, client)
	metrics.WSConnections.Inc()

	h.logger.Info().
		Str("client_id", client.id).
		Str("user_id", userID.String()).
		Msg("client connected")

	go client.writePump()
	go client.readPump()

	client.enqueue(mustEvent(EventConnected, ConnectedPayload{UserID: userID.String()}))
}

// drop unbinds a client from the registry and records presence.
func (h *Hub) drop(c *Client) {
	h.reg.Unregister(c.userID, c)
	metrics.WSConnections.Dec()

	ctx, cancel := lifecycleContext()
	defer cancel()
	if err := h.db.UpdateLastSeen(ctx, c.userID, time.Now()); err != nil {
		h.logger.Debug().Err(err).Str("user_id", c.userID.String()).Msg("last seen update failed")
	}

	h.logger.Info().
		Str("client_id", c.id).
		Str("user_id", c.userID.String()).
		Msg("client disconnected")
}
