package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/internal/metrics"
	"github.com/parley-chat/parley/internal/models"
)

const (
	writeWait      = 10 * time.Second    // time allowed to write a frame to the peer
	pongWait       = 60 * time.Second    // time allowed to read the next pong
	pingInterval   = (pongWait * 9) / 10 // ping period, must be less than pongWait
	maxMessageSize = 16 * 1024           // max inbound frame size
	sendBufSize    = 256                 // per-connection outbound buffer
	enqueueTimeout = 2 * time.Second     // give up pushing to a slow consumer
)

func lifecycleContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// Client is one live websocket connection bound to a user. It implements
// registry.Conn: a Push that lands in the egress buffer counts as the
// transport acknowledging the message.
type Client struct {
	id     string
	userID uuid.UUID
	conn   *websocket.Conn
	hub    *Hub
	egress chan Event

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newClient(userID uuid.UUID, conn *websocket.Conn, h *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:     uuid.New().String(),
		userID: userID,
		conn:   conn,
		hub:    h,
		egress: make(chan Event, sendBufSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Push delivers a committed message to this connection. It fails with
// ErrTransportFailure when the connection is closed or the egress buffer
// stays full past the caller's deadline.
func (c *Client) Push(ctx context.Context, msg *models.Message) error {
	// A closed client's egress still has capacity; the buffered send
	// below could win the select and report a phantom delivery.
	if c.ctx.Err() != nil {
		return fmt.Errorf("%w: connection closed", models.ErrTransportFailure)
	}

	ev := mustEvent(EventMessage, msg)
	select {
	case c.egress <- ev:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("%w: connection closed", models.ErrTransportFailure)
	case <-ctx.Done():
		return fmt.Errorf("%w: push timed out", models.ErrTransportFailure)
	}
}

// enqueue queues an event for the write pump, disconnecting the client
// if its buffer stays full.
func (c *Client) enqueue(ev Event) {
	select {
	case c.egress <- ev:
	case <-c.ctx.Done():
	case <-time.After(enqueueTimeout):
		c.hub.logger.Warn().Str("client_id", c.id).Msg("egress full, dropping client")
		c.close()
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.conn.Close()
		c.hub.drop(c)
	})
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug().Err(err).Str("client_id", c.id).Msg("unexpected close")
			}
			return
		}

		c.hub.reg.Touch(c.userID)
		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev Event) {
	switch ev.Event {
	case EventSend:
		c.handleSend(ev.Payload)
	case EventDelivered:
		var receipt ReceiptPayload
		if err := json.Unmarshal(ev.Payload, &receipt); err != nil {
			return
		}
		c.hub.engine.MarkDelivered(receipt.MessageID, c.userID)
	case EventRead:
		var receipt ReceiptPayload
		if err := json.Unmarshal(ev.Payload, &receipt); err != nil {
			return
		}
		c.hub.engine.MarkRead(receipt.MessageID, c.userID)
		metrics.ReadReceipts.Inc()
	default:
		c.hub.logger.Debug().Str("event", ev.Event).Str("client_id", c.id).Msg("unknown event")
	}
}

// handleSend routes an inbound send through the relay engine. The sender
// identity is the connection's user, never taken from the payload.
func (c *Client) handleSend(payload json.RawMessage) {
	var req SendPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.enqueue(mustEvent(EventError, ErrorPayload{Error: "invalid payload"}))
		return
	}

	chatID, err := uuid.Parse(req.ChatID)
	if err != nil {
		c.enqueue(mustEvent(EventError, ErrorPayload{Error: "invalid chat_id"}))
		return
	}

	if req.Content == "" || len(req.Content) > 4096 {
		c.enqueue(mustEvent(EventError, ErrorPayload{Error: "invalid content"}))
		return
	}

	kind := models.MessageKind(req.Type)
	switch kind {
	case "":
		kind = models.KindText
	case models.KindText, models.KindMedia:
	default:
		c.enqueue(mustEvent(EventError, ErrorPayload{Error: "invalid type"}))
		return
	}

	ctx, cancel := lifecycleContext()
	msg, err := c.hub.engine.Send(ctx, chatID, c.userID, req.Content, kind)
	cancel()
	if err != nil {
		if errors.Is(err, models.ErrChatNotFound) || errors.Is(err, models.ErrNotParticipant) {
			c.enqueue(mustEvent(EventError, ErrorPayload{Error: err.Error()}))
		} else {
			c.enqueue(mustEvent(EventError, ErrorPayload{Error: "internal error"}))
		}
		return
	}

	c.enqueue(mustEvent(EventAck, AckPayload{
		MessageID: msg.ID,
		Seq:       msg.Seq,
		Timestamp: msg.Timestamp,
		Status:    string(models.StatusSent),
	}))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.hub.logger.Debug().Err(err).Str("client_id", c.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
