// Package relay orchestrates send-and-fan-out: validate the sender
// against the chat directory, commit to the message log, then push the
// committed message to every live connection of every other participant.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/directory"
	"github.com/parley-chat/parley/internal/metrics"
	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/msglog"
	"github.com/parley-chat/parley/internal/registry"
)

const defaultPushTimeout = 2 * time.Second

// Engine accepts inbound sends and fans committed messages out to
// recipients.
type Engine struct {
	dir         *directory.Directory
	log         *msglog.Log
	reg         *registry.Registry
	logger      zerolog.Logger
	pushTimeout time.Duration
}

// NewEngine creates a relay engine over the given components.
func NewEngine(dir *directory.Directory, log *msglog.Log, reg *registry.Registry, logger zerolog.Logger) *Engine {
	return &Engine{
		dir:         dir,
		log:         log,
		reg:         reg,
		logger:      logger,
		pushTimeout: defaultPushTimeout,
	}
}

// Send validates, commits and acknowledges a message. Fan-out to
// recipients happens after the commit and never delays or fails the
// sender's acknowledgment. Validation failures leave the log untouched.
func (e *Engine) Send(ctx context.Context, chatID, senderID uuid.UUID, content string, kind models.MessageKind) (*models.Message, error) {
	participants, err := e.dir.ParticipantsOf(ctx, chatID)
	if err != nil {
		metrics.RelayRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	msg, err := e.log.Append(ctx, chatID, senderID, content, kind)
	if err != nil {
		metrics.RelayRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	metrics.MessagesSent.Inc()

	go e.fanOut(msg, participants)

	return msg, nil
}

// fanOut pushes a committed message to every recipient. Each recipient
// is delivered once at least one of their connections acknowledges; a
// failed push fails only that one push. Offline recipients stay at
// status sent and catch up via ListSince on reconnect.
func (e *Engine) fanOut(msg *models.Message, participants []uuid.UUID) {
	for _, userID := range participants {
		if userID == msg.SenderID {
			continue
		}
		go e.pushToUser(msg, userID)
	}
}

func (e *Engine) pushToUser(msg *models.Message, userID uuid.UUID) {
	conns := e.reg.ConnectionsFor(userID)
	if len(conns) == 0 {
		return
	}

	delivered := false
	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), e.pushTimeout)
		err := conn.Push(ctx, msg)
		cancel()
		if err != nil {
			metrics.FanoutPushes.WithLabelValues("failure").Inc()
			e.logger.Debug().
				Err(err).
				Str("message_id", msg.ID).
				Str("user_id", userID.String()).
				Msg("push failed")
			continue
		}
		metrics.FanoutPushes.WithLabelValues("success").Inc()
		delivered = true
	}

	if delivered {
		e.log.MarkDelivered(msg.ID, userID)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, models.ErrChatNotFound):
		return "chat_not_found"
	case errors.Is(err, models.ErrNotParticipant):
		return "not_participant"
	default:
		return "internal"
	}
}

// MarkDelivered records a delivery acknowledgment from a recipient.
func (e *Engine) MarkDelivered(messageID string, userID uuid.UUID) {
	e.log.MarkDelivered(messageID, userID)
}

// MarkRead records a read receipt from a recipient.
func (e *Engine) MarkRead(messageID string, userID uuid.UUID) {
	e.log.MarkRead(messageID, userID)
}
