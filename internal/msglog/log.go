// Package msglog keeps the append-only, per-chat ordered message log and
// the per-recipient delivery state of every message.
package msglog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/store"
)

// ChatSource resolves chat ids to chats. The chat directory implements it.
type ChatSource interface {
	Get(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)
}

// chatLog holds one chat's messages behind its own mutex. The mutex is
// the ordering gate: appends to the same chat serialize here, appends to
// different chats proceed independently.
type chatLog struct {
	mu       sync.Mutex
	nextSeq  int64
	messages []*models.Message
	status   map[string]map[uuid.UUID]models.DeliveryStatus
}

// Log is the process-wide message log.
type Log struct {
	mu    sync.RWMutex
	chats map[uuid.UUID]*chatLog
	index map[string]uuid.UUID // message id -> chat id

	source    ChatSource
	archive   *store.RedisStore // optional best-effort mirror
	retention int               // max retained messages per chat, 0 = unbounded
	logger    zerolog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithArchive mirrors committed messages into Redis. Archive failures are
// logged and never fail an append.
func WithArchive(archive *store.RedisStore) Option {
	return func(l *Log) { l.archive = archive }
}

// WithRetention bounds the number of messages retained per chat.
func WithRetention(n int) Option {
	return func(l *Log) { l.retention = n }
}

// New creates an empty log over the given chat source.
func New(source ChatSource, logger zerolog.Logger, opts ...Option) *Log {
	l := &Log{
		chats:  make(map[uuid.UUID]*chatLog),
		index:  make(map[string]uuid.UUID),
		source: source,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) chatLogFor(chatID uuid.UUID) *chatLog {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.chats[chatID]
	if !ok {
		cl = &chatLog{status: make(map[string]map[uuid.UUID]models.DeliveryStatus)}
		l.chats[chatID] = cl
	}
	return cl
}

// Append validates the sender against the chat's participant set, assigns
// the next sequence number for the chat and records the message. Nothing
// is written when validation fails.
func (l *Log) Append(ctx context.Context, chatID, senderID uuid.UUID, content string, kind models.MessageKind) (*models.Message, error) {
	chat, err := l.source.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(senderID) {
		return nil, models.ErrNotParticipant
	}

	cl := l.chatLogFor(chatID)

	cl.mu.Lock()
	cl.nextSeq++
	msg := &models.Message{
		ID:        ulid.Make().String(),
		ChatID:    chatID,
		SenderID:  senderID,
		Seq:       cl.nextSeq,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
	}
	cl.messages = append(cl.messages, msg)

	recipients := make(map[uuid.UUID]models.DeliveryStatus)
	for _, p := range chat.Participants {
		if p != senderID {
			recipients[p] = models.StatusSent
		}
	}
	cl.status[msg.ID] = recipients

	var evicted []string
	var evictedUpTo int64
	if l.retention > 0 && len(cl.messages) > l.retention {
		drop := len(cl.messages) - l.retention
		for _, old := range cl.messages[:drop] {
			evicted = append(evicted, old.ID)
			delete(cl.status, old.ID)
		}
		evictedUpTo = cl.messages[drop-1].Seq
		cl.messages = append([]*models.Message(nil), cl.messages[drop:]...)
	}
	cl.mu.Unlock()

	l.mu.Lock()
	l.index[msg.ID] = chatID
	for _, id := range evicted {
		delete(l.index, id)
	}
	l.mu.Unlock()

	if l.archive != nil {
		if err := l.archive.ArchiveMessage(ctx, msg); err != nil {
			l.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("message archive failed")
		}
		if evictedUpTo > 0 {
			if err := l.archive.TrimChat(ctx, chatID.String(), evictedUpTo); err != nil {
				l.logger.Warn().Err(err).Str("chat_id", chatID.String()).Msg("archive trim failed")
			}
		}
	}

	out := *msg
	return &out, nil
}

// ListSince returns the retained messages of a chat with seq greater than
// afterSeq, in sequence order.
func (l *Log) ListSince(ctx context.Context, chatID uuid.UUID, afterSeq int64) ([]models.Message, error) {
	if _, err := l.source.Get(ctx, chatID); err != nil {
		return nil, err
	}

	l.mu.RLock()
	cl, ok := l.chats[chatID]
	l.mu.RUnlock()
	if !ok {
		return []models.Message{}, nil
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	out := make([]models.Message, 0)
	for _, msg := range cl.messages {
		if msg.Seq > afterSeq {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (l *Log) withStatus(messageID string, fn func(statuses map[uuid.UUID]models.DeliveryStatus)) {
	l.mu.RLock()
	chatID, ok := l.index[messageID]
	if !ok {
		l.mu.RUnlock()
		return
	}
	cl := l.chats[chatID]
	l.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if statuses, ok := cl.status[messageID]; ok {
		fn(statuses)
	}
}

// advance moves a recipient's status forward. Attempts to regress are
// ignored, which also makes the operation idempotent.
func advance(statuses map[uuid.UUID]models.DeliveryStatus, userID uuid.UUID, to models.DeliveryStatus) {
	current, ok := statuses[userID]
	if !ok {
		return // not a recipient of this message
	}
	if to.Rank() > current.Rank() {
		statuses[userID] = to
	}
}

// MarkDelivered records that at least one of the user's connections
// acknowledged the message.
func (l *Log) MarkDelivered(messageID string, userID uuid.UUID) {
	l.withStatus(messageID, func(statuses map[uuid.UUID]models.DeliveryStatus) {
		advance(statuses, userID, models.StatusDelivered)
	})
}

// MarkRead records that the user has read the message.
func (l *Log) MarkRead(messageID string, userID uuid.UUID) {
	l.withStatus(messageID, func(statuses map[uuid.UUID]models.DeliveryStatus) {
		advance(statuses, userID, models.StatusRead)
	})
}

// StatusFor returns the delivery status of a message for one recipient.
// ok is false when the message is unknown or the user is not a recipient.
func (l *Log) StatusFor(messageID string, userID uuid.UUID) (status models.DeliveryStatus, ok bool) {
	l.withStatus(messageID, func(statuses map[uuid.UUID]models.DeliveryStatus) {
		status, ok = statuses[userID]
	})
	return status, ok
}

// TotalMessages returns the number of retained messages across all chats.
func (l *Log) TotalMessages() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total int64
	for _, cl := range l.chats {
		cl.mu.Lock()
		total += int64(len(cl.messages))
		cl.mu.Unlock()
	}
	return total
}
