package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/metrics"
	"github.com/parley-chat/parley/internal/models"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
	Type     string `json:"type"`
}

// SendMessageResponse acknowledges a committed send.
type SendMessageResponse struct {
	MessageID string `json:"message_id"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Seq       int64  `json:"seq"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	Timestamp int64  `json:"ts"`
	Status    string `json:"status,omitempty"` // requesting recipient's status
}

// MessageListResponse represents the catch-up listing response.
type MessageListResponse struct {
	ChatID   string            `json:"chat_id"`
	Messages []MessageResponse `json:"messages"`
}

// ReadReceiptRequest represents the read receipt request body.
type ReadReceiptRequest struct {
	UserID string `json:"user_id"`
}

// SendMessage handles posting a message to a chat over REST. It goes
// through the same relay engine as websocket sends.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID format")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	senderID, err := uuid.Parse(req.SenderID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid sender_id")
		return
	}
	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > 4096 {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4096 bytes)")
		return
	}

	kind := models.MessageKind(req.Type)
	switch kind {
	case "":
		kind = models.KindText
	case models.KindText, models.KindMedia:
	default:
		h.Error(w, http.StatusBadRequest, "invalid type")
		return
	}

	msg, err := h.engine.Send(r.Context(), chatID, senderID, req.Content, kind)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChatNotFound):
			h.Error(w, http.StatusNotFound, "ChatNotFound")
		case errors.Is(err, models.ErrNotParticipant):
			h.Error(w, http.StatusForbidden, "NotParticipant")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	h.JSON(w, http.StatusCreated, SendMessageResponse{
		MessageID: msg.ID,
		Seq:       msg.Seq,
		Timestamp: msg.Timestamp,
		Status:    string(models.StatusSent),
	})
}

// ListMessages handles catch-up reads: all messages in a chat with seq
// greater than after_seq. When user_id identifies a recipient, each
// message carries that recipient's delivery status.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID format")
		return
	}

	var afterSeq int64
	if raw := r.URL.Query().Get("after_seq"); raw != "" {
		afterSeq, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || afterSeq < 0 {
			h.Error(w, http.StatusBadRequest, "invalid after_seq")
			return
		}
	}

	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	var forUser uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		forUser, err = uuid.Parse(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid user_id")
			return
		}
	}

	msgs, err := h.log.ListSince(r.Context(), chatID, afterSeq)
	if err != nil {
		if errors.Is(err, models.ErrChatNotFound) {
			h.Error(w, http.StatusNotFound, "ChatNotFound")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	// After a restart the in-memory log starts empty; fall back to the
	// Redis archive for history when it is configured.
	if len(msgs) == 0 && h.redis != nil {
		if archived, err := h.redis.ChatHistory(r.Context(), chatID.String(), afterSeq, limit); err == nil {
			msgs = archived
		}
	}

	if len(msgs) > limit {
		msgs = msgs[:limit]
	}

	out := make([]MessageResponse, len(msgs))
	for i, msg := range msgs {
		out[i] = MessageResponse{
			ID:        msg.ID,
			SenderID:  msg.SenderID.String(),
			Seq:       msg.Seq,
			Content:   msg.Content,
			Type:      string(msg.Kind),
			Timestamp: msg.Timestamp,
		}
		if forUser != uuid.Nil {
			if status, ok := h.log.StatusFor(msg.ID, forUser); ok {
				out[i].Status = string(status)
			}
		}
	}

	h.JSON(w, http.StatusOK, MessageListResponse{
		ChatID:   chatID.String(),
		Messages: out,
	})
}

// MarkRead handles a read receipt for a message.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var req ReadReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	h.engine.MarkRead(messageID, userID)
	metrics.ReadReceipts.Inc()

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
