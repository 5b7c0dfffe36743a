package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
)

// CreateDirectChatRequest represents the direct chat creation request.
type CreateDirectChatRequest struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`
}

// CreateGroupChatRequest represents the group chat creation request.
type CreateGroupChatRequest struct {
	Participants []string `json:"participants"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Participants []string `json:"participants"`
	CreatedAt    string   `json:"created_at"`
}

// ChatListResponse represents the chat list response.
type ChatListResponse struct {
	Chats []ChatResponse `json:"chats"`
}

func chatResponse(chat *models.Chat) ChatResponse {
	participants := make([]string, len(chat.Participants))
	for i, p := range chat.Participants {
		participants[i] = p.String()
	}
	return ChatResponse{
		ID:           chat.ID.String(),
		Type:         string(chat.Type),
		Participants: participants,
		CreatedAt:    chat.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateDirectChat handles direct chat creation. The operation is
// idempotent: the same pair always maps to the same chat.
func (h *Handler) CreateDirectChat(w http.ResponseWriter, r *http.Request) {
	var req CreateDirectChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userA, err := uuid.Parse(req.UserA)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_a")
		return
	}
	userB, err := uuid.Parse(req.UserB)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_b")
		return
	}

	chat, err := h.dir.CreateDirect(r.Context(), userA, userB)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			h.Error(w, http.StatusNotFound, "UserNotFound")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	h.JSON(w, http.StatusCreated, chatResponse(chat))
}

// CreateGroupChat handles group chat creation. Unlike direct chats,
// every call creates a new chat.
func (h *Handler) CreateGroupChat(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Participants) == 0 {
		h.Error(w, http.StatusBadRequest, "participants is required")
		return
	}

	participants := make([]uuid.UUID, 0, len(req.Participants))
	for _, raw := range req.Participants {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid participant id")
			return
		}
		participants = append(participants, id)
	}

	chat, err := h.dir.CreateGroup(r.Context(), participants)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			h.Error(w, http.StatusNotFound, "UserNotFound")
			return
		}
		h.Error(w, http.StatusInternalServerError, "failed to create chat")
		return
	}

	h.JSON(w, http.StatusCreated, chatResponse(chat))
}

// ListChats handles fetching all chats a user participates in.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	if !h.userExists(w, r, userID) {
		return
	}

	chats, err := h.dir.ChatsFor(r.Context(), userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]ChatResponse, len(chats))
	for i := range chats {
		out[i] = chatResponse(&chats[i])
	}
	h.JSON(w, http.StatusOK, ChatListResponse{Chats: out})
}
