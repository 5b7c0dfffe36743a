package handlers

import (
	"net/http"
	"time"
)

// StatsResponse represents the public stats response.
type StatsResponse struct {
	Users            int64  `json:"users"`
	Chats            int64  `json:"chats"`
	RetainedMessages int64  `json:"retained_messages"`
	OnlineUsers      int    `json:"online_users"`
	Timestamp        string `json:"timestamp"`
}

// Stats handles the public stats endpoint.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.CountUsers(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	chats, err := h.db.CountChats(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Users:            users,
		Chats:            chats,
		RetainedMessages: h.log.TotalMessages(),
		OnlineUsers:      h.reg.OnlineCount(),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	})
}
