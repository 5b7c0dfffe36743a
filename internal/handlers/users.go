package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// UserResponse represents the user profile response.
type UserResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	StatusText string `json:"status_text,omitempty"`
	Online     bool   `json:"online"`
	LastSeenAt string `json:"last_seen_at"`
	JoinedAt   string `json:"joined_at"`
}

// GetUser handles user profile lookup.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")

	id, err := uuid.Parse(idStr)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.db.GetUserByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "UserNotFound")
		return
	}

	lastSeen := user.LastSeenAt
	if t := h.reg.LastSeen(id); t.After(lastSeen) {
		lastSeen = t
	}

	h.JSON(w, http.StatusOK, UserResponse{
		ID:         user.ID.String(),
		Name:       user.Name,
		StatusText: user.StatusText,
		Online:     len(h.reg.ConnectionsFor(id)) > 0,
		LastSeenAt: lastSeen.UTC().Format(time.RFC3339),
		JoinedAt:   user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// RetireUser handles account deactivation. Records are soft-retired, not
// deleted; retired users can no longer open connections.
func (h *Handler) RetireUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	if !h.userExists(w, r, id) {
		return
	}

	if err := h.db.RetireUser(r.Context(), id); err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "retired"})
}
