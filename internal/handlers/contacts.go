package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
)

// ContactResponse represents one contact in API responses.
type ContactResponse struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name,omitempty"`
	LastSeenAt  string `json:"last_seen_at"`
}

// ContactListResponse represents the contact list response.
type ContactListResponse struct {
	Contacts []ContactResponse `json:"contacts"`
}

// AddContactRequest represents the add contact request body.
type AddContactRequest struct {
	UserID    string `json:"user_id"`
	ContactID string `json:"contact_id"`
}

// ListContacts handles fetching the contact list for a user.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	if !h.userExists(w, r, userID) {
		return
	}

	contacts, err := h.db.ListContacts(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			h.Error(w, http.StatusNotFound, "UserNotFound")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]ContactResponse, len(contacts))
	for i, c := range contacts {
		out[i] = ContactResponse{
			ID:          c.ID.String(),
			PhoneNumber: c.PhoneNumber,
			Name:        c.Name,
			LastSeenAt:  c.LastSeenAt.UTC().Format(time.RFC3339),
		}
	}

	h.JSON(w, http.StatusOK, ContactListResponse{Contacts: out})
}

// AddContact handles adding a contact to a user's list.
func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req AddContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user_id")
		return
	}
	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid contact_id")
		return
	}

	if !h.userExists(w, r, userID) || !h.userExists(w, r, contactID) {
		return
	}

	if err := h.db.AddContact(r.Context(), userID, contactID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			h.Error(w, http.StatusNotFound, "UserNotFound")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusCreated, map[string]string{"status": "added"})
}
