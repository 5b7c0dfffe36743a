package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/parley-chat/parley/internal/metrics"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	ID         string `json:"id"`
	ProfileURL string `json:"profile_url"`
}

// Register handles user registration. Registration is idempotent by
// phone number: re-registering returns the existing user id.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.PhoneNumber == "" {
		h.Error(w, http.StatusBadRequest, "phone_number is required")
		return
	}
	if !isValidPhone(req.PhoneNumber) {
		h.Error(w, http.StatusBadRequest, "invalid phone_number format")
		return
	}

	name := sanitizeName(req.Name)

	// Check if phone number already registered
	existing, err := h.db.GetUserByPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if existing != nil {
		h.JSON(w, http.StatusOK, RegisterResponse{
			ID:         existing.ID.String(),
			ProfileURL: fmt.Sprintf("/users/%s", existing.ID.String()),
		})
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.PhoneNumber, name)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	metrics.UsersRegistered.Inc()

	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:         user.ID.String(),
		ProfileURL: fmt.Sprintf("/users/%s", user.ID.String()),
	})
}
