package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/directory"
	"github.com/parley-chat/parley/internal/identity"
	"github.com/parley-chat/parley/internal/msglog"
	"github.com/parley-chat/parley/internal/registry"
	"github.com/parley-chat/parley/internal/relay"
	"github.com/parley-chat/parley/internal/store"
)

// phoneRegex validates E.164-style phone numbers.
var phoneRegex = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	redis  *store.RedisStore
	dir    *directory.Directory
	log    *msglog.Log
	reg    *registry.Registry
	engine *relay.Engine
	otp    *identity.Service
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(db store.DataStore, redis *store.RedisStore, dir *directory.Directory, log *msglog.Log, reg *registry.Registry, engine *relay.Engine, otp *identity.Service) *Handler {
	return &Handler{
		db:     db,
		redis:  redis,
		dir:    dir,
		log:    log,
		reg:    reg,
		engine: engine,
		otp:    otp,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidPhone validates phone numbers.
func isValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// userExists checks that a user exists, writing the error response and
// returning false otherwise.
func (h *Handler) userExists(w http.ResponseWriter, r *http.Request, id uuid.UUID) bool {
	user, err := h.db.GetUserByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return false
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "UserNotFound")
		return false
	}
	return true
}
