// Package directory resolves chat identifiers to their participant sets.
// It answers "who is in this chat", while the session registry answers
// "who is currently reachable".
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
	"github.com/parley-chat/parley/internal/store"
)

// Directory is the chat directory backed by a DataStore.
type Directory struct {
	db store.DataStore
}

// New creates a directory over the given store.
func New(db store.DataStore) *Directory {
	return &Directory{db: db}
}

// pairKey builds the canonical key for an unordered participant pair.
func pairKey(a, b uuid.UUID) string {
	if strings.Compare(a.String(), b.String()) > 0 {
		a, b = b, a
	}
	return fmt.Sprintf("%s:%s", a, b)
}

// CreateDirect returns the direct chat between the two users, creating it
// on first use. Calling it twice with the same pair (in either order)
// returns the same chat.
func (d *Directory) CreateDirect(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	for _, id := range []uuid.UUID{a, b} {
		user, err := d.db.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, models.ErrUserNotFound
		}
	}
	return d.db.CreateDirectChat(ctx, pairKey(a, b), a, b)
}

// CreateGroup creates a new group chat. Unlike CreateDirect it always
// creates, even for an identical participant set.
func (d *Directory) CreateGroup(ctx context.Context, participants []uuid.UUID) (*models.Chat, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("group chat requires at least one participant")
	}
	seen := make(map[uuid.UUID]struct{}, len(participants))
	deduped := make([]uuid.UUID, 0, len(participants))
	for _, id := range participants {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		user, err := d.db.GetUserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, models.ErrUserNotFound
		}
		deduped = append(deduped, id)
	}
	return d.db.CreateGroupChat(ctx, deduped)
}

// Get retrieves a chat by id.
func (d *Directory) Get(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	chat, err := d.db.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, models.ErrChatNotFound
	}
	return chat, nil
}

// ParticipantsOf returns the participant set of a chat.
func (d *Directory) ParticipantsOf(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	chat, err := d.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat.Participants, nil
}

// ChatsFor returns the chats a user participates in.
func (d *Directory) ChatsFor(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	return d.db.ListChatsForUser(ctx, userID)
}
