package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
)

// DataStore defines the interface for storage of users, contacts and chats.
// MemoryStore, SQLiteStore and PostgresStore implement this interface.
// Lookups return (nil, nil) when the record does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, phoneNumber, name string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID, t time.Time) error
	RetireUser(ctx context.Context, id uuid.UUID) error
	CountUsers(ctx context.Context) (int64, error)

	// Contact operations
	AddContact(ctx context.Context, userID, contactID uuid.UUID) error
	ListContacts(ctx context.Context, userID uuid.UUID) ([]models.User, error)

	// Chat operations. CreateDirectChat is atomic lookup-or-create keyed
	// by the unordered participant pair; CreateGroupChat always creates.
	CreateDirectChat(ctx context.Context, pairKey string, a, b uuid.UUID) (*models.Chat, error)
	CreateGroupChat(ctx context.Context, participants []uuid.UUID) (*models.Chat, error)
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
	CountChats(ctx context.Context) (int64, error)
}
