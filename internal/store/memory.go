package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/models"
)

// MemoryStore is a process-local DataStore used in development and tests.
// All tables are cleared when the process restarts.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]*models.User
	phoneIndex  map[string]uuid.UUID
	contacts    map[uuid.UUID][]uuid.UUID
	chats       map[uuid.UUID]*models.Chat
	directIndex map[string]uuid.UUID // pair key -> chat id
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[uuid.UUID]*models.User),
		phoneIndex:  make(map[string]uuid.UUID),
		contacts:    make(map[uuid.UUID][]uuid.UUID),
		chats:       make(map[uuid.UUID]*models.Chat),
		directIndex: make(map[string]uuid.UUID),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// CreateUser creates a new user record.
func (s *MemoryStore) CreateUser(ctx context.Context, phoneNumber, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.phoneIndex[phoneNumber]; ok {
		return copyUser(s.users[id]), nil
	}

	now := time.Now()
	user := &models.User{
		ID:          uuid.New(),
		PhoneNumber: phoneNumber,
		Name:        name,
		LastSeenAt:  now,
		CreatedAt:   now,
	}
	s.users[user.ID] = user
	s.phoneIndex[phoneNumber] = user.ID
	return copyUser(user), nil
}

// GetUserByID retrieves a user by ID.
func (s *MemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyUser(s.users[id]), nil
}

// GetUserByPhone retrieves a user by phone number.
func (s *MemoryStore) GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.phoneIndex[phoneNumber]; ok {
		return copyUser(s.users[id]), nil
	}
	return nil, nil
}

// UpdateLastSeen updates the presence timestamp for a user.
func (s *MemoryStore) UpdateLastSeen(ctx context.Context, id uuid.UUID, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.LastSeenAt = t
	}
	return nil
}

// RetireUser soft-retires a user. Records are never deleted.
func (s *MemoryStore) RetireUser(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.Retired = true
	}
	return nil
}

// CountUsers returns the total number of users.
func (s *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

// AddContact adds contactID to userID's contact list. Adding an existing
// contact is a no-op.
func (s *MemoryStore) AddContact(ctx context.Context, userID, contactID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return models.ErrUserNotFound
	}
	if _, ok := s.users[contactID]; !ok {
		return models.ErrUserNotFound
	}
	for _, c := range s.contacts[userID] {
		if c == contactID {
			return nil
		}
	}
	s.contacts[userID] = append(s.contacts[userID], contactID)
	return nil
}

// ListContacts returns the contact list for a user.
func (s *MemoryStore) ListContacts(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return nil, models.ErrUserNotFound
	}
	contacts := make([]models.User, 0, len(s.contacts[userID]))
	for _, id := range s.contacts[userID] {
		if user, ok := s.users[id]; ok {
			contacts = append(contacts, *copyUser(user))
		}
	}
	return contacts, nil
}

// CreateDirectChat returns the existing chat for the pair key, creating it
// if absent. The check and the insert happen under one lock.
func (s *MemoryStore) CreateDirectChat(ctx context.Context, pairKey string, a, b uuid.UUID) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.directIndex[pairKey]; ok {
		return copyChat(s.chats[id]), nil
	}

	chat := &models.Chat{
		ID:           uuid.New(),
		Type:         models.ChatDirect,
		Participants: []uuid.UUID{a, b},
		CreatedAt:    time.Now(),
	}
	s.chats[chat.ID] = chat
	s.directIndex[pairKey] = chat.ID
	return copyChat(chat), nil
}

// CreateGroupChat creates a new group chat.
func (s *MemoryStore) CreateGroupChat(ctx context.Context, participants []uuid.UUID) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := &models.Chat{
		ID:           uuid.New(),
		Type:         models.ChatGroup,
		Participants: append([]uuid.UUID(nil), participants...),
		CreatedAt:    time.Now(),
	}
	s.chats[chat.ID] = chat
	return copyChat(chat), nil
}

// GetChat retrieves a chat by ID.
func (s *MemoryStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyChat(s.chats[id]), nil
}

// ListChatsForUser returns chats the user participates in.
func (s *MemoryStore) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chats []models.Chat
	for _, chat := range s.chats {
		if chat.HasParticipant(userID) {
			chats = append(chats, *copyChat(chat))
		}
	}
	return chats, nil
}

// CountChats returns the total number of chats.
func (s *MemoryStore) CountChats(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chats)), nil
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func copyChat(c *models.Chat) *models.Chat {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Participants = append([]uuid.UUID(nil), c.Participants...)
	return &cp
}
