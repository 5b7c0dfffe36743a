package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-chat/parley/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// RunMigrations creates the schema if it does not exist.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		phone_number TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		status_text TEXT DEFAULT '',
		retired BOOLEAN DEFAULT FALSE,
		last_seen_at TIMESTAMPTZ DEFAULT NOW(),
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS contacts (
		user_id UUID NOT NULL REFERENCES users(id),
		contact_id UUID NOT NULL REFERENCES users(id),
		PRIMARY KEY (user_id, contact_id)
	);

	CREATE TABLE IF NOT EXISTS chats (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		type TEXT NOT NULL,
		pair_key TEXT UNIQUE,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id UUID NOT NULL REFERENCES chats(id),
		user_id UUID NOT NULL,
		pos INT NOT NULL,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_participants_user ON chat_participants(user_id);
	`

	_, err = conn.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record. Registration is idempotent by
// phone number.
func (s *PostgresStore) CreateUser(ctx context.Context, phoneNumber, name string) (*models.User, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (phone_number, name)
		VALUES ($1, $2)
		ON CONFLICT (phone_number) DO NOTHING
	`, phoneNumber, name)
	if err != nil {
		return nil, err
	}
	return s.GetUserByPhone(ctx, phoneNumber)
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, phone_number, name, status_text, retired, last_seen_at, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.PhoneNumber,
		&user.Name,
		&user.StatusText,
		&user.Retired,
		&user.LastSeenAt,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserByPhone retrieves a user by phone number.
func (s *PostgresStore) GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, phone_number, name, status_text, retired, last_seen_at, created_at
		FROM users WHERE phone_number = $1
	`, phoneNumber).Scan(
		&user.ID,
		&user.PhoneNumber,
		&user.Name,
		&user.StatusText,
		&user.Retired,
		&user.LastSeenAt,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// UpdateLastSeen updates the presence timestamp for a user.
func (s *PostgresStore) UpdateLastSeen(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET last_seen_at = $2 WHERE id = $1
	`, id, t)
	return err
}

// RetireUser soft-retires a user.
func (s *PostgresStore) RetireUser(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET retired = TRUE WHERE id = $1
	`, id)
	return err
}

// CountUsers returns the total number of registered users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AddContact adds a contact relation. Duplicates are ignored.
func (s *PostgresStore) AddContact(ctx context.Context, userID, contactID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contacts (user_id, contact_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, contactID)
	return err
}

// ListContacts returns the contact list for a user.
func (s *PostgresStore) ListContacts(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.phone_number, u.name, u.status_text, u.retired, u.last_seen_at, u.created_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID,
			&user.PhoneNumber,
			&user.Name,
			&user.StatusText,
			&user.Retired,
			&user.LastSeenAt,
			&user.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateDirectChat returns the existing chat for the pair key, creating it
// if absent. The unique pair_key index keeps concurrent callers from
// producing two chats for the same pair.
func (s *PostgresStore) CreateDirectChat(ctx context.Context, pairKey string, a, b uuid.UUID) (*models.Chat, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var chatID uuid.UUID
	inserted := true
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (type, pair_key) VALUES ('direct', $1)
		ON CONFLICT (pair_key) DO NOTHING
		RETURNING id
	`, pairKey).Scan(&chatID)
	if errors.Is(err, pgx.ErrNoRows) {
		inserted = false
		err = tx.QueryRow(ctx, `SELECT id FROM chats WHERE pair_key = $1`, pairKey).Scan(&chatID)
	}
	if err != nil {
		return nil, err
	}

	if inserted {
		for i, p := range []uuid.UUID{a, b} {
			if _, err := tx.Exec(ctx, `
				INSERT INTO chat_participants (chat_id, user_id, pos) VALUES ($1, $2, $3)
			`, chatID, p, i); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return s.GetChat(ctx, chatID)
}

// CreateGroupChat creates a new group chat.
func (s *PostgresStore) CreateGroupChat(ctx context.Context, participants []uuid.UUID) (*models.Chat, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var chatID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO chats (type) VALUES ('group') RETURNING id
	`).Scan(&chatID); err != nil {
		return nil, err
	}
	for i, p := range participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_participants (chat_id, user_id, pos) VALUES ($1, $2, $3)
		`, chatID, p, i); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return s.GetChat(ctx, chatID)
}

// GetChat retrieves a chat with its participants.
func (s *PostgresStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	var typeStr string
	err := s.pool.QueryRow(ctx, `
		SELECT id, type, created_at FROM chats WHERE id = $1
	`, id).Scan(&chat.ID, &typeStr, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	chat.Type = models.ChatType(typeStr)

	rows, err := s.pool.Query(ctx, `
		SELECT user_id FROM chat_participants WHERE chat_id = $1 ORDER BY pos
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p uuid.UUID
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		chat.Participants = append(chat.Participants, p)
	}
	return chat, rows.Err()
}

// ListChatsForUser returns chats the user participates in.
func (s *PostgresStore) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chat_id FROM chat_participants WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		if chat != nil {
			chats = append(chats, *chat)
		}
	}
	return chats, nil
}

// CountChats returns the total number of chats.
func (s *PostgresStore) CountChats(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
