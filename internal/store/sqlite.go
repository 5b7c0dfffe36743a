package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/parley-chat/parley/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/parley.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/parley.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		phone_number TEXT UNIQUE NOT NULL,
		name TEXT DEFAULT '',
		status_text TEXT DEFAULT '',
		retired INTEGER DEFAULT 0,
		last_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS contacts (
		user_id TEXT NOT NULL REFERENCES users(id),
		contact_id TEXT NOT NULL REFERENCES users(id),
		PRIMARY KEY (user_id, contact_id)
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		pair_key TEXT UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id TEXT NOT NULL REFERENCES chats(id),
		user_id TEXT NOT NULL,
		pos INTEGER NOT NULL,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone_number);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON chat_participants(user_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record. Registration is idempotent by
// phone number.
func (s *SQLiteStore) CreateUser(ctx context.Context, phoneNumber, name string) (*models.User, error) {
	id := uuid.New().String()
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO users (id, phone_number, name, last_seen_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, phoneNumber, name, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByPhone(ctx, phoneNumber)
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var idStr string
	var retiredInt int
	err := row.Scan(
		&idStr,
		&user.PhoneNumber,
		&user.Name,
		&user.StatusText,
		&retiredInt,
		&user.LastSeenAt,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	user.Retired = retiredInt == 1
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, phone_number, name, status_text, retired, last_seen_at, created_at
		FROM users WHERE id = ?
	`, id.String()))
}

// GetUserByPhone retrieves a user by phone number.
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, phone_number, name, status_text, retired, last_seen_at, created_at
		FROM users WHERE phone_number = ?
	`, phoneNumber))
}

// UpdateLastSeen updates the presence timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_seen_at = ? WHERE id = ?
	`, t, id.String())
	return err
}

// RetireUser soft-retires a user.
func (s *SQLiteStore) RetireUser(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET retired = 1 WHERE id = ?
	`, id.String())
	return err
}

// CountUsers returns the total number of registered users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// AddContact adds a contact relation. Duplicates are ignored.
func (s *SQLiteStore) AddContact(ctx context.Context, userID, contactID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO contacts (user_id, contact_id) VALUES (?, ?)
	`, userID.String(), contactID.String())
	return err
}

// ListContacts returns the contact list for a user.
func (s *SQLiteStore) ListContacts(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.phone_number, u.name, u.status_text, u.retired, u.last_seen_at, u.created_at
		FROM contacts c
		JOIN users u ON u.id = c.contact_id
		WHERE c.user_id = ?
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var idStr string
		var retiredInt int
		err := rows.Scan(
			&idStr,
			&user.PhoneNumber,
			&user.Name,
			&user.StatusText,
			&retiredInt,
			&user.LastSeenAt,
			&user.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		user.ID = uuid.MustParse(idStr)
		user.Retired = retiredInt == 1
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateDirectChat returns the existing chat for the pair key, creating it
// if absent. INSERT OR IGNORE plus the unique pair_key index makes the
// lookup-or-create atomic under concurrent callers.
func (s *SQLiteStore) CreateDirectChat(ctx context.Context, pairKey string, a, b uuid.UUID) (*models.Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id := uuid.New().String()
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO chats (id, type, pair_key, created_at)
		VALUES (?, 'direct', ?, ?)
	`, id, pairKey, time.Now())
	if err != nil {
		return nil, err
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if inserted > 0 {
		for i, p := range []uuid.UUID{a, b} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chat_participants (chat_id, user_id, pos) VALUES (?, ?, ?)
			`, id, p.String(), i); err != nil {
				return nil, err
			}
		}
	}

	var chatID string
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM chats WHERE pair_key = ?
	`, pairKey).Scan(&chatID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetChat(ctx, uuid.MustParse(chatID))
}

// CreateGroupChat creates a new group chat.
func (s *SQLiteStore) CreateGroupChat(ctx context.Context, participants []uuid.UUID) (*models.Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, type, created_at) VALUES (?, 'group', ?)
	`, id, time.Now()); err != nil {
		return nil, err
	}
	for i, p := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_participants (chat_id, user_id, pos) VALUES (?, ?, ?)
		`, id, p.String(), i); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetChat(ctx, uuid.MustParse(id))
}

// GetChat retrieves a chat with its participants.
func (s *SQLiteStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	var idStr, typeStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, created_at FROM chats WHERE id = ?
	`, id.String()).Scan(&idStr, &typeStr, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	chat.ID = uuid.MustParse(idStr)
	chat.Type = models.ChatType(typeStr)

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY pos
	`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		chat.Participants = append(chat.Participants, uuid.MustParse(p))
	}
	return chat, rows.Err()
}

// ListChatsForUser returns chats the user participates in.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id FROM chat_participants WHERE user_id = ?
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		ids = append(ids, uuid.MustParse(idStr))
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
func (s *SQLiteStore) CountChats(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
