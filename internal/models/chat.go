package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatType distinguishes one-to-one chats from groups.
type ChatType string

const (
	ChatDirect ChatType = "direct"
	ChatGroup  ChatType = "group"
)

// Chat represents a conversation between a fixed set of participants.
// The participant set is immutable after creation and never empty.
type Chat struct {
	ID           uuid.UUID   `json:"id"`
	Type         ChatType    `json:"type"`
	Participants []uuid.UUID `json:"participants"`
	CreatedAt    time.Time   `json:"created_at"`
}

// HasParticipant reports whether the given user belongs to the chat.
func (c *Chat) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
