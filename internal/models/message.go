package models

import "github.com/google/uuid"

// MessageKind describes the content payload of a message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindMedia MessageKind = "media"
)

// DeliveryStatus is the per-recipient lifecycle state of a message.
// Transitions only move forward: sent -> delivered -> read.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// Rank orders delivery statuses so monotonicity checks are a comparison.
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return 0
	}
}

// Message is an immutable entry in a chat's log. Seq is scoped to the
// owning chat and assigned in arrival order.
type Message struct {
	ID        string      `json:"id"` // ULID
	ChatID    uuid.UUID   `json:"chat_id"`
	SenderID  uuid.UUID   `json:"sender_id"`
	Seq       int64       `json:"seq"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"type"`
	Timestamp int64       `json:"ts"` // Unix ms
}
