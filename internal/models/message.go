package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Message is a single chat message stored in PostgreSQL.
type Message struct {
	ID string `gorm:"primaryKey" json:"id"`
	// RoomID is the room the message belongs to.
	RoomID string `gorm:"not null;index:idx_room_created" json:"roomId"`
	// SenderID is the participant who wrote the message.
	SenderID string `gorm:"type:text;not null" json:"senderId"`
	Body     string `gorm:"type:text;not null" json:"body"`
	// CreatedAt doubles as the room's lastMessageAt.
	CreatedAt time.Time `gorm:"not null;index:idx_room_created" json:"createdAt"`
	// SeenBy lists the users who marked this message seen.
	SeenBy pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"seenBy"`
}

// MessageCursor marks a position in a room's history. Messages order by
// (CreatedAt, ID) so equal timestamps still page deterministically.
type MessageCursor struct {
	CreatedAt time.Time
	// ID may be empty, which excludes every message at CreatedAt.
	ID string
}

// Older reports whether m sorts strictly before the cursor, i.e. belongs to
// the next older page.
func (c MessageCursor) Older(m Message) bool {
	if m.CreatedAt.Equal(c.CreatedAt) {
		return m.ID < c.ID
	}
	return m.CreatedAt.Before(c.CreatedAt)
}

// CursorOf returns the cursor just past m.
func CursorOf(m Message) *MessageCursor {
	return &MessageCursor{CreatedAt: m.CreatedAt, ID: m.ID}
}

// BeforeCreate generates a UUID for the message if none is set.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.SeenBy == nil {
		m.SeenBy = pq.StringArray{}
	}
	return
}
