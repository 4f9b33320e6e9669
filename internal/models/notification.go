package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification is an entry of a user's notification feed.
// Once Read is true it is never reset.
type Notification struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;index:idx_user_created" json:"userId"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Read      bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt time.Time `gorm:"index:idx_user_created" json:"createdAt"`
}

// BeforeCreate generates a UUID for the notification if none is set.
func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}

// TelegramLinkCode is a single-use code that binds the Telegram chat which
// redeems it to UserID. Codes are 32 hex characters so they fit a
// t.me/<bot>?start=<code> deep link.
type TelegramLinkCode struct {
	Code      string    `gorm:"primaryKey" json:"code"`
	UserID    string    `gorm:"not null;index" json:"userId"`
	ExpiresAt time.Time `gorm:"not null" json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// TelegramLink maps a marketplace user to the Telegram chat used for
// offline notification pushes.
type TelegramLink struct {
	UserID    string    `gorm:"primaryKey" json:"userId"`
	ChatID    int64     `gorm:"not null" json:"chatId"`
	CreatedAt time.Time `json:"createdAt"`
}
