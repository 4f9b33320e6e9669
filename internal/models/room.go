package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Room is a direct-message conversation between a client and a worker.
// Participants keep the order in which the room was opened; PairKey is the
// order-independent identity used to deduplicate rooms.
type Room struct {
	ID string `gorm:"primaryKey" json:"id"`
	// PairKey is the sorted participant set plus the context reference.
	PairKey string `gorm:"uniqueIndex;not null" json:"-"`
	// Participants are the only users allowed to read or write the room.
	Participants pq.StringArray `gorm:"type:text[];not null" json:"participants"`
	// ContextRef optionally points at the job/task the conversation is about.
	ContextRef *string `gorm:"index" json:"contextRef,omitempty"`
	// LastMessage is a snippet of the newest message body.
	LastMessage string `gorm:"type:text" json:"lastMessage"`
	// LastMessageAt never moves backwards for a given room.
	LastMessageAt *time.Time `gorm:"index" json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`

	// UnreadCounts is loaded from room_members; it is not a column.
	UnreadCounts map[string]int `gorm:"-" json:"unreadCounts"`
}

// RoomMember holds the unread counter of one participant in one room.
type RoomMember struct {
	RoomID      string    `gorm:"primaryKey" json:"roomId"`
	UserID      string    `gorm:"primaryKey;index" json:"userId"`
	UnreadCount int       `gorm:"not null;default:0;check:unread_count >= 0" json:"unreadCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BeforeCreate generates a UUID for the room if none is set.
func (r *Room) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// HasParticipant reports whether userID may read the room.
func (r *Room) HasParticipant(userID string) bool {
	return lo.Contains([]string(r.Participants), userID)
}

// OtherParticipants returns every participant except userID.
func (r *Room) OtherParticipants(userID string) []string {
	return lo.Without([]string(r.Participants), userID)
}

// Clone returns a deep copy so callers can hand out snapshots.
func (r *Room) Clone() *Room {
	c := *r
	c.Participants = append(pq.StringArray(nil), r.Participants...)
	if r.ContextRef != nil {
		ref := *r.ContextRef
		c.ContextRef = &ref
	}
	if r.LastMessageAt != nil {
		at := *r.LastMessageAt
		c.LastMessageAt = &at
	}
	c.UnreadCounts = make(map[string]int, len(r.UnreadCounts))
	for k, v := range r.UnreadCounts {
		c.UnreadCounts[k] = v
	}
	return &c
}

// PairKey builds the dedupe key for a participant set and optional context.
// The participant order does not matter.
func PairKey(participants []string, contextRef *string) string {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)
	key := strings.Join(sorted, "|")
	if contextRef != nil && *contextRef != "" {
		key += "#" + *contextRef
	}
	return key
}

// SortRoomsByActivity orders rooms newest activity first. Rooms without
// messages go last, newest created first.
func SortRoomsByActivity(rooms []Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := rooms[i], rooms[j]
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt != nil:
			return a.LastMessageAt.After(*b.LastMessageAt)
		case a.LastMessageAt != nil:
			return true
		case b.LastMessageAt != nil:
			return false
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}
