// Package rooms is the Room Directory: the only writer of rooms and messages
// and the owner of the unread-count invariant.
package rooms

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"

	"github.com/lib/pq"
	"github.com/moby/locker"
)

// Emitter delivers server-to-client events.
type Emitter interface {
	SendToUsers(userIDs []string, ev models.Event)
}

// Directory serializes every mutation of a room behind a per-room lock in
// addition to the storage-level transaction.
type Directory struct {
	storage storage.Storage
	emitter Emitter
	locks   *locker.Locker
	now     func() time.Time
}

// NewDirectory creates a directory over s that emits through e.
func NewDirectory(s storage.Storage, e Emitter) *Directory {
	return &Directory{
		storage: s,
		emitter: e,
		locks:   locker.New(),
		now:     time.Now,
	}
}

// lock takes the named lock and returns its release. The locker drops a
// name once nobody holds or waits for it.
func (d *Directory) lock(name string) func() {
	d.locks.Lock(name)
	return func() {
		if err := d.locks.Unlock(name); err != nil {
			log.Printf("ERROR: releasing lock %s: %v", name, err)
		}
	}
}

// GetOrCreateRoom returns the room of the unordered pair (a, b) in the given
// context, creating it on first use.
func (d *Directory) GetOrCreateRoom(ctx context.Context, a, b string, contextRef *string) (*models.Room, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return nil, fmt.Errorf("room needs two distinct participants: %w", apperr.ErrInvalidInput)
	}
	if contextRef != nil && strings.TrimSpace(*contextRef) == "" {
		contextRef = nil
	}

	participants := pq.StringArray{a, b}
	key := models.PairKey(participants, contextRef)

	unlock := d.lock("pair:" + key)
	defer unlock()

	room, created, err := d.storage.CreateRoomIfAbsent(ctx, &models.Room{
		PairKey:      key,
		Participants: participants,
		ContextRef:   contextRef,
	})
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("INFO: room %s created for %s and %s", room.ID, a, b)
	}
	return room, nil
}

// AppendMessage stores a message and returns the updated room. Every
// participant receives an updatedRoom snapshot.
func (d *Directory) AppendMessage(ctx context.Context, roomID, senderID, body string) (*models.Room, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("empty message body: %w", apperr.ErrInvalidInput)
	}
	if len([]rune(body)) > config.MaxMessageBodyLength {
		return nil, fmt.Errorf("message body longer than %d characters: %w", config.MaxMessageBodyLength, apperr.ErrInvalidInput)
	}

	unlock := d.lock("room:" + roomID)
	defer unlock()

	msg := &models.Message{
		RoomID:    roomID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: d.now().UTC().Truncate(time.Microsecond),
	}
	room, err := d.storage.AppendMessage(ctx, msg)
	if err != nil {
		return nil, err
	}

	d.emitter.SendToUsers(room.Participants, models.Event{Name: models.EventUpdatedRoom, Payload: room.Clone()})
	return room, nil
}

// MarkSeen marks messageID seen by userID and zeroes the user's unread
// counter. When something changed, the other participants get a read
// receipt and the user's own sessions get the same event so they can zero
// their local counter. Repeated calls are no-ops.
func (d *Directory) MarkSeen(ctx context.Context, roomID, userID, messageID string) error {
	unlock := d.lock("room:" + roomID)
	defer unlock()

	room, changed, err := d.storage.MarkSeen(ctx, roomID, userID, messageID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	d.emitter.SendToUsers(room.Participants, models.Event{
		Name:    models.EventMessageSeen,
		Payload: models.MessageSeen{MessageID: messageID, UserID: userID, RoomID: roomID},
	})
	return nil
}

// GetRoom returns a room the user participates in.
func (d *Directory) GetRoom(ctx context.Context, roomID, userID string) (*models.Room, error) {
	room, err := d.storage.GetRoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, apperr.ErrForbidden
	}
	return room, nil
}

// ListRooms returns the user's rooms, newest activity first.
func (d *Directory) ListRooms(ctx context.Context, userID string) ([]models.Room, error) {
	return d.storage.ListRoomsForUser(ctx, userID)
}

// ListMessages pages through a room's history, newest first.
func (d *Directory) ListMessages(ctx context.Context, roomID, userID string, before *models.MessageCursor, limit int) ([]models.Message, error) {
	if _, err := d.GetRoom(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = config.DefaultHistoryLimit
	}
	if limit > config.MaxHistoryLimit {
		limit = config.MaxHistoryLimit
	}
	return d.storage.ListMessages(ctx, roomID, before, limit)
}
