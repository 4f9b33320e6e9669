package storage

import (
	"context"
	"log"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRoomIfAbsent inserts the room and its member rows in one transaction.
// A concurrent insert of the same pair loses on the unique pair_key and
// reads the winner back.
func (s *Service) CreateRoomIfAbsent(ctx context.Context, room *models.Room) (*models.Room, bool, error) {
	var stored models.Room
	created := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "pair_key"}},
			DoNothing: true,
		}).Create(room)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected > 0 {
			created = true
			members := lo.Map([]string(room.Participants), func(userID string, _ int) models.RoomMember {
				return models.RoomMember{RoomID: room.ID, UserID: userID}
			})
			if err := tx.Create(&members).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("pair_key = ?", room.PairKey).First(&stored).Error; err != nil {
			return translate(err)
		}
		return loadUnread(tx, &stored)
	})
	if err != nil {
		log.Printf("ERROR: Failed to create room %s: %v", room.PairKey, err)
		return nil, false, err
	}
	return &stored, created, nil
}

// GetRoomByID returns the room with its unread counters.
func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	db := s.DB.WithContext(ctx)
	if err := db.Where("id = ?", roomID).First(&room).Error; err != nil {
		return nil, translate(err)
	}
	if err := loadUnread(db, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// ListRoomsForUser returns every room the user participates in, newest activity first.
func (s *Service) ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error) {
	var rooms []models.Room
	db := s.DB.WithContext(ctx)

	err := db.Where("? = ANY(participants)", userID).
		Order("last_message_at DESC NULLS LAST").
		Order("created_at DESC").
		Find(&rooms).Error
	if err != nil {
		log.Printf("ERROR: Failed to list rooms for user %s: %v", userID, err)
		return nil, err
	}
	if len(rooms) == 0 {
		return rooms, nil
	}

	var members []models.RoomMember
	ids := lo.Map(rooms, func(r models.Room, _ int) string { return r.ID })
	if err := db.Where("room_id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}
	byRoom := lo.GroupBy(members, func(m models.RoomMember) string { return m.RoomID })
	for i := range rooms {
		rooms[i].UnreadCounts = unreadMap(byRoom[rooms[i].ID])
	}
	return rooms, nil
}

// AppendMessage runs under a row lock on the room so concurrent senders are
// serialized and unread increments are never lost.
func (s *Service) AppendMessage(ctx context.Context, msg *models.Message) (*models.Room, error) {
	var room models.Room

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", msg.RoomID).First(&room).Error; err != nil {
			return translate(err)
		}
		if !room.HasParticipant(msg.SenderID) {
			return apperr.ErrForbidden
		}

		if room.LastMessageAt != nil && msg.CreatedAt.Before(*room.LastMessageAt) {
			msg.CreatedAt = *room.LastMessageAt
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Room{}).Where("id = ?", room.ID).Updates(map[string]interface{}{
			"last_message":    snippet(msg.Body),
			"last_message_at": msg.CreatedAt,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.RoomMember{}).
			Where("room_id = ? AND user_id <> ?", room.ID, msg.SenderID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error; err != nil {
			return err
		}

		room.LastMessage = snippet(msg.Body)
		room.LastMessageAt = &msg.CreatedAt
		return loadUnread(tx, &room)
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// MarkSeen adds userID to the message's seen set and zeroes the user's counter.
func (s *Service) MarkSeen(ctx context.Context, roomID, userID, messageID string) (*models.Room, bool, error) {
	var room models.Room
	changed := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", roomID).First(&room).Error; err != nil {
			return translate(err)
		}
		if !room.HasParticipant(userID) {
			return apperr.ErrForbidden
		}

		var msg models.Message
		if err := tx.Where("id = ? AND room_id = ?", messageID, roomID).First(&msg).Error; err != nil {
			return translate(err)
		}

		if !lo.Contains([]string(msg.SeenBy), userID) {
			if err := tx.Model(&models.Message{}).Where("id = ?", msg.ID).
				UpdateColumn("seen_by", gorm.Expr("array_append(seen_by, ?)", userID)).Error; err != nil {
				return err
			}
			changed = true
		}

		res := tx.Model(&models.RoomMember{}).
			Where("room_id = ? AND user_id = ? AND unread_count <> 0", roomID, userID).
			UpdateColumn("unread_count", 0)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			changed = true
		}
		return loadUnread(tx, &room)
	})
	if err != nil {
		return nil, false, err
	}
	return &room, changed, nil
}

// ListMessages returns up to limit messages older than before, newest first.
func (s *Service) ListMessages(ctx context.Context, roomID string, before *models.MessageCursor, limit int) ([]models.Message, error) {
	var messages []models.Message
	q := s.DB.WithContext(ctx).Where("room_id = ?", roomID)
	if before != nil {
		q = q.Where("(created_at, id) < (?, ?)", before.CreatedAt, before.ID)
	}
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		log.Printf("ERROR: Failed to get messages for room %s: %v", roomID, err)
		return nil, err
	}
	return messages, nil
}

func loadUnread(db *gorm.DB, room *models.Room) error {
	var members []models.RoomMember
	if err := db.Where("room_id = ?", room.ID).Find(&members).Error; err != nil {
		return err
	}
	room.UnreadCounts = unreadMap(members)
	return nil
}

func unreadMap(members []models.RoomMember) map[string]int {
	counts := make(map[string]int, len(members))
	for _, m := range members {
		counts[m.UserID] = m.UnreadCount
	}
	return counts
}

// snippet trims a body to the length stored as lastMessage.
func snippet(body string) string {
	r := []rune(body)
	if len(r) <= config.LastMessageSnippet {
		return body
	}
	return string(r[:config.LastMessageSnippet])
}
