package storage

import (
	"context"
	"log"
	"time"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveNotification persists a new unread notification.
func (s *Service) SaveNotification(ctx context.Context, n *models.Notification) error {
	n.Read = false
	if err := s.DB.WithContext(ctx).Create(n).Error; err != nil {
		log.Printf("ERROR: Failed to save notification for user %s: %v", n.UserID, err)
		return err
	}
	return nil
}

func (s *Service) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

// ListNotifications returns the user's feed, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	var feed []models.Notification
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&feed).Error
	if err != nil {
		log.Printf("ERROR: Failed to list notifications for user %s: %v", userID, err)
		return nil, err
	}
	return feed, nil
}

// MarkNotificationsRead only ever moves read from false to true.
func (s *Service) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND id IN ? AND read = ?", userID, ids, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// LinkTelegramChat stores or replaces the user's Telegram chat.
func (s *Service) LinkTelegramChat(ctx context.Context, userID string, chatID int64) error {
	link := models.TelegramLink{UserID: userID, ChatID: chatID}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_id"}),
	}).Create(&link).Error
}

func (s *Service) SaveLinkCode(ctx context.Context, code *models.TelegramLinkCode) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", code.UserID).Delete(&models.TelegramLinkCode{}).Error; err != nil {
			return err
		}
		return tx.Create(code).Error
	})
}

// ConsumeLinkCode deletes and reads the row in one statement so a code can
// be redeemed once even when two chats race for it.
func (s *Service) ConsumeLinkCode(ctx context.Context, code string, now time.Time) (string, error) {
	var row models.TelegramLinkCode
	res := s.DB.WithContext(ctx).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "user_id"}}}).
		Where("code = ? AND expires_at > ?", code, now).
		Delete(&row)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", apperr.ErrNotFound
	}
	return row.UserID, nil
}

func (s *Service) GetTelegramChatID(ctx context.Context, userID string) (int64, error) {
	var link models.TelegramLink
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&link).Error; err != nil {
		return 0, translate(err)
	}
	return link.ChatID, nil
}
