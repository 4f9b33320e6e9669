// Package notify is the Notification Fan-out: every notification is
// persisted first and then pushed live to online users. Offline users read
// it later from the pull feed and, when a Telegram chat is linked, get a
// copy there.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"
)

// Presence answers whether a user has at least one live session.
type Presence interface {
	IsOnline(userID string) bool
}

// Emitter delivers server-to-client events.
type Emitter interface {
	SendToUsers(userIDs []string, ev models.Event)
}

// OfflineSender delivers a notification outside of the realtime channel.
type OfflineSender interface {
	SendOffline(ctx context.Context, n *models.Notification) error
}

// Service implements the notification operations.
type Service struct {
	storage  storage.Storage
	presence Presence
	emitter  Emitter
	offline  OfflineSender
}

// NewService Constructor
func NewService(s storage.Storage, p Presence, e Emitter) *Service {
	return &Service{
		storage:  s,
		presence: p,
		emitter:  e,
	}
}

// SetOfflineSender enables out-of-band delivery for users who are offline.
func (s *Service) SetOfflineSender(sender OfflineSender) {
	s.offline = sender
}

// Notify persists a notification and then tries to deliver it. Delivery is
// best effort; once the record is stored the call succeeds.
func (s *Service) Notify(ctx context.Context, userID, title, message string) (*models.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("notification without recipient: %w", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(title) == "" && strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("notification without text: %w", apperr.ErrInvalidInput)
	}

	n := &models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
	}
	if err := s.storage.SaveNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to save notification: %w", err)
	}

	if s.presence.IsOnline(userID) {
		live := *n
		s.emitter.SendToUsers([]string{userID}, models.Event{Name: models.EventNotification, Payload: &live})
		return n, nil
	}

	if s.offline != nil {
		offline := *n
		go s.sendOffline(&offline)
	}
	return n, nil
}

func (s *Service) sendOffline(n *models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), config.OfflinePushTimeout)
	defer cancel()

	if err := s.offline.SendOffline(ctx, n); err != nil {
		log.Printf("WARNING: offline delivery of notification %s to %s failed: %v", n.ID, n.UserID, err)
	}
}

// ListForUser returns the user's notifications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.storage.ListNotifications(ctx, userID)
}

// MarkRead marks one of the user's notifications read. A notification that
// belongs to someone else is reported as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.storage.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return apperr.ErrNotFound
	}
	if n.Read {
		return nil
	}
	_, err = s.storage.MarkNotificationsRead(ctx, userID, []string{id})
	return err
}

// MarkAllRead marks every listed notification the user owns as read.
// Unknown and foreign ids are skipped. It returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.storage.MarkNotificationsRead(ctx, userID, ids)
}
