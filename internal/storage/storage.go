package storage

import (
	"context"
	"errors"
	"time"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/models"

	"gorm.io/gorm"
)

// Storage is the persistence contract of the Room Directory and the
// Notification Fan-out. Mutating room methods are atomic per room.
type Storage interface {
	// CreateRoomIfAbsent inserts room unless a room with the same PairKey
	// exists. It returns the stored room and whether it was created.
	CreateRoomIfAbsent(ctx context.Context, room *models.Room) (*models.Room, bool, error)
	GetRoomByID(ctx context.Context, roomID string) (*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]models.Room, error)
	// AppendMessage stores msg, moves the room's last message forward and
	// increments the unread counter of every participant except the sender.
	AppendMessage(ctx context.Context, msg *models.Message) (*models.Room, error)
	// MarkSeen records that userID saw messageID and zeroes the user's unread
	// counter. The bool reports whether anything changed.
	MarkSeen(ctx context.Context, roomID, userID, messageID string) (*models.Room, bool, error)
	// ListMessages pages newest first by (createdAt, id); before excludes
	// itself and everything newer.
	ListMessages(ctx context.Context, roomID string, before *models.MessageCursor, limit int) ([]models.Message, error)

	SaveNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	// MarkNotificationsRead flips unread notifications owned by userID and
	// returns how many changed.
	MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error)

	LinkTelegramChat(ctx context.Context, userID string, chatID int64) error
	GetTelegramChatID(ctx context.Context, userID string) (int64, error)
	// SaveLinkCode stores code and drops every earlier code of its user.
	SaveLinkCode(ctx context.Context, code *models.TelegramLinkCode) error
	// ConsumeLinkCode deletes the code and returns its user. Unknown, used
	// and expired codes are ErrNotFound.
	ConsumeLinkCode(ctx context.Context, code string, now time.Time) (string, error)
}

// Service implements Storage on PostgreSQL through gorm.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

// Migrate creates or updates every table owned by this service.
func (s *Service) Migrate() error {
	return s.DB.AutoMigrate(
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
		&models.Notification{},
		&models.TelegramLink{},
		&models.TelegramLinkCode{},
	)
}

// translate maps gorm errors onto the domain taxonomy.
func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	return err
}

var (
	_ Storage = (*Service)(nil)
	_ Storage = (*MemoryStore)(nil)
)
