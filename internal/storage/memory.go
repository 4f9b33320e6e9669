package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

// MemoryStore is an in-process Storage for single-node deployments without
// PostgreSQL and for tests. One mutex guards all state, which makes every
// room mutation atomic.
type MemoryStore struct {
	mu            sync.Mutex
	rooms         map[string]*models.Room
	roomsByPair   map[string]string
	messages      map[string]*models.Message
	roomMessages  map[string][]string
	notifications map[string]*models.Notification
	notifOrder    []string
	telegram      map[string]int64
	linkCodes     map[string]models.TelegramLinkCode
	now           func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:         make(map[string]*models.Room),
		roomsByPair:   make(map[string]string),
		messages:      make(map[string]*models.Message),
		roomMessages:  make(map[string][]string),
		notifications: make(map[string]*models.Notification),
		telegram:      make(map[string]int64),
		linkCodes:     make(map[string]models.TelegramLinkCode),
		now:           time.Now,
	}
}

func (m *MemoryStore) CreateRoomIfAbsent(_ context.Context, room *models.Room) (*models.Room, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.roomsByPair[room.PairKey]; ok {
		return m.rooms[id].Clone(), false, nil
	}

	stored := room.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	stored.UnreadCounts = make(map[string]int, len(stored.Participants))
	for _, userID := range stored.Participants {
		stored.UnreadCounts[userID] = 0
	}
	m.rooms[stored.ID] = stored
	m.roomsByPair[stored.PairKey] = stored.ID
	room.ID = stored.ID
	return stored.Clone(), true, nil
}

func (m *MemoryStore) GetRoomByID(_ context.Context, roomID string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return room.Clone(), nil
}

func (m *MemoryStore) ListRoomsForUser(_ context.Context, userID string) ([]models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := make([]models.Room, 0)
	for _, room := range m.rooms {
		if room.HasParticipant(userID) {
			rooms = append(rooms, *room.Clone())
		}
	}
	models.SortRoomsByActivity(rooms)
	return rooms, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg *models.Message) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[msg.RoomID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if !room.HasParticipant(msg.SenderID) {
		return nil, apperr.ErrForbidden
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	if room.LastMessageAt != nil && msg.CreatedAt.Before(*room.LastMessageAt) {
		msg.CreatedAt = *room.LastMessageAt
	}
	if msg.SeenBy == nil {
		msg.SeenBy = pq.StringArray{}
	}

	stored := *msg
	stored.SeenBy = append(pq.StringArray{}, msg.SeenBy...)
	m.messages[stored.ID] = &stored
	m.roomMessages[room.ID] = append(m.roomMessages[room.ID], stored.ID)

	at := stored.CreatedAt
	room.LastMessage = snippet(stored.Body)
	room.LastMessageAt = &at
	for _, userID := range room.OtherParticipants(msg.SenderID) {
		room.UnreadCounts[userID]++
	}
	return room.Clone(), nil
}

func (m *MemoryStore) MarkSeen(_ context.Context, roomID, userID, messageID string) (*models.Room, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, false, apperr.ErrNotFound
	}
	if !room.HasParticipant(userID) {
		return nil, false, apperr.ErrForbidden
	}
	msg, ok := m.messages[messageID]
	if !ok || msg.RoomID != roomID {
		return nil, false, apperr.ErrNotFound
	}

	changed := false
	if !lo.Contains([]string(msg.SeenBy), userID) {
		msg.SeenBy = append(msg.SeenBy, userID)
		changed = true
	}
	if room.UnreadCounts[userID] != 0 {
		room.UnreadCounts[userID] = 0
		changed = true
	}
	return room.Clone(), changed, nil
}

func (m *MemoryStore) ListMessages(_ context.Context, roomID string, before *models.MessageCursor, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := lo.Map(m.roomMessages[roomID], func(id string, _ int) *models.Message { return m.messages[id] })
	sort.Slice(history, func(i, j int) bool {
		a, b := history[i], history[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	out := make([]models.Message, 0, limit)
	for _, msg := range history {
		if len(out) == limit {
			break
		}
		if before != nil && !before.Older(*msg) {
			continue
		}
		c := *msg
		c.SeenBy = append(pq.StringArray{}, msg.SeenBy...)
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryStore) SaveNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if _, exists := m.notifications[n.ID]; exists {
		return fmt.Errorf("notification %s already exists: %w", n.ID, apperr.ErrInvalidInput)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	n.Read = false
	stored := *n
	m.notifOrder = append(m.notifOrder, n.ID)
	m.notifications[n.ID] = &stored
	return nil
}

func (m *MemoryStore) GetNotification(_ context.Context, id string) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	c := *n
	return &c, nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	feed := make([]models.Notification, 0)
	for i := len(m.notifOrder) - 1; i >= 0; i-- {
		if n := m.notifications[m.notifOrder[i]]; n.UserID == userID {
			feed = append(feed, *n)
		}
	}
	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].CreatedAt.After(feed[j].CreatedAt)
	})
	return feed, nil
}

func (m *MemoryStore) MarkNotificationsRead(_ context.Context, userID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	for _, id := range lo.Uniq(ids) {
		n, ok := m.notifications[id]
		if !ok || n.UserID != userID || n.Read {
			continue
		}
		n.Read = true
		changed++
	}
	return changed, nil
}

func (m *MemoryStore) LinkTelegramChat(_ context.Context, userID string, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.telegram[userID] = chatID
	return nil
}

func (m *MemoryStore) GetTelegramChatID(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chatID, ok := m.telegram[userID]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	return chatID, nil
}

func (m *MemoryStore) SaveLinkCode(_ context.Context, code *models.TelegramLinkCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, existing := range m.linkCodes {
		if existing.UserID == code.UserID {
			delete(m.linkCodes, key)
		}
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = m.now()
	}
	m.linkCodes[code.Code] = *code
	return nil
}

func (m *MemoryStore) ConsumeLinkCode(_ context.Context, code string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.linkCodes[code]
	if !ok || !stored.ExpiresAt.After(now) {
		return "", apperr.ErrNotFound
	}
	delete(m.linkCodes, code)
	return stored.UserID, nil
}
