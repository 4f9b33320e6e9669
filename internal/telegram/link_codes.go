package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"github.com/google/uuid"
)

// LinkCodeStore persists pending link codes.
type LinkCodeStore interface {
	SaveLinkCode(ctx context.Context, code *models.TelegramLinkCode) error
	ConsumeLinkCode(ctx context.Context, code string, now time.Time) (string, error)
}

// LinkCodes issues and redeems the codes users send the bot. A code is only
// good for one link and expires after ttl; issuing a new one revokes the old.
type LinkCodes struct {
	store LinkCodeStore
	ttl   time.Duration
	now   func() time.Time
}

// NewLinkCodes creates a code issuer over store. A non-positive ttl uses the default.
func NewLinkCodes(store LinkCodeStore, ttl time.Duration) *LinkCodes {
	if ttl <= 0 {
		ttl = config.TelegramLinkCodeTTL
	}
	return &LinkCodes{store: store, ttl: ttl, now: time.Now}
}

// SetClock replaces the time source.
func (l *LinkCodes) SetClock(now func() time.Time) {
	l.now = now
}

// Issue mints a fresh code for userID.
func (l *LinkCodes) Issue(ctx context.Context, userID string) (*models.TelegramLinkCode, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("link code needs a user: %w", apperr.ErrInvalidInput)
	}
	now := l.now().UTC()
	code := &models.TelegramLinkCode{
		Code:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		UserID:    userID,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	}
	if err := l.store.SaveLinkCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store link code: %w", err)
	}
	return code, nil
}

// Redeem consumes code and returns the user it was issued to.
func (l *LinkCodes) Redeem(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", apperr.ErrInvalidInput
	}
	return l.store.ConsumeLinkCode(ctx, code, l.now())
}

// DeepLink returns the t.me link that opens the bot with /start <code>.
func DeepLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUsername, code)
}
