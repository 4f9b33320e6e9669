package notify

import (
	"context"
	"errors"
	"fmt"

	"marketchat/backend/internal/apperr"
	"marketchat/backend/internal/localization"
	"marketchat/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bot is the part of *tgbotapi.BotAPI the sender needs.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatLinks resolves the Telegram chat linked to a user.
type ChatLinks interface {
	GetTelegramChatID(ctx context.Context, userID string) (int64, error)
}

// TelegramSender pushes notifications to the Telegram chat a user linked.
// Users without a linked chat are skipped silently.
type TelegramSender struct {
	bot       Bot
	links     ChatLinks
	localizer *localization.Localizer
	lang      string
}

// NewTelegramSender Constructor
func NewTelegramSender(bot Bot, links ChatLinks, localizer *localization.Localizer, lang string) *TelegramSender {
	return &TelegramSender{
		bot:       bot,
		links:     links,
		localizer: localizer,
		lang:      lang,
	}
}

// SendOffline implements OfflineSender.
func (t *TelegramSender) SendOffline(ctx context.Context, n *models.Notification) error {
	chatID, err := t.links.GetTelegramChatID(ctx, n.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve telegram chat: %w", err)
	}

	// Title and message come from other services; only the template carries markup.
	title := tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, n.Title)
	body := tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, n.Message)
	msg := tgbotapi.NewMessage(chatID, t.localizer.Format(t.lang, "notification_header", title, body))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
