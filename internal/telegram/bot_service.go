// Package telegram runs the bot users talk to when they link a Telegram chat
// for offline notifications. A user asks the API for a link code, opens the
// bot with a deep link carrying it (/start <code>) and the chat is stored for
// that user.
package telegram

import (
	"context"
	"log"
	"strings"

	"marketchat/backend/internal/localization"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the service needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatLinker stores the chat a user linked.
type ChatLinker interface {
	LinkTelegramChat(ctx context.Context, userID string, chatID int64) error
}

// CodeRedeemer consumes a link code and returns the user it was issued to.
type CodeRedeemer interface {
	Redeem(ctx context.Context, code string) (string, error)
}

// BotService answers link commands.
type BotService struct {
	bot       Sender
	links     ChatLinker
	codes     CodeRedeemer
	localizer *localization.Localizer
	lang      string
}

// NewBotService creates a new BotService instance.
func NewBotService(bot Sender, links ChatLinker, codes CodeRedeemer, localizer *localization.Localizer, lang string) *BotService {
	return &BotService{
		bot:       bot,
		links:     links,
		codes:     codes,
		localizer: localizer,
		lang:      lang,
	}
}

// Run is the main loop for receiving Telegram updates.
func (s *BotService) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one update. Only direct messages are handled.
func (s *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	lang := s.lang
	if msg.From != nil && msg.From.LanguageCode != "" {
		lang = msg.From.LanguageCode
	}

	if !msg.IsCommand() {
		s.reply(msg.Chat.ID, lang, "link_help")
		return
	}

	switch msg.Command() {
	case "start", "link":
		s.handleLink(ctx, msg.Chat.ID, lang, strings.TrimSpace(msg.CommandArguments()))
	default:
		s.reply(msg.Chat.ID, lang, "link_help")
	}
}

func (s *BotService) handleLink(ctx context.Context, chatID int64, lang, code string) {
	if code == "" {
		s.reply(chatID, lang, "link_help")
		return
	}
	userID, err := s.codes.Redeem(ctx, code)
	if err != nil {
		log.Printf("WARNING: rejected telegram link for chat %d: %v", chatID, err)
		s.reply(chatID, lang, "link_invalid")
		return
	}
	if err := s.links.LinkTelegramChat(ctx, userID, chatID); err != nil {
		log.Printf("ERROR: failed to link telegram chat %d to %s: %v", chatID, userID, err)
		s.reply(chatID, lang, "link_failed")
		return
	}
	log.Printf("INFO: telegram chat %d linked to user %s", chatID, userID)
	s.reply(chatID, lang, "telegram_linked")
}

func (s *BotService) reply(chatID int64, lang, key string) {
	msg := tgbotapi.NewMessage(chatID, s.localizer.GetString(lang, key))
	if _, err := s.bot.Send(msg); err != nil {
		log.Printf("WARNING: failed to reply to telegram chat %d: %v", chatID, err)
	}
}
