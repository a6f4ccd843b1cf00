package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskbot/internal/conversation"
)

// Sink receives translated chat events
type Sink interface {
	Dispatch(ev conversation.Event) bool
}

// sender is the part of the Telegram API used to talk back to users
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api          *tgbotapi.BotAPI
	sender       sender
	sink         Sink
	allowedUsers map[int64]bool
	logger       *zap.Logger
}
