package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// NewBot creates a new Telegram bot. An empty allowlist admits everyone.
func NewBot(token string, allowedUserIDs []int64, logger *zap.Logger) (*Bot, error) {
	logger = logger.Named("bot")

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	allowedUsers := make(map[int64]bool)
	for _, id := range allowedUserIDs {
		allowedUsers[id] = true
	}

	logger.Info("Bot created", zap.String("bot_username", api.Self.UserName), zap.Int("allowed_users", len(allowedUsers)))

	return &Bot{
		api:          api,
		sender:       api,
		allowedUsers: allowedUsers,
		logger:       logger,
	}, nil
}

// SetSink sets where translated events go
func (b *Bot) SetSink(sink Sink) {
	b.sink = sink
}

// GetAPI returns the underlying bot API
func (b *Bot) GetAPI() *tgbotapi.BotAPI {
	return b.api
}

func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || b.allowedUsers[userID]
}
