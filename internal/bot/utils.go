package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"taskbot/internal/conversation"
)

// Reply sends a message with an optional inline keyboard to a chat
func (b *Bot) Reply(ctx context.Context, conversationID int64, r conversation.Reply) error {
	if b.sender == nil {
		return nil // For testing
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(conversationID, r.Text)
	if len(r.Buttons) > 0 {
		msg.ReplyMarkup = inlineKeyboard(r.Buttons)
	}
	_, err := b.sender.Send(msg)
	return err
}

func inlineKeyboard(buttons [][]conversation.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Data))
		}
		rows = append(rows, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) sendText(chatID int64, text string) {
	if b.sender == nil {
		return
	}
	if _, err := b.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// answerCallback removes the loading state of a pressed button
func (b *Bot) answerCallback(id string) {
	if b.sender == nil {
		return
	}
	if _, err := b.sender.Request(tgbotapi.NewCallback(id, "")); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}
