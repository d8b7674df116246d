package alerts

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers alerts to a Telegram chat.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramSender creates a sender for the given bot token and chat.
func NewTelegramSender(token string, chatID int64) (*TelegramSender, error) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot, chatID: chatID}, nil
}

// Send delivers one message with Markdown formatting.
func (s *TelegramSender) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = "Markdown"
	_, err := s.bot.Send(msg)
	return err
}
