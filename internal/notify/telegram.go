package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier posts operational alerts to a single ops chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

func NewTelegramNotifier(api *tgbotapi.BotAPI, chatID int64, log *slog.Logger) *TelegramNotifier {
	return &TelegramNotifier{api: api, chatID: chatID, log: log}
}

// Dial authenticates token against the Bot API and returns a notifier for chatID.
func Dial(token string, chatID int64, log *slog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	return NewTelegramNotifier(api, chatID, log), nil
}

// Alert sends text to the ops chat. The Bot API client has no context
// support, so ctx only bounds how long the caller waits.
func (n *TelegramNotifier) Alert(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := n.api.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send telegram alert: %w", err)
		}
		return nil
	case <-ctx.Done():
		n.log.Warn("telegram alert abandoned", "chat_id", n.chatID, "err", ctx.Err())
		return ctx.Err()
	}
}
