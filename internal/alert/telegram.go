package alert

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends alerts to one chat through the Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot token and returns a sink for chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	return newTelegram(token, chatID, tgbotapi.APIEndpoint, &http.Client{Timeout: sendTimeout})
}

func newTelegram(token string, chatID int64, endpoint string, client *http.Client) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is not configured")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	slog.Info("Telegram alerts enabled", "username", bot.Self.UserName, "chat_id", chatID)
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Send posts msg to the chat. The Bot API client has no context support, so
// ctx only short-circuits sends that start after cancellation.
func (t *Telegram) Send(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(t.chatID, "⚠️ trendsync: "+msg)
	if _, err := t.bot.Send(m); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}
