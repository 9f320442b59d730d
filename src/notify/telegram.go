package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends plain text events to one chat.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot against endpoint (tgbot.APIEndpoint when
// empty).
func NewTelegram(token string, chatID int64, endpoint string) (*Telegram, error) {
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}
	b, err := tgbot.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) Notify(_ context.Context, e Event) error {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, e.Text())); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
