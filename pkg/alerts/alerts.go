// Package alerts forwards operational failures to an operator.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/smith3v/aquamind/pkg/logger"
)

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop drops every alert.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }

// Telegram posts alerts into a single operator chat.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	prefix string
}

var ErrNoChat = errors.New("telegram alert chat id is not set")

// NewTelegram builds a notifier around the bot API. opts are passed to
// bot.New, which is how tests swap the HTTP client.
func NewTelegram(token string, chatID int64, opts ...bot.Option) (*Telegram, error) {
	if chatID == 0 {
		return nil, ErrNoChat
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID, prefix: "aquamind: "}, nil
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   t.prefix + text,
	})
	if err != nil {
		logger.Error("failed to send operator alert", "chat_id", t.chatID, "error", err)
		return err
	}
	return nil
}

// Raise sends an alert and only logs a delivery failure.
func Raise(ctx context.Context, n Notifier, format string, args ...any) {
	if n == nil {
		return
	}
	text := fmt.Sprintf(format, args...)
	logger.Warn("raising alert", "text", text)
	_ = n.Notify(ctx, text)
}
