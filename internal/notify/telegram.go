// Package notify sends operational alerts to operators.
package notify

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/agent-arena/pkg/utils"
)

// Notifier delivers one alert message
type Notifier interface {
	Send(ctx context.Context, msg string) error
}

// Nop drops every message
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }

// Telegram posts alerts to a single chat
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *utils.Logger
}

// NewTelegram authorizes the bot against the Telegram API
func NewTelegram(token string, chatID int64, logger *utils.Logger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, chatID, &http.Client{}, logger)
}

// NewTelegramWithEndpoint is NewTelegram against a custom API endpoint, in
// the "https://host/bot%s/%s" form
func NewTelegramWithEndpoint(token, endpoint string, chatID int64, client *http.Client, logger *utils.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram alerts need a bot token and a chat id")
	}
	if logger == nil {
		logger = utils.Default()
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram alerts authorized: @%s", bot.Self.UserName)
	return &Telegram{api: bot, chatID: chatID, logger: logger.Named("notify")}, nil
}

// Send posts msg as plain text
func (t *Telegram) Send(ctx context.Context, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message := tgbotapi.NewMessage(t.chatID, msg)
	message.ParseMode = ""
	if _, err := t.api.Send(message); err != nil {
		t.logger.Error("Failed to send alert: %v", err)
		return fmt.Errorf("send telegram alert: %w", err)
	}
	return nil
}

// Log writes alerts to the logger instead of a chat
type Log struct {
	Logger *utils.Logger
}

func (l Log) Send(_ context.Context, msg string) error {
	logger := l.Logger
	if logger == nil {
		logger = utils.Default()
	}
	logger.Warn("ALERT: %s", msg)
	return nil
}
