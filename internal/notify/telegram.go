package notify

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
)

// Alerter pushes operational alerts to a moderator Telegram chat. A nil
// *Alerter is a no-op, so callers never have to branch on whether alerts
// are configured.
type Alerter struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// NewAlerter creates a Telegram alerter
func NewAlerter(token string, chatID int64, logger *slog.Logger) (*Alerter, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, err
	}
	return &Alerter{
		bot:    b,
		chatID: chatID,
		logger: logger.With("component", "alerter"),
	}, nil
}

// Alert sends one message to the moderator chat. Failures are logged and
// swallowed; an alert must never break mail processing.
func (a *Alerter) Alert(ctx context.Context, text string) {
	if a == nil {
		return
	}
	_, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: a.chatID,
		Text:   text,
	})
	if err != nil {
		a.logger.Warn("failed to send alert", "error", err)
	}
}
