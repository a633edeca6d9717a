package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/mixelka/replypost/internal/database"
	"github.com/mixelka/replypost/pkg/models"
)

// MessageHandler processes one fully decoded inbound message.
type MessageHandler func(ctx context.Context, msg *models.IncomingMessage)

// Intake runs the single intake mailbox: it keeps the connection alive,
// fetches everything above the persisted UID cursor and hands each message
// to the handler. The cursor only advances after the handler returns, so a
// crash re-delivers rather than drops.
type Intake struct {
	client  *Client
	db      *database.DB
	handler MessageHandler
	logger  *slog.Logger
}

// NewIntake creates the intake worker
func NewIntake(client *Client, db *database.DB, handler MessageHandler, logger *slog.Logger) *Intake {
	return &Intake{
		client:  client,
		db:      db,
		handler: handler,
		logger:  logger.With("component", "intake"),
	}
}

// Run connects, drains the backlog and then follows the mailbox until the
// context is cancelled.
func (i *Intake) Run(ctx context.Context) error {
	if err := i.client.Connect(ctx); err != nil {
		return err
	}
	if _, err := i.client.SelectINBOX(ctx); err != nil {
		return err
	}

	i.fetchNewMessages(ctx)

	return i.client.StartIDLE(ctx, func() {
		i.fetchNewMessages(ctx)
	})
}

// Stop shuts down the underlying IMAP connection.
func (i *Intake) Stop() {
	i.client.Stop()
}

func (i *Intake) fetchNewMessages(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	lastUID, err := i.db.GetLastUID(fetchCtx)
	if err != nil {
		i.logger.Error("failed to load UID cursor", "error", err)
		return
	}

	// Reselect in case the connection was rebuilt since the last fetch
	if _, err := i.client.SelectINBOX(fetchCtx); err != nil {
		i.logger.Error("failed to select INBOX", "error", err)
		return
	}

	messages, err := i.client.FetchNewMessages(fetchCtx, lastUID)
	if err != nil {
		i.logger.Error("failed to fetch messages", "error", err)
		return
	}
	if len(messages) > 0 {
		i.logger.Info("fetched new messages", "count", len(messages), "since_uid", lastUID)
	}

	for _, msg := range messages {
		i.handler(ctx, msg)

		if err := i.client.MarkAsRead(fetchCtx, msg.UID); err != nil {
			i.logger.Warn("failed to mark message as read", "uid", msg.UID, "error", err)
		}
		if msg.UID > lastUID {
			lastUID = msg.UID
			if err := i.db.SetLastUID(fetchCtx, lastUID); err != nil {
				i.logger.Error("failed to persist UID cursor", "uid", lastUID, "error", err)
			}
		}
	}
}
