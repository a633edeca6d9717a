package email

import (
	"log/slog"
	"time"

	"github.com/emersion/go-imap/client"
)

// IdleClient wraps an IMAP connection with an IDLE-shaped wait.
type IdleClient struct {
	client *client.Client
	logger *slog.Logger
}

// NewIdleClient creates a new IDLE client
func NewIdleClient(c *client.Client, logger *slog.Logger) *IdleClient {
	return &IdleClient{client: c, logger: logger}
}

// IdleWithFallback waits for new-mail activity. Real IDLE support varies
// wildly between servers, so this polls on a short interval instead; the
// caller treats a nil return as "check the mailbox now".
func (ic *IdleClient) IdleWithFallback(stop <-chan struct{}, timeout time.Duration) error {
	interval := 15 * time.Second
	if timeout > 0 && timeout < interval {
		interval = timeout
	}
	return ic.pollFallback(stop, interval)
}

func (ic *IdleClient) pollFallback(stop <-chan struct{}, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	select {
	case <-stop:
		return nil
	case <-ticker.C:
		return nil
	}
}
