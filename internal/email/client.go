package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	gomessage "github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"golang.org/x/net/html/charset"

	"github.com/mixelka/replypost/pkg/models"
)

func init() {
	// Decode legacy charsets (koi8-r, windows-1251, ...) instead of failing
	// the whole message
	gomessage.CharsetReader = charset.NewReaderLabel
}

// Oversized parts are truncated rather than rejected; a reply body never
// legitimately needs more than this.
const maxPartSize = 25 << 20

// ClientConfig configuration for the IMAP intake client
type ClientConfig struct {
	Address     string // the mailbox login, also the generic intake address
	Password    string
	Server      string // host:port
	ReplyDomain string // domain of the tokenized reply addresses
	IdleTimeout time.Duration
	DialTimeout time.Duration
}

// Client is the IMAP client for the intake mailbox. The reply domain is a
// catch-all, so every tokenized address lands here alongside the generic
// intake address.
type Client struct {
	config    ClientConfig
	client    *client.Client
	logger    *slog.Logger
	mu        sync.Mutex
	connected bool
	stopCh    chan struct{}
	stopped   bool
}

// NewClient creates a new IMAP client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger.With("component", "imap", "mailbox", cfg.Address),
		stopCh: make(chan struct{}),
	}
}

// Connect connects to the IMAP server
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	c.logger.Info("connecting to IMAP server", "server", c.config.Server)

	timeout := c.config.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.config.Server, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}

	if err := imapClient.Login(c.config.Address, c.config.Password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	c.client = imapClient
	c.connected = true
	c.logger.Info("connected to IMAP server")

	return nil
}

// SelectINBOX selects the INBOX mailbox
func (c *Client) SelectINBOX(ctx context.Context) (*imap.MailboxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	mbox, err := c.client.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	return mbox, nil
}

// FetchNewMessages fetches messages with UID > sinceUID, fully decoded into
// their MIME parts. Messages that cannot be parsed are skipped with a
// warning; they would fail identically on every retry.
func (c *Client) FetchNewMessages(ctx context.Context, sinceUID uint32) ([]*models.IncomingMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(sinceUID+1, 0) // 0 means * (all)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchBody}
	section := &imap.BodySectionName{}
	items = append(items, section.FetchItem())

	messages := make(chan *imap.Message, 100)
	done := make(chan error, 1)

	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var result []*models.IncomingMessage
	for msg := range messages {
		// The open-ended UID range echoes back the boundary message itself
		if msg.Uid <= sinceUID {
			continue
		}
		parsed, err := c.parseMessage(msg, section)
		if err != nil {
			c.logger.Warn("failed to parse message", "uid", msg.Uid, "error", err)
			continue
		}
		result = append(result, parsed)
	}

	if err := <-done; err != nil {
		return result, fmt.Errorf("failed to fetch: %w", err)
	}

	return result, nil
}

// parseMessage decodes one IMAP message into an IncomingMessage.
func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*models.IncomingMessage, error) {
	parsed := &models.IncomingMessage{UID: msg.Uid}

	if msg.Envelope != nil {
		parsed.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			parsed.FromAddress = strings.ToLower(msg.Envelope.From[0].Address())
		}
		parsed.ToAddress = c.pickRecipient(msg.Envelope)
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return nil, fmt.Errorf("no body section")
	}

	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("failed to read part", "uid", msg.Uid, "error", err)
			break
		}

		data, err := io.ReadAll(io.LimitReader(part.Body, maxPartSize))
		if err != nil {
			c.logger.Warn("failed to read part body", "uid", msg.Uid, "error", err)
			continue
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, ctParams, _ := h.ContentType()
			_, dispParams, _ := h.ContentDisposition()
			filename, ok := dispParams["filename"]
			if !ok {
				filename = ctParams["name"]
			}
			if filename == "" && strings.HasPrefix(contentType, "text/") {
				parsed.Parts = append(parsed.Parts, models.Part{
					Kind:        models.PartBody,
					ContentType: contentType,
					Data:        data,
				})
				continue
			}
			parsed.Parts = append(parsed.Parts, models.Part{
				Kind:        models.PartInline,
				Filename:    filename,
				ContentType: contentType,
				Data:        data,
			})

		case *mail.AttachmentHeader:
			contentType, _, _ := h.ContentType()
			filename, _ := h.Filename()
			parsed.Parts = append(parsed.Parts, models.Part{
				Kind:        models.PartAttachment,
				Filename:    filename,
				ContentType: contentType,
				Data:        data,
			})
		}
	}

	return parsed, nil
}

// pickRecipient chooses the envelope recipient this service was addressed
// as. Tokenized reply addresses win over the generic intake address, which
// matters when a user replies-all.
func (c *Client) pickRecipient(env *imap.Envelope) string {
	recipients := make([]string, 0, len(env.To)+len(env.Cc))
	for _, addr := range env.To {
		recipients = append(recipients, strings.ToLower(addr.Address()))
	}
	for _, addr := range env.Cc {
		recipients = append(recipients, strings.ToLower(addr.Address()))
	}

	replySuffix := "@" + strings.ToLower(c.config.ReplyDomain)
	for _, addr := range recipients {
		if strings.HasSuffix(addr, replySuffix) && addr != strings.ToLower(c.config.Address) {
			return addr
		}
	}
	for _, addr := range recipients {
		if addr == strings.ToLower(c.config.Address) {
			return addr
		}
	}
	if len(recipients) > 0 {
		return recipients[0]
	}
	return ""
}

// MarkAsRead marks a message as read (adds \Seen flag)
func (c *Client) MarkAsRead(ctx context.Context, uid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := c.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}

	return nil
}

// StartIDLE blocks in IMAP IDLE and calls onNewMail whenever the server
// reports activity. Reconnects on errors until the context is done or Stop
// is called.
func (c *Client) StartIDLE(ctx context.Context, onNewMail func()) error {
	c.logger.Info("starting IDLE mode")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		default:
		}

		c.mu.Lock()
		if !c.connected || c.client == nil {
			c.mu.Unlock()
			if err := c.Connect(ctx); err != nil {
				c.logger.Error("failed to reconnect", "error", err)
				time.Sleep(10 * time.Second)
				continue
			}
			if _, err := c.SelectINBOX(ctx); err != nil {
				c.logger.Error("failed to select INBOX after reconnect", "error", err)
				time.Sleep(10 * time.Second)
				continue
			}
			c.mu.Lock()
		}
		idleClient := NewIdleClient(c.client, c.logger)
		c.mu.Unlock()

		stopIdle := make(chan struct{})
		idleDone := make(chan error, 1)
		go func() {
			idleDone <- idleClient.IdleWithFallback(stopIdle, c.config.IdleTimeout)
		}()

		select {
		case <-ctx.Done():
			close(stopIdle)
			return ctx.Err()
		case <-c.stopCh:
			close(stopIdle)
			return nil
		case err := <-idleDone:
			if err != nil {
				c.logger.Warn("IDLE error", "error", err)
				c.handleDisconnect()
				time.Sleep(5 * time.Second)
				continue
			}
		}

		onNewMail()
	}
}

// handleDisconnect handles a disconnect event
func (c *Client) handleDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connected = false
	if c.client != nil {
		c.client.Logout()
		c.client = nil
	}
}

// Stop stops the client
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	imapClient := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	close(c.stopCh)

	if imapClient != nil {
		go func() {
			done := make(chan struct{})
			go func() {
				imapClient.Logout()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				imapClient.Terminate()
			}
		}()
	}
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
