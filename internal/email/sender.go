package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// SenderConfig configuration for the SMTP sender
type SenderConfig struct {
	Server   string // hostname only
	Port     int    // 465 implies implicit TLS, anything else STARTTLS
	Address  string // the From address, also the SMTP login
	Password string
}

// Sender delivers bounce and confirmation mail through the site's SMTP
// account. One connection per message; outbound volume here is tiny.
type Sender struct {
	config SenderConfig
	logger *slog.Logger
}

// NewSender creates a new SMTP sender
func NewSender(cfg SenderConfig, logger *slog.Logger) *Sender {
	return &Sender{
		config: cfg,
		logger: logger.With("component", "smtp"),
	}
}

// Send builds an RFC-compliant plain text message and delivers it. replyTo
// may be empty; when set it steers the user's next reply to a tokenized
// address.
func (s *Sender) Send(ctx context.Context, to, replyTo, subject, body string) error {
	raw, err := s.buildMessage(to, replyTo, subject, body)
	if err != nil {
		return err
	}

	port := s.config.Port
	if port <= 0 {
		port = 465
	}
	addr := net.JoinHostPort(s.config.Server, strconv.Itoa(port))

	conn, err := s.dial(ctx, addr, port == 465)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Server)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if port != 465 {
		if err := client.StartTLS(&tls.Config{ServerName: s.config.Server}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	auth := smtp.PlainAuth("", s.config.Address, s.config.Password, s.config.Server)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	if err := client.Mail(s.config.Address); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data stream: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data stream: %w", err)
	}

	s.logger.Debug("mail sent", "to", to, "subject", subject)
	return client.Quit()
}

func (s *Sender) dial(ctx context.Context, addr string, implicitTLS bool) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if !implicitTLS {
		return conn, nil
	}
	return tls.Client(conn, &tls.Config{ServerName: s.config.Server}), nil
}

func (s *Sender) buildMessage(to, replyTo, subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: s.config.Address}})
	h.SetAddressList("To", []*mail.Address{{Address: sanitizeHeaderValue(to)}})
	if replyTo != "" {
		h.SetAddressList("Reply-To", []*mail.Address{{Address: sanitizeHeaderValue(replyTo)}})
	}
	h.SetSubject(sanitizeHeaderValue(subject))
	h.Set("Content-Type", "text/plain; charset=utf-8")

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeHeaderValue strips CR/LF to prevent header injection from
// user-controlled values.
func sanitizeHeaderValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
