package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Forum API
	ForumAPIURL string `env:"FORUM_API_URL,required"` // e.g., https://forum.example.com
	ForumAPIKey string `env:"FORUM_API_KEY,required"`
	SiteName    string `env:"SITE_NAME" envDefault:"our Q&A forum"`
	RegisterURL string `env:"REGISTER_URL,required"`

	// Reply addresses
	ReplyDomain    string `env:"REPLY_DOMAIN,required"`   // e.g., reply.example.com
	IntakeAddress  string `env:"INTAKE_ADDRESS,required"` // e.g., ask@example.com
	TagsRequired   bool   `env:"TAGS_ARE_REQUIRED" envDefault:"false"`
	ReplySeparator string `env:"REPLY_SEPARATOR"` // marker embedded in outbound mail, if any

	// Reply tokens
	TokenLength    int           `env:"TOKEN_LENGTH" envDefault:"16"`
	TokenSingleUse bool          `env:"TOKEN_SINGLE_USE" envDefault:"false"`
	TokenTTL       time.Duration `env:"TOKEN_TTL"` // 0 means tokens never expire

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/replypost.db"`

	// Inbound mail
	IMAPServer      string        `env:"IMAP_SERVER"` // auto-resolved from INTAKE_ADDRESS when empty
	IMAPPassword    string        `env:"IMAP_PASSWORD,required"`
	IMAPIdleTimeout time.Duration `env:"IMAP_IDLE_TIMEOUT" envDefault:"25m"`
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// Outbound mail
	SMTPServer string `env:"SMTP_SERVER,required"`
	SMTPPort   int    `env:"SMTP_PORT" envDefault:"465"`

	// Attachments
	AttachmentDir     string `env:"ATTACHMENT_DIR" envDefault:"./data/attachments"`
	AttachmentBaseURL string `env:"ATTACHMENT_BASE_URL,required"`

	// Moderator alerts (optional)
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// AlertsEnabled returns true if the Telegram alert channel is configured
func (c *Config) AlertsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if !strings.Contains(cfg.IntakeAddress, "@") {
		return nil, fmt.Errorf("INTAKE_ADDRESS must be a full email address, got %q", cfg.IntakeAddress)
	}

	// Token codes below 8 characters are guessable
	if cfg.TokenLength < 8 {
		return nil, fmt.Errorf("TOKEN_LENGTH must be at least 8, got %d", cfg.TokenLength)
	}

	return cfg, nil
}
