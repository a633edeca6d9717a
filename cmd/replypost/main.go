package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mixelka/replypost/internal/config"
	"github.com/mixelka/replypost/internal/database"
	"github.com/mixelka/replypost/internal/email"
	"github.com/mixelka/replypost/internal/formatter"
	"github.com/mixelka/replypost/internal/forum"
	"github.com/mixelka/replypost/internal/notify"
	"github.com/mixelka/replypost/internal/orchestrator"
	"github.com/mixelka/replypost/internal/parser"
	"github.com/mixelka/replypost/internal/registry"
	"github.com/mixelka/replypost/internal/storage"
	"github.com/mixelka/replypost/internal/stripper"
	"github.com/mixelka/replypost/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting reply-by-email gateway")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Build the processing pipeline
	strip := stripper.New(stripper.DefaultRules(), logger)
	htmlParser := parser.NewHTMLParser()

	store, err := storage.NewDiskStore(cfg.AttachmentDir, cfg.AttachmentBaseURL, logger)
	if err != nil {
		logger.Error("failed to set up attachment storage", "error", err)
		os.Exit(1)
	}

	parts := parser.NewPartProcessor(strip, htmlParser, store, cfg.IntakeAddress, cfg.ReplySeparator, logger)

	reg := registry.New(db, cfg.ReplyDomain, cfg.TokenLength, []string{"welcome-"}, registry.Policy{
		SingleUse: cfg.TokenSingleUse,
		TTL:       cfg.TokenTTL,
	}, logger)

	forumClient := forum.NewClient(forum.Config{
		BaseURL: cfg.ForumAPIURL,
		APIKey:  cfg.ForumAPIKey,
	})

	sender := email.NewSender(email.SenderConfig{
		Server:   cfg.SMTPServer,
		Port:     cfg.SMTPPort,
		Address:  cfg.IntakeAddress,
		Password: cfg.IMAPPassword,
	}, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Users:         forumClient,
		Forum:         forumClient,
		Registry:      reg,
		Parts:         parts,
		Mailer:        sender,
		Bounces:       formatter.NewBounceFormatter(cfg.SiteName, cfg.RegisterURL, cfg.TagsRequired),
		IntakeAddress: cfg.IntakeAddress,
		TagsRequired:  cfg.TagsRequired,
		Logger:        logger,
	})

	// Optional moderator alerts; a nil alerter is a no-op
	var alerter *notify.Alerter
	if cfg.AlertsEnabled() {
		alerter, err = notify.NewAlerter(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Error("failed to set up Telegram alerts", "error", err)
			os.Exit(1)
		}
		logger.Info("telegram alerts enabled", "chat_id", cfg.TelegramChatID)
	}

	imapServer := cfg.IMAPServer
	if imapServer == "" {
		imapServer, err = email.ResolveIMAPServer(cfg.IntakeAddress)
		if err != nil {
			logger.Error("failed to resolve IMAP server", "error", err)
			os.Exit(1)
		}
		logger.Info("resolved IMAP server", "server", imapServer)
	}

	imapClient := email.NewClient(email.ClientConfig{
		Address:     cfg.IntakeAddress,
		Password:    cfg.IMAPPassword,
		Server:      imapServer,
		ReplyDomain: cfg.ReplyDomain,
		IdleTimeout: cfg.IMAPIdleTimeout,
		DialTimeout: cfg.IMAPDialTimeout,
	}, logger)

	handler := func(ctx context.Context, msg *models.IncomingMessage) {
		outcome := orch.Process(ctx, msg)
		if outcome.Bounce != nil && outcome.Bounce.Reason == models.BounceProblemPosting {
			alerter.Alert(ctx, fmt.Sprintf("replypost: could not post message from %s (uid %d): %s",
				msg.FromAddress, msg.UID, outcome.Bounce.Detail))
		}
	}

	intake := email.NewIntake(imapClient, db, handler, logger)

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		intake.Stop()
		cancel()
	}()

	logger.Info("gateway is running, press Ctrl+C to stop")
	if err := intake.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("intake stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("gateway stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
