package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/joho/godotenv/autoload"

	"licensedesk/internal/artifact"
	"licensedesk/internal/bot"
	"licensedesk/internal/config"
	"licensedesk/internal/httpapi"
	"licensedesk/internal/infrastructure/crypto"
	"licensedesk/internal/infrastructure/database"
	"licensedesk/internal/license"
	"licensedesk/internal/usecase"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := database.NewConnection(database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(); err != nil {
		logger.Error("failed to ensure schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var encryptor *crypto.Encryptor
	if cfg.PhoneEncryptionKey != "" {
		encryptor, err = crypto.NewEncryptor(cfg.PhoneEncryptionKey)
		if err != nil {
			logger.Error("failed to create encryptor", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		logger.Warn("PHONE_ENCRYPTION_KEY not set, holder phones stored in plaintext")
	}

	store := database.NewLicenseStore(db, encryptor, logger)
	guard := license.NewGuard(license.NewGenerator().Generate, cfg.KeyMaxAttempts)
	renderer := artifact.NewRenderer(cfg.Artifact.Title, cfg.Artifact.Issuer, cfg.Artifact.QRSize)

	hub := httpapi.NewHub(logger)
	svc := usecase.NewIssuanceService(store, guard, hub, logger)
	api := httpapi.New(svc, renderer, hub, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go hub.Run(ctx)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("HTTP API listening", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if cfg.Telegram.BotToken != "" {
		tgBot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Error("failed to init telegram bot", slog.String("error", err.Error()))
			os.Exit(1)
		}
		tgBot.Debug = false
		logger.Info("Telegram bot authorized", slog.String("username", tgBot.Self.UserName))

		botHandler := bot.NewHandler(tgBot, svc, renderer, cfg.Telegram.AdminID, logger)
		go botHandler.Start(ctx)
	}

	logger.Info("Starting licensedesk...",
		slog.String("env", cfg.Env),
		slog.String("driver", cfg.Database.Driver))

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	logger.Info("Stopped gracefully")
}
