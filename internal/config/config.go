package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config - глобальная конфигурация сервиса
type Config struct {
	Env string // "local", "prod"

	Database struct {
		Driver string // "sqlite" (по умолчанию, как у настольной версии) или "postgres"
		DSN    string
	}

	HTTPAddr string

	Telegram struct {
		BotToken string // пусто = бот не запускается
		AdminID  int64  // единственный оператор
	}

	Artifact struct {
		Title  string
		Issuer string
		QRSize int // пиксели
	}

	KeyMaxAttempts int

	// Hex-ключ AES-256 для телефонов владельцев. Пусто = хранить открытым текстом
	// (допустимо только для локальной установки).
	PhoneEncryptionKey string
}

// LoadConfig читает настройки из окружения (.env подхватывает godotenv/autoload в main)
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.Env = getEnv("ENV", "local")
	cfg.Database.Driver = getEnv("DATABASE_DRIVER", "sqlite")
	cfg.Database.DSN = getEnv("DATABASE_URL", "licensedesk.db")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_ADMIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_ID: %w", err)
		}
		cfg.Telegram.AdminID = id
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.AdminID == 0 {
		return nil, fmt.Errorf("TELEGRAM_ADMIN_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	cfg.Artifact.Title = getEnv("ARTIFACT_TITLE", "License certificate")
	cfg.Artifact.Issuer = getEnv("ARTIFACT_ISSUER", "licensedesk")

	size, err := getEnvInt("ARTIFACT_QR_SIZE", 256)
	if err != nil {
		return nil, err
	}
	cfg.Artifact.QRSize = size

	attempts, err := getEnvInt("KEY_MAX_ATTEMPTS", 10)
	if err != nil {
		return nil, err
	}
	cfg.KeyMaxAttempts = attempts

	cfg.PhoneEncryptionKey = os.Getenv("PHONE_ENCRYPTION_KEY")

	return cfg, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}
