package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `mapstructure:"ENV"`

	APIBaseURL  string `mapstructure:"API_BASE_URL"`
	SocketURL   string `mapstructure:"SOCKET_URL"`
	MeetBaseURL string `mapstructure:"MEET_BASE_URL"`
	AuthToken   string `mapstructure:"AUTH_TOKEN"`
	UserID      string `mapstructure:"USER_ID"`
	DisplayName string `mapstructure:"DISPLAY_NAME"`

	DBDSN         string `mapstructure:"DB_DSN"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	EndTimeout        time.Duration `mapstructure:"END_TIMEOUT"`
	ReconnectAttempts int           `mapstructure:"RECONNECT_ATTEMPTS"`
	ReconnectDelay    time.Duration `mapstructure:"RECONNECT_DELAY"`
	ReconnectMaxDelay time.Duration `mapstructure:"RECONNECT_MAX_DELAY"`
	ReminderInterval  time.Duration `mapstructure:"REMINDER_INTERVAL"`
	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`

	TelegramToken  string `mapstructure:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `mapstructure:"TELEGRAM_CHAT_ID"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфигурацию из произвольного источника переменных
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Environment:   getenv("ENV"),
		APIBaseURL:    getenv("API_BASE_URL"),
		SocketURL:     getenv("SOCKET_URL"),
		MeetBaseURL:   getenv("MEET_BASE_URL"),
		AuthToken:     getenv("AUTH_TOKEN"),
		UserID:        getenv("USER_ID"),
		DisplayName:   getenv("DISPLAY_NAME"),
		DBDSN:         getenv("DB_DSN"),
		MigrationsDir: getenv("MIGRATIONS_DIR"),
		TelegramToken: getenv("TELEGRAM_TOKEN"),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.MeetBaseURL == "" {
		cfg.MeetBaseURL = "https://meet.jit.si"
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}

	var err error
	if cfg.EndTimeout, err = durationVar(getenv, "END_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = durationVar(getenv, "RECONNECT_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectMaxDelay, err = durationVar(getenv, "RECONNECT_MAX_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReminderInterval, err = durationVar(getenv, "REMINDER_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReconcileInterval, err = durationVar(getenv, "RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReconnectAttempts, err = intVar(getenv, "RECONNECT_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if raw := getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if cfg.TelegramChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
	}

	// Проверяем обязательные поля
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required but not set")
	}
	if cfg.SocketURL == "" {
		return nil, fmt.Errorf("SOCKET_URL is required but not set")
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_TOKEN is set")
	}

	return cfg, nil
}

// TelegramEnabled включено ли дублирование уведомлений в Telegram
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
