package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	JWTSecret     string
	WebhookSecret string

	GatewayMode    string
	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration
	SendRate       float64
	SendBurst      int

	DirectoryTimeout time.Duration
	SyncStaleness    time.Duration
	TenantCacheTTL   time.Duration
	WebhookTimeout   time.Duration

	QueueTimeout         time.Duration
	QueueMonitorInterval time.Duration
	EscalationKeywords   []string

	TelegramBotToken        string
	TelegramAttendantChatID int64

	WhatsAppDevicesDir string

	AdminUsername string
	AdminPassword string

	LogLevel  string
	LogFormat string
}

const (
	GatewayModeHTTP      = "http"
	GatewayModeWhatsmeow = "whatsmeow"
)

// Load reads .env (optional) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using system environment variables")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),

		GatewayMode:    strings.ToLower(getEnv("GATEWAY_MODE", GatewayModeHTTP)),
		GatewayBaseURL: getEnv("GATEWAY_BASE_URL", "http://localhost:3000"),
		GatewayAPIKey:  getEnv("GATEWAY_API_KEY", ""),
		GatewayTimeout: getDuration("GATEWAY_TIMEOUT", 5*time.Second),
		SendRate:       getFloat("SEND_RATE", 1),
		SendBurst:      int(getInt64("SEND_BURST", 5)),

		DirectoryTimeout: getDuration("DIRECTORY_TIMEOUT", 5*time.Second),
		SyncStaleness:    getDuration("SYNC_STALENESS", 24*time.Hour),
		TenantCacheTTL:   getDuration("TENANT_CACHE_TTL", 30*time.Second),
		WebhookTimeout:   getDuration("WEBHOOK_TIMEOUT", 25*time.Second),

		QueueTimeout:         getDuration("QUEUE_TIMEOUT", 10*time.Minute),
		QueueMonitorInterval: getDuration("QUEUE_MONITOR_INTERVAL", time.Minute),
		EscalationKeywords:   getList("ESCALATION_KEYWORDS", []string{"finalizar", "confirmar", "atendente", "humano"}),

		TelegramBotToken:        getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAttendantChatID: getInt64("TELEGRAM_ATTENDANT_CHAT_ID", 0),

		WhatsAppDevicesDir: getEnv("WHATSAPP_DEVICES_DIR", "devices"),

		AdminUsername: getEnv("ADMIN_USERNAME", "root"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required"))
	}
	switch c.GatewayMode {
	case GatewayModeHTTP:
		if c.GatewayBaseURL == "" {
			errs = append(errs, errors.New("GATEWAY_BASE_URL is required in http mode"))
		}
	case GatewayModeWhatsmeow:
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_MODE must be %q or %q, got %q", GatewayModeHTTP, GatewayModeWhatsmeow, c.GatewayMode))
	}
	if c.SendRate <= 0 || c.SendBurst <= 0 {
		errs = append(errs, errors.New("SEND_RATE and SEND_BURST must be positive"))
	}
	if c.TelegramBotToken != "" && c.TelegramAttendantChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_ATTENDANT_CHAT_ID is required with TELEGRAM_BOT_TOKEN"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getInt64(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", raw)
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid number, using default", "key", key, "value", raw)
		return defaultValue
	}
	return f
}

func getList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
