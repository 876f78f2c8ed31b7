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

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Lead journal modes used when RABBITMQ_URL is empty.
const (
	JournalWorker = "worker"
	JournalDirect = "direct"
)

type Config struct {
	Port    string
	Storage string

	DatabaseURL string
	SslCertPath string

	AIAPIKey   string
	GenModel   string
	EmbedModel string
	EmbedDim   int
	NLUTimeout time.Duration

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	MediaMirror  bool

	TelegramToken      string
	TelegramWebhookURL string
	BotUsername        string
	FrontendURL        string

	WhatsAppToken       string
	WhatsAppPhoneID     string
	WhatsAppVerifyToken string
	WhatsAppAPIBase     string
	WhatsAppNumber      string
	WhatsAppCountryCode string

	LeadJournal  string
	RabbitMQURL  string
	LeadExchange string
	LeadQueue    string
	RedisURL     string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	GoogleCredentialsFile string
	CalendarID            string
	CalendarTimezone      string
	EmailTimeout          time.Duration

	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string

	NotifyInterval    time.Duration
	NotifyBatch       int
	NotifyMaxAttempts int
	MeetingDuration   time.Duration
	LeadRenotifyAfter time.Duration

	LogLevel string
}

// LoadConfig loads .env when present, reads the environment and validates the result.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		Storage: strings.ToLower(getEnv("STORAGE", StoragePostgres)),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		AIAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GenModel:   getEnv("GEN_MODEL", "gemini-1.5-flash"),
		EmbedModel: getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:   getEnvInt("EMBED_DIM", 768),
		NLUTimeout: getEnvDuration("NLU_TIMEOUT", 20*time.Second),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "rentora-media"),
		MediaMirror:  getEnvBool("MEDIA_MIRROR", false),

		TelegramToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookURL: getEnv("TELEGRAM_WEBHOOK_URL", ""),
		BotUsername:        getEnv("BOT_USERNAME", ""),
		FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", ""), "/"),

		WhatsAppToken:       getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneID:     getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAPIBase:     getEnv("WHATSAPP_API_BASE", "https://graph.facebook.com/v19.0"),
		WhatsAppNumber:      getEnv("WHATSAPP_NUMBER", ""),
		WhatsAppCountryCode: getEnv("WHATSAPP_COUNTRY_CODE", "972"),

		LeadJournal:  strings.ToLower(getEnv("LEAD_JOURNAL", JournalWorker)),
		RabbitMQURL:  getEnv("RABBITMQ_URL", ""),
		LeadExchange: getEnv("LEAD_EXCHANGE", "rentora.leads"),
		LeadQueue:    getEnv("LEAD_QUEUE", "rentora.lead-journal"),
		RedisURL:     getEnv("REDIS_URL", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		CalendarID:            getEnv("CALENDAR_ID", "primary"),
		CalendarTimezone:      getEnv("CALENDAR_TIMEZONE", "Asia/Jerusalem"),
		EmailTimeout:          getEnvDuration("EMAIL_TIMEOUT", 15*time.Second),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		NotifyInterval:    getEnvDuration("NOTIFY_INTERVAL", 30*time.Second),
		NotifyBatch:       getEnvInt("NOTIFY_BATCH", 10),
		NotifyMaxAttempts: getEnvInt("NOTIFY_MAX_ATTEMPTS", 3),
		MeetingDuration:   getEnvDuration("MEETING_DURATION", 30*time.Minute),
		LeadRenotifyAfter: getEnvDuration("LEAD_RENOTIFY_AFTER", 3*time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when STORAGE=postgres")
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage))
	}
	if c.Port == "" {
		errs = append(errs, "PORT is required")
	}
	if c.NotifyInterval <= 0 {
		errs = append(errs, "NOTIFY_INTERVAL must be positive")
	}
	if c.NotifyBatch <= 0 {
		errs = append(errs, "NOTIFY_BATCH must be positive")
	}
	if c.NotifyMaxAttempts <= 0 {
		errs = append(errs, "NOTIFY_MAX_ATTEMPTS must be positive")
	}
	if c.MeetingDuration <= 0 {
		errs = append(errs, "MEETING_DURATION must be positive")
	}
	if c.NLUTimeout <= 0 {
		errs = append(errs, "NLU_TIMEOUT must be positive")
	}
	if c.EmbedDim <= 0 {
		errs = append(errs, "EMBED_DIM must be positive")
	}

	wa := []string{c.WhatsAppToken, c.WhatsAppPhoneID, c.WhatsAppVerifyToken}
	set := 0
	for _, v := range wa {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(wa) {
		errs = append(errs, "WHATSAPP_TOKEN, WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_VERIFY_TOKEN must be set together")
	}
	if c.WhatsAppCountryCode != "" && strings.Trim(c.WhatsAppCountryCode, "0123456789") != "" {
		errs = append(errs, fmt.Sprintf("WHATSAPP_COUNTRY_CODE must be digits only, got %q", c.WhatsAppCountryCode))
	}
	switch c.LeadJournal {
	case "", JournalWorker, JournalDirect:
	default:
		errs = append(errs, fmt.Sprintf("LEAD_JOURNAL must be %q or %q, got %q", JournalWorker, JournalDirect, c.LeadJournal))
	}
	if c.MediaMirror && c.BucketName == "" {
		errs = append(errs, "BUCKET_NAME is required when MEDIA_MIRROR is on")
	}
	if c.AdminEmail != "" && (c.AdminPasswordHash == "" || c.JWTSecret == "") {
		errs = append(errs, "ADMIN_EMAIL requires ADMIN_PASSWORD_HASH and JWT_SECRET")
	}
	if c.SMTPHost != "" && c.SMTPFrom == "" {
		errs = append(errs, "SMTP_FROM is required when SMTP_HOST is set")
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.New("config validation failed:\n  - " + strings.Join(errs, "\n  - "))
}

// TelegramEnabled reports whether a Telegram bot token is configured.
func (c *Config) TelegramEnabled() bool { return c.TelegramToken != "" }

// WhatsAppEnabled reports whether the WhatsApp Cloud API is configured.
func (c *Config) WhatsAppEnabled() bool { return c.WhatsAppToken != "" }

func (c *Config) SMTPEnabled() bool { return c.SMTPHost != "" }

func (c *Config) CalendarEnabled() bool { return c.GoogleCredentialsFile != "" }

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
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

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config value is not a bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
