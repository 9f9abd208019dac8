package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and supporting services.
type Config struct {
	HTTPAddr            string
	FrontendURL         string
	LogLevel            string
	MySQLDSN            string
	StoreTimeout        time.Duration
	RequestTimeout      time.Duration
	GeminiAPIKey        string
	GeminiBaseURL       string
	GeminiModel         string
	RazorpayKeyID       string
	RazorpayKeySecret   string
	RazorpayBaseURL     string
	PaymentCurrency     string
	ResendAPIKey        string
	ResendBaseURL       string
	EmailFrom           string
	SessionTTL          time.Duration
	ResetSchedule       string
	ResetTimezone       string
	RedisURL            string
	AuthRateLimit       int
	AuthRateWindow      time.Duration
	TelegramBotToken    string
	TelegramAlertChatID int64
	S3Endpoint          string
	S3Region            string
	S3AccessKey         string
	S3SecretKey         string
	S3Bucket            string
	S3PublicBaseURL     string
	S3UsePathStyle      bool
	S3Prefix            string
}

// Load reads configuration from environment variables, applying sane defaults.
// A .env file is optional; environment variables always win when both are present.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":5001"),
		FrontendURL:         strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		StoreTimeout:        time.Second * time.Duration(getInt("STORE_TIMEOUT_SECONDS", 5)),
		RequestTimeout:      time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		RazorpayBaseURL:     getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
		PaymentCurrency:     strings.ToUpper(getEnv("PAYMENT_CURRENCY", "INR")),
		ResendBaseURL:       getEnv("RESEND_BASE_URL", "https://api.resend.com"),
		EmailFrom:           getEnv("EMAIL_FROM", "onboarding@resend.dev"),
		SessionTTL:          time.Hour * time.Duration(getInt("SESSION_TTL_HOURS", 5)),
		ResetSchedule:       getEnv("RESET_SCHEDULE", "0 0 * * *"),
		ResetTimezone:       getEnv("RESET_TIMEZONE", "Asia/Kolkata"),
		RedisURL:            os.Getenv("REDIS_URL"),
		AuthRateLimit:       getInt("AUTH_RATE_LIMIT", 10),
		AuthRateWindow:      time.Second * time.Duration(getInt("AUTH_RATE_WINDOW_SECONDS", 60)),
		TelegramBotToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAlertChatID: getInt64("TELEGRAM_ALERT_CHAT_ID", 0),
		S3Endpoint:          getEnv("S3_ENDPOINT", ""),
		S3Region:            os.Getenv("S3_REGION"),
		S3AccessKey:         os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:         os.Getenv("S3_SECRET_KEY"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:     os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:      getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:            getEnv("S3_PREFIX", "exports"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.RazorpayKeyID = os.Getenv("RAZORPAY_KEY_ID")
	cfg.RazorpayKeySecret = os.Getenv("RAZORPAY_KEY_SECRET")
	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.RazorpayKeyID == "" {
		missing = append(missing, "RAZORPAY_KEY_ID")
	}
	if cfg.RazorpayKeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if _, err := time.LoadLocation(cfg.ResetTimezone); err != nil {
		return Config{}, fmt.Errorf("invalid RESET_TIMEZONE %q: %w", cfg.ResetTimezone, err)
	}

	return cfg, nil
}

// S3Enabled reports whether every setting needed for history exports is present.
// S3PublicBaseURL is optional; without it exports are shared as presigned links.
func (c Config) S3Enabled() bool {
	return c.S3Region != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3Bucket != ""
}

// TelegramEnabled reports whether ops alerts can be delivered.
func (c Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramAlertChatID != 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
