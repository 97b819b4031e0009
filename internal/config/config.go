package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	CodeSalt    string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromEmail    string
	FromName     string
	MailDevMode  bool

	TrustProxy bool

	RedisURL         string
	RateLimitWindow  time.Duration
	CodeRequestLimit int
	CodeVerifyLimit  int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:     "8080", // default port
		SMTPHost: getEnv("SMTP_HOST", "smtp.gmail.com"),
		FromName: getEnv("FROM_NAME", "HabitCell"),
	}

	// Load DATABASE_URL and log connection details (password masked)
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if u, err := url.Parse(databaseURL); err == nil {
		host := u.Hostname()
		if host == "" {
			host = "localhost"
		}
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		dbName := strings.TrimPrefix(u.Path, "/")
		user := u.User.Username()
		if user == "" {
			user = "(none)"
		}
		log.Printf("DB connect: host=%s port=%s db=%s user=%s", host, port, dbName, user)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// CODE_SALT is mixed into every stored code hash
	codeSalt := os.Getenv("CODE_SALT")
	if codeSalt == "" {
		return nil, fmt.Errorf("CODE_SALT environment variable is required")
	}
	cfg.CodeSalt = codeSalt

	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	cfg.SMTPPort = smtpPort
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.FromEmail = resolveFromEmail(os.Getenv("FROM_EMAIL"), cfg.SMTPUser, cfg.SMTPHost)
	cfg.MailDevMode = os.Getenv("MAIL_DEV_MODE") == "true"

	cfg.TrustProxy = os.Getenv("TRUST_PROXY") == "true"
	cfg.RedisURL = os.Getenv("REDIS_URL")

	window, err := time.ParseDuration(getEnv("RATE_LIMIT_WINDOW", "10m"))
	if err != nil {
		return nil, fmt.Errorf("parse RATE_LIMIT_WINDOW: %w", err)
	}
	if window <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	cfg.RateLimitWindow = window

	if cfg.CodeRequestLimit, err = getEnvInt("CODE_REQUEST_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.CodeVerifyLimit, err = getEnvInt("CODE_VERIFY_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.CodeRequestLimit <= 0 || cfg.CodeVerifyLimit <= 0 {
		return nil, fmt.Errorf("CODE_REQUEST_LIMIT and CODE_VERIFY_LIMIT must be > 0")
	}

	return cfg, nil
}

// resolveFromEmail picks the sender address. Gmail rejects a From that differs from the
// authenticated user, so SMTP_USER wins there.
func resolveFromEmail(fromEmail, smtpUser, smtpHost string) string {
	if fromEmail == "" || strings.Contains(strings.ToLower(smtpHost), "gmail.com") {
		if smtpUser != "" {
			return smtpUser
		}
		return "noreply@habitcell.com"
	}
	return fromEmail
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
