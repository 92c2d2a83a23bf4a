package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ThingsBoard holds the upstream platform connection settings. Absence of a
// field is not fatal at startup: the gateway client reports the missing names
// and the API answers 500 until they are provided.
type ThingsBoard struct {
	URL      string
	Username string
	Password string
	DeviceID string
}

// Missing returns the env var names of unset ThingsBoard settings.
func (t ThingsBoard) Missing() []string {
	var missing []string
	if t.URL == "" {
		missing = append(missing, "TB_URL")
	}
	if t.Username == "" {
		missing = append(missing, "TB_USERNAME")
	}
	if t.Password == "" {
		missing = append(missing, "TB_PASSWORD")
	}
	if t.DeviceID == "" {
		missing = append(missing, "TB_DEVICE_ID")
	}
	return missing
}

// Config holds application configuration loaded from environment.
type Config struct {
	ThingsBoard ThingsBoard
	API         struct {
		Port     string
		BasePath string
	}
	Logging struct {
		Dir   string
		Level string
	}
	Poll struct {
		LatestInterval  time.Duration
		HistoryInterval time.Duration
		HistoryWindow   time.Duration
		HistoryMaxPts   int
	}
	Telegram struct {
		BotToken  string
		ChatID    int64
		RateLimit int
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		Recipient  string
	}
	Kafka struct {
		Broker string
		Topic  string
	}
	Dispatch struct {
		QueueSize  int
		MaxWorkers int
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	// Upstream telemetry platform
	cfg.ThingsBoard.URL = os.Getenv("TB_URL")
	cfg.ThingsBoard.Username = os.Getenv("TB_USERNAME")
	cfg.ThingsBoard.Password = os.Getenv("TB_PASSWORD")
	cfg.ThingsBoard.DeviceID = os.Getenv("TB_DEVICE_ID")

	// API settings
	cfg.API.Port = getenv("API_PORT", ":8080")
	cfg.API.BasePath = getenv("API_BASE_PATH", "/api/tb")

	// Logging
	cfg.Logging.Dir = getenv("LOG_DIR", "logs")
	cfg.Logging.Level = getenv("LOG_LEVEL", "info")

	// Poll cycle
	cfg.Poll.LatestInterval = getenvDuration("LATEST_POLL_INTERVAL", 5*time.Second)
	cfg.Poll.HistoryInterval = getenvDuration("HISTORY_POLL_INTERVAL", 15*time.Second)
	cfg.Poll.HistoryWindow = time.Duration(getenvInt("HISTORY_WINDOW_HOURS", 24)) * time.Hour
	cfg.Poll.HistoryMaxPts = getenvInt("HISTORY_MAX_POINTS", 1000)

	// Telegram notifications (optional)
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}
	cfg.Telegram.RateLimit = getenvInt("TELEGRAM_RATE_LIMIT", 1)

	// Email notifications (optional)
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = getenvInt("EMAIL_SMTP_PORT", 0)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.Recipient = os.Getenv("EMAIL_RECIPIENT")

	// Kafka alert events (optional)
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = getenv("KAFKA_TOPIC", "chamber_alerts")

	// Dispatcher worker settings
	cfg.Dispatch.QueueSize = getenvInt("QUEUE_SIZE", 500)
	cfg.Dispatch.MaxWorkers = getenvInt("MAX_WORKERS", 10)

	if cfg.Poll.LatestInterval <= 0 || cfg.Poll.HistoryInterval <= 0 {
		return Config{}, fmt.Errorf("poll intervals must be positive")
	}
	if cfg.Poll.HistoryMaxPts <= 0 {
		return Config{}, fmt.Errorf("HISTORY_MAX_POINTS must be positive")
	}

	return cfg, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func getenvDuration(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return d
	}
	return dur
}
