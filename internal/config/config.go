// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transcript backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config holds the widget configuration.
type Config struct {
	BotURL        string
	UploadURL     string
	IdleTimeout   time.Duration
	DialTimeout   time.Duration
	UploadTimeout time.Duration
	LogLevel      slog.Level
	LogFile       string
	Transcript    TranscriptConfig
}

// TranscriptConfig controls where conversation analytics are recorded.
type TranscriptConfig struct {
	Backend     string
	DBPath      string
	RedisAddr   string
	RedisStream string
	Retention   time.Duration
	QueueSize   int
}

// DevBotConfig holds the development bot server configuration.
type DevBotConfig struct {
	Port           string
	UploadDir      string
	ReplyDelay     time.Duration
	AllowedOrigins []string
	LogLevel       slog.Level
}

// Load reads the widget configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}

	cfg := &Config{
		BotURL:        getEnv("BOT_URL", "ws://localhost:8000/ws"),
		UploadURL:     getEnv("UPLOAD_URL", "http://localhost:8000/upload-resume"),
		IdleTimeout:   getEnvDuration("SESSION_IDLE_TIMEOUT", 15*time.Minute),
		DialTimeout:   getEnvDuration("DIAL_TIMEOUT", 10*time.Second),
		UploadTimeout: getEnvDuration("UPLOAD_TIMEOUT", 60*time.Second),
		LogLevel:      getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		LogFile:       getEnv("LOG_FILE", "./data/logs/chatwidget.log"),
		Transcript: TranscriptConfig{
			Backend:     strings.ToLower(getEnv("TRANSCRIPT_BACKEND", BackendSQLite)),
			DBPath:      getEnv("TRANSCRIPT_DB_PATH", "./data/transcript.db"),
			RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
			RedisStream: getEnv("REDIS_STREAM", "chatwidget:transcript"),
			Retention:   getEnvDuration("TRANSCRIPT_RETENTION", 30*24*time.Hour),
			QueueSize:   queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BotURL == "" {
		return fmt.Errorf("BOT_URL cannot be empty")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be > 0")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("DIAL_TIMEOUT must be > 0")
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("UPLOAD_TIMEOUT must be > 0")
	}
	switch c.Transcript.Backend {
	case BackendSQLite:
		if c.Transcript.DBPath == "" {
			return fmt.Errorf("TRANSCRIPT_DB_PATH cannot be empty")
		}
	case BackendRedis:
		if c.Transcript.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	case BackendNone:
	default:
		return fmt.Errorf("TRANSCRIPT_BACKEND must be one of sqlite, redis, none; got %q", c.Transcript.Backend)
	}
	if c.Transcript.Retention < 0 {
		return fmt.Errorf("TRANSCRIPT_RETENTION cannot be negative")
	}
	return nil
}

// LoadDevBot reads the development bot configuration from environment variables.
func LoadDevBot() (*DevBotConfig, error) {
	cfg := &DevBotConfig{
		Port:           getEnv("DEVBOT_PORT", "8000"),
		UploadDir:      getEnv("DEVBOT_UPLOAD_DIR", "./data/uploads"),
		ReplyDelay:     getEnvDuration("DEVBOT_REPLY_DELAY", 500*time.Millisecond),
		AllowedOrigins: getEnvList("DEVBOT_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *DevBotConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("DEVBOT_PORT cannot be empty")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("DEVBOT_UPLOAD_DIR cannot be empty")
	}
	if c.ReplyDelay < 0 {
		return fmt.Errorf("DEVBOT_REPLY_DELAY cannot be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s", "15m") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
