package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// FRED observation endpoint
	FREDAPIKey   string
	FREDBaseURL  string
	FetchTimeout time.Duration

	// Series cache
	CacheTTL         time.Duration
	FetchConcurrency int

	// Catalog override (JSON). Empty uses the built-in table.
	CatalogPath string

	// Export sinks. Empty SQLitePath / RedisAddr disables that sink.
	ExportDir     string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisTTL      time.Duration

	// Market snapshots
	GSEURL string

	// Refresh failure alerts. The log backend is always on.
	AlertWebhookURL  string
	TelegramBotToken string
	TelegramChatID   string
	AlertInterval    time.Duration

	// Serving
	HTTPAddr string
	LogLevel string
}

const (
	DefaultFREDBaseURL = "https://api.stlouisfed.org/fred/series/observations"
	DefaultGSEURL      = "https://afx.kwayisi.org/gse/data.csv"
)

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		FREDAPIKey:   getEnv("FRED_API_KEY", ""),
		FREDBaseURL:  getEnv("FRED_BASE_URL", DefaultFREDBaseURL),
		FetchTimeout: getSeconds("FETCH_TIMEOUT_SEC", 15),

		// Economic releases are at most daily.
		CacheTTL:         getSeconds("CACHE_TTL_SEC", 86400),
		FetchConcurrency: getInt("FETCH_CONCURRENCY", 4),

		CatalogPath: getEnv("CATALOG_PATH", ""),

		ExportDir:     getEnv("EXPORT_DIR", "data"),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTTL:      getSeconds("REDIS_TTL_SEC", 86400),

		GSEURL: getEnv("GSE_URL", DefaultGSEURL),

		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertInterval:    getSeconds("ALERT_INTERVAL_SEC", 3600),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	if cfg.FREDAPIKey == "" {
		log.Printf("[config] FRED_API_KEY not set; series requests will be rejected upstream")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}
