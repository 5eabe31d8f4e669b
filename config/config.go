// Package config loads all bot configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
)

// Feed selects the market data source.
const (
	FeedDelta   = "delta"    // Delta Exchange REST polling
	FeedDeltaWS = "delta_ws" // Delta Exchange websocket stream
	FeedAngel   = "angel"    // Angel One SmartAPI polling (NSE hours)
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Feed selection
	Feed       string // delta | delta_ws | angel
	Symbol     string
	Resolution string // Delta resolution (5m) or Angel interval (FIVE_MINUTE)

	// Engine parameters
	RSIPeriod      int
	Lookback       int
	Lookforward    int
	AlignTolerance int
	MaxOpenAge     int
	RSIBuyMin      float64
	RSISellMax     float64
	BackfillCount  int

	// Delta Exchange
	DeltaBaseURL string
	DeltaWSURL   string
	DeltaAPIKey  string

	// Angel One credentials (required only for the angel feed)
	AngelAPIKey      string
	AngelClientCode  string
	AngelPassword    string
	AngelTOTPSecret  string
	AngelSymbolToken string
	AngelExchange    string

	// Notifications
	TelegramToken  string
	TelegramChatID string
	WebhookURL     string
	DryRun         bool

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisEnabled  bool
	SQLitePath    string
	SQLiteEnabled bool
	MetricsAddr   string
	LogLevel      string
}

// Load reads configuration from environment variables with sensible defaults.
// Credentials are only required for the components they enable.
func Load() *Config {
	cfg := &Config{
		Feed:       getEnv("FEED", FeedDelta),
		Symbol:     getEnv("SYMBOL", "BTCUSD"),
		Resolution: getEnv("RESOLUTION", "5m"),

		RSIPeriod:      getEnvInt("RSI_PERIOD", 14),
		Lookback:       getEnvInt("PIVOT_LOOKBACK", 3),
		Lookforward:    getEnvInt("PIVOT_LOOKFORWARD", 3),
		AlignTolerance: getEnvInt("ALIGN_TOLERANCE", 2),
		MaxOpenAge:     getEnvInt("MAX_OPEN_AGE", 30),
		RSIBuyMin:      getEnvFloat("RSI_BUY_MIN", 40),
		RSISellMax:     getEnvFloat("RSI_SELL_MAX", 60),
		BackfillCount:  getEnvInt("BACKFILL_COUNT", 100),

		DeltaBaseURL: getEnv("DELTA_BASE_URL", ""),
		DeltaWSURL:   getEnv("DELTA_WS_URL", ""),
		DeltaAPIKey:  getEnv("DELTA_API_KEY", ""),

		AngelExchange: getEnv("ANGEL_EXCHANGE", "NSE"),

		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		DryRun:         getEnvBool("DRY_RUN", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		SQLitePath:    getEnv("SQLITE_PATH", "data/rsidivbot.db"),
		SQLiteEnabled: getEnvBool("SQLITE_ENABLED", true),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Feed == FeedAngel {
		cfg.AngelAPIKey = mustEnv("ANGEL_API_KEY")
		cfg.AngelClientCode = mustEnv("ANGEL_CLIENT_CODE")
		cfg.AngelPassword = mustEnv("ANGEL_PASSWORD")
		cfg.AngelTOTPSecret = mustEnv("ANGEL_TOTP_SECRET")
		cfg.AngelSymbolToken = getEnv("ANGEL_SYMBOL_TOKEN", "99926000") // Nifty 50 index
		if os.Getenv("SYMBOL") == "" {
			cfg.Symbol = "Nifty50"
		}
		if os.Getenv("RESOLUTION") == "" {
			cfg.Resolution = "FIVE_MINUTE"
		}
	}

	if !cfg.DryRun && cfg.TelegramToken == "" && cfg.WebhookURL == "" {
		log.Fatalf("[config] set TELEGRAM_TOKEN or WEBHOOK_URL, or enable DRY_RUN")
	}
	return cfg
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[config] %s: invalid integer %q", key, v)
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("[config] %s: invalid number %q", key, v)
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("[config] %s: invalid boolean %q", key, v)
	}
	return b
}
