package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies COSTSIM_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known COSTSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject connection details at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "COSTSIM_FEED_URL")
	setDuration(&cfg.Feed.ReconnectDelay, "COSTSIM_FEED_RECONNECT_DELAY")
	setDuration(&cfg.Feed.MaxReconnectDelay, "COSTSIM_FEED_MAX_RECONNECT_DELAY")
	setInt(&cfg.Feed.MaxRetries, "COSTSIM_FEED_MAX_RETRIES")
	setDuration(&cfg.Feed.InitTimeout, "COSTSIM_FEED_INIT_TIMEOUT")
	setInt(&cfg.Feed.BufferSize, "COSTSIM_FEED_BUFFER_SIZE")
	setInt(&cfg.Feed.MaxDepth, "COSTSIM_FEED_MAX_DEPTH")

	// ── Simulation ──
	setStr(&cfg.Simulation.Exchange, "COSTSIM_SIMULATION_EXCHANGE")
	setStr(&cfg.Simulation.Symbol, "COSTSIM_SIMULATION_SYMBOL")
	setFloat64(&cfg.Simulation.QuantityQuote, "COSTSIM_SIMULATION_QUANTITY_QUOTE")
	setFloat64(&cfg.Simulation.Volatility, "COSTSIM_SIMULATION_VOLATILITY")
	setInt(&cfg.Simulation.FeeTier, "COSTSIM_SIMULATION_FEE_TIER")
	setStr(&cfg.Simulation.SlippageModel, "COSTSIM_SIMULATION_SLIPPAGE_MODEL")
	setStr(&cfg.Simulation.OrderType, "COSTSIM_SIMULATION_ORDER_TYPE")
	setBool(&cfg.Simulation.IsMaker, "COSTSIM_SIMULATION_IS_MAKER")
	setDuration(&cfg.Simulation.PollInterval, "COSTSIM_SIMULATION_POLL_INTERVAL")

	// ── Impact ──
	setFloat64(&cfg.Impact.Eta, "COSTSIM_IMPACT_ETA")
	setFloat64(&cfg.Impact.Gamma, "COSTSIM_IMPACT_GAMMA")
	setFloat64(&cfg.Impact.RiskAversion, "COSTSIM_IMPACT_RISK_AVERSION")
	setFloat64(&cfg.Impact.Sigma, "COSTSIM_IMPACT_SIGMA")

	// ── Slippage ──
	setInt(&cfg.Slippage.WindowSize, "COSTSIM_SLIPPAGE_WINDOW_SIZE")
	setFloat64(&cfg.Slippage.Alpha, "COSTSIM_SLIPPAGE_ALPHA")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "COSTSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "COSTSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COSTSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COSTSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COSTSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COSTSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COSTSIM_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "COSTSIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "COSTSIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "COSTSIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "COSTSIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "COSTSIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "COSTSIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "COSTSIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "COSTSIM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "COSTSIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "COSTSIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "COSTSIM_POSTGRES_RUN_MIGRATIONS")

	// ── Telemetry ──
	setBool(&cfg.Telemetry.Enabled, "COSTSIM_TELEMETRY_ENABLED")
	setStr(&cfg.Telemetry.Addr, "COSTSIM_TELEMETRY_ADDR")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COSTSIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COSTSIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "COSTSIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "COSTSIM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "COSTSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
