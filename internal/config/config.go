// Package config defines the top-level configuration for the cost simulator
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by COSTSIM_* environment variables.
type Config struct {
	Feed       FeedConfig       `toml:"feed"`
	Simulation SimulationConfig `toml:"simulation"`
	Impact     ImpactConfig     `toml:"impact"`
	Slippage   SlippageConfig   `toml:"slippage"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// FeedConfig holds the market-data endpoint and reconnect policy.
type FeedConfig struct {
	URL string `toml:"url"`
	// ReconnectDelay is the base delay before a reconnect attempt; subsequent
	// attempts back off exponentially up to MaxReconnectDelay.
	ReconnectDelay    duration `toml:"reconnect_delay"`
	MaxReconnectDelay duration `toml:"max_reconnect_delay"`
	// MaxRetries bounds consecutive failed reconnect attempts. 0 means retry
	// forever. The counter resets after any successful reconnection.
	MaxRetries int `toml:"max_retries"`
	// InitTimeout bounds the wait for the first applied book update on start.
	InitTimeout duration `toml:"init_timeout"`
	// BufferSize is the capacity of the decoded-message channel between the
	// transport and the book apply loop.
	BufferSize int `toml:"buffer_size"`
	MaxDepth   int `toml:"max_depth"`
}

// SimulationConfig holds the initial simulation parameters.
type SimulationConfig struct {
	Exchange      string  `toml:"exchange"`
	Symbol        string  `toml:"symbol"`
	QuantityQuote float64 `toml:"quantity_quote"`
	Volatility    float64 `toml:"volatility"`
	FeeTier       int     `toml:"fee_tier"`
	SlippageModel string  `toml:"slippage_model"`
	OrderType     string  `toml:"order_type"`
	IsMaker       bool    `toml:"is_maker"`
	// PollInterval is how often the app computes and publishes metrics.
	PollInterval duration `toml:"poll_interval"`
}

// ImpactConfig holds Almgren-Chriss model coefficients.
type ImpactConfig struct {
	Eta          float64 `toml:"eta"`
	Gamma        float64 `toml:"gamma"`
	RiskAversion float64 `toml:"risk_aversion"`
	// Sigma is a fixed annualized volatility. 0 means estimate from the
	// rolling price window when no per-request volatility is supplied.
	Sigma float64 `toml:"sigma"`
}

// SlippageConfig holds slippage estimator tuning.
type SlippageConfig struct {
	WindowSize int     `toml:"window_size"`
	Alpha      float64 `toml:"alpha"`
}

// RedisConfig holds Redis connection parameters for live publication.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters for metrics history.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// TelemetryConfig holds Prometheus exposition parameters.
type TelemetryConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "100ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "100ms".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:               "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP",
			ReconnectDelay:    duration{5 * time.Second},
			MaxReconnectDelay: duration{60 * time.Second},
			MaxRetries:        0,
			InitTimeout:       duration{10 * time.Second},
			BufferSize:        256,
			MaxDepth:          1000,
		},
		Simulation: SimulationConfig{
			Exchange:      "OKX",
			Symbol:        "BTC-USDT-SWAP",
			QuantityQuote: 100.0,
			Volatility:    0.02,
			FeeTier:       1,
			SlippageModel: "linear",
			OrderType:     "market",
			IsMaker:       false,
			PollInterval:  duration{time.Second},
		},
		Impact: ImpactConfig{
			Eta:          0.1,
			Gamma:        0.01,
			RiskAversion: 1e-6,
			Sigma:        0,
		},
		Slippage: SlippageConfig{
			WindowSize: 100,
			Alpha:      0.2,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "costsim",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Addr:    ":9100",
		},
		Notify: NotifyConfig{
			Events: []string{"feed_connected", "feed_disconnected", "feed_terminal"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSlippageModels enumerates the accepted slippage model names.
var validSlippageModels = map[string]bool{
	"linear":      true,
	"exponential": true,
	"quantile":    true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty")
	} else if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		errs = append(errs, fmt.Sprintf("feed: url must use ws:// or wss:// scheme, got %q", c.Feed.URL))
	}
	if c.Feed.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "feed: reconnect_delay must be > 0")
	}
	if c.Feed.MaxReconnectDelay.Duration < c.Feed.ReconnectDelay.Duration {
		errs = append(errs, "feed: max_reconnect_delay must be >= reconnect_delay")
	}
	if c.Feed.MaxRetries < 0 {
		errs = append(errs, "feed: max_retries must be >= 0 (0 = unbounded)")
	}
	if c.Feed.InitTimeout.Duration <= 0 {
		errs = append(errs, "feed: init_timeout must be > 0")
	}
	if c.Feed.BufferSize < 1 {
		errs = append(errs, "feed: buffer_size must be >= 1")
	}
	if c.Feed.MaxDepth < 1 {
		errs = append(errs, "feed: max_depth must be >= 1")
	}

	// Simulation
	if c.Simulation.Exchange == "" {
		errs = append(errs, "simulation: exchange must not be empty")
	}
	if c.Simulation.Symbol == "" {
		errs = append(errs, "simulation: symbol must not be empty")
	}
	if c.Simulation.QuantityQuote <= 0 {
		errs = append(errs, "simulation: quantity_quote must be > 0")
	}
	if c.Simulation.FeeTier < 1 {
		errs = append(errs, "simulation: fee_tier must be >= 1")
	}
	if !validSlippageModels[strings.ToLower(c.Simulation.SlippageModel)] {
		errs = append(errs, fmt.Sprintf("simulation: unknown slippage_model %q (valid: linear, exponential, quantile)", c.Simulation.SlippageModel))
	}
	if c.Simulation.PollInterval.Duration <= 0 {
		errs = append(errs, "simulation: poll_interval must be > 0")
	}

	// Impact
	if c.Impact.Eta <= 0 {
		errs = append(errs, "impact: eta must be > 0")
	}
	if c.Impact.Gamma <= 0 {
		errs = append(errs, "impact: gamma must be > 0")
	}
	if c.Impact.RiskAversion <= 0 {
		errs = append(errs, "impact: risk_aversion must be > 0")
	}
	if c.Impact.Sigma < 0 {
		errs = append(errs, "impact: sigma must be >= 0 (0 = estimate from price history)")
	}

	// Slippage
	if c.Slippage.WindowSize < 10 {
		errs = append(errs, "slippage: window_size must be >= 10")
	}
	if c.Slippage.Alpha <= 0 {
		errs = append(errs, "slippage: alpha must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Telemetry
	if c.Telemetry.Enabled && c.Telemetry.Addr == "" {
		errs = append(errs, "telemetry: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
