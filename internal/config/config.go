// Package config defines the top-level configuration for the opinioncore
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by OPINION_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Access   AccessConfig   `toml:"access"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the economic parameters of the marketplace. Amounts are
// fixed-point micro-units (1_000_000 = 1.00), percentages whole percents.
type LedgerConfig struct {
	TreasuryAddress string `toml:"treasury_address"`

	InitialPrice      int64 `toml:"initial_price"`
	MinimumPrice      int64 `toml:"minimum_price"`
	MaxPriceChangePct int64 `toml:"max_price_change_pct"`

	PlatformFeePct     int64 `toml:"platform_fee_pct"`
	CreatorFeePct      int64 `toml:"creator_fee_pct"`
	QuestionSaleFeePct int64 `toml:"question_sale_fee_pct"`

	CreationFee         int64 `toml:"creation_fee"`
	PoolCreationFee     int64 `toml:"pool_creation_fee"`
	PoolContributionFee int64 `toml:"pool_contribution_fee"`

	EarlyWithdrawPenaltyPct int64 `toml:"early_withdraw_penalty_pct"`

	MinPoolDuration duration `toml:"min_pool_duration"`
	MaxPoolDuration duration `toml:"max_pool_duration"`
	ExtensionGrace  duration `toml:"extension_grace"`

	TickInterval        duration `toml:"tick_interval"`
	MaxTradesPerTick    int      `toml:"max_trades_per_tick"`
	RapidTradeWindow    duration `toml:"rapid_trade_window"`
	RapidTradeMaxFeePct int64    `toml:"rapid_trade_max_fee_pct"`
}

// AccessConfig maps privileged capabilities to allow-listed hex addresses.
type AccessConfig struct {
	Pause      []string `toml:"pause"`
	Moderate   []string `toml:"moderate"`
	Parameters []string `toml:"parameters"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminAPIKey guards the admin endpoints; empty disables them entirely.
	AdminAPIKey string `toml:"admin_api_key"`
	// RateLimit is requests per window per client for write endpoints.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig holds cold-storage parameters for answer history and audit
// rows.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
		Ledger: LedgerConfig{
			InitialPrice:      1_000_000,
			MinimumPrice:      1_000_000,
			MaxPriceChangePct: 200,

			PlatformFeePct:     2,
			CreatorFeePct:      3,
			QuestionSaleFeePct: 10,

			CreationFee:         5_000_000,
			PoolCreationFee:     5_000_000,
			PoolContributionFee: 1_000_000,

			EarlyWithdrawPenaltyPct: 20,

			MinPoolDuration: duration{24 * time.Hour},
			MaxPoolDuration: duration{30 * 24 * time.Hour},
			ExtensionGrace:  duration{7 * 24 * time.Hour},

			TickInterval:        duration{time.Second},
			MaxTradesPerTick:    3,
			RapidTradeWindow:    duration{30 * time.Second},
			RapidTradeMaxFeePct: 20,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "opinioncore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "opinioncore-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       30,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"pool_executed", "ledger_paused", "error"},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.TreasuryAddress == "" {
		errs = append(errs, "ledger: treasury_address must be set")
	} else if !common.IsHexAddress(c.Ledger.TreasuryAddress) {
		errs = append(errs, fmt.Sprintf("ledger: treasury_address %q is not a valid hex address", c.Ledger.TreasuryAddress))
	}
	if c.Ledger.TickInterval.Duration <= 0 {
		errs = append(errs, "ledger: tick_interval must be > 0")
	}

	// Access allow-lists
	for cap, addrs := range map[string][]string{
		"pause":      c.Access.Pause,
		"moderate":   c.Access.Moderate,
		"parameters": c.Access.Parameters,
	} {
		for _, a := range addrs {
			if !common.IsHexAddress(a) {
				errs = append(errs, fmt.Sprintf("access: %s: %q is not a valid hex address", cap, a))
			}
		}
	}

	// Postgres
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only needed when the archiver runs.
	if c.Archive.Enabled || c.Mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 1 {
			errs = append(errs, "server: rate_limit must be >= 1")
		}
		if c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Treasury returns the parsed treasury address. Validate must have passed.
func (c *Config) Treasury() common.Address {
	return common.HexToAddress(c.Ledger.TreasuryAddress)
}

// Grants returns the access allow-lists keyed by capability name, in the
// shape the static gate consumes.
func (c *Config) Grants() map[string][]string {
	return map[string][]string{
		"pause":      c.Access.Pause,
		"moderate":   c.Access.Moderate,
		"parameters": c.Access.Parameters,
	}
}
