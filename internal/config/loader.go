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
// built-in defaults, applies OPINION_* environment variable overrides, and
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

// applyEnvOverrides reads well-known OPINION_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.TreasuryAddress, "OPINION_LEDGER_TREASURY_ADDRESS")
	setInt64(&cfg.Ledger.InitialPrice, "OPINION_LEDGER_INITIAL_PRICE")
	setInt64(&cfg.Ledger.MinimumPrice, "OPINION_LEDGER_MINIMUM_PRICE")
	setInt64(&cfg.Ledger.MaxPriceChangePct, "OPINION_LEDGER_MAX_PRICE_CHANGE_PCT")
	setInt64(&cfg.Ledger.PlatformFeePct, "OPINION_LEDGER_PLATFORM_FEE_PCT")
	setInt64(&cfg.Ledger.CreatorFeePct, "OPINION_LEDGER_CREATOR_FEE_PCT")
	setInt64(&cfg.Ledger.QuestionSaleFeePct, "OPINION_LEDGER_QUESTION_SALE_FEE_PCT")
	setInt64(&cfg.Ledger.CreationFee, "OPINION_LEDGER_CREATION_FEE")
	setInt64(&cfg.Ledger.PoolCreationFee, "OPINION_LEDGER_POOL_CREATION_FEE")
	setInt64(&cfg.Ledger.PoolContributionFee, "OPINION_LEDGER_POOL_CONTRIBUTION_FEE")
	setInt64(&cfg.Ledger.EarlyWithdrawPenaltyPct, "OPINION_LEDGER_EARLY_WITHDRAW_PENALTY_PCT")
	setDuration(&cfg.Ledger.MinPoolDuration, "OPINION_LEDGER_MIN_POOL_DURATION")
	setDuration(&cfg.Ledger.MaxPoolDuration, "OPINION_LEDGER_MAX_POOL_DURATION")
	setDuration(&cfg.Ledger.ExtensionGrace, "OPINION_LEDGER_EXTENSION_GRACE")
	setDuration(&cfg.Ledger.TickInterval, "OPINION_LEDGER_TICK_INTERVAL")
	setInt(&cfg.Ledger.MaxTradesPerTick, "OPINION_LEDGER_MAX_TRADES_PER_TICK")
	setDuration(&cfg.Ledger.RapidTradeWindow, "OPINION_LEDGER_RAPID_TRADE_WINDOW")
	setInt64(&cfg.Ledger.RapidTradeMaxFeePct, "OPINION_LEDGER_RAPID_TRADE_MAX_FEE_PCT")

	// ── Access ──
	setStringSlice(&cfg.Access.Pause, "OPINION_ACCESS_PAUSE")
	setStringSlice(&cfg.Access.Moderate, "OPINION_ACCESS_MODERATE")
	setStringSlice(&cfg.Access.Parameters, "OPINION_ACCESS_PARAMETERS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "OPINION_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "OPINION_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "OPINION_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OPINION_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OPINION_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OPINION_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OPINION_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OPINION_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OPINION_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OPINION_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OPINION_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "OPINION_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPINION_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPINION_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPINION_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPINION_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OPINION_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "OPINION_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OPINION_S3_REGION")
	setStr(&cfg.S3.Bucket, "OPINION_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OPINION_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OPINION_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OPINION_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OPINION_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "OPINION_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OPINION_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "OPINION_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "OPINION_SERVER_ADMIN_API_KEY")
	setInt(&cfg.Server.RateLimit, "OPINION_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "OPINION_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OPINION_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OPINION_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OPINION_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OPINION_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "OPINION_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "OPINION_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "OPINION_ARCHIVE_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "OPINION_MODE")
	setStr(&cfg.LogLevel, "OPINION_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
