package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/opinioncore/internal/blob/s3"
	"github.com/alanyoungcy/opinioncore/internal/cache/redis"
	"github.com/alanyoungcy/opinioncore/internal/config"
	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/entropy"
	"github.com/alanyoungcy/opinioncore/internal/gate"
	"github.com/alanyoungcy/opinioncore/internal/ledger"
	"github.com/alanyoungcy/opinioncore/internal/notify"
	"github.com/alanyoungcy/opinioncore/internal/service"
	"github.com/alanyoungcy/opinioncore/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// The in-memory ledger, rehydrated from postgres.
	Engine *ledger.Engine

	// Stores
	Stores service.Stores

	// Redis-backed infrastructure
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive", "full":
		return true
	default:
		return cfg.Archive.Enabled
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode persists the ledger) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Stores = service.Stores{
		Opinions:      postgres.NewOpinionStore(pool),
		History:       postgres.NewAnswerHistoryStore(pool),
		Pools:         postgres.NewPoolStore(pool),
		Contributions: postgres.NewContributionStore(pool),
		FeeAccounts:   postgres.NewFeeAccountStore(pool),
		Balances:      postgres.NewBalanceStore(pool),
		Audit:         postgres.NewAuditStore(pool),
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Stores.History, deps.Stores.Audit)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, slog.Default())

	// --- Ledger engine ---
	engine, err := buildEngine(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := restoreEngine(ctx, engine, deps.Stores); err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Engine = engine

	return deps, cleanup, nil
}

// buildEngine constructs the ledger engine from configured parameters, the
// system clock, the chained entropy source, and the static access gate.
func buildEngine(cfg *config.Config) (*ledger.Engine, error) {
	params := ledgerParams(cfg.Ledger)

	clock := entropy.NewSystemClock(cfg.Ledger.TickInterval.Duration)
	source, err := entropy.NewChainedSource()
	if err != nil {
		return nil, fmt.Errorf("wire: entropy: %w", err)
	}
	accessGate, err := gate.NewStatic(cfg.Grants())
	if err != nil {
		return nil, fmt.Errorf("wire: access gate: %w", err)
	}

	engine, err := ledger.NewEngine(params, cfg.Treasury(), clock, source, accessGate)
	if err != nil {
		return nil, fmt.Errorf("wire: engine: %w", err)
	}
	return engine, nil
}

// ledgerParams maps config values onto ledger parameters. Text limits are not
// configurable; they stay at the ledger defaults.
func ledgerParams(lc config.LedgerConfig) ledger.Params {
	p := ledger.DefaultParams()

	p.InitialPrice = lc.InitialPrice
	p.MinimumPrice = lc.MinimumPrice
	p.MaxPriceChangePct = lc.MaxPriceChangePct

	p.PlatformFeePct = lc.PlatformFeePct
	p.CreatorFeePct = lc.CreatorFeePct
	p.QuestionSaleFeePct = lc.QuestionSaleFeePct

	p.CreationFee = lc.CreationFee
	p.PoolCreationFee = lc.PoolCreationFee
	p.PoolContributionFee = lc.PoolContributionFee

	p.EarlyWithdrawPenaltyPct = lc.EarlyWithdrawPenaltyPct

	p.MinPoolDuration = lc.MinPoolDuration.Duration
	p.MaxPoolDuration = lc.MaxPoolDuration.Duration
	p.ExtensionGrace = lc.ExtensionGrace.Duration

	p.MaxTradesPerTick = lc.MaxTradesPerTick
	p.RapidTradeWindow = lc.RapidTradeWindow.Duration
	p.RapidTradeMaxFeePct = lc.RapidTradeMaxFeePct

	return p
}

// restoreEngine rehydrates the in-memory ledger from postgres. A fresh
// database restores to an empty ledger.
func restoreEngine(ctx context.Context, engine *ledger.Engine, st service.Stores) error {
	opinions, err := st.Opinions.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("wire: restore opinions: %w", err)
	}
	history, err := st.History.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("wire: restore history: %w", err)
	}
	pools, err := st.Pools.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("wire: restore pools: %w", err)
	}
	contributions, err := st.Contributions.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("wire: restore contributions: %w", err)
	}
	feeAccounts, err := st.FeeAccounts.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("wire: restore fee accounts: %w", err)
	}
	balances, err := st.Balances.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("wire: restore balances: %w", err)
	}

	if err := engine.Restore(ledger.State{
		Opinions:      opinions,
		History:       history,
		Pools:         pools,
		Contributions: contributions,
		FeeAccounts:   feeAccounts,
		Balances:      balances,
	}); err != nil {
		return fmt.Errorf("wire: restore ledger: %w", err)
	}
	return nil
}
