package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/server"
	"github.com/alanyoungcy/opinioncore/internal/server/handler"
	"github.com/alanyoungcy/opinioncore/internal/server/ws"
	"github.com/alanyoungcy/opinioncore/internal/service"
)

const (
	// expirySweepInterval is how often the pool expiry sweeper scans for
	// overdue pools.
	expirySweepInterval = time.Minute

	// archiveLockTTL bounds how long a single archive run may hold the
	// cross-instance lock.
	archiveLockTTL = 5 * time.Minute
)

// ServeMode runs the HTTP API, the WebSocket hub, and the pool expiry
// sweeper.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startLedgerWorkers(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// ArchiveMode runs only the cold-storage archiver. It is intended for a
// dedicated maintenance instance; the ledger engine is loaded but no trading
// API is exposed.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
		slog.Duration("interval", a.cfg.Archive.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchiveLoop(ctx, g, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	return g.Wait()
}

// FullMode runs everything: the HTTP API, the WebSocket hub, the expiry
// sweeper, and the archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startLedgerWorkers(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	if err := a.startArchiveLoop(ctx, g, deps); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	return g.Wait()
}

// buildServices constructs the service layer over the shared engine and
// stores.
func (a *App) buildServices(deps *Dependencies) (*service.LedgerService, *service.PoolService, *service.FeeService, *service.AdminService) {
	ledgerSvc := service.NewLedgerService(deps.Engine, deps.Stores, deps.SignalBus, a.logger)
	poolSvc := service.NewPoolService(deps.Engine, deps.Stores, deps.SignalBus, deps.LockManager, a.logger).
		WithNotifier(deps.Notifier)
	feeSvc := service.NewFeeService(deps.Engine, deps.Stores, deps.SignalBus, a.logger)
	adminSvc := service.NewAdminService(deps.Engine, deps.Stores, deps.SignalBus, a.logger).
		WithNotifier(deps.Notifier)
	return ledgerSvc, poolSvc, feeSvc, adminSvc
}

// startLedgerWorkers starts the background goroutines every trading instance
// needs: the pool expiry sweeper.
func (a *App) startLedgerWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	_, poolSvc, _, _ := a.buildServices(deps)
	g.Go(func() error {
		return poolSvc.RunExpirySweeper(ctx, expirySweepInterval)
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	ledgerSvc, poolSvc, feeSvc, adminSvc := a.buildServices(deps)

	startedAt := time.Now().UTC()

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: startedAt,
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Status:   handler.NewStatusHandler(a.cfg.Mode, deps.Engine.Paused, startedAt),
		Opinions: handler.NewOpinionHandler(ledgerSvc, a.logger),
		Pools:    handler.NewPoolHandler(poolSvc, a.logger),
		Funds:    handler.NewFundsHandler(feeSvc, a.logger),
		Admin:    handler.NewAdminHandler(adminSvc, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		AdminAPIKey:     a.cfg.Server.AdminAPIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiveLoop adds the periodic archive goroutine. Each run takes a
// distributed lock so only one instance archives at a time; a held lock means
// another instance is on it and the round is skipped.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archiver requires s3 configuration")
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := a.archiveOnce(ctx, deps, retention); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
	return nil
}

// archiveOnce performs a single archive run under the cross-instance lock.
// Answer history is backed up in place; audit rows are uploaded and then
// pruned.
func (a *App) archiveOnce(ctx context.Context, deps *Dependencies, retention time.Duration) error {
	unlock, err := deps.LockManager.Acquire(ctx, "ledger_archive", archiveLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.DebugContext(ctx, "archive lock held elsewhere, skipping round")
			return nil
		}
		return fmt.Errorf("acquire archive lock: %w", err)
	}
	defer unlock()

	cutoff := time.Now().UTC().Add(-retention)

	historyCount, err := deps.Archiver.ArchiveHistory(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive history: %w", err)
	}
	auditCount, err := deps.Archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive audit: %w", err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("history_rows", historyCount),
		slog.Int64("audit_rows", auditCount),
	)
	return nil
}
