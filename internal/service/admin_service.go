package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/ledger"
	"github.com/alanyoungcy/opinioncore/internal/notify"
)

// AdminService handles privileged operations: the circuit breaker, opinion
// moderation, and parameter changes. Capability checks live in the engine's
// access gate; this layer adds persistence, events, audit, and alerts.
type AdminService struct {
	engine   *ledger.Engine
	stores   Stores
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// NewAdminService creates an AdminService with all required dependencies.
func NewAdminService(engine *ledger.Engine, stores Stores, bus domain.SignalBus, logger *slog.Logger) *AdminService {
	return &AdminService{
		engine: engine,
		stores: stores,
		bus:    bus,
		logger: logger.With(slog.String("component", "admin_service")),
	}
}

// WithNotifier attaches an operator notifier so pauses and parameter changes
// raise alerts.
func (s *AdminService) WithNotifier(n Notifier) *AdminService {
	s.notifier = n
	return s
}

// Pause halts trading and pool operations. Deposits, withdrawals, claims, and
// pool refunds stay open.
func (s *AdminService) Pause(ctx context.Context, actor common.Address) error {
	mut, err := s.engine.Pause(actor)
	if err != nil {
		return fmt.Errorf("admin_service: pause: %w", err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "ledger_paused", map[string]any{
		"actor": actor.Hex(),
	})
	s.notify(ctx, notify.Alert{
		Event:   "ledger_paused",
		Title:   "Ledger paused",
		Message: "trading halted by " + actor.Hex(),
	})

	s.logger.WarnContext(ctx, "ledger paused", slog.String("actor", actor.Hex()))
	return nil
}

// Unpause resumes trading.
func (s *AdminService) Unpause(ctx context.Context, actor common.Address) error {
	mut, err := s.engine.Unpause(actor)
	if err != nil {
		return fmt.Errorf("admin_service: unpause: %w", err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "ledger_unpaused", map[string]any{
		"actor": actor.Hex(),
	})
	s.notify(ctx, notify.Alert{
		Event:   "ledger_unpaused",
		Title:   "Ledger unpaused",
		Message: "trading resumed by " + actor.Hex(),
	})

	s.logger.InfoContext(ctx, "ledger unpaused", slog.String("actor", actor.Hex()))
	return nil
}

// SetOpinionActive moderates an opinion in or out of circulation.
func (s *AdminService) SetOpinionActive(ctx context.Context, actor common.Address, opinionID uint64, active bool) error {
	mut, err := s.engine.SetOpinionActive(actor, opinionID, active)
	if err != nil {
		return fmt.Errorf("admin_service: set opinion %d active=%t: %w", opinionID, active, err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return fmt.Errorf("admin_service: set opinion %d active=%t: %w", opinionID, active, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "opinion_moderated", map[string]any{
		"actor":      actor.Hex(),
		"opinion_id": opinionID,
		"active":     active,
	})

	s.logger.InfoContext(ctx, "opinion moderated",
		slog.String("actor", actor.Hex()),
		slog.Uint64("opinion_id", opinionID),
		slog.Bool("active", active),
	)
	return nil
}

// SetParams replaces the ledger parameters after validation.
func (s *AdminService) SetParams(ctx context.Context, actor common.Address, p ledger.Params) error {
	mut, err := s.engine.SetParams(actor, p)
	if err != nil {
		return fmt.Errorf("admin_service: set params: %w", err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "parameters_changed", map[string]any{
		"actor":                actor.Hex(),
		"initial_price":        p.InitialPrice,
		"platform_fee_pct":     p.PlatformFeePct,
		"creator_fee_pct":      p.CreatorFeePct,
		"max_price_change_pct": p.MaxPriceChangePct,
	})
	s.notify(ctx, notify.Alert{
		Event:   "parameters_changed",
		Title:   "Parameters changed",
		Message: "ledger parameters replaced by " + actor.Hex(),
	})

	s.logger.InfoContext(ctx, "parameters changed", slog.String("actor", actor.Hex()))
	return nil
}

// Params returns the current ledger parameters.
func (s *AdminService) Params(ctx context.Context) ledger.Params {
	return s.engine.Params()
}

// Paused reports whether trading is halted.
func (s *AdminService) Paused(ctx context.Context) bool {
	return s.engine.Paused()
}

func (s *AdminService) notify(ctx context.Context, a notify.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "notify failed",
			slog.String("event", a.Event),
			slog.String("error", err.Error()),
		)
	}
}
