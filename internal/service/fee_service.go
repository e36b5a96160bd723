package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/ledger"
)

// FeeService handles funds movement: deposits, balance withdrawals, and
// pull-payment fee claims. All three stay available while trading is paused.
type FeeService struct {
	engine *ledger.Engine
	stores Stores
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewFeeService creates a FeeService with all required dependencies.
func NewFeeService(engine *ledger.Engine, stores Stores, bus domain.SignalBus, logger *slog.Logger) *FeeService {
	return &FeeService{
		engine: engine,
		stores: stores,
		bus:    bus,
		logger: logger.With(slog.String("component", "fee_service")),
	}
}

// Deposit credits an actor's spendable balance.
func (s *FeeService) Deposit(ctx context.Context, actor common.Address, amount int64) error {
	mut, err := s.engine.Deposit(actor, amount)
	if err != nil {
		return fmt.Errorf("fee_service: deposit: %w", err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return fmt.Errorf("fee_service: deposit: %w", err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "deposit", map[string]any{
		"owner":  actor.Hex(),
		"amount": amount,
	})

	s.logger.InfoContext(ctx, "deposit",
		slog.String("owner", actor.Hex()),
		slog.Int64("amount", amount),
	)
	return nil
}

// WithdrawBalance debits an actor's spendable balance. The caller issues the
// external transfer only after this returns.
func (s *FeeService) WithdrawBalance(ctx context.Context, actor common.Address, amount int64) error {
	mut, err := s.engine.WithdrawBalance(actor, amount)
	if err != nil {
		return fmt.Errorf("fee_service: withdraw balance: %w", err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return fmt.Errorf("fee_service: withdraw balance: %w", err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "balance_withdrawn", map[string]any{
		"owner":  actor.Hex(),
		"amount": amount,
	})

	s.logger.InfoContext(ctx, "balance withdrawn",
		slog.String("owner", actor.Hex()),
		slog.Int64("amount", amount),
	)
	return nil
}

// ClaimFees drains the caller's accumulated fee account into their spendable
// balance and returns the amount claimed.
func (s *FeeService) ClaimFees(ctx context.Context, actor common.Address) (int64, error) {
	claimed, mut, err := s.engine.ClaimFees(actor)
	if err != nil {
		return 0, fmt.Errorf("fee_service: claim fees: %w", err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return claimed, fmt.Errorf("fee_service: claim fees: %w", err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "fees_claimed", map[string]any{
		"owner":   actor.Hex(),
		"claimed": claimed,
	})

	s.logger.InfoContext(ctx, "fees claimed",
		slog.String("owner", actor.Hex()),
		slog.Int64("claimed", claimed),
	)
	return claimed, nil
}

// Balances returns an actor's claimable fee balance and spendable deposit
// balance.
func (s *FeeService) Balances(ctx context.Context, owner common.Address) (fees int64, spendable int64) {
	return s.engine.FeeBalance(owner), s.engine.SpendableBalance(owner)
}
