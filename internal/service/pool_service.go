package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/ledger"
	"github.com/alanyoungcy/opinioncore/internal/notify"
)

// expirySweepLockTTL bounds how long a crashed sweeper can block its
// replacement.
const expirySweepLockTTL = time.Minute

// CreatePoolRequest carries the fields needed to open a funding pool.
type CreatePoolRequest struct {
	Actor               common.Address
	OpinionID           uint64
	ProposedAnswer      string
	Name                string
	IPFSHash            string
	Deadline            time.Time
	InitialContribution int64
}

// PoolService handles the funding pool lifecycle: creation, contributions,
// withdrawals, deadline extension, and the background expiry sweep.
type PoolService struct {
	engine   *ledger.Engine
	stores   Stores
	bus      domain.SignalBus
	locks    domain.LockManager
	notifier Notifier
	logger   *slog.Logger
}

// NewPoolService creates a PoolService with all required dependencies.
func NewPoolService(engine *ledger.Engine, stores Stores, bus domain.SignalBus, locks domain.LockManager, logger *slog.Logger) *PoolService {
	return &PoolService{
		engine: engine,
		stores: stores,
		bus:    bus,
		locks:  locks,
		logger: logger.With(slog.String("component", "pool_service")),
	}
}

// WithNotifier attaches an operator notifier so pool executions raise alerts.
// Without one the service runs silently.
func (s *PoolService) WithNotifier(n Notifier) *PoolService {
	s.notifier = n
	return s
}

// CreatePool opens a new funding pool, optionally seeding it with the
// creator's first contribution.
func (s *PoolService) CreatePool(ctx context.Context, req CreatePoolRequest) (domain.Pool, error) {
	pool, mut, err := s.engine.CreatePool(req.Actor, req.OpinionID, req.ProposedAnswer, req.Name, req.IPFSHash, req.Deadline, req.InitialContribution)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: create pool: %w", err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return pool, fmt.Errorf("pool_service: create pool %d: %w", pool.ID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "pool_created", map[string]any{
		"pool_id":    pool.ID,
		"opinion_id": req.OpinionID,
		"creator":    req.Actor.Hex(),
		"deadline":   req.Deadline,
	})

	s.logger.InfoContext(ctx, "pool created",
		slog.Uint64("pool_id", pool.ID),
		slog.Uint64("opinion_id", req.OpinionID),
		slog.String("creator", req.Actor.Hex()),
	)
	return pool, nil
}

// ContributeToPool credits a contribution and, when the funding target is
// crossed, executes the pool atomically in the same operation.
func (s *PoolService) ContributeToPool(ctx context.Context, actor common.Address, poolID uint64, amount int64) (domain.ContributionReceipt, error) {
	receipt, mut, err := s.engine.ContributeToPool(actor, poolID, amount)
	if err != nil {
		return domain.ContributionReceipt{}, fmt.Errorf("pool_service: contribute to pool %d: %w", poolID, err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return receipt, fmt.Errorf("pool_service: contribute to pool %d: %w", poolID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "pool_contributed", map[string]any{
		"pool_id":     poolID,
		"contributor": actor.Hex(),
		"accepted":    receipt.Accepted,
		"trimmed":     receipt.Trimmed,
		"executed":    receipt.Executed,
	})

	if receipt.Executed {
		s.logger.InfoContext(ctx, "pool executed",
			slog.Uint64("pool_id", poolID),
			slog.Int64("target_price", receipt.TargetPrice),
		)
		if s.notifier != nil {
			alert := notify.Alert{
				Event:   "pool_executed",
				Title:   "Pool executed",
				Message: fmt.Sprintf("pool %d bought its answer at %.2f", poolID, domain.Display(receipt.TargetPrice)),
				PoolID:  poolID,
				Amount:  receipt.TargetPrice,
			}
			if op, perr := s.engine.Pool(poolID); perr == nil {
				alert.OpinionID = op.OpinionID
			}
			if nerr := s.notifier.Notify(ctx, alert); nerr != nil {
				s.logger.WarnContext(ctx, "notify failed", slog.String("error", nerr.Error()))
			}
		}
	}
	return receipt, nil
}

// WithdrawFromExpiredPool refunds the caller's full stake from an expired
// pool.
func (s *PoolService) WithdrawFromExpiredPool(ctx context.Context, actor common.Address, poolID uint64) (int64, error) {
	refund, mut, err := s.engine.WithdrawFromExpiredPool(actor, poolID)
	if err != nil {
		return 0, fmt.Errorf("pool_service: withdraw from pool %d: %w", poolID, err)
	}
	return refund, s.finishWithdrawal(ctx, actor, poolID, refund, false, mut)
}

// WithdrawFromPoolEarly exits an active pool, surrendering the early
// withdrawal penalty.
func (s *PoolService) WithdrawFromPoolEarly(ctx context.Context, actor common.Address, poolID uint64) (int64, error) {
	refund, mut, err := s.engine.WithdrawFromPoolEarly(actor, poolID)
	if err != nil {
		return 0, fmt.Errorf("pool_service: early withdraw from pool %d: %w", poolID, err)
	}
	return refund, s.finishWithdrawal(ctx, actor, poolID, refund, true, mut)
}

// WithdrawFromExtendedPool refunds the caller's full stake from a pool in its
// extension window.
func (s *PoolService) WithdrawFromExtendedPool(ctx context.Context, actor common.Address, poolID uint64) (int64, error) {
	refund, mut, err := s.engine.WithdrawFromExtendedPool(actor, poolID)
	if err != nil {
		return 0, fmt.Errorf("pool_service: withdraw from extended pool %d: %w", poolID, err)
	}
	return refund, s.finishWithdrawal(ctx, actor, poolID, refund, false, mut)
}

func (s *PoolService) finishWithdrawal(ctx context.Context, actor common.Address, poolID uint64, refund int64, penalized bool, mut ledger.Mutation) error {
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return fmt.Errorf("pool_service: withdraw from pool %d: %w", poolID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "pool_withdrawal", map[string]any{
		"pool_id":     poolID,
		"contributor": actor.Hex(),
		"refund":      refund,
		"penalized":   penalized,
	})

	s.logger.InfoContext(ctx, "pool withdrawal",
		slog.Uint64("pool_id", poolID),
		slog.String("contributor", actor.Hex()),
		slog.Int64("refund", refund),
	)
	return nil
}

// ExtendPoolDeadline grants an expired pool its one extension window.
func (s *PoolService) ExtendPoolDeadline(ctx context.Context, actor common.Address, poolID uint64, newDeadline time.Time) error {
	mut, err := s.engine.ExtendPoolDeadline(actor, poolID, newDeadline)
	if err != nil {
		return fmt.Errorf("pool_service: extend pool %d: %w", poolID, err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return fmt.Errorf("pool_service: extend pool %d: %w", poolID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "pool_extended", map[string]any{
		"pool_id":      poolID,
		"creator":      actor.Hex(),
		"new_deadline": newDeadline,
	})
	return nil
}

// CheckPoolExpiry flips a single overdue pool to expired. Exposed so clients
// can settle a pool's status without waiting for the sweep.
func (s *PoolService) CheckPoolExpiry(ctx context.Context, poolID uint64) (bool, error) {
	flipped, mut, err := s.engine.CheckPoolExpiry(poolID)
	if err != nil {
		return false, fmt.Errorf("pool_service: check pool expiry %d: %w", poolID, err)
	}
	if !flipped {
		return false, nil
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return true, fmt.Errorf("pool_service: check pool expiry %d: %w", poolID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)
	return true, nil
}

// RunExpirySweeper periodically flips overdue pools to expired until the
// context is cancelled. A distributed lock keeps the sweep single-flight
// across replicas; losing the lock race just skips the round.
func (s *PoolService) RunExpirySweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "expiry sweeper started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *PoolService) sweepOnce(ctx context.Context) error {
	unlock, err := s.locks.Acquire(ctx, "pool_expiry_sweep", expirySweepLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil
		}
		return fmt.Errorf("pool_service: acquire sweep lock: %w", err)
	}
	defer unlock()

	flipped, mut, err := s.engine.SweepExpiredPools()
	if err != nil {
		return fmt.Errorf("pool_service: sweep expired pools: %w", err)
	}
	if len(flipped) == 0 {
		return nil
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return fmt.Errorf("pool_service: sweep expired pools: %w", err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "pools_expired", map[string]any{
		"pool_ids": flipped,
	})

	s.logger.InfoContext(ctx, "pools expired", slog.Int("count", len(flipped)))
	return nil
}

// GetPool returns a single pool with its effective status resolved.
func (s *PoolService) GetPool(ctx context.Context, poolID uint64) (domain.Pool, error) {
	pool, err := s.engine.Pool(poolID)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("pool_service: get pool %d: %w", poolID, err)
	}
	return pool, nil
}

// ListPoolsByOpinion returns every pool targeting an opinion.
func (s *PoolService) ListPoolsByOpinion(ctx context.Context, opinionID uint64) ([]domain.Pool, error) {
	if _, err := s.engine.Opinion(opinionID); err != nil {
		return nil, fmt.Errorf("pool_service: list pools for opinion %d: %w", opinionID, err)
	}
	return s.engine.PoolsByOpinion(opinionID), nil
}

// ListContributions returns a pool's contributions in first-contribution
// order.
func (s *PoolService) ListContributions(ctx context.Context, poolID uint64) ([]domain.Contribution, error) {
	contribs, err := s.engine.PoolContributions(poolID)
	if err != nil {
		return nil, fmt.Errorf("pool_service: list contributions for pool %d: %w", poolID, err)
	}
	return contribs, nil
}
