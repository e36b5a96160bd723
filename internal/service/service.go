// Package service orchestrates the in-memory ledger engine against durable
// storage and the signal bus. Every accepted engine operation returns a
// mutation of post-state snapshots; the services write those through to
// postgres, publish the transition events, and record an audit trail. The
// engine stays the single source of truth while it runs; postgres exists to
// restore it on startup and to serve history queries.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/ledger"
	"github.com/alanyoungcy/opinioncore/internal/notify"
)

// Stores bundles the durable stores a service writes mutations through to.
type Stores struct {
	Opinions      domain.OpinionStore
	History       domain.AnswerHistoryStore
	Pools         domain.PoolStore
	Contributions domain.ContributionStore
	FeeAccounts   domain.FeeAccountStore
	Balances      domain.BalanceStore
	Audit         domain.AuditStore
}

// Notifier delivers operator alerts. The concrete implementation lives in the
// notify package; services only depend on this shape so tests can fake it.
type Notifier interface {
	Notify(ctx context.Context, a notify.Alert) error
}

// eventStream is the durable Redis stream every ledger event is appended to,
// in commit order, for catch-up consumers.
const eventStream = "ledger:events"

// eventChannel maps an event kind to its live pub/sub channel.
func eventChannel(kind domain.EventKind) string {
	switch kind {
	case domain.EventOpinionCreated,
		domain.EventAnswerSubmitted,
		domain.EventQuestionListed,
		domain.EventQuestionUnlisted,
		domain.EventQuestionSold,
		domain.EventOpinionModerated:
		return "opinions"
	case domain.EventPoolCreated,
		domain.EventPoolContributed,
		domain.EventPoolExecuted,
		domain.EventPoolExpired,
		domain.EventPoolExtended,
		domain.EventPoolWithdrawal,
		domain.EventRewardsDistributed:
		return "pools"
	case domain.EventFeesClaimed,
		domain.EventDeposit,
		domain.EventBalanceWithdrawn:
		return "fees"
	default:
		return "admin"
	}
}

// eventEnvelope is the JSON wire form of a ledger event.
type eventEnvelope struct {
	Kind      string         `json:"kind"`
	OpinionID uint64         `json:"opinion_id,omitempty"`
	PoolID    uint64         `json:"pool_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

func encodeEvent(ev domain.Event) ([]byte, error) {
	env := eventEnvelope{
		Kind:      string(ev.Kind),
		OpinionID: ev.OpinionID,
		PoolID:    ev.PoolID,
		Amount:    ev.Amount,
		Detail:    ev.Detail,
		At:        ev.At,
	}
	if ev.Actor != (common.Address{}) {
		env.Actor = ev.Actor.Hex()
	}
	return json.Marshal(env)
}

// persistMutation writes every snapshot the mutation carries through to the
// stores. Snapshots are post-state upserts keyed by primary key, so replaying
// a mutation is idempotent.
func persistMutation(ctx context.Context, st Stores, m ledger.Mutation) error {
	for _, op := range m.Opinions {
		if err := st.Opinions.Upsert(ctx, op); err != nil {
			return fmt.Errorf("persist opinion %d: %w", op.ID, err)
		}
	}
	for _, h := range m.History {
		if err := st.History.Append(ctx, h); err != nil {
			return fmt.Errorf("persist history %d/%d: %w", h.OpinionID, h.Seq, err)
		}
	}
	for _, p := range m.Pools {
		if err := st.Pools.Upsert(ctx, p); err != nil {
			return fmt.Errorf("persist pool %d: %w", p.ID, err)
		}
	}
	for _, c := range m.Contributions {
		if err := st.Contributions.Upsert(ctx, c); err != nil {
			return fmt.Errorf("persist contribution %d/%s: %w", c.PoolID, c.Contributor.Hex(), err)
		}
	}
	for _, a := range m.FeeAccounts {
		if err := st.FeeAccounts.Upsert(ctx, a); err != nil {
			return fmt.Errorf("persist fee account %s: %w", a.Owner.Hex(), err)
		}
	}
	for _, b := range m.Balances {
		if err := st.Balances.Upsert(ctx, b); err != nil {
			return fmt.Errorf("persist balance %s: %w", b.Owner.Hex(), err)
		}
	}
	return nil
}

// publishEvents fans the mutation's events out: live pub/sub per channel plus
// an append to the durable event stream. Delivery is best effort; the state
// change is already committed and persisted, so failures are logged, not
// returned.
func publishEvents(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, events []domain.Event) {
	if bus == nil {
		return
	}
	for _, ev := range events {
		payload, err := encodeEvent(ev)
		if err != nil {
			logger.ErrorContext(ctx, "encode event failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := bus.Publish(ctx, eventChannel(ev.Kind), payload); err != nil {
			logger.WarnContext(ctx, "publish event failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
		if err := bus.StreamAppend(ctx, eventStream, payload); err != nil {
			logger.WarnContext(ctx, "stream append failed",
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// auditLog writes an audit entry, logging a warning instead of failing the
// operation when the audit store is unavailable.
func auditLog(ctx context.Context, audit domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
