package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpinionStore persists opinions.
type OpinionStore interface {
	Upsert(ctx context.Context, o Opinion) error
	GetByID(ctx context.Context, id uint64) (Opinion, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Opinion, error)
	ListAll(ctx context.Context) ([]Opinion, error)
	Count(ctx context.Context) (int64, error)
}

// AnswerHistoryStore persists the append-only answer history.
type AnswerHistoryStore interface {
	Append(ctx context.Context, e AnswerHistoryEntry) error
	ListByOpinion(ctx context.Context, opinionID uint64, opts ListOpts) ([]AnswerHistoryEntry, error)
	ListAll(ctx context.Context) ([]AnswerHistoryEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AnswerHistoryEntry, error)
}

// PoolStore persists pools.
type PoolStore interface {
	Upsert(ctx context.Context, p Pool) error
	GetByID(ctx context.Context, id uint64) (Pool, error)
	ListByOpinion(ctx context.Context, opinionID uint64) ([]Pool, error)
	ListByStatus(ctx context.Context, status PoolStatus, opts ListOpts) ([]Pool, error)
	ListAll(ctx context.Context) ([]Pool, error)
}

// ContributionStore persists pool contributions keyed by (pool, contributor).
type ContributionStore interface {
	Upsert(ctx context.Context, c Contribution) error
	Get(ctx context.Context, poolID uint64, contributor common.Address) (Contribution, error)
	ListByPool(ctx context.Context, poolID uint64) ([]Contribution, error)
	ListAll(ctx context.Context) ([]Contribution, error)
}

// FeeAccountStore persists pull-payment fee balances.
type FeeAccountStore interface {
	Upsert(ctx context.Context, a FeeAccount) error
	Get(ctx context.Context, owner common.Address) (FeeAccount, error)
	ListAll(ctx context.Context) ([]FeeAccount, error)
}

// BalanceStore persists spendable deposit balances.
type BalanceStore interface {
	Upsert(ctx context.Context, b Balance) error
	Get(ctx context.Context, owner common.Address) (Balance, error)
	ListAll(ctx context.Context) ([]Balance, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
