package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// FeeAccountStore implements domain.FeeAccountStore using PostgreSQL.
type FeeAccountStore struct {
	pool *pgxpool.Pool
}

// NewFeeAccountStore creates a new FeeAccountStore backed by the given
// connection pool.
func NewFeeAccountStore(pool *pgxpool.Pool) *FeeAccountStore {
	return &FeeAccountStore{pool: pool}
}

// Upsert writes the post-operation fee balance for an owner.
func (s *FeeAccountStore) Upsert(ctx context.Context, a domain.FeeAccount) error {
	const query = `
		INSERT INTO fee_accounts (owner, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner) DO UPDATE SET
			balance    = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, a.Owner.Hex(), a.Balance, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert fee account %s: %w", a.Owner.Hex(), err)
	}
	return nil
}

// Get retrieves the fee account for an owner. An owner with no row has a zero
// balance, not an error.
func (s *FeeAccountStore) Get(ctx context.Context, owner common.Address) (domain.FeeAccount, error) {
	var a domain.FeeAccount
	var hex string
	err := s.pool.QueryRow(ctx,
		`SELECT owner, balance, updated_at FROM fee_accounts WHERE owner = $1`,
		owner.Hex()).Scan(&hex, &a.Balance, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FeeAccount{Owner: owner}, nil
		}
		return domain.FeeAccount{}, fmt.Errorf("postgres: get fee account %s: %w", owner.Hex(), err)
	}
	a.Owner = common.HexToAddress(hex)
	return a, nil
}

// ListAll returns every fee account. Used for ledger rehydration.
func (s *FeeAccountStore) ListAll(ctx context.Context) ([]domain.FeeAccount, error) {
	rows, err := s.pool.Query(ctx, `SELECT owner, balance, updated_at FROM fee_accounts ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fee accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.FeeAccount
	for rows.Next() {
		var a domain.FeeAccount
		var hex string
		if err := rows.Scan(&hex, &a.Balance, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan fee account: %w", err)
		}
		a.Owner = common.HexToAddress(hex)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fee accounts rows: %w", err)
	}
	return accounts, nil
}

// BalanceStore implements domain.BalanceStore using PostgreSQL.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given connection
// pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Upsert writes the post-operation spendable balance for an owner.
func (s *BalanceStore) Upsert(ctx context.Context, b domain.Balance) error {
	const query = `
		INSERT INTO balances (owner, amount, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner) DO UPDATE SET
			amount     = EXCLUDED.amount,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, b.Owner.Hex(), b.Amount, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert balance %s: %w", b.Owner.Hex(), err)
	}
	return nil
}

// Get retrieves the spendable balance for an owner. An owner with no row has
// a zero balance, not an error.
func (s *BalanceStore) Get(ctx context.Context, owner common.Address) (domain.Balance, error) {
	var b domain.Balance
	var hex string
	err := s.pool.QueryRow(ctx,
		`SELECT owner, amount, updated_at FROM balances WHERE owner = $1`,
		owner.Hex()).Scan(&hex, &b.Amount, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Balance{Owner: owner}, nil
		}
		return domain.Balance{}, fmt.Errorf("postgres: get balance %s: %w", owner.Hex(), err)
	}
	b.Owner = common.HexToAddress(hex)
	return b, nil
}

// ListAll returns every balance. Used for ledger rehydration.
func (s *BalanceStore) ListAll(ctx context.Context) ([]domain.Balance, error) {
	rows, err := s.pool.Query(ctx, `SELECT owner, amount, updated_at FROM balances ORDER BY owner`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		var hex string
		if err := rows.Scan(&hex, &b.Amount, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		b.Owner = common.HexToAddress(hex)
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list balances rows: %w", err)
	}
	return balances, nil
}
