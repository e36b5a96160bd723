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

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a new PoolStore backed by the given connection pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const poolCols = `id, opinion_id, proposed_answer, total_amount, deadline,
	creator, status, name, ipfs_hash, target_price, executed_at, created_at`

// Upsert inserts or updates a single pool.
func (s *PoolStore) Upsert(ctx context.Context, p domain.Pool) error {
	const query = `
		INSERT INTO pools (
			id, opinion_id, proposed_answer, total_amount, deadline,
			creator, status, name, ipfs_hash, target_price, executed_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11, $12
		)
		ON CONFLICT (id) DO UPDATE SET
			total_amount = EXCLUDED.total_amount,
			deadline     = EXCLUDED.deadline,
			status       = EXCLUDED.status,
			target_price = EXCLUDED.target_price,
			executed_at  = EXCLUDED.executed_at`

	_, err := s.pool.Exec(ctx, query,
		int64(p.ID), int64(p.OpinionID), p.ProposedAnswer, p.TotalAmount, p.Deadline,
		p.Creator.Hex(), string(p.Status), p.Name, p.IPFSHash, p.TargetPrice, p.ExecutedAt, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pool %d: %w", p.ID, err)
	}
	return nil
}

// scanPool scans a single pool row into a domain.Pool.
func scanPool(row pgx.Row) (domain.Pool, error) {
	var p domain.Pool
	var id, opinionID int64
	var creator, status string
	err := row.Scan(
		&id, &opinionID, &p.ProposedAnswer, &p.TotalAmount, &p.Deadline,
		&creator, &status, &p.Name, &p.IPFSHash, &p.TargetPrice, &p.ExecutedAt, &p.CreatedAt,
	)
	if err != nil {
		return domain.Pool{}, err
	}
	p.ID = uint64(id)
	p.OpinionID = uint64(opinionID)
	p.Creator = common.HexToAddress(creator)
	p.Status = domain.PoolStatus(status)
	return p, nil
}

// GetByID retrieves a pool by its primary key.
func (s *PoolStore) GetByID(ctx context.Context, id uint64) (domain.Pool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+poolCols+` FROM pools WHERE id = $1`, int64(id))
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("postgres: get pool %d: %w", id, err)
	}
	return p, nil
}

// ListByOpinion returns all pools targeting an opinion, ordered by id.
func (s *PoolStore) ListByOpinion(ctx context.Context, opinionID uint64) ([]domain.Pool, error) {
	return s.list(ctx,
		`SELECT `+poolCols+` FROM pools WHERE opinion_id = $1 ORDER BY id`, int64(opinionID))
}

// ListByStatus returns pools in the given status, soonest deadline first.
func (s *PoolStore) ListByStatus(ctx context.Context, status domain.PoolStatus, opts domain.ListOpts) ([]domain.Pool, error) {
	query := `SELECT ` + poolCols + ` FROM pools WHERE status = $1 ORDER BY deadline`
	args := []any{string(status)}

	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $3"
			args = append(args, opts.Offset)
		}
	}
	return s.list(ctx, query, args...)
}

// ListAll returns every pool ordered by id. Used for ledger rehydration.
func (s *PoolStore) ListAll(ctx context.Context) ([]domain.Pool, error) {
	return s.list(ctx, `SELECT `+poolCols+` FROM pools ORDER BY id`)
}

func (s *PoolStore) list(ctx context.Context, query string, args ...any) ([]domain.Pool, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pools rows: %w", err)
	}
	return pools, nil
}
