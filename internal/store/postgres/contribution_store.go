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

// ContributionStore implements domain.ContributionStore using PostgreSQL.
type ContributionStore struct {
	pool *pgxpool.Pool
}

// NewContributionStore creates a new ContributionStore backed by the given
// connection pool.
func NewContributionStore(pool *pgxpool.Pool) *ContributionStore {
	return &ContributionStore{pool: pool}
}

const contributionCols = `pool_id, contributor, amount, position, withdrawn, updated_at`

// Upsert inserts or updates one (pool, contributor) row. The position column
// is set on first insert and never changes afterwards.
func (s *ContributionStore) Upsert(ctx context.Context, c domain.Contribution) error {
	const query = `
		INSERT INTO contributions (pool_id, contributor, amount, position, withdrawn, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pool_id, contributor) DO UPDATE SET
			amount     = EXCLUDED.amount,
			withdrawn  = EXCLUDED.withdrawn,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		int64(c.PoolID), c.Contributor.Hex(), c.Amount, c.Position, c.Withdrawn, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert contribution %d/%s: %w", c.PoolID, c.Contributor.Hex(), err)
	}
	return nil
}

// Get retrieves one contribution by its composite key.
func (s *ContributionStore) Get(ctx context.Context, poolID uint64, contributor common.Address) (domain.Contribution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contributionCols+` FROM contributions WHERE pool_id = $1 AND contributor = $2`,
		int64(poolID), contributor.Hex())
	c, err := scanContribution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contribution{}, domain.ErrNotFound
		}
		return domain.Contribution{}, fmt.Errorf("postgres: get contribution %d/%s: %w", poolID, contributor.Hex(), err)
	}
	return c, nil
}

// ListByPool returns a pool's contributions in first-contribution order.
func (s *ContributionStore) ListByPool(ctx context.Context, poolID uint64) ([]domain.Contribution, error) {
	return s.list(ctx,
		`SELECT `+contributionCols+` FROM contributions WHERE pool_id = $1 ORDER BY position`,
		int64(poolID))
}

// ListAll returns every contribution ordered by pool then position. Used for
// ledger rehydration.
func (s *ContributionStore) ListAll(ctx context.Context) ([]domain.Contribution, error) {
	return s.list(ctx,
		`SELECT `+contributionCols+` FROM contributions ORDER BY pool_id, position`)
}

func scanContribution(row pgx.Row) (domain.Contribution, error) {
	var c domain.Contribution
	var poolID int64
	var contributor string
	err := row.Scan(&poolID, &contributor, &c.Amount, &c.Position, &c.Withdrawn, &c.UpdatedAt)
	if err != nil {
		return domain.Contribution{}, err
	}
	c.PoolID = uint64(poolID)
	c.Contributor = common.HexToAddress(contributor)
	return c, nil
}

func (s *ContributionStore) list(ctx context.Context, query string, args ...any) ([]domain.Contribution, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list contributions rows: %w", err)
	}
	return contributions, nil
}
