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

// OpinionStore implements domain.OpinionStore using PostgreSQL.
type OpinionStore struct {
	pool *pgxpool.Pool
}

// NewOpinionStore creates a new OpinionStore backed by the given connection pool.
func NewOpinionStore(pool *pgxpool.Pool) *OpinionStore {
	return &OpinionStore{pool: pool}
}

const opinionCols = `id, question, creator, question_owner, current_answer,
	current_description, current_answer_owner, last_price, next_price,
	total_volume, sale_price, is_active, categories, ipfs_hash, link,
	created_at, updated_at`

// Upsert inserts or updates a single opinion.
func (s *OpinionStore) Upsert(ctx context.Context, o domain.Opinion) error {
	const query = `
		INSERT INTO opinions (
			id, question, creator, question_owner, current_answer,
			current_description, current_answer_owner, last_price, next_price,
			total_volume, sale_price, is_active, categories, ipfs_hash, link,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, $17
		)
		ON CONFLICT (id) DO UPDATE SET
			question_owner       = EXCLUDED.question_owner,
			current_answer       = EXCLUDED.current_answer,
			current_description  = EXCLUDED.current_description,
			current_answer_owner = EXCLUDED.current_answer_owner,
			last_price           = EXCLUDED.last_price,
			next_price           = EXCLUDED.next_price,
			total_volume         = EXCLUDED.total_volume,
			sale_price           = EXCLUDED.sale_price,
			is_active            = EXCLUDED.is_active,
			ipfs_hash            = EXCLUDED.ipfs_hash,
			link                 = EXCLUDED.link,
			updated_at           = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		int64(o.ID), o.Question, o.Creator.Hex(), o.QuestionOwner.Hex(), o.CurrentAnswer,
		o.CurrentDescription, o.CurrentAnswerOwner.Hex(), o.LastPrice, o.NextPrice,
		o.TotalVolume, o.SalePrice, o.IsActive, o.Categories, o.IPFSHash, o.Link,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert opinion %d: %w", o.ID, err)
	}
	return nil
}

// scanOpinion scans a single opinion row into a domain.Opinion.
func scanOpinion(row pgx.Row) (domain.Opinion, error) {
	var o domain.Opinion
	var id int64
	var creator, questionOwner, answerOwner string
	err := row.Scan(
		&id, &o.Question, &creator, &questionOwner, &o.CurrentAnswer,
		&o.CurrentDescription, &answerOwner, &o.LastPrice, &o.NextPrice,
		&o.TotalVolume, &o.SalePrice, &o.IsActive, &o.Categories, &o.IPFSHash, &o.Link,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Opinion{}, err
	}
	o.ID = uint64(id)
	o.Creator = common.HexToAddress(creator)
	o.QuestionOwner = common.HexToAddress(questionOwner)
	o.CurrentAnswerOwner = common.HexToAddress(answerOwner)
	return o, nil
}

// GetByID retrieves an opinion by its primary key.
func (s *OpinionStore) GetByID(ctx context.Context, id uint64) (domain.Opinion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+opinionCols+` FROM opinions WHERE id = $1`, int64(id))
	o, err := scanOpinion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Opinion{}, domain.ErrNotFound
		}
		return domain.Opinion{}, fmt.Errorf("postgres: get opinion %d: %w", id, err)
	}
	return o, nil
}

// ListActive returns active opinions with pagination and optional time filtering.
func (s *OpinionStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Opinion, error) {
	query := `SELECT ` + opinionCols + ` FROM opinions WHERE is_active`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.list(ctx, query, args...)
}

// ListAll returns every opinion ordered by id. Used for ledger rehydration.
func (s *OpinionStore) ListAll(ctx context.Context) ([]domain.Opinion, error) {
	return s.list(ctx, `SELECT `+opinionCols+` FROM opinions ORDER BY id`)
}

func (s *OpinionStore) list(ctx context.Context, query string, args ...any) ([]domain.Opinion, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opinions: %w", err)
	}
	defer rows.Close()

	var opinions []domain.Opinion
	for rows.Next() {
		o, err := scanOpinion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opinion: %w", err)
		}
		opinions = append(opinions, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opinions rows: %w", err)
	}
	return opinions, nil
}

// Count returns the total number of opinions in the database.
func (s *OpinionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opinions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count opinions: %w", err)
	}
	return count, nil
}
