package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// AnswerHistoryStore implements domain.AnswerHistoryStore using PostgreSQL.
// Rows are append-only; there is no update or delete path apart from the
// archiver's retention sweep.
type AnswerHistoryStore struct {
	pool *pgxpool.Pool
}

// NewAnswerHistoryStore creates a new AnswerHistoryStore backed by the given
// connection pool.
func NewAnswerHistoryStore(pool *pgxpool.Pool) *AnswerHistoryStore {
	return &AnswerHistoryStore{pool: pool}
}

// Append inserts one history entry. Re-inserting the same (opinion, seq) pair
// is a no-op so write-through retries stay idempotent.
func (s *AnswerHistoryStore) Append(ctx context.Context, e domain.AnswerHistoryEntry) error {
	const query = `
		INSERT INTO answer_history (opinion_id, seq, answer, description, owner, price, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (opinion_id, seq) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		int64(e.OpinionID), e.Seq, e.Answer, e.Description, e.Owner.Hex(), e.Price, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: append history %d/%d: %w", e.OpinionID, e.Seq, err)
	}
	return nil
}

// ListByOpinion returns an opinion's history in sequence order.
func (s *AnswerHistoryStore) ListByOpinion(ctx context.Context, opinionID uint64, opts domain.ListOpts) ([]domain.AnswerHistoryEntry, error) {
	query := `SELECT opinion_id, seq, answer, description, owner, price, ts
		FROM answer_history WHERE opinion_id = $1 ORDER BY seq`
	args := []any{int64(opinionID)}

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

// ListAll returns every history entry ordered by opinion then sequence. Used
// for ledger rehydration.
func (s *AnswerHistoryStore) ListAll(ctx context.Context) ([]domain.AnswerHistoryEntry, error) {
	const query = `SELECT opinion_id, seq, answer, description, owner, price, ts
		FROM answer_history ORDER BY opinion_id, seq`
	return s.list(ctx, query)
}

// ListBefore returns history entries older than cutoff, oldest first. Used by
// the archiver to page cold rows out to object storage.
func (s *AnswerHistoryStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AnswerHistoryEntry, error) {
	const query = `SELECT opinion_id, seq, answer, description, owner, price, ts
		FROM answer_history WHERE ts < $1 ORDER BY ts LIMIT $2`
	return s.list(ctx, query, cutoff, limit)
}

func (s *AnswerHistoryStore) list(ctx context.Context, query string, args ...any) ([]domain.AnswerHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history: %w", err)
	}
	defer rows.Close()

	var entries []domain.AnswerHistoryEntry
	for rows.Next() {
		var e domain.AnswerHistoryEntry
		var id int64
		var owner string
		if err := rows.Scan(&id, &e.Seq, &e.Answer, &e.Description, &owner, &e.Price, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		e.OpinionID = uint64(id)
		e.Owner = common.HexToAddress(owner)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list history rows: %w", err)
	}
	return entries, nil
}
