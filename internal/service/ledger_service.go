package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/ledger"
)

// CreateOpinionRequest carries the fields needed to mint a new opinion.
type CreateOpinionRequest struct {
	Actor       common.Address
	Question    string
	Answer      string
	Description string
	Categories  []string
	IPFSHash    string
	Link        string
}

// LedgerService handles the opinion lifecycle: creation, answer trading, and
// the question resale market.
type LedgerService struct {
	engine *ledger.Engine
	stores Stores
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewLedgerService creates a LedgerService with all required dependencies.
func NewLedgerService(engine *ledger.Engine, stores Stores, bus domain.SignalBus, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		engine: engine,
		stores: stores,
		bus:    bus,
		logger: logger.With(slog.String("component", "ledger_service")),
	}
}

// CreateOpinion mints a new opinion, persists it, publishes the creation
// event, and writes an audit log entry.
func (s *LedgerService) CreateOpinion(ctx context.Context, req CreateOpinionRequest) (domain.Opinion, error) {
	op, mut, err := s.engine.CreateOpinion(req.Actor, req.Question, req.Answer, req.Description, req.Categories, req.IPFSHash, req.Link)
	if err != nil {
		return domain.Opinion{}, fmt.Errorf("ledger_service: create opinion: %w", err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return op, fmt.Errorf("ledger_service: create opinion %d: %w", op.ID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "opinion_created", map[string]any{
		"opinion_id": op.ID,
		"creator":    req.Actor.Hex(),
		"question":   req.Question,
	})

	s.logger.InfoContext(ctx, "opinion created",
		slog.Uint64("opinion_id", op.ID),
		slog.String("creator", req.Actor.Hex()),
		slog.Int64("next_price", op.NextPrice),
	)
	return op, nil
}

// SubmitAnswer purchases the right to answer an opinion at its current price.
func (s *LedgerService) SubmitAnswer(ctx context.Context, actor common.Address, opinionID uint64, answer, description string) (domain.TradeReceipt, error) {
	receipt, mut, err := s.engine.SubmitAnswer(actor, opinionID, answer, description)
	if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("ledger_service: submit answer %d: %w", opinionID, err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return receipt, fmt.Errorf("ledger_service: submit answer %d: %w", opinionID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "answer_submitted", map[string]any{
		"opinion_id":    opinionID,
		"buyer":         actor.Hex(),
		"price_paid":    receipt.PricePaid,
		"next_price":    receipt.NextPrice,
		"fee_escalated": receipt.FeeEscalated,
		"pool_rewarded": receipt.PoolRewarded,
	})

	s.logger.InfoContext(ctx, "answer submitted",
		slog.Uint64("opinion_id", opinionID),
		slog.String("buyer", actor.Hex()),
		slog.Int64("price_paid", receipt.PricePaid),
		slog.Int64("next_price", receipt.NextPrice),
	)
	return receipt, nil
}

// ListQuestion puts an opinion's question up for sale.
func (s *LedgerService) ListQuestion(ctx context.Context, actor common.Address, opinionID uint64, price int64) error {
	mut, err := s.engine.ListQuestion(actor, opinionID, price)
	if err != nil {
		return fmt.Errorf("ledger_service: list question %d: %w", opinionID, err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return fmt.Errorf("ledger_service: list question %d: %w", opinionID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "question_listed", map[string]any{
		"opinion_id": opinionID,
		"seller":     actor.Hex(),
		"price":      price,
	})
	return nil
}

// CancelQuestionListing takes a listed question off the market.
func (s *LedgerService) CancelQuestionListing(ctx context.Context, actor common.Address, opinionID uint64) error {
	mut, err := s.engine.CancelQuestionListing(actor, opinionID)
	if err != nil {
		return fmt.Errorf("ledger_service: cancel listing %d: %w", opinionID, err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return fmt.Errorf("ledger_service: cancel listing %d: %w", opinionID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "question_unlisted", map[string]any{
		"opinion_id": opinionID,
		"seller":     actor.Hex(),
	})
	return nil
}

// BuyQuestion purchases a listed question, transferring ownership and the
// future creator-fee stream to the buyer.
func (s *LedgerService) BuyQuestion(ctx context.Context, actor common.Address, opinionID uint64) (domain.QuestionSaleReceipt, error) {
	receipt, mut, err := s.engine.BuyQuestion(actor, opinionID)
	if err != nil {
		return domain.QuestionSaleReceipt{}, fmt.Errorf("ledger_service: buy question %d: %w", opinionID, err)
	}
	if err := persistMutation(ctx, s.stores, mut); err != nil {
		return receipt, fmt.Errorf("ledger_service: buy question %d: %w", opinionID, err)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	auditLog(ctx, s.stores.Audit, s.logger, "question_sold", map[string]any{
		"opinion_id":    opinionID,
		"buyer":         actor.Hex(),
		"seller":        receipt.Seller.Hex(),
		"price_paid":    receipt.PricePaid,
		"seller_amount": receipt.SellerAmount,
	})

	s.logger.InfoContext(ctx, "question sold",
		slog.Uint64("opinion_id", opinionID),
		slog.String("buyer", actor.Hex()),
		slog.String("seller", receipt.Seller.Hex()),
		slog.Int64("price_paid", receipt.PricePaid),
	)
	return receipt, nil
}

// GetOpinion returns the live in-memory view of a single opinion.
func (s *LedgerService) GetOpinion(ctx context.Context, id uint64) (domain.Opinion, error) {
	op, err := s.engine.Opinion(id)
	if err != nil {
		return domain.Opinion{}, fmt.Errorf("ledger_service: get opinion %d: %w", id, err)
	}
	return op, nil
}

// ListOpinions returns active opinions from storage with pagination. List
// queries read postgres rather than the engine so they never contend with
// trading for the engine lock.
func (s *LedgerService) ListOpinions(ctx context.Context, opts domain.ListOpts) ([]domain.Opinion, error) {
	ops, err := s.stores.Opinions.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list opinions: %w", err)
	}
	return ops, nil
}

// GetHistory returns an opinion's answer history from storage with
// pagination.
func (s *LedgerService) GetHistory(ctx context.Context, opinionID uint64, opts domain.ListOpts) ([]domain.AnswerHistoryEntry, error) {
	if _, err := s.engine.Opinion(opinionID); err != nil {
		return nil, fmt.Errorf("ledger_service: get history %d: %w", opinionID, err)
	}
	entries, err := s.stores.History.ListByOpinion(ctx, opinionID, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: get history %d: %w", opinionID, err)
	}
	return entries, nil
}
