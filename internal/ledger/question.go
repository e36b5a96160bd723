package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// ListQuestion puts an opinion's question up for sale at the given price.
// Listing transfers nothing; it only advertises. Relisting at a new price
// overwrites the previous listing.
func (e *Engine) ListQuestion(actor common.Address, opinionID uint64, price int64) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if e.paused {
		return m, domain.ErrPaused
	}
	op, ok := e.opinions[opinionID]
	if !ok {
		return m, domain.ErrNotFound
	}
	if !op.IsActive {
		return m, domain.ErrOpinionInactive
	}
	if op.QuestionOwner != actor {
		return m, domain.ErrNotOwner
	}
	if price <= 0 {
		return m, domain.ErrInvalidPrice
	}

	now := e.clock.Now()
	op.SalePrice = price
	op.UpdatedAt = now
	e.snapshotOpinion(&m, op)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventQuestionListed,
		OpinionID: opinionID,
		Actor:     actor,
		Amount:    price,
		At:        now,
	})
	return m, nil
}

// CancelQuestionListing removes an opinion's question from sale.
func (e *Engine) CancelQuestionListing(actor common.Address, opinionID uint64) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	op, ok := e.opinions[opinionID]
	if !ok {
		return m, domain.ErrNotFound
	}
	if op.QuestionOwner != actor {
		return m, domain.ErrNotOwner
	}
	if op.SalePrice == 0 {
		return m, domain.ErrNotListed
	}

	now := e.clock.Now()
	op.SalePrice = 0
	op.UpdatedAt = now
	e.snapshotOpinion(&m, op)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventQuestionUnlisted,
		OpinionID: opinionID,
		Actor:     actor,
		At:        now,
	})
	return m, nil
}

// BuyQuestion purchases a listed question at its asking price. The seller
// receives the price minus the platform cut and ownership of the question
// transfers, including its future creator-fee stream. The answer position is
// untouched.
func (e *Engine) BuyQuestion(actor common.Address, opinionID uint64) (domain.QuestionSaleReceipt, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if e.paused {
		return domain.QuestionSaleReceipt{}, m, domain.ErrPaused
	}
	op, ok := e.opinions[opinionID]
	if !ok {
		return domain.QuestionSaleReceipt{}, m, domain.ErrNotFound
	}
	if !op.IsActive {
		return domain.QuestionSaleReceipt{}, m, domain.ErrOpinionInactive
	}
	if op.SalePrice == 0 {
		return domain.QuestionSaleReceipt{}, m, domain.ErrNotListed
	}
	seller := op.QuestionOwner
	if seller == actor {
		return domain.QuestionSaleReceipt{}, m, domain.ErrSameOwner
	}
	price := op.SalePrice
	if e.balances[actor] < price {
		return domain.QuestionSaleReceipt{}, m, domain.ErrInsufficientFunds
	}
	tick := e.clock.Tick()
	now := e.clock.Now()
	if err := e.guard.Check(actor, opinionID, tick); err != nil {
		return domain.QuestionSaleReceipt{}, m, err
	}
	sellerAmount, platformFee := splitQuestionSale(price, e.params.QuestionSaleFeePct)

	e.creditBalance(&m, actor, -price, now)
	e.creditFee(&m, seller, sellerAmount, now)
	e.creditFee(&m, e.treasury, platformFee, now)

	op.QuestionOwner = actor
	op.SalePrice = 0
	op.UpdatedAt = now
	e.snapshotOpinion(&m, op)
	e.guard.Record(actor, opinionID, tick, now)

	receipt := domain.QuestionSaleReceipt{
		OpinionID:    opinionID,
		Seller:       seller,
		Buyer:        actor,
		PricePaid:    price,
		SellerAmount: sellerAmount,
		PlatformFee:  platformFee,
	}

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventQuestionSold,
		OpinionID: opinionID,
		Actor:     actor,
		Amount:    price,
		Detail: map[string]any{
			"seller":        seller.Hex(),
			"seller_amount": sellerAmount,
			"platform_fee":  platformFee,
		},
		At: now,
	})
	return receipt, m, nil
}
