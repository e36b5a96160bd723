package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// effectiveStatus resolves the lazily-evaluated pool status at a point in
// time. A pool past its deadline without executing reads as expired even
// before any expiry sweep has touched it.
func effectiveStatus(p *domain.Pool, now time.Time) domain.PoolStatus {
	if p.Status == domain.PoolStatusActive && !now.Before(p.Deadline) {
		return domain.PoolStatusExpired
	}
	return p.Status
}

// CreatePool opens a collective fund aimed at installing a proposed answer on
// an opinion. The flat pool creation fee goes to the treasury; an optional
// initial contribution is processed under the same rules as ContributeToPool,
// including immediate execution when it alone crosses the target.
func (e *Engine) CreatePool(actor common.Address, opinionID uint64, proposedAnswer, name, ipfsHash string, deadline time.Time, initialContribution int64) (domain.Pool, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if e.paused {
		return domain.Pool{}, m, domain.ErrPaused
	}
	op, ok := e.opinions[opinionID]
	if !ok {
		return domain.Pool{}, m, domain.ErrNotFound
	}
	if !op.IsActive {
		return domain.Pool{}, m, domain.ErrOpinionInactive
	}
	if proposedAnswer == op.CurrentAnswer {
		return domain.Pool{}, m, domain.ErrSameAnswer
	}
	if err := e.validateText(proposedAnswer, e.params.MaxAnswerLen, true); err != nil {
		return domain.Pool{}, m, fmt.Errorf("proposed_answer: %w", err)
	}
	if err := e.validateText(name, e.params.MaxPoolNameLen, false); err != nil {
		return domain.Pool{}, m, fmt.Errorf("name: %w", err)
	}
	if err := e.validateText(ipfsHash, e.params.MaxLinkLen, false); err != nil {
		return domain.Pool{}, m, fmt.Errorf("ipfs_hash: %w", err)
	}
	if initialContribution < 0 {
		return domain.Pool{}, m, domain.ErrZeroAmount
	}

	now := e.clock.Now()
	life := deadline.Sub(now)
	if life < e.params.MinPoolDuration || life > e.params.MaxPoolDuration {
		return domain.Pool{}, m, domain.ErrInvalidDeadline
	}

	cost := e.params.PoolCreationFee
	if initialContribution > 0 {
		cost += initialContribution + e.params.PoolContributionFee
	}
	if e.balances[actor] < cost {
		return domain.Pool{}, m, domain.ErrInsufficientFunds
	}

	e.creditBalance(&m, actor, -e.params.PoolCreationFee, now)
	e.creditFee(&m, e.treasury, e.params.PoolCreationFee, now)

	id := e.nextPoolID
	e.nextPoolID++

	pool := &domain.Pool{
		ID:             id,
		OpinionID:      opinionID,
		ProposedAnswer: proposedAnswer,
		Deadline:       deadline,
		Creator:        actor,
		Status:         domain.PoolStatusActive,
		Name:           name,
		IPFSHash:       ipfsHash,
		CreatedAt:      now,
	}
	e.pools[id] = pool
	e.contributions[id] = make(map[common.Address]int64)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventPoolCreated,
		OpinionID: opinionID,
		PoolID:    id,
		Actor:     actor,
		Amount:    e.params.PoolCreationFee,
		Detail: map[string]any{
			"proposed_answer": proposedAnswer,
			"deadline":        deadline,
		},
		At: now,
	})

	if initialContribution > 0 {
		if _, err := e.contributeLocked(&m, actor, pool, initialContribution, now); err != nil {
			// Balance was checked up front for the whole cost.
			return domain.Pool{}, m, fmt.Errorf("ledger: initial contribution: %w", err)
		}
	}

	e.snapshotPool(&m, pool)
	return *pool, m, nil
}

// ContributeToPool stakes funds toward a pool's funding target. A
// contribution that would push the pool past the target is trimmed so the
// pool's total lands exactly on it, and the crossing contribution triggers
// execution atomically.
func (e *Engine) ContributeToPool(actor common.Address, poolID uint64, amount int64) (domain.ContributionReceipt, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if e.paused {
		return domain.ContributionReceipt{}, m, domain.ErrPaused
	}
	pool, ok := e.pools[poolID]
	if !ok {
		return domain.ContributionReceipt{}, m, domain.ErrNotFound
	}
	if amount <= 0 {
		return domain.ContributionReceipt{}, m, domain.ErrZeroAmount
	}

	now := e.clock.Now()
	if effectiveStatus(pool, now) != domain.PoolStatusActive {
		return domain.ContributionReceipt{}, m, domain.ErrPoolNotActive
	}
	op, ok := e.opinions[pool.OpinionID]
	if !ok || !op.IsActive {
		return domain.ContributionReceipt{}, m, domain.ErrOpinionInactive
	}
	if e.balances[actor] < amount+e.params.PoolContributionFee {
		return domain.ContributionReceipt{}, m, domain.ErrInsufficientFunds
	}

	receipt, err := e.contributeLocked(&m, actor, pool, amount, now)
	if err != nil {
		return domain.ContributionReceipt{}, m, err
	}
	e.snapshotPool(&m, pool)
	return receipt, m, nil
}

// contributeLocked applies one contribution to an active pool. Balance
// sufficiency for amount + fee must already be verified by the caller.
func (e *Engine) contributeLocked(m *Mutation, actor common.Address, pool *domain.Pool, amount int64, now time.Time) (domain.ContributionReceipt, error) {
	op := e.opinions[pool.OpinionID]

	// The funding target tracks the opinion's live next price, so the
	// payout at execution is exactly what any single buyer would pay.
	target := op.NextPrice
	accepted := amount
	trimmed := int64(0)
	if pool.TotalAmount+accepted > target {
		accepted = target - pool.TotalAmount
		trimmed = amount - accepted
	}
	if accepted <= 0 {
		return domain.ContributionReceipt{}, domain.ErrZeroAmount
	}

	fee := e.params.PoolContributionFee
	e.creditBalance(m, actor, -(accepted + fee), now)

	feePlatform, feeCreator, feePoolCreator := splitContributionFee(fee)
	e.creditFee(m, e.treasury, feePlatform, now)
	e.creditFee(m, op.QuestionOwner, feeCreator, now)
	e.creditFee(m, pool.Creator, feePoolCreator, now)

	if _, seen := e.contributions[pool.ID][actor]; !seen {
		e.contributors[pool.ID] = append(e.contributors[pool.ID], actor)
	}
	e.contributions[pool.ID][actor] += accepted
	pool.TotalAmount += accepted
	e.snapshotContribution(m, pool.ID, actor, now)

	receipt := domain.ContributionReceipt{
		PoolID:      pool.ID,
		Contributor: actor,
		Accepted:    accepted,
		Trimmed:     trimmed,
		Fee:         fee,
	}

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventPoolContributed,
		OpinionID: pool.OpinionID,
		PoolID:    pool.ID,
		Actor:     actor,
		Amount:    accepted,
		Detail:    map[string]any{"trimmed": trimmed, "total": pool.TotalAmount},
		At:        now,
	})

	if pool.TotalAmount >= target {
		e.executePoolLocked(m, pool, op, target, now)
		receipt.Executed = true
		receipt.TargetPrice = target
	}
	return receipt, nil
}

// executePoolLocked runs a fully funded pool: the pooled total buys the
// answer at the target price under the standard purchase split, the pool's
// derived address takes custody, and future resale proceeds flow back to the
// contributors in proportion to their stakes.
func (e *Engine) executePoolLocked(m *Mutation, pool *domain.Pool, op *domain.Opinion, target int64, now time.Time) {
	split := splitPurchase(target, e.params.PlatformFeePct, e.params.CreatorFeePct)
	prevOwner := op.CurrentAnswerOwner

	e.creditFee(m, e.treasury, split.Platform, now)
	e.creditFee(m, op.QuestionOwner, split.Creator, now)
	if prevPoolID, custodied := e.custody[op.ID]; custodied {
		rewards := distributeRewards(prevPoolID, split.Owner, e.contributors[prevPoolID], e.contributions[prevPoolID])
		for _, r := range rewards {
			e.creditFee(m, r.Contributor, r.Amount, now)
		}
		delete(e.custody, op.ID)
		m.Events = append(m.Events, domain.Event{
			Kind:      domain.EventRewardsDistributed,
			OpinionID: op.ID,
			PoolID:    prevPoolID,
			Amount:    split.Owner,
			Detail:    map[string]any{"contributors": len(rewards)},
			At:        now,
		})
	} else {
		e.creditFee(m, prevOwner, split.Owner, now)
	}

	executedAt := now
	pool.Status = domain.PoolStatusExecuted
	pool.TargetPrice = target
	pool.ExecutedAt = &executedAt

	op.LastPrice = target
	op.TotalVolume = addClamped(op.TotalVolume, target)
	op.CurrentAnswer = pool.ProposedAnswer
	op.CurrentAnswerOwner = pool.Address()
	op.NextPrice = e.prices.Next(target, e.entropy.Draw())
	op.UpdatedAt = now
	e.custody[op.ID] = pool.ID

	e.appendHistory(m, op.ID, pool.ProposedAnswer, pool.Name, pool.Address(), target, now)
	e.snapshotOpinion(m, op)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventPoolExecuted,
		OpinionID: op.ID,
		PoolID:    pool.ID,
		Amount:    target,
		Detail: map[string]any{
			"proposed_answer": pool.ProposedAnswer,
			"next_price":      op.NextPrice,
		},
		At: now,
	})
}

// CheckPoolExpiry flips an active pool past its deadline to expired. It is
// idempotent and callable by anyone; contributors do not depend on it because
// withdrawal resolves expiry lazily.
func (e *Engine) CheckPoolExpiry(poolID uint64) (bool, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	pool, ok := e.pools[poolID]
	if !ok {
		return false, m, domain.ErrNotFound
	}
	now := e.clock.Now()
	if pool.Status != domain.PoolStatusActive || now.Before(pool.Deadline) {
		return false, m, nil
	}
	pool.Status = domain.PoolStatusExpired
	e.snapshotPool(&m, pool)
	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventPoolExpired,
		OpinionID: pool.OpinionID,
		PoolID:    poolID,
		At:        now,
	})
	return true, m, nil
}

// SweepExpiredPools flips every active pool past its deadline to expired in
// one pass and returns the ids of the pools flipped, ascending.
func (e *Engine) SweepExpiredPools() ([]uint64, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	now := e.clock.Now()

	var due []uint64
	for id, pool := range e.pools {
		if pool.Status == domain.PoolStatusActive && !now.Before(pool.Deadline) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

	for _, id := range due {
		pool := e.pools[id]
		pool.Status = domain.PoolStatusExpired
		e.snapshotPool(&m, pool)
		m.Events = append(m.Events, domain.Event{
			Kind:      domain.EventPoolExpired,
			OpinionID: pool.OpinionID,
			PoolID:    id,
			At:        now,
		})
	}
	return due, m, nil
}

// WithdrawFromExpiredPool refunds a contributor's full stake from a pool that
// missed its target. The pool is flipped to expired on the spot if no sweep
// has done it yet. A second withdrawal fails with a distinct error from
// never having contributed.
func (e *Engine) WithdrawFromExpiredPool(actor common.Address, poolID uint64) (int64, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	pool, ok := e.pools[poolID]
	if !ok {
		return 0, m, domain.ErrNotFound
	}
	now := e.clock.Now()
	switch effectiveStatus(pool, now) {
	case domain.PoolStatusExecuted:
		return 0, m, domain.ErrPoolExecuted
	case domain.PoolStatusActive:
		return 0, m, domain.ErrPoolNotExpired
	}

	amount, seen := e.contributions[poolID][actor]
	if !seen {
		return 0, m, domain.ErrNoContribution
	}
	if amount == 0 {
		return 0, m, domain.ErrAlreadyWithdrawn
	}

	if pool.Status == domain.PoolStatusActive {
		pool.Status = domain.PoolStatusExpired
		m.Events = append(m.Events, domain.Event{
			Kind:      domain.EventPoolExpired,
			OpinionID: pool.OpinionID,
			PoolID:    poolID,
			At:        now,
		})
	}

	e.contributions[poolID][actor] = 0
	pool.TotalAmount -= amount
	e.creditBalance(&m, actor, amount, now)
	e.snapshotContribution(&m, poolID, actor, now)
	e.snapshotPool(&m, pool)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventPoolWithdrawal,
		OpinionID: pool.OpinionID,
		PoolID:    poolID,
		Actor:     actor,
		Amount:    amount,
		At:        now,
	})
	return amount, m, nil
}

// WithdrawFromPoolEarly pulls a contributor's stake out of a still-active
// pool at a penalty. The penalty share goes to the treasury; the remainder
// returns to the contributor's balance.
func (e *Engine) WithdrawFromPoolEarly(actor common.Address, poolID uint64) (int64, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	pool, ok := e.pools[poolID]
	if !ok {
		return 0, m, domain.ErrNotFound
	}
	now := e.clock.Now()
	if effectiveStatus(pool, now) != domain.PoolStatusActive {
		return 0, m, domain.ErrPoolNotActive
	}

	amount, seen := e.contributions[poolID][actor]
	if !seen {
		return 0, m, domain.ErrNoContribution
	}
	if amount == 0 {
		return 0, m, domain.ErrAlreadyWithdrawn
	}

	penalty := mulDiv(amount, e.params.EarlyWithdrawPenaltyPct, 100)
	refund := amount - penalty

	e.contributions[poolID][actor] = 0
	pool.TotalAmount -= amount
	e.creditBalance(&m, actor, refund, now)
	e.creditFee(&m, e.treasury, penalty, now)
	e.snapshotContribution(&m, poolID, actor, now)
	e.snapshotPool(&m, pool)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventPoolWithdrawal,
		OpinionID: pool.OpinionID,
		PoolID:    poolID,
		Actor:     actor,
		Amount:    refund,
		Detail:    map[string]any{"penalty": penalty, "early": true},
		At:        now,
	})
	return refund, m, nil
}

// ExtendPoolDeadline pushes a pool's deadline out. The creator may extend an
// active or already-extended pool at any time, or one whose deadline passed
// within the grace window. Extension flips the pool to extended: withdrawals
// stay open, new contributions do not.
func (e *Engine) ExtendPoolDeadline(actor common.Address, poolID uint64, newDeadline time.Time) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	pool, ok := e.pools[poolID]
	if !ok {
		return m, domain.ErrNotFound
	}
	if pool.Creator != actor {
		return m, domain.ErrNotOwner
	}
	if pool.Status == domain.PoolStatusExecuted {
		return m, domain.ErrPoolExecuted
	}
	now := e.clock.Now()
	if !now.Before(pool.Deadline) && now.Sub(pool.Deadline) > e.params.ExtensionGrace {
		return m, domain.ErrGraceWindowClosed
	}
	if !newDeadline.After(pool.Deadline) || !newDeadline.After(now) || newDeadline.Sub(now) > e.params.MaxPoolDuration {
		return m, domain.ErrInvalidDeadline
	}

	pool.Status = domain.PoolStatusExtended
	pool.Deadline = newDeadline
	e.snapshotPool(&m, pool)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventPoolExtended,
		OpinionID: pool.OpinionID,
		PoolID:    poolID,
		Actor:     actor,
		Detail:    map[string]any{"deadline": newDeadline},
		At:        now,
	})
	return m, nil
}

// WithdrawFromExtendedPool refunds a contributor's full stake from an
// extended pool without penalty. Extension buys time but never re-locks
// contributor funds.
func (e *Engine) WithdrawFromExtendedPool(actor common.Address, poolID uint64) (int64, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	pool, ok := e.pools[poolID]
	if !ok {
		return 0, m, domain.ErrNotFound
	}
	if pool.Status != domain.PoolStatusExtended {
		return 0, m, domain.ErrPoolNotActive
	}

	amount, seen := e.contributions[poolID][actor]
	if !seen {
		return 0, m, domain.ErrNoContribution
	}
	if amount == 0 {
		return 0, m, domain.ErrAlreadyWithdrawn
	}

	now := e.clock.Now()
	e.contributions[poolID][actor] = 0
	pool.TotalAmount -= amount
	e.creditBalance(&m, actor, amount, now)
	e.snapshotContribution(&m, poolID, actor, now)
	e.snapshotPool(&m, pool)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventPoolWithdrawal,
		OpinionID: pool.OpinionID,
		PoolID:    poolID,
		Actor:     actor,
		Amount:    amount,
		At:        now,
	})
	return amount, m, nil
}

// Pool returns a copy of the pool with the given id, with lazy expiry
// resolved against the current clock.
func (e *Engine) Pool(id uint64) (domain.Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, ok := e.pools[id]
	if !ok {
		return domain.Pool{}, domain.ErrNotFound
	}
	out := *pool
	out.Status = effectiveStatus(pool, e.clock.Now())
	return out, nil
}

// PoolsByOpinion returns copies of all pools targeting an opinion, ordered
// by pool id.
func (e *Engine) PoolsByOpinion(opinionID uint64) []domain.Pool {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	var out []domain.Pool
	for _, pool := range e.pools {
		if pool.OpinionID != opinionID {
			continue
		}
		p := *pool
		p.Status = effectiveStatus(pool, now)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PoolContributions returns the live contribution table of a pool in
// first-contribution order.
func (e *Engine) PoolContributions(poolID uint64) ([]domain.Contribution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pool, ok := e.pools[poolID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.Contribution, 0, len(e.contributors[poolID]))
	for i, c := range e.contributors[poolID] {
		amount := e.contributions[poolID][c]
		out = append(out, domain.Contribution{
			PoolID:      pool.ID,
			Contributor: c,
			Amount:      amount,
			Position:    i,
			Withdrawn:   amount == 0,
		})
	}
	return out, nil
}
