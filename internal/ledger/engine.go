package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// Mutation lists every piece of state an accepted operation changed, as
// post-operation snapshots, plus the events describing the transition. The
// service layer persists the snapshots and publishes the events; the engine
// itself never touches storage or the network.
type Mutation struct {
	Opinions      []domain.Opinion
	History       []domain.AnswerHistoryEntry
	Pools         []domain.Pool
	Contributions []domain.Contribution
	FeeAccounts   []domain.FeeAccount
	Balances      []domain.Balance
	Events        []domain.Event
}

// Engine owns all value-bearing ledger state. Every public operation is
// serialized under one mutex and runs checks-first: no state is mutated until
// every rejection path has been ruled out, so a failed call changes nothing.
type Engine struct {
	mu sync.Mutex

	params   Params
	clock    domain.Clock
	entropy  domain.EntropySource
	gate     domain.AccessGate
	prices   *PriceEngine
	guard    *TradeGuard
	treasury common.Address

	paused        bool
	nextOpinionID uint64
	nextPoolID    uint64

	// totalFunds is the sum of all spendable balances, fee accounts, and
	// funds escrowed in unexecuted pools. Deposit is the only operation that
	// grows it, and Deposit rejects anything that would push it past
	// MaxInt64. Every other credit moves value already inside that total, so
	// no single account can overflow while the bound holds.
	totalFunds int64

	opinions      map[uint64]*domain.Opinion
	history       map[uint64][]domain.AnswerHistoryEntry
	pools         map[uint64]*domain.Pool
	contributions map[uint64]map[common.Address]int64
	contributors  map[uint64][]common.Address // first-contribution order
	custody       map[uint64]uint64           // opinionID -> owning poolID
	balances      map[common.Address]int64
	feeAccounts   map[common.Address]int64
}

// NewEngine creates an Engine with empty state.
func NewEngine(p Params, treasury common.Address, clock domain.Clock, entropy domain.EntropySource, gate domain.AccessGate) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	if treasury == (common.Address{}) {
		return nil, fmt.Errorf("ledger: treasury address must be set")
	}

	return &Engine{
		params:        p,
		clock:         clock,
		entropy:       entropy,
		gate:          gate,
		prices:        NewPriceEngine(p),
		guard:         NewTradeGuard(p),
		treasury:      treasury,
		nextOpinionID: 1,
		nextPoolID:    1,
		opinions:      make(map[uint64]*domain.Opinion),
		history:       make(map[uint64][]domain.AnswerHistoryEntry),
		pools:         make(map[uint64]*domain.Pool),
		contributions: make(map[uint64]map[common.Address]int64),
		contributors:  make(map[uint64][]common.Address),
		custody:       make(map[uint64]uint64),
		balances:      make(map[common.Address]int64),
		feeAccounts:   make(map[common.Address]int64),
	}, nil
}

// ---------------------------------------------------------------------------
// Internal helpers. All assume the engine mutex is held.
// ---------------------------------------------------------------------------

// addClamped saturates at MaxInt64 instead of wrapping. Only for monotonic
// statistics, never for value-bearing balances.
func addClamped(a, b int64) int64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}

func (e *Engine) validateText(s string, max int, required bool) error {
	if required && s == "" {
		return domain.ErrEmptyField
	}
	if len(s) > max {
		return domain.ErrFieldTooLong
	}
	return nil
}

func (e *Engine) creditFee(m *Mutation, owner common.Address, amount int64, now time.Time) {
	if amount == 0 {
		return
	}
	e.feeAccounts[owner] += amount
	m.FeeAccounts = append(m.FeeAccounts, domain.FeeAccount{
		Owner:     owner,
		Balance:   e.feeAccounts[owner],
		UpdatedAt: now,
	})
}

func (e *Engine) creditBalance(m *Mutation, owner common.Address, amount int64, now time.Time) {
	e.balances[owner] += amount
	m.Balances = append(m.Balances, domain.Balance{
		Owner:     owner,
		Amount:    e.balances[owner],
		UpdatedAt: now,
	})
}

func (e *Engine) snapshotOpinion(m *Mutation, op *domain.Opinion) {
	m.Opinions = append(m.Opinions, *op)
}

func (e *Engine) snapshotPool(m *Mutation, p *domain.Pool) {
	m.Pools = append(m.Pools, *p)
}

func (e *Engine) snapshotContribution(m *Mutation, poolID uint64, c common.Address, now time.Time) {
	pos := 0
	for i, addr := range e.contributors[poolID] {
		if addr == c {
			pos = i
			break
		}
	}
	amount := e.contributions[poolID][c]
	m.Contributions = append(m.Contributions, domain.Contribution{
		PoolID:      poolID,
		Contributor: c,
		Amount:      amount,
		Position:    pos,
		Withdrawn:   amount == 0,
		UpdatedAt:   now,
	})
}

func (e *Engine) appendHistory(m *Mutation, opinionID uint64, answer, description string, owner common.Address, price int64, now time.Time) {
	entry := domain.AnswerHistoryEntry{
		OpinionID:   opinionID,
		Seq:         len(e.history[opinionID]),
		Answer:      answer,
		Description: description,
		Owner:       owner,
		Price:       price,
		Timestamp:   now,
	}
	e.history[opinionID] = append(e.history[opinionID], entry)
	m.History = append(m.History, entry)
}

// requireCapability asks the access gate and fails closed: a gate error is a
// denial, never a pass-through.
func (e *Engine) requireCapability(actor common.Address, cap domain.Capability) error {
	if e.gate == nil {
		return domain.ErrUnauthorized
	}
	ok, err := e.gate.HasCapability(actor, cap)
	if err != nil || !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

// ---------------------------------------------------------------------------
// Opinion operations
// ---------------------------------------------------------------------------

// CreateOpinion mints a new opinion with its initial answer. The flat
// creation fee goes to the platform treasury and the next purchase price is
// seeded from the configured initial price, not from the price engine.
func (e *Engine) CreateOpinion(actor common.Address, question, answer, description string, categories []string, ipfsHash, link string) (domain.Opinion, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if e.paused {
		return domain.Opinion{}, m, domain.ErrPaused
	}
	if err := e.validateText(question, e.params.MaxQuestionLen, true); err != nil {
		return domain.Opinion{}, m, fmt.Errorf("question: %w", err)
	}
	if err := e.validateText(answer, e.params.MaxAnswerLen, true); err != nil {
		return domain.Opinion{}, m, fmt.Errorf("answer: %w", err)
	}
	if err := e.validateText(description, e.params.MaxDescriptionLen, false); err != nil {
		return domain.Opinion{}, m, fmt.Errorf("description: %w", err)
	}
	if err := e.validateText(link, e.params.MaxLinkLen, false); err != nil {
		return domain.Opinion{}, m, fmt.Errorf("link: %w", err)
	}
	if err := e.validateText(ipfsHash, e.params.MaxLinkLen, false); err != nil {
		return domain.Opinion{}, m, fmt.Errorf("ipfs_hash: %w", err)
	}
	if len(categories) == 0 {
		return domain.Opinion{}, m, fmt.Errorf("categories: %w", domain.ErrEmptyField)
	}
	if len(categories) > e.params.MaxCategories {
		return domain.Opinion{}, m, domain.ErrTooManyCategories
	}
	for _, c := range categories {
		if c == "" {
			return domain.Opinion{}, m, fmt.Errorf("categories: %w", domain.ErrEmptyField)
		}
	}
	if e.balances[actor] < e.params.CreationFee {
		return domain.Opinion{}, m, domain.ErrInsufficientFunds
	}

	now := e.clock.Now()

	e.creditBalance(&m, actor, -e.params.CreationFee, now)
	e.creditFee(&m, e.treasury, e.params.CreationFee, now)

	id := e.nextOpinionID
	e.nextOpinionID++

	op := &domain.Opinion{
		ID:                 id,
		Question:           question,
		Creator:            actor,
		QuestionOwner:      actor,
		CurrentAnswer:      answer,
		CurrentDescription: description,
		CurrentAnswerOwner: actor,
		LastPrice:          0,
		NextPrice:          e.params.InitialPrice,
		IsActive:           true,
		Categories:         append([]string(nil), categories...),
		IPFSHash:           ipfsHash,
		Link:               link,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	e.opinions[id] = op
	e.appendHistory(&m, id, answer, description, actor, 0, now)
	e.snapshotOpinion(&m, op)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventOpinionCreated,
		OpinionID: id,
		Actor:     actor,
		Amount:    e.params.CreationFee,
		Detail: map[string]any{
			"question":   question,
			"answer":     answer,
			"next_price": op.NextPrice,
		},
		At: now,
	})
	return *op, m, nil
}

// SubmitAnswer purchases the right to answer an opinion at its current next
// price. The payment splits into platform/creator/owner shares; when the
// answer is pool-custodied, the owner share is distributed proportionally
// across the winning pool's contributors.
func (e *Engine) SubmitAnswer(actor common.Address, opinionID uint64, answer, description string) (domain.TradeReceipt, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if e.paused {
		return domain.TradeReceipt{}, m, domain.ErrPaused
	}
	op, ok := e.opinions[opinionID]
	if !ok {
		return domain.TradeReceipt{}, m, domain.ErrNotFound
	}
	if !op.IsActive {
		return domain.TradeReceipt{}, m, domain.ErrOpinionInactive
	}
	if op.CurrentAnswerOwner == actor {
		return domain.TradeReceipt{}, m, domain.ErrSameOwner
	}
	if err := e.validateText(answer, e.params.MaxAnswerLen, true); err != nil {
		return domain.TradeReceipt{}, m, fmt.Errorf("answer: %w", err)
	}
	if err := e.validateText(description, e.params.MaxDescriptionLen, false); err != nil {
		return domain.TradeReceipt{}, m, fmt.Errorf("description: %w", err)
	}

	tick := e.clock.Tick()
	now := e.clock.Now()
	if err := e.guard.Check(actor, opinionID, tick); err != nil {
		return domain.TradeReceipt{}, m, err
	}

	price := op.NextPrice
	platformPct := e.guard.PlatformFeePct(actor, opinionID, now)
	if e.balances[actor] < price {
		return domain.TradeReceipt{}, m, domain.ErrInsufficientFunds
	}

	// All checks passed; commit.
	split := splitPurchase(price, platformPct, e.params.CreatorFeePct)
	prevOwner := op.CurrentAnswerOwner

	e.creditBalance(&m, actor, -price, now)
	e.creditFee(&m, e.treasury, split.Platform, now)
	// The creator share follows question ownership, so a sold question keeps
	// paying its new owner.
	e.creditFee(&m, op.QuestionOwner, split.Creator, now)

	receipt := domain.TradeReceipt{
		OpinionID:    opinionID,
		Buyer:        actor,
		PricePaid:    price,
		PlatformFee:  split.Platform,
		CreatorFee:   split.Creator,
		OwnerAmount:  split.Owner,
		FeeEscalated: platformPct > e.params.PlatformFeePct,
	}

	if poolID, custodied := e.custody[opinionID]; custodied {
		rewards := distributeRewards(poolID, split.Owner, e.contributors[poolID], e.contributions[poolID])
		for _, r := range rewards {
			e.creditFee(&m, r.Contributor, r.Amount, now)
		}
		delete(e.custody, opinionID)
		receipt.PoolRewarded = true
		receipt.RewardPoolID = poolID

		m.Events = append(m.Events, domain.Event{
			Kind:      domain.EventRewardsDistributed,
			OpinionID: opinionID,
			PoolID:    poolID,
			Actor:     actor,
			Amount:    split.Owner,
			Detail:    map[string]any{"contributors": len(rewards)},
			At:        now,
		})
	} else {
		e.creditFee(&m, prevOwner, split.Owner, now)
	}

	op.LastPrice = price
	op.TotalVolume = addClamped(op.TotalVolume, price)
	op.CurrentAnswer = answer
	op.CurrentDescription = description
	op.CurrentAnswerOwner = actor
	op.NextPrice = e.prices.Next(price, e.entropy.Draw())
	op.UpdatedAt = now
	receipt.NextPrice = op.NextPrice

	e.appendHistory(&m, opinionID, answer, description, actor, price, now)
	e.snapshotOpinion(&m, op)
	e.guard.Record(actor, opinionID, tick, now)

	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventAnswerSubmitted,
		OpinionID: opinionID,
		Actor:     actor,
		Amount:    price,
		Detail: map[string]any{
			"answer":        answer,
			"platform_fee":  split.Platform,
			"creator_fee":   split.Creator,
			"owner_amount":  split.Owner,
			"next_price":    op.NextPrice,
			"fee_escalated": receipt.FeeEscalated,
		},
		At: now,
	})
	return receipt, m, nil
}

// ---------------------------------------------------------------------------
// Funds: deposits, withdrawals, fee claims
// ---------------------------------------------------------------------------

// Deposit credits an actor's spendable balance. Deposits remain allowed while
// the ledger is paused so users can always fund exits.
func (e *Engine) Deposit(actor common.Address, amount int64) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if amount <= 0 {
		return m, domain.ErrZeroAmount
	}
	if amount > math.MaxInt64-e.totalFunds {
		return m, domain.ErrOverflow
	}
	now := e.clock.Now()
	e.totalFunds += amount
	e.creditBalance(&m, actor, amount, now)
	m.Events = append(m.Events, domain.Event{
		Kind: domain.EventDeposit, Actor: actor, Amount: amount, At: now,
	})
	return m, nil
}

// WithdrawBalance debits an actor's spendable balance. The external transfer
// is issued by the caller only after this returns, keeping state commits
// strictly ahead of interactions.
func (e *Engine) WithdrawBalance(actor common.Address, amount int64) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if amount <= 0 {
		return m, domain.ErrZeroAmount
	}
	if e.balances[actor] < amount {
		return m, domain.ErrInsufficientFunds
	}
	now := e.clock.Now()
	e.totalFunds -= amount
	e.creditBalance(&m, actor, -amount, now)
	m.Events = append(m.Events, domain.Event{
		Kind: domain.EventBalanceWithdrawn, Actor: actor, Amount: amount, At: now,
	})
	return m, nil
}

// ClaimFees drains the caller's accumulated fee account into their spendable
// balance. Claiming is the only way a fee account decreases.
func (e *Engine) ClaimFees(actor common.Address) (int64, Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	claimed := e.feeAccounts[actor]
	if claimed <= 0 {
		return 0, m, domain.ErrZeroClaim
	}
	now := e.clock.Now()
	e.feeAccounts[actor] = 0
	m.FeeAccounts = append(m.FeeAccounts, domain.FeeAccount{Owner: actor, Balance: 0, UpdatedAt: now})
	e.creditBalance(&m, actor, claimed, now)

	m.Events = append(m.Events, domain.Event{
		Kind: domain.EventFeesClaimed, Actor: actor, Amount: claimed, At: now,
	})
	return claimed, m, nil
}

// ---------------------------------------------------------------------------
// Administration
// ---------------------------------------------------------------------------

// Pause halts trading and pool operations. Requires the pause capability.
func (e *Engine) Pause(actor common.Address) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if err := e.requireCapability(actor, domain.CapPause); err != nil {
		return m, err
	}
	e.paused = true
	m.Events = append(m.Events, domain.Event{Kind: domain.EventLedgerPaused, Actor: actor, At: e.clock.Now()})
	return m, nil
}

// Unpause resumes trading. Requires the pause capability.
func (e *Engine) Unpause(actor common.Address) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if err := e.requireCapability(actor, domain.CapPause); err != nil {
		return m, err
	}
	e.paused = false
	m.Events = append(m.Events, domain.Event{Kind: domain.EventLedgerUnpaused, Actor: actor, At: e.clock.Now()})
	return m, nil
}

// SetOpinionActive moderates an opinion in or out of circulation. Requires
// the moderate capability. Deactivated opinions reject trades and new pools
// but are never destroyed.
func (e *Engine) SetOpinionActive(actor common.Address, opinionID uint64, active bool) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if err := e.requireCapability(actor, domain.CapModerate); err != nil {
		return m, err
	}
	op, ok := e.opinions[opinionID]
	if !ok {
		return m, domain.ErrNotFound
	}
	now := e.clock.Now()
	op.IsActive = active
	op.UpdatedAt = now
	e.snapshotOpinion(&m, op)
	m.Events = append(m.Events, domain.Event{
		Kind:      domain.EventOpinionModerated,
		OpinionID: opinionID,
		Actor:     actor,
		Detail:    map[string]any{"active": active},
		At:        now,
	})
	return m, nil
}

// SetParams replaces the ledger parameters. Requires the parameters
// capability. The trade guard keeps its rolling state across the change.
func (e *Engine) SetParams(actor common.Address, p Params) (Mutation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var m Mutation
	if err := e.requireCapability(actor, domain.CapParameters); err != nil {
		return m, err
	}
	if err := p.Validate(); err != nil {
		return m, fmt.Errorf("ledger: %w", err)
	}
	e.params = p
	e.prices = NewPriceEngine(p)
	e.guard.Configure(p)
	m.Events = append(m.Events, domain.Event{Kind: domain.EventParametersChanged, Actor: actor, At: e.clock.Now()})
	return m, nil
}

// ---------------------------------------------------------------------------
// Read access
// ---------------------------------------------------------------------------

// Opinion returns a copy of the opinion with the given id.
func (e *Engine) Opinion(id uint64) (domain.Opinion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op, ok := e.opinions[id]
	if !ok {
		return domain.Opinion{}, domain.ErrNotFound
	}
	return *op, nil
}

// History returns a copy of the opinion's answer history.
func (e *Engine) History(id uint64) ([]domain.AnswerHistoryEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.opinions[id]; !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.AnswerHistoryEntry(nil), e.history[id]...), nil
}

// Opinions returns copies of all opinions ordered by id.
func (e *Engine) Opinions() []domain.Opinion {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Opinion, 0, len(e.opinions))
	for _, op := range e.opinions {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FeeBalance returns the claimable fee balance for an owner.
func (e *Engine) FeeBalance(owner common.Address) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feeAccounts[owner]
}

// SpendableBalance returns the deposit balance for an owner.
func (e *Engine) SpendableBalance(owner common.Address) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[owner]
}

// Params returns the current ledger parameters.
func (e *Engine) Params() Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Paused reports whether trading is halted.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Treasury returns the platform treasury address.
func (e *Engine) Treasury() common.Address {
	return e.treasury
}

// TotalFunds returns the total value held inside the ledger: balances, fee
// accounts, and unexecuted pool escrow.
func (e *Engine) TotalFunds() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFunds
}
