package ledger

import (
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// State is the persisted form of the ledger, as loaded from storage at
// startup. Slices need no particular order; Restore re-derives internal
// ordering from the stored fields.
type State struct {
	Opinions      []domain.Opinion
	History       []domain.AnswerHistoryEntry
	Pools         []domain.Pool
	Contributions []domain.Contribution
	FeeAccounts   []domain.FeeAccount
	Balances      []domain.Balance
	Paused        bool
}

// Restore replaces the engine's state with the persisted snapshot. Custody of
// pool-owned answers is derived, not stored: an executed pool whose derived
// address still owns the opinion's answer holds custody.
func (e *Engine) Restore(s State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	opinions := make(map[uint64]*domain.Opinion, len(s.Opinions))
	var maxOpinionID uint64
	for i := range s.Opinions {
		op := s.Opinions[i]
		if _, dup := opinions[op.ID]; dup {
			return fmt.Errorf("ledger: restore: duplicate opinion id %d", op.ID)
		}
		opinions[op.ID] = &op
		if op.ID > maxOpinionID {
			maxOpinionID = op.ID
		}
	}

	history := make(map[uint64][]domain.AnswerHistoryEntry)
	for _, h := range s.History {
		if _, ok := opinions[h.OpinionID]; !ok {
			return fmt.Errorf("ledger: restore: history for unknown opinion %d", h.OpinionID)
		}
		history[h.OpinionID] = append(history[h.OpinionID], h)
	}
	for id := range history {
		entries := history[id]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
		for i, h := range entries {
			if h.Seq != i {
				return fmt.Errorf("ledger: restore: opinion %d history gap at seq %d", id, h.Seq)
			}
		}
	}

	pools := make(map[uint64]*domain.Pool, len(s.Pools))
	var maxPoolID uint64
	for i := range s.Pools {
		p := s.Pools[i]
		if _, dup := pools[p.ID]; dup {
			return fmt.Errorf("ledger: restore: duplicate pool id %d", p.ID)
		}
		if _, ok := opinions[p.OpinionID]; !ok {
			return fmt.Errorf("ledger: restore: pool %d references unknown opinion %d", p.ID, p.OpinionID)
		}
		pools[p.ID] = &p
		if p.ID > maxPoolID {
			maxPoolID = p.ID
		}
	}

	contributions := make(map[uint64]map[common.Address]int64)
	byPool := make(map[uint64][]domain.Contribution)
	for _, c := range s.Contributions {
		if _, ok := pools[c.PoolID]; !ok {
			return fmt.Errorf("ledger: restore: contribution for unknown pool %d", c.PoolID)
		}
		byPool[c.PoolID] = append(byPool[c.PoolID], c)
	}
	contributors := make(map[uint64][]common.Address)
	for poolID, cs := range byPool {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Position < cs[j].Position })
		contributions[poolID] = make(map[common.Address]int64, len(cs))
		for _, c := range cs {
			contributions[poolID][c.Contributor] = c.Amount
			contributors[poolID] = append(contributors[poolID], c.Contributor)
		}
	}
	for poolID := range pools {
		if _, ok := contributions[poolID]; !ok {
			contributions[poolID] = make(map[common.Address]int64)
		}
	}

	custody := make(map[uint64]uint64)
	for id, p := range pools {
		if p.Status != domain.PoolStatusExecuted {
			continue
		}
		op := opinions[p.OpinionID]
		if op.CurrentAnswerOwner == p.Address() {
			custody[op.ID] = id
		}
	}

	balances := make(map[common.Address]int64, len(s.Balances))
	for _, b := range s.Balances {
		balances[b.Owner] = b.Amount
	}
	feeAccounts := make(map[common.Address]int64, len(s.FeeAccounts))
	for _, f := range s.FeeAccounts {
		feeAccounts[f.Owner] = f.Balance
	}

	// Re-derive the funds total that bounds deposits: balances, fee
	// accounts, and escrow still held by unexecuted pools.
	var totalFunds int64
	addFunds := func(amount int64) error {
		if amount < 0 || amount > math.MaxInt64-totalFunds {
			return fmt.Errorf("ledger: restore: funds total out of range")
		}
		totalFunds += amount
		return nil
	}
	for _, amount := range balances {
		if err := addFunds(amount); err != nil {
			return err
		}
	}
	for _, amount := range feeAccounts {
		if err := addFunds(amount); err != nil {
			return err
		}
	}
	for _, p := range pools {
		if p.Status == domain.PoolStatusExecuted {
			continue
		}
		if err := addFunds(p.TotalAmount); err != nil {
			return err
		}
	}

	e.opinions = opinions
	e.history = history
	e.pools = pools
	e.contributions = contributions
	e.contributors = contributors
	e.custody = custody
	e.balances = balances
	e.feeAccounts = feeAccounts
	e.nextOpinionID = maxOpinionID + 1
	e.nextPoolID = maxPoolID + 1
	e.totalFunds = totalFunds
	e.paused = s.Paused
	return nil
}

// Snapshot returns a full copy of the engine state in stable order, suitable
// for bulk export or verification.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	var s State
	s.Paused = e.paused

	opinionIDs := make([]uint64, 0, len(e.opinions))
	for id := range e.opinions {
		opinionIDs = append(opinionIDs, id)
	}
	sort.Slice(opinionIDs, func(i, j int) bool { return opinionIDs[i] < opinionIDs[j] })
	for _, id := range opinionIDs {
		s.Opinions = append(s.Opinions, *e.opinions[id])
		s.History = append(s.History, e.history[id]...)
	}

	poolIDs := make([]uint64, 0, len(e.pools))
	for id := range e.pools {
		poolIDs = append(poolIDs, id)
	}
	sort.Slice(poolIDs, func(i, j int) bool { return poolIDs[i] < poolIDs[j] })
	for _, id := range poolIDs {
		s.Pools = append(s.Pools, *e.pools[id])
		for pos, c := range e.contributors[id] {
			amount := e.contributions[id][c]
			s.Contributions = append(s.Contributions, domain.Contribution{
				PoolID:      id,
				Contributor: c,
				Amount:      amount,
				Position:    pos,
				Withdrawn:   amount == 0,
			})
		}
	}

	for owner, amount := range e.balances {
		s.Balances = append(s.Balances, domain.Balance{Owner: owner, Amount: amount})
	}
	sort.Slice(s.Balances, func(i, j int) bool {
		return s.Balances[i].Owner.Hex() < s.Balances[j].Owner.Hex()
	})
	for owner, bal := range e.feeAccounts {
		s.FeeAccounts = append(s.FeeAccounts, domain.FeeAccount{Owner: owner, Balance: bal})
	}
	sort.Slice(s.FeeAccounts, func(i, j int) bool {
		return s.FeeAccounts[i].Owner.Hex() < s.FeeAccounts[j].Owner.Hex()
	})
	return s
}
