package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PoolStatus tracks the pool lifecycle.
type PoolStatus string

const (
	PoolStatusActive   PoolStatus = "active"
	PoolStatusExecuted PoolStatus = "executed"
	PoolStatusExpired  PoolStatus = "expired"
	PoolStatusExtended PoolStatus = "extended"
)

// Pool is a collective, deadline-bound fund aimed at changing an opinion's
// answer. Once executed, TotalAmount and the contribution table are frozen
// history used only for reward computation.
type Pool struct {
	ID             uint64
	OpinionID      uint64
	ProposedAnswer string
	TotalAmount    int64 // fixed-point: sum of live contributions * 1e6
	Deadline       time.Time
	Creator        common.Address
	Status         PoolStatus
	Name           string
	IPFSHash       string
	TargetPrice    int64 // the opinion's nextPrice at execution; 0 until executed
	ExecutedAt     *time.Time
	CreatedAt      time.Time
}

// Address derives the deterministic custody address a pool acts under when it
// owns an opinion's answer.
func (p Pool) Address() common.Address {
	var buf [16]byte
	copy(buf[:8], []byte("poolown:"))
	for i := 0; i < 8; i++ {
		buf[8+i] = byte(p.ID >> (8 * (7 - i)))
	}
	return common.BytesToAddress(crypto.Keccak256(buf[:])[12:])
}

// Contribution is one contributor's funded stake in a pool. Amount is zeroed
// on withdrawal, never deleted, so a second withdrawal is distinguishable
// from "never contributed".
type Contribution struct {
	PoolID      uint64
	Contributor common.Address
	Amount      int64 // fixed-point: amount * 1e6
	Position    int   // first-contribution order within the pool, starting at 0
	Withdrawn   bool
	UpdatedAt   time.Time
}

// ContributionReceipt summarises an accepted pool contribution.
type ContributionReceipt struct {
	PoolID      uint64
	Contributor common.Address
	Accepted    int64 // amount credited after trimming to the funding target
	Trimmed     int64 // portion of the requested amount returned unspent
	Fee         int64 // flat contribution fee charged on top
	Executed    bool  // the contribution crossed the target and the pool ran
	TargetPrice int64 // set when Executed
}

// PoolReward is one contributor's share of a pool-owned answer resale.
type PoolReward struct {
	PoolID      uint64
	Contributor common.Address
	Amount      int64
}
