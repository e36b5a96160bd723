package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeeAccount is a pull-payment balance. It is only ever increased by the
// engine and zeroed by an explicit claim; nothing is pushed as a side effect
// of someone else's action.
type FeeAccount struct {
	Owner     common.Address
	Balance   int64 // fixed-point: balance * 1e6
	UpdatedAt time.Time
}

// Balance is an actor's spendable deposit inside the ledger. Purchases and
// pool contributions debit it; refunds credit it.
type Balance struct {
	Owner     common.Address
	Amount    int64 // fixed-point: amount * 1e6
	UpdatedAt time.Time
}
