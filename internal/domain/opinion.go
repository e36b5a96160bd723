package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Opinion is a question whose current answer is a tradable position. The
// answer changes hands on every accepted purchase; the question itself can be
// listed and sold separately by its owner.
type Opinion struct {
	ID                 uint64
	Question           string
	Creator            common.Address // immutable
	QuestionOwner      common.Address // transferable via question trading
	CurrentAnswer      string
	CurrentDescription string
	CurrentAnswerOwner common.Address
	LastPrice          int64 // fixed-point: price * 1e6
	NextPrice          int64 // fixed-point: price * 1e6
	TotalVolume        int64 // cumulative, never decreases
	SalePrice          int64 // question listing price; 0 = not listed
	IsActive           bool
	Categories         []string
	IPFSHash           string
	Link               string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AnswerHistoryEntry is one append-only record of an answer change. Entries
// are never mutated or removed.
type AnswerHistoryEntry struct {
	OpinionID   uint64
	Seq         int // position in the opinion's history, starting at 0
	Answer      string
	Description string
	Owner       common.Address
	Price       int64 // fixed-point: price * 1e6
	Timestamp   time.Time
}

// TradeReceipt summarises an accepted answer purchase.
type TradeReceipt struct {
	OpinionID    uint64
	Buyer        common.Address
	PricePaid    int64
	PlatformFee  int64
	CreatorFee   int64
	OwnerAmount  int64
	NextPrice    int64
	FeeEscalated bool // rapid-trade penalty applied
	PoolRewarded bool // owner share distributed to pool contributors
	RewardPoolID uint64
}

// QuestionSaleReceipt summarises an accepted question purchase.
type QuestionSaleReceipt struct {
	OpinionID    uint64
	Seller       common.Address
	Buyer        common.Address
	PricePaid    int64
	SellerAmount int64
	PlatformFee  int64
}

// Display converts a fixed-point micro amount to its float64 display value.
func Display(micros int64) float64 {
	return float64(micros) / 1e6
}
