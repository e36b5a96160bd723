package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a ledger state transition surfaced to collaborators.
type EventKind string

const (
	EventOpinionCreated     EventKind = "opinion_created"
	EventAnswerSubmitted    EventKind = "answer_submitted"
	EventQuestionListed     EventKind = "question_listed"
	EventQuestionUnlisted   EventKind = "question_unlisted"
	EventQuestionSold       EventKind = "question_sold"
	EventOpinionModerated   EventKind = "opinion_moderated"
	EventPoolCreated        EventKind = "pool_created"
	EventPoolContributed    EventKind = "pool_contributed"
	EventPoolExecuted       EventKind = "pool_executed"
	EventPoolExpired        EventKind = "pool_expired"
	EventPoolExtended       EventKind = "pool_extended"
	EventPoolWithdrawal     EventKind = "pool_withdrawal"
	EventRewardsDistributed EventKind = "rewards_distributed"
	EventFeesClaimed        EventKind = "fees_claimed"
	EventDeposit            EventKind = "deposit"
	EventBalanceWithdrawn   EventKind = "balance_withdrawn"
	EventLedgerPaused       EventKind = "ledger_paused"
	EventLedgerUnpaused     EventKind = "ledger_unpaused"
	EventParametersChanged  EventKind = "parameters_changed"
)

// Event is a single ledger state change, carrying enough fields to
// reconstruct the transition without re-querying.
type Event struct {
	Kind      EventKind
	OpinionID uint64
	PoolID    uint64
	Actor     common.Address
	Amount    int64 // fixed-point: primary amount of the transition
	Detail    map[string]any
	At        time.Time
}
