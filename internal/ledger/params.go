// Package ledger implements the opinion-marketplace state machine: price
// evolution, fee distribution, pool lifecycle, and the anti-manipulation
// trade guard. Every public operation is atomic: all checks run before any
// mutation, so a rejected action leaves no partial state behind.
package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Params holds every tunable constant of the ledger. Amounts are fixed-point
// micro-units (1e6 = 1.00), percentages are whole percents.
type Params struct {
	InitialPrice      int64 // seed nextPrice for a newly created opinion
	MinimumPrice      int64 // price floor; computed prices clamp up to this
	MaxPriceChangePct int64 // hard bound on a single price move

	PlatformFeePct     int64 // answer purchase share to the treasury
	CreatorFeePct      int64 // answer purchase share to the question creator
	QuestionSaleFeePct int64 // platform share of a question sale

	CreationFee         int64 // flat fee to create an opinion
	PoolCreationFee     int64 // flat fee to create a pool
	PoolContributionFee int64 // flat fee per pool contribution

	EarlyWithdrawPenaltyPct int64 // forfeited share of an early pool withdrawal

	MinPoolDuration time.Duration
	MaxPoolDuration time.Duration
	ExtensionGrace  time.Duration // window after expiry in which extension is allowed

	MaxTradesPerTick    int           // per-actor cap on trades within one tick
	RapidTradeWindow    time.Duration // rolling window for the fee escalation
	RapidTradeMaxFeePct int64         // escalated platform fee ceiling

	MaxQuestionLen    int
	MaxAnswerLen      int
	MaxDescriptionLen int
	MaxPoolNameLen    int
	MaxLinkLen        int
	MaxCategories     int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		InitialPrice:      1_000_000, // 1.00
		MinimumPrice:      1_000_000, // 1.00
		MaxPriceChangePct: 200,

		PlatformFeePct:     2,
		CreatorFeePct:      3,
		QuestionSaleFeePct: 10,

		CreationFee:         5_000_000, // 5.00
		PoolCreationFee:     5_000_000, // 5.00
		PoolContributionFee: 1_000_000, // 1.00

		EarlyWithdrawPenaltyPct: 20,

		MinPoolDuration: 24 * time.Hour,
		MaxPoolDuration: 30 * 24 * time.Hour,
		ExtensionGrace:  7 * 24 * time.Hour,

		MaxTradesPerTick:    3,
		RapidTradeWindow:    30 * time.Second,
		RapidTradeMaxFeePct: 20,

		MaxQuestionLen:    280,
		MaxAnswerLen:      120,
		MaxDescriptionLen: 500,
		MaxPoolNameLen:    80,
		MaxLinkLen:        256,
		MaxCategories:     3,
	}
}

// Validate checks Params for obviously invalid values and returns a combined
// error describing every problem found.
func (p Params) Validate() error {
	var errs []string

	if p.InitialPrice <= 0 {
		errs = append(errs, "initial_price must be > 0")
	}
	if p.MinimumPrice <= 0 {
		errs = append(errs, "minimum_price must be > 0")
	}
	if p.MaxPriceChangePct < 99 {
		errs = append(errs, fmt.Sprintf("max_price_change_pct must be >= 99 (unclamped deltas reach +99%%), got %d", p.MaxPriceChangePct))
	}
	if p.PlatformFeePct < 0 || p.CreatorFeePct < 0 || p.PlatformFeePct+p.CreatorFeePct >= 100 {
		errs = append(errs, "platform and creator fee percentages must be non-negative and sum below 100")
	}
	if p.RapidTradeMaxFeePct < p.PlatformFeePct {
		errs = append(errs, "rapid_trade_max_fee_pct must be >= platform_fee_pct")
	}
	if p.QuestionSaleFeePct < 0 || p.QuestionSaleFeePct >= 100 {
		errs = append(errs, "question_sale_fee_pct must be in [0, 100)")
	}
	if p.EarlyWithdrawPenaltyPct < 0 || p.EarlyWithdrawPenaltyPct > 100 {
		errs = append(errs, "early_withdraw_penalty_pct must be in [0, 100]")
	}
	if p.CreationFee < 0 || p.PoolCreationFee < 0 || p.PoolContributionFee < 0 {
		errs = append(errs, "flat fees must be non-negative")
	}
	if p.MinPoolDuration <= 0 || p.MaxPoolDuration < p.MinPoolDuration {
		errs = append(errs, "pool durations must satisfy 0 < min <= max")
	}
	if p.ExtensionGrace <= 0 {
		errs = append(errs, "extension_grace must be > 0")
	}
	if p.MaxTradesPerTick < 1 {
		errs = append(errs, "max_trades_per_tick must be >= 1")
	}
	if p.RapidTradeWindow <= 0 {
		errs = append(errs, "rapid_trade_window must be > 0")
	}
	if p.MaxQuestionLen < 1 || p.MaxAnswerLen < 1 || p.MaxCategories < 1 {
		errs = append(errs, "text and category limits must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ledger params validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
