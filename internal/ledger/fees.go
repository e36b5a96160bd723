package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// mulDiv returns a*b/c, floored, without intermediate int64 overflow. All
// callers pass c > 0 and b <= c or b <= 100, so the quotient never exceeds a
// and always fits.
func mulDiv(a, b, c int64) int64 {
	p := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	return p.Div(p, big.NewInt(c)).Int64()
}

// PurchaseSplit is the three-way division of an answer purchase. The owner
// share absorbs the integer-division remainder so the three parts always sum
// to the exact price paid.
type PurchaseSplit struct {
	Platform int64
	Creator  int64
	Owner    int64
}

// splitPurchase divides price into platform/creator/owner shares using whole
// percentages. platformPct may be escalated by the trade guard.
func splitPurchase(price, platformPct, creatorPct int64) PurchaseSplit {
	platform := mulDiv(price, platformPct, 100)
	creator := mulDiv(price, creatorPct, 100)
	return PurchaseSplit{
		Platform: platform,
		Creator:  creator,
		Owner:    price - platform - creator,
	}
}

// splitContributionFee divides the flat pool-contribution fee into equal
// thirds for platform, question creator, and pool creator. The remainder goes
// to the pool creator, so the three shares always sum to exactly fee.
func splitContributionFee(fee int64) (platform, creator, poolCreator int64) {
	third := fee / 3
	return third, third, fee - 2*third
}

// splitQuestionSale divides a question sale price between seller and
// platform. The seller share absorbs the remainder.
func splitQuestionSale(price, feePct int64) (seller, platform int64) {
	platform = mulDiv(price, feePct, 100)
	return price - platform, platform
}

// distributeRewards splits total across contributors in proportion to their
// stake in totalFunded. Each share is floored; the accumulated dust is
// assigned to the largest contributor, ties going to the earliest, so the
// rewards always sum to exactly total.
//
// contributors must be in first-contribution order and amounts must be the
// frozen contribution amounts of the executed pool.
func distributeRewards(poolID uint64, total int64, contributors []common.Address, amounts map[common.Address]int64) []domain.PoolReward {
	var totalFunded int64
	for _, c := range contributors {
		totalFunded += amounts[c]
	}
	if totalFunded <= 0 || total <= 0 {
		return nil
	}

	rewards := make([]domain.PoolReward, 0, len(contributors))
	var distributed int64
	largestIdx := -1
	var largestAmount int64

	for _, c := range contributors {
		amt := amounts[c]
		if amt <= 0 {
			continue
		}
		share := mulDiv(total, amt, totalFunded)
		rewards = append(rewards, domain.PoolReward{
			PoolID:      poolID,
			Contributor: c,
			Amount:      share,
		})
		distributed += share
		if amt > largestAmount {
			largestAmount = amt
			largestIdx = len(rewards) - 1
		}
	}

	if dust := total - distributed; dust > 0 && largestIdx >= 0 {
		rewards[largestIdx].Amount += dust
	}
	return rewards
}
