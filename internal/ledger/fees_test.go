package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPurchase(t *testing.T) {
	// 42.00 at 2/3 percent: 0.84 platform, 1.26 creator, 39.90 owner.
	s := splitPurchase(42_000_000, 2, 3)
	assert.Equal(t, int64(840_000), s.Platform)
	assert.Equal(t, int64(1_260_000), s.Creator)
	assert.Equal(t, int64(39_900_000), s.Owner)
}

func TestSplitPurchaseConservation(t *testing.T) {
	prices := []int64{1, 3, 99, 1_000_000, 1_000_001, 33_333_333, 42_000_000, 1 << 40}
	for _, price := range prices {
		for pct := int64(2); pct <= 20; pct++ {
			s := splitPurchase(price, pct, 3)
			require.Equal(t, price, s.Platform+s.Creator+s.Owner, "price=%d pct=%d", price, pct)
			require.GreaterOrEqual(t, s.Owner, int64(0))
		}
	}
}

func TestSplitContributionFee(t *testing.T) {
	platform, creator, poolCreator := splitContributionFee(1_000_000)
	assert.Equal(t, int64(333_333), platform)
	assert.Equal(t, int64(333_333), creator)
	// The remainder micro-unit goes to the pool creator.
	assert.Equal(t, int64(333_334), poolCreator)

	for fee := int64(1); fee < 100; fee++ {
		p, c, pc := splitContributionFee(fee)
		require.Equal(t, fee, p+c+pc)
		require.Equal(t, p, c)
		require.GreaterOrEqual(t, pc, p)
	}
}

func TestSplitQuestionSale(t *testing.T) {
	seller, platform := splitQuestionSale(10_000_000, 10)
	assert.Equal(t, int64(9_000_000), seller)
	assert.Equal(t, int64(1_000_000), platform)

	// The seller absorbs the remainder.
	seller, platform = splitQuestionSale(15, 10)
	assert.Equal(t, int64(14), seller)
	assert.Equal(t, int64(1), platform)
	assert.Equal(t, int64(15), seller+platform)
}

func TestDistributeRewardsProportional(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	c := common.HexToAddress("0x03")

	rewards := distributeRewards(7, 1_000_000,
		[]common.Address{a, b, c},
		map[common.Address]int64{a: 500_000, b: 300_000, c: 200_000},
	)
	require.Len(t, rewards, 3)
	assert.Equal(t, int64(500_000), rewards[0].Amount)
	assert.Equal(t, int64(300_000), rewards[1].Amount)
	assert.Equal(t, int64(200_000), rewards[2].Amount)
	for _, r := range rewards {
		assert.Equal(t, uint64(7), r.PoolID)
	}
}

func TestDistributeRewardsDustToLargest(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	c := common.HexToAddress("0x03")

	// 100 split 1:1:1 leaves dust of 1; b holds the largest stake.
	rewards := distributeRewards(1, 100,
		[]common.Address{a, b, c},
		map[common.Address]int64{a: 100, b: 101, c: 100},
	)
	require.Len(t, rewards, 3)
	var total int64
	for _, r := range rewards {
		total += r.Amount
	}
	assert.Equal(t, int64(100), total)
	assert.Equal(t, rewards[1].Contributor, b)
	assert.Greater(t, rewards[1].Amount, rewards[0].Amount)
	assert.Greater(t, rewards[1].Amount, rewards[2].Amount)
}

func TestDistributeRewardsDustTieEarliest(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	c := common.HexToAddress("0x03")

	// Equal stakes: the tie goes to the first contributor.
	rewards := distributeRewards(1, 100,
		[]common.Address{a, b, c},
		map[common.Address]int64{a: 50, b: 50, c: 50},
	)
	require.Len(t, rewards, 3)
	assert.Equal(t, a, rewards[0].Contributor)
	assert.Equal(t, int64(34), rewards[0].Amount)
	assert.Equal(t, int64(33), rewards[1].Amount)
	assert.Equal(t, int64(33), rewards[2].Amount)
}

func TestDistributeRewardsSkipsWithdrawn(t *testing.T) {
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")

	rewards := distributeRewards(1, 1000,
		[]common.Address{a, b},
		map[common.Address]int64{a: 0, b: 500},
	)
	require.Len(t, rewards, 1)
	assert.Equal(t, b, rewards[0].Contributor)
	assert.Equal(t, int64(1000), rewards[0].Amount)
}

func TestDistributeRewardsConservation(t *testing.T) {
	addrs := make([]common.Address, 7)
	amounts := make(map[common.Address]int64, 7)
	for i := range addrs {
		addrs[i] = common.BytesToAddress([]byte{byte(i + 1)})
		amounts[addrs[i]] = int64(i*i*1000 + 17)
	}
	for _, total := range []int64{1, 99, 1000, 999_999, 40_000_001} {
		rewards := distributeRewards(3, total, addrs, amounts)
		var sum int64
		for _, r := range rewards {
			sum += r.Amount
		}
		require.Equal(t, total, sum, "total=%d", total)
	}
}
