package ledger

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drawN(n uint64) [32]byte {
	var e [32]byte
	binary.BigEndian.PutUint64(e[:8], n)
	return e
}

func TestRawDeltaBounds(t *testing.T) {
	for i := uint64(0); i < 5000; i++ {
		d := rawDelta(1_000_000, drawN(i))
		assert.GreaterOrEqual(t, d, int64(-15))
		assert.LessOrEqual(t, d, int64(99))
		assert.NotZero(t, d, "price must always move")
		assert.NotEqual(t, int64(1), d)
	}
}

func TestRawDeltaDeterministic(t *testing.T) {
	e := drawN(42)
	first := rawDelta(3_141_592, e)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, rawDelta(3_141_592, e))
	}
	// Mixing in the current price changes the outcome for the same entropy.
	different := false
	for p := int64(1); p < 100 && !different; p++ {
		different = rawDelta(3_141_592+p, e) != first
	}
	assert.True(t, different)
}

func TestRawDeltaExpectedValue(t *testing.T) {
	const samples = 20000
	var sum int64
	for i := uint64(0); i < samples; i++ {
		sum += rawDelta(1_000_000, drawN(i))
	}
	mean := float64(sum) / samples
	// Band weights put the theoretical mean near +11.35%.
	assert.Greater(t, mean, 8.0)
	assert.Less(t, mean, 14.0)
}

func TestNextAppliesFloor(t *testing.T) {
	e := NewPriceEngine(DefaultParams())

	// Find an entropy draw that produces a negative delta and check the
	// result never goes below the floor.
	for i := uint64(0); i < 200; i++ {
		entropy := drawN(i)
		if rawDelta(1_000_000, entropy) < 0 {
			next := e.Next(1_000_000, entropy)
			assert.Equal(t, int64(1_000_000), next, "a dip at the floor clamps back to the floor")
			return
		}
	}
	t.Fatal("no negative delta found in 200 draws")
}

func TestNextClampsDelta(t *testing.T) {
	p := DefaultParams()
	p.MinimumPrice = 1
	p.MaxPriceChangePct = 99
	e := NewPriceEngine(p)

	const current int64 = 10_000_000
	for i := uint64(0); i < 2000; i++ {
		next := e.Next(current, drawN(i))
		require.GreaterOrEqual(t, next, current-current*99/100)
		require.LessOrEqual(t, next, current+current*99/100)
	}
}

func TestNextSaturatesNearCapacity(t *testing.T) {
	e := NewPriceEngine(DefaultParams())

	for i := uint64(0); i < 500; i++ {
		for _, current := range []int64{math.MaxInt64, math.MaxInt64 - 1, math.MaxInt64 / 2, math.MaxInt64/100 + 1} {
			next := e.Next(current, drawN(i))
			require.GreaterOrEqual(t, next, int64(1_000_000), "price at %d must not wrap", current)
			require.LessOrEqual(t, next, int64(math.MaxInt64))
		}
	}
}

func TestNextNeverBelowFloor(t *testing.T) {
	e := NewPriceEngine(DefaultParams())
	price := int64(1_000_000)
	for i := uint64(0); i < 1000; i++ {
		price = e.Next(price, drawN(i))
		require.GreaterOrEqual(t, price, int64(1_000_000))
	}
}
