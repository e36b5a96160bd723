package ledger

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/crypto"
)

// PriceEngine computes the next purchase price from the current price and an
// entropy draw. For a given (currentPrice, entropy) pair the result is fully
// deterministic; unpredictability comes from the entropy being unknown to the
// actor before their action is submitted.
type PriceEngine struct {
	floor        int64
	maxChangePct int64
}

// NewPriceEngine creates a PriceEngine from ledger parameters.
func NewPriceEngine(p Params) *PriceEngine {
	return &PriceEngine{
		floor:        p.MinimumPrice,
		maxChangePct: p.MaxPriceChangePct,
	}
}

// rawDelta derives the unclamped percentage delta in [-15, +99] from the
// entropy mixed with the current price. The band weights put the expected
// move at roughly +11%: 20% chance of a dip, 70% of a modest rise, 10% of a
// jump.
func rawDelta(current int64, entropy [32]byte) int64 {
	var buf [40]byte
	copy(buf[:32], entropy[:])
	binary.BigEndian.PutUint64(buf[32:], uint64(current))
	h := crypto.Keccak256(buf[:])

	band := binary.BigEndian.Uint64(h[:8]) % 1000
	mag := binary.BigEndian.Uint64(h[8:16])

	switch {
	case band < 200:
		return -15 + int64(mag%15) // [-15, -1]
	case band < 900:
		return 2 + int64(mag%17) // [2, 18]
	default:
		return 20 + int64(mag%80) // [20, 99]
	}
}

// Next returns the price to charge for the purchase after one at current.
// The delta is clamped to the configured maximum change before it is applied,
// and the result never falls below the floor. A price that would overflow
// int64 saturates at MaxInt64 instead of wrapping.
func (e *PriceEngine) Next(current int64, entropy [32]byte) int64 {
	delta := rawDelta(current, entropy)
	if delta > e.maxChangePct {
		delta = e.maxChangePct
	}
	if delta < -e.maxChangePct {
		delta = -e.maxChangePct
	}

	var next int64
	if current > math.MaxInt64/100 {
		// current*delta would overflow; divide first. rawDelta keeps
		// |delta| < 100, so step*delta stays in range.
		step := current / 100
		if delta > 0 && step > (math.MaxInt64-current)/delta {
			next = math.MaxInt64
		} else {
			next = current + step*delta
		}
	} else {
		next = current + current*delta/100
	}
	if next < e.floor {
		next = e.floor
	}
	return next
}
