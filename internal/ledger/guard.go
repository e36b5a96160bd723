package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

// tradeKey identifies one actor's trading activity on one opinion.
type tradeKey struct {
	actor   common.Address
	opinion uint64
}

// TradeGuard bounds trade frequency per actor per logical tick and escalates
// the platform fee for rapid repeated trades on the same opinion. Tick caps
// are hard rejections; the rapid-trade window is a cost-based deterrent.
type TradeGuard struct {
	maxPerTick int
	window     time.Duration
	basePct    int64
	maxPct     int64

	tick        uint64
	actorCount  map[common.Address]int
	itemTick    map[tradeKey]uint64
	lastTradeAt map[tradeKey]time.Time
}

// NewTradeGuard creates a TradeGuard from ledger parameters.
func NewTradeGuard(p Params) *TradeGuard {
	return &TradeGuard{
		maxPerTick:  p.MaxTradesPerTick,
		window:      p.RapidTradeWindow,
		basePct:     p.PlatformFeePct,
		maxPct:      p.RapidTradeMaxFeePct,
		actorCount:  make(map[common.Address]int),
		itemTick:    make(map[tradeKey]uint64),
		lastTradeAt: make(map[tradeKey]time.Time),
	}
}

// Configure applies updated parameters. In-flight tick counters and the
// rolling window timestamps are kept.
func (g *TradeGuard) Configure(p Params) {
	g.maxPerTick = p.MaxTradesPerTick
	g.window = p.RapidTradeWindow
	g.basePct = p.PlatformFeePct
	g.maxPct = p.RapidTradeMaxFeePct
}

// roll resets per-tick counters when the logical tick advances. The rolling
// rapid-trade timestamps survive tick boundaries.
func (g *TradeGuard) roll(tick uint64) {
	if tick == g.tick {
		return
	}
	g.tick = tick
	g.actorCount = make(map[common.Address]int)
	g.itemTick = make(map[tradeKey]uint64)
}

// Check rejects a trade that would exceed the per-actor or per-opinion tick
// caps. It performs no mutation; call Record after the trade commits.
func (g *TradeGuard) Check(actor common.Address, opinionID uint64, tick uint64) error {
	g.roll(tick)

	if g.actorCount[actor] >= g.maxPerTick {
		return domain.ErrRateLimited
	}
	if t, ok := g.itemTick[tradeKey{actor, opinionID}]; ok && t == tick {
		return domain.ErrOpinionCooldown
	}
	return nil
}

// PlatformFeePct returns the platform fee percentage for this trade. Trading
// the same opinion again inside the rolling window escalates the fee
// linearly from the base toward the ceiling: an immediate re-trade pays the
// full escalated rate, one at the edge of the window pays the base rate.
func (g *TradeGuard) PlatformFeePct(actor common.Address, opinionID uint64, now time.Time) int64 {
	last, ok := g.lastTradeAt[tradeKey{actor, opinionID}]
	if !ok {
		return g.basePct
	}
	elapsed := now.Sub(last)
	if elapsed >= g.window || elapsed < 0 {
		return g.basePct
	}

	remaining := int64(g.window - elapsed)
	escalated := g.basePct + (g.maxPct-g.basePct)*remaining/int64(g.window)
	if escalated > g.maxPct {
		escalated = g.maxPct
	}
	if escalated < g.basePct {
		escalated = g.basePct
	}
	return escalated
}

// Record registers a committed trade against the caps and the rolling window.
func (g *TradeGuard) Record(actor common.Address, opinionID uint64, tick uint64, now time.Time) {
	g.roll(tick)
	g.actorCount[actor]++
	g.itemTick[tradeKey{actor, opinionID}] = tick
	g.lastTradeAt[tradeKey{actor, opinionID}] = now
}
