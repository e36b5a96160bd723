package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

func poolFixture(t *testing.T) (*Engine, *fakeClock, domain.Opinion) {
	t.Helper()
	eng, clock := newTestEngine(t)
	fund(t, eng, alice, 1_000_000_000)
	fund(t, eng, bob, 1_000_000_000)
	fund(t, eng, carol, 1_000_000_000)
	op := createOpinion(t, eng, alice)
	return eng, clock, op
}

func TestCreatePool(t *testing.T) {
	eng, clock, op := poolFixture(t)
	deadline := clock.Now().Add(48 * time.Hour)

	balBefore := eng.SpendableBalance(bob)
	pool, m, err := eng.CreatePool(bob, op.ID, "Optimism", "op gang", "QmPool", deadline, 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), pool.ID)
	assert.Equal(t, op.ID, pool.OpinionID)
	assert.Equal(t, domain.PoolStatusActive, pool.Status)
	assert.Equal(t, int64(0), pool.TotalAmount)
	assert.Equal(t, bob, pool.Creator)
	assert.Nil(t, pool.ExecutedAt)

	// Creation fee to the treasury, nothing staked yet.
	assert.Equal(t, balBefore-5_000_000, eng.SpendableBalance(bob))

	require.NotEmpty(t, m.Events)
	assert.Equal(t, domain.EventPoolCreated, m.Events[0].Kind)
}

func TestCreatePoolValidation(t *testing.T) {
	eng, clock, op := poolFixture(t)
	good := clock.Now().Add(48 * time.Hour)

	_, _, err := eng.CreatePool(bob, 999, "Optimism", "", "", good, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = eng.CreatePool(bob, op.ID, "Arbitrum", "", "", good, 0)
	assert.ErrorIs(t, err, domain.ErrSameAnswer)

	_, _, err = eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(time.Hour), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

	_, _, err = eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(90*24*time.Hour), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

	poor := eng.SpendableBalance(carol)
	_, err = eng.WithdrawBalance(carol, poor-1_000_000)
	require.NoError(t, err)
	_, _, err = eng.CreatePool(carol, op.ID, "Optimism", "", "", good, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestCreatePoolWithSeed(t *testing.T) {
	eng, clock, op := poolFixture(t)
	deadline := clock.Now().Add(48 * time.Hour)

	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", deadline, 400_000)
	require.NoError(t, err)

	assert.Equal(t, int64(400_000), pool.TotalAmount)
	assert.Equal(t, domain.PoolStatusActive, pool.Status)

	contribs, err := eng.PoolContributions(pool.ID)
	require.NoError(t, err)
	require.Len(t, contribs, 1)
	assert.Equal(t, bob, contribs[0].Contributor)
	assert.Equal(t, int64(400_000), contribs[0].Amount)
	assert.Equal(t, 0, contribs[0].Position)
}

func TestContributeTrimsAndExecutes(t *testing.T) {
	eng, clock, op := poolFixture(t)
	deadline := clock.Now().Add(48 * time.Hour)
	target := op.NextPrice // 1.00

	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", deadline, 600_000)
	require.NoError(t, err)

	before := totalValue(eng)

	// 0.70 requested but only 0.40 needed: trimmed, and the crossing
	// contribution executes the pool in the same call.
	receipt, m, err := eng.ContributeToPool(carol, pool.ID, 700_000)
	require.NoError(t, err)
	assert.Equal(t, int64(400_000), receipt.Accepted)
	assert.Equal(t, int64(300_000), receipt.Trimmed)
	assert.Equal(t, int64(1_000_000), receipt.Fee)
	assert.True(t, receipt.Executed)
	assert.Equal(t, target, receipt.TargetPrice)

	got, err := eng.Pool(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolStatusExecuted, got.Status)
	assert.Equal(t, target, got.TotalAmount)
	assert.Equal(t, target, got.TargetPrice)
	require.NotNil(t, got.ExecutedAt)

	// The pool's derived address took custody of the answer.
	opNow, err := eng.Opinion(op.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Address(), opNow.CurrentAnswerOwner)
	assert.Equal(t, "Optimism", opNow.CurrentAnswer)
	assert.Equal(t, target, opNow.LastPrice)
	assert.Greater(t, opNow.NextPrice, int64(0))

	// Only internal transfers happened.
	assert.Equal(t, before, totalValue(eng))

	var kinds []domain.EventKind
	for _, ev := range m.Events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, domain.EventPoolContributed)
	assert.Contains(t, kinds, domain.EventPoolExecuted)
}

func TestContributeRejections(t *testing.T) {
	eng, clock, op := poolFixture(t)
	deadline := clock.Now().Add(48 * time.Hour)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", deadline, 0)
	require.NoError(t, err)

	_, _, err = eng.ContributeToPool(carol, 999, 100)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, _, err = eng.ContributeToPool(carol, pool.ID, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	// Past the deadline the pool reads expired even without a sweep.
	clock.advance(72 * time.Hour)
	_, _, err = eng.ContributeToPool(carol, pool.ID, 100)
	assert.ErrorIs(t, err, domain.ErrPoolNotActive)
}

func TestPoolResaleRewardsContributors(t *testing.T) {
	eng, clock, op := poolFixture(t)
	deadline := clock.Now().Add(48 * time.Hour)

	// bob stakes 0.60, carol 0.40 of the 1.00 target.
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", deadline, 600_000)
	require.NoError(t, err)
	receipt, _, err := eng.ContributeToPool(carol, pool.ID, 400_000)
	require.NoError(t, err)
	require.True(t, receipt.Executed)

	// Someone buys the answer away from the pool.
	clock.nextTick()
	resale, err := eng.Opinion(op.ID)
	require.NoError(t, err)
	price := resale.NextPrice

	bobFees := eng.FeeBalance(bob)
	carolFees := eng.FeeBalance(carol)

	trade, _, err := eng.SubmitAnswer(alice, op.ID, "Base", "")
	require.NoError(t, err)
	assert.True(t, trade.PoolRewarded)
	assert.Equal(t, pool.ID, trade.RewardPoolID)

	// The owner share split 60/40 between the contributors.
	ownerShare := trade.OwnerAmount
	bobGain := eng.FeeBalance(bob) - bobFees
	carolGain := eng.FeeBalance(carol) - carolFees
	carolShare := ownerShare * 400_000 / 1_000_000
	assert.Equal(t, carolShare, carolGain)
	// bob holds the larger stake, so his floored share plus the dust.
	assert.Equal(t, ownerShare-carolShare, bobGain)
	assert.Equal(t, price, trade.PricePaid)

	// Custody released: the next resale pays the new owner, not the pool.
	clock.nextTick()
	trade2, _, err := eng.SubmitAnswer(bob, op.ID, "Solana", "")
	require.NoError(t, err)
	assert.False(t, trade2.PoolRewarded)
}

func TestCheckPoolExpiry(t *testing.T) {
	eng, clock, op := poolFixture(t)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(48*time.Hour), 100_000)
	require.NoError(t, err)

	flipped, _, err := eng.CheckPoolExpiry(pool.ID)
	require.NoError(t, err)
	assert.False(t, flipped, "deadline not reached yet")

	clock.advance(48 * time.Hour)
	flipped, m, err := eng.CheckPoolExpiry(pool.ID)
	require.NoError(t, err)
	assert.True(t, flipped)
	require.Len(t, m.Events, 1)
	assert.Equal(t, domain.EventPoolExpired, m.Events[0].Kind)

	// Idempotent.
	flipped, _, err = eng.CheckPoolExpiry(pool.ID)
	require.NoError(t, err)
	assert.False(t, flipped)
}

func TestWithdrawFromExpiredPool(t *testing.T) {
	eng, clock, op := poolFixture(t)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(48*time.Hour), 300_000)
	require.NoError(t, err)

	_, _, err = eng.WithdrawFromExpiredPool(bob, pool.ID)
	assert.ErrorIs(t, err, domain.ErrPoolNotExpired)

	clock.advance(72 * time.Hour)

	// No sweep ran; withdrawal resolves expiry lazily.
	balBefore := eng.SpendableBalance(bob)
	refund, _, err := eng.WithdrawFromExpiredPool(bob, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), refund)
	assert.Equal(t, balBefore+300_000, eng.SpendableBalance(bob))

	got, err := eng.Pool(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolStatusExpired, got.Status)
	assert.Equal(t, int64(0), got.TotalAmount)

	// Double withdrawal and never-contributed are distinct failures.
	_, _, err = eng.WithdrawFromExpiredPool(bob, pool.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyWithdrawn)
	_, _, err = eng.WithdrawFromExpiredPool(carol, pool.ID)
	assert.ErrorIs(t, err, domain.ErrNoContribution)
}

func TestWithdrawFromExecutedPoolRejected(t *testing.T) {
	eng, clock, op := poolFixture(t)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(48*time.Hour), op.NextPrice)
	require.NoError(t, err)

	got, err := eng.Pool(pool.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PoolStatusExecuted, got.Status)

	_, _, err = eng.WithdrawFromExpiredPool(bob, pool.ID)
	assert.ErrorIs(t, err, domain.ErrPoolExecuted)
}

func TestWithdrawEarly(t *testing.T) {
	eng, clock, op := poolFixture(t)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(48*time.Hour), 500_000)
	require.NoError(t, err)

	balBefore := eng.SpendableBalance(bob)
	treasuryBefore := eng.FeeBalance(treasury)
	before := totalValue(eng)

	refund, _, err := eng.WithdrawFromPoolEarly(bob, pool.ID)
	require.NoError(t, err)

	// 20% penalty: 0.40 back, 0.10 to the treasury.
	assert.Equal(t, int64(400_000), refund)
	assert.Equal(t, balBefore+400_000, eng.SpendableBalance(bob))
	assert.Equal(t, treasuryBefore+100_000, eng.FeeBalance(treasury))
	assert.Equal(t, before, totalValue(eng))

	got, err := eng.Pool(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalAmount)

	_, _, err = eng.WithdrawFromPoolEarly(bob, pool.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyWithdrawn)
}

func TestExtendPoolDeadline(t *testing.T) {
	eng, clock, op := poolFixture(t)
	deadline := clock.Now().Add(48 * time.Hour)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", deadline, 300_000)
	require.NoError(t, err)

	clock.advance(50 * time.Hour)

	_, err = eng.ExtendPoolDeadline(carol, pool.ID, clock.Now().Add(7*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = eng.ExtendPoolDeadline(bob, pool.ID, clock.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

	_, err = eng.ExtendPoolDeadline(bob, pool.ID, clock.Now().Add(7*24*time.Hour))
	require.NoError(t, err)

	got, err := eng.Pool(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolStatusExtended, got.Status)

	// Extended pools take no new contributions but refund in full.
	_, _, err = eng.ContributeToPool(carol, pool.ID, 100_000)
	assert.ErrorIs(t, err, domain.ErrPoolNotActive)

	refund, _, err := eng.WithdrawFromExtendedPool(bob, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), refund)

	// A further extension must still push the deadline strictly later.
	current, err := eng.Pool(pool.ID)
	require.NoError(t, err)
	_, err = eng.ExtendPoolDeadline(bob, pool.ID, current.Deadline.Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)
	_, err = eng.ExtendPoolDeadline(bob, pool.ID, current.Deadline.Add(24*time.Hour))
	require.NoError(t, err)
}

func TestExtendActivePool(t *testing.T) {
	eng, clock, op := poolFixture(t)
	deadline := clock.Now().Add(48 * time.Hour)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", deadline, 300_000)
	require.NoError(t, err)

	// Not later than the current deadline.
	_, err = eng.ExtendPoolDeadline(bob, pool.ID, deadline)
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)
	// Beyond the maximum duration from now.
	_, err = eng.ExtendPoolDeadline(bob, pool.ID, clock.Now().Add(31*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

	_, m, err := eng.CheckPoolExpiry(pool.ID)
	require.NoError(t, err)
	require.Empty(t, m.Events)

	_, err = eng.ExtendPoolDeadline(bob, pool.ID, deadline.Add(7*24*time.Hour))
	require.NoError(t, err)

	got, err := eng.Pool(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolStatusExtended, got.Status)
	assert.Equal(t, deadline.Add(7*24*time.Hour), got.Deadline)

	// Extension closes funding even though the pool never expired.
	_, _, err = eng.ContributeToPool(carol, pool.ID, 100_000)
	assert.ErrorIs(t, err, domain.ErrPoolNotActive)
}

func TestExtendExecutedPoolRejected(t *testing.T) {
	eng, clock, op := poolFixture(t)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(48*time.Hour), op.NextPrice)
	require.NoError(t, err)

	_, err = eng.ExtendPoolDeadline(bob, pool.ID, clock.Now().Add(7*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrPoolExecuted)
}

func TestExtendAfterGraceRejected(t *testing.T) {
	eng, clock, op := poolFixture(t)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(48*time.Hour), 300_000)
	require.NoError(t, err)

	clock.advance(48*time.Hour + 8*24*time.Hour)
	_, err = eng.ExtendPoolDeadline(bob, pool.ID, clock.Now().Add(7*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrGraceWindowClosed)
}

func TestContributionFeeSplit(t *testing.T) {
	eng, clock, op := poolFixture(t)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(48*time.Hour), 0)
	require.NoError(t, err)

	treasuryBefore := eng.FeeBalance(treasury)
	aliceBefore := eng.FeeBalance(alice) // question owner
	bobBefore := eng.FeeBalance(bob)     // pool creator

	_, _, err = eng.ContributeToPool(carol, pool.ID, 100_000)
	require.NoError(t, err)

	// 1.00 fee in thirds, remainder micro-unit to the pool creator.
	assert.Equal(t, int64(333_333), eng.FeeBalance(treasury)-treasuryBefore)
	assert.Equal(t, int64(333_333), eng.FeeBalance(alice)-aliceBefore)
	assert.Equal(t, int64(333_334), eng.FeeBalance(bob)-bobBefore)
}

func TestPoolOnPausedLedger(t *testing.T) {
	eng, clock, op := poolFixture(t)
	pool, _, err := eng.CreatePool(bob, op.ID, "Optimism", "", "", clock.Now().Add(48*time.Hour), 300_000)
	require.NoError(t, err)

	_, err = eng.Pause(admin)
	require.NoError(t, err)

	_, _, err = eng.CreatePool(carol, op.ID, "Base", "", "", clock.Now().Add(48*time.Hour), 0)
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, _, err = eng.ContributeToPool(carol, pool.ID, 100_000)
	assert.ErrorIs(t, err, domain.ErrPaused)

	// Refunds stay open while paused.
	clock.advance(72 * time.Hour)
	refund, _, err := eng.WithdrawFromExpiredPool(bob, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), refund)
}
