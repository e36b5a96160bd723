package ledger

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

var (
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000c4401")
	admin    = common.HexToAddress("0x00000000000000000000000000000000000ad314")
)

// fakeClock lets tests drive time and ticks independently.
type fakeClock struct {
	now  time.Time
	tick uint64
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Tick() uint64   { return c.tick }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *fakeClock) nextTick()               { c.tick++ }

// seqEntropy yields a deterministic but varying entropy sequence.
type seqEntropy struct{ n uint64 }

func (s *seqEntropy) Draw() [32]byte {
	s.n++
	var out [32]byte
	binary.BigEndian.PutUint64(out[:8], s.n)
	return out
}

// staticGate grants every capability to a single address.
type staticGate struct{ admin common.Address }

func (g staticGate) HasCapability(actor common.Address, _ domain.Capability) (bool, error) {
	return actor == g.admin, nil
}

// errGate always errors; the engine must treat that as a denial.
type errGate struct{}

func (errGate) HasCapability(common.Address, domain.Capability) (bool, error) {
	return false, errors.New("gate unavailable")
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), tick: 1}
	eng, err := NewEngine(DefaultParams(), treasury, clock, &seqEntropy{}, staticGate{admin: admin})
	require.NoError(t, err)
	return eng, clock
}

func fund(t *testing.T, e *Engine, actor common.Address, amount int64) {
	t.Helper()
	_, err := e.Deposit(actor, amount)
	require.NoError(t, err)
}

func createOpinion(t *testing.T, e *Engine, creator common.Address) domain.Opinion {
	t.Helper()
	op, _, err := e.CreateOpinion(creator, "Best L2?", "Arbitrum", "", []string{"crypto"}, "", "")
	require.NoError(t, err)
	return op
}

// totalValue sums every balance, fee account, and unexecuted pool escrow in
// the engine. Operations other than deposits and balance withdrawals must
// keep it constant.
func totalValue(e *Engine) int64 {
	s := e.Snapshot()
	var sum int64
	for _, b := range s.Balances {
		sum += b.Amount
	}
	for _, f := range s.FeeAccounts {
		sum += f.Balance
	}
	for _, p := range s.Pools {
		if p.Status != domain.PoolStatusExecuted {
			sum += p.TotalAmount
		}
	}
	return sum
}

func TestCreateOpinion(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, 10_000_000)

	op, m, err := eng.CreateOpinion(alice, "Best L2?", "Arbitrum", "fast", []string{"crypto", "tech"}, "QmHash", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), op.ID)
	assert.Equal(t, alice, op.Creator)
	assert.Equal(t, alice, op.QuestionOwner)
	assert.Equal(t, alice, op.CurrentAnswerOwner)
	assert.Equal(t, int64(1_000_000), op.NextPrice)
	assert.Equal(t, int64(0), op.LastPrice)
	assert.True(t, op.IsActive)

	// Creation fee moved from the balance into the treasury fee account.
	assert.Equal(t, int64(5_000_000), eng.SpendableBalance(alice))
	assert.Equal(t, int64(5_000_000), eng.FeeBalance(treasury))

	require.Len(t, m.History, 1)
	assert.Equal(t, 0, m.History[0].Seq)
	assert.Equal(t, "Arbitrum", m.History[0].Answer)

	require.Len(t, m.Events, 1)
	assert.Equal(t, domain.EventOpinionCreated, m.Events[0].Kind)
}

func TestCreateOpinionValidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, 100_000_000)

	cases := []struct {
		name       string
		question   string
		answer     string
		categories []string
		wantErr    error
	}{
		{"empty question", "", "a", []string{"c"}, domain.ErrEmptyField},
		{"empty answer", "q", "", []string{"c"}, domain.ErrEmptyField},
		{"no categories", "q", "a", nil, domain.ErrEmptyField},
		{"too many categories", "q", "a", []string{"a", "b", "c", "d"}, domain.ErrTooManyCategories},
		{"blank category", "q", "a", []string{""}, domain.ErrEmptyField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := eng.CreateOpinion(alice, tc.question, tc.answer, "", tc.categories, "", "")
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("insufficient funds", func(t *testing.T) {
		_, _, err := eng.CreateOpinion(bob, "q", "a", "", []string{"c"}, "", "")
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})
}

func TestSubmitAnswer(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, 10_000_000)
	fund(t, eng, bob, 10_000_000)
	op := createOpinion(t, eng, alice)

	before := totalValue(eng)
	receipt, m, err := eng.SubmitAnswer(bob, op.ID, "Optimism", "cheaper")
	require.NoError(t, err)

	// 1.00 at 2% platform, 3% creator.
	assert.Equal(t, int64(1_000_000), receipt.PricePaid)
	assert.Equal(t, int64(20_000), receipt.PlatformFee)
	assert.Equal(t, int64(30_000), receipt.CreatorFee)
	assert.Equal(t, int64(950_000), receipt.OwnerAmount)
	assert.Equal(t, receipt.PricePaid, receipt.PlatformFee+receipt.CreatorFee+receipt.OwnerAmount)
	assert.False(t, receipt.FeeEscalated)

	got, err := eng.Opinion(op.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.CurrentAnswerOwner)
	assert.Equal(t, "Optimism", got.CurrentAnswer)
	assert.Equal(t, int64(1_000_000), got.LastPrice)
	assert.Equal(t, receipt.NextPrice, got.NextPrice)
	assert.GreaterOrEqual(t, got.NextPrice, eng.Params().MinimumPrice)
	assert.Equal(t, int64(1_000_000), got.TotalVolume)

	// Alice was both previous owner and question owner; both shares land in
	// her single fee account.
	assert.Equal(t, int64(980_000), eng.FeeBalance(alice))
	assert.Equal(t, before, totalValue(eng))

	history, err := eng.History(op.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[1].Seq)
	assert.Equal(t, bob, history[1].Owner)

	var kinds []domain.EventKind
	for _, ev := range m.Events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, domain.EventAnswerSubmitted)
}

func TestSubmitAnswerRejections(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, 10_000_000)
	fund(t, eng, bob, 500_000)
	op := createOpinion(t, eng, alice)

	_, _, err := eng.SubmitAnswer(alice, op.ID, "Base", "")
	assert.ErrorIs(t, err, domain.ErrSameOwner)

	_, _, err = eng.SubmitAnswer(bob, 999, "Base", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = eng.SubmitAnswer(bob, op.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrEmptyField)

	// 0.50 balance cannot cover the 1.00 price; nothing must change.
	before := eng.Snapshot()
	_, _, err = eng.SubmitAnswer(bob, op.ID, "Base", "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, before, eng.Snapshot())
}

func TestTotalVolumeMonotonic(t *testing.T) {
	eng, clock := newTestEngine(t)
	fund(t, eng, alice, 1_000_000_000)
	fund(t, eng, bob, 1_000_000_000)
	op := createOpinion(t, eng, alice)

	var lastVolume int64
	actors := []common.Address{bob, alice}
	for i := 0; i < 10; i++ {
		clock.nextTick()
		clock.advance(time.Minute)
		_, _, err := eng.SubmitAnswer(actors[i%2], op.ID, "answer", "")
		require.NoError(t, err)
		got, err := eng.Opinion(op.ID)
		require.NoError(t, err)
		assert.Greater(t, got.TotalVolume, lastVolume)
		lastVolume = got.TotalVolume
	}
}

func TestDepositWithdraw(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Deposit(alice, 0)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
	_, err = eng.Deposit(alice, -5)
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	fund(t, eng, alice, 3_000_000)
	_, err = eng.WithdrawBalance(alice, 4_000_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = eng.WithdrawBalance(alice, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), eng.SpendableBalance(alice))
}

func TestClaimFees(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, 10_000_000)
	fund(t, eng, bob, 10_000_000)
	op := createOpinion(t, eng, alice)

	_, _, err := eng.SubmitAnswer(bob, op.ID, "Optimism", "")
	require.NoError(t, err)

	_, _, err = eng.ClaimFees(carol)
	assert.ErrorIs(t, err, domain.ErrZeroClaim)

	owed := eng.FeeBalance(alice)
	require.Positive(t, owed)
	balBefore := eng.SpendableBalance(alice)

	claimed, _, err := eng.ClaimFees(alice)
	require.NoError(t, err)
	assert.Equal(t, owed, claimed)
	assert.Equal(t, int64(0), eng.FeeBalance(alice))
	assert.Equal(t, balBefore+owed, eng.SpendableBalance(alice))

	_, _, err = eng.ClaimFees(alice)
	assert.ErrorIs(t, err, domain.ErrZeroClaim)
}

func TestPauseBlocksTradingNotExits(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, 10_000_000)
	fund(t, eng, bob, 10_000_000)
	op := createOpinion(t, eng, alice)
	_, _, err := eng.SubmitAnswer(bob, op.ID, "Optimism", "")
	require.NoError(t, err)

	_, err = eng.Pause(bob)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = eng.Pause(admin)
	require.NoError(t, err)
	assert.True(t, eng.Paused())

	_, _, err = eng.SubmitAnswer(alice, op.ID, "Base", "")
	assert.ErrorIs(t, err, domain.ErrPaused)
	_, _, err = eng.CreateOpinion(alice, "q", "a", "", []string{"c"}, "", "")
	assert.ErrorIs(t, err, domain.ErrPaused)

	// Exits stay open while paused.
	_, err = eng.Deposit(carol, 1_000_000)
	assert.NoError(t, err)
	_, err = eng.WithdrawBalance(carol, 500_000)
	assert.NoError(t, err)
	_, _, err = eng.ClaimFees(alice)
	assert.NoError(t, err)

	_, err = eng.Unpause(admin)
	require.NoError(t, err)
	_, _, err = eng.SubmitAnswer(alice, op.ID, "Base", "")
	assert.NoError(t, err)
}

func TestGateFailsClosed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0), tick: 1}
	eng, err := NewEngine(DefaultParams(), treasury, clock, &seqEntropy{}, errGate{})
	require.NoError(t, err)

	_, err = eng.Pause(admin)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = eng.SetOpinionActive(admin, 1, false)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = eng.SetParams(admin, DefaultParams())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestModeration(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, 10_000_000)
	fund(t, eng, bob, 10_000_000)
	op := createOpinion(t, eng, alice)

	_, err := eng.SetOpinionActive(admin, op.ID, false)
	require.NoError(t, err)

	_, _, err = eng.SubmitAnswer(bob, op.ID, "Base", "")
	assert.ErrorIs(t, err, domain.ErrOpinionInactive)
	_, _, err = eng.CreatePool(bob, op.ID, "Base", "", "", eng.clock.Now().Add(48*time.Hour), 0)
	assert.ErrorIs(t, err, domain.ErrOpinionInactive)

	// Deactivation hides, never destroys.
	got, err := eng.Opinion(op.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = eng.SetOpinionActive(admin, op.ID, true)
	require.NoError(t, err)
	_, _, err = eng.SubmitAnswer(bob, op.ID, "Base", "")
	assert.NoError(t, err)
}

func TestSetParams(t *testing.T) {
	eng, _ := newTestEngine(t)

	bad := DefaultParams()
	bad.InitialPrice = 0
	_, err := eng.SetParams(admin, bad)
	assert.Error(t, err)

	p := DefaultParams()
	p.PlatformFeePct = 5
	_, err = eng.SetParams(admin, p)
	require.NoError(t, err)
	assert.Equal(t, int64(5), eng.Params().PlatformFeePct)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	eng, clock := newTestEngine(t)
	fund(t, eng, alice, 100_000_000)
	fund(t, eng, bob, 100_000_000)
	op := createOpinion(t, eng, alice)
	_, _, err := eng.SubmitAnswer(bob, op.ID, "Optimism", "")
	require.NoError(t, err)

	deadline := clock.Now().Add(48 * time.Hour)
	pool, _, err := eng.CreatePool(alice, op.ID, "Base", "base gang", "", deadline, 2_000_000)
	require.NoError(t, err)

	snap := eng.Snapshot()

	restored, err := NewEngine(DefaultParams(), treasury, clock, &seqEntropy{}, staticGate{admin: admin})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, snap, restored.Snapshot())

	// The restored engine keeps allocating ids after the persisted maximum.
	fund(t, eng, carol, 100_000_000)
	fund(t, restored, carol, 100_000_000)
	op2a := createOpinion(t, eng, carol)
	op2b := createOpinion(t, restored, carol)
	assert.Equal(t, op2a.ID, op2b.ID)

	p2, _, err := restored.CreatePool(carol, op.ID, "Solana", "", "", deadline, 0)
	require.NoError(t, err)
	assert.Equal(t, pool.ID+1, p2.ID)
}

func TestDepositNeverWrapsBalance(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, math.MaxInt64)

	_, err := eng.Deposit(alice, 1)
	assert.ErrorIs(t, err, domain.ErrOverflow)
	assert.Equal(t, int64(math.MaxInt64), eng.SpendableBalance(alice))
	assert.Equal(t, int64(math.MaxInt64), eng.TotalFunds())
}

func TestDepositCapacityIsSystemWide(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, math.MaxInt64-10)

	// A different actor cannot push the ledger total past capacity either.
	_, err := eng.Deposit(bob, 11)
	assert.ErrorIs(t, err, domain.ErrOverflow)
	fund(t, eng, bob, 10)

	// Withdrawals free capacity again.
	_, err = eng.WithdrawBalance(alice, 100)
	require.NoError(t, err)
	fund(t, eng, carol, 100)
	assert.Equal(t, int64(math.MaxInt64), eng.TotalFunds())
}

func TestRestoreRederivesFundsTotal(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, math.MaxInt64-5)

	restored, err := NewEngine(DefaultParams(), treasury, &fakeClock{now: time.Unix(1700000000, 0), tick: 1}, &seqEntropy{}, staticGate{admin: admin})
	require.NoError(t, err)
	require.NoError(t, restored.Restore(eng.Snapshot()))

	assert.Equal(t, int64(math.MaxInt64-5), restored.TotalFunds())
	_, err = restored.Deposit(bob, 6)
	assert.ErrorIs(t, err, domain.ErrOverflow)
	_, err = restored.Deposit(bob, 5)
	require.NoError(t, err)
}
