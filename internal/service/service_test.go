package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/opinioncore/internal/domain"
	"github.com/alanyoungcy/opinioncore/internal/ledger"
	"github.com/alanyoungcy/opinioncore/internal/notify"
)

var (
	treasury = common.HexToAddress("0x0000000000000000000000000000000000000011")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

// fakeClock drives engine time from the test.
type fakeClock struct {
	now  time.Time
	tick uint64
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Tick() uint64   { return c.tick }

type seqEntropy struct{ n byte }

func (s *seqEntropy) Draw() [32]byte {
	s.n++
	return [32]byte{0: s.n}
}

type openGate struct{}

func (openGate) HasCapability(common.Address, domain.Capability) (bool, error) {
	return true, nil
}

// memStores is an in-memory Stores implementation recording every write.
type memStores struct {
	opinions map[uint64]domain.Opinion
	history  []domain.AnswerHistoryEntry
	pools    map[uint64]domain.Pool
	contribs map[uint64]map[common.Address]domain.Contribution
	fees     map[common.Address]domain.FeeAccount
	balances map[common.Address]domain.Balance
	audits   []domain.AuditEntry
}

func newMemStores() *memStores {
	return &memStores{
		opinions: make(map[uint64]domain.Opinion),
		pools:    make(map[uint64]domain.Pool),
		contribs: make(map[uint64]map[common.Address]domain.Contribution),
		fees:     make(map[common.Address]domain.FeeAccount),
		balances: make(map[common.Address]domain.Balance),
	}
}

func (m *memStores) stores() Stores {
	return Stores{
		Opinions:      (*memOpinionStore)(m),
		History:       (*memHistoryStore)(m),
		Pools:         (*memPoolStore)(m),
		Contributions: (*memContributionStore)(m),
		FeeAccounts:   (*memFeeAccountStore)(m),
		Balances:      (*memBalanceStore)(m),
		Audit:         (*memAuditStore)(m),
	}
}

type memOpinionStore memStores

func (s *memOpinionStore) Upsert(_ context.Context, o domain.Opinion) error {
	s.opinions[o.ID] = o
	return nil
}
func (s *memOpinionStore) GetByID(_ context.Context, id uint64) (domain.Opinion, error) {
	o, ok := s.opinions[id]
	if !ok {
		return domain.Opinion{}, domain.ErrNotFound
	}
	return o, nil
}
func (s *memOpinionStore) ListActive(context.Context, domain.ListOpts) ([]domain.Opinion, error) {
	var out []domain.Opinion
	for _, o := range s.opinions {
		if o.IsActive {
			out = append(out, o)
		}
	}
	return out, nil
}
func (s *memOpinionStore) ListAll(context.Context) ([]domain.Opinion, error) { return nil, nil }
func (s *memOpinionStore) Count(context.Context) (int64, error) {
	return int64(len(s.opinions)), nil
}

type memHistoryStore memStores

func (s *memHistoryStore) Append(_ context.Context, e domain.AnswerHistoryEntry) error {
	s.history = append(s.history, e)
	return nil
}
func (s *memHistoryStore) ListByOpinion(_ context.Context, opinionID uint64, _ domain.ListOpts) ([]domain.AnswerHistoryEntry, error) {
	var out []domain.AnswerHistoryEntry
	for _, e := range s.history {
		if e.OpinionID == opinionID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (s *memHistoryStore) ListAll(context.Context) ([]domain.AnswerHistoryEntry, error) {
	return s.history, nil
}
func (s *memHistoryStore) ListBefore(context.Context, time.Time, int) ([]domain.AnswerHistoryEntry, error) {
	return nil, nil
}

type memPoolStore memStores

func (s *memPoolStore) Upsert(_ context.Context, p domain.Pool) error {
	s.pools[p.ID] = p
	return nil
}
func (s *memPoolStore) GetByID(_ context.Context, id uint64) (domain.Pool, error) {
	p, ok := s.pools[id]
	if !ok {
		return domain.Pool{}, domain.ErrNotFound
	}
	return p, nil
}
func (s *memPoolStore) ListByOpinion(context.Context, uint64) ([]domain.Pool, error) {
	return nil, nil
}
func (s *memPoolStore) ListByStatus(context.Context, domain.PoolStatus, domain.ListOpts) ([]domain.Pool, error) {
	return nil, nil
}
func (s *memPoolStore) ListAll(context.Context) ([]domain.Pool, error) { return nil, nil }

type memContributionStore memStores

func (s *memContributionStore) Upsert(_ context.Context, c domain.Contribution) error {
	if s.contribs[c.PoolID] == nil {
		s.contribs[c.PoolID] = make(map[common.Address]domain.Contribution)
	}
	s.contribs[c.PoolID][c.Contributor] = c
	return nil
}
func (s *memContributionStore) Get(_ context.Context, poolID uint64, contributor common.Address) (domain.Contribution, error) {
	c, ok := s.contribs[poolID][contributor]
	if !ok {
		return domain.Contribution{}, domain.ErrNotFound
	}
	return c, nil
}
func (s *memContributionStore) ListByPool(context.Context, uint64) ([]domain.Contribution, error) {
	return nil, nil
}
func (s *memContributionStore) ListAll(context.Context) ([]domain.Contribution, error) {
	return nil, nil
}

type memFeeAccountStore memStores

func (s *memFeeAccountStore) Upsert(_ context.Context, a domain.FeeAccount) error {
	s.fees[a.Owner] = a
	return nil
}
func (s *memFeeAccountStore) Get(_ context.Context, owner common.Address) (domain.FeeAccount, error) {
	a, ok := s.fees[owner]
	if !ok {
		return domain.FeeAccount{}, domain.ErrNotFound
	}
	return a, nil
}
func (s *memFeeAccountStore) ListAll(context.Context) ([]domain.FeeAccount, error) {
	return nil, nil
}

type memBalanceStore memStores

func (s *memBalanceStore) Upsert(_ context.Context, b domain.Balance) error {
	s.balances[b.Owner] = b
	return nil
}
func (s *memBalanceStore) Get(_ context.Context, owner common.Address) (domain.Balance, error) {
	b, ok := s.balances[owner]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return b, nil
}
func (s *memBalanceStore) ListAll(context.Context) ([]domain.Balance, error) { return nil, nil }

type memAuditStore memStores

func (s *memAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.audits = append(s.audits, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}
func (s *memAuditStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return s.audits, nil
}
func (s *memAuditStore) ListBefore(context.Context, time.Time, int) ([]domain.AuditEntry, error) {
	return nil, nil
}
func (s *memAuditStore) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memStores) auditEvents() []string {
	out := make([]string, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.Event)
	}
	return out
}

// memBus records published payloads per channel and stream appends.
type memBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}
func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }
func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}
func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// memLocks grants every acquire unless held is set.
type memLocks struct {
	held     bool
	acquired []string
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired = append(l.acquired, key)
	return func() {}, nil
}

type fixture struct {
	engine *ledger.Engine
	clock  *fakeClock
	mem    *memStores
	bus    *memBus
	locks  *memLocks
	logger *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), tick: 1}
	eng, err := ledger.NewEngine(ledger.DefaultParams(), treasury, clock, &seqEntropy{}, openGate{})
	require.NoError(t, err)

	for _, actor := range []common.Address{alice, bob} {
		_, err := eng.Deposit(actor, 100_000_000)
		require.NoError(t, err)
	}
	return &fixture{
		engine: eng,
		clock:  clock,
		mem:    newMemStores(),
		bus:    newMemBus(),
		locks:  &memLocks{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (f *fixture) ledgerService() *LedgerService {
	return NewLedgerService(f.engine, f.mem.stores(), f.bus, f.logger)
}

func (f *fixture) poolService() *PoolService {
	return NewPoolService(f.engine, f.mem.stores(), f.bus, f.locks, f.logger)
}

func (f *fixture) feeService() *FeeService {
	return NewFeeService(f.engine, f.mem.stores(), f.bus, f.logger)
}

func TestCreateOpinionWritesThrough(t *testing.T) {
	f := newFixture(t)
	svc := f.ledgerService()

	op, err := svc.CreateOpinion(context.Background(), CreateOpinionRequest{
		Actor:      alice,
		Question:   "Will it rain tomorrow?",
		Answer:     "Yes",
		Categories: []string{"weather"},
	})
	require.NoError(t, err)

	stored, ok := f.mem.opinions[op.ID]
	require.True(t, ok, "opinion not persisted")
	assert.Equal(t, "Will it rain tomorrow?", stored.Question)
	assert.Equal(t, alice, stored.Creator)

	require.Len(t, f.mem.history, 1)
	assert.Equal(t, op.ID, f.mem.history[0].OpinionID)

	// Creator's balance snapshot and the treasury's creation fee both land.
	assert.Contains(t, f.mem.balances, alice)
	assert.Contains(t, f.mem.fees, treasury)

	assert.Contains(t, f.mem.auditEvents(), "opinion_created")
}

func TestCreateOpinionFansOutEvents(t *testing.T) {
	f := newFixture(t)
	svc := f.ledgerService()

	_, err := svc.CreateOpinion(context.Background(), CreateOpinionRequest{
		Actor:      alice,
		Question:   "Best text editor?",
		Answer:     "ed",
		Categories: []string{"tech"},
	})
	require.NoError(t, err)

	require.NotEmpty(t, f.bus.published["opinions"])
	assert.Contains(t, string(f.bus.published["opinions"][0]), `"kind":"opinion_created"`)

	// Every published event is also appended to the durable stream.
	assert.Equal(t, len(f.bus.published["opinions"]), len(f.bus.streamed[eventStream]))
}

func TestSubmitAnswerPersistsHistoryInOrder(t *testing.T) {
	f := newFixture(t)
	svc := f.ledgerService()
	ctx := context.Background()

	op, err := svc.CreateOpinion(ctx, CreateOpinionRequest{
		Actor:      alice,
		Question:   "Tabs or spaces?",
		Answer:     "Tabs",
		Categories: []string{"tech"},
	})
	require.NoError(t, err)

	f.clock.tick++
	receipt, err := svc.SubmitAnswer(ctx, bob, op.ID, "Spaces", "")
	require.NoError(t, err)
	assert.Greater(t, receipt.PricePaid, int64(0))

	entries, err := svc.GetHistory(ctx, op.ID, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Seq)
	assert.Equal(t, 1, entries[1].Seq)
	assert.Equal(t, "Spaces", entries[1].Answer)
}

func TestPersistFailureSurfacesAfterEngineCommit(t *testing.T) {
	f := newFixture(t)
	stores := f.mem.stores()
	stores.Opinions = failingOpinionStore{}
	svc := NewLedgerService(f.engine, stores, f.bus, f.logger)

	_, err := svc.CreateOpinion(context.Background(), CreateOpinionRequest{
		Actor:      alice,
		Question:   "Does this persist?",
		Answer:     "No",
		Categories: []string{"tech"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist opinion")

	// The engine committed regardless; restore-from-store divergence is the
	// operator's signal to investigate.
	_, err = f.engine.Opinion(1)
	assert.NoError(t, err)
}

type failingOpinionStore struct{}

func (failingOpinionStore) Upsert(context.Context, domain.Opinion) error {
	return assert.AnError
}
func (failingOpinionStore) GetByID(context.Context, uint64) (domain.Opinion, error) {
	return domain.Opinion{}, domain.ErrNotFound
}
func (failingOpinionStore) ListActive(context.Context, domain.ListOpts) ([]domain.Opinion, error) {
	return nil, nil
}
func (failingOpinionStore) ListAll(context.Context) ([]domain.Opinion, error) { return nil, nil }
func (failingOpinionStore) Count(context.Context) (int64, error)              { return 0, nil }

func TestSweepOnceFlipsOverduePools(t *testing.T) {
	f := newFixture(t)
	ledgerSvc := f.ledgerService()
	poolSvc := f.poolService()
	ctx := context.Background()

	op, err := ledgerSvc.CreateOpinion(ctx, CreateOpinionRequest{
		Actor:      alice,
		Question:   "Coffee or tea?",
		Answer:     "Coffee",
		Categories: []string{"food"},
	})
	require.NoError(t, err)

	pool, err := poolSvc.CreatePool(ctx, CreatePoolRequest{
		Actor:               bob,
		OpinionID:           op.ID,
		ProposedAnswer:      "Tea",
		Deadline:            f.clock.now.Add(24 * time.Hour),
		InitialContribution: 1_000_000,
	})
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(25 * time.Hour)
	require.NoError(t, poolSvc.sweepOnce(ctx))

	assert.Equal(t, []string{"pool_expiry_sweep"}, f.locks.acquired)
	stored, ok := f.mem.pools[pool.ID]
	require.True(t, ok)
	assert.Equal(t, domain.PoolStatusExpired, stored.Status)
	assert.Contains(t, f.mem.auditEvents(), "pools_expired")
}

// memNotifier records alerts handed to the service layer.
type memNotifier struct {
	alerts []notify.Alert
}

func (n *memNotifier) Notify(_ context.Context, a notify.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

func TestPoolExecutionRaisesAlert(t *testing.T) {
	f := newFixture(t)
	ledgerSvc := f.ledgerService()
	notifier := &memNotifier{}
	poolSvc := f.poolService().WithNotifier(notifier)
	ctx := context.Background()

	op, err := ledgerSvc.CreateOpinion(ctx, CreateOpinionRequest{
		Actor:      alice,
		Question:   "Next L2 to flip?",
		Answer:     "Arbitrum",
		Categories: []string{"crypto"},
	})
	require.NoError(t, err)

	pool, err := poolSvc.CreatePool(ctx, CreatePoolRequest{
		Actor:          bob,
		OpinionID:      op.ID,
		ProposedAnswer: "Optimism",
		Deadline:       f.clock.now.Add(48 * time.Hour),
	})
	require.NoError(t, err)

	fresh, err := ledgerSvc.GetOpinion(ctx, op.ID)
	require.NoError(t, err)
	receipt, err := poolSvc.ContributeToPool(ctx, bob, pool.ID, fresh.NextPrice)
	require.NoError(t, err)
	require.True(t, receipt.Executed)

	require.Len(t, notifier.alerts, 1)
	a := notifier.alerts[0]
	assert.Equal(t, "pool_executed", a.Event)
	assert.Equal(t, pool.ID, a.PoolID)
	assert.Equal(t, op.ID, a.OpinionID)
	assert.Equal(t, receipt.TargetPrice, a.Amount)
}

func TestSweepOnceSkipsWhenLockHeld(t *testing.T) {
	f := newFixture(t)
	f.locks.held = true
	poolSvc := f.poolService()

	require.NoError(t, poolSvc.sweepOnce(context.Background()))
	assert.Empty(t, f.mem.audits)
	assert.Empty(t, f.bus.published)
}

func TestSweepOnceQuietWhenNothingOverdue(t *testing.T) {
	f := newFixture(t)
	poolSvc := f.poolService()

	require.NoError(t, poolSvc.sweepOnce(context.Background()))
	assert.Empty(t, f.mem.pools)
	assert.Empty(t, f.mem.audits)
}

func TestDepositAndWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	svc := f.feeService()
	ctx := context.Background()

	require.NoError(t, svc.Deposit(ctx, alice, 5_000_000))
	require.NoError(t, svc.WithdrawBalance(ctx, alice, 2_000_000))

	b, ok := f.mem.balances[alice]
	require.True(t, ok)
	assert.Equal(t, int64(103_000_000), b.Amount)

	require.NotEmpty(t, f.bus.published["fees"])
	events := f.mem.auditEvents()
	assert.Contains(t, events, "deposit")
	assert.Contains(t, events, "balance_withdrawn")
}

func TestClaimFeesMovesEarningsToSpendable(t *testing.T) {
	f := newFixture(t)
	ledgerSvc := f.ledgerService()
	feeSvc := f.feeService()
	ctx := context.Background()

	op, err := ledgerSvc.CreateOpinion(ctx, CreateOpinionRequest{
		Actor:      alice,
		Question:   "Vim or Emacs?",
		Answer:     "Vim",
		Categories: []string{"tech"},
	})
	require.NoError(t, err)

	f.clock.tick++
	_, err = ledgerSvc.SubmitAnswer(ctx, bob, op.ID, "Emacs", "")
	require.NoError(t, err)

	// The trade credited alice a creator fee she can now claim.
	fees, _ := feeSvc.Balances(ctx, alice)
	require.Greater(t, fees, int64(0))

	claimed, err := feeSvc.ClaimFees(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, fees, claimed)

	after, _ := feeSvc.Balances(ctx, alice)
	assert.Zero(t, after)
	assert.Contains(t, f.mem.auditEvents(), "fees_claimed")
}
