package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/opinioncore/internal/domain"
)

func TestQuestionListAndCancel(t *testing.T) {
	eng, _ := newTestEngine(t)
	fund(t, eng, alice, 10_000_000)
	fund(t, eng, bob, 10_000_000)
	op := createOpinion(t, eng, alice)

	_, err := eng.ListQuestion(bob, op.ID, 2_000_000)
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	_, err = eng.ListQuestion(alice, op.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	_, err = eng.CancelQuestionListing(alice, op.ID)
	assert.ErrorIs(t, err, domain.ErrNotListed)

	_, err = eng.ListQuestion(alice, op.ID, 2_000_000)
	require.NoError(t, err)
	got, err := eng.Opinion(op.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), got.SalePrice)

	// Relisting overwrites the price.
	_, err = eng.ListQuestion(alice, op.ID, 3_000_000)
	require.NoError(t, err)
	got, err = eng.Opinion(op.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3_000_000), got.SalePrice)

	_, err = eng.CancelQuestionListing(alice, op.ID)
	require.NoError(t, err)
	got, err = eng.Opinion(op.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.SalePrice)
}

func TestBuyQuestion(t *testing.T) {
	eng, clock, op := poolFixture(t)
	_, err := eng.ListQuestion(alice, op.ID, 10_000_000)
	require.NoError(t, err)

	_, _, err = eng.BuyQuestion(alice, op.ID)
	assert.ErrorIs(t, err, domain.ErrSameOwner)

	before := totalValue(eng)
	receipt, _, err := eng.BuyQuestion(bob, op.ID)
	require.NoError(t, err)

	// 90/10 split, seller absorbs any remainder.
	assert.Equal(t, int64(10_000_000), receipt.PricePaid)
	assert.Equal(t, int64(9_000_000), receipt.SellerAmount)
	assert.Equal(t, int64(1_000_000), receipt.PlatformFee)
	assert.Equal(t, alice, receipt.Seller)
	assert.Equal(t, before, totalValue(eng))

	got, err := eng.Opinion(op.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.QuestionOwner)
	assert.Equal(t, alice, got.Creator, "creator is immutable")
	assert.Equal(t, int64(0), got.SalePrice, "listing cleared on sale")

	_, _, err = eng.BuyQuestion(carol, op.ID)
	assert.ErrorIs(t, err, domain.ErrNotListed)

	// The creator-fee stream now pays the new question owner.
	clock.nextTick()
	bobFees := eng.FeeBalance(bob)
	trade, _, err := eng.SubmitAnswer(carol, op.ID, "Optimism", "")
	require.NoError(t, err)
	assert.Equal(t, trade.CreatorFee, eng.FeeBalance(bob)-bobFees)
}

func TestBuyQuestionCountsAgainstTradeCaps(t *testing.T) {
	eng, clock, op := poolFixture(t)
	_, err := eng.ListQuestion(alice, op.ID, 1_000_000)
	require.NoError(t, err)

	clock.nextTick()
	_, _, err = eng.SubmitAnswer(bob, op.ID, "Optimism", "")
	require.NoError(t, err)

	// Same actor, same opinion, same tick: the question purchase is also a
	// trade and hits the cooldown.
	_, _, err = eng.BuyQuestion(bob, op.ID)
	assert.ErrorIs(t, err, domain.ErrOpinionCooldown)

	clock.nextTick()
	_, _, err = eng.BuyQuestion(bob, op.ID)
	assert.NoError(t, err)
}
