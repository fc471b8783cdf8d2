package wallet

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gift-ledger/internal/common"
)

func TestApply_CreditAndDebit(t *testing.T) {
	w := &Wallet{}
	require.NoError(t, w.Apply(Diamonds, 100))
	require.NoError(t, w.Apply(Diamonds, -30))
	require.NoError(t, w.Apply(Coins, 5))

	assert.Equal(t, int64(70), w.Diamonds)
	assert.Equal(t, int64(100), w.TotalDiamondsEarned)
	assert.Equal(t, int64(30), w.TotalDiamondsSpent)
	assert.Equal(t, int64(5), w.Balance(Coins))
	assert.Equal(t, int64(0), w.TotalCoinsSpent)
}

func TestApply_InsufficientFundsLeavesWalletUntouched(t *testing.T) {
	w := &Wallet{Diamonds: 10, TotalDiamondsEarned: 10}
	err := w.Apply(Diamonds, -11)

	var funds *common.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.True(t, errors.Is(err, common.ErrInsufficientFunds))
	assert.Equal(t, int64(11), funds.Required)
	assert.Equal(t, int64(10), funds.Available)
	assert.Equal(t, "diamonds", funds.Currency)
	assert.Equal(t, &Wallet{Diamonds: 10, TotalDiamondsEarned: 10}, w)
}

func TestApply_ExactBalanceIsAllowed(t *testing.T) {
	w := &Wallet{Coins: 50}
	require.NoError(t, w.Apply(Coins, -50))
	assert.Zero(t, w.Coins)
}

func TestApply_Overflow(t *testing.T) {
	w := &Wallet{Diamonds: math.MaxInt64 - 5}
	err := w.Apply(Diamonds, 10)
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
	assert.NotErrorIs(t, err, common.ErrInsufficientFunds)
	assert.Equal(t, int64(math.MaxInt64-5), w.Diamonds)
	assert.Zero(t, w.TotalDiamondsEarned)
}

func TestValidateDelta(t *testing.T) {
	assert.ErrorIs(t, ValidateDelta(Coins, 0), common.ErrInvalidAmount)
	assert.ErrorIs(t, ValidateDelta(Coins, MaxDelta+1), common.ErrInvalidAmount)
	assert.ErrorIs(t, ValidateDelta(Coins, -MaxDelta-1), common.ErrInvalidAmount)
	assert.ErrorIs(t, ValidateDelta("gold", 1), common.ErrInvalidCurrency)
	assert.NoError(t, ValidateDelta(Diamonds, MaxDelta))
	assert.NoError(t, ValidateDelta(Diamonds, -1))
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("coins")
	require.NoError(t, err)
	assert.Equal(t, Coins, c)

	_, err = ParseCurrency("Coins")
	assert.ErrorIs(t, err, common.ErrValidation)
}
