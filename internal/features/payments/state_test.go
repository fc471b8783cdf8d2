package payments

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gift-ledger/internal/common"
)

var allStatuses = []Status{
	StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded,
}

func TestTransitionGraph(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCompleted}:    true,
		{StatusPending, StatusFailed}:       true,
		{StatusPending, StatusCancelled}:    true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
		{StatusCompleted, StatusRefunded}:   true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s → %s", from, to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusFailed, StatusCancelled, StatusRefunded} {
		assert.True(t, IsTerminal(s), s)
	}
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted} {
		assert.False(t, IsTerminal(s), s)
	}
}

func TestCheckTransition(t *testing.T) {
	cur := &Transaction{Status: StatusCompleted, Amount: 500}

	assert.NoError(t, CheckTransition(cur, Change{To: StatusRefunded, From: []Status{StatusCompleted}}))

	err := CheckTransition(cur, Change{To: StatusCompleted, From: []Status{StatusPending}})
	var te *common.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "completed", te.From)
	assert.Equal(t, "completed", te.To)

	refunded := &Transaction{Status: StatusRefunded, Amount: 500, RefundedAmount: 500}
	assert.ErrorIs(t, CheckTransition(refunded, Change{To: StatusRefunded}), common.ErrAlreadyRefunded)

	assert.ErrorIs(t, CheckTransition(&Transaction{Status: StatusFailed}, Change{To: StatusPending}), common.ErrInvalidTransition)
}

func TestApplyChange(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	notes := "checked bank statement"
	tx := &Transaction{Status: StatusPending, Amount: 999}

	ApplyChange(tx, Change{To: StatusCompleted, VerificationNotes: &notes}, now)
	assert.Equal(t, StatusCompleted, tx.Status)
	require.NotNil(t, tx.CompletedAt)
	assert.Equal(t, now, *tx.CompletedAt)
	assert.Equal(t, notes, tx.VerificationNotes)
	assert.Zero(t, tx.RefundedAmount)

	later := now.Add(time.Hour)
	ApplyChange(tx, Change{To: StatusRefunded}, later)
	assert.Equal(t, int64(999), tx.RefundedAmount)
	require.NotNil(t, tx.RefundedAt)
	assert.Equal(t, later, *tx.RefundedAt)
	assert.Equal(t, now, *tx.CompletedAt, "момент оплаты не затирается")
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("processing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, s)

	_, err = ParseStatus("done")
	assert.ErrorIs(t, err, common.ErrInvalidStatus)
}
