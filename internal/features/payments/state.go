// Package payments — state.go описывает граф статусов транзакции и побочные
// эффекты переходов (начисление и списание алмазов).
package payments

import (
	"slices"
	"time"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

// transitions — полный граф. Отсутствие ключа означает закрытое состояние.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded},
}

// CanTransition сообщает, разрешён ли переход графом.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal — из состояния нет ни одного перехода.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// WalletGrant — изменение кошелька в той же транзакции БД, что и переход
// (начисление пакета алмазов при оплате, списание при возврате).
type WalletGrant struct {
	UserID   int64
	Currency wallet.Currency
	Delta    int64
	Reason   wallet.Reason
}

// Change — запрошенный переход.
type Change struct {
	To Status
	// From сужает граф: переход выполняется, только если текущий статус в списке.
	From                 []Status
	VerificationNotes    *string
	FailureReason        *string
	GatewayTransactionID *string
	Grant                *WalletGrant
}

// CheckTransition проверяет переход против текущего состояния.
// Повторный возврат — ErrAlreadyRefunded, остальное — *common.TransitionError.
func CheckTransition(cur *Transaction, ch Change) error {
	if ch.To == StatusRefunded && (cur.Status == StatusRefunded || cur.RefundedAmount > 0) {
		return common.ErrAlreadyRefunded
	}
	if len(ch.From) > 0 && !slices.Contains(ch.From, cur.Status) {
		return &common.TransitionError{Entity: "payment transaction", From: string(cur.Status), To: string(ch.To)}
	}
	if !CanTransition(cur.Status, ch.To) {
		return &common.TransitionError{Entity: "payment transaction", From: string(cur.Status), To: string(ch.To)}
	}
	return nil
}

// ApplyChange переносит проверенный переход на транзакцию.
func ApplyChange(t *Transaction, ch Change, now time.Time) {
	t.Status = ch.To
	t.UpdatedAt = now
	if ch.VerificationNotes != nil {
		t.VerificationNotes = *ch.VerificationNotes
	}
	if ch.FailureReason != nil {
		t.FailureReason = *ch.FailureReason
	}
	if ch.GatewayTransactionID != nil {
		t.GatewayTransactionID = *ch.GatewayTransactionID
	}
	switch ch.To {
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusRefunded:
		t.RefundedAmount = t.Amount
		t.RefundedAt = &now
	}
}
