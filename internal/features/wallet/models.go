// Package wallet хранит балансы пользователей в двух валютах: coins и diamonds.
// models.go описывает кошелёк, запись журнала и причины движения средств.
package wallet

import (
	"fmt"
	"math"
	"time"

	"serotonyl.ru/gift-ledger/internal/common"
)

// Currency — вид валюты кошелька.
type Currency string

const (
	Coins    Currency = "coins"
	Diamonds Currency = "diamonds"
)

// ParseCurrency проверяет вид валюты из запроса или конфигурации.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(s); c {
	case Coins, Diamonds:
		return c, nil
	}
	return "", common.Invalid("currency", fmt.Sprintf("unknown currency %q", s), common.ErrInvalidCurrency)
}

// Reason — почему изменился баланс. Пишется в wallet_entries.reason.
type Reason string

const (
	ReasonGiftSent      Reason = "gift_sent"      // Списание за подарок (цена + комиссия)
	ReasonAdminAdd      Reason = "admin_add"      // Ручное начисление админом
	ReasonAdminSubtract Reason = "admin_subtract" // Ручное списание админом
	ReasonPurchase      Reason = "purchase"       // Покупка пакета алмазов
	ReasonRefund        Reason = "refund"         // Возврат покупки
)

// Operation — направление ручной корректировки.
type Operation string

const (
	OperationAdd      Operation = "add"
	OperationSubtract Operation = "subtract"
)

// MaxDelta — максимальная величина одного изменения.
// Держит суммы далеко от переполнения BIGINT.
const MaxDelta int64 = 1_000_000_000_000

// Wallet — кошелёк пользователя. Ровно один на пользователя (UNIQUE user_id).
type Wallet struct {
	ID                  int64     `db:"id" json:"id"`
	UserID              int64     `db:"user_id" json:"userId"`
	Coins               int64     `db:"coins" json:"coins"`
	Diamonds            int64     `db:"diamonds" json:"diamonds"`
	TotalCoinsEarned    int64     `db:"total_coins_earned" json:"totalCoinsEarned"`
	TotalCoinsSpent     int64     `db:"total_coins_spent" json:"totalCoinsSpent"`
	TotalDiamondsEarned int64     `db:"total_diamonds_earned" json:"totalDiamondsEarned"`
	TotalDiamondsSpent  int64     `db:"total_diamonds_spent" json:"totalDiamondsSpent"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time `db:"updated_at" json:"updatedAt"`
}

// Balance возвращает остаток в указанной валюте.
func (w *Wallet) Balance(c Currency) int64 {
	if c == Coins {
		return w.Coins
	}
	return w.Diamonds
}

// Apply применяет delta к копии кошелька в памяти: та же арифметика,
// что и у условного UPDATE в Repository. При нехватке средств кошелёк не меняется.
func (w *Wallet) Apply(c Currency, delta int64) error {
	if err := ValidateDelta(c, delta); err != nil {
		return err
	}
	balance, earned, spent := &w.Diamonds, &w.TotalDiamondsEarned, &w.TotalDiamondsSpent
	if c == Coins {
		balance, earned, spent = &w.Coins, &w.TotalCoinsEarned, &w.TotalCoinsSpent
	}
	if delta > 0 && *balance > math.MaxInt64-delta {
		return common.Invalid("amount", "balance would overflow", common.ErrInvalidAmount)
	}
	if *balance+delta < 0 {
		return &common.InsufficientFundsError{Currency: string(c), Required: -delta, Available: *balance}
	}
	*balance += delta
	if delta > 0 {
		*earned += delta
	} else {
		*spent += -delta
	}
	return nil
}

// ValidateDelta — проверки до обращения к хранилищу.
func ValidateDelta(c Currency, delta int64) error {
	if _, err := ParseCurrency(string(c)); err != nil {
		return err
	}
	if delta == 0 {
		return common.Invalid("amount", "must not be zero", common.ErrInvalidAmount)
	}
	if delta > MaxDelta || delta < -MaxDelta {
		return common.Invalid("amount", fmt.Sprintf("must not exceed %d", MaxDelta), common.ErrInvalidAmount)
	}
	return nil
}

// Entry — строка журнала: одно успешное изменение баланса.
type Entry struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"userId"`
	Currency     Currency  `db:"currency" json:"currency"`
	Delta        int64     `db:"delta" json:"delta"`
	BalanceAfter int64     `db:"balance_after" json:"balanceAfter"`
	Reason       Reason    `db:"reason" json:"reason"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
