// Package gifts — commission.go считает стоимость подарка с комиссией платформы.
// Деньги считаются в decimal, округление half-up до целого.
package gifts

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"serotonyl.ru/gift-ledger/internal/common"
	"serotonyl.ru/gift-ledger/internal/features/wallet"
)

// DefaultRate — 40% комиссии платформы.
var DefaultRate = decimal.RequireFromString("0.40")

// Quote — стоимость отправки.
type Quote struct {
	TotalValue int64 `json:"totalValue"`
	Commission int64 `json:"commission"`
	ActualCost int64 `json:"actualCost"`
}

// Calculator считает комиссию без чисел с плавающей точкой.
type Calculator struct {
	rate        decimal.Decimal
	maxQuantity int
}

func NewCalculator(rate decimal.Decimal, maxQuantity int) *Calculator {
	return &Calculator{rate: rate, maxQuantity: maxQuantity}
}

func (c *Calculator) Rate() decimal.Decimal { return c.rate }

// ValidateQuantity — 1..maxQuantity.
func (c *Calculator) ValidateQuantity(quantity int) error {
	if quantity < 1 || quantity > c.maxQuantity {
		return common.Invalid("quantity", fmt.Sprintf("must be between 1 and %d", c.maxQuantity), common.ErrInvalidQuantity)
	}
	return nil
}

// Quote: totalValue = price × quantity, commission = round_half_up(totalValue × rate),
// actualCost = totalValue + commission.
//
// decimal.Round(0) округляет половину от нуля; для неотрицательных сумм это half-up:
// 5 × 0.40 = 2.0 → 2, 5 × 0.5 = 2.5 → 3.
func (c *Calculator) Quote(price int64, quantity int) (Quote, error) {
	if err := c.ValidateQuantity(quantity); err != nil {
		return Quote{}, err
	}
	if price <= 0 {
		return Quote{}, common.Invalid("price", "must be positive", common.ErrInvalidAmount)
	}
	if price > math.MaxInt64/int64(quantity) {
		return Quote{}, common.Invalid("quantity", "total value overflows", common.ErrInvalidAmount)
	}
	total := price * int64(quantity)

	commission := decimal.NewFromInt(total).Mul(c.rate).Round(0)
	cost := decimal.NewFromInt(total).Add(commission)
	if cost.GreaterThan(decimal.NewFromInt(wallet.MaxDelta)) {
		return Quote{}, common.Invalid("quantity", "total cost exceeds the per-operation limit", common.ErrInvalidAmount)
	}
	return Quote{
		TotalValue: total,
		Commission: commission.IntPart(),
		ActualCost: cost.IntPart(),
	}, nil
}
