package sizing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tradeflow/internal/exchange"
	"tradeflow/internal/models"
)

var (
	// ErrInsufficientCapital reports a quantity that rounds to zero or falls
	// below the instrument's minimum notional.
	ErrInsufficientCapital = errors.New("allocated capital too small for order")
	// ErrUnknownPrecision reports a missing precision rule for the instrument.
	ErrUnknownPrecision = errors.New("no precision rule for instrument")
)

type Input struct {
	AllocatedCapital decimal.Decimal
	WeightPct        decimal.Decimal
	Price            decimal.Decimal
	Leverage         int
	MarketType       string
	Rule             exchange.SymbolRule
	HasRule          bool
}

var hundred = decimal.NewFromInt(100)

// Compute converts allocated capital, a percentage weight and leverage into
// an exchange-valid order quantity:
//
//	quantity = allocated_capital * weight_pct / 100 / price * leverage_factor
//
// Leverage applies to futures only; spot quantity is leverage-independent.
// The result is rounded down to the instrument's quantity precision and
// validated against the minimum notional. Pure function, no side effects.
func Compute(in Input) (decimal.Decimal, error) {
	if !in.HasRule {
		return decimal.Zero, ErrUnknownPrecision
	}
	if in.Price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("price must be > 0, got %s", in.Price)
	}
	if in.WeightPct.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("weight_pct must be > 0, got %s", in.WeightPct)
	}

	leverage := int64(1)
	if in.MarketType == models.MarketTypeFutures && in.Leverage > 1 {
		leverage = int64(in.Leverage)
	}

	qty := in.AllocatedCapital.
		Mul(in.WeightPct).
		Div(hundred).
		Div(in.Price).
		Mul(decimal.NewFromInt(leverage))

	qty = qty.RoundDown(int32(in.Rule.QuantityPrecision))
	if qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInsufficientCapital
	}
	if in.Rule.MinNotional.GreaterThan(decimal.Zero) {
		notional := qty.Mul(in.Price)
		if notional.LessThan(in.Rule.MinNotional) {
			return decimal.Zero, fmt.Errorf("%w: notional %s below minimum %s",
				ErrInsufficientCapital, notional, in.Rule.MinNotional)
		}
	}
	return qty, nil
}
