package executor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradeflow/internal/models"
)

// ErrInvalidDecision marks malformed decision input. The whole decision is
// rejected up front; nothing reaches the exchange.
var ErrInvalidDecision = errors.New("invalid trading decision")

// Decision is one trading instruction fanned out to every listed
// strategy-account. Strategy logic upstream decides what to trade; the
// coordinator only dispatches it.
type Decision struct {
	StrategyAccountIDs []uint64         `json:"strategy_account_ids"`
	Symbol             string           `json:"symbol"`
	Side               string           `json:"side"`
	OrderType          string           `json:"order_type"`
	QuantityWeightPct  decimal.Decimal  `json:"quantity_weight_pct"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	StopPrice          *decimal.Decimal `json:"stop_price,omitempty"`
	Priority           int              `json:"priority,omitempty"`
}

func (d *Decision) isCancel() bool {
	return d.OrderType == models.OrderTypeCancelAll || d.OrderType == models.OrderTypeCancelSymbol
}

// Validate rejects malformed decisions before any leg runs.
func (d *Decision) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil decision", ErrInvalidDecision)
	}
	if len(d.StrategyAccountIDs) == 0 {
		return fmt.Errorf("%w: no target strategy accounts", ErrInvalidDecision)
	}
	switch d.OrderType {
	case models.OrderTypeMarket, models.OrderTypeLimit, models.OrderTypeStop:
	case models.OrderTypeCancelAll:
		return nil
	case models.OrderTypeCancelSymbol:
		if strings.TrimSpace(d.Symbol) == "" {
			return fmt.Errorf("%w: CANCEL_SYMBOL requires a symbol", ErrInvalidDecision)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidDecision, d.OrderType)
	}

	if strings.TrimSpace(d.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidDecision)
	}
	if d.Side != models.SideBuy && d.Side != models.SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidDecision, d.Side)
	}
	if d.QuantityWeightPct.LessThanOrEqual(decimal.Zero) || d.QuantityWeightPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: quantity_weight_pct must be in (0, 100]", ErrInvalidDecision)
	}
	if d.Price == nil || d.Price.LessThanOrEqual(decimal.Zero) {
		// MARKET legs still need a reference price for capital sizing.
		return fmt.Errorf("%w: price is required and must be > 0", ErrInvalidDecision)
	}
	if d.OrderType == models.OrderTypeStop && (d.StopPrice == nil || d.StopPrice.LessThanOrEqual(decimal.Zero)) {
		return fmt.Errorf("%w: STOP requires a stop_price > 0", ErrInvalidDecision)
	}
	return nil
}
