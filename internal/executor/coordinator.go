package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradeflow/internal/cancel"
	"tradeflow/internal/defense"
	"tradeflow/internal/exchange"
	"tradeflow/internal/models"
	"tradeflow/internal/queue"
	"tradeflow/internal/repository"
	"tradeflow/internal/sizing"
)

// AccountResult is the outcome of one decision leg on one strategy-account.
// Execute returns exactly one per target account, success or not.
type AccountResult struct {
	StrategyAccountID uint64          `json:"strategy_account_id"`
	Success           bool            `json:"success"`
	State             string          `json:"state,omitempty"`
	ExchangeOrderID   string          `json:"exchange_order_id,omitempty"`
	Quantity          decimal.Decimal `json:"quantity"`
	FilledQty         decimal.Decimal `json:"filled_qty"`
	CancelledCount    int             `json:"cancelled_count,omitempty"`
	Error             string          `json:"error,omitempty"`
}

// Coordinator fans one decision out to every target strategy-account in
// parallel. Accounts are independent: one leg failing never blocks or rolls
// back the others, and the caller always gets the full per-account picture.
type Coordinator struct {
	Repo     repository.Repository
	Queue    *queue.Manager
	Cancel   *cancel.Service
	Recorder *defense.Recorder
	Specs    *exchange.Specs
	Logger   *zap.Logger

	PoolSize int
	Timeout  time.Duration
}

func (c *Coordinator) poolSize() int {
	if c.PoolSize > 0 {
		return c.PoolSize
	}
	return 8
}

func (c *Coordinator) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

// Execute validates the decision and runs one leg per target account through
// a bounded worker pool. The slice it returns has one entry per target, in
// the decision's account order.
func (c *Coordinator) Execute(ctx context.Context, d *Decision) ([]AccountResult, error) {
	if c == nil || c.Repo == nil || c.Queue == nil {
		return nil, fmt.Errorf("execution coordinator not wired")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	ctx, cancelCtx := context.WithTimeout(ctx, c.timeout())
	defer cancelCtx()

	accounts, err := c.Repo.ListStrategyAccountsByIDs(ctx, d.StrategyAccountIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint64]*models.StrategyAccount, len(accounts))
	for i := range accounts {
		byID[accounts[i].ID] = &accounts[i]
	}

	results := make([]AccountResult, len(d.StrategyAccountIDs))
	sem := make(chan struct{}, c.poolSize())
	var wg sync.WaitGroup
	for i, id := range d.StrategyAccountIDs {
		wg.Add(1)
		go func(slot int, said uint64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[slot] = c.runLeg(ctx, d, said, byID[said])
		}(i, id)
	}
	wg.Wait()
	return results, nil
}

func (c *Coordinator) runLeg(ctx context.Context, d *Decision, said uint64, account *models.StrategyAccount) AccountResult {
	res := AccountResult{StrategyAccountID: said}
	if account == nil {
		res.Error = "strategy account not found"
		return res
	}
	if !account.IsActive {
		res.Error = "strategy account is inactive"
		return res
	}
	if ctx.Err() != nil {
		res.Error = ctx.Err().Error()
		return res
	}

	if d.isCancel() {
		symbol := ""
		if d.OrderType == models.OrderTypeCancelSymbol {
			symbol = d.Symbol
		}
		out, err := c.Cancel.CancelAll(ctx, said, symbol)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Success = out.FailedCount == 0
		res.CancelledCount = out.CancelledCount
		if out.FailedCount > 0 {
			res.Error = fmt.Sprintf("%d of %d cancels failed", out.FailedCount, out.FailedCount+out.CancelledCount)
		}
		return res
	}

	qty, err := c.sizeLeg(d, account)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Quantity = qty

	outcome, err := c.Queue.Submit(ctx, queue.Desired{
		Account:   account,
		Symbol:    d.Symbol,
		Side:      d.Side,
		OrderType: d.OrderType,
		Quantity:  qty,
		Price:     d.Price,
		StopPrice: d.StopPrice,
		Priority:  d.Priority,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.State = outcome.State
	res.ExchangeOrderID = outcome.ExchangeOrderID
	res.FilledQty = outcome.FilledQty
	switch outcome.State {
	case queue.StateRejected:
		res.Error = outcome.Reason
	case queue.StateFilled:
		res.Success = true
		c.recordImmediateFill(ctx, account, d, outcome)
	default:
		res.Success = true
	}
	return res
}

// sizeLeg turns the decision's percentage weight into a concrete quantity
// using the account's capital and the instrument's precision rule. Account
// level overrides win over the exchange-published rule.
func (c *Coordinator) sizeLeg(d *Decision, account *models.StrategyAccount) (decimal.Decimal, error) {
	rule, ok := c.ruleFor(account, d.Symbol)
	return sizing.Compute(sizing.Input{
		AllocatedCapital: account.AllocatedCapital,
		WeightPct:        d.QuantityWeightPct,
		Price:            *d.Price,
		Leverage:         account.Leverage,
		MarketType:       account.MarketType,
		Rule:             rule,
		HasRule:          ok,
	})
}

type ruleOverride struct {
	QuantityPrecision int             `json:"quantity_precision"`
	MinNotional       decimal.Decimal `json:"min_notional"`
}

func (c *Coordinator) ruleFor(account *models.StrategyAccount, symbol string) (exchange.SymbolRule, bool) {
	if len(account.PrecisionOverrides) > 0 {
		var overrides map[string]ruleOverride
		if err := json.Unmarshal(account.PrecisionOverrides, &overrides); err != nil {
			c.logger().Warn("malformed precision overrides, falling back to exchange rule",
				zap.Uint64("strategy_account_id", account.ID), zap.Error(err))
		} else if ov, ok := overrides[symbol]; ok {
			return exchange.SymbolRule{
				QuantityPrecision: ov.QuantityPrecision,
				MinNotional:       ov.MinNotional,
			}, true
		}
	}
	return c.Specs.Get(account.Exchange).SymbolRule(symbol)
}

// recordImmediateFill books a fill acknowledged in the submit response
// itself. The order never rested, so there is no open-order row to claim; a
// later stream or reconciler sighting of the same order dedupes against this
// trade by its exchange order id.
func (c *Coordinator) recordImmediateFill(ctx context.Context, account *models.StrategyAccount, d *Decision, out queue.Outcome) {
	if c.Recorder == nil || out.ExchangeOrderID == "" {
		return
	}
	price := out.AvgPrice
	if price.LessThanOrEqual(decimal.Zero) && d.Price != nil {
		price = *d.Price
	}
	err := c.Recorder.RecordFill(ctx, defense.Fill{
		ExchangeOrderID:   out.ExchangeOrderID,
		ExecutionID:       out.ExchangeOrderID + "-ack",
		StrategyAccountID: account.ID,
		Symbol:            d.Symbol,
		Side:              d.Side,
		Quantity:          out.FilledQty,
		Price:             price,
		ExecutedAt:        time.Now().UTC(),
		Source:            "dispatch",
	})
	if err != nil {
		c.logger().Error("failed to record immediate fill",
			zap.String("exchange_order_id", out.ExchangeOrderID), zap.Error(err))
	}
}

func (c *Coordinator) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
