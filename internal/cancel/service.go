package cancel

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tradeflow/internal/exchange"
	"tradeflow/internal/queue"
	"tradeflow/internal/ratelimit"
	"tradeflow/internal/repository"
)

// cancelPageSize bounds one scoped ledger read; larger order sets drain
// page by page under the same account lock.
const cancelPageSize = 200

// OrderResult is the outcome of cancelling one ledger order.
type OrderResult struct {
	ExchangeOrderID string `json:"exchange_order_id,omitempty"`
	PendingID       uint64 `json:"pending_id,omitempty"`
	Symbol          string `json:"symbol"`
	Cancelled       bool   `json:"cancelled"`
	Error           string `json:"error,omitempty"`
}

// Result reports a cancel-all outcome with explicit counts; silent partial
// success is disallowed.
type Result struct {
	CancelledCount int           `json:"cancelled_count"`
	FailedCount    int           `json:"failed_count"`
	Orders         []OrderResult `json:"orders"`
}

// Service cancels orders scoped to one strategy-account. It never asks the
// exchange for "all open orders on the account": that view has no notion of
// strategy and would include orders owned by other strategy-accounts sharing
// the same exchange account. Ownership comes from the local ledger.
type Service struct {
	Repo   repository.Repository
	Client exchange.Client
	Queue  *queue.Manager
	Limits *ratelimit.Registry
	Logger *zap.Logger
}

// CancelAll cancels every ledger order owned by the strategy-account,
// optionally narrowed to one symbol. Open orders are cancelled at the
// exchange by their exchange order id; pending orders were never live and
// are removed directly. Per-order failures are counted and do not abort the
// remaining cancellations.
func (s *Service) CancelAll(ctx context.Context, strategyAccountID uint64, symbol string) (Result, error) {
	if s == nil || s.Repo == nil {
		return Result{}, fmt.Errorf("cancel service not wired")
	}
	account, err := s.Repo.GetStrategyAccountByID(ctx, strategyAccountID)
	if err != nil {
		return Result{}, err
	}
	if account == nil {
		return Result{}, fmt.Errorf("strategy account %d not found", strategyAccountID)
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var symbolFilter *string
	if symbol != "" {
		symbolFilter = &symbol
	}

	var result Result
	runErr := s.Queue.WithAccountLock(strategyAccountID, func() error {
		// The scoped ledger read is paged; cancelled rows leave the table,
		// so the open-order offset only advances past failed cancels.
		failed := 0
		for {
			openOrders, err := s.Repo.ListOpenOrders(ctx, repository.ListOpenOrdersParams{
				StrategyAccountID: &strategyAccountID,
				Symbol:            symbolFilter,
				Limit:             cancelPageSize,
				Offset:            failed,
			})
			if err != nil {
				return err
			}
			if len(openOrders) == 0 {
				break
			}
			for _, order := range openOrders {
				entry := OrderResult{ExchangeOrderID: order.ExchangeOrderID, Symbol: order.Symbol}
				if err := s.cancelAtExchange(ctx, account.Exchange, exchange.CancelRequest{
					Account:         account.Account,
					Symbol:          order.Symbol,
					ExchangeOrderID: order.ExchangeOrderID,
				}); err != nil {
					entry.Error = err.Error()
					result.FailedCount++
					failed++
					result.Orders = append(result.Orders, entry)
					continue
				}
				if _, err := s.Repo.DeleteOpenOrderByExchangeID(ctx, order.ExchangeOrderID); err != nil {
					return err
				}
				entry.Cancelled = true
				result.CancelledCount++
				result.Orders = append(result.Orders, entry)
			}
			if len(openOrders) < cancelPageSize {
				break
			}
		}

		for {
			pendingOrders, err := s.Repo.ListPendingOrders(ctx, repository.ListPendingOrdersParams{
				StrategyAccountID: &strategyAccountID,
				Symbol:            symbolFilter,
				Limit:             cancelPageSize,
			})
			if err != nil {
				return err
			}
			if len(pendingOrders) == 0 {
				break
			}
			removed := 0
			for _, order := range pendingOrders {
				entry := OrderResult{PendingID: order.ID, Symbol: order.Symbol}
				rows, err := s.Repo.DeletePendingOrder(ctx, order.ID)
				if err != nil {
					return err
				}
				if rows == 0 {
					continue
				}
				removed++
				entry.Cancelled = true
				result.CancelledCount++
				result.Orders = append(result.Orders, entry)
			}
			if removed == 0 || len(pendingOrders) < cancelPageSize {
				break
			}
		}
		return nil
	})
	if runErr != nil {
		return result, runErr
	}

	if s.Logger != nil {
		s.Logger.Info("cancel-all completed",
			zap.Uint64("strategy_account_id", strategyAccountID),
			zap.String("symbol", symbol),
			zap.Int("cancelled", result.CancelledCount),
			zap.Int("failed", result.FailedCount),
		)
	}
	return result, nil
}

func (s *Service) cancelAtExchange(ctx context.Context, exchangeName string, req exchange.CancelRequest) error {
	if s.Limits != nil {
		if err := s.Limits.For(exchangeName).Acquire(ctx, ratelimit.ClassOrder); err != nil {
			return err
		}
	}
	return s.Client.CancelOrder(ctx, req)
}
