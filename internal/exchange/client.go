package exchange

import (
	"context"

	"github.com/shopspring/decimal"
)

type SubmitRequest struct {
	Account   string
	Symbol    string
	Side      string
	OrderType string
	Quantity  decimal.Decimal
	Price     *decimal.Decimal
	StopPrice *decimal.Decimal
}

type SubmitResult struct {
	ExchangeOrderID string
	FilledQty       decimal.Decimal
	AvgPrice        decimal.Decimal
}

type CancelRequest struct {
	Account         string
	Symbol          string
	ExchangeOrderID string
}

type LiveOrder struct {
	ExchangeOrderID string
	Symbol          string
	Side            string
	Quantity        decimal.Decimal
	Price           decimal.Decimal
}

type Balance struct {
	Available decimal.Decimal
	Total     decimal.Decimal
}

// Client is the exchange capability the dispatch core consumes. The core
// never implements a venue protocol itself; adapters live behind this
// interface. FetchOpenOrders exists for reconciliation only; cancellation
// scoping always goes through the local ledger, because the exchange view
// has no notion of strategy ownership.
type Client interface {
	SubmitOrder(ctx context.Context, req SubmitRequest) (SubmitResult, error)
	CancelOrder(ctx context.Context, req CancelRequest) error
	FetchOpenOrders(ctx context.Context, account, symbol string) ([]LiveOrder, error)
	FetchBalance(ctx context.Context, account string) (Balance, error)
}
