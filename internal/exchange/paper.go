package exchange

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperClient is an in-memory exchange simulation used in dry-run mode and in
// tests. Submitted orders rest as live orders until cancelled; MARKET orders
// fill immediately at the request price.
type PaperClient struct {
	mu     sync.Mutex
	orders map[string]LiveOrder
	byAcct map[string][]string

	balances map[string]Balance

	// Failure injection. SubmitErr/CancelErr, when set, are returned for
	// every matching call until cleared.
	SubmitErr error
	CancelErr error
}

func NewPaperClient() *PaperClient {
	return &PaperClient{
		orders:   map[string]LiveOrder{},
		byAcct:   map[string][]string{},
		balances: map[string]Balance{},
	}
}

func (c *PaperClient) SetBalance(account string, available, total decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] = Balance{Available: available, Total: total}
}

func (c *PaperClient) SubmitOrder(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return SubmitResult{}, Transient("submit", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubmitErr != nil {
		return SubmitResult{}, c.SubmitErr
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return SubmitResult{}, Permanent("submit", "symbol is empty")
	}
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return SubmitResult{}, Permanent("submit", "quantity must be > 0")
	}

	id := uuid.NewString()
	price := decimal.Zero
	if req.Price != nil {
		price = *req.Price
	}

	if req.OrderType == "MARKET" {
		return SubmitResult{
			ExchangeOrderID: id,
			FilledQty:       req.Quantity,
			AvgPrice:        price,
		}, nil
	}

	c.orders[id] = LiveOrder{
		ExchangeOrderID: id,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Quantity:        req.Quantity,
		Price:           price,
	}
	c.byAcct[req.Account] = append(c.byAcct[req.Account], id)
	return SubmitResult{ExchangeOrderID: id}, nil
}

func (c *PaperClient) CancelOrder(ctx context.Context, req CancelRequest) error {
	if err := ctx.Err(); err != nil {
		return Transient("cancel", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CancelErr != nil {
		return c.CancelErr
	}
	if _, ok := c.orders[req.ExchangeOrderID]; !ok {
		return Permanent("cancel", "unknown order id")
	}
	delete(c.orders, req.ExchangeOrderID)
	ids := c.byAcct[req.Account]
	for i, id := range ids {
		if id == req.ExchangeOrderID {
			c.byAcct[req.Account] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (c *PaperClient) FetchOpenOrders(ctx context.Context, account, symbol string) ([]LiveOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient("fetch_open_orders", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LiveOrder, 0, len(c.byAcct[account]))
	for _, id := range c.byAcct[account] {
		order, ok := c.orders[id]
		if !ok {
			continue
		}
		if symbol != "" && order.Symbol != symbol {
			continue
		}
		out = append(out, order)
	}
	return out, nil
}

func (c *PaperClient) FetchBalance(ctx context.Context, account string) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, Transient("fetch_balance", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[account], nil
}

// LiveCount reports the number of resting orders for an account, for tests.
func (c *PaperClient) LiveCount(account string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, id := range c.byAcct[account] {
		if _, ok := c.orders[id]; ok {
			n++
		}
	}
	return n
}
