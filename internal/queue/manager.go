package queue

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradeflow/internal/exchange"
	"tradeflow/internal/models"
	"tradeflow/internal/ratelimit"
	"tradeflow/internal/repository"
)

// Desired-order states.
const (
	StateOpen     = "open"
	StatePending  = "pending"
	StateFilled   = "filled"
	StateRejected = "rejected"
)

// Desired is the logical intent to place one order for one strategy-account,
// independent of whether the exchange currently has capacity to hold it open.
type Desired struct {
	Account   *models.StrategyAccount
	Symbol    string
	Side      string
	OrderType string
	Quantity  decimal.Decimal
	Price     *decimal.Decimal
	StopPrice *decimal.Decimal
	Priority  int
}

// Outcome reports where a desired order landed.
type Outcome struct {
	State           string
	ExchangeOrderID string
	FilledQty       decimal.Decimal
	AvgPrice        decimal.Decimal
	Reason          string
}

// Manager owns the authoritative set of desired orders per strategy-account.
// It enforces the exchange's concurrent open-order cap, queues the overflow
// as pending orders and promotes them by priority when capacity frees up.
type Manager struct {
	Repo     repository.Repository
	Exchange exchange.Client
	Specs    *exchange.Specs
	Limits   *ratelimit.Registry
	Logger   *zap.Logger

	MaxSubmitAttempts int

	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// lockFor returns the mutex serializing queue mutation for one
// strategy-account. Promotion, demotion and cancellation for the same
// account never interleave; different accounts proceed in parallel.
func (m *Manager) lockFor(strategyAccountID uint64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = map[uint64]*sync.Mutex{}
	}
	lock, ok := m.locks[strategyAccountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[strategyAccountID] = lock
	}
	return lock
}

func (m *Manager) maxAttempts() int {
	if m.MaxSubmitAttempts > 0 {
		return m.MaxSubmitAttempts
	}
	return 3
}

func (m *Manager) capFor(exchangeName string) int {
	if spec := m.Specs.Get(exchangeName); spec != nil {
		return spec.OpenOrderCap
	}
	return 200
}

// Submit places a desired order: below the cap it goes to the exchange and
// becomes an open order; at the cap it is queued as pending. Nothing is ever
// silently dropped: every desired order ends up open, pending, filled or
// rejected with a reason.
func (m *Manager) Submit(ctx context.Context, d Desired) (Outcome, error) {
	if m == nil || m.Repo == nil || d.Account == nil {
		return Outcome{State: StateRejected, Reason: "queue manager not wired"}, nil
	}
	lock := m.lockFor(d.Account.ID)
	lock.Lock()
	defer lock.Unlock()

	count, err := m.Repo.CountOpenOrders(ctx, d.Account.ID)
	if err != nil {
		return Outcome{}, err
	}
	if count >= int64(m.capFor(d.Account.Exchange)) {
		if err := m.queuePending(ctx, d, 0); err != nil {
			return Outcome{}, err
		}
		return Outcome{State: StatePending, Reason: "open-order cap reached"}, nil
	}
	return m.submitLocked(ctx, d, 0)
}

// submitLocked sends the order to the exchange. Transient failures demote to
// pending for the next queue pass; permanent rejections are terminal.
// Caller holds the account lock.
func (m *Manager) submitLocked(ctx context.Context, d Desired, attempts int) (Outcome, error) {
	if m.Limits != nil {
		if err := m.Limits.For(d.Account.Exchange).Acquire(ctx, ratelimit.ClassOrder); err != nil {
			return Outcome{}, err
		}
	}

	res, err := m.Exchange.SubmitOrder(ctx, exchange.SubmitRequest{
		Account:   d.Account.Account,
		Symbol:    d.Symbol,
		Side:      d.Side,
		OrderType: d.OrderType,
		Quantity:  d.Quantity,
		Price:     d.Price,
		StopPrice: d.StopPrice,
	})
	if err != nil {
		if exchange.IsPermanent(err) {
			if m.Logger != nil {
				m.Logger.Warn("order rejected by exchange",
					zap.Uint64("strategy_account_id", d.Account.ID),
					zap.String("symbol", d.Symbol),
					zap.Error(err),
				)
			}
			return Outcome{State: StateRejected, Reason: err.Error()}, nil
		}
		attempts++
		if attempts >= m.maxAttempts() {
			return Outcome{State: StateRejected, Reason: "exchange failure after retries: " + err.Error()}, nil
		}
		if qErr := m.queuePending(ctx, d, attempts); qErr != nil {
			return Outcome{}, qErr
		}
		if m.Logger != nil {
			m.Logger.Warn("transient submit failure, order returned to pending",
				zap.Uint64("strategy_account_id", d.Account.ID),
				zap.String("symbol", d.Symbol),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
		}
		return Outcome{State: StatePending, Reason: "transient exchange failure"}, nil
	}

	if res.FilledQty.GreaterThanOrEqual(d.Quantity) && d.Quantity.GreaterThan(decimal.Zero) {
		return Outcome{
			State:           StateFilled,
			ExchangeOrderID: res.ExchangeOrderID,
			FilledQty:       res.FilledQty,
			AvgPrice:        res.AvgPrice,
		}, nil
	}

	price := decimal.Zero
	if d.Price != nil {
		price = *d.Price
	}
	if err := m.Repo.InsertOpenOrder(ctx, &models.OpenOrder{
		ExchangeOrderID:   res.ExchangeOrderID,
		StrategyAccountID: d.Account.ID,
		Symbol:            d.Symbol,
		Side:              d.Side,
		OrderType:         d.OrderType,
		Quantity:          d.Quantity,
		Price:             price,
		Status:            models.OrderStatusOpen,
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		return Outcome{}, err
	}
	return Outcome{State: StateOpen, ExchangeOrderID: res.ExchangeOrderID}, nil
}

func (m *Manager) queuePending(ctx context.Context, d Desired, attempts int) error {
	price := decimal.Zero
	if d.Price != nil {
		price = *d.Price
	}
	return m.Repo.InsertPendingOrder(ctx, &models.PendingOrder{
		StrategyAccountID: d.Account.ID,
		Symbol:            d.Symbol,
		Side:              d.Side,
		OrderType:         d.OrderType,
		Quantity:          d.Quantity,
		Price:             price,
		Priority:          PriorityFor(d.OrderType, d.Priority),
		SortPrice:         SortPriceFor(d.Side, d.Price),
		Attempts:          attempts,
		CreatedAt:         time.Now().UTC(),
	})
}

// OnCapacityFreed promotes pending orders while the account is below its
// cap. Called after a fill or cancel reduces the open-order count. Returns
// the number promoted.
func (m *Manager) OnCapacityFreed(ctx context.Context, account *models.StrategyAccount) (int, error) {
	if m == nil || m.Repo == nil || account == nil {
		return 0, nil
	}
	lock := m.lockFor(account.ID)
	lock.Lock()
	defer lock.Unlock()
	return m.promoteLocked(ctx, account)
}

func (m *Manager) promoteLocked(ctx context.Context, account *models.StrategyAccount) (int, error) {
	promoted := 0
	capacity := int64(m.capFor(account.Exchange))
	for {
		count, err := m.Repo.CountOpenOrders(ctx, account.ID)
		if err != nil {
			return promoted, err
		}
		if count >= capacity {
			return promoted, nil
		}
		pending, err := m.Repo.ListPendingOrders(ctx, repository.ListPendingOrdersParams{
			StrategyAccountID: &account.ID,
			Limit:             1,
		})
		if err != nil {
			return promoted, err
		}
		if len(pending) == 0 {
			return promoted, nil
		}
		next := pending[0]

		// The pending row stays in place until the exchange accepts the
		// order, so a crash mid-promotion never loses it.
		if m.Limits != nil {
			if err := m.Limits.For(account.Exchange).Acquire(ctx, ratelimit.ClassOrder); err != nil {
				return promoted, err
			}
		}
		price := next.Price
		res, err := m.Exchange.SubmitOrder(ctx, exchange.SubmitRequest{
			Account:   account.Account,
			Symbol:    next.Symbol,
			Side:      next.Side,
			OrderType: next.OrderType,
			Quantity:  next.Quantity,
			Price:     &price,
		})
		if err != nil {
			if exchange.IsPermanent(err) {
				if _, derr := m.Repo.DeletePendingOrder(ctx, next.ID); derr != nil {
					return promoted, derr
				}
				if m.Logger != nil {
					m.Logger.Warn("pending order terminally rejected during promotion",
						zap.Uint64("strategy_account_id", account.ID),
						zap.String("symbol", next.Symbol),
						zap.Error(err),
					)
				}
				continue
			}
			attempts := next.Attempts + 1
			if attempts >= m.maxAttempts() {
				if _, derr := m.Repo.DeletePendingOrder(ctx, next.ID); derr != nil {
					return promoted, derr
				}
				if m.Logger != nil {
					m.Logger.Warn("pending order dropped after repeated submit failures",
						zap.Uint64("strategy_account_id", account.ID),
						zap.String("symbol", next.Symbol),
						zap.Int("attempts", attempts),
						zap.Error(err),
					)
				}
				continue
			}
			if uerr := m.Repo.UpdatePendingOrderAttempts(ctx, next.ID, attempts); uerr != nil {
				return promoted, uerr
			}
			// Stop this pass rather than spin on a failing venue.
			return promoted, nil
		}

		if _, err := m.Repo.DeletePendingOrder(ctx, next.ID); err != nil {
			return promoted, err
		}
		if res.FilledQty.GreaterThanOrEqual(next.Quantity) && next.Quantity.GreaterThan(decimal.Zero) {
			promoted++
			continue
		}
		if err := m.Repo.InsertOpenOrder(ctx, &models.OpenOrder{
			ExchangeOrderID:   res.ExchangeOrderID,
			StrategyAccountID: account.ID,
			Symbol:            next.Symbol,
			Side:              next.Side,
			OrderType:         next.OrderType,
			Quantity:          next.Quantity,
			Price:             next.Price,
			Status:            models.OrderStatusOpen,
			CreatedAt:         time.Now().UTC(),
		}); err != nil {
			return promoted, err
		}
		promoted++
	}
}

// WithAccountLock runs fn while holding the strategy-account's queue lock.
// Cancellation shares the same critical section as promotion so the two
// never interleave on one account's order set.
func (m *Manager) WithAccountLock(strategyAccountID uint64, fn func() error) error {
	lock := m.lockFor(strategyAccountID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// RunPass retries pending orders across all active strategy-accounts. The
// reconciler drives this on a schedule so transient exchange failures drain
// without operator action.
func (m *Manager) RunPass(ctx context.Context) (int, error) {
	if m == nil || m.Repo == nil {
		return 0, nil
	}
	accounts, err := m.Repo.ListActiveStrategyAccounts(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for i := range accounts {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := m.OnCapacityFreed(ctx, &accounts[i])
		total += n
		if err != nil && m.Logger != nil {
			m.Logger.Warn("queue pass failed for account",
				zap.Uint64("strategy_account_id", accounts[i].ID),
				zap.Error(err),
			)
		}
	}
	return total, nil
}
