package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/models"
)

// ErrPositionLocked reports that a concurrent updater currently holds the
// position row. Callers skip the update and leave convergence to the next
// reconciliation pass; they must not block or retry synchronously.
var ErrPositionLocked = errors.New("position row locked by concurrent updater")

// ErrDuplicateTrade reports that a trade with the same
// (exchange_order_id, execution_id) already exists.
var ErrDuplicateTrade = errors.New("trade already recorded")

type ListOpenOrdersParams struct {
	StrategyAccountID *uint64
	Symbol            *string
	Limit             int
	Offset            int
}

type ListPendingOrdersParams struct {
	StrategyAccountID *uint64
	Symbol            *string
	Limit             int
	Offset            int
}

type ListTradesParams struct {
	StrategyAccountID *uint64
	Symbol            *string
	ExchangeOrderID   *string
	Since             *time.Time

	// OnlyUnapplied narrows to trades whose position delta has not been
	// applied yet; results come back oldest first so replays preserve the
	// original execution order.
	OnlyUnapplied bool

	Limit  int
	Offset int
}

type ListPositionsParams struct {
	StrategyAccountID *uint64
	Status            *string
	Limit             int
	Offset            int
}

// PositionUpdate is the delta applied to a position row under its row lock.
type PositionUpdate struct {
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	LastPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Status        string
	ClosedAt      *time.Time
}

// Repository is the single source of truth for the dispatch ledger. All
// mutations go through transactional, constraint-enforced writes; no caller
// may cache a contradicting view beyond one operation.
type Repository interface {
	// InTx runs fn against a repository bound to one database transaction.
	// Everything fn writes commits or rolls back together.
	InTx(ctx context.Context, fn func(r Repository) error) error

	// Strategy accounts.
	GetStrategyAccountByID(ctx context.Context, id uint64) (*models.StrategyAccount, error)
	ListStrategyAccountsByIDs(ctx context.Context, ids []uint64) ([]models.StrategyAccount, error)
	ListActiveStrategyAccounts(ctx context.Context) ([]models.StrategyAccount, error)
	UpsertStrategyAccount(ctx context.Context, item *models.StrategyAccount) error
	DeleteStrategyAccount(ctx context.Context, id uint64) error

	// Open orders.
	InsertOpenOrder(ctx context.Context, item *models.OpenOrder) error
	GetOpenOrderByExchangeID(ctx context.Context, exchangeOrderID string) (*models.OpenOrder, error)
	ListOpenOrders(ctx context.Context, params ListOpenOrdersParams) ([]models.OpenOrder, error)
	CountOpenOrders(ctx context.Context, strategyAccountID uint64) (int64, error)
	DeleteOpenOrderByExchangeID(ctx context.Context, exchangeOrderID string) (int64, error)

	// Pending orders.
	InsertPendingOrder(ctx context.Context, item *models.PendingOrder) error
	ListPendingOrders(ctx context.Context, params ListPendingOrdersParams) ([]models.PendingOrder, error)
	CountPendingOrders(ctx context.Context, strategyAccountID uint64) (int64, error)
	DeletePendingOrder(ctx context.Context, id uint64) (int64, error)
	UpdatePendingOrderAttempts(ctx context.Context, id uint64, attempts int) error

	// Trades. InsertTrade returns ErrDuplicateTrade when the
	// (exchange_order_id, execution_id) pair is already recorded.
	InsertTrade(ctx context.Context, item *models.Trade) error
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	MarkTradePositionApplied(ctx context.Context, id uint64) error

	// Positions. UpdatePositionLocked acquires the row with a non-blocking
	// try-lock and returns ErrPositionLocked when a concurrent updater holds
	// it.
	GetPosition(ctx context.Context, strategyAccountID uint64, symbol string) (*models.Position, error)
	InsertPosition(ctx context.Context, item *models.Position) error
	UpdatePositionLocked(ctx context.Context, strategyAccountID uint64, symbol string, apply func(*models.Position) PositionUpdate) error
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
}
