package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"tradeflow/internal/models"
	"tradeflow/internal/queue"
	"tradeflow/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository
// shared by the coordinator and the queue manager under test.
type stubRepo struct {
	mu        sync.Mutex
	nextID    uint64
	accounts  map[uint64]*models.StrategyAccount
	open      map[string]*models.OpenOrder
	pending   map[uint64]*models.PendingOrder
	trades    []models.Trade
	positions map[string]*models.Position
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		accounts:  map[uint64]*models.StrategyAccount{},
		open:      map[string]*models.OpenOrder{},
		pending:   map[uint64]*models.PendingOrder{},
		positions: map[string]*models.Position{},
	}
}

func (s *stubRepo) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *stubRepo) addAccount(account models.StrategyAccount) *models.StrategyAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == 0 {
		account.ID = s.id()
	}
	s.accounts[account.ID] = &account
	return &account
}

func positionKey(strategyAccountID uint64, symbol string) string {
	return fmt.Sprintf("%d|%s", strategyAccountID, symbol)
}

func (s *stubRepo) InTx(ctx context.Context, fn func(r repository.Repository) error) error {
	return fn(s)
}

func (s *stubRepo) GetStrategyAccountByID(ctx context.Context, id uint64) (*models.StrategyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (s *stubRepo) ListStrategyAccountsByIDs(ctx context.Context, ids []uint64) ([]models.StrategyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StrategyAccount
	for _, id := range ids {
		if account, ok := s.accounts[id]; ok {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (s *stubRepo) ListActiveStrategyAccounts(ctx context.Context) ([]models.StrategyAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StrategyAccount
	for _, account := range s.accounts {
		if account.IsActive {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (s *stubRepo) UpsertStrategyAccount(ctx context.Context, item *models.StrategyAccount) error {
	return nil
}

func (s *stubRepo) DeleteStrategyAccount(ctx context.Context, id uint64) error { return nil }

func (s *stubRepo) InsertOpenOrder(ctx context.Context, item *models.OpenOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = s.id()
	}
	copied := *item
	s.open[item.ExchangeOrderID] = &copied
	return nil
}

func (s *stubRepo) GetOpenOrderByExchangeID(ctx context.Context, exchangeOrderID string) (*models.OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.open[exchangeOrderID]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (s *stubRepo) ListOpenOrders(ctx context.Context, params repository.ListOpenOrdersParams) ([]models.OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OpenOrder
	for _, order := range s.open {
		if params.StrategyAccountID != nil && order.StrategyAccountID != *params.StrategyAccountID {
			continue
		}
		if params.Symbol != nil && order.Symbol != *params.Symbol {
			continue
		}
		out = append(out, *order)
	}
	return out, nil
}

func (s *stubRepo) CountOpenOrders(ctx context.Context, strategyAccountID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, order := range s.open {
		if order.StrategyAccountID == strategyAccountID {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) DeleteOpenOrderByExchangeID(ctx context.Context, exchangeOrderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.open[exchangeOrderID]; !ok {
		return 0, nil
	}
	delete(s.open, exchangeOrderID)
	return 1, nil
}

func (s *stubRepo) InsertPendingOrder(ctx context.Context, item *models.PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = s.id()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	copied := *item
	s.pending[item.ID] = &copied
	return nil
}

func (s *stubRepo) ListPendingOrders(ctx context.Context, params repository.ListPendingOrdersParams) ([]models.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PendingOrder
	for _, order := range s.pending {
		if params.StrategyAccountID != nil && order.StrategyAccountID != *params.StrategyAccountID {
			continue
		}
		if params.Symbol != nil && order.Symbol != *params.Symbol {
			continue
		}
		out = append(out, *order)
	}
	queue.SortPending(out)
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *stubRepo) CountPendingOrders(ctx context.Context, strategyAccountID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, order := range s.pending {
		if order.StrategyAccountID == strategyAccountID {
			n++
		}
	}
	return n, nil
}

func (s *stubRepo) DeletePendingOrder(ctx context.Context, id uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return 0, nil
	}
	delete(s.pending, id)
	return 1, nil
}

func (s *stubRepo) UpdatePendingOrderAttempts(ctx context.Context, id uint64, attempts int) error {
	return nil
}

func (s *stubRepo) InsertTrade(ctx context.Context, item *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tr := range s.trades {
		if tr.ExchangeOrderID == item.ExchangeOrderID && tr.ExecutionID == item.ExecutionID {
			return repository.ErrDuplicateTrade
		}
	}
	if item.ID == 0 {
		item.ID = s.id()
	}
	copied := *item
	s.trades = append(s.trades, copied)
	return nil
}

func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trade
	for _, tr := range s.trades {
		if params.StrategyAccountID != nil && tr.StrategyAccountID != *params.StrategyAccountID {
			continue
		}
		if params.ExchangeOrderID != nil && tr.ExchangeOrderID != *params.ExchangeOrderID {
			continue
		}
		if params.OnlyUnapplied && tr.PositionApplied {
			continue
		}
		out = append(out, tr)
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *stubRepo) MarkTradePositionApplied(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.trades {
		if s.trades[i].ID == id {
			s.trades[i].PositionApplied = true
		}
	}
	return nil
}

func (s *stubRepo) GetPosition(ctx context.Context, strategyAccountID uint64, symbol string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[positionKey(strategyAccountID, symbol)]
	if !ok {
		return nil, nil
	}
	copied := *pos
	return &copied, nil
}

func (s *stubRepo) InsertPosition(ctx context.Context, item *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey(item.StrategyAccountID, item.Symbol)
	if _, exists := s.positions[key]; exists {
		return fmt.Errorf("duplicate position %s", key)
	}
	copied := *item
	copied.ID = s.id()
	s.positions[key] = &copied
	return nil
}

func (s *stubRepo) UpdatePositionLocked(ctx context.Context, strategyAccountID uint64, symbol string, apply func(*models.Position) repository.PositionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[positionKey(strategyAccountID, symbol)]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	update := apply(pos)
	pos.Quantity = update.Quantity
	pos.EntryPrice = update.EntryPrice
	pos.LastPrice = update.LastPrice
	pos.UnrealizedPnL = update.UnrealizedPnL
	pos.Status = update.Status
	pos.ClosedAt = update.ClosedAt
	return nil
}

func (s *stubRepo) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	return nil, nil
}
