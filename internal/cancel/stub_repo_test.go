package cancel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tradeflow/internal/models"
	"tradeflow/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository
// covering the ledger reads and deletes the cancel path exercises.
type stubRepo struct {
	mu       sync.Mutex
	nextID   uint64
	accounts map[uint64]*models.StrategyAccount
	open     map[string]*models.OpenOrder
	pending  map[uint64]*models.PendingOrder
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		accounts: map[uint64]*models.StrategyAccount{},
		open:     map[string]*models.OpenOrder{},
		pending:  map[uint64]*models.PendingOrder{},
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

func (s *stubRepo) addOpen(order models.OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.id()
	s.open[order.ExchangeOrderID] = &order
}

func (s *stubRepo) addPending(order models.PendingOrder) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.id()
	s.pending[order.ID] = &order
	return order.ID
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
	return nil, nil
}

func (s *stubRepo) ListActiveStrategyAccounts(ctx context.Context) ([]models.StrategyAccount, error) {
	return nil, nil
}

func (s *stubRepo) UpsertStrategyAccount(ctx context.Context, item *models.StrategyAccount) error {
	return nil
}

func (s *stubRepo) DeleteStrategyAccount(ctx context.Context, id uint64) error { return nil }

func (s *stubRepo) InsertOpenOrder(ctx context.Context, item *models.OpenOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *item
	if copied.ID == 0 {
		copied.ID = s.id()
	}
	s.open[copied.ExchangeOrderID] = &copied
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
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return nil, nil
		}
		out = out[params.Offset:]
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
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
	copied := *item
	if copied.ID == 0 {
		copied.ID = s.id()
	}
	s.pending[copied.ID] = &copied
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
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return nil, nil
		}
		out = out[params.Offset:]
	}
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

func (s *stubRepo) InsertTrade(ctx context.Context, item *models.Trade) error { return nil }

func (s *stubRepo) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	return nil, nil
}

func (s *stubRepo) MarkTradePositionApplied(ctx context.Context, id uint64) error { return nil }

func (s *stubRepo) GetPosition(ctx context.Context, strategyAccountID uint64, symbol string) (*models.Position, error) {
	return nil, nil
}

func (s *stubRepo) InsertPosition(ctx context.Context, item *models.Position) error { return nil }

func (s *stubRepo) UpdatePositionLocked(ctx context.Context, strategyAccountID uint64, symbol string, apply func(*models.Position) repository.PositionUpdate) error {
	return fmt.Errorf("not implemented")
}

func (s *stubRepo) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	return nil, nil
}
