package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeflow/internal/models"
	"tradeflow/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(r repository.Repository) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// --- Strategy accounts ------------------------------------------------------

func (s *Store) GetStrategyAccountByID(ctx context.Context, id uint64) (*models.StrategyAccount, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.StrategyAccount
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStrategyAccountsByIDs(ctx context.Context, ids []uint64) ([]models.StrategyAccount, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return nil, nil
	}
	var items []models.StrategyAccount
	if err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListActiveStrategyAccounts(ctx context.Context) ([]models.StrategyAccount, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StrategyAccount
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertStrategyAccount(ctx context.Context, item *models.StrategyAccount) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy_id"}, {Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"exchange",
			"market_type",
			"leverage",
			"capital_weight",
			"allocated_capital",
			"max_symbols",
			"is_active",
			"precision_overrides",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeleteStrategyAccount(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Delete(&models.StrategyAccount{}, "id = ?", id).Error
}

// --- Open orders ------------------------------------------------------------

func (s *Store) InsertOpenOrder(ctx context.Context, item *models.OpenOrder) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetOpenOrderByExchangeID(ctx context.Context, exchangeOrderID string) (*models.OpenOrder, error) {
	if s == nil || s.db == nil || strings.TrimSpace(exchangeOrderID) == "" {
		return nil, nil
	}
	var item models.OpenOrder
	err := s.db.WithContext(ctx).First(&item, "exchange_order_id = ?", exchangeOrderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOpenOrders(ctx context.Context, params repository.ListOpenOrdersParams) ([]models.OpenOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.OpenOrder{})
	if params.StrategyAccountID != nil && *params.StrategyAccountID != 0 {
		query = query.Where("strategy_account_id = ?", *params.StrategyAccountID)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.OpenOrder
	if err := query.Order("created_at asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountOpenOrders(ctx context.Context, strategyAccountID uint64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.OpenOrder{}).
		Where("strategy_account_id = ?", strategyAccountID).
		Count(&count).Error
	return count, err
}

func (s *Store) DeleteOpenOrderByExchangeID(ctx context.Context, exchangeOrderID string) (int64, error) {
	if s == nil || s.db == nil || strings.TrimSpace(exchangeOrderID) == "" {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("exchange_order_id = ?", exchangeOrderID).
		Delete(&models.OpenOrder{})
	return res.RowsAffected, res.Error
}

// --- Pending orders ---------------------------------------------------------

func (s *Store) InsertPendingOrder(ctx context.Context, item *models.PendingOrder) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListPendingOrders(ctx context.Context, params repository.ListPendingOrdersParams) ([]models.PendingOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PendingOrder{})
	if params.StrategyAccountID != nil && *params.StrategyAccountID != 0 {
		query = query.Where("strategy_account_id = ?", *params.StrategyAccountID)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.PendingOrder
	if err := query.
		Order("priority desc").
		Order("sort_price desc").
		Order("created_at asc").
		Limit(limit).Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPendingOrders(ctx context.Context, strategyAccountID uint64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.PendingOrder{}).
		Where("strategy_account_id = ?", strategyAccountID).
		Count(&count).Error
	return count, err
}

func (s *Store) DeletePendingOrder(ctx context.Context, id uint64) (int64, error) {
	if s == nil || s.db == nil || id == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Delete(&models.PendingOrder{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

func (s *Store) UpdatePendingOrderAttempts(ctx context.Context, id uint64, attempts int) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.PendingOrder{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   attempts,
			"updated_at": time.Now().UTC(),
		}).Error
}

// --- Trades -----------------------------------------------------------------

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Create(item).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrDuplicateTrade
	}
	return err
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Trade{})
	if params.StrategyAccountID != nil && *params.StrategyAccountID != 0 {
		query = query.Where("strategy_account_id = ?", *params.StrategyAccountID)
	}
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.ExchangeOrderID != nil && strings.TrimSpace(*params.ExchangeOrderID) != "" {
		query = query.Where("exchange_order_id = ?", strings.TrimSpace(*params.ExchangeOrderID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("executed_at >= ?", *params.Since)
	}
	order := "executed_at desc"
	if params.OnlyUnapplied {
		query = query.Where("position_applied = ?", false)
		order = "executed_at asc"
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Trade
	if err := query.Order(order).Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) MarkTradePositionApplied(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("id = ?", id).
		Update("position_applied", true).Error
}

// --- Positions --------------------------------------------------------------

func (s *Store) GetPosition(ctx context.Context, strategyAccountID uint64, symbol string) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Position
	err := s.db.WithContext(ctx).
		First(&item, "strategy_account_id = ? AND symbol = ?", strategyAccountID, symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertPosition(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// UpdatePositionLocked applies fn to the position row under
// SELECT ... FOR UPDATE SKIP LOCKED. When the row exists but a concurrent
// updater holds it, SKIP LOCKED returns no row and the call reports
// repository.ErrPositionLocked instead of blocking.
func (s *Store) UpdatePositionLocked(ctx context.Context, strategyAccountID uint64, symbol string, apply func(*models.Position) repository.PositionUpdate) error {
	if s == nil || s.db == nil || apply == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.Position
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			First(&item, "strategy_account_id = ? AND symbol = ?", strategyAccountID, symbol).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			var count int64
			if err := tx.Model(&models.Position{}).
				Where("strategy_account_id = ? AND symbol = ?", strategyAccountID, symbol).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return repository.ErrPositionLocked
			}
			return gorm.ErrRecordNotFound
		}
		if err != nil {
			return err
		}
		update := apply(&item)
		return tx.Model(&models.Position{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{
				"quantity":       update.Quantity,
				"entry_price":    update.EntryPrice,
				"last_price":     update.LastPrice,
				"unrealized_pnl": update.UnrealizedPnL,
				"status":         update.Status,
				"closed_at":      update.ClosedAt,
				"updated_at":     time.Now().UTC(),
			}).Error
	})
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Position{})
	if params.StrategyAccountID != nil && *params.StrategyAccountID != 0 {
		query = query.Where("strategy_account_id = ?", *params.StrategyAccountID)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Position
	if err := query.Order("updated_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
