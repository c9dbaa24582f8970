package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StrategyAccount links one trading strategy to one exchange account and
// carries the capital allocation used to size that account's orders.
type StrategyAccount struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	StrategyID uint64 `gorm:"not null;index:idx_strategy_account,unique"`
	Account    string `gorm:"type:varchar(100);not null;index:idx_strategy_account,unique"`
	Exchange   string `gorm:"type:varchar(50);not null;index"`

	MarketType string `gorm:"type:varchar(20);not null;default:'spot'"`

	Leverage         int             `gorm:"not null;default:1"`
	CapitalWeight    decimal.Decimal `gorm:"type:numeric(10,4);not null;default:100"`
	AllocatedCapital decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	MaxSymbols       int             `gorm:"not null;default:0"`
	IsActive         bool            `gorm:"not null;default:true;index"`

	// Per-symbol overrides of the exchange precision rules, keyed by symbol.
	PrecisionOverrides datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (StrategyAccount) TableName() string {
	return "strategy_accounts"
}

const (
	MarketTypeSpot    = "spot"
	MarketTypeFutures = "futures"
)
