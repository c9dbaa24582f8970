package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the current net exposure of one strategy-account in one symbol.
// Unique per (strategy_account_id, symbol); every confirmed trade mutates it.
type Position struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	StrategyAccountID uint64 `gorm:"not null;index:idx_position_symbol,unique"`
	Symbol            string `gorm:"type:varchar(50);not null;index:idx_position_symbol,unique"`

	Quantity      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	EntryPrice    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	LastPrice     decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null;default:0"`

	Status string `gorm:"type:varchar(20);not null;default:'open';index"`

	OpenedAt  time.Time  `gorm:"type:timestamptz;not null"`
	ClosedAt  *time.Time `gorm:"type:timestamptz"`
	CreatedAt time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Position) TableName() string {
	return "positions"
}

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)
