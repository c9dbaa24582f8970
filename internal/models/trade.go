package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of a confirmed fill. The composite unique
// index on (exchange_order_id, execution_id) is the idempotence boundary: a
// concurrent second insert for the same pair fails on the constraint and is
// classified as a duplicate, never stored twice.
type Trade struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	ExchangeOrderID   string `gorm:"type:varchar(100);not null;index:idx_trade_execution,unique"`
	ExecutionID       string `gorm:"type:varchar(100);not null;index:idx_trade_execution,unique"`
	StrategyAccountID uint64 `gorm:"not null;index"`
	Symbol            string `gorm:"type:varchar(50);not null;index"`

	Side     string          `gorm:"type:varchar(10);not null"`
	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price    decimal.Decimal `gorm:"type:numeric(20,10);not null"`

	// PositionApplied records whether this trade's delta has reached the
	// position row. A fill skipped under a contested row lock stays false
	// until the reconciler replays it.
	PositionApplied bool `gorm:"not null;default:false;index"`

	ExecutedAt time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Trade) TableName() string {
	return "trades"
}
