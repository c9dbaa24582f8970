package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenOrder is an order believed live at the exchange. One row exists per
// exchange order id; the row is removed when the exchange confirms a fill or
// cancel.
type OpenOrder struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	ExchangeOrderID   string `gorm:"type:varchar(100);not null;uniqueIndex"`
	StrategyAccountID uint64 `gorm:"not null;index"`
	Symbol            string `gorm:"type:varchar(50);not null;index"`

	Side      string `gorm:"type:varchar(10);not null"`
	OrderType string `gorm:"type:varchar(20);not null;default:'limit'"`

	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	Status string `gorm:"type:varchar(20);not null;default:'open';index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (OpenOrder) TableName() string {
	return "open_orders"
}
