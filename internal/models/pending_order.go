package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingOrder is a desired order queued locally because the exchange's
// concurrent open-order cap was reached. Same shape as OpenOrder minus the
// exchange order id; it has never been live at the exchange.
type PendingOrder struct {
	ID                uint64 `gorm:"primaryKey;autoIncrement"`
	StrategyAccountID uint64 `gorm:"not null;index"`
	Symbol            string `gorm:"type:varchar(50);not null;index"`

	Side      string `gorm:"type:varchar(10);not null"`
	OrderType string `gorm:"type:varchar(20);not null;default:'limit'"`

	Quantity decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price    decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	// Promotion ordering: priority desc, then sort_price desc, then created_at asc.
	Priority  int             `gorm:"not null;default:0;index"`
	SortPrice decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`

	// Transient submit failures already consumed for this order.
	Attempts int `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PendingOrder) TableName() string {
	return "pending_orders"
}
