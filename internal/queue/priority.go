package queue

import (
	"sort"

	"github.com/shopspring/decimal"

	"tradeflow/internal/models"
)

// Priority tiers. MARKET orders must execute before others; STOP orders
// protect positions and outrank plain limits. An explicit caller priority
// wins when higher.
const (
	PriorityMarket = 100
	PriorityStop   = 50
	PriorityLimit  = 0
)

// PriorityFor resolves the effective priority of a desired order.
func PriorityFor(orderType string, override int) int {
	base := PriorityLimit
	switch orderType {
	case models.OrderTypeMarket:
		base = PriorityMarket
	case models.OrderTypeStop:
		base = PriorityStop
	}
	if override > base {
		return override
	}
	return base
}

// SortPriceFor normalizes price aggressiveness so one descending sort works
// for both sides: buys compete on high price, sells on low price.
func SortPriceFor(side string, price *decimal.Decimal) decimal.Decimal {
	if price == nil {
		return decimal.Zero
	}
	if side == models.SideSell {
		return price.Neg()
	}
	return *price
}

// SortPending orders pending orders by priority desc, sort_price desc
// (more aggressive first), created_at asc. The sort is stable, so repeated
// calls with unchanged inputs yield identical order.
func SortPending(items []models.PendingOrder) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.SortPrice.Equal(b.SortPrice) {
			return a.SortPrice.GreaterThan(b.SortPrice)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
