package models

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order types accepted in trading decisions.
const (
	OrderTypeMarket       = "MARKET"
	OrderTypeLimit        = "LIMIT"
	OrderTypeStop         = "STOP"
	OrderTypeCancelAll    = "CANCEL_ALL"
	OrderTypeCancelSymbol = "CANCEL_SYMBOL"
)

// Open/pending order statuses.
const (
	OrderStatusOpen    = "open"
	OrderStatusPending = "pending"
)
