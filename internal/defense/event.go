package defense

import "fmt"

// Race-defense event names and the defense that absorbed each.
const (
	eventDuplicateTrade   = "duplicate_trade"
	eventPositionLockSkip = "position_lock_skip"

	defenseUniqueConstraint = "unique_constraint"
	defenseSettlementClaim  = "settlement_claim"
	defenseRowLockSkip      = "row_lock_skip"
)

// raceEventLine renders the pipe-delimited observability line consumed by
// downstream alerting. The format is a contract; do not reorder fields.
func raceEventLine(event, defense string, fill Fill) string {
	return fmt.Sprintf(
		"RACE_CONDITION_DETECTED | event=%s | order_id=%s | symbol=%s | side=%s | quantity=%s | price=%s | strategy_account_id=%d | defense=%s | source=%s",
		event,
		fill.ExchangeOrderID,
		fill.Symbol,
		fill.Side,
		fill.Quantity.String(),
		fill.Price.String(),
		fill.StrategyAccountID,
		defense,
		fill.Source,
	)
}

// logRaceEvent emits the event line. These are observability signals, not
// errors: the defenses already guarantee correctness, and elevated frequency
// points at upstream timing problems to investigate.
func (r *Recorder) logRaceEvent(event, defense string, fill Fill) {
	if r.Logger == nil {
		return
	}
	r.Logger.Warn(raceEventLine(event, defense, fill))
}
