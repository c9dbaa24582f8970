package defense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradeflow/internal/models"
	"tradeflow/internal/repository"
)

// ErrMissingPrice reports a fill notification without a usable execution
// price. The upstream producer owns populating the canonical price field;
// the recorder never falls back across alternative fields.
var ErrMissingPrice = errors.New("fill has no execution price")

// Fill is one confirmed execution reported by a writer path. Source names
// the reporting service ("stream", "reconciler", "dispatch").
type Fill struct {
	ExchangeOrderID   string
	ExecutionID       string
	StrategyAccountID uint64
	Symbol            string
	Side              string
	Quantity          decimal.Decimal
	Price             decimal.Decimal
	ExecutedAt        time.Time
	Source            string
}

// Recorder keeps trade and position records correct under concurrent
// writers. Two paths may observe the same fill (the live update stream and
// the periodic reconciliation pass) and both call RecordFill. The open-order
// row is the settlement claim: exactly one writer deletes it, and the trade
// uniqueness constraint backstops exact redeliveries.
type Recorder struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

// RecordFill idempotently records one fill. The open-order row deletion and
// the trade insert run in one transaction, so two writers racing on the same
// order cannot both book it even when they carry different execution ids.
// The position delta is applied afterwards under a non-blocking row lock; a
// contested row is skipped and replayed by the next reconciliation pass.
func (r *Recorder) RecordFill(ctx context.Context, fill Fill) error {
	if r == nil || r.Repo == nil {
		return nil
	}
	if fill.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: order_id=%s execution_id=%s", ErrMissingPrice, fill.ExchangeOrderID, fill.ExecutionID)
	}
	executedAt := fill.ExecutedAt
	if executedAt.IsZero() {
		executedAt = time.Now().UTC()
	}

	trade := &models.Trade{
		ExchangeOrderID:   fill.ExchangeOrderID,
		ExecutionID:       fill.ExecutionID,
		StrategyAccountID: fill.StrategyAccountID,
		Symbol:            fill.Symbol,
		Side:              fill.Side,
		Quantity:          fill.Quantity,
		Price:             fill.Price,
		ExecutedAt:        executedAt,
	}

	dupDefense := ""
	err := r.Repo.InTx(ctx, func(tx repository.Repository) error {
		claimed, err := tx.DeleteOpenOrderByExchangeID(ctx, fill.ExchangeOrderID)
		if err != nil {
			return err
		}
		if claimed == 0 {
			// No resting row to claim: either the order never rested (an
			// immediate fill booked at dispatch) or another writer settled
			// it first. A prior trade for the order decides which.
			prior, err := tx.ListTrades(ctx, repository.ListTradesParams{
				ExchangeOrderID: &fill.ExchangeOrderID,
				Limit:           1,
			})
			if err != nil {
				return err
			}
			if len(prior) > 0 {
				if prior[0].ExecutionID == fill.ExecutionID {
					dupDefense = defenseUniqueConstraint
				} else {
					dupDefense = defenseSettlementClaim
				}
				return nil
			}
		}
		if err := tx.InsertTrade(ctx, trade); err != nil {
			if errors.Is(err, repository.ErrDuplicateTrade) {
				dupDefense = defenseUniqueConstraint
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if dupDefense != "" {
		r.logRaceEvent(eventDuplicateTrade, dupDefense, fill)
		return nil
	}

	applied, err := r.applyToPosition(ctx, fill)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	return r.Repo.MarkTradePositionApplied(ctx, trade.ID)
}

// ReplayUnapplied re-applies trades whose position delta was skipped under a
// contested row lock. Trades replay oldest first so weighted entry prices
// come out the same as an uncontested run. Returns the number applied.
func (r *Recorder) ReplayUnapplied(ctx context.Context, strategyAccountID uint64) (int, error) {
	if r == nil || r.Repo == nil {
		return 0, nil
	}
	total := 0
	for {
		trades, err := r.Repo.ListTrades(ctx, repository.ListTradesParams{
			StrategyAccountID: &strategyAccountID,
			OnlyUnapplied:     true,
			Limit:             200,
		})
		if err != nil {
			return total, err
		}
		if len(trades) == 0 {
			return total, nil
		}
		progressed := false
		for i := range trades {
			applied, err := r.applyToPosition(ctx, fillFromTrade(&trades[i], "reconciler"))
			if err != nil {
				return total, err
			}
			if !applied {
				continue
			}
			if err := r.Repo.MarkTradePositionApplied(ctx, trades[i].ID); err != nil {
				return total, err
			}
			progressed = true
			total++
		}
		if !progressed {
			// Every remaining row is still contested; the next pass retries.
			return total, nil
		}
	}
}

func fillFromTrade(trade *models.Trade, source string) Fill {
	return Fill{
		ExchangeOrderID:   trade.ExchangeOrderID,
		ExecutionID:       trade.ExecutionID,
		StrategyAccountID: trade.StrategyAccountID,
		Symbol:            trade.Symbol,
		Side:              trade.Side,
		Quantity:          trade.Quantity,
		Price:             trade.Price,
		ExecutedAt:        trade.ExecutedAt,
		Source:            source,
	}
}

// applyToPosition folds the fill into its position row, reporting whether
// the delta landed. A lock skip returns false with no error.
func (r *Recorder) applyToPosition(ctx context.Context, fill Fill) (bool, error) {
	err := r.Repo.UpdatePositionLocked(ctx, fill.StrategyAccountID, fill.Symbol, func(pos *models.Position) repository.PositionUpdate {
		return reduce(pos, fill)
	})
	if errors.Is(err, repository.ErrPositionLocked) {
		r.logRaceEvent(eventPositionLockSkip, defenseRowLockSkip, fill)
		return false, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		qty := fill.Quantity
		if fill.Side == models.SideSell {
			qty = qty.Neg()
		}
		err := r.Repo.InsertPosition(ctx, &models.Position{
			StrategyAccountID: fill.StrategyAccountID,
			Symbol:            fill.Symbol,
			Quantity:          qty,
			EntryPrice:        fill.Price,
			LastPrice:         fill.Price,
			UnrealizedPnL:     decimal.Zero,
			Status:            models.PositionStatusOpen,
			OpenedAt:          fill.ExecutedAt,
		})
		if err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// reduce folds one fill into an existing position: buys extend at a
// cost-weighted entry price, sells realize against it. A quantity crossing
// zero closes the position.
func reduce(pos *models.Position, fill Fill) repository.PositionUpdate {
	update := repository.PositionUpdate{
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		LastPrice:  fill.Price,
		Status:     pos.Status,
		ClosedAt:   pos.ClosedAt,
	}

	delta := fill.Quantity
	if fill.Side == models.SideSell {
		delta = delta.Neg()
	}
	newQty := pos.Quantity.Add(delta)

	sameDirection := pos.Quantity.Sign() == 0 || pos.Quantity.Sign() == delta.Sign()
	if sameDirection {
		oldNotional := pos.EntryPrice.Mul(pos.Quantity.Abs())
		addNotional := fill.Price.Mul(fill.Quantity)
		if !newQty.IsZero() {
			update.EntryPrice = oldNotional.Add(addNotional).Div(newQty.Abs())
		}
	} else if newQty.Sign() != 0 && newQty.Sign() != pos.Quantity.Sign() {
		// Flipped through zero: remainder opens at the fill price.
		update.EntryPrice = fill.Price
	}

	update.Quantity = newQty
	if newQty.IsZero() {
		update.Status = models.PositionStatusClosed
		now := time.Now().UTC()
		update.ClosedAt = &now
		update.UnrealizedPnL = decimal.Zero
		update.EntryPrice = decimal.Zero
	} else {
		update.Status = models.PositionStatusOpen
		update.ClosedAt = nil
		update.UnrealizedPnL = fill.Price.Sub(update.EntryPrice).Mul(newQty)
	}
	return update
}
