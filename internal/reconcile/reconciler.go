package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradeflow/internal/defense"
	"tradeflow/internal/exchange"
	"tradeflow/internal/models"
	"tradeflow/internal/queue"
	"tradeflow/internal/ratelimit"
	"tradeflow/internal/repository"
)

// reconcilePageSize bounds one ledger read; accounts with more open orders
// are drained page by page within the same pass.
const reconcilePageSize = 200

// Reconciler periodically compares the local open-order ledger against the
// exchange's live view and settles the difference. A ledger order the
// exchange no longer reports is treated as filled: the fill is recorded
// through the same idempotent path the stream uses, so a race between the
// two writers resolves on the open-order settlement claim instead of double
// counting. The pass also replays position deltas skipped under contested
// row locks.
type Reconciler struct {
	Repo     repository.Repository
	Client   exchange.Client
	Queue    *queue.Manager
	Recorder *defense.Recorder
	Limits   *ratelimit.Registry
	Logger   *zap.Logger
}

// Run executes one full reconciliation pass over every active
// strategy-account. Per-account failures are logged and skipped; one broken
// venue connection must not stall the rest.
func (r *Reconciler) Run(ctx context.Context) error {
	if r == nil || r.Repo == nil || r.Client == nil {
		return nil
	}
	accounts, err := r.Repo.ListActiveStrategyAccounts(ctx)
	if err != nil {
		return err
	}
	for i := range accounts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.reconcileAccount(ctx, &accounts[i]); err != nil {
			r.logger().Error("reconcile pass failed for account",
				zap.Uint64("strategy_account_id", accounts[i].ID),
				zap.String("exchange", accounts[i].Exchange),
				zap.Error(err))
		}
	}
	return nil
}

func (r *Reconciler) reconcileAccount(ctx context.Context, account *models.StrategyAccount) error {
	if r.Limits != nil {
		if err := r.Limits.For(account.Exchange).Acquire(ctx, ratelimit.ClassGeneral); err != nil {
			return err
		}
	}
	live, err := r.Client.FetchOpenOrders(ctx, account.Account, "")
	if err != nil {
		return err
	}
	liveIDs := make(map[string]struct{}, len(live))
	for _, o := range live {
		liveIDs[o.ExchangeOrderID] = struct{}{}
	}

	// Settled rows leave the table, so the offset only advances past
	// survivors (still-live orders and failed settlements).
	settled := 0
	offset := 0
	for {
		ledger, err := r.Repo.ListOpenOrders(ctx, repository.ListOpenOrdersParams{
			StrategyAccountID: &account.ID,
			Limit:             reconcilePageSize,
			Offset:            offset,
		})
		if err != nil {
			return err
		}
		if len(ledger) == 0 {
			break
		}
		kept := 0
		for i := range ledger {
			if _, ok := liveIDs[ledger[i].ExchangeOrderID]; ok {
				kept++
				continue
			}
			if err := r.settleVanished(ctx, account, &ledger[i]); err != nil {
				r.logger().Error("failed to settle vanished order",
					zap.String("exchange_order_id", ledger[i].ExchangeOrderID),
					zap.Error(err))
				kept++
				continue
			}
			settled++
		}
		if len(ledger) < reconcilePageSize {
			break
		}
		offset += kept
	}

	if settled > 0 && r.Queue != nil {
		promoted, err := r.Queue.OnCapacityFreed(ctx, account)
		if err != nil {
			return err
		}
		r.logger().Info("reconciled account",
			zap.Uint64("strategy_account_id", account.ID),
			zap.Int("settled", settled),
			zap.Int("promoted", promoted))
	}

	if r.Recorder != nil {
		replayed, err := r.Recorder.ReplayUnapplied(ctx, account.ID)
		if err != nil {
			return err
		}
		if replayed > 0 {
			r.logger().Info("replayed skipped position updates",
				zap.Uint64("strategy_account_id", account.ID),
				zap.Int("replayed", replayed))
		}
	}

	return r.refreshUnrealizedPnL(ctx, account)
}

// settleVanished books a ledger order the exchange no longer lists as filled
// at its recorded terms. The recorder's open-order claim dedupes against a
// stream event for the same fill; the derived execution id only labels the
// synthesized trade.
func (r *Reconciler) settleVanished(ctx context.Context, account *models.StrategyAccount, order *models.OpenOrder) error {
	if r.Recorder == nil {
		_, err := r.Repo.DeleteOpenOrderByExchangeID(ctx, order.ExchangeOrderID)
		return err
	}
	return r.Recorder.RecordFill(ctx, defense.Fill{
		ExchangeOrderID:   order.ExchangeOrderID,
		ExecutionID:       order.ExchangeOrderID + "-ack",
		StrategyAccountID: account.ID,
		Symbol:            order.Symbol,
		Side:              order.Side,
		Quantity:          order.Quantity,
		Price:             order.Price,
		ExecutedAt:        time.Now().UTC(),
		Source:            "reconciler",
	})
}

// refreshUnrealizedPnL re-marks open positions at the most recent trade
// price seen for the symbol. Contested rows are skipped; the next pass picks
// them up.
func (r *Reconciler) refreshUnrealizedPnL(ctx context.Context, account *models.StrategyAccount) error {
	open := models.PositionStatusOpen
	positions, err := r.Repo.ListPositions(ctx, repository.ListPositionsParams{
		StrategyAccountID: &account.ID,
		Status:            &open,
	})
	if err != nil {
		return err
	}
	for i := range positions {
		pos := &positions[i]
		mark, ok, err := r.latestPrice(ctx, account.ID, pos.Symbol)
		if err != nil {
			return err
		}
		if !ok || mark.Equal(pos.LastPrice) {
			continue
		}
		err = r.Repo.UpdatePositionLocked(ctx, account.ID, pos.Symbol, func(p *models.Position) repository.PositionUpdate {
			return repository.PositionUpdate{
				Quantity:      p.Quantity,
				EntryPrice:    p.EntryPrice,
				LastPrice:     mark,
				UnrealizedPnL: mark.Sub(p.EntryPrice).Mul(p.Quantity),
				Status:        p.Status,
			}
		})
		if err != nil && !errors.Is(err, repository.ErrPositionLocked) {
			return err
		}
	}
	return nil
}

func (r *Reconciler) latestPrice(ctx context.Context, strategyAccountID uint64, symbol string) (decimal.Decimal, bool, error) {
	trades, err := r.Repo.ListTrades(ctx, repository.ListTradesParams{
		StrategyAccountID: &strategyAccountID,
		Symbol:            &symbol,
		Limit:             1,
	})
	if err != nil || len(trades) == 0 {
		return decimal.Zero, false, err
	}
	return trades[0].Price, true, nil
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}
