package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"tradeflow/internal/defense"
	"tradeflow/internal/queue"
	"tradeflow/internal/repository"
)

// fillEvent is the wire shape of one execution report pushed by the venue
// gateway. Unknown fields are ignored so gateway-side additions do not break
// the consumer.
type fillEvent struct {
	Type              string          `json:"type"`
	ExchangeOrderID   string          `json:"exchange_order_id"`
	ExecutionID       string          `json:"execution_id"`
	StrategyAccountID uint64          `json:"strategy_account_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	Quantity          decimal.Decimal `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	ExecutedAt        time.Time       `json:"executed_at"`
}

// Consumer reads execution reports from the fill websocket and records them
// through the idempotent fill path. It reconnects with capped exponential
// backoff; the reconciler covers whatever was missed while disconnected.
type Consumer struct {
	Recorder *defense.Recorder
	Repo     repository.Repository
	Queue    *queue.Manager
	Logger   *zap.Logger

	URL string

	mu     sync.Mutex
	cancel context.CancelFunc
	conn   *websocket.Conn
}

// Run dials the stream and consumes until the context is cancelled. Dial and
// read failures are retried; only context cancellation ends the loop.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil || c.Recorder == nil {
		return nil
	}
	url := strings.TrimSpace(c.URL)
	if url == "" {
		return fmt.Errorf("missing fill stream url")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := c.consumeOnce(ctx, url)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger().Warn("fill stream disconnected, reconnecting",
			zap.String("url", url),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, url string) error {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
	}()

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg []byte) {
	var ev fillEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		c.logger().Warn("unparseable fill stream message", zap.Error(err))
		return
	}
	if ev.Type != "" && ev.Type != "fill" {
		return
	}
	if ev.ExchangeOrderID == "" || ev.ExecutionID == "" {
		return
	}

	err := c.Recorder.RecordFill(ctx, defense.Fill{
		ExchangeOrderID:   ev.ExchangeOrderID,
		ExecutionID:       ev.ExecutionID,
		StrategyAccountID: ev.StrategyAccountID,
		Symbol:            ev.Symbol,
		Side:              ev.Side,
		Quantity:          ev.Quantity,
		Price:             ev.Price,
		ExecutedAt:        ev.ExecutedAt,
		Source:            "stream",
	})
	if err != nil {
		c.logger().Error("failed to record streamed fill",
			zap.String("exchange_order_id", ev.ExchangeOrderID),
			zap.String("execution_id", ev.ExecutionID),
			zap.Error(err))
		return
	}

	// The fill released an open-order slot; promote pendings right away
	// rather than waiting for the next reconcile tick.
	if c.Queue != nil && c.Repo != nil {
		account, err := c.Repo.GetStrategyAccountByID(ctx, ev.StrategyAccountID)
		if err != nil || account == nil {
			return
		}
		if _, err := c.Queue.OnCapacityFreed(ctx, account); err != nil {
			c.logger().Error("promotion after streamed fill failed",
				zap.Uint64("strategy_account_id", ev.StrategyAccountID),
				zap.Error(err))
		}
	}
}

// Stop cancels the consumer and closes any live connection.
func (c *Consumer) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.conn = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "stop")
	}
}

func (c *Consumer) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
