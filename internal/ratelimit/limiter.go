package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tradeflow/internal/config"
)

// Endpoint classes. Each class has its own budget; a caller in one class
// never consumes another's slots.
const (
	ClassGeneral = "general"
	ClassOrder   = "order"
)

// ErrInvalidBudget reports an unusable rate budget at construction time.
// This is the only unrecoverable limiter failure; Acquire itself fails only
// on context cancellation.
var ErrInvalidBudget = fmt.Errorf("rate budget must be > 0")

type bucket struct {
	mu       sync.Mutex
	interval time.Duration
	burst    float64
	tokens   float64
	last     time.Time
}

// reserve consumes one slot and returns the time at which the caller may
// proceed. Reservations are handed out in arrival order, so waiters drain
// FIFO and bursty callers cannot starve low-frequency ones.
func (b *bucket) reserve(now time.Time) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.After(b.last) {
		elapsed := now.Sub(b.last)
		b.tokens += float64(elapsed) / float64(b.interval)
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return b.last
	}

	deficit := 1 - b.tokens
	readyAt := b.last.Add(time.Duration(deficit * float64(b.interval)))
	b.tokens = 0
	b.last = readyAt
	return readyAt
}

// Limiter gates outbound exchange calls per endpoint class.
type Limiter struct {
	buckets map[string]*bucket
}

// New builds a limiter from per-class budgets. Every configured budget must
// have per_second > 0; burst defaults to 1.
func New(budgets map[string]config.RateBudgetConfig) (*Limiter, error) {
	if len(budgets) == 0 {
		return nil, fmt.Errorf("%w: no endpoint classes configured", ErrInvalidBudget)
	}
	l := &Limiter{buckets: map[string]*bucket{}}
	now := time.Now()
	for class, budget := range budgets {
		key := strings.ToLower(strings.TrimSpace(class))
		if key == "" {
			continue
		}
		if budget.PerSecond <= 0 {
			return nil, fmt.Errorf("%w: class %s per_second=%v", ErrInvalidBudget, key, budget.PerSecond)
		}
		burst := budget.Burst
		if burst <= 0 {
			burst = 1
		}
		l.buckets[key] = &bucket{
			interval: time.Duration(float64(time.Second) / budget.PerSecond),
			burst:    float64(burst),
			tokens:   float64(burst),
			last:     now,
		}
	}
	if len(l.buckets) == 0 {
		return nil, fmt.Errorf("%w: no endpoint classes configured", ErrInvalidBudget)
	}
	return l, nil
}

// Acquire blocks until a slot for the class is available, then returns. The
// worst case is a bounded wait, never a drop. Unknown classes fall back to
// the general budget so a misnamed caller still gets limited.
func (l *Limiter) Acquire(ctx context.Context, class string) error {
	if l == nil {
		return fmt.Errorf("rate limiter is nil")
	}
	b := l.buckets[strings.ToLower(strings.TrimSpace(class))]
	if b == nil {
		b = l.buckets[ClassGeneral]
	}
	if b == nil {
		return fmt.Errorf("no budget for class %q and no general fallback", class)
	}

	readyAt := b.reserve(time.Now())
	wait := time.Until(readyAt)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TryAcquire attempts to take a slot without blocking.
func (l *Limiter) TryAcquire(class string) bool {
	if l == nil {
		return false
	}
	b := l.buckets[strings.ToLower(strings.TrimSpace(class))]
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if now.After(b.last) {
		elapsed := now.Sub(b.last)
		b.tokens += float64(elapsed) / float64(b.interval)
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
