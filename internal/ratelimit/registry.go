package ratelimit

import (
	"strings"

	"tradeflow/internal/config"
)

var defaultBudgets = map[string]config.RateBudgetConfig{
	ClassGeneral: {PerSecond: 10, Burst: 5},
	ClassOrder:   {PerSecond: 5, Burst: 2},
}

// Registry holds one limiter per exchange. Built once at process start;
// every outbound call for an exchange shares its budgets.
type Registry struct {
	byExchange map[string]*Limiter
	fallback   *Limiter
}

// NewRegistry builds limiters from per-exchange config. Exchanges without
// configured budgets get conservative defaults rather than unlimited access.
func NewRegistry(cfgs map[string]config.ExchangeConfig) (*Registry, error) {
	fallback, err := New(defaultBudgets)
	if err != nil {
		return nil, err
	}
	reg := &Registry{byExchange: map[string]*Limiter{}, fallback: fallback}
	for name, cfg := range cfgs {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || len(cfg.RateLimits) == 0 {
			continue
		}
		limiter, err := New(cfg.RateLimits)
		if err != nil {
			return nil, err
		}
		reg.byExchange[key] = limiter
	}
	return reg, nil
}

// For returns the limiter for an exchange, falling back to the default
// budgets for unconfigured venues.
func (r *Registry) For(exchangeName string) *Limiter {
	if r == nil {
		return nil
	}
	if l, ok := r.byExchange[strings.ToLower(strings.TrimSpace(exchangeName))]; ok {
		return l
	}
	return r.fallback
}
