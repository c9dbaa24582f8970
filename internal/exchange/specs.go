package exchange

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradeflow/internal/config"
)

const defaultOpenOrderCap = 200

// SymbolRule is the exchange-published precision rule for one instrument.
type SymbolRule struct {
	QuantityPrecision int
	MinNotional       decimal.Decimal
}

// Spec holds one exchange's operating limits.
type Spec struct {
	Name         string
	OpenOrderCap int
	symbols      map[string]SymbolRule
}

// SymbolRule returns the precision rule for a symbol, reporting whether one
// is configured.
func (s *Spec) SymbolRule(symbol string) (SymbolRule, bool) {
	if s == nil {
		return SymbolRule{}, false
	}
	rule, ok := s.symbols[strings.ToUpper(strings.TrimSpace(symbol))]
	return rule, ok
}

// Specs is the registry of configured exchanges.
type Specs struct {
	byName map[string]*Spec
}

func NewSpecs(cfgs map[string]config.ExchangeConfig) (*Specs, error) {
	out := &Specs{byName: map[string]*Spec{}}
	for name, cfg := range cfgs {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		cap := cfg.OpenOrderCap
		if cap == 0 {
			cap = defaultOpenOrderCap
		}
		if cap < 0 {
			return nil, fmt.Errorf("exchange %s: open_order_cap must be >= 0", key)
		}
		spec := &Spec{
			Name:         key,
			OpenOrderCap: cap,
			symbols:      map[string]SymbolRule{},
		}
		for sym, rule := range cfg.Symbols {
			symbol := strings.ToUpper(strings.TrimSpace(sym))
			if symbol == "" {
				continue
			}
			if rule.QuantityPrecision < 0 {
				return nil, fmt.Errorf("exchange %s symbol %s: quantity_precision must be >= 0", key, symbol)
			}
			spec.symbols[symbol] = SymbolRule{
				QuantityPrecision: rule.QuantityPrecision,
				MinNotional:       decimal.NewFromFloat(rule.MinNotional),
			}
		}
		out.byName[key] = spec
	}
	return out, nil
}

// Get returns the spec for an exchange name, or nil when unconfigured.
func (s *Specs) Get(name string) *Spec {
	if s == nil {
		return nil
	}
	return s.byName[strings.ToLower(strings.TrimSpace(name))]
}
