// Package strategy holds the signal generators and their registry. Strategies
// are stateless across calls: they map a close-price window to a per-bar
// signal, and only the final bar's signal drives trading.
package strategy

import (
	"fmt"
	"sort"

	"github.com/vitos/trading_agent_lab/internal/domain"
)

// Factory builds a strategy from its numeric params.
type Factory func(params map[string]float64) (domain.Strategy, error)

var registry = map[string]Factory{
	"rsi_mean_rev": newRSIMeanReversion,
}

// Register adds a strategy factory under a name. Mainly for tests and
// extensions; the built-ins register themselves.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New builds the named strategy. An unknown name is a configuration-time
// fatal error, never retried.
func New(name string, params map[string]float64) (domain.Strategy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (known: %v)", name, names())
	}
	return factory(params)
}

func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
