// Package marketdata provides the MarketData implementations: a deterministic
// in-memory feed for the simulator, a polling bridge over a broker client, and
// a websocket tick stream.
package marketdata

import (
	"context"
	"sync"
)

// PlaceholderPrice is returned for symbols with no known observations so a
// cold start never fails downstream.
const PlaceholderPrice = 100.0

// Pad returns exactly bars closes, oldest first. Shorter series are
// left-padded by repeating the earliest known value; an empty series yields
// the placeholder price throughout.
func Pad(series []float64, bars int) []float64 {
	if bars < 1 {
		bars = 1
	}
	out := make([]float64, bars)
	if len(series) == 0 {
		for i := range out {
			out[i] = PlaceholderPrice
		}
		return out
	}
	if len(series) >= bars {
		copy(out, series[len(series)-bars:])
		return out
	}
	pad := bars - len(series)
	for i := 0; i < pad; i++ {
		out[i] = series[0]
	}
	copy(out[pad:], series)
	return out
}

// SimFeed serves fixed per-symbol price series.
type SimFeed struct {
	mu     sync.Mutex
	series map[string][]float64
}

// NewSimFeed builds a feed from per-symbol close series.
func NewSimFeed(series map[string][]float64) *SimFeed {
	s := make(map[string][]float64, len(series))
	for sym, closes := range series {
		s[sym] = append([]float64(nil), closes...)
	}
	return &SimFeed{series: s}
}

// NewSimFeedPrices builds a feed where each symbol has a single known price.
func NewSimFeedPrices(prices map[string]float64) *SimFeed {
	series := make(map[string][]float64, len(prices))
	for sym, px := range prices {
		series[sym] = []float64{px}
	}
	return NewSimFeed(series)
}

func (f *SimFeed) LatestPrice(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	closes := f.series[symbol]
	if len(closes) == 0 {
		return PlaceholderPrice, nil
	}
	return closes[len(closes)-1], nil
}

func (f *SimFeed) History(_ context.Context, symbol string, bars int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Pad(f.series[symbol], bars), nil
}
