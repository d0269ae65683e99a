package marketdata

import (
	"context"
	"sync"
)

// PriceFn resolves a symbol to its latest traded price.
type PriceFn func(ctx context.Context, symbol string) (float64, error)

// ClientFeed bridges a broker client's last-price lookup into the MarketData
// contract. Observed prices accumulate so History improves as the process
// keeps polling.
type ClientFeed struct {
	priceFn  PriceFn
	mu       sync.Mutex
	observed map[string][]float64
	maxKeep  int
}

func NewClientFeed(priceFn PriceFn) *ClientFeed {
	return &ClientFeed{
		priceFn:  priceFn,
		observed: make(map[string][]float64),
		maxKeep:  10_000,
	}
}

func (f *ClientFeed) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	px, err := f.priceFn(ctx, symbol)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	series := append(f.observed[symbol], px)
	if len(series) > f.maxKeep {
		series = series[len(series)-f.maxKeep:]
	}
	f.observed[symbol] = series
	f.mu.Unlock()
	return px, nil
}

func (f *ClientFeed) History(ctx context.Context, symbol string, bars int) ([]float64, error) {
	f.mu.Lock()
	known := len(f.observed[symbol])
	f.mu.Unlock()
	if known == 0 {
		// Seed with one real observation so padding repeats a live price
		// rather than the placeholder.
		if _, err := f.LatestPrice(ctx, symbol); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return Pad(f.observed[symbol], bars), nil
}
