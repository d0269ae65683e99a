// Package broker implements the Broker contract over a deterministic
// simulator and an Alpaca-style remote client with pre-trade guardrails.
package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitos/trading_agent_lab/internal/domain"
	"go.uber.org/zap"
)

// SimBroker keeps cash and per-symbol quantity purely in memory for the
// lifetime of the process. Execution price is the order's RefPrice when
// supplied, else the feed's last price, adjusted by slippage against the
// trader. Buys and sells either fully fill or fail before any mutation.
type SimBroker struct {
	mu          sync.Mutex
	cash        float64
	pos         map[string]float64
	feed        domain.MarketData
	commission  float64
	slippageBps float64
	logger      *zap.Logger
}

func NewSimBroker(cash float64, feed domain.MarketData, commission, slippageBps float64, logger *zap.Logger) *SimBroker {
	return &SimBroker{
		cash:        cash,
		pos:         make(map[string]float64),
		feed:        feed,
		commission:  commission,
		slippageBps: slippageBps,
		logger:      logger,
	}
}

func (b *SimBroker) Cash(context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash, nil
}

func (b *SimBroker) Position(_ context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos[symbol], nil
}

func (b *SimBroker) Submit(ctx context.Context, order domain.Order) (domain.Fill, error) {
	px := order.RefPrice
	if px == 0 {
		var err error
		if px, err = b.feed.LatestPrice(ctx, order.Symbol); err != nil {
			return domain.Fill{}, err
		}
	}
	execPx := applySlippage(px, order.Side, b.slippageBps)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch order.Side {
	case domain.SideBuy:
		cost := execPx*order.Qty + b.commission
		if cost > b.cash {
			return domain.Fill{}, fmt.Errorf("buy %g %s at %g: %w", order.Qty, order.Symbol, execPx, domain.ErrInsufficientCash)
		}
		b.cash -= cost
		b.pos[order.Symbol] += order.Qty
	case domain.SideSell:
		if order.Qty > b.pos[order.Symbol] {
			return domain.Fill{}, fmt.Errorf("sell %g %s with %g held: %w", order.Qty, order.Symbol, b.pos[order.Symbol], domain.ErrInsufficientPosition)
		}
		b.cash += execPx*order.Qty - b.commission
		b.pos[order.Symbol] -= order.Qty
	default:
		return domain.Fill{}, fmt.Errorf("unknown order side %q", order.Side)
	}
	b.logger.Debug("sim fill",
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("qty", order.Qty),
		zap.Float64("price", execPx),
		zap.Float64("cash", b.cash))
	return domain.Fill{
		Symbol: order.Symbol,
		Side:   order.Side,
		Qty:    order.Qty,
		Price:  execPx,
		Status: "filled",
	}, nil
}

// CancelAll is a no-op: nothing rests in the simulator.
func (b *SimBroker) CancelAll(context.Context) error { return nil }

// RestorePosition seeds broker memory from an external durable record. Used by
// flatten when the ledger shows an open quantity the in-memory state lost
// across a restart.
func (b *SimBroker) RestorePosition(symbol string, qty float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos[symbol] = qty
}

func applySlippage(px float64, side domain.Side, bps float64) float64 {
	slip := px * bps / 1e4
	if side == domain.SideBuy {
		return px + slip
	}
	return px - slip
}
