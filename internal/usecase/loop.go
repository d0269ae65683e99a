package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/ledger"
	"go.uber.org/zap"
)

// FlattenResult describes closing (or not needing to close) a position.
// RealizedPnL is nil for real-broker adapters, where the brokerage is
// authoritative.
type FlattenResult struct {
	Symbol      string      `json:"symbol"`
	Qty         float64     `json:"qty"`
	Side        domain.Side `json:"side,omitempty"`
	ExecPx      float64     `json:"exec_px"`
	RealizedPnL *float64    `json:"realized_pnl"`
	Status      string      `json:"status"`
}

// LoopResult aggregates one loop invocation.
type LoopResult struct {
	Steps   []*StepResult  `json:"steps"`
	Flatten *FlattenResult `json:"flatten,omitempty"`
}

// RunLoop invokes the step executor up to maxSteps times, sleeping interval
// between steps (not after the last). Each step gets a run id derived from a
// shared base plus the step index. Cancellation stops the loop before the
// next scheduled step; in-flight steps are not interrupted. With flatAtEnd
// the position is closed using the last price observed during the loop.
func RunLoop(ctx context.Context, rt *Runtime, maxSteps int, interval time.Duration, flatAtEnd bool) (*LoopResult, error) {
	baseID := uuid.NewString()
	symbol := rt.Symbols[0]
	lastPx := make(map[string]float64)
	out := &LoopResult{}

	for i := 0; i < maxSteps; i++ {
		runID := fmt.Sprintf("%s-%d", baseID, i)
		res, err := StepOnce(ctx, rt, symbol, runID)
		if err != nil {
			// A rejected step fails that cycle only; the loop moves on.
			rt.Logger.Warn("step failed", zap.String("run_id", runID), zap.Error(err))
		} else {
			lastPx[res.Symbol] = res.Price
			out.Steps = append(out.Steps, res)
		}

		if i < maxSteps-1 && interval > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(interval):
			}
		} else if err := ctx.Err(); err != nil {
			return out, err
		}
	}

	if flatAtEnd {
		priceFn := func(ctx context.Context, sym string) (float64, error) {
			if px, ok := lastPx[sym]; ok {
				return px, nil
			}
			// Symbol never priced during the loop: fall back to a fresh fetch.
			return rt.Feed.LatestPrice(ctx, sym)
		}
		flat, err := FlattenSymbol(ctx, rt, symbol, priceFn)
		if err != nil {
			return out, err
		}
		out.Flatten = flat
	}
	return out, nil
}

// positionRestorer is implemented by brokers whose in-memory state can be
// reseeded from the durable ledger.
type positionRestorer interface {
	RestorePosition(symbol string, qty float64)
}

// FlattenSymbol closes the open position for a symbol to exactly zero. The
// ledger, not broker memory, is the durable record: when the simulator
// reports flat but the ledger shows a net open quantity (broker state lost
// across a restart), the ledger is authoritative. Real brokers are
// authoritative for themselves, so no reverse reconciliation happens there.
func FlattenSymbol(ctx context.Context, rt *Runtime, symbol string, priceFn func(context.Context, string) (float64, error)) (*FlattenResult, error) {
	held, err := rt.Broker.Position(ctx, symbol)
	if err != nil {
		return nil, err
	}

	entries, err := rt.Ledger.Entries(symbol)
	if err != nil {
		return nil, err
	}

	if math.Abs(held) < 1e-9 && rt.BrokerName == "sim" {
		if net := ledger.NetPosition(entries); math.Abs(net) >= 1e-9 {
			if restorer, ok := rt.Broker.(positionRestorer); ok {
				restorer.RestorePosition(symbol, net)
				held = net
				rt.Logger.Info("position restored from ledger",
					zap.String("symbol", symbol), zap.Float64("qty", net))
			}
		}
	}

	if math.Abs(held) < 1e-9 {
		zero := 0.0
		return &FlattenResult{Symbol: symbol, Status: "flat", RealizedPnL: &zero}, nil
	}

	px, err := priceFn(ctx, symbol)
	if err != nil {
		return nil, err
	}

	order := domain.Order{
		Symbol:   symbol,
		Qty:      math.Abs(held),
		Type:     domain.OrderTypeMarket,
		RefPrice: px,
	}
	if held > 0 {
		order.Side = domain.SideSell
	} else {
		order.Side = domain.SideBuy
	}

	fill, err := rt.Broker.Submit(ctx, order)
	if err != nil {
		return nil, err
	}

	result := &FlattenResult{
		Symbol: symbol,
		Qty:    fill.Qty,
		Side:   fill.Side,
		ExecPx: fill.Price,
		Status: fill.Status,
	}
	if rt.BrokerName == "sim" {
		// Cost basis is derived by replaying history, never read from broker
		// state.
		openQty, avgCost := ledger.CostBasis(entries)
		pnl := ledger.RealizedPnL(openQty, avgCost, fill.Price)
		result.RealizedPnL = &pnl
	}

	recordFill(ctx, rt, fill, uuid.NewString()+"-flatten", time.Now().UTC())

	if rt.Badges != nil && result.RealizedPnL != nil {
		if unlocked := rt.Badges.RecordLiveProfit(rt.Mode, *result.RealizedPnL); len(unlocked) > 0 {
			rt.Logger.Info("achievements unlocked", zap.Strings("keys", unlocked))
		}
	}
	return result, nil
}
