package usecase

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"go.uber.org/zap"
)

// StepResult is the outcome of one decision cycle. Fill is nil when no order
// was needed.
type StepResult struct {
	Symbol    string       `json:"symbol"`
	Signal    int          `json:"signal"`
	TargetQty float64      `json:"target_qty"`
	Delta     float64      `json:"delta"`
	Price     float64      `json:"price"`
	CashAfter float64      `json:"cash_after"`
	Fill      *domain.Fill `json:"fill"`
}

// StepOnce executes one live decision cycle for a symbol: build the price
// window, take the final strategy signal, size the long-or-flat target
// position, submit the delta and record the fill. The sequence is fully
// deterministic given identical price history and broker state.
func StepOnce(ctx context.Context, rt *Runtime, symbol, runID string) (*StepResult, error) {
	start := time.Now().UTC()

	closes, err := rt.Feed.History(ctx, symbol, rt.Live.Bars)
	if err != nil {
		return nil, err
	}
	signals := rt.Strategy.Signals(closes)
	signal := 0
	if len(signals) > 0 {
		signal = signals[len(signals)-1]
	}
	price := closes[len(closes)-1]

	held, err := rt.Broker.Position(ctx, symbol)
	if err != nil {
		return nil, err
	}
	cash, err := rt.Broker.Cash(ctx)
	if err != nil {
		return nil, err
	}

	equity := cash + held*price
	posCap := equity * rt.Live.MaxPositionPct / 100

	// Negative signals flatten rather than short: the target is floored at
	// zero.
	var targetQty float64
	if signal > 0 && price > 0 {
		notional := math.Min(posCap, equity*rt.SizePct/100)
		targetQty = math.Floor(notional / price)
		if targetQty < 0 {
			targetQty = 0
		}
	}

	delta := targetQty - held
	result := &StepResult{
		Symbol:    symbol,
		Signal:    signal,
		TargetQty: targetQty,
		Delta:     delta,
		Price:     price,
		CashAfter: cash,
	}

	if delta != 0 {
		order := domain.Order{
			Symbol:   symbol,
			Qty:      math.Abs(delta),
			Type:     domain.OrderTypeMarket,
			RefPrice: price,
		}
		if delta > 0 {
			order.Side = domain.SideBuy
		} else {
			order.Side = domain.SideSell
		}
		fill, err := rt.Broker.Submit(ctx, order)
		if err != nil {
			return nil, err
		}
		result.Fill = &fill
		recordFill(ctx, rt, fill, runID, start)
	}

	if cashAfter, err := rt.Broker.Cash(ctx); err == nil {
		result.CashAfter = cashAfter
	}

	rt.Logger.Info("live step",
		zap.String("run_id", runID),
		zap.String("symbol", symbol),
		zap.Int("signal", signal),
		zap.Float64("target_qty", targetQty),
		zap.Float64("delta", delta),
		zap.Float64("price", price),
		zap.Float64("cash_after", result.CashAfter))
	return result, nil
}

// recordFill appends the fill to the ledger and mirrors it into the store.
// The trade has already happened broker-side; bookkeeping failures are logged
// and never unwind the decision.
func recordFill(ctx context.Context, rt *Runtime, fill domain.Fill, runID string, start time.Time) {
	if err := rt.Ledger.Append(fill); err != nil {
		rt.Logger.Error("ledger append failed", zap.Error(err), zap.String("symbol", fill.Symbol))
	}

	if rt.Store != nil {
		now := time.Now().UTC().Format(time.RFC3339)
		if err := rt.Store.RecordOrder(ctx, &domain.OrderRecord{
			ID:            uuid.NewString(),
			Ts:            now,
			AgentID:       rt.AgentID,
			Symbol:        fill.Symbol,
			Side:          fill.Side,
			Qty:           fill.Qty,
			Price:         fill.Price,
			Broker:        rt.BrokerName,
			BrokerOrderID: fill.BrokerOrderID,
			Status:        fill.Status,
		}); err != nil {
			rt.Logger.Error("order record failed", zap.Error(err))
		}
		if err := rt.Store.RecordRun(ctx, &domain.RunRecord{
			ID:      runID,
			AgentID: rt.AgentID,
			Mode:    "live",
			TsStart: start.Format(time.RFC3339),
			TsEnd:   time.Now().UTC().Format(time.RFC3339),
		}, nil); err != nil {
			rt.Logger.Error("run record failed", zap.Error(err))
		}
	}

	if rt.Badges != nil {
		if unlocked := rt.Badges.RecordTradeNotional(rt.Mode, fill.Qty*fill.Price); len(unlocked) > 0 {
			rt.Logger.Info("achievements unlocked", zap.Strings("keys", unlocked))
		}
	}
}
