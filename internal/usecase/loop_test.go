package usecase_test

import (
	"context"
	"testing"

	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/infrastructure/broker"
	"github.com/vitos/trading_agent_lab/internal/ledger"
	"github.com/vitos/trading_agent_lab/internal/usecase"
	"go.uber.org/zap"
)

func TestRunLoopStepsAndFlatten(t *testing.T) {
	rt := newSimRuntime(t, 10000, map[string][]float64{"SPY": {100}}, 1, 10, 25)

	res, err := usecase.RunLoop(context.Background(), rt, 3, 0, true)
	if err != nil {
		t.Fatalf("RunLoop failed: %v", err)
	}
	if len(res.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(res.Steps))
	}
	// Step 1 buys 10; steps 2 and 3 are no-ops at the same price.
	if res.Steps[0].Fill == nil || res.Steps[1].Fill != nil || res.Steps[2].Fill != nil {
		t.Errorf("unexpected fills across steps: %+v", res.Steps)
	}

	if res.Flatten == nil {
		t.Fatal("expected a flatten result")
	}
	if res.Flatten.Side != domain.SideSell || res.Flatten.Qty != 10 {
		t.Errorf("expected sell of 10 at flatten, got %+v", res.Flatten)
	}
	if res.Flatten.RealizedPnL == nil || *res.Flatten.RealizedPnL != 0 {
		t.Errorf("flat price round trip should realize 0, got %+v", res.Flatten.RealizedPnL)
	}

	held, _ := rt.Broker.Position(context.Background(), "SPY")
	if held != 0 {
		t.Errorf("expected flat after loop, got %g", held)
	}
}

func TestFlattenNoPositionIsNoop(t *testing.T) {
	rt := newSimRuntime(t, 10000, map[string][]float64{"SPY": {100}}, 1, 10, 25)

	res, err := usecase.FlattenSymbol(context.Background(), rt, "SPY", rt.Feed.LatestPrice)
	if err != nil {
		t.Fatalf("FlattenSymbol failed: %v", err)
	}
	if res.Status != "flat" {
		t.Errorf("expected status flat, got %s", res.Status)
	}
	if res.RealizedPnL == nil || *res.RealizedPnL != 0 {
		t.Errorf("expected realized pnl 0, got %+v", res.RealizedPnL)
	}

	entries, _ := rt.Ledger.Entries("SPY")
	if len(entries) != 0 {
		t.Errorf("no-op flatten must not write the ledger, got %d rows", len(entries))
	}
}

func TestFlattenRealizedPnL(t *testing.T) {
	rt := newSimRuntime(t, 10000, map[string][]float64{"SPY": {100}}, 1, 10, 25)
	ctx := context.Background()

	// Buy 10 @ 100, then flatten at 110: realized must be exactly 100.
	if _, err := usecase.StepOnce(ctx, rt, "SPY", "run-1"); err != nil {
		t.Fatal(err)
	}
	priceFn := func(context.Context, string) (float64, error) { return 110, nil }
	res, err := usecase.FlattenSymbol(ctx, rt, "SPY", priceFn)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExecPx != 110 || res.Qty != 10 {
		t.Errorf("unexpected flatten fill: %+v", res)
	}
	if res.RealizedPnL == nil || *res.RealizedPnL != 100 {
		t.Errorf("expected realized pnl 100, got %+v", res.RealizedPnL)
	}
}

func TestFlattenRestoresPositionFromLedger(t *testing.T) {
	dir := t.TempDir()
	led, err := ledger.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	// The previous process bought 5 @ 100 and then died; only the ledger knows.
	if err := led.Append(domain.Fill{Symbol: "SPY", Side: domain.SideBuy, Qty: 5, Price: 100}); err != nil {
		t.Fatal(err)
	}

	rt := newSimRuntime(t, 10000, map[string][]float64{"SPY": {120}}, 1, 10, 25)
	rt.Ledger = led // fresh broker, pre-existing ledger

	res, err := usecase.FlattenSymbol(context.Background(), rt, "SPY", rt.Feed.LatestPrice)
	if err != nil {
		t.Fatalf("FlattenSymbol failed: %v", err)
	}
	if res.Side != domain.SideSell || res.Qty != 5 {
		t.Errorf("expected sell of the ledger position 5, got %+v", res)
	}
	if res.RealizedPnL == nil || *res.RealizedPnL != 100 {
		t.Errorf("expected realized pnl (120-100)*5 = 100, got %+v", res.RealizedPnL)
	}

	held, _ := rt.Broker.Position(context.Background(), "SPY")
	if held != 0 {
		t.Errorf("expected flat after reconciliation, got %g", held)
	}
}

func TestFlattenRealBrokerReportsNilPnL(t *testing.T) {
	client := &stubAlpaca{price: 100, open: true, position: 4}
	rt := newSimRuntime(t, 10000, map[string][]float64{"SPY": {100}}, 1, 10, 25)
	rt.Broker = broker.NewAlpacaBroker(client, broker.AlpacaOptions{}, zap.NewNop())
	rt.BrokerName = "alpaca"

	res, err := usecase.FlattenSymbol(context.Background(), rt, "SPY", rt.Feed.LatestPrice)
	if err != nil {
		t.Fatal(err)
	}
	if res.Side != domain.SideSell || res.Qty != 4 {
		t.Errorf("expected sell of 4, got %+v", res)
	}
	if res.RealizedPnL != nil {
		t.Errorf("real broker flatten must not compute pnl locally, got %g", *res.RealizedPnL)
	}
}

// stubAlpaca is the minimal remote client for flatten tests.
type stubAlpaca struct {
	price    float64
	open     bool
	position float64
}

func (c *stubAlpaca) GetLastPrice(context.Context, string) (float64, error) { return c.price, nil }
func (c *stubAlpaca) IsMarketOpen(context.Context) (bool, error)            { return c.open, nil }
func (c *stubAlpaca) GetAccount(context.Context) (broker.Account, error) {
	return broker.Account{Cash: 10000, Equity: 10000, LastEquity: 10000}, nil
}
func (c *stubAlpaca) GetPosition(context.Context, string) (float64, error) { return c.position, nil }
func (c *stubAlpaca) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.OrderAck, error) {
	return broker.OrderAck{ID: "stub-1", Status: "filled"}, nil
}

func TestRunLoopContinuesAfterStepError(t *testing.T) {
	// Cash too small to buy even one share at the cap: the submit itself never
	// errors (target is 0), so force an error with a broken feed instead.
	rt := newSimRuntime(t, 10000, map[string][]float64{"SPY": {100}}, 1, 10, 25)
	rt.Feed = failingFeed{}

	res, err := usecase.RunLoop(context.Background(), rt, 2, 0, false)
	if err != nil {
		t.Fatalf("loop should swallow step errors: %v", err)
	}
	if len(res.Steps) != 0 {
		t.Errorf("expected no successful steps, got %d", len(res.Steps))
	}
}

type failingFeed struct{}

func (failingFeed) LatestPrice(context.Context, string) (float64, error) {
	return 0, context.DeadlineExceeded
}

func (failingFeed) History(context.Context, string, int) ([]float64, error) {
	return nil, context.DeadlineExceeded
}
