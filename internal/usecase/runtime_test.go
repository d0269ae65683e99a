package usecase_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/usecase"
	"go.uber.org/zap"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Strategy.Name = "rsi_mean_rev"
	cfg.Live.Adapter = "sim"
	cfg.Live.LedgerDir = filepath.Join(t.TempDir(), "live")
	cfg.Live.Cash = 10000
	return cfg
}

func TestBuildRuntimeSim(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Live.SizePct = 15

	rt, err := usecase.BuildRuntime(cfg, config.EnvPolicy{}, usecase.RuntimeOptions{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("BuildRuntime failed: %v", err)
	}
	if rt.BrokerName != "sim" || rt.Mode != "paper" {
		t.Errorf("unexpected identity: broker=%s mode=%s", rt.BrokerName, rt.Mode)
	}
	if rt.SizePct != 15 {
		t.Errorf("expected size 15, got %g", rt.SizePct)
	}
	if rt.AgentID != "rsi_mean_rev" {
		t.Errorf("agent id should fall back to the strategy name, got %s", rt.AgentID)
	}
	if len(rt.Symbols) != 1 || rt.Symbols[0] != "SPY" {
		t.Errorf("expected default universe [SPY], got %v", rt.Symbols)
	}
}

func TestBuildRuntimeSizePctFromStrategyParams(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Live.SizePct = 0
	cfg.Strategy.Params = map[string]float64{"size_pct": 20}

	rt, err := usecase.BuildRuntime(cfg, config.EnvPolicy{}, usecase.RuntimeOptions{Logger: zap.NewNop()})
	if err != nil {
		t.Fatal(err)
	}
	if rt.SizePct != 20 {
		t.Errorf("expected size from strategy params, got %g", rt.SizePct)
	}
}

func TestBuildRuntimeRealTradingLocked(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Live.Adapter = "alpaca"
	paper := false
	cfg.Live.Paper = &paper

	_, err := usecase.BuildRuntime(cfg, config.EnvPolicy{}, usecase.RuntimeOptions{Logger: zap.NewNop()})
	if !errors.Is(err, domain.ErrRealTradingLocked) {
		t.Fatalf("expected ErrRealTradingLocked, got %v", err)
	}
}

func TestBuildRuntimeUnknownStrategy(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Strategy.Name = "does_not_exist"

	if _, err := usecase.BuildRuntime(cfg, config.EnvPolicy{}, usecase.RuntimeOptions{Logger: zap.NewNop()}); err == nil {
		t.Error("unknown strategy must fail at build time")
	}
}

func TestBuildRuntimeAlpacaWithInjectedClient(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Live.Adapter = "alpaca"

	rt, err := usecase.BuildRuntime(cfg, config.EnvPolicy{}, usecase.RuntimeOptions{
		AlpacaClient: &stubAlpaca{price: 100, open: true},
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("BuildRuntime failed: %v", err)
	}
	if rt.BrokerName != "alpaca" || rt.Mode != "paper" {
		t.Errorf("unexpected identity: broker=%s mode=%s", rt.BrokerName, rt.Mode)
	}
}
