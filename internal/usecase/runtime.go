// Package usecase orchestrates the live trading pipeline: one decision step,
// the loop controller, position flattening and the multi-agent league.
package usecase

import (
	"github.com/vitos/trading_agent_lab/internal/achievements"
	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/infrastructure/broker"
	"github.com/vitos/trading_agent_lab/internal/infrastructure/marketdata"
	"github.com/vitos/trading_agent_lab/internal/ledger"
	"github.com/vitos/trading_agent_lab/internal/strategy"
	"go.uber.org/zap"
)

// Runtime is the ephemeral per-invocation bundle: resolved configuration,
// collaborators and agent identity. Constructed once per live-step or
// per-loop invocation; never persisted.
type Runtime struct {
	Live       config.LiveConfig
	Symbols    []string
	Ledger     *ledger.Ledger
	Broker     domain.Broker
	Feed       domain.MarketData
	Strategy   domain.Strategy
	Store      domain.RunRepository  // nil disables DB mirroring
	Badges     *achievements.Tracker // nil disables the observer
	AgentID    string
	Mode       string // "paper" | "real"
	BrokerName string
	SizePct    float64
	Logger     *zap.Logger
}

// RuntimeOptions carry the injectable collaborators.
type RuntimeOptions struct {
	// PriceSeries overrides market data with fixed per-symbol close series
	// for deterministic runs. Nil selects the adapter's natural feed.
	PriceSeries map[string][]float64
	// AlpacaClient overrides the remote client; nil builds the HTTP client
	// from the environment when the alpaca adapter is selected.
	AlpacaClient broker.AlpacaClient
	Store        domain.RunRepository
	Badges       *achievements.Tracker
	Logger       *zap.Logger
}

// BuildRuntime wires a Runtime from an engine config. Configuration errors
// (unknown adapter or strategy, locked real trading, missing credentials)
// surface here, before any trading logic runs.
func BuildRuntime(cfg *config.Config, policy config.EnvPolicy, opts RuntimeOptions) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	led, err := ledger.Open(cfg.Live.LedgerDir)
	if err != nil {
		return nil, err
	}

	strat, err := strategy.New(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		return nil, err
	}

	client := opts.AlpacaClient
	if client == nil && cfg.Live.Adapter == "alpaca" {
		if !cfg.Live.IsPaper() && !policy.RealTradingEnabled {
			return nil, domain.ErrRealTradingLocked
		}
		client, err = broker.NewHTTPAlpacaClientFromEnv(cfg.Live.BaseURL, cfg.Live.IsPaper())
		if err != nil {
			return nil, err
		}
	}

	var feed domain.MarketData
	switch {
	case opts.PriceSeries != nil:
		feed = marketdata.NewSimFeed(opts.PriceSeries)
	case cfg.Live.StreamURL != "":
		stream := marketdata.NewStreamFeed(cfg.Live.StreamURL, logger)
		if err := stream.Connect(cfg.Symbols()); err != nil {
			return nil, err
		}
		feed = stream
	case cfg.Live.Adapter == "alpaca":
		feed = marketdata.NewClientFeed(client.GetLastPrice)
	default:
		feed = marketdata.NewSimFeed(nil)
	}

	br, err := broker.New(cfg.Live, policy, feed, client, logger)
	if err != nil {
		return nil, err
	}

	mode := "paper"
	if cfg.Live.Adapter == "alpaca" && !cfg.Live.IsPaper() {
		mode = "real"
	}

	sizePct := cfg.Live.SizePct
	if v, ok := cfg.Strategy.Params["size_pct"]; ok && cfg.Live.SizePct == 0 {
		sizePct = v
	}

	return &Runtime{
		Live:       cfg.Live,
		Symbols:    cfg.Symbols(),
		Ledger:     led,
		Broker:     br,
		Feed:       feed,
		Strategy:   strat,
		Store:      opts.Store,
		Badges:     opts.Badges,
		AgentID:    cfg.ResolvedAgentID(),
		Mode:       mode,
		BrokerName: defaultAdapter(cfg.Live.Adapter),
		SizePct:    sizePct,
		Logger:     logger,
	}, nil
}

func defaultAdapter(name string) string {
	if name == "" {
		return "sim"
	}
	return name
}
