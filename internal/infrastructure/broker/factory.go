package broker

import (
	"fmt"

	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"go.uber.org/zap"
)

// New selects the broker implementation from configuration. The real-money
// gate is enforced here, at construction time, before any trading logic runs:
// a non-paper alpaca broker requires the explicit environment unlock. A nil
// client builds the real HTTP client from the environment.
func New(cfg config.LiveConfig, policy config.EnvPolicy, feed domain.MarketData, client AlpacaClient, logger *zap.Logger) (domain.Broker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Adapter {
	case "", "sim":
		return NewSimBroker(cfg.Cash, feed, cfg.Commission, cfg.SlippageBps, logger), nil
	case "alpaca":
		if !cfg.IsPaper() && !policy.RealTradingEnabled {
			return nil, domain.ErrRealTradingLocked
		}
		if client == nil {
			var err error
			client, err = NewHTTPAlpacaClientFromEnv(cfg.BaseURL, cfg.IsPaper())
			if err != nil {
				return nil, err
			}
		}
		return NewAlpacaBroker(client, AlpacaOptions{
			SlippageBps:     cfg.SlippageBps,
			MaxOrderUSD:     cfg.MaxOrderUSD,
			MaxPositionPct:  cfg.MaxPositionPct,
			MaxDailyLossPct: cfg.MaxDailyLossPct,
			AllowAfterHours: cfg.AllowAfterHours,
			Policy:          policy,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown live adapter %q", cfg.Adapter)
	}
}
