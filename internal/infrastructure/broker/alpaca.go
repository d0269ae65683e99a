package broker

import (
	"context"
	"fmt"
	"math"

	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"go.uber.org/zap"
)

// Account is the brokerage account snapshot used by the guardrails.
type Account struct {
	Cash        float64
	Equity      float64
	LastEquity  float64
	BuyingPower float64
}

// OrderRequest is the wire-level order surface any brokerage integration must
// accept.
type OrderRequest struct {
	Symbol        string
	Side          domain.Side
	Qty           float64
	Type          domain.OrderType
	TimeInForce   string
	ExtendedHours bool
}

// OrderAck is the broker's response to a submitted order.
type OrderAck struct {
	ID     string
	Status string
}

// AlpacaClient is the remote client surface the live adapter wraps.
type AlpacaClient interface {
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	IsMarketOpen(ctx context.Context) (bool, error)
	GetAccount(ctx context.Context) (Account, error)
	GetPosition(ctx context.Context, symbol string) (float64, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
}

// RejectError is a guardrail violation: the order was refused before any
// remote call that moves money.
type RejectError struct {
	Rule   string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("order rejected by %s: %s", e.Rule, e.Reason)
}

// AlpacaBroker wraps an AlpacaClient and enforces pre-trade guardrails in a
// fixed order: market hours, max order notional, max position percent (buys),
// max daily loss percent. A limit of 0 disables its check.
type AlpacaBroker struct {
	client          AlpacaClient
	slippageBps     float64
	maxOrderUSD     float64
	maxPositionPct  float64
	maxDailyLossPct float64
	allowAfterHours bool
	envMaxOrderUSD  float64
	clipToMax       bool
	logger          *zap.Logger
}

// AlpacaOptions configure the guardrails explicitly; the environment is read
// once by the caller, never here.
type AlpacaOptions struct {
	SlippageBps     float64
	MaxOrderUSD     float64
	MaxPositionPct  float64
	MaxDailyLossPct float64
	AllowAfterHours bool
	Policy          config.EnvPolicy
}

func NewAlpacaBroker(client AlpacaClient, opts AlpacaOptions, logger *zap.Logger) *AlpacaBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlpacaBroker{
		client:          client,
		slippageBps:     opts.SlippageBps,
		maxOrderUSD:     opts.MaxOrderUSD,
		maxPositionPct:  opts.MaxPositionPct,
		maxDailyLossPct: opts.MaxDailyLossPct,
		allowAfterHours: opts.AllowAfterHours || opts.Policy.AllowAfterHours,
		envMaxOrderUSD:  opts.Policy.MaxOrderUSD,
		clipToMax:       opts.Policy.ClipOrderToMax,
		logger:          logger,
	}
}

func (b *AlpacaBroker) Cash(ctx context.Context) (float64, error) {
	acct, err := b.client.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	return acct.Cash, nil
}

func (b *AlpacaBroker) Position(ctx context.Context, symbol string) (float64, error) {
	return b.client.GetPosition(ctx, symbol)
}

func (b *AlpacaBroker) Submit(ctx context.Context, order domain.Order) (domain.Fill, error) {
	open, err := b.client.IsMarketOpen(ctx)
	if err != nil {
		return domain.Fill{}, err
	}
	if !open && !b.allowAfterHours {
		return domain.Fill{}, &RejectError{Rule: "market_closed", Reason: "market is closed and after-hours trading is not allowed"}
	}

	px := order.RefPrice
	if px == 0 {
		if px, err = b.client.GetLastPrice(ctx, order.Symbol); err != nil {
			return domain.Fill{}, err
		}
	}

	qty := order.Qty
	limit := b.maxOrderUSD
	if b.envMaxOrderUSD > 0 {
		limit = b.envMaxOrderUSD
	}
	if limit > 0 && qty*px > limit {
		if !b.clipToMax {
			return domain.Fill{}, &RejectError{
				Rule:   "max_order_usd",
				Reason: fmt.Sprintf("notional %.2f exceeds max_order_usd %.2f", qty*px, limit),
			}
		}
		clipped := math.Floor(limit / px)
		if clipped <= 0 {
			return domain.Fill{}, &RejectError{
				Rule:   "max_order_usd",
				Reason: fmt.Sprintf("cannot clip order under max_order_usd %.2f at price %.2f", limit, px),
			}
		}
		b.logger.Warn("clipping order to max_order_usd",
			zap.Float64("requested_qty", qty),
			zap.Float64("clipped_qty", clipped))
		qty = clipped
	}

	if b.maxPositionPct > 0 && order.Side == domain.SideBuy {
		acct, err := b.client.GetAccount(ctx)
		if err != nil {
			return domain.Fill{}, err
		}
		held, err := b.client.GetPosition(ctx, order.Symbol)
		if err != nil {
			return domain.Fill{}, err
		}
		cap := acct.Equity * b.maxPositionPct / 100
		if (held+qty)*px > cap {
			return domain.Fill{}, &RejectError{
				Rule:   "max_position_pct",
				Reason: fmt.Sprintf("position notional %.2f would exceed %.2f (%.1f%% of equity)", (held+qty)*px, cap, b.maxPositionPct),
			}
		}
	}

	if b.maxDailyLossPct > 0 {
		acct, err := b.client.GetAccount(ctx)
		if err != nil {
			return domain.Fill{}, err
		}
		if acct.LastEquity > 0 {
			lossPct := (acct.LastEquity - acct.Equity) / acct.LastEquity * 100
			if lossPct > b.maxDailyLossPct {
				return domain.Fill{}, &RejectError{
					Rule:   "max_daily_loss_pct",
					Reason: fmt.Sprintf("daily loss %.2f%% exceeds limit %.2f%%, trading halted for the day", lossPct, b.maxDailyLossPct),
				}
			}
		}
	}

	orderType := order.Type
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	ack, err := b.client.SubmitOrder(ctx, OrderRequest{
		Symbol:        order.Symbol,
		Side:          order.Side,
		Qty:           qty,
		Type:          orderType,
		TimeInForce:   "day",
		ExtendedHours: !open && b.allowAfterHours,
	})
	if err != nil {
		return domain.Fill{}, err
	}
	status := ack.Status
	if status == "" {
		status = "filled"
	}
	return domain.Fill{
		Symbol:        order.Symbol,
		Side:          order.Side,
		Qty:           qty,
		Price:         applySlippage(px, order.Side, b.slippageBps),
		Status:        status,
		BrokerOrderID: ack.ID,
	}, nil
}

// CancelAll is best-effort; the client surface carries no resting orders to
// cancel, so this only logs.
func (b *AlpacaBroker) CancelAll(context.Context) error {
	b.logger.Debug("cancel_all requested; nothing to cancel")
	return nil
}
