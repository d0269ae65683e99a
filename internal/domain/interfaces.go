package domain

import "context"

// Broker abstracts order execution and position/cash query across the
// deterministic simulator and the Alpaca paper/live adapter. Submit executes
// immediately and synchronously: every call either fully fills or fails with
// an error before any state mutation.
type Broker interface {
	Cash(ctx context.Context) (float64, error)
	Position(ctx context.Context, symbol string) (float64, error)
	Submit(ctx context.Context, order Order) (Fill, error)
	CancelAll(ctx context.Context) error
}

// MarketData supplies the latest price and a bounded-length close history per
// symbol. History always returns exactly bars values, oldest first, left-padded
// with the earliest known value so strategies never see a short window.
type MarketData interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
	History(ctx context.Context, symbol string, bars int) ([]float64, error)
}

// Strategy maps a close-price window to a per-bar signal in {-1, 0, +1}.
// Only the final bar's signal drives trading.
type Strategy interface {
	Signals(closes []float64) []int
}

// RunRecord is one persisted run row (live step or backtest).
type RunRecord struct {
	ID         string `json:"id"`
	AgentID    string `json:"agent_id"`
	Mode       string `json:"mode"`
	TsStart    string `json:"ts_start"`
	TsEnd      string `json:"ts_end"`
	CommitSHA  string `json:"commit_sha,omitempty"`
	ConfigHash string `json:"config_hash,omitempty"`
}

// MetricRecord is one named KPI for a run. Value is nil when the metric was
// not finite and had to be stored as NULL.
type MetricRecord struct {
	RunID string   `json:"run_id"`
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
}

// OrderRecord mirrors a fill into the relational store.
type OrderRecord struct {
	ID            string  `json:"id"`
	Ts            string  `json:"ts"`
	AgentID       string  `json:"agent_id"`
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Qty           float64 `json:"qty"`
	Price         float64 `json:"price"`
	Broker        string  `json:"broker"`
	BrokerOrderID string  `json:"broker_order_id,omitempty"`
	Status        string  `json:"status"`
}

// RunRepository defines storage operations for runs, metrics and orders.
// Schema ownership lives with the implementation; each record is its own
// statement with no cross-record atomicity.
type RunRepository interface {
	RecordRun(ctx context.Context, run *RunRecord, metrics []MetricRecord) error
	RecordOrder(ctx context.Context, order *OrderRecord) error
	FetchRunsSince(ctx context.Context, sinceISO string) ([]*RunRecord, error)
	FetchMetricsForRuns(ctx context.Context, runIDs []string) ([]*MetricRecord, error)
}
