package domain

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Order is an intent to trade. Orders are created fresh per submission and
// never persisted; only the resulting Fill is recorded.
type Order struct {
	Symbol   string
	Side     Side
	Qty      float64
	Type     OrderType
	RefPrice float64 // optional pricing hint, 0 means unset
}

// Fill is the realized outcome of a submitted order. Immutable once returned
// by a broker.
type Fill struct {
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Qty           float64 `json:"qty"`
	Price         float64 `json:"price"`
	Status        string  `json:"status"`
	BrokerOrderID string  `json:"broker_order_id,omitempty"`
}
