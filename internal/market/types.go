package market

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that unwinds s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType is an exchange order type.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeStopLoss   OrderType = "stop-loss"
	OrderTypeTakeProfit OrderType = "take-profit"
)

// Candle is one OHLC row.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	VWAP   float64   `json:"vwap"`
	Volume float64   `json:"volume"`
	Count  int       `json:"count"`
}

// Candles is a time-ordered candle series, oldest first.
type Candles []Candle

// Closes returns the close prices of the series.
func (c Candles) Closes() []float64 {
	out := make([]float64, len(c))
	for i, candle := range c {
		out[i] = candle.Close
	}
	return out
}

// LastClose returns the most recent close, or false for an empty series.
func (c Candles) LastClose() (float64, bool) {
	if len(c) == 0 {
		return 0, false
	}
	return c[len(c)-1].Close, true
}

// Position is an open exchange position aggregated per pair.
type Position struct {
	Pair   string  `json:"pair"`
	Side   Side    `json:"side"`
	Volume float64 `json:"volume"`
	Cost   float64 `json:"cost"`
	Fee    float64 `json:"fee"`
}

// Balances maps asset codes to available amounts.
type Balances map[string]float64

// OrderRequest describes a single order submission.
// Price is ignored for market orders and is the trigger price otherwise.
type OrderRequest struct {
	Pair   string    `json:"pair"`
	Side   Side      `json:"side"`
	Type   OrderType `json:"type"`
	Volume float64   `json:"volume"`
	Price  float64   `json:"price,omitempty"`
}
