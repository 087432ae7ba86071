package domain

import "time"

// PricePoint is a single observed trade price at a point in time.
// Points are immutable once appended to a feed history.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// FeedSnapshot is a consistent view of a price feed's state: the latest
// price, a copy of the bounded history, and connection health.
type FeedSnapshot struct {
	Asset        string
	CurrentPrice float64
	History      []PricePoint
	Connected    bool
	LastError    string
}

// AssetSpec describes one tradable asset: its feed symbol, the integer
// index the exchange uses for order placement, and the price increment
// used to lay out grid rows. The increment is sized per asset so the
// visible row span covers roughly one minute of typical volatility.
type AssetSpec struct {
	Symbol    string
	Index     int
	Increment float64
	// SzDecimals is the exchange's size precision for the asset.
	SzDecimals int
}

// Valid reports whether the spec is complete enough to trade.
func (a AssetSpec) Valid() bool {
	return a.Symbol != "" && a.Index >= 0 && a.Increment > 0
}
