package models

// Bar represents a single OHLCV candle on the chart
type Bar struct {
	Time        int64   `json:"time"` // unix seconds, bucket start
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	Placeholder bool    `json:"-"`
}

// Bullish reports whether the bar closed at or above its open
func (b Bar) Bullish() bool {
	return b.Close >= b.Open
}

// Tick is a real-time update for the forming or just-closed bar of a stream
type Tick struct {
	Symbol   string
	Interval Interval
	Bar      Bar
	Closed   bool
}

// Key returns the subscription key the tick belongs to
func (t Tick) Key() SubscriptionKey {
	return SubscriptionKey{Symbol: t.Symbol, Interval: t.Interval}
}

// ChartType represents how the price series is drawn
type ChartType string

// Supported chart types
const (
	ChartCandlestick ChartType = "candlestick"
	ChartHeikinAshi  ChartType = "heikin-ashi"
	ChartOHLC        ChartType = "ohlc"
	ChartLine        ChartType = "line"
	ChartArea        ChartType = "area"
)

// Valid reports whether the chart type is supported
func (c ChartType) Valid() bool {
	switch c {
	case ChartCandlestick, ChartHeikinAshi, ChartOHLC, ChartLine, ChartArea:
		return true
	}
	return false
}

// DataSource selects where chart history comes from
type DataSource string

const (
	SourceLive      DataSource = "live"
	SourceSynthetic DataSource = "synthetic"
)
