package chart

import (
	"errors"
)

var (
	// ErrNoSeries is returned when drawing into a series that has been removed or never created
	ErrNoSeries = errors.New("chart series not available")

	// ErrRangeOutOfBounds is returned by TimeScale.SetVisibleRange when the range misses the data
	ErrRangeOutOfBounds = errors.New("visible range outside data bounds")
)

// SeriesKind is the drawing style of a series
type SeriesKind string

const (
	KindCandlestick SeriesKind = "candlestick"
	KindBar         SeriesKind = "bar"
	KindLine        SeriesKind = "line"
	KindArea        SeriesKind = "area"
	KindHistogram   SeriesKind = "histogram"
)

// SeriesOptions carries the presentation settings of a series
type SeriesOptions struct {
	Title        string
	PriceScaleID string // empty places the series on an overlay scale
	VolumeFormat bool
	ScaleTop     float64 // fraction of the pane left above the series
}

// Point is one datum of a series. OHLC fields are used by candlestick and bar series,
// Value and Color by line, area and histogram series
type Point struct {
	Time  int64
	Open  float64
	High  float64
	Low   float64
	Close float64
	Value float64
	Color string
}

// TimeRange is a visible window in unix seconds
type TimeRange struct {
	From int64
	To   int64
}

// LogicalRange is a visible window in bar indexes; From < 0 means empty space left of the first bar
type LogicalRange struct {
	From float64
	To   float64
}

// Series is a handle to one drawn series
type Series interface {
	Kind() SeriesKind
	SetData(points []Point) error
	Update(point Point) error
}

// TimeScale controls the horizontal viewport
type TimeScale interface {
	VisibleRange() (TimeRange, bool)
	SetVisibleRange(r TimeRange) error
	VisibleLogicalRange() (LogicalRange, bool)
	FitContent()
	// OnVisibleLogicalRangeChange registers fn and returns a function that removes it
	OnVisibleLogicalRangeChange(fn func(LogicalRange)) func()
}

// Surface is the rendering target the controller draws into
type Surface interface {
	AddSeries(kind SeriesKind, opts SeriesOptions) Series
	RemoveSeries(s Series)
	TimeScale() TimeScale
}
