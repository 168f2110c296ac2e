package chart

import (
	"github.com/linluma/chartsync/client/ohlc"
	"github.com/linluma/chartsync/shared/models"
)

// Volume bar colours
const (
	VolumeBullish = "rgba(38, 166, 154, 0.5)"
	VolumeBearish = "rgba(239, 83, 80, 0.5)"
)

// volumeOptions places the histogram in the bottom fifth of the pane
var volumeOptions = SeriesOptions{
	Title:        "Volume",
	PriceScaleID: "",
	VolumeFormat: true,
	ScaleTop:     0.8,
}

// KindFor maps a chart type to the series that draws it. Heikin-Ashi reuses candlesticks
func KindFor(chartType models.ChartType) SeriesKind {
	switch chartType {
	case models.ChartOHLC:
		return KindBar
	case models.ChartLine:
		return KindLine
	case models.ChartArea:
		return KindArea
	default:
		return KindCandlestick
	}
}

func mainOptions(chartType models.ChartType) SeriesOptions {
	return SeriesOptions{Title: string(chartType), PriceScaleID: "right"}
}

func usesValue(chartType models.ChartType) bool {
	return chartType == models.ChartLine || chartType == models.ChartArea
}

// MainPoints formats bars for the price series of chartType
func MainPoints(chartType models.ChartType, bars []models.Bar) []Point {
	if chartType == models.ChartHeikinAshi {
		bars = ohlc.HeikinAshi(bars)
	}
	points := make([]Point, len(bars))
	for i, bar := range bars {
		points[i] = mainPoint(chartType, bar)
	}
	return points
}

func mainPoint(chartType models.ChartType, bar models.Bar) Point {
	if usesValue(chartType) {
		return Point{Time: bar.Time, Value: bar.Close}
	}
	return Point{
		Time:  bar.Time,
		Open:  bar.Open,
		High:  bar.High,
		Low:   bar.Low,
		Close: bar.Close,
	}
}

// lastMainPoint formats the newest bar. Heikin-Ashi needs the whole history for its open
func lastMainPoint(chartType models.ChartType, bars []models.Bar) (Point, bool) {
	if len(bars) == 0 {
		return Point{}, false
	}
	if chartType == models.ChartHeikinAshi {
		ha := ohlc.HeikinAshi(bars)
		return mainPoint(chartType, ha[len(ha)-1]), true
	}
	return mainPoint(chartType, bars[len(bars)-1]), true
}

// VolumePoints formats bars for the volume histogram, coloured by direction
func VolumePoints(bars []models.Bar) []Point {
	points := make([]Point, len(bars))
	for i, bar := range bars {
		points[i] = volumePoint(bar)
	}
	return points
}

func volumePoint(bar models.Bar) Point {
	color := VolumeBearish
	if bar.Bullish() {
		color = VolumeBullish
	}
	return Point{Time: bar.Time, Value: bar.Volume, Color: color}
}
