package ohlc

import (
	"math"

	"github.com/linluma/chartsync/shared/models"
)

// HeikinAshi transforms bars into Heikin-Ashi bars. The input is not modified
func HeikinAshi(bars []models.Bar) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for i, bar := range bars {
		var prev *models.Bar
		if i > 0 {
			prev = &out[i-1]
		}
		out = append(out, nextHeikinAshi(prev, bar))
	}
	return out
}

// nextHeikinAshi derives one Heikin-Ashi bar from the previous Heikin-Ashi bar and a raw bar
func nextHeikinAshi(prev *models.Bar, bar models.Bar) models.Bar {
	haClose := (bar.Open + bar.High + bar.Low + bar.Close) / 4
	haOpen := bar.Open
	if prev != nil {
		haOpen = (prev.Open + prev.Close) / 2
	}
	return models.Bar{
		Time:        bar.Time,
		Open:        haOpen,
		High:        math.Max(bar.High, math.Max(haOpen, haClose)),
		Low:         math.Min(bar.Low, math.Min(haOpen, haClose)),
		Close:       haClose,
		Volume:      bar.Volume,
		Placeholder: bar.Placeholder,
	}
}
