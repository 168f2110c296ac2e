package synthetic

import (
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/benbjohnson/clock"
	"github.com/linluma/chartsync/shared/models"
)

// drift gives the random walk a slight upward bias
const drift = 0.0001

var barCounts = map[models.Interval]int{
	models.Interval1m:  1440,
	models.Interval5m:  1440,
	models.Interval15m: 1440,
	models.Interval30m: 1440,
	models.Interval1H:  720,
	models.Interval4H:  720,
	models.Interval1D:  1095,
	models.Interval1W:  260,
	models.Interval1M:  120,
}

// BarCount returns how many bars Generate produces for interval
func BarCount(interval models.Interval) int {
	return barCounts[interval]
}

// Generator produces deterministic OHLCV series for offline charts
type Generator struct {
	catalog *Catalog
	clock   clock.Clock
}

// NewGenerator creates a generator. A nil catalog uses DefaultCatalog
func NewGenerator(catalog *Catalog, clk clock.Clock) *Generator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Generator{catalog: catalog, clock: clk}
}

// Catalog returns the symbol catalog in use
func (g *Generator) Catalog() *Catalog {
	return g.catalog
}

// Generate returns a random walk ending at the current time. The same symbol and interval
// always yield the same prices; only the timestamps follow the clock.
// Unknown symbols use the default symbol's price and volatility
func (g *Generator) Generate(symbol string, interval models.Interval) []models.Bar {
	count := BarCount(interval)
	spacing := interval.Seconds()
	if count == 0 || spacing == 0 {
		return nil
	}

	params, _ := g.catalog.Lookup(symbol)
	rand := newLCG(hashString(symbol + ":" + string(interval)))

	start := g.clock.Now().Unix() - int64(count)*spacing
	price := params.BasePrice

	bars := make([]models.Bar, 0, count)
	for i := 0; i < count; i++ {
		change := (rand() - 0.5 + drift) * params.Volatility * 2

		openPrice := price
		closePrice := openPrice * (1 + change)

		spread := math.Abs(closePrice - openPrice)
		high := math.Max(openPrice, closePrice) + rand()*spread*0.5
		low := math.Min(openPrice, closePrice) - rand()*spread*0.5

		volume := 100000 + rand()*900000

		bars = append(bars, models.Bar{
			Time:   start + int64(i)*spacing,
			Open:   precision8(openPrice),
			High:   precision8(high),
			Low:    precision8(low),
			Close:  precision8(closePrice),
			Volume: math.Floor(volume + 0.5),
		})
		price = closePrice
	}
	return bars
}

// newLCG returns a generator of values in [0, 1] from a 32-bit linear congruential sequence
func newLCG(seed uint32) func() float64 {
	s := seed
	return func() float64 {
		s = s*1664525 + 1013904223
		return float64(s) / 0xffffffff
	}
}

// hashString folds the UTF-16 code units of s into a 32-bit seed (h*31 + c, absolute value)
func hashString(s string) uint32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return uint32(abs)
}

// precision8 rounds to 8 significant digits
func precision8(v float64) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 8, 64), 64)
	if err != nil {
		return v
	}
	return f
}
