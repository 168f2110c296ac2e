package models

import (
	"errors"
	"fmt"
)

// ErrUnknownInterval is returned when a timeframe name is not supported
var ErrUnknownInterval = errors.New("unknown interval")

// Interval is a chart timeframe such as "1m" or "1D"
type Interval string

// Supported intervals
const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1H  Interval = "1H"
	Interval4H  Interval = "4H"
	Interval1D  Interval = "1D"
	Interval1W  Interval = "1W"
	Interval1M  Interval = "1M"
)

// AllIntervals lists every supported timeframe in ascending duration
var AllIntervals = []Interval{
	Interval1m, Interval5m, Interval15m, Interval30m,
	Interval1H, Interval4H, Interval1D, Interval1W, Interval1M,
}

var intervalSeconds = map[Interval]int64{
	Interval1m:  60,
	Interval5m:  300,
	Interval15m: 900,
	Interval30m: 1800,
	Interval1H:  3600,
	Interval4H:  14400,
	Interval1D:  86400,
	Interval1W:  604800,
	Interval1M:  2592000, // fixed 30-day month
}

// ParseInterval validates a timeframe name
func ParseInterval(name string) (Interval, error) {
	iv := Interval(name)
	if _, ok := intervalSeconds[iv]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownInterval, name)
	}
	return iv, nil
}

// Seconds returns the bar spacing of the interval, or 0 if unknown
func (i Interval) Seconds() int64 {
	return intervalSeconds[i]
}

func (i Interval) String() string {
	return string(i)
}
