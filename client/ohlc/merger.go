package ohlc

import (
	"github.com/linluma/chartsync/shared/models"
)

// Result reports what a tick did to the buffer
type Result int

const (
	ResultDropped Result = iota
	ResultUpdated
	ResultAppended
	ResultMismatch
)

func (r Result) String() string {
	switch r {
	case ResultUpdated:
		return "updated"
	case ResultAppended:
		return "appended"
	case ResultMismatch:
		return "mismatch"
	default:
		return "stale"
	}
}

// Changed reports whether the buffer was modified
func (r Result) Changed() bool {
	return r == ResultUpdated || r == ResultAppended
}

// Merger reconciles live ticks for one stream with its buffer
type Merger struct {
	key    models.SubscriptionKey
	buffer *Buffer
}

// NewMerger binds a merger to the stream key and buffer it maintains
func NewMerger(key models.SubscriptionKey, buffer *Buffer) *Merger {
	return &Merger{key: key, buffer: buffer}
}

// Key returns the stream the merger accepts
func (m *Merger) Key() models.SubscriptionKey {
	return m.key
}

// Buffer returns the maintained buffer
func (m *Merger) Buffer() *Buffer {
	return m.buffer
}

// Apply merges tick into the buffer.
// A tick for the trailing bar's time replaces it, a newer tick appends, an older tick is dropped.
// A closed tick finalizes the trailing bar when it carries the same time.
// Ticks for another symbol or interval are rejected with ResultMismatch
func (m *Merger) Apply(tick models.Tick) (models.Bar, Result) {
	if tick.Key() != m.key {
		return models.Bar{}, ResultMismatch
	}
	bar := tick.Bar
	bar.Placeholder = false
	return bar, m.buffer.merge(bar)
}
