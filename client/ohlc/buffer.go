package ohlc

import (
	"sort"
	"sync"

	"github.com/linluma/chartsync/shared/models"
)

// Buffer holds the bars of one chart configuration in strictly ascending time order
type Buffer struct {
	mu   sync.RWMutex
	bars []models.Bar
}

// Snapshot is an opaque copy of a buffer's contents, see Buffer.Restore
type Snapshot struct {
	bars []models.Bar
}

// NewBuffer creates a buffer from bars, sorting them and keeping the last of any duplicate time
func NewBuffer(bars []models.Bar) *Buffer {
	return &Buffer{bars: normalize(bars)}
}

// normalize returns a sorted copy of bars with unique times
func normalize(bars []models.Bar) []models.Bar {
	out := make([]models.Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})

	unique := out[:0]
	for _, bar := range out {
		if n := len(unique); n > 0 && unique[n-1].Time == bar.Time {
			unique[n-1] = bar
			continue
		}
		unique = append(unique, bar)
	}
	return unique
}

// Len returns the number of bars
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bars)
}

// Bars returns a copy of the bars
func (b *Buffer) Bars() []models.Bar {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Bar, len(b.bars))
	copy(out, b.bars)
	return out
}

// First returns the oldest bar
func (b *Buffer) First() (models.Bar, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bars) == 0 {
		return models.Bar{}, false
	}
	return b.bars[0], true
}

// Last returns the newest bar
func (b *Buffer) Last() (models.Bar, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bars) == 0 {
		return models.Bar{}, false
	}
	return b.bars[len(b.bars)-1], true
}

// Prepend adds older bars in front of the buffer. Bars not strictly older than the
// current first bar are ignored. Returns how many bars were added
func (b *Buffer) Prepend(older []models.Bar) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	candidates := normalize(older)
	if len(b.bars) > 0 {
		oldest := b.bars[0].Time
		cut := sort.Search(len(candidates), func(i int) bool {
			return candidates[i].Time >= oldest
		})
		candidates = candidates[:cut]
	}
	if len(candidates) == 0 {
		return 0
	}

	combined := make([]models.Bar, 0, len(candidates)+len(b.bars))
	combined = append(combined, candidates...)
	combined = append(combined, b.bars...)
	b.bars = combined
	return len(candidates)
}

// StripPlaceholders removes every placeholder bar and returns how many were removed
func (b *Buffer) StripPlaceholders() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := make([]models.Bar, 0, len(b.bars))
	for _, bar := range b.bars {
		if !bar.Placeholder {
			kept = append(kept, bar)
		}
	}
	removed := len(b.bars) - len(kept)
	b.bars = kept
	return removed
}

// Placeholders counts placeholder bars
func (b *Buffer) Placeholders() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, bar := range b.bars {
		if bar.Placeholder {
			n++
		}
	}
	return n
}

// Snapshot captures the buffer so a tentative change can be rolled back
func (b *Buffer) Snapshot() Snapshot {
	return Snapshot{bars: b.Bars()}
}

// Restore replaces the buffer contents with s
func (b *Buffer) Restore(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars = make([]models.Bar, len(s.bars))
	copy(b.bars, s.bars)
}

// merge applies a bar to the tail of the buffer
func (b *Buffer) merge(bar models.Bar) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.bars)
	switch {
	case n == 0 || bar.Time > b.bars[n-1].Time:
		b.bars = append(b.bars, bar)
		return ResultAppended
	case bar.Time == b.bars[n-1].Time:
		b.bars[n-1] = bar
		return ResultUpdated
	default:
		return ResultDropped
	}
}

// MakePlaceholders builds count flat bars ending one interval before oldest.
// They are returned in ascending order, priced at oldest.Close with zero volume
func MakePlaceholders(oldest models.Bar, count int, spacing int64) []models.Bar {
	out := make([]models.Bar, 0, count)
	for k := count; k >= 1; k-- {
		out = append(out, models.Bar{
			Time:        oldest.Time - int64(k)*spacing,
			Open:        oldest.Close,
			High:        oldest.Close,
			Low:         oldest.Close,
			Close:       oldest.Close,
			Placeholder: true,
		})
	}
	return out
}
