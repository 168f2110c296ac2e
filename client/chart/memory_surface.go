package chart

import (
	"fmt"
	"sort"
	"sync"
)

// MemorySurface is an in-process Surface that keeps series data in memory.
// It backs the headless client and the controller tests
type MemorySurface struct {
	mu        sync.Mutex
	series    []*MemorySeries
	visible   *TimeRange
	listeners map[int]func(LogicalRange)
	nextID    int
	fits      int
}

// MemorySeries is a series drawn on a MemorySurface
type MemorySeries struct {
	surface *MemorySurface
	kind    SeriesKind
	opts    SeriesOptions
	data    []Point
	updates int
	removed bool
}

// NewMemorySurface creates an empty surface
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{listeners: make(map[int]func(LogicalRange))}
}

func (s *MemorySurface) AddSeries(kind SeriesKind, opts SeriesOptions) Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := &MemorySeries{surface: s, kind: kind, opts: opts}
	s.series = append(s.series, series)
	return series
}

func (s *MemorySurface) RemoveSeries(target Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, series := range s.series {
		if Series(series) == target {
			series.removed = true
			s.series = append(s.series[:i], s.series[i+1:]...)
			return
		}
	}
}

func (s *MemorySurface) TimeScale() TimeScale {
	return s
}

// Series returns the live series in creation order
func (s *MemorySurface) Series() []*MemorySeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*MemorySeries(nil), s.series...)
}

// Fits counts FitContent calls
func (s *MemorySurface) Fits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fits
}

// reference returns the longest series, which defines the logical index space. Caller holds s.mu
func (s *MemorySurface) reference() []Point {
	var ref []Point
	for _, series := range s.series {
		if len(series.data) > len(ref) {
			ref = series.data
		}
	}
	return ref
}

func (s *MemorySurface) VisibleRange() (TimeRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible == nil {
		return TimeRange{}, false
	}
	return *s.visible, true
}

func (s *MemorySurface) SetVisibleRange(r TimeRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := s.reference()
	if len(ref) == 0 || r.To < ref[0].Time || r.From > ref[len(ref)-1].Time || r.From > r.To {
		return fmt.Errorf("%w: [%d, %d]", ErrRangeOutOfBounds, r.From, r.To)
	}
	s.visible = &r
	return nil
}

func (s *MemorySurface) VisibleLogicalRange() (LogicalRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logicalLocked()
}

func (s *MemorySurface) logicalLocked() (LogicalRange, bool) {
	ref := s.reference()
	if s.visible == nil || len(ref) == 0 {
		return LogicalRange{}, false
	}
	return LogicalRange{
		From: logicalIndex(ref, s.visible.From),
		To:   logicalIndex(ref, s.visible.To),
	}, true
}

// logicalIndex maps a time onto bar indexes, extrapolating left of the first bar
func logicalIndex(ref []Point, t int64) float64 {
	if t < ref[0].Time && len(ref) > 1 {
		spacing := ref[1].Time - ref[0].Time
		if spacing > 0 {
			return -float64(ref[0].Time-t) / float64(spacing)
		}
	}
	return float64(sort.Search(len(ref), func(i int) bool {
		return ref[i].Time >= t
	}))
}

func (s *MemorySurface) FitContent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fits++
	ref := s.reference()
	if len(ref) == 0 {
		s.visible = nil
		return
	}
	s.visible = &TimeRange{From: ref[0].Time, To: ref[len(ref)-1].Time}
}

func (s *MemorySurface) OnVisibleLogicalRangeChange(fn func(LogicalRange)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// ScrollTo shows bars from..to (indexes into the longest series) and notifies listeners,
// as a user drag would
func (s *MemorySurface) ScrollTo(from, to int) error {
	s.mu.Lock()
	ref := s.reference()
	if len(ref) == 0 {
		s.mu.Unlock()
		return ErrNoSeries
	}
	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i >= len(ref) {
			return len(ref) - 1
		}
		return i
	}
	s.visible = &TimeRange{From: ref[clamp(from)].Time, To: ref[clamp(to)].Time}
	logical, _ := s.logicalLocked()
	listeners := make([]func(LogicalRange), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(logical)
	}
	return nil
}

func (m *MemorySeries) Kind() SeriesKind {
	return m.kind
}

// Options returns the options the series was created with
func (m *MemorySeries) Options() SeriesOptions {
	return m.opts
}

func (m *MemorySeries) SetData(points []Point) error {
	m.surface.mu.Lock()
	defer m.surface.mu.Unlock()
	if m.removed {
		return ErrNoSeries
	}
	m.data = append([]Point(nil), points...)
	return nil
}

// Update replaces the last point when the time matches and appends newer points
func (m *MemorySeries) Update(point Point) error {
	m.surface.mu.Lock()
	defer m.surface.mu.Unlock()
	if m.removed {
		return ErrNoSeries
	}
	n := len(m.data)
	switch {
	case n == 0 || point.Time > m.data[n-1].Time:
		m.data = append(m.data, point)
	case point.Time == m.data[n-1].Time:
		m.data[n-1] = point
	default:
		return fmt.Errorf("cannot update point at %d older than last point %d", point.Time, m.data[n-1].Time)
	}
	m.updates++
	return nil
}

// Data returns a copy of the series points
func (m *MemorySeries) Data() []Point {
	m.surface.mu.Lock()
	defer m.surface.mu.Unlock()
	return append([]Point(nil), m.data...)
}

// Updates counts incremental updates
func (m *MemorySeries) Updates() int {
	m.surface.mu.Lock()
	defer m.surface.mu.Unlock()
	return m.updates
}
