package chart

import (
	"sync"

	"github.com/linluma/chartsync/client/ohlc"
	"github.com/linluma/chartsync/shared/models"
)

// view is the drawn state of one chart configuration: its buffer and the two series showing it.
// Ticks, backfills and chart type switches all go through its lock
type view struct {
	mu        sync.Mutex
	gen       uint64
	key       models.SubscriptionKey
	chartType models.ChartType
	live      bool
	buffer    *ohlc.Buffer
	merger    *ohlc.Merger
	surface   Surface
	main      Series
	volume    Series
	current   func(gen uint64) bool
}

func newView(gen uint64, cfg ChartConfig, live bool, bars []models.Bar, surface Surface, current func(uint64) bool) *view {
	key := cfg.Key()
	buffer := ohlc.NewBuffer(bars)
	return &view{
		gen:       gen,
		key:       key,
		chartType: cfg.Type,
		live:      live,
		buffer:    buffer,
		merger:    ohlc.NewMerger(key, buffer),
		surface:   surface,
		current:   current,
	}
}

// draw creates both series and fills them
func (v *view) draw() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.main = v.surface.AddSeries(KindFor(v.chartType), mainOptions(v.chartType))
	v.volume = v.surface.AddSeries(KindHistogram, volumeOptions)
	return v.renderLocked()
}

// detach removes both series. Later draws fail with ErrNoSeries
func (v *view) detach() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.main != nil {
		v.surface.RemoveSeries(v.main)
		v.main = nil
	}
	if v.volume != nil {
		v.surface.RemoveSeries(v.volume)
		v.volume = nil
	}
}

func (v *view) renderLocked() error {
	if v.main == nil || v.volume == nil {
		return ErrNoSeries
	}
	bars := v.buffer.Bars()
	if err := v.main.SetData(MainPoints(v.chartType, bars)); err != nil {
		return err
	}
	return v.volume.SetData(VolumePoints(bars))
}

// Key returns the stream the view shows
func (v *view) Key() models.SubscriptionKey {
	return v.key
}

// Oldest returns the first bar of the buffer
func (v *view) Oldest() (models.Bar, bool) {
	return v.buffer.First()
}

// Stale reports whether a newer configuration replaced this view
func (v *view) Stale() bool {
	return !v.current(v.gen)
}

// Mutate applies fn to the buffer and redraws both series while keeping the viewport.
// If the redraw fails the buffer is rolled back
func (v *view) Mutate(fn func(buf *ohlc.Buffer)) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.main == nil || v.volume == nil {
		return ErrNoSeries
	}

	scale := v.surface.TimeScale()
	saved, hasRange := scale.VisibleRange()
	snapshot := v.buffer.Snapshot()

	fn(v.buffer)
	if err := v.renderLocked(); err != nil {
		v.buffer.Restore(snapshot)
		return err
	}

	if hasRange {
		if err := scale.SetVisibleRange(saved); err != nil {
			scale.FitContent()
		}
	}
	return nil
}

// applyTick merges a live tick and pushes the changed bar to both series
func (v *view) applyTick(tick models.Tick) (ohlc.Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.live {
		return ohlc.ResultMismatch, nil
	}
	bar, result := v.merger.Apply(tick)
	if !result.Changed() {
		return result, nil
	}
	if v.main == nil || v.volume == nil {
		return result, ErrNoSeries
	}

	point := mainPoint(v.chartType, bar)
	if v.chartType == models.ChartHeikinAshi {
		point, _ = lastMainPoint(v.chartType, v.buffer.Bars())
	}
	if err := v.main.Update(point); err != nil {
		return result, err
	}
	return result, v.volume.Update(volumePoint(bar))
}

// switchType replaces the price series only; the volume series and its data stay as they are
func (v *view) switchType(chartType models.ChartType) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.volume == nil {
		return ErrNoSeries
	}
	if v.main != nil {
		v.surface.RemoveSeries(v.main)
	}
	v.chartType = chartType
	v.main = v.surface.AddSeries(KindFor(chartType), mainOptions(chartType))
	if err := v.main.SetData(MainPoints(chartType, v.buffer.Bars())); err != nil {
		return err
	}
	v.surface.TimeScale().FitContent()
	return nil
}

func (v *view) bars() []models.Bar {
	return v.buffer.Bars()
}
