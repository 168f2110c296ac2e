package chart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/linluma/chartsync/client/history"
	"github.com/linluma/chartsync/client/metrics"
	"github.com/linluma/chartsync/client/ohlc"
	"github.com/linluma/chartsync/shared/logger"
	"github.com/linluma/chartsync/shared/models"
)

// ErrBackfillBusy is returned when a backfill is requested while one is loading
var ErrBackfillBusy = errors.New("backfill already in progress")

// HistorySource fetches bars from the history endpoint
type HistorySource interface {
	FetchCandles(ctx context.Context, symbol string, interval models.Interval, opts history.Options) ([]models.Bar, error)
}

// Target is the chart state a backfill extends
type Target interface {
	Key() models.SubscriptionKey
	Oldest() (models.Bar, bool)
	// Mutate changes the buffer and redraws it without moving the viewport
	Mutate(fn func(buf *ohlc.Buffer)) error
	Stale() bool
}

// Backfiller loads older history when the viewport nears the left edge, showing placeholders meanwhile
type Backfiller struct {
	source    HistorySource
	count     int
	threshold float64
	log       *logger.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	loading bool
}

// NewBackfiller creates a backfiller loading count bars whenever fewer than threshold bars
// remain left of the viewport
func NewBackfiller(source HistorySource, count, threshold int, log *logger.Logger, m *metrics.Metrics) *Backfiller {
	if log == nil {
		log = logger.NewNop()
	}
	return &Backfiller{
		source:    source,
		count:     count,
		threshold: float64(threshold),
		log:       log.WithFields(logger.NewField("component", "backfill")),
		metrics:   m,
	}
}

// ShouldLoad reports whether the visible range is close enough to the oldest bar
func (b *Backfiller) ShouldLoad(r LogicalRange) bool {
	return r.From < b.threshold
}

// Loading reports whether a backfill is in flight
func (b *Backfiller) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

func (b *Backfiller) begin() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loading {
		return false
	}
	b.loading = true
	return true
}

func (b *Backfiller) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loading = false
}

// Load prepends up to count older bars to t. Placeholders fill the gap until the fetch resolves
// and are always gone when Load returns, whichever way the fetch went
func (b *Backfiller) Load(ctx context.Context, t Target) error {
	if !b.begin() {
		return ErrBackfillBusy
	}
	defer b.end()

	oldest, ok := t.Oldest()
	if !ok {
		return nil
	}
	key := t.Key()

	placeholders := ohlc.MakePlaceholders(oldest, b.count, key.Interval.Seconds())
	if err := t.Mutate(func(buf *ohlc.Buffer) {
		buf.Prepend(placeholders)
	}); err != nil {
		return fmt.Errorf("failed to show placeholders: %w", err)
	}

	bars, err := b.source.FetchCandles(ctx, key.Symbol, key.Interval, history.Options{
		EndTime: oldest.Time - 1,
		Limit:   b.count,
	})

	if t.Stale() {
		b.metrics.BackfillDone("stale")
		return ErrSuperseded
	}

	if err != nil {
		b.metrics.HistoryFailed()
		b.metrics.BackfillDone("failure")
		b.log.Warn("backfill failed, removing placeholders",
			logger.NewField("key", key.String()),
			logger.NewField("error", err.Error()),
		)
		if merr := t.Mutate(func(buf *ohlc.Buffer) {
			buf.StripPlaceholders()
		}); merr != nil {
			return fmt.Errorf("failed to remove placeholders: %w", merr)
		}
		return fmt.Errorf("backfill %s: %w", key, err)
	}

	var added int
	if err := t.Mutate(func(buf *ohlc.Buffer) {
		buf.StripPlaceholders()
		added = buf.Prepend(bars)
	}); err != nil {
		return fmt.Errorf("failed to draw backfilled bars: %w", err)
	}

	b.metrics.BackfillDone("success")
	b.log.Info("backfill complete",
		logger.NewField("key", key.String()),
		logger.NewField("fetched", len(bars)),
		logger.NewField("added", added),
	)
	return nil
}
