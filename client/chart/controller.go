package chart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/linluma/chartsync/client/feed"
	"github.com/linluma/chartsync/client/history"
	"github.com/linluma/chartsync/client/metrics"
	"github.com/linluma/chartsync/shared/logger"
	"github.com/linluma/chartsync/shared/models"
)

// ErrSuperseded is returned when a newer configuration replaced the one an operation was started for
var ErrSuperseded = errors.New("superseded by a newer chart configuration")

// errNoHistory marks an empty history page on initial load
var errNoHistory = errors.New("history returned no bars")

// ChartConfig selects what the chart shows
type ChartConfig struct {
	Symbol   string
	Interval models.Interval
	Type     models.ChartType
	Source   models.DataSource
}

// Key returns the stream the configuration needs
func (c ChartConfig) Key() models.SubscriptionKey {
	return models.SubscriptionKey{Symbol: c.Symbol, Interval: c.Interval}
}

// Validate checks the configuration fields
func (c ChartConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	if _, err := models.ParseInterval(string(c.Interval)); err != nil {
		return err
	}
	if !c.Type.Valid() {
		return fmt.Errorf("unsupported chart type %q", c.Type)
	}
	if c.Source != models.SourceLive && c.Source != models.SourceSynthetic {
		return fmt.Errorf("unsupported data source %q", c.Source)
	}
	return nil
}

// Feed is the live side the controller subscribes through
type Feed interface {
	Subscribe(key models.SubscriptionKey) error
	Unsubscribe(key models.SubscriptionKey) error
	Watch(symbol string, observer feed.TickObserver) *feed.Watch
}

// Generator produces offline bars
type Generator interface {
	Generate(symbol string, interval models.Interval) []models.Bar
}

// Options tunes the controller
type Options struct {
	HistoryLimit      int
	BackfillCount     int
	BackfillThreshold int
	Logger            *logger.Logger
	Metrics           *metrics.Metrics
}

// Controller keeps the surface in sync with the selected symbol, interval and chart type
type Controller struct {
	surface    Surface
	history    HistorySource
	feed       Feed
	generator  Generator
	backfiller *Backfiller
	limit      int
	log        *logger.Logger
	metrics    *metrics.Metrics

	mu     sync.Mutex
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	config ChartConfig
	view   *view

	// subMu orders subscribe/unsubscribe calls without holding mu across feed I/O
	subMu      sync.Mutex
	subscribed *models.SubscriptionKey
	watch      *feed.Watch

	stopScroll func()
	wg         sync.WaitGroup
}

// NewController wires the controller to its collaborators and starts listening for scrolls
func NewController(surface Surface, source HistorySource, f Feed, generator Generator, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 500
	}
	if opts.BackfillCount <= 0 {
		opts.BackfillCount = 500
	}
	if opts.BackfillThreshold <= 0 {
		opts.BackfillThreshold = 10
	}

	c := &Controller{
		surface:    surface,
		history:    source,
		feed:       f,
		generator:  generator,
		backfiller: NewBackfiller(source, opts.BackfillCount, opts.BackfillThreshold, opts.Logger, opts.Metrics),
		limit:      opts.HistoryLimit,
		log:        opts.Logger.WithFields(logger.NewField("component", "chart")),
		metrics:    opts.Metrics,
		ctx:        context.Background(),
	}
	c.stopScroll = surface.TimeScale().OnVisibleLogicalRangeChange(c.handleScroll)
	return c
}

// Config returns the most recently requested configuration
func (c *Controller) Config() ChartConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Bars returns a copy of the displayed buffer
func (c *Controller) Bars() []models.Bar {
	c.mu.Lock()
	v := c.view
	c.mu.Unlock()
	if v == nil {
		return nil
	}
	return v.bars()
}

// Backfiller exposes the history loader
func (c *Controller) Backfiller() *Backfiller {
	return c.backfiller
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// Apply switches the chart to cfg. A result that resolves after a newer Apply returns ErrSuperseded
// and leaves the surface untouched. History failures fall back to synthetic bars and are not returned
func (c *Controller) Apply(ctx context.Context, cfg ChartConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = ctx, cancel

	prev := c.config
	prevView := c.view
	c.config = cfg

	var captured *TimeRange
	if prevView != nil && prev.Symbol == cfg.Symbol && prev.Interval != cfg.Interval {
		if r, ok := c.surface.TimeScale().VisibleRange(); ok {
			captured = &r
		}
	}
	c.mu.Unlock()

	c.releaseStream()

	bars, live := c.load(ctx, cfg)
	if !c.isCurrent(gen) {
		return ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if c.view != nil {
		c.view.detach()
	}
	// SetChartType may have run while the history was loading
	cfg.Type = c.config.Type
	v := newView(gen, cfg, live, bars, c.surface, c.isCurrent)
	c.view = v
	err := v.draw()
	if err == nil {
		c.restoreViewport(live, captured)
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to draw %s: %w", cfg.Key(), err)
	}

	if live {
		c.acquireStream(gen, cfg)
	}

	c.log.Info("chart configuration applied",
		logger.NewField("key", cfg.Key().String()),
		logger.NewField("type", string(cfg.Type)),
		logger.NewField("live", live),
		logger.NewField("bars", len(bars)),
	)
	return nil
}

// load fetches the latest history, or generates bars for the synthetic source or after a failure
func (c *Controller) load(ctx context.Context, cfg ChartConfig) ([]models.Bar, bool) {
	if cfg.Source == models.SourceLive {
		bars, err := c.history.FetchCandles(ctx, cfg.Symbol, cfg.Interval, history.Options{Limit: c.limit})
		if err == nil && len(bars) == 0 {
			err = errNoHistory
		}
		if err == nil {
			return bars, true
		}
		if ctx.Err() != nil {
			return nil, false
		}
		c.metrics.HistoryFailed()
		c.metrics.SyntheticFallback()
		c.log.Warn("history unavailable, falling back to synthetic data",
			logger.NewField("key", cfg.Key().String()),
			logger.NewField("error", err.Error()),
		)
	}
	return c.generator.Generate(cfg.Symbol, cfg.Interval), false
}

// restoreViewport shows the captured range or fits the new data. Caller holds c.mu so a newer
// Apply cannot draw in between
func (c *Controller) restoreViewport(live bool, captured *TimeRange) {
	scale := c.surface.TimeScale()
	if live && captured != nil {
		if err := scale.SetVisibleRange(*captured); err == nil {
			return
		}
	}
	scale.FitContent()
}

// releaseStream drops the previous subscription and tick watch
func (c *Controller) releaseStream() {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.watch != nil {
		c.watch.Stop()
		c.watch = nil
	}
	if c.subscribed == nil {
		return
	}
	key := *c.subscribed
	c.subscribed = nil
	if err := c.feed.Unsubscribe(key); err != nil {
		c.log.Warn("unsubscribe failed", logger.NewField("key", key.String()), logger.NewField("error", err.Error()))
	}
}

// acquireStream subscribes to cfg unless a newer configuration got there first
func (c *Controller) acquireStream(gen uint64, cfg ChartConfig) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if !c.isCurrent(gen) {
		return
	}
	key := cfg.Key()
	c.subscribed = &key
	c.watch = c.feed.Watch(cfg.Symbol, c.HandleTick)
	if err := c.feed.Subscribe(key); err != nil {
		// the registry keeps the key, it is replayed on the next connect
		c.log.Warn("subscribe failed", logger.NewField("key", key.String()), logger.NewField("error", err.Error()))
	}
}

// SetChartType redraws the price series in a new style. The volume series is left alone
func (c *Controller) SetChartType(chartType models.ChartType) error {
	if !chartType.Valid() {
		return fmt.Errorf("unsupported chart type %q", chartType)
	}

	c.mu.Lock()
	c.config.Type = chartType
	v := c.view
	c.mu.Unlock()

	if v == nil {
		return nil
	}
	err := v.switchType(chartType)
	if errors.Is(err, ErrNoSeries) && v.Stale() {
		// replaced meanwhile, the new view is drawn with chartType
		return nil
	}
	return err
}

// HandleTick merges a live tick into the displayed buffer. Ticks for other streams are ignored
func (c *Controller) HandleTick(tick models.Tick) {
	c.mu.Lock()
	v := c.view
	c.mu.Unlock()

	if v == nil {
		return
	}
	result, err := v.applyTick(tick)
	switch {
	case err != nil:
		c.log.Debug("tick not drawn", logger.NewField("key", tick.Key().String()), logger.NewField("error", err.Error()))
	case result.Changed():
		c.metrics.TickApplied(result.String())
	default:
		c.metrics.TickDropped(result.String())
	}
}

// Backfill loads older history into the current view
func (c *Controller) Backfill() error {
	c.mu.Lock()
	v := c.view
	ctx := c.ctx
	c.mu.Unlock()

	if v == nil {
		return ErrNoSeries
	}
	return c.backfiller.Load(ctx, v)
}

func (c *Controller) handleScroll(r LogicalRange) {
	if !c.backfiller.ShouldLoad(r) || c.backfiller.Loading() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.Backfill()
		if err != nil && !errors.Is(err, ErrBackfillBusy) && !errors.Is(err, ErrSuperseded) {
			c.log.Warn("backfill did not complete", logger.NewField("error", err.Error()))
		}
	}()
}

// Close stops listening, cancels in-flight work and releases the subscription
func (c *Controller) Close() {
	c.stopScroll()

	c.mu.Lock()
	c.gen++
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.releaseStream()
}

var _ Target = (*view)(nil)
