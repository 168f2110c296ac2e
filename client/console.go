package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/linluma/chartsync/client/chart"
	"github.com/linluma/chartsync/client/feed"
	"github.com/linluma/chartsync/shared/models"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  symbol <SYMBOL>       switch symbol
  interval <1m..1M>     switch timeframe
  type <chart type>     candlestick, heikin-ashi, ohlc, line, area
  source <live|synthetic>
  scroll <from> <to>    show bars from..to (indexes)
  backfill              load older history
  bars [n]              print the last n bars
  price                 latest streamed price
  status                connection status
  quit`

// console drives the chart controller from text commands and prints what the chart shows
type console struct {
	out        io.Writer
	controller *chart.Controller
	surface    *chart.MemorySurface
	manager    *feed.Manager

	mu     sync.Mutex
	watch  *feed.Watch
	symbol string
}

func newConsole(out io.Writer, controller *chart.Controller, surface *chart.MemorySurface, manager *feed.Manager) *console {
	return &console{
		out:        out,
		controller: controller,
		surface:    surface,
		manager:    manager,
	}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// ShowStatus prints the connection banner, it is passed to feed.Manager.WatchStatus
func (c *console) ShowStatus(state models.ConnectionState) {
	if banner := state.Banner(); banner != "" {
		c.printf("⚠️ %s\n", banner)
		return
	}
	c.printf("✅ Market data connected\n")
}

// follow prints closed bars streamed for symbol
func (c *console) follow(symbol string) {
	c.mu.Lock()
	if c.symbol == symbol && c.watch != nil {
		c.mu.Unlock()
		return
	}
	prev := c.watch
	c.watch, c.symbol = nil, symbol
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	w := c.manager.Watch(symbol, func(tick models.Tick) {
		if tick.Closed && tick.Interval == c.controller.Config().Interval {
			c.printf("%s\n", formatBar(tick.Key(), tick.Bar))
		}
	})

	c.mu.Lock()
	c.watch = w
	c.mu.Unlock()
}

func (c *console) stop() {
	c.mu.Lock()
	w := c.watch
	c.watch = nil
	c.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// apply switches the chart and reports the outcome
func (c *console) apply(ctx context.Context, cfg chart.ChartConfig) error {
	if err := c.controller.Apply(ctx, cfg); err != nil {
		if errors.Is(err, chart.ErrSuperseded) {
			return nil
		}
		return err
	}
	c.follow(cfg.Symbol)
	bars := c.controller.Bars()
	c.printf("📊 %s %s (%s): %d bars\n", cfg.Key(), cfg.Type, cfg.Source, len(bars))
	return nil
}

// Run reads commands until quit, EOF or ctx is done
func (c *console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := c.execute(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				c.printf("❌ %v\n", err)
			}
		}
	}
}

func (c *console) execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cfg := c.controller.Config()
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		c.printf("%s\n", helpText)
		return nil
	case "symbol":
		if len(args) != 1 {
			return fmt.Errorf("usage: symbol <SYMBOL>")
		}
		cfg.Symbol = strings.ToUpper(args[0])
		return c.apply(ctx, cfg)
	case "interval":
		if len(args) != 1 {
			return fmt.Errorf("usage: interval <1m..1M>")
		}
		interval, err := models.ParseInterval(args[0])
		if err != nil {
			return err
		}
		cfg.Interval = interval
		return c.apply(ctx, cfg)
	case "source":
		if len(args) != 1 {
			return fmt.Errorf("usage: source <live|synthetic>")
		}
		cfg.Source = models.DataSource(strings.ToLower(args[0]))
		return c.apply(ctx, cfg)
	case "type":
		if len(args) != 1 {
			return fmt.Errorf("usage: type <chart type>")
		}
		if err := c.controller.SetChartType(models.ChartType(strings.ToLower(args[0]))); err != nil {
			return err
		}
		c.printf("🎨 chart type %s\n", c.controller.Config().Type)
		return nil
	case "scroll":
		if len(args) != 2 {
			return fmt.Errorf("usage: scroll <from> <to>")
		}
		from, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid from index: %w", err)
		}
		to, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid to index: %w", err)
		}
		return c.surface.ScrollTo(from, to)
	case "backfill":
		before := len(c.controller.Bars())
		if err := c.controller.Backfill(); err != nil {
			return err
		}
		c.printf("⏪ loaded %d older bars\n", len(c.controller.Bars())-before)
		return nil
	case "bars":
		n := 5
		if len(args) == 1 {
			v, err := strconv.Atoi(args[0])
			if err != nil || v <= 0 {
				return fmt.Errorf("usage: bars [n]")
			}
			n = v
		}
		bars := c.controller.Bars()
		if len(bars) > n {
			bars = bars[len(bars)-n:]
		}
		for _, bar := range bars {
			c.printf("%s\n", formatBar(cfg.Key(), bar))
		}
		return nil
	case "price":
		bar, ok := c.manager.LatestPrice(cfg.Symbol)
		if !ok {
			return fmt.Errorf("no price received for %s yet", cfg.Symbol)
		}
		c.printf("💲 %s %.8g\n", cfg.Symbol, bar.Close)
		return nil
	case "status":
		c.ShowStatus(c.manager.State())
		return nil
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

// formatBar renders one bar as a console line
func formatBar(key models.SubscriptionKey, bar models.Bar) string {
	start := time.Unix(bar.Time, 0).UTC()
	ohlcv := fmt.Sprintf("O:%.2f H:%.2f L:%.2f C:%.2f V:%.4f", bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)

	emoji := "🟢"
	if bar.Placeholder {
		emoji = "⬜" // still loading
	}
	return fmt.Sprintf("%s %s | %s | %s", emoji, key, start.Format("2006-01-02 15:04"), ohlcv)
}
