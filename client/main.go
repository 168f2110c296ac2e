package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linluma/chartsync/client/chart"
	"github.com/linluma/chartsync/client/feed"
	"github.com/linluma/chartsync/client/history"
	"github.com/linluma/chartsync/client/metrics"
	"github.com/linluma/chartsync/client/server"
	"github.com/linluma/chartsync/client/synthetic"
	"github.com/linluma/chartsync/shared/config"
	"github.com/linluma/chartsync/shared/logger"
	"github.com/linluma/chartsync/shared/models"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if err := config.ParseClientFlags(cfg, os.Args[1:]); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	lg, err := logger.New(logger.WithLevel(logger.Level(cfg.LogLevel)), logger.WithOutputPaths([]string{"stderr"}))
	if err != nil {
		log.Fatalf("❌ Failed to create logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg, os.Stdin, os.Stdout); err != nil {
		lg.Error(err)
		os.Exit(1)
	}
}

// run wires the feed, history client, chart controller and the health/metrics endpoints,
// then reads console commands until quit or shutdown
func run(ctx context.Context, cfg *config.ClientConfig, lg *logger.Logger, in io.Reader, out io.Writer) error {
	catalog := synthetic.DefaultCatalog()
	if cfg.SymbolCatalog != "" {
		loaded, err := synthetic.LoadCatalog(cfg.SymbolCatalog)
		if err != nil {
			return err
		}
		catalog = loaded
	}

	m := metrics.New()
	manager := feed.NewManager(feed.Options{
		URL:              cfg.Feed.URL,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		Retry: feed.RetryConfig{
			InitialDelay:        cfg.Feed.InitialDelay,
			MaxDelay:            cfg.Feed.MaxDelay,
			MaxJitter:           cfg.Feed.MaxJitter,
			DisconnectThreshold: cfg.Feed.DisconnectThreshold,
		},
		Logger:  lg,
		Metrics: m,
	})

	surface := chart.NewMemorySurface()
	controller := chart.NewController(
		surface,
		history.NewClient(cfg.History.BaseURL, cfg.History.Timeout, lg),
		manager,
		synthetic.NewGenerator(catalog, nil),
		chart.Options{
			HistoryLimit:      cfg.History.Limit,
			BackfillCount:     cfg.Chart.BackfillCount,
			BackfillThreshold: cfg.Chart.BackfillThreshold,
			Logger:            lg,
			Metrics:           m,
		},
	)
	defer controller.Close()

	con := newConsole(out, controller, surface, manager)
	defer con.stop()

	health := server.NewHealthServer(lg)
	statusWatch := manager.WatchStatus(func(state models.ConnectionState) {
		health.Observe(state)
		con.ShowStatus(state)
	})
	defer statusWatch.Stop()

	lease := manager.Attach()
	defer lease.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return health.ListenAndServe(gctx, cfg.HealthPort)
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsAddr, m, lg)
	})
	g.Go(func() error {
		defer cancel()
		initial := chart.ChartConfig{
			Symbol:   cfg.Chart.Symbol,
			Interval: models.Interval(cfg.Chart.Interval),
			Type:     models.ChartType(cfg.Chart.Type),
			Source:   models.DataSource(cfg.Chart.Source),
		}
		if err := con.apply(gctx, initial); err != nil {
			return fmt.Errorf("failed to load chart: %w", err)
		}
		con.printf("Type help for commands\n")
		return con.Run(gctx, in)
	})

	return g.Wait()
}

// serveMetrics exposes the Prometheus registry until ctx is done
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, lg *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("metrics server listening", logger.NewField("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
