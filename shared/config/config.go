package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/linluma/chartsync/shared/models"
)

// ClientConfig holds configuration for the chart client
type ClientConfig struct {
	Feed    FeedConfig    `envPrefix:"FEED_"`
	History HistoryConfig `envPrefix:"HISTORY_"`
	Chart   ChartConfig   `envPrefix:"CHART_"`

	SymbolCatalog string `env:"SYMBOL_CATALOG"` // optional YAML file
	HealthPort    int    `env:"HEALTH_PORT" envDefault:"50052"`
	MetricsAddr   string `env:"METRICS_ADDR" envDefault:":9091"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
}

// FeedConfig holds the streaming connection settings
type FeedConfig struct {
	URL                 string        `env:"URL" envDefault:"ws://localhost:8000/api/v1/market-data/ws"`
	HandshakeTimeout    time.Duration `env:"HANDSHAKE_TIMEOUT" envDefault:"10s"`
	InitialDelay        time.Duration `env:"INITIAL_DELAY" envDefault:"1s"`
	MaxDelay            time.Duration `env:"MAX_DELAY" envDefault:"30s"`
	MaxJitter           time.Duration `env:"MAX_JITTER" envDefault:"1s"`
	DisconnectThreshold int           `env:"DISCONNECT_THRESHOLD" envDefault:"5"`
}

// HistoryConfig holds the REST history endpoint settings
type HistoryConfig struct {
	BaseURL string        `env:"BASE_URL" envDefault:"http://localhost:8000/api/v1/market-data"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
	Limit   int           `env:"LIMIT" envDefault:"500"`
}

// ChartConfig holds the initial chart configuration and backfill tuning
type ChartConfig struct {
	Symbol            string `env:"SYMBOL" envDefault:"BTCUSDT"`
	Interval          string `env:"INTERVAL" envDefault:"1D"`
	Type              string `env:"TYPE" envDefault:"candlestick"`
	Source            string `env:"SOURCE" envDefault:"live"`
	BackfillCount     int    `env:"BACKFILL_COUNT" envDefault:"500"`
	BackfillThreshold int    `env:"BACKFILL_THRESHOLD" envDefault:"10"`
}

// Load reads the client configuration from the environment, loading .env first if present
func Load() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := &ClientConfig{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "CHARTSYNC_"}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ParseClientFlags applies command line overrides on top of cfg
func ParseClientFlags(cfg *ClientConfig, args []string) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&cfg.Feed.URL, "ws", cfg.Feed.URL, "Market data websocket URL")
	fs.StringVar(&cfg.History.BaseURL, "history", cfg.History.BaseURL, "History REST base URL")
	fs.StringVar(&cfg.Chart.Symbol, "symbol", cfg.Chart.Symbol, "Symbol to chart")
	fs.StringVar(&cfg.Chart.Interval, "interval", cfg.Chart.Interval, "Chart timeframe (1m..1M)")
	fs.StringVar(&cfg.Chart.Type, "type", cfg.Chart.Type, "Chart type (candlestick/heikin-ashi/ohlc/line/area)")
	fs.StringVar(&cfg.Chart.Source, "source", cfg.Chart.Source, "Data source (live/synthetic)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate checks the chart selection and tuning values
func (c *ClientConfig) Validate() error {
	if c.Chart.Symbol == "" {
		return fmt.Errorf("symbol must not be empty")
	}
	if _, err := models.ParseInterval(c.Chart.Interval); err != nil {
		return err
	}
	if !models.ChartType(c.Chart.Type).Valid() {
		return fmt.Errorf("unsupported chart type %q", c.Chart.Type)
	}
	switch models.DataSource(c.Chart.Source) {
	case models.SourceLive, models.SourceSynthetic:
	default:
		return fmt.Errorf("unsupported data source %q", c.Chart.Source)
	}
	if c.Chart.BackfillCount <= 0 || c.History.Limit <= 0 {
		return fmt.Errorf("backfill count and history limit must be positive")
	}
	if c.Feed.DisconnectThreshold <= 0 {
		return fmt.Errorf("disconnect threshold must be positive")
	}
	return nil
}
