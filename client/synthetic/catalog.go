package synthetic

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Symbol describes how synthetic bars are shaped for one instrument
type Symbol struct {
	Symbol     string  `yaml:"symbol"`
	Name       string  `yaml:"name"`
	BasePrice  float64 `yaml:"base_price"`
	Volatility float64 `yaml:"volatility"`
}

// Catalog is the set of known symbols. The first entry is the default
type Catalog struct {
	Symbols []Symbol `yaml:"symbols"`
}

// DefaultCatalog returns the built-in crypto symbols
func DefaultCatalog() *Catalog {
	return &Catalog{Symbols: []Symbol{
		{Symbol: "BTCUSDT", Name: "Bitcoin", BasePrice: 67000, Volatility: 0.025},
		{Symbol: "ETHUSDT", Name: "Ethereum", BasePrice: 3400, Volatility: 0.03},
		{Symbol: "SOLUSDT", Name: "Solana", BasePrice: 175, Volatility: 0.04},
		{Symbol: "BNBUSDT", Name: "BNB", BasePrice: 600, Volatility: 0.025},
		{Symbol: "XRPUSDT", Name: "XRP", BasePrice: 0.62, Volatility: 0.035},
		{Symbol: "ADAUSDT", Name: "Cardano", BasePrice: 0.45, Volatility: 0.04},
		{Symbol: "DOGEUSDT", Name: "Dogecoin", BasePrice: 0.08, Volatility: 0.05},
		{Symbol: "AVAXUSDT", Name: "Avalanche", BasePrice: 35, Volatility: 0.04},
		{Symbol: "DOTUSDT", Name: "Polkadot", BasePrice: 7.5, Volatility: 0.035},
		{Symbol: "LINKUSDT", Name: "Chainlink", BasePrice: 15, Volatility: 0.035},
	}}
}

// LoadCatalog reads a catalog from a YAML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read symbol catalog '%s': %w", path, err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse symbol catalog from YAML: %w", err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("symbol catalog validation failed: %w", err)
	}
	return &catalog, nil
}

// Validate checks that the catalog is usable
func (c *Catalog) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("catalog must list at least one symbol")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbol name cannot be empty")
		}
		if seen[s.Symbol] {
			return fmt.Errorf("duplicate symbol %s", s.Symbol)
		}
		seen[s.Symbol] = true
		if s.BasePrice <= 0 {
			return fmt.Errorf("%s: base price must be greater than 0", s.Symbol)
		}
		if s.Volatility <= 0 || s.Volatility >= 1 {
			return fmt.Errorf("%s: volatility must be in (0, 1)", s.Symbol)
		}
	}
	return nil
}

// Lookup returns the entry for symbol, falling back to the default entry
func (c *Catalog) Lookup(symbol string) (Symbol, bool) {
	for _, s := range c.Symbols {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return c.Symbols[0], false
}

// Names lists the catalog symbols in order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		names[i] = s.Symbol
	}
	return names
}
