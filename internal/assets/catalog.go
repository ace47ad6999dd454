// Package assets holds the static table of analyzable pairs and the
// selector that searches it.
package assets

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/irfndi/coinsight-go/internal/models"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// PriceBand bounds the simulated reference price of an asset.
type PriceBand struct {
	Min float64
	Max float64
}

type catalogEntry struct {
	models.AssetDescriptor `yaml:",inline"`
	PriceMin               float64 `yaml:"price_min"`
	PriceMax               float64 `yaml:"price_max"`
}

type catalogFile struct {
	Assets []catalogEntry `yaml:"assets"`
}

// Catalog is the immutable asset table, keyed uniquely by symbol. It is safe
// for concurrent use.
type Catalog struct {
	assets []models.AssetDescriptor
	folded []foldedAsset
	bands  map[string]PriceBand
	index  map[string]int
}

type foldedAsset struct {
	symbol string
	name   string
}

// DefaultCatalog parses the embedded table.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// MustDefaultCatalog is DefaultCatalog for program start-up.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCatalog loads a YAML asset table. Empty or duplicate symbols fail.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse asset catalog: %w", err)
	}

	c := NewCatalog(nil)
	for _, e := range file.Assets {
		if err := c.add(e.AssetDescriptor, PriceBand{Min: e.PriceMin, Max: e.PriceMax}); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewCatalog builds a catalog from descriptors without price bands.
// Duplicate symbols after the first are ignored.
func NewCatalog(descriptors []models.AssetDescriptor) *Catalog {
	c := &Catalog{
		bands: make(map[string]PriceBand),
		index: make(map[string]int),
	}
	for _, d := range descriptors {
		_ = c.add(d, PriceBand{})
	}
	return c
}

func (c *Catalog) add(d models.AssetDescriptor, band PriceBand) error {
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	if d.Symbol == "" {
		return fmt.Errorf("asset catalog entry %q has no symbol", d.DisplayName)
	}
	if _, dup := c.index[d.Symbol]; dup {
		return fmt.Errorf("duplicate asset symbol %q", d.Symbol)
	}
	if band.Max < band.Min {
		return fmt.Errorf("asset %s has inverted price band", d.Symbol)
	}

	fold := cases.Fold()
	c.index[d.Symbol] = len(c.assets)
	c.assets = append(c.assets, d)
	c.folded = append(c.folded, foldedAsset{
		symbol: fold.String(d.Symbol),
		name:   fold.String(d.DisplayName),
	})
	if band.Max > 0 {
		c.bands[d.Symbol] = band
	}
	return nil
}

// All returns a copy of the table in catalog order.
func (c *Catalog) All() []models.AssetDescriptor {
	out := make([]models.AssetDescriptor, len(c.assets))
	copy(out, c.assets)
	return out
}

// Len returns the table size.
func (c *Catalog) Len() int { return len(c.assets) }

// Search returns every asset whose symbol or display name contains query,
// compared under Unicode case folding. Whitespace is part of the query, so
// " " matches only names containing a space. Only the empty query returns
// the whole table. No match yields an empty, non-nil slice.
func (c *Catalog) Search(query string) []models.AssetDescriptor {
	if query == "" {
		return c.All()
	}
	q := cases.Fold().String(query)

	matches := make([]models.AssetDescriptor, 0)
	for i, f := range c.folded {
		if strings.Contains(f.symbol, q) || strings.Contains(f.name, q) {
			matches = append(matches, c.assets[i])
		}
	}
	return matches
}

// Lookup resolves a symbol case-insensitively. "BTC/USDT" resolves the same
// as "BTCUSDT".
func (c *Catalog) Lookup(symbol string) (models.AssetDescriptor, bool) {
	key := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
	i, ok := c.index[key]
	if !ok {
		return models.AssetDescriptor{}, false
	}
	return c.assets[i], true
}

// PriceBand returns the simulated price range for symbol, if configured.
func (c *Catalog) PriceBand(symbol string) (PriceBand, bool) {
	band, ok := c.bands[strings.ToUpper(symbol)]
	return band, ok
}
