package analysis

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/irfndi/coinsight-go/internal/assets"
	"github.com/irfndi/coinsight-go/internal/models"
)

// Provider names accepted by analysis.provider.
const (
	ProviderRandom    = "random"
	ProviderIndicator = "indicator"
)

// Reading is a provider's verdict before presentation fields are attached.
type Reading struct {
	Signal         models.Signal
	Confidence     int
	ReferencePrice decimal.Decimal
	Indicators     []models.IndicatorReading
}

// SignalProvider produces the signal for a finished run.
type SignalProvider interface {
	Name() string
	Generate(ctx context.Context, params models.AnalysisParameters) (Reading, error)
}

var defaultPriceBand = assets.PriceBand{Min: 1, Max: 100000}

type indicatorSpec struct {
	name     string
	min, max float64
	weight   float64
	enabled  func(models.AnalysisParameters) bool
}

var randomIndicators = []indicatorSpec{
	{name: "RSI", min: 0, max: 100, weight: 0.20},
	{name: "MACD", min: -1, max: 1, weight: 0.15},
	{name: "EMA", min: -1, max: 1, weight: 0.15},
	{name: "Bollinger Bands", min: -1, max: 1, weight: 0.10},
	{name: "ADX", min: 0, max: 100, weight: 0.10},
	{name: "CCI", min: -100, max: 100, weight: 0.10},
	{name: "Stochastic", min: 0, max: 100, weight: 0.10},
	{name: "Volume", min: 0, max: 2, weight: 0.05,
		enabled: func(p models.AnalysisParameters) bool { return p.IncludeVolume }},
	{name: "Market Sentiment", min: -1, max: 1, weight: 0.05,
		enabled: func(p models.AnalysisParameters) bool { return p.IncludeSentiment }},
	{name: "News Impact", min: -1, max: 1, weight: 0.05,
		enabled: func(p models.AnalysisParameters) bool { return p.IncludeNews }},
}

// RandomProvider is the simulation engine. Signal, confidence, price and each
// indicator are independent draws; none is derived from another.
type RandomProvider struct {
	catalog *assets.Catalog

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomProvider seeds from the runtime source. catalog supplies per-asset
// price bands and may be nil.
func NewRandomProvider(catalog *assets.Catalog) *RandomProvider {
	return NewSeededRandomProvider(catalog, rand.Uint64(), rand.Uint64())
}

// NewSeededRandomProvider gives a reproducible sequence of draws.
func NewSeededRandomProvider(catalog *assets.Catalog, seed1, seed2 uint64) *RandomProvider {
	return &RandomProvider{
		catalog: catalog,
		rng:     rand.New(rand.NewPCG(seed1, seed2)),
	}
}

func (p *RandomProvider) Name() string { return ProviderRandom }

// Generate never fails.
func (p *RandomProvider) Generate(_ context.Context, params models.AnalysisParameters) (Reading, error) {
	band := defaultPriceBand
	if p.catalog != nil && params.Asset != nil {
		if b, ok := p.catalog.PriceBand(params.Asset.Symbol); ok {
			band = b
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reading := Reading{
		Signal:         models.AllSignals[p.rng.IntN(len(models.AllSignals))],
		Confidence:     60 + p.rng.IntN(41),
		ReferencePrice: roundPrice(band.Min + p.rng.Float64()*(band.Max-band.Min)),
	}
	for _, ind := range randomIndicators {
		if ind.enabled != nil && !ind.enabled(params) {
			continue
		}
		reading.Indicators = append(reading.Indicators, models.IndicatorReading{
			Name:   ind.name,
			Value:  round2(ind.min + p.rng.Float64()*(ind.max-ind.min)),
			Signal: models.AllSignals[p.rng.IntN(len(models.AllSignals))],
			Weight: ind.weight,
		})
	}
	return reading, nil
}

// roundPrice keeps cents for prices of at least 1 and six places below that.
func roundPrice(v float64) decimal.Decimal {
	d := decimal.NewFromFloat(v)
	if math.Abs(v) >= 1 {
		return d.Round(2)
	}
	return d.Round(6)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
