package analysis

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/irfndi/coinsight-go/internal/assets"
	"github.com/irfndi/coinsight-go/internal/models"
)

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandleSource supplies the most recent count candles for a symbol, oldest
// first.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, granularity models.Granularity, count int) ([]Candle, error)
}

// step volatility per candle size
var walkVolatility = map[models.Granularity]float64{
	models.Granularity15m: 0.004,
	models.Granularity1h:  0.008,
	models.Granularity4h:  0.015,
	models.Granularity1d:  0.03,
	models.Granularity1w:  0.07,
}

// SyntheticCandles generates a geometric random walk starting inside the
// asset's price band. No market data is fetched.
type SyntheticCandles struct {
	catalog *assets.Catalog
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSyntheticCandles(catalog *assets.Catalog) *SyntheticCandles {
	return NewSeededSyntheticCandles(catalog, rand.Uint64(), rand.Uint64())
}

func NewSeededSyntheticCandles(catalog *assets.Catalog, seed1, seed2 uint64) *SyntheticCandles {
	return &SyntheticCandles{
		catalog: catalog,
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(seed1, seed2)),
	}
}

func (s *SyntheticCandles) Candles(ctx context.Context, symbol string, granularity models.Granularity, count int) ([]Candle, error) {
	if count <= 0 {
		return nil, fmt.Errorf("candle count must be positive, got %d", count)
	}
	sigma, ok := walkVolatility[granularity]
	if !ok {
		return nil, fmt.Errorf("unsupported granularity %q", granularity)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	band := defaultPriceBand
	if s.catalog != nil {
		if b, found := s.catalog.PriceBand(symbol); found {
			band = b
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	step := granularity.Duration()
	end := s.now().Truncate(step)
	price := band.Min + (0.25+0.5*s.rng.Float64())*(band.Max-band.Min)
	baseVolume := 1000 + s.rng.Float64()*9000

	candles := make([]Candle, count)
	for i := range candles {
		open := price
		closePrice := open * math.Exp(sigma*s.rng.NormFloat64())
		wick := math.Abs(sigma * s.rng.NormFloat64() / 2)
		candles[i] = Candle{
			Time:   end.Add(-time.Duration(count-1-i) * step),
			Open:   open,
			High:   math.Max(open, closePrice) * (1 + wick),
			Low:    math.Min(open, closePrice) * (1 - wick),
			Close:  closePrice,
			Volume: baseVolume * (0.5 + s.rng.Float64()),
		}
		price = closePrice
	}
	return candles, nil
}
