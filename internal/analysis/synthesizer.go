package analysis

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/coinsight-go/internal/models"
)

// targetBasePercent is the first target's distance from the reference price.
var targetBasePercent = map[models.Granularity]float64{
	models.Granularity15m: 1,
	models.Granularity1h:  2,
	models.Granularity4h:  4,
	models.Granularity1d:  6,
	models.Granularity1w:  10,
}

var targetMultipliers = []float64{1, 1.75, 3}

// Synthesizer builds the immutable result of a finished run from a
// SignalProvider reading.
type Synthesizer struct {
	provider SignalProvider
	now      func() time.Time
	pick     func(int) int
}

func NewSynthesizer(provider SignalProvider) *Synthesizer {
	return &Synthesizer{
		provider: provider,
		now:      time.Now,
		pick:     rand.IntN,
	}
}

// Provider returns the engine name results are stamped with.
func (s *Synthesizer) Provider() string {
	return s.provider.Name()
}

// Synthesize implements ResultBuilder. With the random provider it cannot
// fail.
func (s *Synthesizer) Synthesize(ctx context.Context, runID string, params models.AnalysisParameters) (models.AnalysisResult, error) {
	if params.Asset == nil {
		return models.AnalysisResult{}, fmt.Errorf("no asset selected")
	}
	reading, err := s.provider.Generate(ctx, params)
	if err != nil {
		return models.AnalysisResult{}, err
	}
	if !reading.Signal.Valid() {
		return models.AnalysisResult{}, fmt.Errorf("provider %s returned unknown signal %q", s.provider.Name(), reading.Signal)
	}

	confidence := reading.Confidence
	if confidence < 0 {
		confidence = 0
	} else if confidence > 100 {
		confidence = 100
	}

	targets, stop := priceLevels(reading.ReferencePrice, reading.Signal, params.Granularity)
	return models.AnalysisResult{
		RunID:             runID,
		Signal:            reading.Signal,
		ConfidencePercent: confidence,
		ReferencePrice:    reading.ReferencePrice,
		TargetPrices:      targets,
		StopLoss:          stop,
		Indicators:        reading.Indicators,
		Commentary:        commentaryFor(reading.Signal, params.Asset.DisplayName, s.pick),
		GeneratedAt:       s.now().UTC(),
		Asset:             *params.Asset,
		Granularity:       params.Granularity,
		Provider:          s.provider.Name(),
	}, nil
}

// priceLevels places three targets in the signal's direction and the stop on
// the other side. HOLD uses half-size moves with an upward bias.
func priceLevels(ref decimal.Decimal, signal models.Signal, g models.Granularity) ([]models.PriceLevel, models.PriceLevel) {
	base, ok := targetBasePercent[g]
	if !ok {
		base = targetBasePercent[models.Granularity4h]
	}
	direction := 1.0
	switch signal {
	case models.SignalSell:
		direction = -1
	case models.SignalHold:
		base /= 2
	}

	level := func(pct float64) models.PriceLevel {
		change := decimal.NewFromFloat(pct).Round(2)
		price := ref.Mul(decimal.NewFromInt(1).Add(change.Div(decimal.NewFromInt(100))))
		f, _ := price.Float64()
		return models.PriceLevel{Price: roundPrice(f), ChangePercent: change}
	}

	targets := make([]models.PriceLevel, len(targetMultipliers))
	for i, m := range targetMultipliers {
		targets[i] = level(direction * base * m)
	}
	return targets, level(-direction * base)
}
