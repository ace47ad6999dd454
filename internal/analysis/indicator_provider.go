package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/cinar/indicator/v2/volume"

	"github.com/irfndi/coinsight-go/internal/models"
)

const (
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	emaPeriod        = 20
	smaPeriod        = 50
	obvLookback      = 10

	// minimum candles for every indicator to produce a value
	minCandles = smaPeriod + 10

	voteThreshold = 0.2
)

// IndicatorProvider derives the signal from technical indicators computed
// over a candle source. Its output is reproducible for a given candle series.
type IndicatorProvider struct {
	source      CandleSource
	candleCount int
}

func NewIndicatorProvider(source CandleSource, candleCount int) *IndicatorProvider {
	if candleCount < minCandles {
		candleCount = 200
	}
	return &IndicatorProvider{source: source, candleCount: candleCount}
}

func (p *IndicatorProvider) Name() string { return ProviderIndicator }

func (p *IndicatorProvider) Generate(ctx context.Context, params models.AnalysisParameters) (Reading, error) {
	if params.Asset == nil {
		return Reading{}, fmt.Errorf("no asset selected")
	}
	candles, err := p.source.Candles(ctx, params.Asset.Symbol, params.Granularity, p.candleCount)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to load candles for %s: %w", params.Asset.Symbol, err)
	}
	if len(candles) < minCandles {
		return Reading{}, fmt.Errorf("need at least %d candles for %s, got %d", minCandles, params.Asset.Symbol, len(candles))
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}
	price := closes[len(closes)-1]

	readings := []models.IndicatorReading{
		rsiReading(closes),
		macdReading(closes),
		averageReading("EMA", price, emaValues(closes), 0.20),
		averageReading("SMA", price, smaValues(closes), 0.15),
		atrReading(highs, lows, closes, price),
	}
	if params.IncludeVolume {
		readings = append(readings, obvReading(closes, volumes))
	}

	signal, confidence := weightedVote(readings)
	return Reading{
		Signal:         signal,
		Confidence:     confidence,
		ReferencePrice: roundPrice(price),
		Indicators:     readings,
	}, nil
}

func lastValue(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func rsiReading(closes []float64) models.IndicatorReading {
	rsi := lastValue(helper.ChanToSlice(momentum.NewRsiWithPeriod[float64](rsiPeriod).Compute(helper.SliceToChan(closes))))
	signal := models.SignalHold
	switch {
	case rsi < 30:
		signal = models.SignalBuy
	case rsi > 70:
		signal = models.SignalSell
	}
	return models.IndicatorReading{Name: "RSI", Value: round2(rsi), Signal: signal, Weight: 0.25}
}

func macdReading(closes []float64) models.IndicatorReading {
	macdCh, signalCh := trend.NewMacdWithPeriod[float64](macdFastPeriod, macdSlowPeriod, macdSignalPeriod).
		Compute(helper.SliceToChan(closes))

	// both outputs share one upstream; drain them together
	var signalLine []float64
	done := make(chan struct{})
	go func() {
		signalLine = helper.ChanToSlice(signalCh)
		close(done)
	}()
	macdLine := helper.ChanToSlice(macdCh)
	<-done

	histogram := lastValue(macdLine) - lastValue(signalLine)
	signal := models.SignalHold
	switch {
	case histogram > 0:
		signal = models.SignalBuy
	case histogram < 0:
		signal = models.SignalSell
	}
	return models.IndicatorReading{Name: "MACD", Value: round4(lastValue(macdLine)), Signal: signal, Weight: 0.25}
}

func emaValues(closes []float64) []float64 {
	return helper.ChanToSlice(trend.NewEmaWithPeriod[float64](emaPeriod).Compute(helper.SliceToChan(closes)))
}

func smaValues(closes []float64) []float64 {
	return helper.ChanToSlice(trend.NewSmaWithPeriod[float64](smaPeriod).Compute(helper.SliceToChan(closes)))
}

// averageReading reports the price's percentage distance from a moving
// average; a band of 0.2% either side counts as HOLD.
func averageReading(name string, price float64, averages []float64, weight float64) models.IndicatorReading {
	avg := lastValue(averages)
	distance := 0.0
	if avg != 0 {
		distance = (price - avg) / avg * 100
	}
	signal := models.SignalHold
	switch {
	case distance > 0.2:
		signal = models.SignalBuy
	case distance < -0.2:
		signal = models.SignalSell
	}
	return models.IndicatorReading{Name: name, Value: round2(distance), Signal: signal, Weight: weight}
}

// atrReading expresses ATR as a percentage of price. Volatility has no
// direction, so it always votes HOLD.
func atrReading(highs, lows, closes []float64, price float64) models.IndicatorReading {
	atr := lastValue(helper.ChanToSlice(volatility.NewAtr[float64]().Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	)))
	pct := 0.0
	if price != 0 {
		pct = atr / price * 100
	}
	return models.IndicatorReading{Name: "ATR", Value: round2(pct), Signal: models.SignalHold, Weight: 0.10}
}

func obvReading(closes, volumes []float64) models.IndicatorReading {
	obv := helper.ChanToSlice(volume.NewObv[float64]().Compute(helper.SliceToChan(closes), helper.SliceToChan(volumes)))
	signal := models.SignalHold
	change := 0.0
	if len(obv) > obvLookback {
		change = obv[len(obv)-1] - obv[len(obv)-1-obvLookback]
		switch {
		case change > 0:
			signal = models.SignalBuy
		case change < 0:
			signal = models.SignalSell
		}
	}
	return models.IndicatorReading{Name: "OBV", Value: round2(change), Signal: signal, Weight: 0.10}
}

// weightedVote scores BUY as +1 and SELL as -1, weighted, normalized by the
// total weight. Confidence grows from 60 with the strength of the score.
func weightedVote(readings []models.IndicatorReading) (models.Signal, int) {
	var score, total float64
	for _, r := range readings {
		total += r.Weight
		switch r.Signal {
		case models.SignalBuy:
			score += r.Weight
		case models.SignalSell:
			score -= r.Weight
		}
	}
	if total == 0 {
		return models.SignalHold, 60
	}
	score /= total

	signal := models.SignalHold
	switch {
	case score > voteThreshold:
		signal = models.SignalBuy
	case score < -voteThreshold:
		signal = models.SignalSell
	}
	confidence := 60 + int(math.Round(math.Abs(score)*40))
	if confidence > 100 {
		confidence = 100
	}
	return signal, confidence
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
