package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/coinsight-go/internal/models"
)

type staticCandles struct {
	candles []Candle
	err     error
	calls   int
}

func (s *staticCandles) Candles(_ context.Context, _ string, _ models.Granularity, count int) ([]Candle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if count < len(s.candles) {
		return s.candles[len(s.candles)-count:], nil
	}
	return s.candles, nil
}

// trendCandles walks up two and back one per pair of steps, or the mirror
// image when falling.
func trendCandles(n int, rising bool) []Candle {
	out := make([]Candle, n)
	price := 100.0
	if !rising {
		price = 400
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		step := 2.0
		if i%2 == 1 {
			step = -1
		}
		if !rising {
			step = -step
		}
		open := price
		price += step
		out[i] = Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   max(open, price) + 0.5,
			Low:    min(open, price) - 0.5,
			Close:  price,
			Volume: 1000 + float64(i%7)*10,
		}
	}
	return out
}

func TestIndicatorProvider_Readings(t *testing.T) {
	src := &staticCandles{candles: trendCandles(200, true)}
	p := NewIndicatorProvider(src, 200)

	reading, err := p.Generate(context.Background(), paramsFor(btc, models.Granularity1h))
	require.NoError(t, err)

	assert.Equal(t, ProviderIndicator, p.Name())
	assert.Equal(t, []string{"RSI", "MACD", "EMA", "SMA", "ATR"}, indicatorNames(reading.Indicators))
	assert.True(t, reading.Signal.Valid())
	assert.GreaterOrEqual(t, reading.Confidence, 60)
	assert.LessOrEqual(t, reading.Confidence, 100)
	assert.Equal(t, "200", reading.ReferencePrice.String())

	byName := map[string]models.IndicatorReading{}
	for _, r := range reading.Indicators {
		byName[r.Name] = r
	}
	assert.Equal(t, models.SignalBuy, byName["EMA"].Signal)
	assert.Equal(t, models.SignalBuy, byName["SMA"].Signal)
	assert.Equal(t, models.SignalHold, byName["ATR"].Signal)
	assert.Positive(t, byName["ATR"].Value)
	assert.Greater(t, byName["RSI"].Value, 50.0)
	assert.LessOrEqual(t, byName["RSI"].Value, 100.0)
}

func TestIndicatorProvider_FallingTrend(t *testing.T) {
	src := &staticCandles{candles: trendCandles(200, false)}
	reading, err := NewIndicatorProvider(src, 200).Generate(context.Background(), paramsFor(eth, models.Granularity4h))
	require.NoError(t, err)

	byName := map[string]models.IndicatorReading{}
	for _, r := range reading.Indicators {
		byName[r.Name] = r
	}
	assert.Equal(t, models.SignalSell, byName["EMA"].Signal)
	assert.Equal(t, models.SignalSell, byName["SMA"].Signal)
	assert.Less(t, byName["RSI"].Value, 50.0)
}

func TestIndicatorProvider_VolumeAddsOBV(t *testing.T) {
	src := &staticCandles{candles: trendCandles(120, true)}
	params := paramsFor(btc, models.Granularity1h)
	params.IncludeVolume = true

	reading, err := NewIndicatorProvider(src, 120).Generate(context.Background(), params)
	require.NoError(t, err)
	names := indicatorNames(reading.Indicators)
	require.Len(t, names, 6)
	assert.Equal(t, "OBV", names[5])
}

func TestIndicatorProvider_Deterministic(t *testing.T) {
	src := &staticCandles{candles: trendCandles(200, true)}
	p := NewIndicatorProvider(src, 200)
	params := paramsFor(btc, models.Granularity1d)

	a, err := p.Generate(context.Background(), params)
	require.NoError(t, err)
	b, err := p.Generate(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, a.Signal, b.Signal)
	assert.Equal(t, a.Confidence, b.Confidence)
	assert.Equal(t, a.Indicators, b.Indicators)
}

func TestIndicatorProvider_Errors(t *testing.T) {
	boom := errors.New("feed down")

	_, err := NewIndicatorProvider(&staticCandles{err: boom}, 200).Generate(context.Background(), paramsFor(btc, models.Granularity1h))
	assert.ErrorIs(t, err, boom)

	_, err = NewIndicatorProvider(&staticCandles{candles: trendCandles(30, true)}, 200).Generate(context.Background(), paramsFor(btc, models.Granularity1h))
	assert.ErrorContains(t, err, "need at least")

	src := &staticCandles{candles: trendCandles(200, true)}
	_, err = NewIndicatorProvider(src, 200).Generate(context.Background(), models.AnalysisParameters{Granularity: models.Granularity1h})
	assert.Error(t, err)
	assert.Zero(t, src.calls)
}

func TestIndicatorProvider_WithSyntheticSource(t *testing.T) {
	p := NewIndicatorProvider(NewSeededSyntheticCandles(nil, 1, 2), 0)
	assert.Equal(t, 200, p.candleCount)

	for _, g := range models.AllGranularities {
		reading, err := p.Generate(context.Background(), paramsFor(btc, g))
		require.NoError(t, err, g)
		assert.True(t, reading.Signal.Valid())
		assert.NotEmpty(t, reading.Indicators)
	}
}

func TestWeightedVote(t *testing.T) {
	reading := func(signal models.Signal, weight float64) models.IndicatorReading {
		return models.IndicatorReading{Signal: signal, Weight: weight}
	}

	tests := []struct {
		name       string
		readings   []models.IndicatorReading
		signal     models.Signal
		confidence int
	}{
		{"empty", nil, models.SignalHold, 60},
		{"unanimous buy", []models.IndicatorReading{reading(models.SignalBuy, 1), reading(models.SignalBuy, 1)}, models.SignalBuy, 100},
		{"unanimous sell", []models.IndicatorReading{reading(models.SignalSell, 0.5)}, models.SignalSell, 100},
		{"balanced", []models.IndicatorReading{reading(models.SignalBuy, 1), reading(models.SignalSell, 1)}, models.SignalHold, 60},
		{"weak buy", []models.IndicatorReading{reading(models.SignalBuy, 0.3), reading(models.SignalHold, 0.7)}, models.SignalBuy, 72},
		{"below threshold", []models.IndicatorReading{reading(models.SignalSell, 0.1), reading(models.SignalHold, 0.9)}, models.SignalHold, 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal, confidence := weightedVote(tt.readings)
			assert.Equal(t, tt.signal, signal)
			assert.Equal(t, tt.confidence, confidence)
		})
	}
}
