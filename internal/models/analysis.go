package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is the headline output of an analysis run.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// AllSignals lists every signal in a stable order.
var AllSignals = []Signal{SignalBuy, SignalSell, SignalHold}

// Valid reports whether s is one of BUY, SELL or HOLD.
func (s Signal) Valid() bool {
	switch s {
	case SignalBuy, SignalSell, SignalHold:
		return true
	}
	return false
}

// Granularity is the candle size used for an analysis.
type Granularity string

const (
	Granularity15m Granularity = "15m"
	Granularity1h  Granularity = "1h"
	Granularity4h  Granularity = "4h"
	Granularity1d  Granularity = "1d"
	Granularity1w  Granularity = "1w"
)

// AllGranularities lists the supported granularities from finest to coarsest.
var AllGranularities = []Granularity{Granularity15m, Granularity1h, Granularity4h, Granularity1d, Granularity1w}

// ParseGranularity validates a user supplied granularity string.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllGranularities {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("unsupported granularity %q", s)
}

// Duration returns the wall-clock span of one candle.
func (g Granularity) Duration() time.Duration {
	switch g {
	case Granularity15m:
		return 15 * time.Minute
	case Granularity1h:
		return time.Hour
	case Granularity4h:
		return 4 * time.Hour
	case Granularity1d:
		return 24 * time.Hour
	case Granularity1w:
		return 7 * 24 * time.Hour
	}
	return 0
}

// AnalysisParameters is the user's current selection for the next run.
type AnalysisParameters struct {
	Asset            *AssetDescriptor `json:"asset"`
	Granularity      Granularity      `json:"granularity"`
	IncludeVolume    bool             `json:"include_volume"`
	IncludeSentiment bool             `json:"include_sentiment"`
	IncludeNews      bool             `json:"include_news"`
}

// StageDescriptor is one labelled step of the progress sequence.
type StageDescriptor struct {
	Label      string `json:"label" yaml:"label"`
	DetailText string `json:"detail_text" yaml:"detail"`
}

// StageRun tracks completion of one stage inside a single run.
type StageRun struct {
	Descriptor StageDescriptor `json:"descriptor"`
	Completed  bool            `json:"completed"`
}

// IndicatorReading is a single indicator value shown with a result.
type IndicatorReading struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Signal Signal  `json:"signal"`
	Weight float64 `json:"weight"`
}

// PriceLevel is a target or stop price with its distance from the reference.
type PriceLevel struct {
	Price         decimal.Decimal `json:"price"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// AnalysisResult is created once per finished run and never mutated.
type AnalysisResult struct {
	RunID             string             `json:"run_id"`
	Signal            Signal             `json:"signal"`
	ConfidencePercent int                `json:"confidence_percent"`
	ReferencePrice    decimal.Decimal    `json:"reference_price"`
	TargetPrices      []PriceLevel       `json:"target_prices"`
	StopLoss          PriceLevel         `json:"stop_loss"`
	Indicators        []IndicatorReading `json:"indicators"`
	Commentary        string             `json:"commentary"`
	GeneratedAt       time.Time          `json:"generated_at"`
	Asset             AssetDescriptor    `json:"asset"`
	Granularity       Granularity        `json:"granularity"`
	Provider          string             `json:"provider"`
}
