package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Plan identifiers.
const (
	PlanStarter = "starter"
	PlanPro     = "pro"
	PlanGold    = "gold"
)

// Plan is a subscription tier. SupportedAssets holds base symbols; an empty
// list means every asset in the catalog.
type Plan struct {
	ID                 string          `json:"id"`
	DisplayName        string          `json:"display_name"`
	MonthlyPrice       decimal.Decimal `json:"monthly_price"`
	PriceID            string          `json:"price_id,omitempty"`
	DailyAnalysisLimit int             `json:"daily_analysis_limit"`
	SupportedAssets    []string        `json:"supported_assets"`
	Features           []string        `json:"features"`
}

// SupportsAsset reports whether the plan may analyze the given asset.
func (p Plan) SupportsAsset(asset AssetDescriptor) bool {
	if len(p.SupportedAssets) == 0 {
		return true
	}
	base := asset.BaseSymbol()
	for _, s := range p.SupportedAssets {
		if strings.EqualFold(s, base) || strings.EqualFold(s, asset.Symbol) {
			return true
		}
	}
	return false
}

// IsFree reports whether checkout is unnecessary for the plan.
func (p Plan) IsFree() bool {
	return p.MonthlyPrice.IsZero()
}
