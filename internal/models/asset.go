package models

import "strings"

// AssetDescriptor identifies a tradable pair in the static asset table.
type AssetDescriptor struct {
	Symbol      string `json:"symbol" yaml:"symbol"`
	DisplayName string `json:"display_name" yaml:"name"`
	IconRef     string `json:"icon_ref" yaml:"icon"`
}

// BaseSymbol strips the quote currency, e.g. BTCUSDT -> BTC.
func (a AssetDescriptor) BaseSymbol() string {
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD", "TRY"} {
		if strings.HasSuffix(a.Symbol, quote) && len(a.Symbol) > len(quote) {
			return strings.TrimSuffix(a.Symbol, quote)
		}
	}
	return a.Symbol
}

// PairLabel renders the symbol as BASE/QUOTE for display.
func (a AssetDescriptor) PairLabel() string {
	base := a.BaseSymbol()
	if base == a.Symbol {
		return a.Symbol
	}
	return base + "/" + strings.TrimPrefix(a.Symbol, base)
}
