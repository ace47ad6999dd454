// Package payments holds the subscription plan table, the hosted checkout
// client and the payment webhook handler.
package payments

import (
	"github.com/shopspring/decimal"

	"github.com/irfndi/coinsight-go/internal/config"
	"github.com/irfndi/coinsight-go/internal/models"
)

// PlanTable is the fixed list of subscription tiers.
type PlanTable struct {
	plans []models.Plan
	index map[string]int
}

// NewPlanTable builds the starter, pro and gold tiers. Price ids come from
// config so checkout can reference the provider's catalog.
func NewPlanTable(cfg config.PaymentsConfig) *PlanTable {
	plans := []models.Plan{
		{
			ID:                 models.PlanStarter,
			DisplayName:        "Starter",
			MonthlyPrice:       decimal.Zero,
			DailyAnalysisLimit: 5,
			SupportedAssets:    []string{"BTC", "ETH"},
			Features: []string{
				"BTC and ETH analysis",
				"5 analyses per day",
				"Basic BUY/SELL/HOLD signal",
				"Core technical indicators",
			},
		},
		{
			ID:                 models.PlanPro,
			DisplayName:        "Pro",
			MonthlyPrice:       decimal.NewFromInt(39),
			PriceID:            cfg.ProPriceID,
			DailyAnalysisLimit: 20,
			Features: []string{
				"Analysis for every asset",
				"20 analyses per day",
				"Signal history",
				"Extended commentary",
				"Premium indicators",
			},
		},
		{
			ID:                 models.PlanGold,
			DisplayName:        "Gold",
			MonthlyPrice:       decimal.NewFromInt(59),
			PriceID:            cfg.GoldPriceID,
			DailyAnalysisLimit: 40,
			Features: []string{
				"Everything in Pro",
				"40 analyses per day",
				"Strategy commentary",
				"Priority support",
				"Portfolio analysis",
			},
		},
	}

	t := &PlanTable{plans: plans, index: make(map[string]int, len(plans))}
	for i, p := range plans {
		t.index[p.ID] = i
	}
	return t
}

// List returns the plans cheapest first.
func (t *PlanTable) List() []models.Plan {
	out := make([]models.Plan, len(t.plans))
	copy(out, t.plans)
	return out
}

func (t *PlanTable) Get(id string) (models.Plan, bool) {
	i, ok := t.index[id]
	if !ok {
		return models.Plan{}, false
	}
	return t.plans[i], true
}

// Default is the plan every account starts on.
func (t *PlanTable) Default() models.Plan {
	p, _ := t.Get(models.PlanStarter)
	return p
}
