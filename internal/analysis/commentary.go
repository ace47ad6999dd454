package analysis

import (
	"fmt"

	"github.com/irfndi/coinsight-go/internal/models"
)

// commentaryTemplates holds three paragraphs per signal; %s is the asset's
// display name.
var commentaryTemplates = map[models.Signal][]string{
	models.SignalBuy: {
		"%s is showing strong upward momentum. Momentum and trend indicators agree on a bullish setup, and buyers have been absorbing dips near support.",
		"Buying pressure on %s is building. Short averages have crossed above the longer ones and the pullbacks of recent sessions were shallow.",
		"%s has broken out of its recent range with improving breadth. As long as price holds above the breakout level the bullish case stays intact.",
	},
	models.SignalSell: {
		"%s is losing momentum. Several trend indicators have turned down and sellers are defending each bounce.",
		"Distribution is visible on %s. Price is trading under its key averages and rallies are being sold into.",
		"%s has slipped below support with momentum deteriorating. The risk of a deeper correction outweighs the near-term upside.",
	},
	models.SignalHold: {
		"%s is consolidating without a clear direction. Indicators are mixed, so waiting for a confirmed breakout is the safer choice.",
		"Signals on %s are balanced. Neither buyers nor sellers are in control and volatility is compressing.",
		"%s is trading inside a range. A decisive close outside it would give a clearer signal than the current readings.",
	},
}

// CommentaryOptions returns every paragraph for signal, already interpolated.
func CommentaryOptions(signal models.Signal, displayName string) []string {
	templates := commentaryTemplates[signal]
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = fmt.Sprintf(t, displayName)
	}
	return out
}

// commentaryFor picks one paragraph from signal's bucket. pick receives the
// bucket size and must return an index inside it.
func commentaryFor(signal models.Signal, displayName string, pick func(int) int) string {
	templates, ok := commentaryTemplates[signal]
	if !ok {
		templates = commentaryTemplates[models.SignalHold]
	}
	return fmt.Sprintf(templates[pick(len(templates))], displayName)
}
