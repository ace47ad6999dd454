package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/irfndi/coinsight-go/internal/config"
	"github.com/irfndi/coinsight-go/internal/payments"
)

func newPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "Show subscription plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLAN\tPRICE/MONTH\tDAILY\tASSETS")
			for _, p := range payments.NewPlanTable(config.PaymentsConfig{}).List() {
				coverage := "all"
				if len(p.SupportedAssets) > 0 {
					coverage = strings.Join(p.SupportedAssets, ", ")
				}
				fmt.Fprintf(tw, "%s\t$%s\t%d\t%s\n", p.DisplayName, p.MonthlyPrice.StringFixed(2), p.DailyAnalysisLimit, coverage)
			}
			return tw.Flush()
		},
	}
}
