package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/irfndi/coinsight-go/internal/assets"
)

func newAssetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Browse the asset table",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "search [query]",
		Short: "List assets whose symbol or name contains query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := assets.DefaultCatalog()
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			matches := catalog.Search(query)
			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(out, "No assets match %q\n", strings.TrimSpace(query))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SYMBOL\tPAIR\tNAME")
			for _, a := range matches {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Symbol, a.PairLabel(), a.DisplayName)
			}
			return tw.Flush()
		},
	})
	return cmd
}
