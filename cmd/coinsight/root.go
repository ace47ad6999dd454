package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irfndi/coinsight-go/internal/logging"
)

type rootOptions struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "coinsight",
		Short:         "CoinSight AI signal analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newAssetsCmd(),
		newAnalyzeCmd(opts),
		newPlansCmd(),
		newTelegramCmd(opts),
	)
	return root
}

// logger writes to stderr so command output stays clean on stdout.
func (o *rootOptions) logger(stderr io.Writer) *logrus.Logger {
	l := logging.NewLogrus(o.logLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.SetOutput(stderr)
	return l
}
