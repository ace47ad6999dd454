package main

import (
	"context"
	"fmt"
	"io"

	"github.com/go-telegram/bot"
	"github.com/spf13/cobra"

	"github.com/irfndi/coinsight-go/internal/config"
	"github.com/irfndi/coinsight-go/internal/share"
)

func newTelegramCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram",
		Short: "Telegram delivery tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the configured bot token against the Bot API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return checkTelegram(cmd.Context(), cmd.OutOrStdout(), cfg.Telegram.BotToken, opts)
		},
	})
	return cmd
}

func checkTelegram(ctx context.Context, out io.Writer, token string, opts *rootOptions, botOpts ...bot.Option) error {
	sender, err := share.NewTelegramSender(token, opts.logger(io.Discard), botOpts...)
	if err != nil {
		return err
	}
	me, err := sender.Identity(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Bot token OK: %s (@%s, id %d)\n", me.FirstName, me.Username, me.ID)
	return nil
}
