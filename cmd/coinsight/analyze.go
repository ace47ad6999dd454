package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irfndi/coinsight-go/internal/analysis"
	"github.com/irfndi/coinsight-go/internal/assets"
	"github.com/irfndi/coinsight-go/internal/config"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/share"
)

const cliUserID = "local"

type analyzeOptions struct {
	symbol        string
	granularity   string
	volume        bool
	sentiment     bool
	news          bool
	provider      string
	seed          uint64
	fast          bool
	delayMin      time.Duration
	delayMax      time.Duration
	sharePlatform string
	copyText      bool
	telegramChat  string

	// clipboard overrides the system clipboard when set.
	clipboard share.Clipboard
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run an analysis and print the signal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), root.logger(cmd.ErrOrStderr()), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.symbol, "symbol", "s", "", "asset symbol, e.g. BTCUSDT or BTC/USDT")
	f.StringVarP(&opts.granularity, "granularity", "g", string(models.Granularity1h), "candle size (15m, 1h, 4h, 1d, 1w)")
	f.BoolVar(&opts.volume, "volume", true, "include volume analysis")
	f.BoolVar(&opts.sentiment, "sentiment", true, "include market sentiment")
	f.BoolVar(&opts.news, "news", false, "include news analysis")
	f.StringVar(&opts.provider, "provider", analysis.ProviderRandom, "signal provider (random, indicator)")
	f.Uint64Var(&opts.seed, "seed", 0, "seed for reproducible output; 0 picks one at random")
	f.BoolVar(&opts.fast, "fast", false, "skip the stage delays")
	f.DurationVar(&opts.delayMin, "delay-min", 600*time.Millisecond, "minimum delay per stage")
	f.DurationVar(&opts.delayMax, "delay-max", 1200*time.Millisecond, "maximum delay per stage")
	f.StringVar(&opts.sharePlatform, "share", "", "print a share intent for x or telegram")
	f.BoolVar(&opts.copyText, "copy", false, "copy the share text to the system clipboard")
	f.StringVar(&opts.telegramChat, "telegram-chat", "", "send the result to this chat using TELEGRAM_BOT_TOKEN")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func (o *analyzeOptions) signalProvider(catalog *assets.Catalog) (analysis.SignalProvider, error) {
	switch o.provider {
	case analysis.ProviderRandom:
		if o.seed != 0 {
			return analysis.NewSeededRandomProvider(catalog, o.seed, o.seed), nil
		}
		return analysis.NewRandomProvider(catalog), nil
	case analysis.ProviderIndicator:
		candles := analysis.NewSyntheticCandles(catalog)
		if o.seed != 0 {
			candles = analysis.NewSeededSyntheticCandles(catalog, o.seed, o.seed)
		}
		return analysis.NewIndicatorProvider(candles, 0), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", o.provider)
	}
}

func (o *analyzeOptions) pacer() analysis.Pacer {
	if o.fast {
		return func(ctx context.Context, _ int) error { return ctx.Err() }
	}
	return analysis.RandomPacer(o.delayMin, o.delayMax)
}

func (o *analyzeOptions) clipboardTarget() share.Clipboard {
	if !o.copyText {
		return nil
	}
	if o.clipboard != nil {
		return o.clipboard
	}
	return share.SystemClipboard{}
}

func runAnalyze(ctx context.Context, out io.Writer, logger *logrus.Logger, opts *analyzeOptions) error {
	var platform share.Platform
	if opts.sharePlatform != "" {
		p, err := share.ParsePlatform(opts.sharePlatform)
		if err != nil {
			return err
		}
		platform = p
	}
	if opts.delayMin < 0 || opts.delayMax < opts.delayMin {
		return fmt.Errorf("invalid stage delay band [%s, %s]", opts.delayMin, opts.delayMax)
	}

	catalog, err := assets.DefaultCatalog()
	if err != nil {
		return err
	}
	asset, ok := catalog.Lookup(opts.symbol)
	if !ok {
		return fmt.Errorf("unknown asset %q; try `coinsight assets search`", opts.symbol)
	}
	provider, err := opts.signalProvider(catalog)
	if err != nil {
		return err
	}

	w := analysis.NewWorkflow(cliUserID, analysis.WorkflowDeps{
		Catalog: catalog,
		Builder: analysis.NewSynthesizer(provider),
		Logger:  logger,
		Options: []analysis.SequencerOption{analysis.WithPacer(opts.pacer())},
	})
	defer w.Close()

	w.Selector().Select(asset)
	if err := w.Params().SetGranularity(opts.granularity); err != nil {
		return err
	}
	w.Params().SetToggles(opts.volume, opts.sentiment, opts.news)

	// Wait blocks this goroutine, so the subscriber is the only writer.
	unsubscribe := w.Subscribe(progressPrinter(out))
	defer unsubscribe()

	fmt.Fprintf(out, "Analyzing %s (%s) on the %s chart\n", asset.DisplayName, asset.PairLabel(), opts.granularity)
	if _, err := w.Start(ctx); err != nil {
		return err
	}
	result, err := w.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, analysis.ErrRunCancelled) {
			return errors.New("analysis cancelled")
		}
		return err
	}

	printResult(out, *result)

	if platform != "" || opts.copyText {
		if err := shareResult(ctx, out, *result, platform, opts.clipboardTarget()); err != nil {
			return err
		}
	}
	if opts.telegramChat != "" {
		if err := sendTelegram(ctx, out, logger, *result, opts.telegramChat); err != nil {
			return err
		}
	}
	return nil
}

func progressPrinter(out io.Writer) func(analysis.Event) {
	return func(ev analysis.Event) {
		switch ev.Type {
		case analysis.EventStageCompleted:
			label := ""
			if ev.Stage != nil {
				label = ev.Stage.Label
			}
			fmt.Fprintf(out, "  [%d/%d] %s\n", ev.Completed, ev.Total, label)
		case analysis.EventRunFailed:
			fmt.Fprintf(out, "  failed: %s\n", ev.Error)
		}
	}
}

func printResult(out io.Writer, r models.AnalysisResult) {
	fmt.Fprintf(out, "\n%s  %s  (%d%% confidence)\n", r.Asset.PairLabel(), r.Signal, r.ConfidencePercent)
	fmt.Fprintf(out, "Price:     $%s\n", r.ReferencePrice.String())
	for i, t := range r.TargetPrices {
		fmt.Fprintf(out, "Target %d:  $%s (%s%%)\n", i+1, t.Price.String(), signedPercent(t.ChangePercent.StringFixed(2)))
	}
	fmt.Fprintf(out, "Stop loss: $%s (%s%%)\n", r.StopLoss.Price.String(), signedPercent(r.StopLoss.ChangePercent.StringFixed(2)))
	if len(r.Indicators) > 0 {
		fmt.Fprintln(out, "Indicators:")
		for _, ind := range r.Indicators {
			fmt.Fprintf(out, "  %-6s %10.2f  %s\n", ind.Name, ind.Value, ind.Signal)
		}
	}
	fmt.Fprintf(out, "\n%s\n", r.Commentary)
}

func signedPercent(s string) string {
	if strings.HasPrefix(s, "-") {
		return s
	}
	return "+" + s
}

// shareResult prints the share text, copies it when cb is set and prints the
// platform intent. A host without a clipboard is reported, not fatal.
func shareResult(ctx context.Context, out io.Writer, r models.AnalysisResult, platform share.Platform, cb share.Clipboard) error {
	text := share.FormatShareText(r)
	fmt.Fprintf(out, "\nShare text: %s\n", text)
	if cb != nil {
		err := share.CopyToClipboard(cb, text)
		switch {
		case errors.Is(err, share.ErrClipboardUnavailable):
			fmt.Fprintln(out, "No system clipboard found; copy the text above.")
		case err != nil:
			return err
		default:
			fmt.Fprintln(out, "Copied to clipboard.")
		}
	}
	if platform == "" {
		return nil
	}
	return share.OpenShareIntent(ctx, share.WriterOpener{W: out}, platform, text)
}

func sendTelegram(ctx context.Context, out io.Writer, logger *logrus.Logger, r models.AnalysisResult, chatID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Telegram.BotToken == "" {
		return share.ErrTelegramDisabled
	}
	sender, err := share.NewTelegramSender(cfg.Telegram.BotToken, logger)
	if err != nil {
		return err
	}
	if err := sender.Send(ctx, chatID, share.FormatShareText(r)); err != nil {
		return err
	}
	fmt.Fprintf(out, "Sent to Telegram chat %s\n", chatID)
	return nil
}
