// Package share turns an analysis result into shareable text and delivers it
// to the clipboard, a social share intent or a Telegram chat.
package share

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/irfndi/coinsight-go/internal/models"
)

// Platform is a share target.
type Platform string

const (
	PlatformX        Platform = "x"
	PlatformTelegram Platform = "telegram"
)

const (
	xIntentBase        = "https://twitter.com/intent/tweet"
	telegramIntentBase = "https://t.me/share/url"
)

// ParsePlatform accepts "x", "twitter" or "telegram" in any case.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x", "twitter":
		return PlatformX, nil
	case "telegram", "tg":
		return PlatformTelegram, nil
	}
	return "", fmt.Errorf("unsupported share platform %q", s)
}

var printer = message.NewPrinter(language.English)

// FormatShareText renders result with a fixed template.
func FormatShareText(result models.AnalysisResult) string {
	var b strings.Builder
	printer.Fprintf(&b, "CoinSight AI: %s %s signal on the %s chart with %d%% confidence.",
		result.Asset.Symbol, result.Signal, result.Granularity, result.ConfidencePercent)
	if !result.ReferencePrice.IsZero() {
		printer.Fprintf(&b, " Price: $%s.", formatPrice(result.ReferencePrice.InexactFloat64()))
	}
	b.WriteString(" #crypto #")
	b.WriteString(strings.ToLower(strings.TrimSuffix(result.Asset.Symbol, "USDT")))
	return b.String()
}

func formatPrice(v float64) string {
	if v < 1 {
		return printer.Sprintf("%.6f", v)
	}
	return printer.Sprintf("%.2f", v)
}

// ShareIntentURL builds the platform's share link for text.
func ShareIntentURL(platform Platform, text string) (string, error) {
	switch platform {
	case PlatformX:
		q := url.Values{}
		q.Set("text", text)
		return xIntentBase + "?" + q.Encode(), nil
	case PlatformTelegram:
		// t.me expects the url parameter even when it is empty
		return telegramIntentBase + "?url=&text=" + url.QueryEscape(text), nil
	}
	return "", fmt.Errorf("unsupported share platform %q", platform)
}

// IntentURLs returns the share link for every platform.
func IntentURLs(text string) map[Platform]string {
	out := make(map[Platform]string, 2)
	for _, p := range []Platform{PlatformX, PlatformTelegram} {
		u, _ := ShareIntentURL(p, text)
		out[p] = u
	}
	return out
}

// Opener hands a URL to whatever can open it in a new context.
type Opener interface {
	Open(ctx context.Context, rawURL string) error
}

// OpenShareIntent builds the platform link and passes it to opener.
func OpenShareIntent(ctx context.Context, opener Opener, platform Platform, text string) error {
	u, err := ShareIntentURL(platform, text)
	if err != nil {
		return err
	}
	return opener.Open(ctx, u)
}

// WriterOpener prints links for a user to open, as a terminal does.
type WriterOpener struct {
	W io.Writer
}

func (o WriterOpener) Open(_ context.Context, rawURL string) error {
	_, err := fmt.Fprintf(o.W, "Open to share: %s\n", rawURL)
	return err
}
