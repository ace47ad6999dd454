package share

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"
)

// ErrTelegramDisabled is returned when no bot token is configured.
var ErrTelegramDisabled = errors.New("telegram delivery is not configured")

// ErrNoLinkedChat is returned when the user has not linked a Telegram chat.
var ErrNoLinkedChat = errors.New("no telegram chat linked to this account")

// MessageSender delivers text to a chat.
type MessageSender interface {
	Send(ctx context.Context, chatID string, text string) error
}

// TelegramSender posts share text through the Telegram Bot API.
type TelegramSender struct {
	bot    *bot.Bot
	logger *logrus.Logger
}

// NewTelegramSender builds a sender for token. Extra options are passed to
// the bot client, e.g. bot.WithServerURL in tests.
func NewTelegramSender(token string, logger *logrus.Logger, opts ...bot.Option) (*TelegramSender, error) {
	if token == "" {
		return nil, ErrTelegramDisabled
	}
	if logger == nil {
		logger = logrus.New()
	}
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramSender{bot: b, logger: logger}, nil
}

func (s *TelegramSender) Send(ctx context.Context, chatID string, text string) error {
	if chatID == "" {
		return ErrNoLinkedChat
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	_, err = s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: id,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	s.logger.WithField("chat_id", id).Debug("Share text sent to telegram")
	return nil
}

// BotIdentity is what the Bot API reports about the configured token.
type BotIdentity struct {
	ID        int64
	FirstName string
	Username  string
}

// Identity calls getMe, which fails fast on a revoked or mistyped token.
func (s *TelegramSender) Identity(ctx context.Context) (BotIdentity, error) {
	me, err := s.bot.GetMe(ctx)
	if err != nil {
		return BotIdentity{}, fmt.Errorf("failed to get bot info: %w", err)
	}
	return BotIdentity{ID: me.ID, FirstName: me.FirstName, Username: me.Username}, nil
}
