package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"
	"violation-service/internal/logging"
	"violation-service/internal/utils"
)

// TelegramNotifier mirrors staff-facing events, such as newly filed appeals,
// into the security office chat.
type TelegramNotifier struct {
	bot        *bot.Bot
	chatID     int64
	limiter    *rate.Limiter
	logger     *logging.Logger
	retryDelay time.Duration
}

// NewTelegramNotifier builds the staff mirror. ratePerSecond bounds outgoing
// messages with the same burst.
func NewTelegramNotifier(token string, chatID int64, ratePerSecond int, logger *logging.Logger, opts ...bot.Option) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("missing telegram bot token")
	}
	if chatID == 0 {
		return nil, errors.New("missing telegram staff chat id")
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 20
	}
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return &TelegramNotifier{
		bot:        b,
		chatID:     chatID,
		limiter:    rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:     logger,
		retryDelay: time.Second,
	}, nil
}

func (t *TelegramNotifier) NotifyStaff(ctx context.Context, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	return utils.Retry(ctx, t.logger, 3, t.retryDelay, func() error {
		params := &bot.SendMessageParams{
			ChatID: t.chatID,
			Text:   text,
		}
		if _, err := t.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", t.chatID, err)
		}
		return nil
	})
}
