package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/models"
	"chamber-monitor/internal/utils"
)

// telegramLimiter is the global rate limiter for Telegram messages
var telegramLimiter *rate.Limiter

func initTelegramLimiter(ratePerSecond int) {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	telegramLimiter = rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond)
}

// SendTelegram pushes one alert to the configured chat via go-telegram/bot.
func SendTelegram(ctx context.Context, task models.Task, logger *logging.Logger, cfg config.Config) error {
	if telegramLimiter == nil {
		initTelegramLimiter(cfg.Telegram.RateLimit)
	}
	if err := telegramLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("missing TELEGRAM_BOT_TOKEN")
	}
	if cfg.Telegram.ChatID == 0 {
		return fmt.Errorf("missing TELEGRAM_CHAT_ID")
	}

	text := fmt.Sprintf(
		"*%s %s*\n"+
			"*Value:* %s\n"+
			"*At:* %s\n\n"+
			"%s",
		task.Severity, task.Title,
		task.ValueText,
		time.UnixMilli(task.TS).UTC().Format("2006-01-02 15:04:05 MST"),
		task.Suggestion,
	)

	return utils.Retry(logger, 3, time.Second, func() error {
		b, err := bot.New(cfg.Telegram.BotToken)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}
		params := &bot.SendMessageParams{
			ChatID:    cfg.Telegram.ChatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", cfg.Telegram.ChatID, err)
		}
		return nil
	})
}
