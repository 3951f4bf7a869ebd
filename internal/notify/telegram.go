// Package notify delivers run summaries via the Telegram Bot API. It
// formats a finished run into a short message and handles delivery with
// retry logic for reliability.
package notify

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/TosDaBoss/playintel/internal/pipeline"
)

// Client handles Telegram notifications
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendSummary sends the run summary
func (c *Client) SendSummary(summary *pipeline.Summary) error {
	msg := tgbotapi.NewMessage(c.chatID, formatSummary(summary))
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatSummary formats a run summary into a Telegram message
func formatSummary(summary *pipeline.Summary) string {
	message := "🎮 *Catalog Refresh Complete*\n\n"
	message += fmt.Sprintf("🆔 Run: %s\n", escapeMarkdownV2(summary.RunID.String()))
	message += fmt.Sprintf("📅 Started: %s\n\n", escapeMarkdownV2(summary.StartedAt.Format("2006-01-02 15:04:05")))

	message += fmt.Sprintf("🆕 New apps: *%d*\n", summary.New)
	message += fmt.Sprintf("🔍 Enriched: *%d*\n", summary.Enriched)
	message += fmt.Sprintf("🔄 Refreshed: *%d*\n", summary.Refreshed)
	message += fmt.Sprintf("🗑 Removed: *%d*\n", summary.Removed)
	message += fmt.Sprintf("📊 Metric rows: *%d*\n\n", summary.MetricRows)

	message += fmt.Sprintf("⏱ Elapsed: %s\n", escapeMarkdownV2(formatDuration(summary.Elapsed)))
	return message
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	result := ""
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			result += "\\" + string(char)
		default:
			result += string(char)
		}
	}
	return result
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
