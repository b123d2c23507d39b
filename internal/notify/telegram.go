// Package notify provides optional forwarding of fired price alerts via
// the Telegram Bot API.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cryptotracker/core/internal/models"
)

// Telegram forwards notifications to a Telegram chat.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Telegram, error) {
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

	return &Telegram{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendPriceAlert forwards one fired alert notification.
func (t *Telegram) SendPriceAlert(n *models.Notification) error {
	return t.sendMarkdownV2(formatPriceAlert(n))
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (t *Telegram) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < t.maxRetries; i++ {
		if _, err := t.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(t.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", t.maxRetries, lastErr)
}

// formatPriceAlert formats a fired alert as a Telegram MarkdownV2 message.
func formatPriceAlert(n *models.Notification) string {
	directionEmoji := "📈"
	if n.Data.Condition == models.ConditionBelow {
		directionEmoji = "📉"
	}

	title := escapeMarkdownV2(n.Title)
	coin := escapeMarkdownV2(fmt.Sprintf("%s (%s)", n.Data.CoinID, strings.ToUpper(n.Data.CoinSymbol)))
	current := escapeMarkdownV2(fmt.Sprintf("$%.2f", n.Data.CurrentPriceUSD))
	target := escapeMarkdownV2(fmt.Sprintf("%s $%.2f", n.Data.Condition, n.Data.TargetPriceUSD))

	return fmt.Sprintf("%s *%s*\n%s\nPrice: %s\nTarget: %s",
		directionEmoji, title, coin, current, target)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
