package platform

import (
	"context"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/notexe/goal-reminders/internal/reminder"
)

// BotSender is the subset of *tgbotapi.BotAPI used for delivery.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramDeliverer sends fired reminders to a Telegram chat.
type TelegramDeliverer struct {
	bot          BotSender
	chatID       int64
	presentation Presentation
	limiter      *rate.Limiter
}

// NewTelegramDeliverer creates a deliverer limited to perSecond messages
// with the given burst.
func NewTelegramDeliverer(bot BotSender, chatID int64, p Presentation, perSecond float64, burst int) *TelegramDeliverer {
	return &TelegramDeliverer{
		bot:          bot,
		chatID:       chatID,
		presentation: p,
		limiter:      rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Deliver sends content, waiting for the rate limiter first.
func (d *TelegramDeliverer) Deliver(ctx context.Context, content reminder.Content) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit wait: %w", err)
	}

	msg := tgbotapi.NewMessage(d.chatID, FormatMessage(content, d.presentation.ParseMode))
	msg.ParseMode = d.presentation.ParseMode
	msg.DisableNotification = d.presentation.Silent

	if _, err := d.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// FormatMessage renders content for the given Telegram parse mode.
func FormatMessage(content reminder.Content, parseMode string) string {
	var b strings.Builder
	switch parseMode {
	case tgbotapi.ModeHTML:
		b.WriteString("<b>" + html.EscapeString(content.Title) + "</b>\n")
		b.WriteString(html.EscapeString(content.Body))
	case tgbotapi.ModeMarkdown, tgbotapi.ModeMarkdownV2:
		b.WriteString("*" + tgbotapi.EscapeText(parseMode, content.Title) + "*\n")
		b.WriteString(tgbotapi.EscapeText(parseMode, content.Body))
	default:
		b.WriteString(content.Title + "\n")
		b.WriteString(content.Body)
	}
	return b.String()
}
