// Package platform holds the services the reminder coordinator treats as
// black boxes: notification permission, one-shot timers and delivery.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/notexe/goal-reminders/internal/reminder"
)

// ErrTimerNotFound is returned when cancelling a timer that already fired or
// never existed.
var ErrTimerNotFound = errors.New("timer not found")

// Permissions answers whether notifications may be shown.
type Permissions interface {
	Request(ctx context.Context) (bool, error)
}

// Timer is a live, not yet fired platform timer.
type Timer struct {
	ID       string           `json:"id"`
	FireTime time.Time        `json:"fire_time"`
	Content  reminder.Content `json:"content"`
}

// Timers creates, cancels and lists one-shot notification timers.
type Timers interface {
	Create(ctx context.Context, content reminder.Content, fireTime time.Time) (string, error)
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context) ([]Timer, error)
}

// Deliverer shows a notification once its timer fires.
type Deliverer interface {
	Deliver(ctx context.Context, content reminder.Content) error
}

// Presentation is the notification display policy, fixed at construction.
type Presentation struct {
	Silent    bool   // Deliver without sound
	ParseMode string // HTML, Markdown, MarkdownV2 or empty for plain text
}
