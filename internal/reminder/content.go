package reminder

import (
	"fmt"
	"strings"
)

// Payload travels with every timer so a tap handler can route back to the
// goal.
type Payload struct {
	GoalID    string `json:"goalId"`
	GoalTitle string `json:"goalTitle"`
	GoalEmoji string `json:"goalEmoji"`
	Kind      Kind   `json:"kind"`
}

// Content is what the platform shows when a timer fires.
type Content struct {
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Payload Payload `json:"payload"`
}

// BuildContent renders the display text for one reminder kind.
func BuildContent(req Request, kind Kind) Content {
	label := strings.TrimSpace(strings.TrimSpace(req.GoalEmoji) + " " + req.GoalTitle)
	if label == "" {
		label = "your goal"
	}

	var title, body string
	switch kind {
	case KindOnFinish:
		title = "🏁 Goal deadline reached"
		body = fmt.Sprintf("Today is the day for %s. Log your result and see how far you came!", label)
	case KindOneDayBefore:
		title = "⏰ One day left"
		body = fmt.Sprintf("%s is due tomorrow. One last push!", label)
	case KindOneWeekBefore:
		title = "📅 One week to go"
		body = fmt.Sprintf("%s is due in a week. Check your progress and plan the final stretch.", label)
	default:
		title = "Goal reminder"
		body = label
	}

	return Content{
		Title: title,
		Body:  body,
		Payload: Payload{
			GoalID:    req.GoalID,
			GoalTitle: req.GoalTitle,
			GoalEmoji: req.GoalEmoji,
			Kind:      kind,
		},
	}
}
