package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies which rule produced a reminder.
type Kind string

// Reminder kinds tied to a goal's target date.
const (
	KindOnFinish      Kind = "on_finish"
	KindOneDayBefore  Kind = "one_day_before"
	KindOneWeekBefore Kind = "one_week_before"
)

// AllKinds lists every kind in scheduling order.
var AllKinds = []Kind{KindOnFinish, KindOneDayBefore, KindOneWeekBefore}

// ErrInvalidRequest is returned for requests that cannot be scheduled.
var ErrInvalidRequest = errors.New("invalid reminder request")

func (k Kind) Valid() bool {
	switch k {
	case KindOnFinish, KindOneDayBefore, KindOneWeekBefore:
		return true
	}
	return false
}

// ParseKind accepts the canonical names plus the camel-case spellings the
// mobile client sends ("onFinish", "oneDayBefore", "oneWeekBefore").
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", "_", "").Replace(norm)
	switch norm {
	case "onfinish", "finish":
		return KindOnFinish, nil
	case "onedaybefore", "daybefore", "1d":
		return KindOneDayBefore, nil
	case "oneweekbefore", "weekbefore", "1w":
		return KindOneWeekBefore, nil
	}
	return "", fmt.Errorf("%w: unknown reminder kind %q", ErrInvalidRequest, s)
}

// ParseKinds parses a list of kind names. A single element may itself be a
// comma-separated list.
func ParseKinds(values ...string) ([]Kind, error) {
	var kinds []Kind
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			k, err := ParseKind(part)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Request is the input to the scheduler.
type Request struct {
	GoalID     string    `json:"goal_id"`
	GoalTitle  string    `json:"goal_title"`
	GoalEmoji  string    `json:"goal_emoji,omitempty"`
	TargetDate time.Time `json:"target_date"`
	Kinds      []Kind    `json:"kinds"`
}

// Validate checks the request shape. An empty kind set is valid and simply
// clears the goal's reminders.
func (r Request) Validate() error {
	if strings.TrimSpace(r.GoalID) == "" {
		return fmt.Errorf("%w: goal id is required", ErrInvalidRequest)
	}
	if r.TargetDate.IsZero() {
		return fmt.Errorf("%w: target date is required", ErrInvalidRequest)
	}
	seen := make(map[Kind]bool, len(r.Kinds))
	for _, k := range r.Kinds {
		if !k.Valid() {
			return fmt.Errorf("%w: unknown reminder kind %q", ErrInvalidRequest, k)
		}
		if seen[k] {
			return fmt.Errorf("%w: duplicate reminder kind %q", ErrInvalidRequest, k)
		}
		seen[k] = true
	}
	return nil
}

// Record is a ledger row: one armed platform timer.
type Record struct {
	RecordID  string    `json:"record_id"`
	GoalID    string    `json:"goal_id"`
	Kind      Kind      `json:"kind"`
	FireTime  time.Time `json:"fire_time"`
	TimerID   string    `json:"timer_id"`
	GoalTitle string    `json:"goal_title"`
	GoalEmoji string    `json:"goal_emoji,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordID derives the ledger key for a (goal, kind) pair.
func RecordID(goalID string, kind Kind) string {
	return goalID + "_" + string(kind)
}
