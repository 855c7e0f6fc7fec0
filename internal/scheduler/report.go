package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/notexe/goal-reminders/internal/reminder"
)

// Status is the overall outcome of a Schedule call.
type Status string

const (
	StatusScheduled        Status = "scheduled"         // at least one reminder armed
	StatusNothingScheduled Status = "nothing_scheduled" // every kind skipped, failed or none enabled
	StatusPermissionDenied Status = "permission_denied"
	StatusUnsupported      Status = "unsupported"
)

// Result is the outcome for a single reminder kind.
type Result string

const (
	ResultScheduled   Result = "scheduled"
	ResultSkippedPast Result = "skipped_past"
	ResultFailed      Result = "failed"
)

// KindOutcome reports what happened to one enabled kind.
type KindOutcome struct {
	Kind     reminder.Kind `json:"kind"`
	Result   Result        `json:"result"`
	FireTime *time.Time    `json:"fire_time,omitempty"`
	TimerID  string        `json:"timer_id,omitempty"`
	Error    string        `json:"error,omitempty"`

	err error
}

// Report is returned by Schedule.
type Report struct {
	GoalID    string        `json:"goal_id"`
	Status    Status        `json:"status"`
	Replaced  int           `json:"replaced"` // records cleared before scheduling
	Outcomes  []KindOutcome `json:"outcomes,omitempty"`
	Scheduled int           `json:"scheduled"`
}

// Err joins the per-kind failures, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Kind, o.err))
		}
	}
	return errors.Join(errs...)
}

// TimerFailure is a timer that could not be cancelled.
type TimerFailure struct {
	RecordID string `json:"record_id"`
	TimerID  string `json:"timer_id"`
	Error    string `json:"error"`

	err error
}

// CancelReport is returned by Cancel.
type CancelReport struct {
	GoalID    string         `json:"goal_id"`
	Cancelled int            `json:"cancelled"`
	Failures  []TimerFailure `json:"failures,omitempty"`
}

// Err joins the timer cancellation failures, or returns nil.
func (r CancelReport) Err() error {
	var errs []error
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", f.RecordID, f.err))
	}
	return errors.Join(errs...)
}

// ReconcileReport is returned by Reconcile.
type ReconcileReport struct {
	OrphanTimersCancelled int      `json:"orphan_timers_cancelled"`
	Rearmed               int      `json:"rearmed"`
	Dropped               int      `json:"dropped"`
	Failures              []string `json:"failures,omitempty"`
}
