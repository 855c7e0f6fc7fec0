// Package scheduler turns goals into armed reminder timers and keeps the
// ledger in step with the platform.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/notexe/goal-reminders/internal/platform"
	"github.com/notexe/goal-reminders/internal/reminder"
)

// Ledger is the durable record of armed timers.
type Ledger interface {
	Upsert(ctx context.Context, rec reminder.Record) error
	ListByGoal(ctx context.Context, goalID string) ([]reminder.Record, error)
	List(ctx context.Context) ([]reminder.Record, error)
	RemoveByGoal(ctx context.Context, goalID string) (int, error)
	Remove(ctx context.Context, recordID string) error
	RemoveExpired(ctx context.Context, now time.Time) (int, error)
}

// Options configures a Coordinator.
type Options struct {
	Ledger      Ledger
	Timers      platform.Timers
	Permissions platform.Permissions
	Calculator  reminder.Calculator
	Clock       clockwork.Clock
	// Supported is false on hosts with no delivery channel; Schedule is
	// then a no-op.
	Supported bool
	Logger    *zap.Logger
	Metrics   *Metrics
}

// Coordinator is the single entry point for scheduling and cancelling goal
// reminders. Mutating calls are serialized so a goal never ends up with two
// live records of the same kind.
type Coordinator struct {
	ledger      Ledger
	timers      platform.Timers
	permissions platform.Permissions
	calc        reminder.Calculator
	clock       clockwork.Clock
	supported   bool
	log         *zap.Logger
	metrics     *Metrics

	mu sync.Mutex
}

// New creates a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("coordinator: ledger is required")
	}
	if opts.Timers == nil {
		return nil, fmt.Errorf("coordinator: timers are required")
	}
	if opts.Permissions == nil {
		return nil, fmt.Errorf("coordinator: permissions are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Calculator.Location == nil {
		opts.Calculator = reminder.NewCalculator(time.Local)
	}

	return &Coordinator{
		ledger:      opts.Ledger,
		timers:      opts.Timers,
		permissions: opts.Permissions,
		calc:        opts.Calculator,
		clock:       opts.Clock,
		supported:   opts.Supported,
		log:         opts.Logger.Named("scheduler"),
		metrics:     opts.Metrics,
	}, nil
}

// Schedule replaces every reminder of req.GoalID with one timer per enabled
// kind whose fire time is still ahead. Kinds are processed independently; a
// failing kind does not stop the others. The returned error is reserved for
// invalid requests and for failures that would break the one-record-per-kind
// guarantee.
func (c *Coordinator) Schedule(ctx context.Context, req reminder.Request) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}

	report := Report{GoalID: req.GoalID}
	log := c.log.With(zap.String("goal_id", req.GoalID))

	if !c.supported {
		log.Info("notifications not supported on this host, skipping")
		report.Status = StatusUnsupported
		return report, nil
	}

	granted, err := c.permissions.Request(ctx)
	if err != nil {
		c.metrics.Failures.WithLabelValues("permission").Inc()
		return report, fmt.Errorf("request notification permission: %w", err)
	}
	if !granted {
		log.Warn("notification permission denied, nothing scheduled")
		c.metrics.PermissionDenied.Inc()
		report.Status = StatusPermissionDenied
		return report, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cancelled, err := c.cancelLocked(ctx, req.GoalID)
	if err != nil {
		return report, fmt.Errorf("clear previous reminders: %w", err)
	}
	report.Replaced = cancelled.Cancelled

	now := c.clock.Now()
	for _, kind := range req.Kinds {
		outcome := c.scheduleKind(ctx, log, req, kind, now)
		if outcome.Result == ResultScheduled {
			report.Scheduled++
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	report.Status = StatusNothingScheduled
	if report.Scheduled > 0 {
		report.Status = StatusScheduled
	}

	log.Info("goal reminders scheduled",
		zap.Int("scheduled", report.Scheduled),
		zap.Int("requested", len(req.Kinds)),
		zap.Int("replaced", report.Replaced))

	return report, nil
}

func (c *Coordinator) scheduleKind(ctx context.Context, log *zap.Logger, req reminder.Request, kind reminder.Kind, now time.Time) KindOutcome {
	log = log.With(zap.String("kind", string(kind)))

	fire, ok := c.calc.FireTime(req.TargetDate, kind, now)
	if !ok {
		log.Debug("fire time already passed, skipping")
		c.metrics.Skipped.WithLabelValues(string(kind)).Inc()
		return KindOutcome{Kind: kind, Result: ResultSkippedPast}
	}

	content := reminder.BuildContent(req, kind)
	timerID, err := c.timers.Create(ctx, content, fire)
	if err != nil {
		log.Error("failed to create timer", zap.Error(err))
		c.metrics.Failures.WithLabelValues("timer_create").Inc()
		return failed(kind, fmt.Errorf("create timer: %w", err))
	}

	rec := reminder.Record{
		RecordID:  reminder.RecordID(req.GoalID, kind),
		GoalID:    req.GoalID,
		Kind:      kind,
		FireTime:  fire.UTC(),
		TimerID:   timerID,
		GoalTitle: req.GoalTitle,
		GoalEmoji: req.GoalEmoji,
		CreatedAt: now.UTC(),
	}
	if err := c.ledger.Upsert(ctx, rec); err != nil {
		log.Error("failed to record reminder, cancelling its timer", zap.Error(err))
		c.metrics.Failures.WithLabelValues("ledger_write").Inc()
		if cerr := c.timers.Cancel(ctx, timerID); cerr != nil && !errors.Is(cerr, platform.ErrTimerNotFound) {
			// Reconcile will find and cancel it.
			log.Error("timer left without ledger record", zap.String("timer_id", timerID), zap.Error(cerr))
		}
		return failed(kind, fmt.Errorf("record reminder: %w", err))
	}

	c.metrics.Scheduled.WithLabelValues(string(kind)).Inc()
	return KindOutcome{Kind: kind, Result: ResultScheduled, FireTime: &fire, TimerID: timerID}
}

func failed(kind reminder.Kind, err error) KindOutcome {
	return KindOutcome{Kind: kind, Result: ResultFailed, Error: err.Error(), err: err}
}

// Cancel cancels every timer recorded for goalID and removes the records in
// one ledger write. Timer cancellation is best effort: failures are collected
// in the report and the ledger is cleared regardless.
func (c *Coordinator) Cancel(ctx context.Context, goalID string) (CancelReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked(ctx, goalID)
}

func (c *Coordinator) cancelLocked(ctx context.Context, goalID string) (CancelReport, error) {
	report := CancelReport{GoalID: goalID}
	log := c.log.With(zap.String("goal_id", goalID))

	records, err := c.ledger.ListByGoal(ctx, goalID)
	if err != nil {
		log.Error("failed to read ledger", zap.Error(err))
		c.metrics.Failures.WithLabelValues("ledger_read").Inc()
		return report, err
	}
	if len(records) == 0 {
		return report, nil
	}

	var gone []string // records whose timer no longer exists
	for _, rec := range records {
		err := c.timers.Cancel(ctx, rec.TimerID)
		switch {
		case err == nil:
			gone = append(gone, rec.RecordID)
		case errors.Is(err, platform.ErrTimerNotFound):
			log.Debug("timer already gone", zap.String("record_id", rec.RecordID))
			gone = append(gone, rec.RecordID)
		default:
			log.Error("failed to cancel timer", zap.String("record_id", rec.RecordID), zap.Error(err))
			c.metrics.Failures.WithLabelValues("timer_cancel").Inc()
			report.Failures = append(report.Failures, TimerFailure{
				RecordID: rec.RecordID,
				TimerID:  rec.TimerID,
				Error:    err.Error(),
				err:      err,
			})
		}
	}

	n, err := c.ledger.RemoveByGoal(ctx, goalID)
	if err != nil {
		log.Error("failed to remove ledger records, removing cancelled ones singly", zap.Error(err))
		c.metrics.Failures.WithLabelValues("ledger_write").Inc()
		// A record left behind for a cancelled timer would be re-armed by
		// Reconcile.
		if n, err = c.removeRecords(ctx, gone); err != nil {
			log.Error("cancelled reminders still in ledger", zap.Int("removed", n), zap.Error(err))
			return report, err
		}
	}
	report.Cancelled = n
	c.metrics.Cancelled.Add(float64(n))

	log.Info("goal reminders cancelled", zap.Int("cancelled", n), zap.Int("failures", len(report.Failures)))
	return report, nil
}

func (c *Coordinator) removeRecords(ctx context.Context, recordIDs []string) (int, error) {
	var (
		n    int
		errs []error
	)
	for _, id := range recordIDs {
		if err := c.ledger.Remove(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Reminders returns the ledger records of goalID.
func (c *Coordinator) Reminders(ctx context.Context, goalID string) ([]reminder.Record, error) {
	return c.ledger.ListByGoal(ctx, goalID)
}

// AllReminders returns every ledger record.
func (c *Coordinator) AllReminders(ctx context.Context) ([]reminder.Record, error) {
	return c.ledger.List(ctx)
}

// HasActive reports whether goalID has at least one live platform timer.
func (c *Coordinator) HasActive(ctx context.Context, goalID string) (bool, error) {
	timers, err := c.timers.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list timers: %w", err)
	}
	for _, t := range timers {
		if t.Content.Payload.GoalID == goalID {
			return true, nil
		}
	}
	return false, nil
}

// CleanupExpired removes ledger records whose fire time has passed. Fired
// platform timers clear themselves, so no timer calls are made.
func (c *Coordinator) CleanupExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.ledger.RemoveExpired(ctx, c.clock.Now())
	if err != nil {
		c.log.Error("cleanup of expired reminders failed", zap.Error(err))
		c.metrics.Failures.WithLabelValues("ledger_write").Inc()
		return 0, err
	}
	c.metrics.Swept.Add(float64(n))
	if n > 0 {
		c.log.Info("expired reminders removed", zap.Int("removed", n))
	}
	return n, nil
}

// Reconcile brings the ledger and the live timers back in step: timers with
// no record are cancelled, future records whose timer is gone are re-armed and
// past records whose timer is gone are dropped.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var report ReconcileReport

	records, err := c.ledger.List(ctx)
	if err != nil {
		c.metrics.Failures.WithLabelValues("ledger_read").Inc()
		return report, fmt.Errorf("list ledger: %w", err)
	}
	timers, err := c.timers.List(ctx)
	if err != nil {
		c.metrics.Failures.WithLabelValues("timer_list").Inc()
		return report, fmt.Errorf("list timers: %w", err)
	}

	live := make(map[string]bool, len(timers))
	for _, t := range timers {
		live[t.ID] = true
	}
	referenced := make(map[string]bool, len(records))
	now := c.clock.Now()

	for _, rec := range records {
		if live[rec.TimerID] {
			referenced[rec.TimerID] = true
			continue
		}

		if !rec.FireTime.After(now) {
			if err := c.ledger.Remove(ctx, rec.RecordID); err != nil {
				report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", rec.RecordID, err))
				continue
			}
			report.Dropped++
			continue
		}

		req := reminder.Request{GoalID: rec.GoalID, GoalTitle: rec.GoalTitle, GoalEmoji: rec.GoalEmoji}
		timerID, err := c.timers.Create(ctx, reminder.BuildContent(req, rec.Kind), rec.FireTime)
		if err != nil {
			c.metrics.Failures.WithLabelValues("timer_create").Inc()
			report.Failures = append(report.Failures, fmt.Sprintf("%s: re-arm: %v", rec.RecordID, err))
			continue
		}
		rec.TimerID = timerID
		if err := c.ledger.Upsert(ctx, rec); err != nil {
			c.metrics.Failures.WithLabelValues("ledger_write").Inc()
			report.Failures = append(report.Failures, fmt.Sprintf("%s: record: %v", rec.RecordID, err))
			if cerr := c.timers.Cancel(ctx, timerID); cerr != nil && !errors.Is(cerr, platform.ErrTimerNotFound) {
				c.log.Error("timer left without ledger record",
					zap.String("record_id", rec.RecordID), zap.String("timer_id", timerID), zap.Error(cerr))
				report.Failures = append(report.Failures, fmt.Sprintf("timer %s: %v", timerID, cerr))
			}
			continue
		}
		referenced[timerID] = true
		report.Rearmed++
	}

	for _, t := range timers {
		if referenced[t.ID] {
			continue
		}
		if err := c.timers.Cancel(ctx, t.ID); err != nil && !errors.Is(err, platform.ErrTimerNotFound) {
			report.Failures = append(report.Failures, fmt.Sprintf("timer %s: %v", t.ID, err))
			continue
		}
		report.OrphanTimersCancelled++
	}

	c.log.Info("ledger reconciled",
		zap.Int("rearmed", report.Rearmed),
		zap.Int("dropped", report.Dropped),
		zap.Int("orphans_cancelled", report.OrphanTimersCancelled),
		zap.Int("failures", len(report.Failures)))

	return report, nil
}
