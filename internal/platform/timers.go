package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/notexe/goal-reminders/internal/reminder"
)

const deliverTimeout = 30 * time.Second

// DeliveryHook observes every fired timer; err is the delivery result.
type DeliveryHook func(content reminder.Content, err error)

// GocronTimers arms one gocron one-time job per reminder and hands the
// content to a Deliverer when it fires. Timers live in process memory; the
// coordinator's Reconcile re-arms them after a restart.
type GocronTimers struct {
	scheduler gocron.Scheduler
	deliverer Deliverer
	clock     clockwork.Clock
	log       *zap.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]Timer
	hook    DeliveryHook
}

// NewGocronTimers creates a stopped timer service. Call Start to begin
// firing.
func NewGocronTimers(deliverer Deliverer, clock clockwork.Clock, log *zap.Logger) (*GocronTimers, error) {
	if deliverer == nil {
		return nil, fmt.Errorf("timers: deliverer is nil")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}

	s, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(gocronLogger{log.Named("gocron")}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &GocronTimers{
		scheduler: s,
		deliverer: deliverer,
		clock:     clock,
		log:       log,
		pending:   make(map[uuid.UUID]Timer),
	}, nil
}

// OnDeliver registers a hook called after each delivery attempt.
func (t *GocronTimers) OnDeliver(hook DeliveryHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = hook
}

// Start begins firing armed timers.
func (t *GocronTimers) Start() {
	t.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running deliveries.
func (t *GocronTimers) Shutdown() error {
	return t.scheduler.Shutdown()
}

// Create arms a timer for fireTime, which must be in the future.
func (t *GocronTimers) Create(_ context.Context, content reminder.Content, fireTime time.Time) (string, error) {
	if !fireTime.After(t.clock.Now()) {
		return "", fmt.Errorf("timer fire time %s is not in the future", fireTime.Format(time.RFC3339))
	}

	id := uuid.New()

	t.mu.Lock()
	t.pending[id] = Timer{ID: id.String(), FireTime: fireTime, Content: content}
	t.mu.Unlock()

	_, err := t.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(fireTime)),
		gocron.NewTask(t.fire, id),
		gocron.WithIdentifier(id),
		gocron.WithName(reminder.RecordID(content.Payload.GoalID, content.Payload.Kind)),
		gocron.WithTags(content.Payload.GoalID, string(content.Payload.Kind)),
	)
	if err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return "", fmt.Errorf("failed to arm timer: %w", err)
	}

	return id.String(), nil
}

// Cancel disarms a timer. Fired or unknown timers yield ErrTimerNotFound.
func (t *GocronTimers) Cancel(_ context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}

	t.mu.Lock()
	_, ok := t.pending[uid]
	delete(t.pending, uid)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}

	if err := t.scheduler.RemoveJob(uid); err != nil {
		if errors.Is(err, gocron.ErrJobNotFound) {
			return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
		}
		return fmt.Errorf("failed to cancel timer %s: %w", id, err)
	}
	return nil
}

// List returns live timers ordered by fire time.
func (t *GocronTimers) List(_ context.Context) ([]Timer, error) {
	t.mu.Lock()
	timers := make([]Timer, 0, len(t.pending))
	for _, tm := range t.pending {
		timers = append(timers, tm)
	}
	t.mu.Unlock()

	sort.Slice(timers, func(i, j int) bool {
		return timers[i].FireTime.Before(timers[j].FireTime)
	})
	return timers, nil
}

func (t *GocronTimers) fire(id uuid.UUID) {
	t.mu.Lock()
	tm, ok := t.pending[id]
	delete(t.pending, id)
	hook := t.hook
	t.mu.Unlock()

	if !ok {
		// Cancelled between the job starting and this call.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	err := t.deliverer.Deliver(ctx, tm.Content)
	if err != nil {
		t.log.Error("delivery failed",
			zap.String("timer_id", tm.ID),
			zap.String("goal_id", tm.Content.Payload.GoalID),
			zap.String("kind", string(tm.Content.Payload.Kind)),
			zap.Error(err))
	} else {
		t.log.Info("reminder delivered",
			zap.String("timer_id", tm.ID),
			zap.String("goal_id", tm.Content.Payload.GoalID),
			zap.String("kind", string(tm.Content.Payload.Kind)))
	}

	if hook != nil {
		hook(tm.Content, err)
	}
}

// gocronLogger adapts zap to gocron.Logger.
type gocronLogger struct {
	log *zap.Logger
}

func (l gocronLogger) Debug(msg string, args ...any) { l.log.Sugar().Debugw(msg, args...) }
func (l gocronLogger) Info(msg string, args ...any)  { l.log.Sugar().Infow(msg, args...) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.log.Sugar().Warnw(msg, args...) }
func (l gocronLogger) Error(msg string, args ...any) { l.log.Sugar().Errorw(msg, args...) }
