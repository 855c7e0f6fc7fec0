package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const sweepTimeout = 2 * time.Minute

// Sweeper periodically removes expired ledger records and, optionally,
// reconciles the ledger against live timers.
type Sweeper struct {
	scheduler gocron.Scheduler
	coord     *Coordinator
	reconcile bool
	log       *zap.Logger
}

// NewSweeper registers the sweep job. The first sweep runs as soon as Start
// is called.
func NewSweeper(coord *Coordinator, interval time.Duration, reconcile bool, clock clockwork.Clock) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweeper interval must be positive, got %s", interval)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create sweeper scheduler: %w", err)
	}

	sw := &Sweeper{
		scheduler: s,
		coord:     coord,
		reconcile: reconcile,
		log:       coord.log.Named("sweeper"),
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(sw.Sweep),
		gocron.WithName("cleanup-expired-reminders"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to register sweep job: %w", err)
	}

	return sw, nil
}

// Start begins periodic sweeping.
func (s *Sweeper) Start() {
	s.log.Info("sweeper started", zap.Bool("reconcile", s.reconcile))
	s.scheduler.Start()
}

// Stop halts the sweeper and waits for a running sweep.
func (s *Sweeper) Stop() error {
	s.log.Info("sweeper shutting down")
	return s.scheduler.Shutdown()
}

// Sweep runs one maintenance pass.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if s.reconcile {
		if _, err := s.coord.Reconcile(ctx); err != nil {
			s.log.Error("reconcile failed", zap.Error(err))
		}
	}

	if _, err := s.coord.CleanupExpired(ctx); err != nil {
		s.log.Error("cleanup failed", zap.Error(err))
	}
}
