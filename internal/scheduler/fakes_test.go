package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notexe/goal-reminders/internal/ledger"
	"github.com/notexe/goal-reminders/internal/platform"
	"github.com/notexe/goal-reminders/internal/reminder"
	"github.com/notexe/goal-reminders/internal/storage"
)

type fakeTimers struct {
	mu          sync.Mutex
	next        int
	live        map[string]platform.Timer
	createCalls int
	cancelCalls int
	failCreate  map[reminder.Kind]error
	failCancel  map[string]error
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{
		live:       make(map[string]platform.Timer),
		failCreate: make(map[reminder.Kind]error),
		failCancel: make(map[string]error),
	}
}

func (f *fakeTimers) Create(_ context.Context, content reminder.Content, fire time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if err := f.failCreate[content.Payload.Kind]; err != nil {
		return "", err
	}
	f.next++
	id := fmt.Sprintf("timer-%d", f.next)
	f.live[id] = platform.Timer{ID: id, FireTime: fire, Content: content}
	return id, nil
}

func (f *fakeTimers) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if err := f.failCancel[id]; err != nil {
		return err
	}
	if _, ok := f.live[id]; !ok {
		return fmt.Errorf("%w: %s", platform.ErrTimerNotFound, id)
	}
	delete(f.live, id)
	return nil
}

func (f *fakeTimers) List(_ context.Context) ([]platform.Timer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]platform.Timer, 0, len(f.live))
	for _, t := range f.live {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fire simulates the platform firing and self-clearing a timer.
func (f *fakeTimers) fire(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, id)
}

func (f *fakeTimers) calls() (create, cancel int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.cancelCalls
}

type fakePermissions struct {
	granted bool
	err     error
	calls   int
}

func (p *fakePermissions) Request(context.Context) (bool, error) {
	p.calls++
	return p.granted, p.err
}

// faultyLedger wraps the SQLite ledger with injectable failures and write
// counters.
type faultyLedger struct {
	*ledger.Ledger
	upsertErr       map[reminder.Kind]error
	listErr         error
	removeByGoalErr error
	upserts      int
	removeByGoal int
}

func (l *faultyLedger) Upsert(ctx context.Context, rec reminder.Record) error {
	l.upserts++
	if err := l.upsertErr[rec.Kind]; err != nil {
		return err
	}
	return l.Ledger.Upsert(ctx, rec)
}

func (l *faultyLedger) ListByGoal(ctx context.Context, goalID string) ([]reminder.Record, error) {
	if l.listErr != nil {
		return nil, l.listErr
	}
	return l.Ledger.ListByGoal(ctx, goalID)
}

func (l *faultyLedger) RemoveByGoal(ctx context.Context, goalID string) (int, error) {
	l.removeByGoal++
	if l.removeByGoalErr != nil {
		return 0, l.removeByGoalErr
	}
	return l.Ledger.RemoveByGoal(ctx, goalID)
}

type harness struct {
	coord   *Coordinator
	ledger  *faultyLedger
	timers  *fakeTimers
	perms   *fakePermissions
	clock   *clockwork.FakeClock
	logs    *observer.ObservedLogs
	metrics *Metrics
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "reminders.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	base, err := ledger.New(db)
	if err != nil {
		t.Fatal(err)
	}

	core, logs := observer.New(zap.DebugLevel)
	h := &harness{
		ledger:  &faultyLedger{Ledger: base, upsertErr: make(map[reminder.Kind]error)},
		timers:  newFakeTimers(),
		perms:   &fakePermissions{granted: true},
		clock:   clockwork.NewFakeClockAt(now),
		logs:    logs,
		metrics: NewMetrics(nil),
	}

	h.coord, err = New(Options{
		Ledger:      h.ledger,
		Timers:      h.timers,
		Permissions: h.perms,
		Calculator:  reminder.NewCalculator(time.UTC),
		Clock:       h.clock,
		Supported:   true,
		Logger:      zap.New(core),
		Metrics:     h.metrics,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func (h *harness) records(t *testing.T, goalID string) map[reminder.Kind]reminder.Record {
	t.Helper()
	recs, err := h.ledger.Ledger.ListByGoal(context.Background(), goalID)
	if err != nil {
		t.Fatalf("ListByGoal: %v", err)
	}
	out := make(map[reminder.Kind]reminder.Record, len(recs))
	for _, r := range recs {
		if _, dup := out[r.Kind]; dup {
			t.Fatalf("duplicate record for %s/%s", goalID, r.Kind)
		}
		out[r.Kind] = r
	}
	return out
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func loseWeight(t *testing.T, kinds ...reminder.Kind) reminder.Request {
	return reminder.Request{
		GoalID:     "goal-1",
		GoalTitle:  "Lose 10kg",
		GoalEmoji:  "💪",
		TargetDate: ts(t, "2025-08-15T00:00:00Z"),
		Kinds:      kinds,
	}
}
