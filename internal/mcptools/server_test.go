package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/notexe/goal-reminders/internal/ledger"
	"github.com/notexe/goal-reminders/internal/platform"
	"github.com/notexe/goal-reminders/internal/reminder"
	"github.com/notexe/goal-reminders/internal/scheduler"
	"github.com/notexe/goal-reminders/internal/storage"
)

type memTimers struct {
	mu   sync.Mutex
	next int
	live map[string]platform.Timer
}

func (m *memTimers) Create(_ context.Context, content reminder.Content, fire time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("t%d", m.next)
	m.live[id] = platform.Timer{ID: id, FireTime: fire, Content: content}
	return id, nil
}

func (m *memTimers) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[id]; !ok {
		return platform.ErrTimerNotFound
	}
	delete(m.live, id)
	return nil
}

func (m *memTimers) List(context.Context) ([]platform.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]platform.Timer, 0, len(m.live))
	for _, t := range m.live {
		out = append(out, t)
	}
	return out, nil
}

func newTestServer(t *testing.T) (*Server, *memTimers, *platform.Consent) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "reminders.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	l, err := ledger.New(db)
	if err != nil {
		t.Fatal(err)
	}
	consent, err := platform.NewConsent(db, true)
	if err != nil {
		t.Fatal(err)
	}
	timers := &memTimers{live: make(map[string]platform.Timer)}

	coord, err := scheduler.New(scheduler.Options{
		Ledger:      l,
		Timers:      timers,
		Permissions: consent,
		Calculator:  reminder.NewCalculator(time.UTC),
		Clock:       clockwork.NewFakeClockAt(time.Date(2025, 8, 10, 10, 0, 0, 0, time.UTC)),
		Supported:   true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(coord, consent), timers, consent
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func TestScheduleTool(t *testing.T) {
	s, timers, _ := newTestServer(t)

	res, err := s.handleSchedule(context.Background(), call(map[string]any{
		"goal_id":     "goal-1",
		"goal_title":  "Lose 10kg",
		"goal_emoji":  "💪",
		"target_date": "2025-08-15T00:00:00Z",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}

	var report scheduler.Report
	if err := json.Unmarshal([]byte(resultText(t, res)), &report); err != nil {
		t.Fatal(err)
	}
	// Week-before (08-08 09:00) is already past at 08-10.
	if report.Scheduled != 2 || len(timers.live) != 2 {
		t.Fatalf("report %+v with %d timers, want 2", report, len(timers.live))
	}
	for _, o := range report.Outcomes {
		if o.Kind == reminder.KindOneWeekBefore && o.Result != scheduler.ResultSkippedPast {
			t.Errorf("week-before outcome = %s, want skipped", o.Result)
		}
	}
}

func TestScheduleToolValidation(t *testing.T) {
	s, timers, _ := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing goal", map[string]any{"goal_title": "x", "target_date": "2025-08-15T00:00:00Z"}, "goal_id is required"},
		{"missing date", map[string]any{"goal_id": "g", "goal_title": "x"}, "target_date is required"},
		{"bad date", map[string]any{"goal_id": "g", "goal_title": "x", "target_date": "tomorrow"}, "invalid target_date"},
		{"bad kind", map[string]any{"goal_id": "g", "goal_title": "x", "target_date": "2025-08-15T00:00:00Z", "kinds": "hourly"}, "unknown reminder kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleSchedule(context.Background(), call(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if !res.IsError {
				t.Fatal("expected tool error")
			}
			if got := resultText(t, res); !strings.Contains(got, tt.want) {
				t.Errorf("error = %q, want it to contain %q", got, tt.want)
			}
		})
	}
	if len(timers.live) != 0 {
		t.Errorf("invalid calls armed %d timers", len(timers.live))
	}
}

func TestScheduleToolWithoutTitle(t *testing.T) {
	s, timers, _ := newTestServer(t)

	res, err := s.handleSchedule(context.Background(), call(map[string]any{
		"goal_id":     "goal-1",
		"target_date": "2025-08-15T00:00:00Z",
		"kinds":       "on_finish",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	if len(timers.live) != 1 {
		t.Fatalf("live timers = %d, want 1", len(timers.live))
	}
	for _, tm := range timers.live {
		if !strings.Contains(tm.Content.Body, "your goal") {
			t.Errorf("body = %q, want the generic label", tm.Content.Body)
		}
	}
}

func TestListAndCancelTools(t *testing.T) {
	s, timers, _ := newTestServer(t)
	ctx := context.Background()

	res, _ := s.handleList(ctx, call(nil))
	if got := resultText(t, res); got != "No reminders found." {
		t.Errorf("empty list = %q", got)
	}

	if _, err := s.handleSchedule(ctx, call(map[string]any{
		"goal_id":     "goal-1",
		"goal_title":  "Lose 10kg",
		"target_date": "2025-08-15T00:00:00Z",
		"kinds":       "onFinish",
	})); err != nil {
		t.Fatal(err)
	}

	res, _ = s.handleList(ctx, call(map[string]any{"goal_id": "goal-1"}))
	var records []reminder.Record
	if err := json.Unmarshal([]byte(resultText(t, res)), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].RecordID != "goal-1_on_finish" {
		t.Fatalf("records = %+v", records)
	}

	res, _ = s.handleCancel(ctx, call(map[string]any{"goal_id": "goal-1"}))
	if res.IsError {
		t.Fatalf("cancel: %s", resultText(t, res))
	}
	if len(timers.live) != 0 {
		t.Errorf("live timers after cancel = %d", len(timers.live))
	}

	res, _ = s.handleCancel(ctx, call(nil))
	if !res.IsError {
		t.Error("cancel without goal_id should fail")
	}
}

func TestMaintenanceTools(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx := context.Background()

	res, _ := s.handleCleanup(ctx, call(nil))
	if got := resultText(t, res); got != "Removed 0 expired reminders." {
		t.Errorf("cleanup = %q", got)
	}

	res, _ = s.handleReconcile(ctx, call(nil))
	if res.IsError {
		t.Errorf("reconcile: %s", resultText(t, res))
	}
}

func TestSetPermissionTool(t *testing.T) {
	s, _, consent := newTestServer(t)
	ctx := context.Background()

	if _, err := s.handleSetPermission(ctx, call(map[string]any{"granted": false})); err != nil {
		t.Fatal(err)
	}
	granted, decided, err := consent.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if granted || !decided {
		t.Fatalf("granted=%v decided=%v, want revoked", granted, decided)
	}

	res, _ := s.handleSchedule(ctx, call(map[string]any{
		"goal_id":     "goal-1",
		"goal_title":  "Lose 10kg",
		"target_date": "2025-08-15T00:00:00Z",
	}))
	if !strings.Contains(resultText(t, res), string(scheduler.StatusPermissionDenied)) {
		t.Errorf("schedule after revoke = %s", resultText(t, res))
	}

	s.handleSetPermission(ctx, call(map[string]any{"granted": true}))
	if granted, _, _ := consent.Status(ctx); !granted {
		t.Error("grant not stored")
	}
}
