package reminder

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestFireTimeAllKindsFuture(t *testing.T) {
	calc := NewCalculator(time.UTC)
	target := mustTime(t, "2025-08-15T00:00:00Z")
	now := mustTime(t, "2025-01-01T00:00:00Z")

	tests := []struct {
		kind Kind
		want string
	}{
		{KindOnFinish, "2025-08-15T00:00:00Z"},
		{KindOneDayBefore, "2025-08-14T09:00:00Z"},
		{KindOneWeekBefore, "2025-08-08T09:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, ok := calc.FireTime(target, tt.kind, now)
			if !ok {
				t.Fatal("unexpected skip")
			}
			if !got.Equal(mustTime(t, tt.want)) {
				t.Errorf("FireTime = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFireTimeSkipsPast(t *testing.T) {
	calc := NewCalculator(time.UTC)
	target := mustTime(t, "2025-08-15T00:00:00Z")
	now := mustTime(t, "2025-08-14T12:00:00Z")

	if _, ok := calc.FireTime(target, KindOneDayBefore, now); ok {
		t.Error("one_day_before should be skipped")
	}
	if _, ok := calc.FireTime(target, KindOneWeekBefore, now); ok {
		t.Error("one_week_before should be skipped")
	}
	if _, ok := calc.FireTime(target, KindOnFinish, now); !ok {
		t.Error("on_finish should still fire")
	}
}

func TestFireTimeAtNowIsSkipped(t *testing.T) {
	calc := NewCalculator(time.UTC)
	target := mustTime(t, "2025-08-15T00:00:00Z")

	if _, ok := calc.FireTime(target, KindOnFinish, target); ok {
		t.Error("fire time equal to now must be skipped")
	}
}

func TestFireTimeUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	calc := NewCalculator(loc)
	// 2025-08-15 00:00 at UTC+3
	target := time.Date(2025, 8, 15, 0, 0, 0, 0, loc)
	now := mustTime(t, "2025-01-01T00:00:00Z")

	got, ok := calc.FireTime(target, KindOneDayBefore, now)
	if !ok {
		t.Fatal("unexpected skip")
	}
	want := time.Date(2025, 8, 14, 9, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("FireTime = %s, want %s", got, want)
	}
}

func TestFireTimeAcrossDSTChange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	calc := NewCalculator(loc)
	now := mustTime(t, "2025-01-01T00:00:00Z")
	// Clocks spring forward on 2025-03-09, so 24h before this is 03-08 23:30.
	target := time.Date(2025, 3, 10, 0, 30, 0, 0, loc)

	tests := []struct {
		kind Kind
		want time.Time
	}{
		{KindOneDayBefore, time.Date(2025, 3, 9, 9, 0, 0, 0, loc)},
		{KindOneWeekBefore, time.Date(2025, 3, 3, 9, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		got, ok := calc.FireTime(target, tt.kind, now)
		if !ok {
			t.Fatalf("%s skipped", tt.kind)
		}
		if !got.Equal(tt.want) {
			t.Errorf("%s = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestFireTimeBeforeTarget(t *testing.T) {
	calc := NewCalculator(time.UTC)
	now := mustTime(t, "2020-01-01T00:00:00Z")
	start := mustTime(t, "2025-03-01T00:00:00Z")

	// Sweep target hours across several days, including times before 09:00.
	for h := 0; h < 24*10; h += 5 {
		target := start.Add(time.Duration(h) * time.Hour)
		for _, kind := range []Kind{KindOneDayBefore, KindOneWeekBefore} {
			got, ok := calc.FireTime(target, kind, now)
			if !ok {
				t.Fatalf("%s skipped for %s", kind, target)
			}
			if !got.Before(target) {
				t.Errorf("%s: fire %s not before target %s", kind, got, target)
			}
		}
		got, _ := calc.FireTime(target, KindOnFinish, now)
		if !got.Equal(target) {
			t.Errorf("on_finish: fire %s != target %s", got, target)
		}
	}
}

func TestFireTimeUnknownKind(t *testing.T) {
	if _, ok := NewCalculator(time.UTC).FireTime(time.Now().Add(time.Hour), Kind("monthly"), time.Now()); ok {
		t.Error("unknown kind should be skipped")
	}
}
