package reminder

import "time"

// DefaultReminderHour is the local hour used for day- and week-before
// reminders.
const DefaultReminderHour = 9

// Calculator maps a target date and kind to a fire time. It has no side
// effects; callers pass the current instant.
type Calculator struct {
	Location *time.Location
	Hour     int
}

// NewCalculator returns a calculator for loc at DefaultReminderHour.
func NewCalculator(loc *time.Location) Calculator {
	return Calculator{Location: loc, Hour: DefaultReminderHour}
}

// FireTime returns the fire time for kind, or false when it is not strictly
// after now.
func (c Calculator) FireTime(target time.Time, kind Kind, now time.Time) (time.Time, bool) {
	var fire time.Time
	switch kind {
	case KindOnFinish:
		fire = target
	case KindOneDayBefore:
		fire = c.atReminderHour(target, -1)
	case KindOneWeekBefore:
		fire = c.atReminderHour(target, -7)
	default:
		return time.Time{}, false
	}

	if !fire.After(now) {
		return time.Time{}, false
	}
	return fire, true
}

// atReminderHour moves days calendar days from t in the calculator's
// location and returns that day at the reminder hour, so DST changes never
// shift the reminder onto another date.
func (c Calculator) atReminderHour(t time.Time, days int) time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+days, c.Hour, 0, 0, 0, loc)
}
