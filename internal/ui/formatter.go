// Package ui renders reminders and scheduling reports for the terminal.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/notexe/goal-reminders/internal/reminder"
	"github.com/notexe/goal-reminders/internal/scheduler"
)

var (
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")). // Coral red
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")) // Warm yellow

	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")).
			Bold(true)

	AccentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("147")) // Light purple
)

const timeLayout = "Mon 02 Jan 2006 15:04"

type Formatter struct {
	colored bool
	loc     *time.Location
}

// NewFormatter returns a formatter that prints times in loc. A nil loc means
// time.Local.
func NewFormatter(colored bool, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{colored: colored, loc: loc}
}

func (f *Formatter) render(style lipgloss.Style, s string) string {
	if f.colored {
		return style.Render(s)
	}
	return s
}

func (f *Formatter) FormatError(err error) string {
	return f.render(ErrorStyle, "Error: ") + err.Error()
}

func (f *Formatter) FormatInfo(info string) string {
	return f.render(InfoStyle, info)
}

func (f *Formatter) FormatSuccess(msg string) string {
	return f.render(SuccessStyle, msg)
}

// FormatRecords lists ledger records grouped by goal in fire-time order.
func (f *Formatter) FormatRecords(records []reminder.Record, now time.Time) string {
	if len(records) == 0 {
		return f.render(DimStyle, "No reminders scheduled.")
	}

	sorted := make([]reminder.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].GoalID < sorted[j].GoalID })

	var b strings.Builder
	goal := ""
	for _, rec := range sorted {
		if rec.GoalID != goal {
			if goal != "" {
				b.WriteString("\n")
			}
			goal = rec.GoalID
			title := strings.TrimSpace(rec.GoalEmoji + " " + rec.GoalTitle)
			b.WriteString(f.render(HeaderStyle, title))
			b.WriteString(" " + f.render(DimStyle, "("+rec.GoalID+")") + "\n")
		}

		when := rec.FireTime.In(f.loc).Format(timeLayout)
		status := "in " + formatDuration(rec.FireTime.Sub(now))
		style := AccentStyle
		if !rec.FireTime.After(now) {
			status = "expired"
			style = WarningStyle
		}
		fmt.Fprintf(&b, "  %-16s %s  %s\n", kindLabel(rec.Kind), when, f.render(style, status))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) FormatReconcileReport(r scheduler.ReconcileReport) string {
	msg := fmt.Sprintf("Re-armed %d, dropped %d, orphan timers cancelled %d",
		r.Rearmed, r.Dropped, r.OrphanTimersCancelled)
	msg = f.FormatInfo(msg)
	for _, fail := range r.Failures {
		msg += "\n  " + f.render(ErrorStyle, fail)
	}
	return msg
}

func kindLabel(k reminder.Kind) string {
	switch k {
	case reminder.KindOnFinish:
		return "on finish"
	case reminder.KindOneDayBefore:
		return "1 day before"
	case reminder.KindOneWeekBefore:
		return "1 week before"
	}
	return string(k)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd%dh", days, int(d.Hours())%24)
}
