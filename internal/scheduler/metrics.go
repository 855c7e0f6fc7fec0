package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/notexe/goal-reminders/internal/reminder"
)

// Metrics counts coordinator and delivery activity.
type Metrics struct {
	Scheduled        *prometheus.CounterVec
	Skipped          *prometheus.CounterVec
	Failures         *prometheus.CounterVec
	Cancelled        prometheus.Counter
	Swept            prometheus.Counter
	PermissionDenied prometheus.Counter
	Delivered        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Scheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goal_reminders_scheduled_total",
				Help: "Reminders armed, by kind",
			},
			[]string{"kind"},
		),
		Skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goal_reminders_skipped_total",
				Help: "Enabled reminders not armed because their fire time had passed",
			},
			[]string{"kind"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goal_reminders_failures_total",
				Help: "Failed platform or ledger operations",
			},
			[]string{"operation"},
		),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goal_reminders_cancelled_total",
			Help: "Ledger records removed by goal cancellation",
		}),
		Swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goal_reminders_swept_total",
			Help: "Expired ledger records removed by cleanup",
		}),
		PermissionDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "goal_reminders_permission_denied_total",
			Help: "Schedule calls aborted because notifications are not permitted",
		}),
		Delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goal_reminders_delivered_total",
				Help: "Fired reminders handed to the deliverer, by result",
			},
			[]string{"kind", "result"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Scheduled, m.Skipped, m.Failures, m.Cancelled, m.Swept, m.PermissionDenied, m.Delivered)
	}
	return m
}

// ObserveDelivery matches platform.DeliveryHook.
func (m *Metrics) ObserveDelivery(content reminder.Content, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Delivered.WithLabelValues(string(content.Payload.Kind), result).Inc()
}
