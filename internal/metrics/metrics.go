// Package metrics holds the challenge's domain counters. HTTP metrics live in
// middleware.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PushupsLogged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pushups_logged_total",
			Help: "Total number of push-ups logged by all users",
		},
	)
	DayTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushup_day_transitions_total",
			Help: "Log entry mutations by resulting status",
		},
		[]string{"operation", "status"},
	)
	BreakDaysRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pushup_break_days_rejected_total",
			Help: "Break day requests refused because the monthly allowance was used",
		},
	)
	Reconfigurations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pushup_challenge_reconfigurations_total",
			Help: "Number of times the challenge start date or timezone was set",
		},
	)
	ChallengeDay = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushup_challenge_day",
			Help: "Current challenge day; 0 before the start, -1 after the end",
		},
	)
)

// Register adds the domain metrics to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(PushupsLogged, DayTransitions, BreakDaysRejected, Reconfigurations, ChallengeDay)
}
