package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels. Failures use the failure reason as their outcome.
const OutcomeSuccess = "success"

// Metrics holds Prometheus metrics for challenge parsing and completion.
type Metrics struct {
	Parsed            *prometheus.CounterVec
	Completed         *prometheus.CounterVec
	CompleteDuration  *prometheus.HistogramVec
	IdentitiesBlocked prometheus.Counter
	OTPsGenerated     prometheus.Counter
}

// New creates and registers the challenge metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Parsed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tiqr_challenge_parse_total",
			Help: "Challenge parse attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		Completed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tiqr_challenge_complete_total",
			Help: "Challenge completions by kind and outcome",
		}, []string{"kind", "outcome"}),
		CompleteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tiqr_challenge_complete_duration_seconds",
			Help:    "Time to complete a challenge, including the server round trip",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		IdentitiesBlocked: f.NewCounter(prometheus.CounterOpts{
			Name: "tiqr_identities_blocked_total",
			Help: "Identities marked blocked after a server rejection",
		}),
		OTPsGenerated: f.NewCounter(prometheus.CounterOpts{
			Name: "tiqr_otp_generated_total",
			Help: "One-time passwords generated offline",
		}),
	}
}

func (m *Metrics) IncrementParse(kind, outcome string) {
	if m == nil {
		return
	}
	m.Parsed.WithLabelValues(kind, outcome).Inc()
}

// ObserveComplete records one completion and how long it took.
func (m *Metrics) ObserveComplete(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Completed.WithLabelValues(kind, outcome).Inc()
	m.CompleteDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementIdentitiesBlocked() {
	if m == nil {
		return
	}
	m.IdentitiesBlocked.Inc()
}

func (m *Metrics) IncrementOTPGenerated() {
	if m == nil {
		return
	}
	m.OTPsGenerated.Inc()
}
