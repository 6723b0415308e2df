package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the identity store.
type Metrics struct {
	MigrationSteps    *prometheus.CounterVec
	IdentitiesCreated prometheus.Counter
	InsertFailures    *prometheus.CounterVec
}

// New creates and registers the store metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MigrationSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tiqr_migration_steps_total",
			Help: "Schema migration steps applied, by source and target version",
		}, []string{"from", "to"}),
		IdentitiesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "tiqr_identities_created_total",
			Help: "Total number of identities persisted",
		}),
		InsertFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tiqr_store_insert_failures_total",
			Help: "Inserts that returned the failed-id sentinel, by table",
		}, []string{"table"}),
	}
}

// IncrementMigrationStep records an applied migration step.
func (m *Metrics) IncrementMigrationStep(from, to int) {
	if m == nil {
		return
	}
	m.MigrationSteps.WithLabelValues(strconv.Itoa(from), strconv.Itoa(to)).Inc()
}

// IncrementIdentitiesCreated increments the identities created counter by 1.
func (m *Metrics) IncrementIdentitiesCreated() {
	if m == nil {
		return
	}
	m.IdentitiesCreated.Inc()
}

// IncrementInsertFailure records an insert that could not produce a row id.
func (m *Metrics) IncrementInsertFailure(table string) {
	if m == nil {
		return
	}
	m.InsertFailures.WithLabelValues(table).Inc()
}
