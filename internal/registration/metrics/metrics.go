package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics provides observability for the registration module.
// Tracks commit outcomes, availability lookups and critical path durations.
type Metrics struct {
	Commits            *prometheus.CounterVec
	AvailabilityChecks *prometheus.CounterVec
	CommitDuration     prometheus.Histogram
	CompressDuration   prometheus.Histogram
	LookupDuration     *prometheus.HistogramVec
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics with reg.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outbreak_registration_commits_total",
			Help: "Registration commit attempts by outcome",
		}, []string{"outcome"}),
		AvailabilityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outbreak_availability_checks_total",
			Help: "Availability lookups by field and result",
		}, []string{"field", "result"}),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbreak_registration_commit_duration_seconds",
			Help:    "Duration of the transactional read-then-write commit",
			Buckets: durationBuckets,
		}),
		CompressDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbreak_screenshot_compress_duration_seconds",
			Help:    "Duration of screenshot decode, resize and encode",
			Buckets: durationBuckets,
		}),
		LookupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outbreak_availability_lookup_duration_seconds",
			Help:    "Duration of availability lookups against the store",
			Buckets: durationBuckets,
		}, []string{"field"}),
	}
}

// IncrementCommit records a commit outcome: committed, team_name_taken,
// transaction_id_taken, invalid, unavailable or error.
func (m *Metrics) IncrementCommit(outcome string) {
	m.Commits.WithLabelValues(outcome).Inc()
}

// IncrementAvailabilityCheck records a lookup result: taken, available or error.
func (m *Metrics) IncrementAvailabilityCheck(field, result string) {
	m.AvailabilityChecks.WithLabelValues(field, result).Inc()
}

// ObserveCommit records the duration of a commit.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCommit(start time.Time) {
	m.CommitDuration.Observe(time.Since(start).Seconds())
}

// ObserveCompress records the duration of screenshot compression.
func (m *Metrics) ObserveCompress(start time.Time) {
	m.CompressDuration.Observe(time.Since(start).Seconds())
}

// ObserveLookup records the duration of an availability lookup.
func (m *Metrics) ObserveLookup(field string, start time.Time) {
	m.LookupDuration.WithLabelValues(field).Observe(time.Since(start).Seconds())
}
