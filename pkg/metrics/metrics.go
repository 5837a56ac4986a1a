package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow collectors.
type Metrics struct {
	BookingsCreated      prometheus.Counter
	Transitions          *prometheus.CounterVec
	ReservationConflicts prometheus.Counter
	NotifyFailures       prometheus.Counter
	OperationDuration    *prometheus.HistogramVec
	Errors               *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BookingsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "The total number of bookings created",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status transitions by acting role and target status",
		}, []string{"role", "to"}),
		ReservationConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_reservation_conflicts_total",
			Help:      "Bus reservations rejected because another booking holds the bus on that date",
		}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notifications that could not be delivered to the sink",
		}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time taken by workflow operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed workflow operations by error kind",
		}, []string{"operation", "kind"}),
	}
}

// NewNop returns collectors registered on a throwaway registry.
func NewNop() *Metrics {
	return New("nop", prometheus.NewRegistry())
}

// Observe records the duration of op and, when kind is non-empty, counts it as a failure
// of that kind.
func (m *Metrics) Observe(op string, start time.Time, kind string) {
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if kind != "" {
		m.Errors.WithLabelValues(op, kind).Inc()
	}
}
