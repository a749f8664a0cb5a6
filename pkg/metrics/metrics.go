package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking ledger metrics
	ReservationsTotal    prometheus.Counter
	ReservationConflicts prometheus.Counter
	ReschedulesTotal     prometheus.Counter
	CancellationsTotal   prometheus.Counter

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates the application metrics without registering them, so tests can
// construct as many instances as they need.
func New(namespace string) *Metrics {
	return &Metrics{
		ReservationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Total number of successful slot reservations",
		}),
		ReservationConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_conflicts_total",
			Help:      "Total number of reservations rejected because the slot was held",
		}),
		ReschedulesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reschedules_total",
			Help:      "Total number of successful reschedules",
		}),
		CancellationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Total number of cancellations",
		}),
		OutboxEventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully published outbox events",
		}),
		OutboxEventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of outbox events that failed publication",
		}),
		OutboxProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// Register registers all metrics with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.ReservationsTotal,
		m.ReservationConflicts,
		m.ReschedulesTotal,
		m.CancellationsTotal,
		m.OutboxEventsProcessed,
		m.OutboxEventsFailed,
		m.OutboxProcessingLatency,
		m.DatabaseOperations,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
