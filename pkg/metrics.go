package evtbuilder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the router and the pipeline did with the data.
type Metrics struct {
	FragmentsDecoded    prometheus.Counter
	FragmentsMalformed  prometheus.Counter
	FragmentsUnresolved *prometheus.CounterVec
	EventsAssembled     prometheus.Counter
	EventsEmpty         prometheus.Counter
	EventsFailed        prometheus.Counter
	HitsBuilt           *prometheus.CounterVec
	BuildDuration       prometheus.Histogram
}

// NewMetrics registers the counters on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FragmentsDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "evtbuilder",
			Subsystem: "router",
			Name:      "fragments_decoded_total",
			Help:      "Fragments decoded from trigger batches.",
		}),
		FragmentsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "evtbuilder",
			Subsystem: "router",
			Name:      "fragments_malformed_total",
			Help:      "Fragments skipped because they could not be decoded.",
		}),
		FragmentsUnresolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evtbuilder",
			Subsystem: "router",
			Name:      "fragments_unresolved_total",
			Help:      "Fragments dropped because their channel is not mapped.",
		}, []string{"system"}),
		EventsAssembled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "evtbuilder",
			Subsystem: "pipeline",
			Name:      "events_assembled_total",
			Help:      "Events emitted downstream.",
		}),
		EventsEmpty: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "evtbuilder",
			Subsystem: "pipeline",
			Name:      "events_empty_total",
			Help:      "Events discarded because no detector produced hits.",
		}),
		EventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "evtbuilder",
			Subsystem: "pipeline",
			Name:      "events_failed_total",
			Help:      "Events discarded after a reconstruction failure.",
		}),
		HitsBuilt: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evtbuilder",
			Subsystem: "assembler",
			Name:      "hits_total",
			Help:      "Hits reconstructed per detector system.",
		}, []string{"system"}),
		BuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evtbuilder",
			Subsystem: "assembler",
			Name:      "build_duration_seconds",
			Help:      "Time spent reconstructing one event.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
}
