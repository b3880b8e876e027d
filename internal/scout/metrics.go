package scout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the action metrics. A single instance is created per
// Assistant so tests can inject a fresh prometheus.Registry.
type Metrics struct {
	// processTotal counts process actions, partitioned by outcome kind
	// ("ok" on success).
	processTotal *prometheus.CounterVec

	// processDuration records the wall-clock duration of process actions.
	processDuration *prometheus.HistogramVec

	// askTotal counts ask actions, partitioned by outcome kind.
	askTotal *prometheus.CounterVec

	// askDuration records the wall-clock duration of ask actions.
	askDuration *prometheus.HistogramVec

	// indexedChunks records the chunk count of each successful process.
	indexedChunks prometheus.Histogram
}

// NewMetrics registers the action metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		processTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "process_total",
			Help:      "Total number of process actions, partitioned by outcome.",
		}, []string{"outcome"}),

		processDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scout",
			Name:      "process_duration_seconds",
			Help:      "Wall-clock duration of process actions from fetch to index publication.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		askTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scout",
			Name:      "ask_total",
			Help:      "Total number of ask actions, partitioned by outcome.",
		}, []string{"outcome"}),

		askDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scout",
			Name:      "ask_duration_seconds",
			Help:      "Wall-clock duration of ask actions from retrieval to answer.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		indexedChunks: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scout",
			Name:      "indexed_chunks",
			Help:      "Number of chunks indexed by each successful process action.",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 10),
		}),
	}
}

// outcomeLabel is the metric label for an Outcome.
func outcomeLabel(o Outcome) string {
	if o.OK() {
		return "ok"
	}
	return string(o.Kind)
}
