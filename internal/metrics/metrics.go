package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	appendAttemptsCounter   *prometheus.CounterVec
	appendsCounter          *prometheus.CounterVec
	eventsShippedCounter    prometheus.Counter
	tokenStoreErrorsCounter *prometheus.CounterVec
	appendDurationMetric    prometheus.Histogram

	sinkPutsCounter      *prometheus.CounterVec
	sinkEventsCounter    prometheus.Counter
	processorRowsCounter *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		appendAttemptsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfship_append_attempts_total",
				Help: "Transmissions to the remote log store by classified outcome.",
			},
			[]string{"outcome"},
		)

		appendsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfship_appends_total",
				Help: "Append calls by terminal result.",
			},
			[]string{"result"},
		)

		eventsShippedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "perfship_events_shipped_total",
				Help: "Events acknowledged by the remote log store.",
			},
		)

		tokenStoreErrorsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfship_token_store_errors_total",
				Help: "Token store failures by operation.",
			},
			[]string{"op"},
		)

		appendDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "perfship_append_duration_seconds",
				Help:    "Duration of append calls including stale-token retries.",
				Buckets: prometheus.DefBuckets,
			},
		)

		sinkPutsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logsink_puts_total",
				Help: "PutLogEvents requests handled by result code.",
			},
			[]string{"code"},
		)

		sinkEventsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "logsink_events_accepted_total",
				Help: "Log events appended to streams.",
			},
		)

		processorRowsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perf_processor_rows_total",
				Help: "Performance rows flushed to ClickHouse by result.",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			appendAttemptsCounter,
			appendsCounter,
			eventsShippedCounter,
			tokenStoreErrorsCounter,
			appendDurationMetric,
			sinkPutsCounter,
			sinkEventsCounter,
			processorRowsCounter,
		)
	})
}

func IncAppendAttempt(outcome string) {
	Init()
	appendAttemptsCounter.WithLabelValues(outcome).Inc()
}

func ObserveAppend(result string, d time.Duration) {
	Init()
	appendsCounter.WithLabelValues(result).Inc()
	appendDurationMetric.Observe(d.Seconds())
}

func AddEventsShipped(n int) {
	Init()
	eventsShippedCounter.Add(float64(n))
}

func IncTokenStoreError(op string) {
	Init()
	tokenStoreErrorsCounter.WithLabelValues(op).Inc()
}

func IncSinkPut(code string) {
	Init()
	sinkPutsCounter.WithLabelValues(code).Inc()
}

func AddSinkEvents(n int) {
	Init()
	sinkEventsCounter.Add(float64(n))
}

func AddProcessorRows(result string, n int) {
	Init()
	processorRowsCounter.WithLabelValues(result).Add(float64(n))
}
