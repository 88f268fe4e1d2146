package produce

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts produced output across all streams of a producer.
type Metrics struct {
	rowsEmitted    prometheus.Counter
	batchesEmitted prometheus.Counter
}

// NewMetrics registers the producer counters. A nil registerer leaves them
// unregistered, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourcefeed_rows_emitted_total",
			Help: "Rows delivered to the pipeline executor.",
		}),
		batchesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourcefeed_batches_emitted_total",
			Help: "Batches delivered to the pipeline executor.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.rowsEmitted, m.batchesEmitted)
	}
	return m
}

func (m *Metrics) observe(rows int) {
	m.rowsEmitted.Add(float64(rows))
	m.batchesEmitted.Inc()
}
