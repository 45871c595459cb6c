package sensor

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK        = "ok"
	resultEmpty     = "empty"
	resultMalformed = "malformed"
	resultError     = "error"
)

// Metrics counts producer iterations by outcome.
type Metrics struct {
	reads *prometheus.CounterVec
}

// NewMetrics registers the producer counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensormon_sensor_reads_total",
			Help: "Producer iterations by sensor and result (ok, empty, malformed, error)",
		}, []string{"sensor", "result"}),
	}
	reg.MustRegister(m.reads)
	return m
}

func (m *Metrics) observe(sensor, result string) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(sensor, result).Inc()
}
