package monitor

import (
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lutzky/sensormon/internal/state"
)

// LogSink logs the rendered line whenever it changes.
type LogSink struct {
	Items []Item

	last string
}

func (s *LogSink) Publish(snap state.Snapshot) error {
	line := Render(snap, s.Items)
	if line == s.last {
		return nil
	}
	s.last = line
	lg.Infof("%s", line)
	return nil
}

// UDPSink forwards every rendered line as one datagram.
type UDPSink struct {
	Items []Item

	conn net.Conn
}

// DialUDP returns a sink sending to addr, e.g. "127.0.0.1:5006".
func DialUDP(addr string, items []Item) (*UDPSink, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial udp %q: %w", addr, err)
	}
	return &UDPSink{Items: items, conn: conn}, nil
}

func (s *UDPSink) Publish(snap state.Snapshot) error {
	if _, err := s.conn.Write([]byte(Render(snap, s.Items) + "\n")); err != nil {
		return fmt.Errorf("udp forward to %s: %w", s.conn.RemoteAddr(), err)
	}
	return nil
}

// Close releases the socket.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// MetricsSink exports every field of a snapshot as Prometheus gauges.
type MetricsSink struct {
	staleAfter map[string]time.Duration

	value    *prometheus.GaugeVec
	age      *prometheus.GaugeVec
	fresh    *prometheus.GaugeVec
	snapshot prometheus.Gauge
}

// NewMetricsSink registers its gauges with reg. staleAfter holds per-field
// thresholds for sensormon_field_fresh; fields without one are fresh as
// long as they have data.
func NewMetricsSink(reg prometheus.Registerer, staleAfter map[string]time.Duration) *MetricsSink {
	m := &MetricsSink{
		staleAfter: staleAfter,
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensormon_field_value",
			Help: "Last value written to a sensor field",
		}, []string{"field"}),
		age: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensormon_field_age_seconds",
			Help: "Seconds since a sensor field was last written",
		}, []string{"field"}),
		fresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensormon_field_fresh",
			Help: "1 if the field has data newer than its staleness threshold, 0 otherwise",
		}, []string{"field"}),
		snapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensormon_last_snapshot",
			Help: "Unix time of the last monitor snapshot",
		}),
	}
	reg.MustRegister(m.value, m.age, m.fresh, m.snapshot)
	return m
}

func (m *MetricsSink) Publish(snap state.Snapshot) error {
	for _, name := range snap.Names() {
		fresh := 0.0
		if snap.Freshness(name, m.staleAfter[name]) == state.Fresh {
			fresh = 1
		}
		m.fresh.WithLabelValues(name).Set(fresh)

		f, ok := snap.Get(name)
		if !ok {
			continue
		}
		m.value.WithLabelValues(name).Set(f.Value)
		m.age.WithLabelValues(name).Set(snap.At.Sub(f.Updated).Seconds())
	}
	m.snapshot.Set(float64(snap.At.Unix()))
	return nil
}
