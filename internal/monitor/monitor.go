package monitor

import (
	"time"

	"github.com/d2r2/go-logger"

	"github.com/lutzky/sensormon/internal/state"
	isync "github.com/lutzky/sensormon/internal/sync"
)

var lg = logger.NewPackageLogger("monitor", logger.InfoLevel)

// Sink acts on a snapshot. It is always called outside the state guard.
type Sink interface {
	Publish(snap state.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(state.Snapshot) error

func (f SinkFunc) Publish(snap state.Snapshot) error { return f(snap) }

// Monitor periodically samples the shared state and hands the copy to its
// sinks. It never writes to the state.
type Monitor struct {
	shared *state.Shared
	loop   *isync.Loop
	sinks  []Sink
}

// New returns a monitor sampling every interval.
func New(shared *state.Shared, interval time.Duration, sinks ...Sink) *Monitor {
	return &Monitor{
		shared: shared,
		loop:   isync.NewLoop("monitor", interval),
		sinks:  sinks,
	}
}

// Loop exposes the underlying loop for state inspection.
func (m *Monitor) Loop() *isync.Loop {
	return m.loop
}

// Run samples until the shared state is stopped.
func (m *Monitor) Run() error {
	lg.Infof("Monitor started (interval %v, %d sinks)", m.loop.Interval, len(m.sinks))
	err := m.loop.Run(m.shared, func() bool {
		m.Tick()
		return true
	})
	lg.Infof("Monitor stopped after %d snapshots", m.loop.Iterations())
	return err
}

// Tick takes one snapshot and publishes it to every sink.
func (m *Monitor) Tick() {
	snap := m.shared.Snapshot()
	for _, s := range m.sinks {
		if err := s.Publish(snap); err != nil {
			lg.Errorf("Sink failed: %v", err)
		}
	}
}
