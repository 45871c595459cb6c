package monitor

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lutzky/sensormon/internal/state"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []state.Snapshot
}

func (r *recordingSink) Publish(snap state.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

var testItems = []Item{
	{Label: "PAPI", Field: "papi"},
	{Label: "Distance", Field: "distance", Delta: "distance_delta", StaleAfter: 3 * time.Second},
}

func TestRender(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		fields map[string]state.Field
		want   string
	}{
		{
			name: "no data",
			want: "PAPI: waiting | Distance: waiting",
		},
		{
			name: "status without data",
			fields: map[string]state.Field{
				"distance": {Status: "connection lost"},
			},
			want: "PAPI: waiting | Distance: waiting [connection lost]",
		},
		{
			name: "fresh with delta",
			fields: map[string]state.Field{
				"papi":           {Value: 5, Status: "OK", Updated: at},
				"distance":       {Value: 117, Status: "OK", Updated: at.Add(-time.Second)},
				"distance_delta": {Value: -3, Updated: at.Add(-time.Second)},
			},
			want: "PAPI: 5 [OK] | Distance: 117 (Δ -3) [OK]",
		},
		{
			name: "stale",
			fields: map[string]state.Field{
				"distance": {Value: 117, Status: "no data", Updated: at.Add(-10 * time.Second)},
			},
			want: "PAPI: waiting | Distance: 117 [no data] STALE",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Render(state.Snapshot{At: at, Fields: c.fields}, testItems)
			if got != c.want {
				t.Fatalf("Render() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestTick_SinkErrorDoesNotStopOthers(t *testing.T) {
	s := state.New()
	rec := &recordingSink{}
	failing := SinkFunc(func(state.Snapshot) error { return errors.New("display gone") })

	m := New(s, time.Millisecond, failing, rec)
	m.Tick()
	m.Tick()

	if rec.count() != 2 {
		t.Fatalf("recording sink got %d snapshots, want 2", rec.count())
	}
}

func TestTick_SinkRunsOutsideGuard(t *testing.T) {
	s := state.New()
	w, _ := s.Claim("p", "x")

	entered := make(chan struct{})
	release := make(chan struct{})
	slow := SinkFunc(func(state.Snapshot) error {
		close(entered)
		<-release
		return nil
	})

	m := New(s, time.Millisecond, slow)
	go m.Tick()
	<-entered

	wrote := make(chan error, 1)
	go func() { wrote <- w.Update(func(tx *state.Tx) { tx.Set("x", 1) }) }()

	select {
	case err := <-wrote:
		if err != nil {
			t.Fatalf("Update() err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("producer blocked while a sink was publishing")
	}
	close(release)
}

func TestTick_SnapshotIsReadOnlyCopy(t *testing.T) {
	s := state.New()
	w, _ := s.Claim("p", "x")
	_ = w.Update(func(tx *state.Tx) { tx.Set("x", 1) })

	meddling := SinkFunc(func(snap state.Snapshot) error {
		snap.Fields["x"] = state.Field{Value: 42}
		return nil
	})
	New(s, time.Millisecond, meddling).Tick()

	if f, _ := s.Snapshot().Get("x"); f.Value != 1 {
		t.Fatalf("sink changed shared state: x=%v", f.Value)
	}
}

func TestRun_StopsOnStateStop(t *testing.T) {
	s := state.New()
	rec := &recordingSink{}
	m := New(s, 20*time.Millisecond, rec)

	done := make(chan error, 1)
	go func() { done <- m.Run() }()

	time.Sleep(70 * time.Millisecond)
	s.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop")
	}

	// A sampler may see the same value several times.
	if rec.count() < 2 {
		t.Fatalf("expected repeated snapshots, got %d", rec.count())
	}
	if err := m.Run(); err == nil {
		t.Fatalf("a stopped monitor must not restart")
	}
}

func TestLogSink_OnlyOnChange(t *testing.T) {
	sink := &LogSink{Items: testItems}
	snap := state.Snapshot{At: time.Now()}

	_ = sink.Publish(snap)
	first := sink.last
	_ = sink.Publish(snap)
	if sink.last != first || !strings.HasPrefix(first, "PAPI: waiting") {
		t.Fatalf("unexpected last line %q", sink.last)
	}
}

func TestUDPSink(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()

	sink, err := DialUDP(pc.LocalAddr().String(), testItems[:1])
	if err != nil {
		t.Fatalf("DialUDP() err=%v", err)
	}
	defer sink.Close()

	at := time.Now()
	snap := state.Snapshot{At: at, Fields: map[string]state.Field{"papi": {Value: 4, Updated: at}}}
	if err := sink.Publish(snap); err != nil {
		t.Fatalf("Publish() err=%v", err)
	}

	buf := make([]byte, 1024)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() err=%v", err)
	}
	if got := string(buf[:n]); got != "PAPI: 4\n" {
		t.Fatalf("datagram = %q", got)
	}
}

func TestMetricsSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsSink(reg, map[string]time.Duration{"distance": 3 * time.Second})

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := state.Snapshot{At: at, Fields: map[string]state.Field{
		"papi":     {Value: 5, Updated: at.Add(-time.Second)},
		"distance": {Value: 117, Updated: at.Add(-5 * time.Second)},
		"lost":     {Status: "connection lost"},
	}}
	if err := m.Publish(snap); err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"papi value", testutil.ToFloat64(m.value.WithLabelValues("papi")), 5},
		{"papi age", testutil.ToFloat64(m.age.WithLabelValues("papi")), 1},
		{"papi fresh", testutil.ToFloat64(m.fresh.WithLabelValues("papi")), 1},
		{"distance fresh", testutil.ToFloat64(m.fresh.WithLabelValues("distance")), 0},
		{"lost fresh", testutil.ToFloat64(m.fresh.WithLabelValues("lost")), 0},
		{"snapshot time", testutil.ToFloat64(m.snapshot), float64(at.Unix())},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if n := testutil.CollectAndCount(m.value); n != 2 {
		t.Errorf("value series = %d, want 2 (no series for fields without data)", n)
	}
}
