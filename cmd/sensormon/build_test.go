package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/lutzky/sensormon/internal/config"
	"github.com/lutzky/sensormon/internal/monitor"
	"github.com/lutzky/sensormon/internal/sensor"
	"github.com/lutzky/sensormon/internal/state"
)

func TestBuildProducers_Demo(t *testing.T) {
	shared := state.New()
	producers, closers, items, err := buildProducers(config.Demo(), shared, nil)
	if err != nil {
		t.Fatalf("buildProducers() err=%v", err)
	}
	defer closeAll(closers)

	if len(producers) != 2 || len(items) != 2 {
		t.Fatalf("got %d producers, %d items", len(producers), len(items))
	}
	if owners := shared.Owners(); owners["a"] != "a" || owners["b"] != "b" {
		t.Fatalf("owners = %v", owners)
	}
}

func TestBuildProducers_PAPIGoesStale(t *testing.T) {
	cfg, err := config.Parse([]byte("sensors:\n  papi: {listen: '127.0.0.1:0'}\n"))
	if err != nil {
		t.Fatal(err)
	}

	_, closers, items, err := buildProducers(cfg, state.New(), nil)
	defer closeAll(closers)
	if err != nil {
		t.Fatalf("buildProducers() err=%v", err)
	}
	if len(items) != 1 || items[0].StaleAfter != 3*time.Second {
		t.Fatalf("items = %+v", items)
	}
}

func TestWithEcho(t *testing.T) {
	l, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	port := sensor.NewReaderSource(strings.NewReader("boot ok\n100,120\n"))

	plain, closers, err := withEcho(port, &config.UltrasonicConfig{Port: "test"})
	if err != nil || plain != sensor.LineSource(port) || len(closers) != 0 {
		t.Fatalf("without echo: src=%T closers=%d err=%v", plain, len(closers), err)
	}

	src, closers, err := withEcho(port, &config.UltrasonicConfig{
		Port:    "test",
		Echo:    true,
		EchoUDP: l.LocalAddr().String(),
	})
	if err != nil {
		t.Fatalf("withEcho() err=%v", err)
	}
	defer closeAll(closers)

	if line, err := src.ReadLine(context.Background()); err != nil || line != "boot ok" {
		t.Fatalf("ReadLine() = %q, %v", line, err)
	}

	buf := make([]byte, 64)
	_ = l.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := l.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom() err=%v", err)
	}
	if got := string(buf[:n]); got != "boot ok\n" {
		t.Fatalf("forwarded %q", got)
	}
}

func TestStart_ConfigError(t *testing.T) {
	old := *configPath
	defer func() { *configPath = old }()
	*configPath = filepath.Join(t.TempDir(), "missing.yaml")

	if err := start(); err == nil || !strings.Contains(err.Error(), "failed to read config") {
		t.Fatalf("start() err=%v", err)
	}
}

// A PAPI datagram sent to the configured listener ends up in the snapshot
// the monitor forwards over UDP.
func TestPipeline_PAPIToForwarder(t *testing.T) {
	fwd, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer fwd.Close()

	cfg, err := config.Parse([]byte(`
monitor:
  interval_ms: 20
  forward_udp: ` + fwd.LocalAddr().String() + `
sensors:
  papi:
    listen: 127.0.0.1:0
    interval_ms: 1
    read_timeout_ms: 50
`))
	if err != nil {
		t.Fatal(err)
	}

	shared := state.New()
	reg := prometheus.NewRegistry()
	producers, closers, items, err := buildProducers(cfg, shared, sensor.NewMetrics(reg))
	if err != nil {
		t.Fatalf("buildProducers() err=%v", err)
	}
	defer closeAll(closers)

	sinks, sinkClosers, err := buildSinks(cfg, items, reg)
	if err != nil {
		t.Fatalf("buildSinks() err=%v", err)
	}
	defer closeAll(sinkClosers)

	papiAddr := closers[0].(*sensor.UDPSource).Addr().String()
	mon := monitor.New(shared, config.Ms(cfg.Monitor.IntervalMs), sinks...)

	var g errgroup.Group
	for _, p := range producers {
		p := p
		g.Go(func() error { return p.Run(context.Background(), shared) })
	}
	g.Go(mon.Run)

	conn, err := net.Dial("udp", papiAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	buf := make([]byte, 1024)
	var got string
	for time.Now().Before(deadline) && got != "PAPI: 1 [OK]\n" {
		_, _ = conn.Write([]byte("1"))
		_ = fwd.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		if n, _, err := fwd.ReadFrom(buf); err == nil {
			got = string(buf[:n])
		}
	}

	shared.Stop()
	if err := g.Wait(); err != nil {
		t.Fatalf("loops returned %v", err)
	}

	if got != "PAPI: 1 [OK]\n" {
		t.Fatalf("last forwarded line = %q", got)
	}
}
