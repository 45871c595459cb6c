package main

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lutzky/sensormon/internal/config"
	"github.com/lutzky/sensormon/internal/monitor"
	"github.com/lutzky/sensormon/internal/sensor"
	"github.com/lutzky/sensormon/internal/state"
)

// buildProducers claims fields and opens sources for every configured
// sensor. Closers are returned even on error so that partially opened
// sources are released.
func buildProducers(cfg *config.Config, shared *state.Shared, metrics *sensor.Metrics) ([]*sensor.Producer, []io.Closer, []monitor.Item, error) {
	var (
		producers []*sensor.Producer
		closers   []io.Closer
		items     []monitor.Item
	)

	if p := cfg.Sensors.PAPI; p != nil {
		src, err := sensor.ListenUDP(p.Listen, config.Ms(p.ReadTimeoutMs))
		if err != nil {
			return nil, closers, nil, err
		}
		closers = append(closers, src)

		sampler := sensor.NewPAPISampler(src, sensor.IndicatorConfig{
			Passthrough: p.Passthrough,
			MaxStep:     *p.MaxStep,
			JumpValue:   *p.JumpValue,
			Initial:     p.Initial,
		})
		w, err := shared.Claim("papi", sampler.Fields()...)
		if err != nil {
			return nil, closers, nil, err
		}
		producers = append(producers, sensor.NewProducer(w, sampler, config.Ms(p.IntervalMs), metrics))
		items = append(items, monitor.Item{
			Label:      "PAPI",
			Field:      sensor.FieldPAPI,
			StaleAfter: config.Ms(p.StaleAfterMs),
		})
	}

	if u := cfg.Sensors.Ultrasonic; u != nil {
		port, err := sensor.OpenSerial(sensor.SerialConfig{
			Port:        u.Port,
			BaudRate:    u.BaudRate,
			ReadTimeout: config.Ms(u.ReadTimeoutMs),
		})
		if err != nil {
			return nil, closers, nil, err
		}
		closers = append(closers, port)

		src, echoClosers, err := withEcho(port, u)
		closers = append(closers, echoClosers...)
		if err != nil {
			return nil, closers, nil, err
		}

		sampler := sensor.NewUltrasonicSampler(src, config.Ms(u.LostAfterMs))
		sampler.RawValues = u.RawValues
		w, err := shared.Claim("ultrasonic", sampler.Fields()...)
		if err != nil {
			return nil, closers, nil, err
		}
		producers = append(producers, sensor.NewProducer(w, sampler, config.Ms(u.IntervalMs), metrics))

		staleAfter := config.Ms(u.StaleAfterMs)
		if staleAfter == 0 {
			staleAfter = config.Ms(u.LostAfterMs)
		}
		items = append(items, monitor.Item{
			Label:      "Distance",
			Field:      sensor.FieldDistance,
			Delta:      sensor.FieldDistanceDelta,
			StaleAfter: staleAfter,
		})
		if u.RawValues {
			items = append(items, monitor.Item{
				Label:      "Raw",
				Field:      sensor.FieldRawValue,
				StaleAfter: staleAfter,
			})
		}
	}

	for _, c := range cfg.Sensors.Counters {
		w, err := shared.Claim(c.Name, c.Field)
		if err != nil {
			return nil, closers, nil, err
		}
		sampler := &sensor.CounterSampler{Field: c.Field, Step: c.Step}
		producers = append(producers, sensor.NewProducer(w, sampler, config.Ms(c.IntervalMs), metrics))
		items = append(items, monitor.Item{
			Label:      c.Name,
			Field:      c.Field,
			StaleAfter: 3 * config.Ms(c.IntervalMs),
		})
	}

	return producers, closers, items, nil
}

// withEcho wraps src so that raw lines are logged or forwarded as
// configured. The returned closers do not include src.
func withEcho(src sensor.LineSource, u *config.UltrasonicConfig) (sensor.LineSource, []io.Closer, error) {
	var echo []sensor.LineFunc
	if u.Echo {
		echo = append(echo, sensor.LogLines(u.Port))
	}

	var closers []io.Closer
	if u.EchoUDP != "" {
		fwd, err := sensor.DialLineForwarder(u.EchoUDP)
		if err != nil {
			return nil, nil, fmt.Errorf("sensors.ultrasonic.echo_udp: %w", err)
		}
		echo = append(echo, fwd.Forward)
		closers = append(closers, fwd)
	}

	if len(echo) == 0 {
		return src, nil, nil
	}
	return sensor.NewEchoSource(src, echo...), closers, nil
}

func buildSinks(cfg *config.Config, items []monitor.Item, reg prometheus.Registerer) ([]monitor.Sink, []io.Closer, error) {
	staleAfter := make(map[string]time.Duration, len(items))
	for _, it := range items {
		staleAfter[it.Field] = it.StaleAfter
	}

	sinks := []monitor.Sink{
		&monitor.LogSink{Items: items},
		monitor.NewMetricsSink(reg, staleAfter),
	}
	var closers []io.Closer

	if addr := cfg.Monitor.ForwardUDP; addr != "" {
		udp, err := monitor.DialUDP(addr, items)
		if err != nil {
			return nil, nil, fmt.Errorf("monitor.forward_udp: %w", err)
		}
		sinks = append(sinks, udp)
		closers = append(closers, udp)
	}

	return sinks, closers, nil
}
