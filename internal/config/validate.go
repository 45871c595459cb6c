package config

import (
	"errors"
	"fmt"
)

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", cfg.HTTP.Port)
	}
	if cfg.Monitor.IntervalMs <= 0 {
		return errors.New("monitor.interval_ms must be > 0")
	}

	s := cfg.Sensors
	if s.PAPI == nil && s.Ultrasonic == nil && len(s.Counters) == 0 {
		return errors.New("no sensors configured")
	}

	// Every field has exactly one producer.
	owner := make(map[string]string)
	claim := func(sensor string, fields ...string) error {
		for _, f := range fields {
			if prev, ok := owner[f]; ok {
				return fmt.Errorf("field %q written by both %q and %q", f, prev, sensor)
			}
			owner[f] = sensor
		}
		return nil
	}

	if p := s.PAPI; p != nil {
		if p.Listen == "" {
			return errors.New("sensors.papi.listen required")
		}
		if p.IntervalMs < 0 || p.ReadTimeoutMs <= 0 || p.StaleAfterMs < 0 {
			return errors.New("sensors.papi: intervals must not be negative")
		}
		if p.MaxStep != nil && *p.MaxStep < 0 {
			return errors.New("sensors.papi.max_step must be >= 0")
		}
		if err := claim("papi", "papi", "papi_raw"); err != nil {
			return err
		}
	}

	if u := s.Ultrasonic; u != nil {
		if u.Port == "" {
			return errors.New("sensors.ultrasonic.port required")
		}
		if u.BaudRate <= 0 {
			return errors.New("sensors.ultrasonic.baud_rate must be > 0")
		}
		if u.IntervalMs < 0 || u.ReadTimeoutMs <= 0 || u.LostAfterMs <= 0 || u.StaleAfterMs < 0 {
			return errors.New("sensors.ultrasonic: intervals must not be negative")
		}
		fields := []string{"distance", "distance_delta"}
		if u.RawValues {
			fields = append(fields, "raw_value")
		}
		if err := claim("ultrasonic", fields...); err != nil {
			return err
		}
	}

	names := make(map[string]bool)
	for i, c := range s.Counters {
		if c.Name == "" {
			return fmt.Errorf("sensors.counters[%d]: name required", i)
		}
		if names[c.Name] {
			return fmt.Errorf("sensors.counters: duplicate name %q", c.Name)
		}
		names[c.Name] = true
		if c.IntervalMs <= 0 {
			return fmt.Errorf("sensors.counters[%q]: interval_ms must be > 0", c.Name)
		}
		if err := claim(c.Name, c.Field); err != nil {
			return err
		}
	}

	return nil
}
