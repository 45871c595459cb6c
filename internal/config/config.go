package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Monitor MonitorConfig `yaml:"monitor"`
	Sensors SensorsConfig `yaml:"sensors"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type MonitorConfig struct {
	IntervalMs int `yaml:"interval_ms"`

	// ForwardUDP, if set, receives every rendered line as a datagram.
	ForwardUDP string `yaml:"forward_udp"`
}

type SensorsConfig struct {
	PAPI       *PAPIConfig       `yaml:"papi"`
	Ultrasonic *UltrasonicConfig `yaml:"ultrasonic"`
	Counters   []CounterConfig   `yaml:"counters"`
}

// ---- PAPI (UDP) ----

type PAPIConfig struct {
	Listen        string `yaml:"listen"`
	IntervalMs    int    `yaml:"interval_ms"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	StaleAfterMs  int    `yaml:"stale_after_ms"`

	Passthrough []int `yaml:"passthrough"`
	MaxStep     *int  `yaml:"max_step"`
	JumpValue   *int  `yaml:"jump_value"`
	Initial     int   `yaml:"initial"`
}

// ---- ULTRASONIC (serial) ----

type UltrasonicConfig struct {
	Port          string `yaml:"port"`
	BaudRate      int    `yaml:"baud_rate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	IntervalMs    int    `yaml:"interval_ms"`
	LostAfterMs   int    `yaml:"lost_after_ms"`
	StaleAfterMs  int    `yaml:"stale_after_ms"`

	// Echo logs every raw line read from the port.
	Echo bool `yaml:"echo"`
	// EchoUDP, if set, receives every raw line as a datagram.
	EchoUDP string `yaml:"echo_udp"`
	// RawValues records "raw value = N" lines into the raw_value field.
	RawValues bool `yaml:"raw_values"`
}

// ---- COUNTER (demo) ----

type CounterConfig struct {
	Name       string  `yaml:"name"`
	Field      string  `yaml:"field"`
	IntervalMs int     `yaml:"interval_ms"`
	Step       float64 `yaml:"step"`
}

// Load reads, defaults and validates a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes, defaults and validates YAML config data.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used without a config file: both
// hardware sensors on their usual ports.
func Default() *Config {
	cfg := &Config{
		Sensors: SensorsConfig{
			PAPI:       &PAPIConfig{},
			Ultrasonic: &UltrasonicConfig{Port: "/dev/ttyACM0"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Demo returns a configuration with two counters, one fast and one slow.
func Demo() *Config {
	cfg := &Config{
		Sensors: SensorsConfig{
			Counters: []CounterConfig{
				{Name: "a", IntervalMs: 200, Step: 1},
				{Name: "b", IntervalMs: 1000, Step: 5},
			},
		},
	}
	cfg.Monitor.IntervalMs = 500
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Monitor.IntervalMs == 0 {
		c.Monitor.IntervalMs = 100
	}

	if p := c.Sensors.PAPI; p != nil {
		if p.Listen == "" {
			p.Listen = "0.0.0.0:5005"
		}
		if p.IntervalMs == 0 {
			p.IntervalMs = 200
		}
		if p.ReadTimeoutMs == 0 {
			p.ReadTimeoutMs = 1000
		}
		if p.StaleAfterMs == 0 {
			p.StaleAfterMs = 3 * p.ReadTimeoutMs
		}
		if p.Passthrough == nil {
			p.Passthrough = []int{5}
		}
		if p.MaxStep == nil {
			p.MaxStep = intPtr(1)
		}
		if p.JumpValue == nil {
			p.JumpValue = intPtr(6)
		}
	}

	if u := c.Sensors.Ultrasonic; u != nil {
		if u.BaudRate == 0 {
			u.BaudRate = 115200
		}
		if u.ReadTimeoutMs == 0 {
			u.ReadTimeoutMs = 1000
		}
		if u.LostAfterMs == 0 {
			u.LostAfterMs = 3000
		}
	}

	for i := range c.Sensors.Counters {
		ctr := &c.Sensors.Counters[i]
		if ctr.Field == "" {
			ctr.Field = ctr.Name
		}
		if ctr.Step == 0 {
			ctr.Step = 1
		}
	}
}

func intPtr(v int) *int { return &v }

// Ms converts a millisecond config value to a duration.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
